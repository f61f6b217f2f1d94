package alloc

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorLowestFreePage(t *testing.T) {
	a := NewHeap(64, 4)
	defer a.Close()

	for i := int64(0); i < 10; i++ {
		page, err := a.AllocatePage()
		require.NoError(t, err)
		require.Equal(t, i, page)
	}
	assert.Equal(t, 3, a.Regions())
	assert.Equal(t, int64(10), a.AllocatedPages())

	require.NoError(t, a.FreePage(2))
	require.NoError(t, a.FreePage(5))
	page, err := a.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, int64(2), page)
}

func TestAllocatorDoubleFree(t *testing.T) {
	a := NewHeap(64, 4)
	defer a.Close()

	page, err := a.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, a.FreePage(page))

	err = a.FreePage(page)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDoubleFree))
	assert.True(t, errors.Is(a.FreePage(100), ErrDoubleFree))
}

func TestAllocatorFreeAll(t *testing.T) {
	a := NewHeap(32, 2)
	defer a.Close()

	for i := 0; i < 5; i++ {
		_, err := a.AllocatePage()
		require.NoError(t, err)
	}
	a.FreeAllPages()
	assert.Equal(t, int64(0), a.AllocatedPages())
	assert.Equal(t, 3, a.Regions(), "regions are kept")

	page, err := a.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, int64(0), page)
}

func TestAllocatorBufferAddressing(t *testing.T) {
	const pageSize = 16
	a := NewHeap(pageSize, 2)
	defer a.Close()

	for i := 0; i < 6; i++ {
		page, err := a.AllocatePage()
		require.NoError(t, err)
		a.Buffer().PutUint64(page*pageSize, uint64(page)*1000)
		a.Buffer().PutUint64(page*pageSize+8, ^uint64(page))
	}
	assert.Equal(t, int64(6*pageSize), a.Buffer().Size())
	for page := int64(0); page < 6; page++ {
		assert.Equal(t, uint64(page)*1000, a.Buffer().Uint64(page*pageSize))
		assert.Equal(t, ^uint64(page), a.Buffer().Uint64(page*pageSize+8))
	}

	// Pages in different regions behave as one address space for copies.
	a.Buffer().CopyFrom(a.Buffer(), 0, 3*pageSize, 2*pageSize)
	assert.Equal(t, uint64(0), a.Buffer().Uint64(3*pageSize))
	assert.Equal(t, uint64(1000), a.Buffer().Uint64(4*pageSize))
}

func TestAllocatorClosed(t *testing.T) {
	a := NewHeap(64, 1)
	_, err := a.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.AllocatePage()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, a.Close())
}

func TestAllocatorInvalidPageSize(t *testing.T) {
	_, err := New(HeapSource{}, Options{PageSize: 0})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

type failingSource struct{ after int }

func (s *failingSource) Allocate(size int64) (Region, error) {
	if s.after == 0 {
		return nil, errors.New("out of memory")
	}
	s.after--
	return HeapSource{}.Allocate(size)
}

func TestAllocatorSourceFailure(t *testing.T) {
	a, err := New(&failingSource{after: 1}, Options{PageSize: 8, RegionPages: 1})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AllocatePage()
	require.NoError(t, err)
	_, err = a.AllocatePage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
	assert.Equal(t, int64(1), a.AllocatedPages())
}

func TestFileSource(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mmap regions need a unix platform")
	}
	dir := t.TempDir()
	a, err := New(NewFileSource(dir, "pages"), Options{PageSize: 4096, RegionPages: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		page, err := a.AllocatePage()
		require.NoError(t, err)
		a.Buffer().PutUint32(page*4096, uint32(i+1))
	}
	assert.Equal(t, uint32(3), a.Buffer().Uint32(2*4096))

	_, err = os.Stat(filepath.Join(dir, "pages.1"))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	_, err = os.Stat(filepath.Join(dir, "pages.0"))
	assert.True(t, os.IsNotExist(err), "region files are removed on close")
}

func TestAnonymousSource(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mmap regions need a unix platform")
	}
	a, err := New(AnonymousSource{}, Options{PageSize: 4096, RegionPages: 4})
	require.NoError(t, err)
	defer a.Close()

	page, err := a.AllocatePage()
	require.NoError(t, err)
	a.Buffer().PutUint64(page*4096+8, 77)
	assert.Equal(t, uint64(77), a.Buffer().Uint64(8))
}

type countingSource struct {
	allocated int
	closed    int
}

type countedRegion struct {
	data []byte
	src  *countingSource
}

func (r *countedRegion) Bytes() []byte { return r.data }

func (r *countedRegion) Close() error {
	r.src.closed++
	return nil
}

func (s *countingSource) Allocate(size int64) (Region, error) {
	s.allocated++
	return &countedRegion{data: make([]byte, size), src: s}, nil
}

func TestBumpSourceCarves(t *testing.T) {
	delegate := &countingSource{}
	s := &BumpSource{Delegate: delegate, ChunkSize: 100, Align: 8, MaxCached: 1}

	r1, err := s.Allocate(30)
	require.NoError(t, err)
	r2, err := s.Allocate(30)
	require.NoError(t, err)
	assert.Equal(t, 1, delegate.allocated, "both fit in one chunk")
	assert.Len(t, r1.Bytes(), 30)
	assert.Len(t, r2.Bytes(), 30)

	r1.Bytes()[29] = 1
	assert.Equal(t, byte(0), r2.Bytes()[0], "carved regions do not overlap")

	// 32+30 = 62 used, 40 requested does not fit at aligned 64.
	r3, err := s.Allocate(40)
	require.NoError(t, err)
	assert.Equal(t, 2, delegate.allocated)

	// The first chunk was evicted from the cache and closes with its last region.
	require.NoError(t, r1.Close())
	assert.Equal(t, 0, delegate.closed)
	require.NoError(t, r2.Close())
	assert.Equal(t, 1, delegate.closed)
	require.NoError(t, r2.Close())
	assert.Equal(t, 1, delegate.closed, "double close is a no-op")

	require.NoError(t, r3.Close())
	assert.Equal(t, 1, delegate.closed, "cached chunk stays open")
	require.NoError(t, s.Close())
	assert.Equal(t, 2, delegate.closed)
}

func TestBumpSourceLargeRequest(t *testing.T) {
	delegate := &countingSource{}
	s := NewBumpSource(delegate)
	s.ChunkSize = 64

	r, err := s.Allocate(100)
	require.NoError(t, err)
	assert.Len(t, r.Bytes(), 100)
	assert.Equal(t, 1, delegate.allocated)
	require.NoError(t, r.Close())
	assert.Equal(t, 1, delegate.closed)
}

func TestBumpSourceBacksAllocator(t *testing.T) {
	s := &BumpSource{Delegate: HeapSource{}, ChunkSize: 1024, Align: 64, MaxCached: 2}
	a, err := New(s, Options{PageSize: 64, RegionPages: 2})
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		page, err := a.AllocatePage()
		require.NoError(t, err)
		a.Buffer().PutUint64(page*64, uint64(i))
	}
	for i := int64(0); i < 40; i++ {
		require.Equal(t, uint64(i), a.Buffer().Uint64(i*64))
	}
	require.NoError(t, a.Close())
	require.NoError(t, s.Close())
}
