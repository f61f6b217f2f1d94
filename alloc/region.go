package alloc

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Giulio2002/pagestore/mmap"
)

// Region is a block of memory handed out by a RegionSource.
type Region interface {
	// Bytes returns the region memory. It is at least as long as requested.
	Bytes() []byte
	// Close releases the region. Bytes must not be used afterwards.
	Close() error
}

// RegionSource produces the memory regions a PageAllocator carves pages from.
type RegionSource interface {
	Allocate(size int64) (Region, error)
}

// HeapSource allocates regions on the Go heap.
type HeapSource struct{}

type heapRegion struct{ data []byte }

func (r *heapRegion) Bytes() []byte { return r.data }

func (r *heapRegion) Close() error {
	r.data = nil
	return nil
}

func (HeapSource) Allocate(size int64) (Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return &heapRegion{data: make([]byte, size)}, nil
}

// mappedRegion is a region backed by an mmap, optionally over a file that is
// removed when the region closes.
type mappedRegion struct {
	m    *mmap.Map
	file *os.File
	path string
}

func (r *mappedRegion) Bytes() []byte { return r.m.Data() }

func (r *mappedRegion) Close() error {
	err := r.m.Close()
	if r.file != nil {
		err = multierr.Append(err, r.file.Close())
		err = multierr.Append(err, os.Remove(r.path))
		r.file = nil
	}
	return err
}

// AnonymousSource allocates regions as anonymous private mappings, keeping
// index pages off the Go heap.
type AnonymousSource struct{}

func (AnonymousSource) Allocate(size int64) (Region, error) {
	m, err := mmap.NewAnonymous(int(size))
	if err != nil {
		return nil, errors.Wrap(err, "allocate anonymous region")
	}
	return &mappedRegion{m: m}, nil
}

// FileSource allocates each region as a fresh file in Dir, mapped shared.
// Files are named Prefix.N and removed when their region closes.
type FileSource struct {
	Dir    string
	Prefix string

	mu   sync.Mutex
	next int
}

// NewFileSource creates a file-backed region source rooted at dir.
func NewFileSource(dir, prefix string) *FileSource {
	if prefix == "" {
		prefix = "region"
	}
	return &FileSource{Dir: dir, Prefix: prefix}
}

func (s *FileSource) Allocate(size int64) (Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	s.mu.Lock()
	path := filepath.Join(s.Dir, s.Prefix+"."+strconv.Itoa(s.next))
	s.next++
	s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "create region file")
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "size region file %s", path)
	}

	m, err := mmap.New(int(file.Fd()), 0, int(size), true)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "map region file %s", path)
	}
	// Advice is only a hint; a refusal does not make the mapping unusable.
	_ = m.AdviseRandom()

	return &mappedRegion{m: m, file: file, path: path}, nil
}

// BumpSource carves small regions out of large chunks obtained from Delegate.
// It suits delegates with an expensive Allocate, such as FileSource. A chunk
// is released once it has left the cache and all regions carved from it are
// closed. Requests of at least ChunkSize bytes go straight to the delegate.
type BumpSource struct {
	Delegate  RegionSource
	ChunkSize int64
	Align     int64
	MaxCached int

	mu     sync.Mutex
	chunks []*bumpChunk // ascending by remaining space
}

// NewBumpSource creates a bump source with 1 MiB chunks, 8-byte alignment
// and up to 4 partially used chunks kept for further carving.
func NewBumpSource(delegate RegionSource) *BumpSource {
	return &BumpSource{Delegate: delegate, ChunkSize: 1 << 20, Align: 8, MaxCached: 4}
}

func alignUp(v, align int64) int64 {
	if v == 0 {
		return 0
	}
	return ((v-1)/align + 1) * align
}

type bumpChunk struct {
	region Region
	pos    int64
	open   int
	cached bool
}

func (c *bumpChunk) remaining() int64 {
	return int64(len(c.region.Bytes())) - c.pos
}

type bumpRegion struct {
	src    *BumpSource
	chunk  *bumpChunk
	data   []byte
	closed bool
}

func (r *bumpRegion) Bytes() []byte { return r.data }

func (r *bumpRegion) Close() error {
	r.src.mu.Lock()
	defer r.src.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.data = nil
	r.chunk.open--
	if r.chunk.open == 0 && !r.chunk.cached {
		return r.chunk.region.Close()
	}
	return nil
}

// sizedRegion trims a delegate region to the requested size.
type sizedRegion struct {
	Region
	size int64
}

func (r sizedRegion) Bytes() []byte { return r.Region.Bytes()[:r.size] }

func (s *BumpSource) Allocate(size int64) (Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if size >= s.ChunkSize {
		r, err := s.Delegate.Allocate(alignUp(size, s.Align))
		if err != nil {
			return nil, err
		}
		return sizedRegion{Region: r, size: size}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.chunks {
		if r := s.carve(c, size); r != nil {
			s.chunks = slices.Delete(s.chunks, i, i+1)
			s.insert(c)
			return r, nil
		}
	}

	region, err := s.Delegate.Allocate(s.ChunkSize)
	if err != nil {
		return nil, err
	}
	c := &bumpChunk{region: region, cached: true}
	r := s.carve(c, size)
	s.insert(c)
	if len(s.chunks) > s.MaxCached {
		// Drop the chunk with the least space left.
		evicted := s.chunks[0]
		s.chunks = s.chunks[1:]
		evicted.cached = false
		if evicted.open == 0 {
			err = evicted.region.Close()
		}
	}
	return r, err
}

func (s *BumpSource) carve(c *bumpChunk, size int64) *bumpRegion {
	start := alignUp(c.pos, s.Align)
	end := start + size
	if end > int64(len(c.region.Bytes())) {
		return nil
	}
	c.pos = end
	c.open++
	return &bumpRegion{src: s, chunk: c, data: c.region.Bytes()[start:end:end]}
}

func (s *BumpSource) insert(c *bumpChunk) {
	i, _ := slices.BinarySearchFunc(s.chunks, c.remaining(), func(e *bumpChunk, rem int64) int {
		switch {
		case e.remaining() < rem:
			return -1
		case e.remaining() > rem:
			return 1
		}
		return 0
	})
	s.chunks = slices.Insert(s.chunks, i, c)
}

// Close drops all cached chunks, releasing those with no open regions.
func (s *BumpSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, c := range s.chunks {
		c.cached = false
		if c.open == 0 {
			err = multierr.Append(err, c.region.Close())
		}
	}
	s.chunks = nil
	return err
}
