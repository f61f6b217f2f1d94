package buffer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJoined(regionSize int64, regions int) *Joined {
	j := NewJoined(regionSize)
	for i := 0; i < regions; i++ {
		j.Append(make([]byte, regionSize))
	}
	return j
}

func fill(b Buffer, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	ref := make([]byte, b.Size())
	rng.Read(ref)
	for i, v := range ref {
		b.PutUint8(int64(i), v)
	}
	return ref
}

func contents(b Buffer) []byte {
	out := make([]byte, b.Size())
	for i := range out {
		out[i] = b.Uint8(int64(i))
	}
	return out
}

func TestHeapTypedAccess(t *testing.T) {
	h := NewHeap(32)
	h.PutUint64(0, 0x0102030405060708)
	h.PutUint32(8, 0xdeadbeef)
	h.PutUint16(12, 0xcafe)
	h.PutUint8(14, 0x7f)

	assert.Equal(t, uint64(0x0102030405060708), h.Uint64(0))
	assert.Equal(t, uint8(0x08), h.Uint8(0), "little endian")
	assert.Equal(t, uint32(0xdeadbeef), h.Uint32(8))
	assert.Equal(t, uint16(0xcafe), h.Uint16(12))
	assert.Equal(t, uint8(0x7f), h.Uint8(14))
}

func TestHeapOutOfBounds(t *testing.T) {
	h := NewHeap(8)
	assert.Panics(t, func() { h.Uint64(1) })
	assert.Panics(t, func() { h.PutUint16(-1, 0) })
	assert.NotPanics(t, func() { h.Uint64(0) })
}

func TestHeapReallocate(t *testing.T) {
	h := NewHeap(4)
	h.PutUint32(0, 42)
	grown, ok := h.Reallocate(16)
	require.True(t, ok)
	assert.Equal(t, int64(16), grown.Size())
	assert.Equal(t, uint32(42), grown.Uint32(0))
	assert.Equal(t, uint64(0), grown.Uint64(8))
}

func TestJoinedStraddlingValues(t *testing.T) {
	j := newTestJoined(8, 3)
	j.PutUint64(5, 0x1122334455667788)
	assert.Equal(t, uint64(0x1122334455667788), j.Uint64(5))
	assert.Equal(t, uint8(0x88), j.Uint8(5))
	assert.Equal(t, uint8(0x11), j.Uint8(12))

	j.PutUint32(15, 0xa1b2c3d4)
	assert.Equal(t, uint32(0xa1b2c3d4), j.Uint32(15))
	j.PutUint16(7, 0xbeef)
	assert.Equal(t, uint16(0xbeef), j.Uint16(7))
}

func TestJoinedOutOfBounds(t *testing.T) {
	j := newTestJoined(8, 2)
	assert.Panics(t, func() { j.Uint8(16) })
	assert.Panics(t, func() { j.PutUint32(14, 1) })
	assert.Panics(t, func() { j.Append(make([]byte, 4)) })
}

// Every copy is checked against the builtin copy on a flat reference slice.
func TestCopyMemmoveSemantics(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		j := newTestJoined(16, 5)
		ref := fill(j, int64(iter))

		n := rng.Int63n(j.Size() + 1)
		src := rng.Int63n(j.Size() - n + 1)
		dst := rng.Int63n(j.Size() - n + 1)

		j.CopyFrom(j, src, dst, n)
		copy(ref[dst:dst+n], ref[src:src+n])
		require.Equal(t, ref, contents(j), "src=%d dst=%d n=%d", src, dst, n)
	}
}

func TestCopyBetweenKinds(t *testing.T) {
	j := newTestJoined(8, 4)
	h := NewHeap(40)
	refJ := fill(j, 1)
	refH := fill(h, 2)

	h.CopyFrom(j, 3, 10, 25)
	copy(refH[10:35], refJ[3:28])
	assert.Equal(t, refH, contents(h))

	j.CopyFrom(h, 0, 1, 30)
	copy(refJ[1:31], refH[0:30])
	assert.Equal(t, refJ, contents(j))
}

// plainBuffer hides the heap's contiguous segments.
type plainBuffer struct{ h *Heap }

func (p plainBuffer) Uint8(pos int64) uint8 { return p.h.Uint8(pos) }
func (p plainBuffer) Uint16(pos int64) uint16 { return p.h.Uint16(pos) }
func (p plainBuffer) Uint32(pos int64) uint32 { return p.h.Uint32(pos) }
func (p plainBuffer) Uint64(pos int64) uint64 { return p.h.Uint64(pos) }
func (p plainBuffer) PutUint8(pos int64, v uint8) { p.h.PutUint8(pos, v) }
func (p plainBuffer) PutUint16(pos int64, v uint16) { p.h.PutUint16(pos, v) }
func (p plainBuffer) PutUint32(pos int64, v uint32) { p.h.PutUint32(pos, v) }
func (p plainBuffer) PutUint64(pos int64, v uint64) { p.h.PutUint64(pos, v) }
func (p plainBuffer) Size() int64 { return p.h.Size() }
func (p plainBuffer) Close() error { return p.h.Close() }
func (p plainBuffer) CopyFrom(src Buffer, srcOff, dstOff, n int64) {
	Copy(p, src, srcOff, dstOff, n)
}

func TestCopyBytewiseFallback(t *testing.T) {
	p := plainBuffer{NewHeap(24)}
	ref := fill(p, 3)

	p.CopyFrom(p, 0, 5, 15)
	copy(ref[5:20], ref[0:15])
	assert.Equal(t, ref, contents(p))

	p.CopyFrom(p, 8, 2, 16)
	copy(ref[2:18], ref[8:24])
	assert.Equal(t, ref, contents(p))
}

func TestCopyRangeChecked(t *testing.T) {
	h := NewHeap(8)
	assert.Panics(t, func() { h.CopyFrom(h, 4, 0, 5) })
	assert.Panics(t, func() { h.CopyFrom(h, 0, 4, 5) })
}
