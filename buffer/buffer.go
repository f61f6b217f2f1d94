// Package buffer provides byte-addressable buffers that the index engines store
// their pages in.
//
// A Buffer is addressed by int64 byte offsets and stores integers in
// little-endian order. Implementations may be a single contiguous slice (Heap)
// or a sequence of equally sized regions presented as one address space
// (Joined). Out-of-range accesses panic with *Error; they always indicate a
// layout miscalculation or corruption in the caller.
package buffer

import "strconv"

// Buffer is a long-indexed byte array with typed accessors.
type Buffer interface {
	Uint8(pos int64) uint8
	Uint16(pos int64) uint16
	Uint32(pos int64) uint32
	Uint64(pos int64) uint64

	PutUint8(pos int64, v uint8)
	PutUint16(pos int64, v uint16)
	PutUint32(pos int64, v uint32)
	PutUint64(pos int64, v uint64)

	// Size returns the addressable size in bytes.
	Size() int64

	// CopyFrom copies n bytes from src[srcOff:] to this buffer at dstOff.
	// Overlapping ranges are handled like memmove, including src being the
	// receiver itself.
	CopyFrom(src Buffer, srcOff, dstOff, n int64)

	// Close releases the buffer. Contents are undefined afterwards.
	Close() error
}

// Reallocator is implemented by buffers that can grow without the caller
// allocating a new buffer and copying.
type Reallocator interface {
	// Reallocate returns a buffer of newSize bytes holding the old contents.
	// The receiver must not be used after a successful call.
	Reallocate(newSize int64) (Buffer, bool)
}

// segmented is implemented by buffers whose memory can be handed out as
// contiguous byte slices. CopyFrom uses it to copy with the builtin copy.
type segmented interface {
	// segmentAt returns the contiguous bytes starting at pos.
	segmentAt(pos int64) []byte
	// segmentBefore returns the contiguous bytes ending just before pos.
	segmentBefore(pos int64) []byte
}

// Error is a buffer access error.
type Error struct {
	Op   string
	Pos  int64
	Len  int64
	Size int64
}

func (e *Error) Error() string {
	return "buffer: " + e.Op + ": range [" + strconv.FormatInt(e.Pos, 10) + ", +" +
		strconv.FormatInt(e.Len, 10) + ") outside size " + strconv.FormatInt(e.Size, 10)
}

func checkRange(op string, pos, n, size int64) {
	if pos < 0 || n < 0 || pos > size-n {
		panic(&Error{Op: op, Pos: pos, Len: n, Size: size})
	}
}

// Copy performs dst.CopyFrom(src, srcOff, dstOff, n) for any pair of buffers.
// Buffers that do not expose contiguous segments are copied byte by byte.
func Copy(dst, src Buffer, srcOff, dstOff, n int64) {
	checkRange("copy source", srcOff, n, src.Size())
	checkRange("copy destination", dstOff, n, dst.Size())
	if n == 0 {
		return
	}

	ds, dok := dst.(segmented)
	ss, sok := src.(segmented)
	if !dok || !sok {
		copyBytewise(dst, src, srcOff, dstOff, n)
		return
	}

	if srcOff >= dstOff {
		for n > 0 {
			d := ds.segmentAt(dstOff)
			s := ss.segmentAt(srcOff)
			c := min(int64(len(d)), int64(len(s)), n)
			copy(d[:c], s[:c])
			srcOff += c
			dstOff += c
			n -= c
		}
		return
	}

	srcEnd, dstEnd := srcOff+n, dstOff+n
	for n > 0 {
		d := ds.segmentBefore(dstEnd)
		s := ss.segmentBefore(srcEnd)
		c := min(int64(len(d)), int64(len(s)), n)
		copy(d[int64(len(d))-c:], s[int64(len(s))-c:])
		srcEnd -= c
		dstEnd -= c
		n -= c
	}
}

func copyBytewise(dst, src Buffer, srcOff, dstOff, n int64) {
	if srcOff >= dstOff {
		for i := int64(0); i < n; i++ {
			dst.PutUint8(dstOff+i, src.Uint8(srcOff+i))
		}
		return
	}
	for i := n - 1; i >= 0; i-- {
		dst.PutUint8(dstOff+i, src.Uint8(srcOff+i))
	}
}
