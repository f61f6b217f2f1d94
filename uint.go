package pagestore

import (
	"modernc.org/mathutil"

	"github.com/Giulio2002/pagestore/buffer"
)

// requiredBytes returns the smallest of 1, 2, 4 or 8 bytes that can hold
// every value up to max.
func requiredBytes(max uint64) int {
	switch n := mathutil.BitLenUint64(max); {
	case n <= 8:
		return 1
	case n <= 16:
		return 2
	case n <= 32:
		return 4
	}
	return 8
}

// uget reads an unsigned little-endian integer of width bytes.
func uget(buf buffer.Buffer, addr int64, width int) uint64 {
	switch width {
	case 1:
		return uint64(buf.Uint8(addr))
	case 2:
		return uint64(buf.Uint16(addr))
	case 4:
		return uint64(buf.Uint32(addr))
	case 8:
		return buf.Uint64(addr)
	}
	panic(newErrorf(ErrProblem, "integer width %d", width))
}

// uset writes v as an unsigned little-endian integer of width bytes. A value
// that does not fit is a layout bug and panics.
func uset(buf buffer.Buffer, addr int64, width int, v uint64) {
	if width < 8 && v>>(8*width) != 0 {
		panic(newErrorf(ErrProblem, "value %#x does not fit %d bytes", v, width))
	}
	switch width {
	case 1:
		buf.PutUint8(addr, uint8(v))
	case 2:
		buf.PutUint16(addr, uint16(v))
	case 4:
		buf.PutUint32(addr, uint32(v))
	case 8:
		buf.PutUint64(addr, v)
	default:
		panic(newErrorf(ErrProblem, "integer width %d", width))
	}
}

// validWidth reports whether w is a supported integer width.
func validWidth(w int) bool {
	return w == 1 || w == 2 || w == 4 || w == 8
}

// widthMask returns the mask of the low 8*w bits.
func widthMask(w int) uint64 {
	if w >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*w) - 1
}
