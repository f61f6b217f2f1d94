package pagestore

import (
	"cmp"

	"github.com/Giulio2002/pagestore/buffer"
)

// Codec maps keys and values to bytes at a buffer address. Keys and values
// are carried as uint64 and stored in KeySize and ValueSize bytes. Engines
// order keys only through Compare.
type Codec interface {
	KeySize() int
	ValueSize() int
	Compare(a, b uint64) int

	ReadKey(buf buffer.Buffer, addr int64) uint64
	WriteKey(buf buffer.Buffer, addr int64, key uint64)
	ReadValue(buf buffer.Buffer, addr int64) uint64
	WriteValue(buf buffer.Buffer, addr int64, value uint64)
}

// FixedCodec stores keys and values as little-endian integers of fixed width.
// With SignedKeys, keys are two's complement numbers of KeyWidth bytes; they
// are sign-extended on read and ordered as int64.
type FixedCodec struct {
	KeyWidth   int
	ValueWidth int
	SignedKeys bool
}

// Uint64Codec stores 8-byte unsigned keys and values.
var Uint64Codec = FixedCodec{KeyWidth: 8, ValueWidth: 8}

// Int64Codec stores 8-byte signed keys and 8-byte values.
var Int64Codec = FixedCodec{KeyWidth: 8, ValueWidth: 8, SignedKeys: true}

func (c FixedCodec) KeySize() int   { return c.KeyWidth }
func (c FixedCodec) ValueSize() int { return c.ValueWidth }

func (c FixedCodec) Compare(a, b uint64) int {
	if c.SignedKeys {
		return cmp.Compare(int64(a), int64(b))
	}
	return cmp.Compare(a, b)
}

func (c FixedCodec) ReadKey(buf buffer.Buffer, addr int64) uint64 {
	v := uget(buf, addr, c.KeyWidth)
	if c.SignedKeys && c.KeyWidth < 8 {
		shift := 64 - 8*c.KeyWidth
		v = uint64(int64(v<<shift) >> shift)
	}
	return v
}

func (c FixedCodec) WriteKey(buf buffer.Buffer, addr int64, key uint64) {
	if c.SignedKeys {
		key &= widthMask(c.KeyWidth)
	}
	uset(buf, addr, c.KeyWidth, key)
}

func (c FixedCodec) ReadValue(buf buffer.Buffer, addr int64) uint64 {
	return uget(buf, addr, c.ValueWidth)
}

func (c FixedCodec) WriteValue(buf buffer.Buffer, addr int64, value uint64) {
	uset(buf, addr, c.ValueWidth, value)
}

// Validate checks the widths.
func (c FixedCodec) Validate() error {
	if !validWidth(c.KeyWidth) || !validWidth(c.ValueWidth) {
		return newErrorf(ErrBadConfig, "codec widths %d/%d must be 1, 2, 4 or 8", c.KeyWidth, c.ValueWidth)
	}
	return nil
}
