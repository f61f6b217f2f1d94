//go:build !amd64 && !386 && !arm64 && !arm && !riscv64 && !mips64le && !mipsle && !ppc64le && !wasm

package buffer

import "encoding/binary"

type word interface{ ~uint16 | ~uint32 | ~uint64 }

func load[T word](b []byte) T {
	var v T
	switch any(v).(type) {
	case uint16:
		return T(binary.LittleEndian.Uint16(b))
	case uint32:
		return T(binary.LittleEndian.Uint32(b))
	default:
		return T(binary.LittleEndian.Uint64(b))
	}
}

func store[T word](b []byte, v T) {
	switch any(v).(type) {
	case uint16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case uint32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}
