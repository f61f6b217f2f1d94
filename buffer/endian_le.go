//go:build amd64 || 386 || arm64 || arm || riscv64 || mips64le || mipsle || ppc64le || wasm

package buffer

import "unsafe"

// word is the set of widths a block field can have beyond a single byte.
type word interface{ ~uint16 | ~uint32 | ~uint64 }

// load reads a little-endian word from the front of b. Stored order is
// memory order here, so it is a plain load. len(b) must cover the word;
// callers slice first.
func load[T word](b []byte) T {
	_ = b[unsafe.Sizeof(T(0))-1]
	return *(*T)(unsafe.Pointer(unsafe.SliceData(b)))
}

// store writes v little-endian at the front of b.
func store[T word](b []byte, v T) {
	_ = b[unsafe.Sizeof(v)-1]
	*(*T)(unsafe.Pointer(unsafe.SliceData(b))) = v
}
