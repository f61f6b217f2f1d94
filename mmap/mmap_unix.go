//go:build unix

package mmap

import (
	"golang.org/x/sys/unix"
)

// New creates a shared mapping of length bytes of fd starting at offset.
// The offset must be page-aligned.
func New(fd int, offset int64, length int, writable bool) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(fd, offset, length, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Op: "mmap", Err: err}
	}

	return &Map{
		data:     data,
		fd:       fd,
		size:     int64(length),
		writable: writable,
	}, nil
}

// NewAnonymous creates a private, zero-filled, writable mapping that is not
// backed by any file.
func NewAnonymous(length int) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &Error{Op: "mmap anonymous", Err: err}
	}

	return &Map{
		data:     data,
		fd:       -1,
		size:     int64(length),
		writable: true,
	}, nil
}

// Sync flushes changes to the backing file synchronously. It is a no-op for
// anonymous mappings.
func (m *Map) Sync() error {
	if m.data == nil {
		return ErrNotMapped
	}
	if m.fd < 0 {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return &Error{Op: "msync", Err: err}
	}
	return nil
}

// Close releases the memory mapping. Closing twice is allowed.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}

	err := unix.Munmap(m.data)
	m.data = nil
	m.size = 0
	if err != nil {
		return &Error{Op: "munmap", Err: err}
	}
	return nil
}

// Advise provides hints to the kernel about memory usage patterns.
func (m *Map) Advise(advice int) error {
	if m.data == nil {
		return ErrNotMapped
	}
	return unix.Madvise(m.data, advice)
}

// AdviseRandom hints that pages will be accessed randomly, which is how
// tree and hash pages are visited.
func (m *Map) AdviseRandom() error {
	return m.Advise(unix.MADV_RANDOM)
}
