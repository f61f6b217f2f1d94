//go:build !unix

package mmap

// New is not supported on this platform.
func New(fd int, offset int64, length int, writable bool) (*Map, error) {
	return nil, ErrUnsupported
}

// NewAnonymous is not supported on this platform.
func NewAnonymous(length int) (*Map, error) {
	return nil, ErrUnsupported
}

func (m *Map) Sync() error {
	return ErrNotMapped
}

func (m *Map) Close() error {
	return nil
}

func (m *Map) Advise(advice int) error {
	return ErrNotMapped
}

func (m *Map) AdviseRandom() error {
	return ErrNotMapped
}
