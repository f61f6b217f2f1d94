// Package mmap maps files and anonymous memory for page regions.
package mmap

// Map is a mapped memory region, either backed by a file descriptor or
// anonymous.
type Map struct {
	data     []byte // Mapped memory region
	fd       int    // File descriptor, -1 for anonymous mappings
	size     int64  // Mapped size
	writable bool   // True if mapped with write permission
}

// Data returns the mapped byte slice.
func (m *Map) Data() []byte {
	return m.data
}

// Size returns the mapped size.
func (m *Map) Size() int64 {
	return m.size
}

// Writable returns true if the mapping is writable.
func (m *Map) Writable() bool {
	return m.writable
}

// Anonymous reports whether the mapping has no backing file.
func (m *Map) Anonymous() bool {
	return m.fd < 0
}

// Error represents an mmap error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "mmap: " + e.Op + ": " + e.Err.Error()
	}
	return "mmap: " + e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common errors
var (
	ErrInvalidSize = &Error{Op: "invalid size"}
	ErrNotMapped   = &Error{Op: "not mapped"}
	ErrUnsupported = &Error{Op: "unsupported platform"}
)
