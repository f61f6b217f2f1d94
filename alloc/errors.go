package alloc

// Error types
var (
	ErrDoubleFree  = &allocError{"page is not allocated"}
	ErrInvalidSize = &allocError{"invalid size"}
	ErrShortRegion = &allocError{"region smaller than requested"}
	ErrClosed      = &allocError{"allocator is closed"}
)

type allocError struct {
	msg string
}

func (e *allocError) Error() string {
	return "alloc: " + e.msg
}
