package pagestore

import (
	"errors"
	"fmt"
)

// Error represents a pagestore error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pagestore: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("pagestore: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrKeyExistError)
// holds for wrapped and annotated errors alike.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrorCode classifies engine failures.
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = 0

	// ErrPointerTooSmall indicates a page number does not fit the configured
	// pointer width. Reconfigure with a wider pointer.
	ErrPointerTooSmall ErrorCode = -1

	// ErrNotPositioned indicates a positioned operation on a cursor that is
	// not at an existing element.
	ErrNotPositioned ErrorCode = -2

	// ErrKeyExist indicates an insert at a position where the key is present
	ErrKeyExist ErrorCode = -3

	// ErrDoubleFree indicates a page was released twice
	ErrDoubleFree ErrorCode = -4

	// ErrCorrupted indicates a structural invariant does not hold
	ErrCorrupted ErrorCode = -5

	// ErrBadConfig indicates an unusable configuration
	ErrBadConfig ErrorCode = -6

	// ErrBadHash indicates a hash with bits outside the stored hash width
	ErrBadHash ErrorCode = -7

	// ErrClosed indicates use of a closed engine
	ErrClosed ErrorCode = -8

	// ErrProblem indicates an unexpected internal error
	ErrProblem ErrorCode = -9
)

// Error descriptions
var errorMessages = map[ErrorCode]string{
	Success:            "success",
	ErrPointerTooSmall: "page pointer too small for page count",
	ErrNotPositioned:   "cursor is not positioned at an element",
	ErrKeyExist:        "key already exists at cursor position",
	ErrDoubleFree:      "page freed twice",
	ErrCorrupted:       "structure is corrupted",
	ErrBadConfig:       "invalid configuration",
	ErrBadHash:         "hash has bits outside the stored width",
	ErrClosed:          "engine is closed",
	ErrProblem:         "unexpected internal error",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// newErrorf creates an Error with a detail message appended to the code's
// description.
func newErrorf(code ErrorCode, format string, args ...any) *Error {
	e := NewError(code)
	e.Message += ": " + fmt.Sprintf(format, args...)
	return e
}

// Common error variables for convenience
var (
	ErrPointerTooSmallError = NewError(ErrPointerTooSmall)
	ErrNotPositionedError   = NewError(ErrNotPositioned)
	ErrKeyExistError        = NewError(ErrKeyExist)
	ErrDoubleFreeError      = NewError(ErrDoubleFree)
	ErrCorruptedError       = NewError(ErrCorrupted)
	ErrBadConfigError       = NewError(ErrBadConfig)
	ErrBadHashError         = NewError(ErrBadHash)
	ErrClosedError          = NewError(ErrClosed)
)

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsPointerTooSmall returns true if the page space of the configured pointer
// width is exhausted.
func IsPointerTooSmall(err error) bool {
	return hasCode(err, ErrPointerTooSmall)
}

// IsNotPositioned returns true if the error is ErrNotPositioned
func IsNotPositioned(err error) bool {
	return hasCode(err, ErrNotPositioned)
}

// IsKeyExist returns true if the error is ErrKeyExist
func IsKeyExist(err error) bool {
	return hasCode(err, ErrKeyExist)
}

// IsCorrupted returns true if the error indicates a broken structure,
// including pages released twice.
func IsCorrupted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCorrupted || e.Code == ErrDoubleFree
	}
	return false
}

// Code returns the error code from an error, or ErrProblem if not a pagestore error
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrProblem
}
