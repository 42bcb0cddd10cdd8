package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath indicates that a notebook path escapes the configured
	// root or is otherwise malformed
	ErrInvalidPath = errors.New("invalid notebook path")

	// ErrCorruptDocument indicates that a stored notebook could not be parsed
	ErrCorruptDocument = errors.New("corrupt notebook document")

	// ErrInvalidCellIndex indicates that a cell index is outside the document
	ErrInvalidCellIndex = errors.New("invalid cell index")

	// ErrKernelStartup indicates that an execution session could not be started
	ErrKernelStartup = errors.New("kernel startup failed")

	// ErrInvalidDocument indicates that a document payload fails shape validation
	ErrInvalidDocument = errors.New("invalid notebook document")

	// ErrNotFound indicates that a requested resource does not exist
	ErrNotFound = errors.New("not found")
)

// Error represents a structured service error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured service error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsInvalidPath checks if an error is a path validation error
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsCorruptDocument checks if an error is a corrupt document error
func IsCorruptDocument(err error) bool {
	return errors.Is(err, ErrCorruptDocument)
}

// IsInvalidCellIndex checks if an error is a cell index error
func IsInvalidCellIndex(err error) bool {
	return errors.Is(err, ErrInvalidCellIndex)
}

// IsKernelStartup checks if an error is a kernel startup error
func IsKernelStartup(err error) bool {
	return errors.Is(err, ErrKernelStartup)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
