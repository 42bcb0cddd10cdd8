// Package kernel defines the execution session provider contract: given an
// ordered list of code fragments, run them sequentially in one freshly
// started, isolated runtime and report per-fragment captured output. How a
// provider achieves isolation (in-process VM, subprocess, container) is its
// own business; the engine depends only on this contract.
package kernel

import (
	"context"
	"errors"
)

// ErrInterrupted is returned by Session.Run when the fragment was aborted
// before completion, typically because the caller's deadline expired.
var ErrInterrupted = errors.New("kernel execution interrupted")

// Provider starts execution sessions. Sessions are never reused or pooled
// across calls: every Start yields a fresh, isolated runtime.
type Provider interface {
	// Name identifies the runtime language for logging and metadata.
	Name() string

	// Start acquires a new isolated session. The caller owns the session and
	// must Close it on every exit path.
	Start(ctx context.Context) (Session, error)
}

// Session is one freshly started, isolated runtime. Fragments run
// sequentially and share interpreter state within the session.
type Session interface {
	// Run executes one code fragment and returns its captured records in
	// arrival order. A fragment that raises reports the error as a record,
	// not as a Go error; Run itself fails only for infrastructure faults
	// such as an interrupt or a closed session.
	Run(ctx context.Context, source string) (*Result, error)

	// Close tears the runtime down. Safe to call more than once.
	Close() error
}

// Result is the captured outcome of one fragment.
type Result struct {
	// Records holds stream, error, and display records in arrival order.
	Records []Record

	// Sequence is the session-local sequence number of this fragment,
	// starting at 1.
	Sequence int
}

// Record is one captured event: exactly one of the fields is set.
type Record struct {
	Stream  *Stream
	Error   *Error
	Display map[string]string
}

// Stream is a captured fragment of output text on one channel.
type Stream struct {
	Channel string
	Text    string
}

// Error is a structured runtime error raised by a fragment.
type Error struct {
	Name      string
	Message   string
	Traceback []string
}

// StreamRecord builds a stream record.
func StreamRecord(channel, text string) Record {
	return Record{Stream: &Stream{Channel: channel, Text: text}}
}

// ErrorRecord builds an error record.
func ErrorRecord(name, message string, traceback []string) Record {
	return Record{Error: &Error{Name: name, Message: message, Traceback: traceback}}
}

// DisplayRecord builds a display record from a mime-to-representation map.
func DisplayRecord(data map[string]string) Record {
	return Record{Display: data}
}
