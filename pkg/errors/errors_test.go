package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with underlying error",
			err:  NewError("STORE_READ", "failed to read document", errors.New("disk full")),
			want: "[STORE_READ] failed to read document: disk full",
		},
		{
			name: "without underlying error",
			err:  NewError("BAD_REQUEST", "missing path", nil),
			want: "[BAD_REQUEST] missing path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrapPreservesSentinels(t *testing.T) {
	wrapped := NewError("RESOLVE", "path check failed", fmt.Errorf("resolving: %w", ErrInvalidPath))
	if !errors.Is(wrapped, ErrInvalidPath) {
		t.Error("expected wrapped error to match ErrInvalidPath")
	}
	if errors.Is(wrapped, ErrCorruptDocument) {
		t.Error("wrapped error should not match unrelated sentinel")
	}
}

func TestSentinelHelpers(t *testing.T) {
	tests := []struct {
		name  string
		check func(error) bool
		err   error
		want  bool
	}{
		{"invalid path match", IsInvalidPath, fmt.Errorf("x: %w", ErrInvalidPath), true},
		{"invalid path mismatch", IsInvalidPath, ErrNotFound, false},
		{"corrupt document", IsCorruptDocument, fmt.Errorf("parse: %w", ErrCorruptDocument), true},
		{"cell index", IsInvalidCellIndex, ErrInvalidCellIndex, true},
		{"kernel startup", IsKernelStartup, fmt.Errorf("boot: %w", ErrKernelStartup), true},
		{"not found", IsNotFound, fmt.Errorf("note: %w", ErrNotFound), true},
		{"nil error", IsNotFound, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("check = %v, want %v", got, tt.want)
			}
		})
	}
}
