// Package store persists cell documents. A Resolver sandboxes user-supplied
// relative paths under a fixed root; Store implementations load, create, and
// persist documents at resolved paths.
package store

import (
	"fmt"
	"path/filepath"
	"strings"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Extension is the fixed document extension appended to resolved paths.
const Extension = ".ipynb"

// Resolver sandboxes relative document paths under a fixed root directory.
// Pure: no I/O, no side effects.
type Resolver struct {
	root string
}

// NewResolver creates a resolver rooted at the given directory.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the configured root directory.
func (r *Resolver) Root() string { return r.root }

// Resolve normalizes rel (leading slashes trimmed, separators canonicalized,
// the document extension appended if absent) and resolves it under the root.
// It fails with ErrInvalidPath when the result is neither the root itself nor
// strictly inside the root's subtree. Idempotent: resolving an
// already-resolved path yields itself.
func (r *Resolver) Resolve(rel string) (string, error) {
	trimmed := strings.TrimSpace(rel)

	// An already-resolved path inside the sandbox maps to itself.
	if filepath.IsAbs(trimmed) {
		clean := filepath.Clean(trimmed)
		if clean == r.root || strings.HasPrefix(clean, r.root+string(filepath.Separator)) {
			return clean, nil
		}
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = strings.TrimLeft(normalized, "/")
	if !strings.HasSuffix(normalized, Extension) {
		normalized += Extension
	}

	candidate := filepath.Clean(filepath.Join(r.root, filepath.FromSlash(normalized)))
	if candidate != r.root && !strings.HasPrefix(candidate, r.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the notebook root", sdkerrors.ErrInvalidPath, rel)
	}
	return candidate, nil
}

// Rel converts a resolved absolute path back into the canonical
// slash-separated relative form used in listings and API responses.
func (r *Resolver) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside the notebook root", sdkerrors.ErrInvalidPath, abs)
	}
	return filepath.ToSlash(rel), nil
}
