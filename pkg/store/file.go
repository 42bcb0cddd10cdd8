package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/notebook"
)

// Store persists cell documents keyed by their canonical relative path
// (slash-separated, extension included). Implementations provide no locking:
// concurrent writers are last-write-wins, and serialization of mutating
// callers is the caller's concern.
type Store interface {
	// Read loads the document at rel. A missing document is created on the
	// fly with default content, persisted, and returned.
	Read(ctx context.Context, rel string) (*notebook.Document, error)
	// Write persists the document at rel, creating parent directories as
	// needed and replacing any previous content.
	Write(ctx context.Context, rel string, doc *notebook.Document) error
	// List returns the canonical relative paths of every stored document,
	// sorted lexicographically.
	List(ctx context.Context) ([]string, error)
}

// FileStore keeps documents as files under a root directory.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates a file-backed store rooted at the given directory,
// creating the directory if needed.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileStore{root: abs, logger: logger}, nil
}

func (s *FileStore) path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Read loads the document at rel, creating it with default content when it
// does not exist yet. Undecodable content surfaces as ErrCorruptDocument.
func (s *FileStore) Read(ctx context.Context, rel string) (*notebook.Document, error) {
	data, err := os.ReadFile(s.path(rel))
	if os.IsNotExist(err) {
		doc := notebook.NewDefault()
		if werr := s.Write(ctx, rel, doc); werr != nil {
			return nil, werr
		}
		s.logger.Info("Created document", zap.String("path", rel))
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", rel, err)
	}
	return notebook.Parse(data)
}

// Write persists the document at rel.
func (s *FileStore) Write(ctx context.Context, rel string, doc *notebook.Document) error {
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", rel, err)
	}
	full := s.path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", rel, err)
	}
	return nil
}

// List walks the root and returns every document path, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	paths := []string{}
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Extension) {
			return nil
		}
		rel, rerr := filepath.Rel(s.root, p)
		if rerr != nil {
			return rerr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
