// Package notes is a small JSON-file-backed store for freeform notes kept
// alongside documents.
package notes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Note is a single stored note. Timestamps are UTC RFC3339 with a trailing Z.
type Note struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	UpdatedAt string `json:"updated_at"`
	CreatedAt string `json:"created_at"`
}

// Update carries optional field changes; nil fields are left untouched.
type Update struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Store keeps notes newest-first in a single JSON file. All methods are safe
// for concurrent use.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	notes []Note
}

// NewStore opens the store at path, loading any existing content. A missing
// or unreadable file starts the store empty.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create notes directory: %w", err)
	}

	s := &Store{path: path, logger: logger}
	if data, err := os.ReadFile(path); err == nil {
		if jerr := json.Unmarshal(data, &s.notes); jerr != nil {
			logger.Warn("Discarding unreadable notes file", zap.String("path", path), zap.Error(jerr))
			s.notes = nil
		}
	}
	return s, nil
}

// List returns all notes, newest first.
func (s *Store) List() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// Get returns the note with the given id.
func (s *Store) Get(id string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.ID == id {
			return n, nil
		}
	}
	return Note{}, fmt.Errorf("%w: note %s", sdkerrors.ErrNotFound, id)
}

// Create adds a new empty note with the given title at the front of the list.
func (s *Store) Create(title string) (Note, error) {
	if title == "" {
		title = "Untitled"
	}
	now := timestamp()
	note := Note{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   "",
		UpdatedAt: now,
		CreatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append([]Note{note}, s.notes...)
	if err := s.persist(); err != nil {
		return Note{}, err
	}
	return note, nil
}

// Apply updates the note with the given id and bumps its updated_at.
func (s *Store) Apply(id string, update Update) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID != id {
			continue
		}
		if update.Title != nil {
			s.notes[i].Title = *update.Title
		}
		if update.Content != nil {
			s.notes[i].Content = *update.Content
		}
		s.notes[i].UpdatedAt = timestamp()
		if err := s.persist(); err != nil {
			return Note{}, err
		}
		return s.notes[i], nil
	}
	return Note{}, fmt.Errorf("%w: note %s", sdkerrors.ErrNotFound, id)
}

// Delete removes the note with the given id. Deleting an absent note is a
// no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.notes[:0]
	for _, n := range s.notes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.notes = kept
	return s.persist()
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.notes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write notes file: %w", err)
	}
	return nil
}

func timestamp() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}
