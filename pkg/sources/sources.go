// Package sources tracks the set of reference URLs offered as web context to
// chat sessions.
package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Store keeps a deduplicated set of http(s) URLs in a single JSON file.
// Methods are safe for concurrent use.
type Store struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	urls map[string]struct{}
}

// NewStore opens the store at path, loading any existing content.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sources directory: %w", err)
	}

	s := &Store{path: path, logger: logger, urls: make(map[string]struct{})}
	if data, err := os.ReadFile(path); err == nil {
		var stored []string
		if jerr := json.Unmarshal(data, &stored); jerr != nil {
			logger.Warn("Discarding unreadable sources file", zap.String("path", path), zap.Error(jerr))
		} else {
			for _, u := range stored {
				s.urls[u] = struct{}{}
			}
		}
	}
	return s, nil
}

// Add stores every valid http(s) URL from raws, silently skipping the rest,
// and returns the resulting full set.
func (s *Store) Add(raws []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range raws {
		if u, ok := Sanitize(raw); ok {
			s.urls[u] = struct{}{}
		}
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// List returns the stored URLs, sorted.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Clear removes every stored URL.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = make(map[string]struct{})
	return s.persist()
}

// Sanitize trims raw and reports whether it is a usable http(s) URL.
func Sanitize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return raw, true
}

func (s *Store) snapshot() []string {
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sources file: %w", err)
	}
	return nil
}
