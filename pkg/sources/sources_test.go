package sources

import (
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.json")
	s, err := NewStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s, path
}

func TestAddDeduplicatesAndFilters(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Add([]string{
		"https://example.com/a",
		"  https://example.com/a",
		"http://example.org",
		"ftp://example.net",
		"not a url",
		"",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	// Trimmed duplicates collapse to one entry; non-http(s) input is dropped.
	expected := []string{"http://example.org", "https://example.com/a"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Add = %v, want %v", got, expected)
	}
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Add([]string{"https://example.com"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Errorf("List after Clear = %v", got)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	s, path := newTestStore(t)
	if _, err := s.Add([]string{"https://example.com"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	reopened, err := NewStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.List(); len(got) != 1 || got[0] != "https://example.com" {
		t.Errorf("reopened List = %v", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://example.com/path", "https://example.com/path", true},
		{"  http://example.org  ", "http://example.org", true},
		{"ftp://example.net", "", false},
		{"example.com", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Sanitize(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Sanitize(%q) = (%q, %t), want (%q, %t)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
