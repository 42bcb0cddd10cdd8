package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// systemPrompt seeds every fresh conversation.
const systemPrompt = "Be concise. Ground in provided web/DB context when present."

// History is the persistent chat transcript, stored as a JSON file and seeded
// with the system prompt. Methods are safe for concurrent use.
type History struct {
	path   string
	logger *zap.Logger

	mu       sync.Mutex
	messages []Message
}

// NewHistory opens the transcript at path, seeding it when absent or
// unreadable.
func NewHistory(path string, logger *zap.Logger) (*History, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chat directory: %w", err)
	}

	h := &History{path: path, logger: logger}
	if data, err := os.ReadFile(path); err == nil {
		if jerr := json.Unmarshal(data, &h.messages); jerr != nil {
			logger.Warn("Discarding unreadable chat history", zap.String("path", path), zap.Error(jerr))
			h.messages = nil
		}
	}
	if len(h.messages) == 0 {
		h.messages = seed()
	}
	return h, nil
}

// Messages returns a copy of the full transcript.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Recent returns a copy of the last n messages.
func (h *History) Recent(n int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]Message, n)
	copy(out, h.messages[len(h.messages)-n:])
	return out
}

// Append adds a message to the transcript and persists it.
func (h *History) Append(role, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, Message{Role: role, Content: content})
	return h.persist()
}

// Clear resets the transcript back to just the system prompt.
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = seed()
	return h.persist()
}

func (h *History) persist() error {
	data, err := json.MarshalIndent(h.messages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}
	if err := os.WriteFile(h.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chat history: %w", err)
	}
	return nil
}

func seed() []Message {
	return []Message{{Role: "system", Content: systemPrompt}}
}
