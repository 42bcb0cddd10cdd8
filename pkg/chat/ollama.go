// Package chat relays conversations to a local Ollama model and keeps the
// persistent chat history offered over the API.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Message is one turn of a conversation in Ollama's chat format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaConfig configures the model client.
type OllamaConfig struct {
	// Host is the Ollama base URL, for example http://localhost:11434.
	Host string
	// Model is the model name passed on every request.
	Model string
	// Timeout bounds a whole streamed chat call.
	Timeout time.Duration
}

// ApplyDefaults fills zero fields with production defaults.
func (c *OllamaConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "llama3.2:1b"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
}

// Validate checks the configuration for invalid values.
func (c *OllamaConfig) Validate() error {
	u, err := url.Parse(c.Host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return fmt.Errorf("invalid ollama host %q", c.Host)
	}
	return nil
}

// Ollama is a streaming client for the Ollama chat API.
type Ollama struct {
	config OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllama creates a client for the configured host and model.
func NewOllama(config OllamaConfig, logger *zap.Logger) (*Ollama, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ollama{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (o *Ollama) Model() string { return o.config.Model }

// Host returns the configured base URL.
func (o *Ollama) Host() string { return strings.TrimRight(o.config.Host, "/") }

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatEvent struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

// Chat streams a completion for messages. Each content chunk is handed to
// onChunk as it arrives (onChunk may be nil); the full accumulated response is
// returned at the end.
func (o *Ollama) Chat(ctx context.Context, messages []Message, onChunk func(chunk string) error) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    o.config.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Host()+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	// Ollama streams newline-delimited JSON events.
	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event chatEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return "", fmt.Errorf("failed to decode stream event: %w", err)
		}
		if event.Error != "" {
			return "", fmt.Errorf("ollama stream error: %s", event.Error)
		}
		if event.Message.Content != "" {
			full.WriteString(event.Message.Content)
			if onChunk != nil {
				if err := onChunk(event.Message.Content); err != nil {
					return "", err
				}
			}
		}
		if event.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("ollama stream read failed: %w", err)
	}
	return full.String(), nil
}

// Health checks that the Ollama host is reachable.
func (o *Ollama) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.Host()+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}
