package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/service"
)

// Suggester generates cell suggestions through the model client. It satisfies
// the service layer's suggestion contract.
type Suggester struct {
	ollama *Ollama
}

// NewSuggester creates a suggester over the given model client.
func NewSuggester(ollama *Ollama) (*Suggester, error) {
	if ollama == nil {
		return nil, fmt.Errorf("ollama client is required")
	}
	return &Suggester{ollama: ollama}, nil
}

// Suggest asks the model to either debug or review the cell, depending on the
// requested mode or, when unset, on whether the captured output looks like an
// error.
func (s *Suggester) Suggest(ctx context.Context, input service.SuggestInput) (string, error) {
	prompt := buildPrompt(input)
	reply, err := s.ollama.Chat(ctx, []Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate suggestion: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func buildPrompt(input service.SuggestInput) string {
	debug := input.Mode == "debug"
	if input.Mode == "" {
		lower := strings.ToLower(input.OutputText)
		debug = strings.Contains(lower, "error") || strings.Contains(lower, "traceback")
	}

	var b strings.Builder
	if debug {
		b.WriteString("You are debugging a notebook cell.\n\n")
		b.WriteString("Cell source:\n```javascript\n")
		b.WriteString(input.Source)
		b.WriteString("\n```\n\n")
		if input.OutputText != "" {
			b.WriteString("Cell output / error:\n```\n")
			b.WriteString(input.OutputText)
			b.WriteString("\n```\n\n")
		}
		b.WriteString("Explain the root cause and propose a corrected version of the code.\n")
		b.WriteString("Return strictly:\n1. Short explanation\n2. Corrected code only\n")
	} else {
		b.WriteString("You are reviewing a notebook cell.\n\n")
		b.WriteString("Cell source:\n```javascript\n")
		b.WriteString(input.Source)
		b.WriteString("\n```\n\n")
		b.WriteString("Suggest improvements to make this code better (performance, readability, best practices).\n")
		b.WriteString("Return strictly:\n1. Short explanation\n2. Improved code\n")
	}
	return b.String()
}
