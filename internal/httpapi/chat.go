package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/wehubfusion/Daedalus/pkg/chat"
)

// chatRecent caps how much transcript is sent to the model per turn.
const chatRecent = 8

// webContextChars caps the grounding text built from fetched sources.
const webContextChars = 8000

type socketInbound struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	URLs     []string `json:"urls"`
	UseCrawl bool     `json:"use_crawl"`
	UseDB    bool     `json:"use_pg"`
}

type socketOutbound struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.history.Messages())
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}
	if err := s.history.Clear(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Chat history cleared"})
}

func (s *Server) handleOllamaHealth(w http.ResponseWriter, r *http.Request) {
	if s.ollama == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}
	if err := s.ollama.Health(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"host":  s.ollama.Host(),
		"model": s.ollama.Model(),
	})
}

// handleChatSocket relays chat messages to the model and streams the reply
// back chunk by chunk.
func (s *Server) handleChatSocket(ws *websocket.Conn) {
	defer ws.Close()

	if s.history == nil || s.ollama == nil {
		s.send(ws, socketOutbound{Type: "error", Message: "chat not configured"})
		return
	}

	s.logger.Info("Chat websocket connected")
	for {
		var inbound socketInbound
		if err := websocket.JSON.Receive(ws, &inbound); err != nil {
			if err != io.EOF {
				s.logger.Warn("Chat websocket closed", zap.Error(err))
			}
			return
		}
		if inbound.Type != "chat_message" || inbound.Message == "" {
			continue
		}

		if err := s.history.Append("user", inbound.Message); err != nil {
			s.logger.Error("Failed to persist user message", zap.Error(err))
		}
		if len(inbound.URLs) > 0 && s.sources != nil {
			if _, err := s.sources.Add(inbound.URLs); err != nil {
				s.logger.Error("Failed to store chat URLs", zap.Error(err))
			}
		}

		messages := s.contextMessages(inbound)
		messages = append(messages, s.history.Recent(chatRecent)...)

		s.send(ws, socketOutbound{Type: "status", Stage: "generating"})

		full, err := s.ollama.Chat(context.Background(), messages, func(chunk string) error {
			return s.send(ws, socketOutbound{Type: "chunk", Content: chunk})
		})
		if err != nil {
			s.send(ws, socketOutbound{Type: "error", Message: "Ollama stream failed: " + err.Error()})
			s.send(ws, socketOutbound{Type: "complete"})
			continue
		}

		if err := s.history.Append("assistant", full); err != nil {
			s.logger.Error("Failed to persist assistant message", zap.Error(err))
		}
		s.send(ws, socketOutbound{Type: "complete"})
	}
}

// contextMessages builds the optional grounding blocks prepended to the
// transcript: fetched page text from the turn's URLs plus every stored
// source, and whatever the configured database provider returns for the
// user's message.
func (s *Server) contextMessages(inbound socketInbound) []chat.Message {
	var messages []chat.Message

	if inbound.UseCrawl && s.fetcher != nil {
		urls := inbound.URLs
		if s.sources != nil {
			urls = append(urls, s.sources.List()...)
		}
		urls = dedupe(urls)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		blob := s.fetcher.FetchContext(ctx, urls, webContextChars)
		cancel()
		if blob != "" {
			messages = append(messages, chat.Message{
				Role:    "system",
				Content: "Web context:\n\n" + blob,
			})
		}
	}

	if inbound.UseDB && s.dbContext != nil {
		block, err := s.dbContext(context.Background(), inbound.Message)
		if err != nil {
			s.logger.Warn("Database context lookup failed", zap.Error(err))
		} else if block != "" {
			messages = append(messages, chat.Message{
				Role:    "system",
				Content: "Database context:\n\n" + block,
			})
		}
	}

	return messages
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (s *Server) send(ws *websocket.Conn, out socketOutbound) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = ws.Write(data)
	return err
}
