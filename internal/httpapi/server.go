// Package httpapi exposes the document, notes, chat, and sources operations
// over HTTP, including the websocket chat relay.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/wehubfusion/Daedalus/pkg/chat"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/notes"
	"github.com/wehubfusion/Daedalus/pkg/service"
	"github.com/wehubfusion/Daedalus/pkg/sources"
)

// Config holds HTTP server settings.
type Config struct {
	// AllowedOrigins lists origins permitted by the CORS middleware.
	AllowedOrigins []string
}

// ApplyDefaults fills zero fields with development defaults.
func (c *Config) ApplyDefaults() {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:3000", "http://frontend:3000"}
	}
}

// ContextProvider returns a grounding text block for a chat message, for
// example rows pulled from an operational database. Empty output means no
// block is added.
type ContextProvider func(ctx context.Context, query string) (string, error)

// Server wires the application services into an http.Handler.
type Server struct {
	config    Config
	service   *service.Service
	notes     *notes.Store
	sources   *sources.Store
	history   *chat.History
	ollama    *chat.Ollama
	fetcher   *chat.Fetcher
	dbContext ContextProvider
	logger    *zap.Logger
}

// NewServer creates a server over the given services. The notes, sources,
// history, and ollama dependencies are optional; their routes return 503 when
// absent.
func NewServer(config Config, svc *service.Service, logger *zap.Logger, opts ...Option) (*Server, error) {
	config.ApplyDefaults()
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{config: config, service: svc, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Option customizes the server.
type Option func(*Server)

// WithNotes installs the notes store.
func WithNotes(store *notes.Store) Option {
	return func(s *Server) { s.notes = store }
}

// WithSources installs the sources store.
func WithSources(store *sources.Store) Option {
	return func(s *Server) { s.sources = store }
}

// WithChat installs the chat history and model client.
func WithChat(history *chat.History, ollama *chat.Ollama) Option {
	return func(s *Server) {
		s.history = history
		s.ollama = ollama
	}
}

// WithFetcher installs the web-context fetcher used when a chat turn asks for
// source grounding.
func WithFetcher(fetcher *chat.Fetcher) Option {
	return func(s *Server) { s.fetcher = fetcher }
}

// WithContextProvider installs the database grounding lookup.
func WithContextProvider(provider ContextProvider) Option {
	return func(s *Server) { s.dbContext = provider }
}

// Handler builds the route table with recovery and CORS middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /nb/list", s.handleListDocuments)
	mux.HandleFunc("GET /nb/get", s.handleGetDocument)
	mux.HandleFunc("POST /nb/save", s.handleSaveDocument)
	mux.HandleFunc("POST /nb/run_all", s.handleRunAll)
	mux.HandleFunc("POST /nb/run_cell", s.handleRunCell)
	mux.HandleFunc("POST /nb/suggest", s.handleSuggest)

	mux.HandleFunc("GET /notes", s.handleListNotes)
	mux.HandleFunc("POST /notes", s.handleCreateNote)
	mux.HandleFunc("GET /notes/{id}", s.handleGetNote)
	mux.HandleFunc("PUT /notes/{id}", s.handleUpdateNote)
	mux.HandleFunc("DELETE /notes/{id}", s.handleDeleteNote)

	mux.HandleFunc("GET /sources", s.handleListSources)
	mux.HandleFunc("POST /sources", s.handleAddSources)
	mux.HandleFunc("DELETE /sources", s.handleClearSources)

	mux.HandleFunc("GET /chat/history", s.handleChatHistory)
	mux.HandleFunc("POST /chat/clear", s.handleChatClear)
	mux.HandleFunc("GET /ollama/health", s.handleOllamaHealth)
	mux.Handle("/ws/chat", websocket.Handler(s.handleChatSocket))

	return s.withRecovery(s.withCORS(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// withCORS allows the configured frontend origins.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.config.AllowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				break
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRecovery reports panics to Sentry and converts them to 500s.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				sentry.CaptureException(err)
				s.logger.Error("Recovered from handler panic",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]any{"detail": detail})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case sdkerrors.IsInvalidPath(err), sdkerrors.IsInvalidCellIndex(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case sdkerrors.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case sdkerrors.IsKernelStartup(err):
		sentry.CaptureException(err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
