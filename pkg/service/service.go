// Package service implements the document operations exposed over the HTTP
// and queue surfaces: listing, loading, saving, and executing cell documents.
// It owns cross-cutting policy the lower layers deliberately avoid: per-path
// write serialization, session capping, execution budgets, and tracing.
package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/notebook"
	"github.com/wehubfusion/Daedalus/pkg/store"
)

// Config holds the service's execution budgets.
type Config struct {
	// RunAllBudget bounds a whole-document run. On expiry the run is
	// truncated, not failed.
	RunAllBudget time.Duration
	// RunCellBudget bounds a single-cell replay run.
	RunCellBudget time.Duration
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.RunAllBudget == 0 {
		c.RunAllBudget = 120 * time.Second
	}
	if c.RunCellBudget == 0 {
		c.RunCellBudget = 90 * time.Second
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.RunAllBudget < 0 {
		return fmt.Errorf("run all budget cannot be negative")
	}
	if c.RunCellBudget < 0 {
		return fmt.Errorf("run cell budget cannot be negative")
	}
	return nil
}

// SuggestInput carries the cell context handed to a suggestion backend.
type SuggestInput struct {
	Source     string
	OutputText string
	Mode       string
}

// Suggester produces an improvement or diagnosis for a single cell. Backed by
// the chat package's model client in production.
type Suggester interface {
	Suggest(ctx context.Context, input SuggestInput) (string, error)
}

// Service coordinates the resolver, store, and engine behind the public
// document operations.
type Service struct {
	config    Config
	resolver  *store.Resolver
	store     store.Store
	engine    *engine.Engine
	suggester Suggester
	locker    *concurrency.KeyedLocker
	limiter   *concurrency.Limiter
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Option customizes the service.
type Option func(*Service)

// WithSuggester installs the cell suggestion backend.
func WithSuggester(s Suggester) Option {
	return func(svc *Service) { svc.suggester = s }
}

// WithLimiter caps concurrent kernel sessions across all operations.
func WithLimiter(l *concurrency.Limiter) Option {
	return func(svc *Service) { svc.limiter = l }
}

// NewService creates a service over the given resolver, store, and engine.
func NewService(config Config, resolver *store.Resolver, st store.Store, eng *engine.Engine, logger *zap.Logger, opts ...Option) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &Service{
		config:   config,
		resolver: resolver,
		store:    st,
		engine:   eng,
		locker:   concurrency.NewKeyedLocker(),
		limiter:  concurrency.NewLimiter(concurrency.LoadConfig().MaxSessions),
		logger:   logger,
		tracer:   otel.Tracer("daedalus/service"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ListDocuments returns the canonical relative paths of all stored documents.
func (s *Service) ListDocuments(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListDocuments")
	defer span.End()

	paths, err := s.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("documents.count", len(paths)))
	return paths, nil
}

// GetDocument loads the document at path, creating it with default content
// when absent.
func (s *Service) GetDocument(ctx context.Context, path string) (*notebook.Document, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetDocument",
		trace.WithAttributes(attribute.String("document.path", path)))
	defer span.End()

	rel, err := s.resolve(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc, err := s.store.Read(ctx, rel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return doc, nil
}

// SaveDocument validates raw document content and persists it at path,
// replacing any previous version.
func (s *Service) SaveDocument(ctx context.Context, path string, raw []byte) error {
	ctx, span := s.tracer.Start(ctx, "service.SaveDocument",
		trace.WithAttributes(
			attribute.String("document.path", path),
			attribute.Int("document.size_bytes", len(raw)),
		))
	defer span.End()

	rel, err := s.resolve(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := notebook.ValidateShape(raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	doc, err := notebook.Parse(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.locker.Do(ctx, rel, func() error {
		return s.store.Write(ctx, rel, doc)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.logger.Info("Saved document",
		zap.String("path", rel),
		zap.Int("cells", len(doc.Cells)))
	return nil
}

// RunAll executes every code cell of the document at path in a fresh session
// and persists the result. A run that exhausts its budget is truncated and
// still persisted, not failed.
func (s *Service) RunAll(ctx context.Context, path string) (*notebook.Document, error) {
	ctx, span := s.tracer.Start(ctx, "service.RunAll",
		trace.WithAttributes(attribute.String("document.path", path)))
	defer span.End()

	rel, err := s.resolve(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var executed *notebook.Document
	err = s.locker.Do(ctx, rel, func() error {
		doc, rerr := s.store.Read(ctx, rel)
		if rerr != nil {
			return rerr
		}

		start := time.Now()
		lerr := s.limiter.Do(ctx, func() error {
			var execErr error
			executed, execErr = s.engine.Execute(ctx, doc, s.config.RunAllBudget)
			return execErr
		})
		if lerr != nil {
			return lerr
		}
		span.SetAttributes(attribute.Int64("execution.duration_ms", time.Since(start).Milliseconds()))

		return s.store.Write(ctx, rel, executed)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "Document executed")
	s.logger.Info("Executed document",
		zap.String("path", rel),
		zap.Int("cells", len(executed.Cells)))
	return executed, nil
}

// RunCell replays cells 0 through index of the document at path in a fresh
// session, merges the target cell's results into the stored document, and
// persists it. Only the target cell's stored outputs change.
func (s *Service) RunCell(ctx context.Context, path string, index int) (*notebook.Document, *notebook.Cell, error) {
	ctx, span := s.tracer.Start(ctx, "service.RunCell",
		trace.WithAttributes(
			attribute.String("document.path", path),
			attribute.Int("cell.index", index),
		))
	defer span.End()

	rel, err := s.resolve(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	var merged *notebook.Document
	var cell *notebook.Cell
	err = s.locker.Do(ctx, rel, func() error {
		doc, rerr := s.store.Read(ctx, rel)
		if rerr != nil {
			return rerr
		}

		lerr := s.limiter.Do(ctx, func() error {
			var execErr error
			merged, cell, execErr = s.engine.RunSingleCell(ctx, doc, index, s.config.RunCellBudget)
			return execErr
		})
		if lerr != nil {
			return lerr
		}

		return s.store.Write(ctx, rel, merged)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	span.SetStatus(codes.Ok, "Cell executed")
	return merged, cell, nil
}

// SuggestCell asks the suggestion backend about the cell at index, handing it
// the cell source and a plain-text rendering of its stored outputs. Mode
// selects the flavor (for example "debug" or "improve").
func (s *Service) SuggestCell(ctx context.Context, path string, index int, mode string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "service.SuggestCell",
		trace.WithAttributes(
			attribute.String("document.path", path),
			attribute.Int("cell.index", index),
			attribute.String("suggest.mode", mode),
		))
	defer span.End()

	if s.suggester == nil {
		return "", fmt.Errorf("no suggestion backend configured")
	}

	doc, err := s.GetDocument(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if index < 0 || index >= len(doc.Cells) {
		err := fmt.Errorf("%w: index %d out of range for %d cells", sdkerrors.ErrInvalidCellIndex, index, len(doc.Cells))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	target := doc.Cells[index]
	suggestion, err := s.suggester.Suggest(ctx, SuggestInput{
		Source:     target.Source,
		OutputText: notebook.OutputsToText(target.Outputs),
		Mode:       mode,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return suggestion, nil
}

// resolve sandboxes path and converts it to the canonical relative form used
// as the store key and lock key.
func (s *Service) resolve(path string) (string, error) {
	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	return s.resolver.Rel(abs)
}
