// Package engine runs cell documents against isolated kernel sessions. Each
// call acquires one fresh session, runs the document's code cells in order
// with a whole-call time budget, and merges captured outputs back into a copy
// of the document. Per-cell errors never stop a run; an exhausted budget
// truncates it; unexpected faults are absorbed and reported out-of-band.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/kernel"
	"github.com/wehubfusion/Daedalus/pkg/notebook"
)

// FaultHandler receives faults that the engine absorbs instead of
// propagating, so callers can route them to an error tracker.
type FaultHandler func(ctx context.Context, err error)

// Engine executes documents session-per-call.
type Engine struct {
	provider     kernel.Provider
	logger       *zap.Logger
	faultHandler FaultHandler
}

// Option configures an Engine.
type Option func(*Engine)

// WithFaultHandler installs an out-of-band receiver for absorbed faults.
func WithFaultHandler(handler FaultHandler) Option {
	return func(e *Engine) { e.faultHandler = handler }
}

// NewEngine creates an execution engine backed by the given session provider.
func NewEngine(provider kernel.Provider, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("provider cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{provider: provider, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs every code cell of doc in one fresh session, in document
// order, within a single wall-clock budget covering the whole call.
//
// The returned document is a copy; doc itself is never mutated. Outputs of
// all code cells are replaced wholesale: executed cells get their captured
// records and session sequence number, cells beyond an exhausted budget keep
// empty outputs and no execution count (degraded success, nil error).
// Markdown cells pass through untouched.
//
// A session that cannot start surfaces ErrKernelStartup with doc returned
// as-is. Any other unexpected fault is absorbed: doc is returned unchanged
// and the fault goes to the logger and fault handler only.
func (e *Engine) Execute(ctx context.Context, doc *notebook.Document, budget time.Duration) (result *notebook.Document, err error) {
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	session, startErr := e.provider.Start(runCtx)
	if startErr != nil {
		e.logger.Error("Failed to start kernel session",
			zap.String("kernel", e.provider.Name()),
			zap.Error(startErr))
		return doc, fmt.Errorf("%w: %v", sdkerrors.ErrKernelStartup, startErr)
	}
	defer session.Close()

	// Absorb unexpected faults: the caller gets the original document and
	// the fault goes out-of-band.
	defer func() {
		if r := recover(); r != nil {
			e.reportFault(ctx, fmt.Errorf("panic during execution: %v", r))
			result = doc
			err = nil
		}
	}()

	executed := doc.Clone()
	clearCodeOutputs(executed)

	for i := range executed.Cells {
		cell := &executed.Cells[i]
		if !cell.IsCode() {
			continue
		}
		if runCtx.Err() != nil {
			// Budget exhausted: abandon the remaining cells, keep what ran.
			e.logger.Warn("Execution budget exhausted, truncating run",
				zap.Int("next_cell", i),
				zap.Duration("budget", budget))
			break
		}

		res, runErr := session.Run(runCtx, cell.Source)
		if runErr != nil {
			if errors.Is(runErr, kernel.ErrInterrupted) || runCtx.Err() != nil {
				e.logger.Warn("Cell interrupted by execution budget",
					zap.Int("cell", i),
					zap.Duration("budget", budget))
				break
			}
			e.reportFault(ctx, fmt.Errorf("session fault at cell %d: %w", i, runErr))
			return doc, nil
		}

		cell.Outputs = recordsToOutputs(res.Records, res.Sequence)
		count := res.Sequence
		cell.ExecutionCount = &count
	}

	return executed, nil
}

func (e *Engine) reportFault(ctx context.Context, err error) {
	e.logger.Error("Absorbed internal execution fault", zap.Error(err))
	if e.faultHandler != nil {
		e.faultHandler(ctx, err)
	}
}

// clearCodeOutputs resets outputs and execution counts of every code cell so
// unexecuted cells end a run demonstrably empty.
func clearCodeOutputs(doc *notebook.Document) {
	for i := range doc.Cells {
		if doc.Cells[i].IsCode() {
			doc.Cells[i].Outputs = []notebook.Output{}
			doc.Cells[i].ExecutionCount = nil
		}
	}
}

// recordsToOutputs converts kernel records into notebook outputs, preserving
// arrival order. Consecutive stream records on the same channel coalesce
// into one output the way an interactive frontend would render them.
func recordsToOutputs(records []kernel.Record, sequence int) []notebook.Output {
	outputs := []notebook.Output{}
	for _, record := range records {
		switch {
		case record.Stream != nil:
			last := len(outputs) - 1
			if last >= 0 && outputs[last].Type == notebook.OutputTypeStream && outputs[last].Name == record.Stream.Channel {
				outputs[last].Text += record.Stream.Text
				continue
			}
			outputs = append(outputs, notebook.NewStreamOutput(record.Stream.Channel, record.Stream.Text))

		case record.Error != nil:
			outputs = append(outputs, notebook.NewErrorOutput(
				record.Error.Name, record.Error.Message, record.Error.Traceback))

		case record.Display != nil:
			outputs = append(outputs, displayToOutput(record.Display, sequence))
		}
	}
	return outputs
}

func displayToOutput(display map[string]string, sequence int) notebook.Output {
	if text, ok := display["text/plain"]; ok && len(display) == 1 {
		return notebook.NewExecuteResult(text, sequence)
	}
	bundle := make(notebook.MimeBundle, len(display))
	for mime, value := range display {
		encoded, err := json.Marshal(value)
		if err != nil {
			continue
		}
		bundle[mime] = encoded
	}
	count := sequence
	return notebook.Output{
		Type:           notebook.OutputTypeExecuteResult,
		Data:           bundle,
		ExecutionCount: &count,
	}
}
