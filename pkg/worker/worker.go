// Package worker consumes queued run requests and executes them through the
// service layer. It pulls requests in batches, fans them out to a worker
// pool, and publishes a result per request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/notebook"
	"github.com/wehubfusion/Daedalus/pkg/service"
)

// Operation names accepted in run requests.
const (
	OpRunAll  = "run_all"
	OpRunCell = "run_cell"
)

// RunRequest is a queued execution request.
type RunRequest struct {
	RequestID string `json:"request_id"`
	Path      string `json:"path"`
	Operation string `json:"operation"`
	CellIndex int    `json:"cell_index,omitempty"`
}

// RunResult is the published outcome of a run request.
type RunResult struct {
	RequestID string          `json:"request_id"`
	Path      string          `json:"path"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
}

// Worker pulls run requests from a queue and executes them concurrently.
// Requests for the same document are still serialized by the service's
// per-path lock, so a larger pool only parallelizes distinct documents.
type Worker struct {
	queue          Queue
	service        *service.Service
	batchSize      int
	numWorkers     int
	processTimeout time.Duration
	breaker        *concurrency.CircuitBreaker
	logger         *zap.Logger
	tracer         trace.Tracer
}

// NewWorker creates a worker over the given queue and service.
func NewWorker(queue Queue, svc *service.Service, batchSize, numWorkers int, processTimeout time.Duration, logger *zap.Logger) (*Worker, error) {
	if queue == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if svc == nil {
		return nil, errors.New("service cannot be nil")
	}
	if batchSize <= 0 {
		return nil, errors.New("batchSize must be greater than 0")
	}
	if numWorkers <= 0 {
		return nil, errors.New("numWorkers must be greater than 0")
	}
	if processTimeout <= 0 {
		return nil, errors.New("processTimeout must be greater than 0")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Worker{
		queue:          queue,
		service:        svc,
		batchSize:      batchSize,
		numWorkers:     numWorkers,
		processTimeout: processTimeout,
		breaker:        concurrency.NewCircuitBreaker(10, 30*time.Second),
		logger:         logger,
		tracer:         otel.Tracer("daedalus/worker"),
	}, nil
}

// Run starts the pull loop and worker pool. It blocks until the context is
// cancelled and all workers have drained.
func (w *Worker) Run(ctx context.Context) error {
	jobChan := make(chan *Job, w.batchSize)

	var wg sync.WaitGroup
	for i := 0; i < w.numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.worker(ctx, workerID, jobChan)
		}(i)
	}

	go func() {
		defer close(jobChan)

		backoffDelay := 100 * time.Millisecond
		maxBackoff := 5 * time.Second

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Shutting down request puller")
				return
			default:
				jobs, err := w.queue.Pull(ctx, w.batchSize)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					w.logger.Error("Error pulling run requests", zap.Error(err))
					time.Sleep(backoffDelay)
					if backoffDelay < maxBackoff {
						backoffDelay *= 2
					}
					continue
				}

				if len(jobs) == 0 {
					select {
					case <-time.After(500 * time.Millisecond):
					case <-ctx.Done():
						return
					}
					continue
				}
				backoffDelay = 100 * time.Millisecond

				for _, job := range jobs {
					select {
					case jobChan <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		w.logger.Info("Worker completed")
		return nil
	case <-ctx.Done():
		wg.Wait()
		w.logger.Info("Worker stopped due to context cancellation")
		return ctx.Err()
	}
}

func (w *Worker) worker(ctx context.Context, workerID int, jobChan <-chan *Job) {
	w.logger.Info("Worker started", zap.Int("workerID", workerID))
	defer w.logger.Info("Worker stopped", zap.Int("workerID", workerID))

	for {
		select {
		case job, ok := <-jobChan:
			if !ok {
				return
			}
			w.processJob(ctx, workerID, job)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) processJob(ctx context.Context, workerID int, job *Job) {
	var req RunRequest
	if err := json.Unmarshal(job.Data, &req); err != nil {
		// A malformed request can never succeed; drop it with an error result.
		w.logger.Error("Dropping malformed run request",
			zap.Int("workerID", workerID),
			zap.Error(err))
		w.publishResult(RunResult{OK: false, Error: "malformed run request: " + err.Error()})
		w.finish(job.Ack, workerID)
		return
	}

	ctx, span := w.tracer.Start(ctx, "worker.processJob",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("request.id", req.RequestID),
			attribute.String("request.path", req.Path),
			attribute.String("request.operation", req.Operation),
		))
	defer span.End()

	if w.breaker.IsOpen() {
		// Kernel startup is broken; let the request be redelivered later.
		span.SetStatus(codes.Error, "circuit breaker open")
		w.finish(job.Nak, workerID)
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, w.processTimeout)
	defer cancel()

	start := time.Now()
	w.logger.Info("Processing run request",
		zap.Int("workerID", workerID),
		zap.String("requestID", req.RequestID),
		zap.String("path", req.Path),
		zap.String("operation", req.Operation))

	result, execErr := w.execute(processCtx, req)
	span.SetAttributes(attribute.Int64("processing.duration_ms", time.Since(start).Milliseconds()))

	// Kernel startup failures are transient: nak for redelivery and feed the
	// breaker. Everything else is deterministic and becomes a result.
	if execErr != nil && errors.Is(execErr, sdkerrors.ErrKernelStartup) {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		w.breaker.RecordFailure()
		w.finish(job.Nak, workerID)
		return
	}

	if result.OK {
		span.SetStatus(codes.Ok, "Run request processed")
		w.breaker.RecordSuccess()
	} else {
		span.SetStatus(codes.Error, result.Error)
	}

	w.publishResult(result)
	w.finish(job.Ack, workerID)
}

// execute runs the requested operation and converts the outcome to a result.
// Business failures (bad path, bad index, corrupt document) become error
// results, not redeliveries; the raw error is also returned so the caller can
// classify it.
func (w *Worker) execute(ctx context.Context, req RunRequest) (RunResult, error) {
	result := RunResult{RequestID: req.RequestID, Path: req.Path}

	var document *notebook.Document
	var err error
	switch req.Operation {
	case OpRunAll:
		document, err = w.service.RunAll(ctx, req.Path)
	case OpRunCell:
		document, _, err = w.service.RunCell(ctx, req.Path, req.CellIndex)
	default:
		result.Error = "unknown operation: " + req.Operation
		return result, nil
	}
	if err == nil {
		result.Document, err = document.Encode()
	}

	if err != nil {
		result.Error = err.Error()
		result.Document = nil
		return result, err
	}
	result.OK = true
	return result, nil
}

func (w *Worker) publishResult(result RunResult) {
	data, err := json.Marshal(result)
	if err != nil {
		w.logger.Error("Failed to encode run result", zap.Error(err))
		return
	}

	// Publish with a fresh timeout so results still go out during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.PublishResult(ctx, data); err != nil {
		w.logger.Error("Failed to publish run result",
			zap.String("requestID", result.RequestID),
			zap.Error(err))
	}
}

func (w *Worker) finish(ackOrNak func() error, workerID int) {
	if err := ackOrNak(); err != nil {
		w.logger.Error("Failed to acknowledge job",
			zap.Int("workerID", workerID),
			zap.Error(err))
	}
}
