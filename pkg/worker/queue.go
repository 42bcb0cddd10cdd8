package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/client"
)

// Job is one queued run request awaiting acknowledgement.
type Job struct {
	Data []byte
	ack  func() error
	nak  func() error
}

// NewJob builds a job with explicit ack and nak callbacks. Used by queue
// implementations and tests.
func NewJob(data []byte, ack, nak func() error) *Job {
	return &Job{Data: data, ack: ack, nak: nak}
}

// Ack marks the job as handled; it will not be redelivered.
func (j *Job) Ack() error {
	if j.ack == nil {
		return nil
	}
	return j.ack()
}

// Nak returns the job to the queue for redelivery.
func (j *Job) Nak() error {
	if j.nak == nil {
		return nil
	}
	return j.nak()
}

// Queue abstracts the run-request consumer and result publisher so the worker
// can be exercised without a live server.
type Queue interface {
	// Pull fetches up to batch jobs, returning an empty slice when none are
	// ready.
	Pull(ctx context.Context, batch int) ([]*Job, error)
	// PublishResult publishes an encoded run result.
	PublishResult(ctx context.Context, data []byte) error
}

// NATSQueue implements Queue over a JetStream pull subscription.
type NATSQueue struct {
	js            nats.JetStreamContext
	sub           *nats.Subscription
	resultSubject string
	logger        *zap.Logger
}

// NewNATSQueue binds a durable pull consumer for run requests on the given
// stream and prepares the result stream, creating both when absent.
func NewNATSQueue(c *client.Client, stream, consumer string, logger *zap.Logger) (*NATSQueue, error) {
	if c == nil {
		return nil, errors.New("client cannot be nil")
	}
	if stream == "" || consumer == "" {
		return nil, errors.New("stream and consumer names are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	js := c.JetStream()
	if js == nil {
		return nil, errors.New("JetStream context is not available")
	}

	config := c.Config()
	if err := ensureStream(js, stream, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure stream '%s' exists: %w", stream, err)
	}
	if err := ensureStream(js, config.ResultStream, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure result stream '%s' exists: %w", config.ResultStream, err)
	}

	sub, err := js.PullSubscribe(
		fmt.Sprintf("%s.request", stream),
		consumer,
		nats.MaxDeliver(config.MaxDeliver),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull subscription: %w", err)
	}

	return &NATSQueue{
		js:            js,
		sub:           sub,
		resultSubject: config.ResultSubject,
		logger:        logger,
	}, nil
}

// Pull fetches up to batch jobs. A fetch timeout yields an empty slice.
func (q *NATSQueue) Pull(ctx context.Context, batch int) ([]*Job, error) {
	msgs, err := q.sub.Fetch(batch, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}

	jobs := make([]*Job, 0, len(msgs))
	for _, msg := range msgs {
		msg := msg
		jobs = append(jobs, NewJob(msg.Data,
			func() error { return msg.Ack() },
			func() error { return msg.Nak() },
		))
	}
	return jobs, nil
}

// PublishResult publishes data on the configured result subject.
func (q *NATSQueue) PublishResult(ctx context.Context, data []byte) error {
	_, err := q.js.Publish(q.resultSubject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	return nil
}

// ensureStream creates the stream if it doesn't exist yet.
func ensureStream(js nats.JetStreamContext, streamName string, logger *zap.Logger) error {
	info, err := js.StreamInfo(streamName)
	if err == nil {
		logger.Info("JetStream stream already exists",
			zap.String("stream", streamName),
			zap.Uint64("messages", info.State.Msgs),
			zap.Int("consumers", info.State.Consumers))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamName, err)
	}

	logger.Info("Creating JetStream stream", zap.String("stream", streamName))
	config := &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{fmt.Sprintf("%s.*", streamName)},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	}
	if _, err := js.AddStream(config); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", streamName, err)
	}
	logger.Info("Successfully created JetStream stream",
		zap.String("stream", streamName),
		zap.Strings("subjects", config.Subjects))
	return nil
}
