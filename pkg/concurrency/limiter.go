// Package concurrency bounds and serializes kernel work: a Limiter caps how
// many sessions run at once, a KeyedLocker serializes mutations per document
// path, and a CircuitBreaker sheds load when kernel startup keeps failing.
package concurrency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks limiter performance counters.
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
	mu              sync.RWMutex
}

// Limiter is a semaphore that caps concurrent kernel sessions. Each document
// run holds one slot for its whole duration, so the cap bounds both goroutines
// and live JS runtimes.
type Limiter struct {
	sem     chan struct{}
	active  int64
	metrics *Metrics
	breaker *CircuitBreaker
}

// NewLimiter creates a limiter allowing at most maxSessions concurrent runs.
func NewLimiter(maxSessions int) *Limiter {
	return NewLimiterWithBreaker(maxSessions, NewCircuitBreaker(100, 30*time.Second))
}

// NewLimiterWithBreaker creates a limiter with a custom circuit breaker.
func NewLimiterWithBreaker(maxSessions int, cb *CircuitBreaker) *Limiter {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Limiter{
		sem:     make(chan struct{}, maxSessions),
		metrics: &Metrics{},
		breaker: cb,
	}
}

// Acquire blocks until a session slot is free, the context ends, or the
// circuit breaker is open.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.breaker.IsOpen() {
		return fmt.Errorf("circuit breaker is open")
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		atomic.AddInt64(&l.metrics.TotalWaitTimeNs, time.Since(start).Nanoseconds())
		atomic.AddInt64(&l.metrics.TotalAcquired, 1)
		l.updatePeak(atomic.AddInt64(&l.active, 1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		atomic.AddInt64(&l.active, -1)
		atomic.AddInt64(&l.metrics.TotalReleased, 1)
	default:
	}
}

// Do runs fn while holding a slot and feeds the outcome to the breaker.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	if err := fn(); err != nil {
		l.breaker.RecordFailure()
		return err
	}
	l.breaker.RecordSuccess()
	return nil
}

// CurrentActive returns the number of slots currently held.
func (l *Limiter) CurrentActive() int64 {
	return atomic.LoadInt64(&l.active)
}

// GetMetrics returns a copy of the current counters.
func (l *Limiter) GetMetrics() Metrics {
	l.metrics.mu.RLock()
	defer l.metrics.mu.RUnlock()
	return Metrics{
		TotalAcquired:   atomic.LoadInt64(&l.metrics.TotalAcquired),
		TotalReleased:   atomic.LoadInt64(&l.metrics.TotalReleased),
		PeakConcurrent:  atomic.LoadInt64(&l.metrics.PeakConcurrent),
		TotalWaitTimeNs: atomic.LoadInt64(&l.metrics.TotalWaitTimeNs),
	}
}

// AverageWaitTime reports the mean time spent waiting for a slot.
func (l *Limiter) AverageWaitTime() time.Duration {
	m := l.GetMetrics()
	if m.TotalAcquired == 0 {
		return 0
	}
	return time.Duration(m.TotalWaitTimeNs / m.TotalAcquired)
}

// Breaker exposes the limiter's circuit breaker.
func (l *Limiter) Breaker() *CircuitBreaker { return l.breaker }

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.metrics.PeakConcurrent)
		if current <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&l.metrics.PeakConcurrent, peak, current) {
			return
		}
	}
}
