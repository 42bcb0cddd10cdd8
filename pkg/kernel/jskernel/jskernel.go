// Package jskernel provides the in-process execution session provider: one
// sandboxed goja JavaScript runtime per session. Globals persist across
// fragments within a session and are discarded with it, which is exactly the
// state that prefix replay reconstructs.
package jskernel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/kernel"
)

// Provider creates sandboxed JavaScript sessions.
type Provider struct {
	config Config
	logger *zap.Logger
}

// NewProvider creates a JavaScript kernel provider. A nil logger disables
// logging.
func NewProvider(config Config, logger *zap.Logger) (*Provider, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{config: config, logger: logger}, nil
}

// Name identifies the runtime language.
func (p *Provider) Name() string { return "javascript" }

// Start builds a fresh sandboxed VM. The VM is owned exclusively by the
// returned session and is discarded on Close; nothing is pooled.
func (p *Provider) Start(ctx context.Context) (kernel.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vm := goja.New()
	s := &session{
		vm:     vm,
		config: p.config,
		logger: p.logger,
	}

	sandbox := NewSandbox(&p.config)
	if err := sandbox.Apply(vm); err != nil {
		return nil, fmt.Errorf("failed to sandbox session VM: %w", err)
	}
	if err := s.registerCapture(); err != nil {
		return nil, fmt.Errorf("failed to register output capture: %w", err)
	}

	p.logger.Debug("Started JavaScript session",
		zap.String("security_level", p.config.SecurityLevel))
	return s, nil
}

// session is one isolated VM plus its capture buffer and sequence counter.
type session struct {
	vm     *goja.Runtime
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	seq     int
	records []kernel.Record
}

// Run executes one fragment, collecting console output, a structured error
// if the fragment raised, and the completion value as a text/plain display
// record. Deadline expiry interrupts the VM and surfaces ErrInterrupted.
func (s *session) Run(ctx context.Context, source string) (*kernel.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is closed")
	}
	s.records = nil
	s.mu.Unlock()

	// Watchdog interrupts the VM when the caller's deadline expires.
	done := make(chan struct{})
	var interrupted bool
	var interruptMu sync.Mutex

	go func() {
		select {
		case <-ctx.Done():
			interruptMu.Lock()
			interrupted = true
			interruptMu.Unlock()
			s.vm.Interrupt("execution deadline exceeded")
		case <-done:
		}
	}()

	value, err := s.vm.RunString(source)
	close(done)

	interruptMu.Lock()
	wasInterrupted := interrupted
	interruptMu.Unlock()
	if wasInterrupted {
		s.vm.ClearInterrupt()
		return nil, kernel.ErrInterrupted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	result := &kernel.Result{Sequence: s.seq}
	result.Records = append(result.Records, s.records...)
	s.records = nil

	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return nil, kernel.ErrInterrupted
		}
		result.Records = append(result.Records, parseRunError(err))
		return result, nil
	}

	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		result.Records = append(result.Records,
			kernel.DisplayRecord(map[string]string{"text/plain": value.String()}))
	}
	return result, nil
}

// Close tears the VM down. An in-flight fragment is interrupted.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.vm.Interrupt("session closed")
	s.logger.Debug("Closed JavaScript session", zap.Int("fragments", s.seq))
	return nil
}

// registerCapture wires console.log/info and a print global to the stdout
// stream and console.error/warn to stderr. Arguments are space-joined the
// way Node's console does, with a trailing newline per call.
func (s *session) registerCapture() error {
	writeLine := func(channel string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			s.appendStream(channel, strings.Join(parts, " ")+"\n")
			return goja.Undefined()
		}
	}

	console := s.vm.NewObject()
	if err := console.Set("log", writeLine("stdout")); err != nil {
		return err
	}
	if err := console.Set("info", writeLine("stdout")); err != nil {
		return err
	}
	if err := console.Set("error", writeLine("stderr")); err != nil {
		return err
	}
	if err := console.Set("warn", writeLine("stderr")); err != nil {
		return err
	}
	if err := s.vm.Set("console", console); err != nil {
		return err
	}
	return s.vm.Set("print", writeLine("stdout"))
}

func (s *session) appendStream(channel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	streamCount := 0
	for _, r := range s.records {
		if r.Stream != nil {
			streamCount++
		}
	}
	if streamCount >= s.config.MaxStreamRecords {
		return
	}
	s.records = append(s.records, kernel.StreamRecord(channel, text))
}
