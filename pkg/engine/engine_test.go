package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/kernel"
	"github.com/wehubfusion/Daedalus/pkg/notebook"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedResult describes what the fake session does for one source.
type scriptedResult struct {
	records  []kernel.Record
	err      error
	block    bool // wait for the context, then report an interrupt
	panicRun bool
}

type fakeProvider struct {
	startErr error
	script   map[string]scriptedResult

	mu       sync.Mutex
	sessions []*fakeSession
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Start(ctx context.Context) (kernel.Session, error) {
	if p.startErr != nil {
		return nil, p.startErr
	}
	s := &fakeSession{script: p.script}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

func (p *fakeProvider) lastSession(t *testing.T) *fakeSession {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		t.Fatalf("no session was started")
	}
	return p.sessions[len(p.sessions)-1]
}

type fakeSession struct {
	script map[string]scriptedResult

	mu     sync.Mutex
	seq    int
	closed bool
	ran    []string
}

func (s *fakeSession) Run(ctx context.Context, source string) (*kernel.Result, error) {
	s.mu.Lock()
	s.ran = append(s.ran, source)
	s.mu.Unlock()

	sr := s.script[source]
	if sr.panicRun {
		panic("scripted session panic")
	}
	if sr.block {
		<-ctx.Done()
		return nil, kernel.ErrInterrupted
	}
	if sr.err != nil {
		return nil, sr.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return &kernel.Result{Records: sr.records, Sequence: s.seq}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func codeDocument(sources ...string) *notebook.Document {
	doc := notebook.NewDefault()
	doc.Cells = nil
	for _, source := range sources {
		doc.Cells = append(doc.Cells, notebook.Cell{Type: notebook.CellTypeCode, Source: source})
	}
	return doc
}

func newEngine(t *testing.T, provider kernel.Provider, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(provider, nil, opts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestExecuteContinuesPastCellError(t *testing.T) {
	provider := &fakeProvider{script: map[string]scriptedResult{
		"x = 1": {},
		"y = 2": {},
		"print(x + y + z)": {records: []kernel.Record{
			kernel.ErrorRecord("NameError", "name 'z' is not defined", []string{"trace line"}),
		}},
		"print('after')": {records: []kernel.Record{
			kernel.StreamRecord("stdout", "after\n"),
		}},
	}}
	e := newEngine(t, provider)

	doc := codeDocument("x = 1", "y = 2", "print(x + y + z)", "print('after')")
	result, err := e.Execute(context.Background(), doc, time.Minute)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	wantCounts := []int{1, 2, 3, 4}
	for i, want := range wantCounts {
		if result.Cells[i].ExecutionCount == nil || *result.Cells[i].ExecutionCount != want {
			t.Errorf("cell %d execution count = %v, want %d", i, result.Cells[i].ExecutionCount, want)
		}
	}

	for _, i := range []int{0, 1} {
		if len(result.Cells[i].Outputs) != 0 {
			t.Errorf("cell %d outputs = %+v, want empty", i, result.Cells[i].Outputs)
		}
	}

	errOut := result.Cells[2].Outputs
	if len(errOut) != 1 || errOut[0].Type != notebook.OutputTypeError {
		t.Fatalf("cell 2 outputs = %+v, want one error output", errOut)
	}
	if errOut[0].Ename != "NameError" || errOut[0].Evalue != "name 'z' is not defined" {
		t.Errorf("cell 2 error = %s: %s", errOut[0].Ename, errOut[0].Evalue)
	}

	after := result.Cells[3].Outputs
	if len(after) != 1 || after[0].Text != "after\n" {
		t.Errorf("cell 3 outputs = %+v, want stream %q", after, "after\n")
	}

	if !provider.lastSession(t).isClosed() {
		t.Errorf("session not torn down after run")
	}
}

func TestExecuteBudgetTruncatesRun(t *testing.T) {
	provider := &fakeProvider{script: map[string]scriptedResult{
		"fast": {records: []kernel.Record{kernel.StreamRecord("stdout", "ok\n")}},
		"slow": {block: true},
		"late": {records: []kernel.Record{kernel.StreamRecord("stdout", "never\n")}},
	}}
	e := newEngine(t, provider)

	doc := codeDocument("fast", "slow", "late")
	result, err := e.Execute(context.Background(), doc, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("budget exhaustion must not raise, got %v", err)
	}

	// Executed prefix keeps its outputs.
	if len(result.Cells[0].Outputs) != 1 || result.Cells[0].Outputs[0].Text != "ok\n" {
		t.Errorf("cell 0 outputs = %+v", result.Cells[0].Outputs)
	}

	// The in-flight cell and everything after it stay unexecuted.
	for _, i := range []int{1, 2} {
		if len(result.Cells[i].Outputs) != 0 {
			t.Errorf("cell %d outputs = %+v, want empty", i, result.Cells[i].Outputs)
		}
		if result.Cells[i].ExecutionCount != nil {
			t.Errorf("cell %d has execution count %d", i, *result.Cells[i].ExecutionCount)
		}
	}

	session := provider.lastSession(t)
	if !session.isClosed() {
		t.Errorf("session not torn down after timeout")
	}
	session.mu.Lock()
	ran := len(session.ran)
	session.mu.Unlock()
	if ran != 2 {
		t.Errorf("cells submitted = %d, want 2 (late cell abandoned)", ran)
	}
}

func TestExecuteStartupFailureReturnsOriginal(t *testing.T) {
	provider := &fakeProvider{startErr: errors.New("no runtime available")}
	e := newEngine(t, provider)

	doc := codeDocument("x = 1")
	before, _ := doc.Encode()

	result, err := e.Execute(context.Background(), doc, time.Minute)
	if !errors.Is(err, sdkerrors.ErrKernelStartup) {
		t.Fatalf("expected ErrKernelStartup, got %v", err)
	}
	if result != doc {
		t.Errorf("expected the original document back")
	}
	after, _ := doc.Encode()
	if string(before) != string(after) {
		t.Errorf("document mutated on startup failure")
	}
}

func TestExecuteAbsorbsSessionFault(t *testing.T) {
	var reported error
	provider := &fakeProvider{script: map[string]scriptedResult{
		"boom": {err: errors.New("wire torn")},
	}}
	e := newEngine(t, provider, WithFaultHandler(func(ctx context.Context, err error) {
		reported = err
	}))

	doc := codeDocument("boom")
	before, _ := doc.Encode()

	result, err := e.Execute(context.Background(), doc, time.Minute)
	if err != nil {
		t.Fatalf("fault must be absorbed, got %v", err)
	}
	if result != doc {
		t.Errorf("expected the original document back on fault")
	}
	after, _ := doc.Encode()
	if string(before) != string(after) {
		t.Errorf("document mutated on fault")
	}
	if reported == nil {
		t.Errorf("fault not reported out-of-band")
	}
	if !provider.lastSession(t).isClosed() {
		t.Errorf("session not torn down after fault")
	}
}

func TestExecuteAbsorbsPanic(t *testing.T) {
	var reported error
	provider := &fakeProvider{script: map[string]scriptedResult{
		"explode": {panicRun: true},
	}}
	e := newEngine(t, provider, WithFaultHandler(func(ctx context.Context, err error) {
		reported = err
	}))

	doc := codeDocument("explode")
	result, err := e.Execute(context.Background(), doc, time.Minute)
	if err != nil {
		t.Fatalf("panic must be absorbed, got %v", err)
	}
	if result != doc {
		t.Errorf("expected the original document back on panic")
	}
	if reported == nil {
		t.Errorf("panic not reported out-of-band")
	}
	if !provider.lastSession(t).isClosed() {
		t.Errorf("session not torn down after panic")
	}
}

func TestExecuteSkipsMarkdownCells(t *testing.T) {
	provider := &fakeProvider{script: map[string]scriptedResult{
		"x = 1": {},
	}}
	e := newEngine(t, provider)

	doc := codeDocument("x = 1")
	doc.Cells = append([]notebook.Cell{{Type: notebook.CellTypeMarkdown, Source: "# Title"}}, doc.Cells...)

	result, err := e.Execute(context.Background(), doc, time.Minute)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	md := result.Cells[0]
	if md.Outputs != nil || md.ExecutionCount != nil {
		t.Errorf("markdown cell received execution results: %+v", md)
	}
	session := provider.lastSession(t)
	session.mu.Lock()
	defer session.mu.Unlock()
	if len(session.ran) != 1 || session.ran[0] != "x = 1" {
		t.Errorf("submitted sources = %v", session.ran)
	}
}

func TestExecuteReplacesStaleOutputs(t *testing.T) {
	provider := &fakeProvider{script: map[string]scriptedResult{
		"x = 1": {records: []kernel.Record{kernel.StreamRecord("stdout", "fresh\n")}},
	}}
	e := newEngine(t, provider)

	doc := codeDocument("x = 1")
	stale := 9
	doc.Cells[0].Outputs = []notebook.Output{notebook.NewStreamOutput("stdout", "stale\n")}
	doc.Cells[0].ExecutionCount = &stale

	result, err := e.Execute(context.Background(), doc, time.Minute)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Cells[0].Outputs) != 1 || result.Cells[0].Outputs[0].Text != "fresh\n" {
		t.Errorf("outputs not replaced wholesale: %+v", result.Cells[0].Outputs)
	}
	// The input document is untouched.
	if doc.Cells[0].Outputs[0].Text != "stale\n" {
		t.Errorf("input document mutated")
	}
}

func TestStreamRecordsCoalesce(t *testing.T) {
	provider := &fakeProvider{script: map[string]scriptedResult{
		"chatty": {records: []kernel.Record{
			kernel.StreamRecord("stdout", "a\n"),
			kernel.StreamRecord("stdout", "b\n"),
			kernel.StreamRecord("stderr", "warn\n"),
			kernel.StreamRecord("stdout", "c\n"),
		}},
	}}
	e := newEngine(t, provider)

	result, err := e.Execute(context.Background(), codeDocument("chatty"), time.Minute)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	outputs := result.Cells[0].Outputs
	if len(outputs) != 3 {
		t.Fatalf("outputs = %+v, want 3 (stdout, stderr, stdout)", outputs)
	}
	if outputs[0].Text != "a\nb\n" {
		t.Errorf("adjacent stdout records not coalesced: %q", outputs[0].Text)
	}
	if outputs[1].Name != "stderr" || outputs[2].Text != "c\n" {
		t.Errorf("channel order not preserved: %+v", outputs)
	}
}
