package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/kernel"
	"github.com/wehubfusion/Daedalus/pkg/kernel/jskernel"
	"github.com/wehubfusion/Daedalus/pkg/notebook"
)

func TestRunSingleCellInvalidIndex(t *testing.T) {
	provider := &fakeProvider{}
	e := newEngine(t, provider)

	doc := codeDocument("x = 1", "x + 1")
	before, _ := doc.Encode()

	for _, index := range []int{-1, 2, 10} {
		_, _, err := e.RunSingleCell(context.Background(), doc, index, time.Minute)
		if !errors.Is(err, sdkerrors.ErrInvalidCellIndex) {
			t.Errorf("index %d: expected ErrInvalidCellIndex, got %v", index, err)
		}
	}

	after, _ := doc.Encode()
	if string(before) != string(after) {
		t.Errorf("document changed by rejected call")
	}
	// Validation fails fast: no session may be started.
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.sessions) != 0 {
		t.Errorf("session started despite invalid index")
	}
}

func TestRunSingleCellReplaysPrefixOnly(t *testing.T) {
	provider := &fakeProvider{script: map[string]scriptedResult{
		"a": {},
		"b": {records: []kernel.Record{kernel.StreamRecord("stdout", "b ran\n")}},
		"c": {records: []kernel.Record{kernel.StreamRecord("stdout", "c ran\n")}},
	}}
	e := newEngine(t, provider)

	doc := codeDocument("a", "b", "c")
	doc.Cells[0].Outputs = []notebook.Output{notebook.NewStreamOutput("stdout", "stored a\n")}
	doc.Cells[2].Outputs = []notebook.Output{notebook.NewStreamOutput("stdout", "stored c\n")}

	merged, cell, err := e.RunSingleCell(context.Background(), doc, 1, time.Minute)
	if err != nil {
		t.Fatalf("RunSingleCell failed: %v", err)
	}

	// Only the prefix was submitted, in order.
	session := provider.lastSession(t)
	session.mu.Lock()
	ran := append([]string(nil), session.ran...)
	session.mu.Unlock()
	if len(ran) != 2 || ran[0] != "a" || ran[1] != "b" {
		t.Errorf("submitted sources = %v, want [a b]", ran)
	}

	// Target cell carries the fresh result.
	if len(cell.Outputs) != 1 || cell.Outputs[0].Text != "b ran\n" {
		t.Errorf("target cell outputs = %+v", cell.Outputs)
	}
	if cell.ExecutionCount == nil || *cell.ExecutionCount != 2 {
		t.Errorf("target cell execution count = %v, want 2", cell.ExecutionCount)
	}

	// Other cells keep their previously stored outputs, untouched.
	if merged.Cells[0].Outputs[0].Text != "stored a\n" {
		t.Errorf("cell 0 stored outputs disturbed: %+v", merged.Cells[0].Outputs)
	}
	if merged.Cells[2].Outputs[0].Text != "stored c\n" {
		t.Errorf("cell 2 stored outputs disturbed: %+v", merged.Cells[2].Outputs)
	}
}

func TestRunSingleCellStartupFailure(t *testing.T) {
	provider := &fakeProvider{startErr: errors.New("no runtime")}
	e := newEngine(t, provider)

	doc := codeDocument("x = 1")
	_, _, err := e.RunSingleCell(context.Background(), doc, 0, time.Minute)
	if !errors.Is(err, sdkerrors.ErrKernelStartup) {
		t.Fatalf("expected ErrKernelStartup, got %v", err)
	}
}

// Replay correctness against the real JavaScript kernel: running cell i alone
// must reproduce the output a full run gives that cell.
func TestReplayMatchesFullRun(t *testing.T) {
	provider, err := jskernel.NewProvider(jskernel.Config{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	e := newEngine(t, provider)

	doc := codeDocument(
		"var a = 40",
		"var b = a + 2",
		"console.log('value:', b)",
	)

	full, err := e.Execute(context.Background(), doc, time.Minute)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	_, cell, err := e.RunSingleCell(context.Background(), doc, 2, time.Minute)
	if err != nil {
		t.Fatalf("RunSingleCell failed: %v", err)
	}

	wantOutputs := full.Cells[2].Outputs
	if len(cell.Outputs) != len(wantOutputs) {
		t.Fatalf("replay outputs = %+v, full-run outputs = %+v", cell.Outputs, wantOutputs)
	}
	for i := range wantOutputs {
		if cell.Outputs[i].Text != wantOutputs[i].Text || cell.Outputs[i].Name != wantOutputs[i].Name {
			t.Errorf("replay output %d = %+v, want %+v", i, cell.Outputs[i], wantOutputs[i])
		}
	}
	if cell.Outputs[0].Text != "value: 42\n" {
		t.Errorf("replayed output = %q, want %q", cell.Outputs[0].Text, "value: 42\n")
	}
}
