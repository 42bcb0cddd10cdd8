package notebook

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

func TestParseRoundTrip(t *testing.T) {
	raw := `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": "# Title"},
  {
   "cell_type": "code",
   "execution_count": 2,
   "metadata": {},
   "outputs": [
    {"output_type": "stream", "name": "stdout", "text": ["a\n", "b\n"]},
    {"output_type": "error", "ename": "ReferenceError", "evalue": "z is not defined", "traceback": ["line1"]},
    {"output_type": "execute_result", "data": {"text/plain": "42"}, "execution_count": 2}
   ],
   "source": ["x = 1\n", "x"]
  }
 ],
 "metadata": {"kernelspec": {"name": "javascript"}},
 "nbformat": 4,
 "nbformat_minor": 5
}`

	doc, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(doc.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(doc.Cells))
	}
	if doc.Cells[0].Type != CellTypeMarkdown || doc.Cells[0].Source != "# Title" {
		t.Errorf("unexpected markdown cell: %+v", doc.Cells[0])
	}

	code := doc.Cells[1]
	if code.Source != "x = 1\nx" {
		t.Errorf("list source not joined: %q", code.Source)
	}
	if code.ExecutionCount == nil || *code.ExecutionCount != 2 {
		t.Errorf("execution count not preserved: %v", code.ExecutionCount)
	}
	if len(code.Outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(code.Outputs))
	}
	if code.Outputs[0].Text != "a\nb\n" {
		t.Errorf("stream text not joined: %q", code.Outputs[0].Text)
	}
	if code.Outputs[1].Ename != "ReferenceError" {
		t.Errorf("error output not parsed: %+v", code.Outputs[1])
	}
	if text, ok := code.Outputs[2].Data.PlainText(); !ok || text != "42" {
		t.Errorf("execute_result text/plain = %q, ok=%v", text, ok)
	}

	// Re-encoding and re-parsing must yield the same document.
	encoded, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	again, err := Parse(encoded)
	if err != nil {
		t.Fatalf("re-Parse failed: %v", err)
	}
	if !Equal(doc, again) {
		t.Errorf("document changed across encode/parse cycle")
	}
}

func TestParseCorrupt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not a notebook"},
		{"missing cells", `{"metadata": {}}`},
		{"cells not a list", `{"cells": 5}`},
		{"cell without type", `{"cells": [{"source": "x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); !errors.Is(err, sdkerrors.ErrCorruptDocument) {
				t.Errorf("expected ErrCorruptDocument, got %v", err)
			}
		})
	}
}

func TestMarshalCellShapes(t *testing.T) {
	count := 3
	code := Cell{Type: CellTypeCode, Source: "x", ExecutionCount: &count}
	data, err := json.Marshal(code)
	if err != nil {
		t.Fatalf("marshal code cell: %v", err)
	}
	for _, key := range []string{`"outputs"`, `"execution_count"`, `"metadata"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("code cell missing %s: %s", key, data)
		}
	}

	md := Cell{Type: CellTypeMarkdown, Source: "# hi"}
	data, err = json.Marshal(md)
	if err != nil {
		t.Fatalf("marshal markdown cell: %v", err)
	}
	for _, key := range []string{`"outputs"`, `"execution_count"`} {
		if strings.Contains(string(data), key) {
			t.Errorf("markdown cell must not carry %s: %s", key, data)
		}
	}
}

func TestNewDefault(t *testing.T) {
	doc := NewDefault()
	if len(doc.Cells) != 1 {
		t.Fatalf("expected one cell, got %d", len(doc.Cells))
	}
	if doc.Cells[0].Type != CellTypeMarkdown {
		t.Errorf("default cell should be markdown, got %s", doc.Cells[0].Type)
	}
	if doc.NBFormat != 4 {
		t.Errorf("nbformat = %d", doc.NBFormat)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(doc.Metadata, &meta); err != nil {
		t.Errorf("default metadata is not valid JSON: %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	count := 1
	doc := &Document{
		Cells: []Cell{
			{
				Type:           CellTypeCode,
				Source:         "x = 1",
				Outputs:        []Output{NewStreamOutput(StreamStdout, "hi\n")},
				ExecutionCount: &count,
			},
		},
		Metadata: json.RawMessage(`{}`),
		NBFormat: 4,
	}

	clone := doc.Clone()
	clone.Cells[0].Outputs[0].Text = "changed"
	clone.Cells[0].Source = "changed"
	*clone.Cells[0].ExecutionCount = 99

	if doc.Cells[0].Outputs[0].Text != "hi\n" {
		t.Errorf("clone shares output storage with original")
	}
	if *doc.Cells[0].ExecutionCount != 1 {
		t.Errorf("clone shares execution count with original")
	}
}
