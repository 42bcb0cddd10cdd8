// Package notebook defines the persisted cell-document model: an ordered
// sequence of code and markdown cells carrying captured outputs, serialized
// in the Jupyter nbformat v4 JSON shape so files stay editable by external
// tools that understand the same format.
package notebook

import (
	"encoding/json"
	"fmt"
)

// Cell types
const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
)

// Output types
const (
	OutputTypeStream        = "stream"
	OutputTypeError         = "error"
	OutputTypeDisplayData   = "display_data"
	OutputTypeExecuteResult = "execute_result"
)

// Stream channels
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Document is an ordered sequence of cells plus opaque notebook metadata.
// Metadata (kernelspec, language tags) is carried verbatim across every
// operation; only cell outputs and execution counts are touched by execution.
type Document struct {
	Cells         []Cell          `json:"cells"`
	Metadata      json.RawMessage `json:"metadata"`
	NBFormat      int             `json:"nbformat"`
	NBFormatMinor int             `json:"nbformat_minor"`
}

// Cell is a unit of source text tagged as code or markdown. Code cells carry
// zero or more output records and an optional execution count; markdown cells
// never do.
type Cell struct {
	Type           string
	Source         string
	Metadata       json.RawMessage
	Outputs        []Output
	ExecutionCount *int
}

// Output is one captured result of running a code cell: stream text, a
// structured error, or a rich display value keyed by mime type.
type Output struct {
	Type string

	// Stream fields
	Name string
	Text string

	// Error fields
	Ename     string
	Evalue    string
	Traceback []string

	// Display fields
	Data           MimeBundle
	ExecutionCount *int
}

// MimeBundle maps mime types to their representations. Representations are
// kept as raw JSON; text-flavored values may be a string or a list of string
// fragments on the wire.
type MimeBundle map[string]json.RawMessage

// DefaultMetadata is the metadata assigned to documents synthesized on first
// read, describing the in-process JavaScript kernel.
var DefaultMetadata = json.RawMessage(`{"kernelspec":{"display_name":"JavaScript (goja)","language":"javascript","name":"javascript"},"language_info":{"name":"javascript"}}`)

// NewDefault returns the document created the first time a path is read and
// no file exists yet: a single markdown cell and default metadata.
func NewDefault() *Document {
	return &Document{
		Cells: []Cell{
			{Type: CellTypeMarkdown, Source: "# New notebook"},
		},
		Metadata:      append(json.RawMessage(nil), DefaultMetadata...),
		NBFormat:      4,
		NBFormatMinor: 5,
	}
}

// IsCode reports whether the cell is a code cell.
func (c *Cell) IsCode() bool {
	return c.Type == CellTypeCode
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	clone := &Document{
		Metadata:      append(json.RawMessage(nil), d.Metadata...),
		NBFormat:      d.NBFormat,
		NBFormatMinor: d.NBFormatMinor,
	}
	if d.Cells != nil {
		clone.Cells = make([]Cell, len(d.Cells))
		for i := range d.Cells {
			clone.Cells[i] = d.Cells[i].Clone()
		}
	}
	return clone
}

// Clone returns a deep copy of the cell.
func (c *Cell) Clone() Cell {
	clone := Cell{
		Type:   c.Type,
		Source: c.Source,
	}
	if c.Metadata != nil {
		clone.Metadata = append(json.RawMessage(nil), c.Metadata...)
	}
	if c.Outputs != nil {
		clone.Outputs = make([]Output, len(c.Outputs))
		for i := range c.Outputs {
			clone.Outputs[i] = c.Outputs[i].Clone()
		}
	}
	if c.ExecutionCount != nil {
		count := *c.ExecutionCount
		clone.ExecutionCount = &count
	}
	return clone
}

// Clone returns a deep copy of the output record.
func (o Output) Clone() Output {
	clone := Output{
		Type:   o.Type,
		Name:   o.Name,
		Text:   o.Text,
		Ename:  o.Ename,
		Evalue: o.Evalue,
	}
	if o.Traceback != nil {
		clone.Traceback = append([]string(nil), o.Traceback...)
	}
	if o.Data != nil {
		clone.Data = make(MimeBundle, len(o.Data))
		for k, v := range o.Data {
			clone.Data[k] = append(json.RawMessage(nil), v...)
		}
	}
	if o.ExecutionCount != nil {
		count := *o.ExecutionCount
		clone.ExecutionCount = &count
	}
	return clone
}

// NewStreamOutput creates a stream output record for the given channel.
func NewStreamOutput(name, text string) Output {
	return Output{Type: OutputTypeStream, Name: name, Text: text}
}

// NewErrorOutput creates a structured error output record.
func NewErrorOutput(ename, evalue string, traceback []string) Output {
	if traceback == nil {
		traceback = []string{}
	}
	return Output{Type: OutputTypeError, Ename: ename, Evalue: evalue, Traceback: traceback}
}

// NewExecuteResult creates an execute_result record with a text/plain
// representation and the session-local sequence number.
func NewExecuteResult(plainText string, executionCount int) Output {
	encoded, _ := json.Marshal(plainText)
	return Output{
		Type:           OutputTypeExecuteResult,
		Data:           MimeBundle{"text/plain": encoded},
		ExecutionCount: &executionCount,
	}
}

// PlainText returns the decoded text/plain representation of the bundle.
// Wire values may be a string or a list of string fragments; anything else
// is reported as absent.
func (m MimeBundle) PlainText() (string, bool) {
	raw, ok := m["text/plain"]
	if !ok {
		return "", false
	}
	text, err := decodeMultiline(raw)
	if err != nil {
		return "", false
	}
	return text, true
}

// decodeMultiline decodes nbformat's string-or-list-of-strings convention.
func decodeMultiline(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("value is neither string nor string list")
	}
	joined := ""
	for _, p := range parts {
		joined += p
	}
	return joined, nil
}
