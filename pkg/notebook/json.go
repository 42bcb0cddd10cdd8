package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

var emptyObject = json.RawMessage(`{}`)

// Parse decodes a serialized notebook. Content that cannot be decoded into
// the document shape is reported as a corrupt document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", sdkerrors.ErrCorruptDocument, err)
	}
	if doc.Cells == nil {
		return nil, fmt.Errorf("%w: missing cells", sdkerrors.ErrCorruptDocument)
	}
	if doc.NBFormat == 0 {
		doc.NBFormat = 4
	}
	return &doc, nil
}

// Encode serializes the document in the round-trippable on-disk form.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", " ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode notebook: %w", err)
	}
	return append(data, '\n'), nil
}

// cellWire is the on-disk shape shared by both cell kinds. Source carries
// nbformat's string-or-list-of-strings convention.
type cellWire struct {
	Type           string          `json:"cell_type"`
	ExecutionCount *int            `json:"execution_count"`
	Metadata       json.RawMessage `json:"metadata"`
	Outputs        []Output        `json:"outputs"`
	Source         json.RawMessage `json:"source"`
}

// MarshalJSON writes the cell in nbformat shape: code cells always carry
// outputs and execution_count keys, markdown cells never do.
func (c Cell) MarshalJSON() ([]byte, error) {
	metadata := c.Metadata
	if len(metadata) == 0 {
		metadata = emptyObject
	}
	source, err := json.Marshal(c.Source)
	if err != nil {
		return nil, err
	}

	if c.Type == CellTypeCode {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []Output{}
		}
		return json.Marshal(struct {
			Type           string          `json:"cell_type"`
			ExecutionCount *int            `json:"execution_count"`
			Metadata       json.RawMessage `json:"metadata"`
			Outputs        []Output        `json:"outputs"`
			Source         json.RawMessage `json:"source"`
		}{c.Type, c.ExecutionCount, metadata, outputs, source})
	}

	return json.Marshal(struct {
		Type     string          `json:"cell_type"`
		Metadata json.RawMessage `json:"metadata"`
		Source   json.RawMessage `json:"source"`
	}{c.Type, metadata, source})
}

// UnmarshalJSON reads either cell kind, joining list-form sources.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var wire cellWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Type == "" {
		return fmt.Errorf("cell is missing cell_type")
	}
	source, err := decodeMultiline(wire.Source)
	if err != nil {
		return fmt.Errorf("cell source: %w", err)
	}
	c.Type = wire.Type
	c.Source = source
	c.Metadata = wire.Metadata
	c.ExecutionCount = wire.ExecutionCount
	c.Outputs = wire.Outputs
	if c.Type == CellTypeCode && c.Outputs == nil {
		c.Outputs = []Output{}
	}
	return nil
}

// outputWire is the union of all output record shapes.
type outputWire struct {
	Type           string          `json:"output_type"`
	Name           string          `json:"name"`
	Text           json.RawMessage `json:"text"`
	Ename          string          `json:"ename"`
	Evalue         string          `json:"evalue"`
	Traceback      []string        `json:"traceback"`
	Data           MimeBundle      `json:"data"`
	ExecutionCount *int            `json:"execution_count"`
}

// MarshalJSON writes only the fields belonging to the record's variant.
func (o Output) MarshalJSON() ([]byte, error) {
	switch o.Type {
	case OutputTypeStream:
		text, err := json.Marshal(o.Text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type string          `json:"output_type"`
			Name string          `json:"name"`
			Text json.RawMessage `json:"text"`
		}{o.Type, o.Name, text})

	case OutputTypeError:
		traceback := o.Traceback
		if traceback == nil {
			traceback = []string{}
		}
		return json.Marshal(struct {
			Type      string   `json:"output_type"`
			Ename     string   `json:"ename"`
			Evalue    string   `json:"evalue"`
			Traceback []string `json:"traceback"`
		}{o.Type, o.Ename, o.Evalue, traceback})

	case OutputTypeExecuteResult:
		data := o.Data
		if data == nil {
			data = MimeBundle{}
		}
		return json.Marshal(struct {
			Type           string     `json:"output_type"`
			Data           MimeBundle `json:"data"`
			ExecutionCount *int       `json:"execution_count"`
		}{o.Type, data, o.ExecutionCount})

	default:
		// display_data and anything forward-compatible
		data := o.Data
		if data == nil {
			data = MimeBundle{}
		}
		return json.Marshal(struct {
			Type string     `json:"output_type"`
			Data MimeBundle `json:"data"`
		}{o.Type, data})
	}
}

// UnmarshalJSON reads any output variant, joining list-form stream text.
func (o *Output) UnmarshalJSON(data []byte) error {
	var wire outputWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Type == "" {
		return fmt.Errorf("output is missing output_type")
	}
	text, err := decodeMultiline(wire.Text)
	if err != nil {
		return fmt.Errorf("output text: %w", err)
	}
	o.Type = wire.Type
	o.Name = wire.Name
	o.Text = text
	o.Ename = wire.Ename
	o.Evalue = wire.Evalue
	o.Traceback = wire.Traceback
	o.Data = wire.Data
	o.ExecutionCount = wire.ExecutionCount
	return nil
}

// Equal reports whether two documents serialize identically. Used by callers
// that need byte-level "document untouched" guarantees.
func Equal(a, b *Document) bool {
	left, err := a.Encode()
	if err != nil {
		return false
	}
	right, err := b.Encode()
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
