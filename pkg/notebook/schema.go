package notebook

import (
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// documentSchema is the shape accepted by SaveDocument: a trimmed nbformat v4
// schema covering the fields this service round-trips.
const documentSchema = `{
 "type": "object",
 "required": ["cells"],
 "properties": {
  "cells": {
   "type": "array",
   "items": {
    "type": "object",
    "required": ["cell_type", "source"],
    "properties": {
     "cell_type": {"type": "string", "enum": ["code", "markdown", "raw"]},
     "source": {
      "oneOf": [
       {"type": "string"},
       {"type": "array", "items": {"type": "string"}}
      ]
     },
     "metadata": {"type": "object"},
     "execution_count": {"type": ["integer", "null"]},
     "outputs": {
      "type": "array",
      "items": {
       "type": "object",
       "required": ["output_type"],
       "properties": {
        "output_type": {"type": "string"}
       }
      }
     }
    }
   }
  },
  "metadata": {"type": "object"},
  "nbformat": {"type": "integer"},
  "nbformat_minor": {"type": "integer"}
 }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, compileErr = compiler.Compile([]byte(documentSchema))
	})
	return compiledSchema, compileErr
}

// ValidateShape checks a raw document payload against the notebook schema
// before it is accepted for a full-replace save.
func ValidateShape(data []byte) error {
	schema, err := compiled()
	if err != nil {
		return fmt.Errorf("compile notebook schema: %w", err)
	}
	result := schema.ValidateJSON(data)
	if !result.IsValid() {
		return fmt.Errorf("%w: %v", sdkerrors.ErrInvalidDocument, result.Errors)
	}
	return nil
}
