package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docextract/internal/extract"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

// locationDoc is the serialized location column: the Location minus its page,
// which lives in its own column.
type locationDoc struct {
	Scale float64    `json:"scale,omitempty"`
	Words []ocr.Word `json:"words,omitempty"`
}

const locationSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "scale": {"type": "number", "exclusiveMinimum": 0},
    "words": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text", "box"],
        "properties": {
          "text": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "box": {
            "type": "object",
            "required": ["x0", "y0", "x1", "y1"],
            "properties": {
              "x0": {"type": "integer"},
              "y0": {"type": "integer"},
              "x1": {"type": "integer"},
              "y1": {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

var (
	locationSchemaOnce sync.Once
	locationSchema     *jsonschema.Schema
	locationSchemaErr  error
)

func compiledLocationSchema() (*jsonschema.Schema, error) {
	locationSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("location.json", bytes.NewReader([]byte(locationSchemaJSON))); err != nil {
			locationSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		locationSchema, locationSchemaErr = compiler.Compile("location.json")
	})
	return locationSchema, locationSchemaErr
}

// encodeLocation serializes loc without its page and validates the result.
func encodeLocation(loc extract.Location) (string, error) {
	b, err := json.Marshal(locationDoc{Scale: loc.Scale, Words: loc.Words})
	if err != nil {
		return "", fmt.Errorf("marshal location: %w", err)
	}
	schema, err := compiledLocationSchema()
	if err != nil {
		return "", fmt.Errorf("compile location schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return "", fmt.Errorf("unmarshal location: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return "", fmt.Errorf("location does not match schema: %w", err)
	}
	return string(b), nil
}

func decodeLocation(page int, raw string) (extract.Location, error) {
	loc := extract.Location{Page: page}
	if raw == "" {
		return loc, nil
	}
	var doc locationDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return loc, fmt.Errorf("unmarshal location: %w", err)
	}
	loc.Scale, loc.Words = doc.Scale, doc.Words
	return loc, nil
}
