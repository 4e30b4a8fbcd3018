// internal/sidecar/schema.go
package sidecar

import (
	"encoding/json"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Schema describes the well-known sidecar fields. Unknown fields are allowed.
const Schema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"type": {"type": "string"},
		"size": {"type": "integer", "minimum": 0},
		"lastModified": {"type": "number"},
		"dimensions": {
			"type": "object",
			"properties": {
				"width": {"type": "integer", "minimum": 0},
				"height": {"type": "integer", "minimum": 0}
			},
			"required": ["width", "height"]
		},
		"averageColor": {
			"type": "object",
			"properties": {
				"red": {"type": "integer", "minimum": 0, "maximum": 255},
				"green": {"type": "integer", "minimum": 0, "maximum": 255},
				"blue": {"type": "integer", "minimum": 0, "maximum": 255},
				"alpha": {"type": "number", "minimum": 0, "maximum": 1}
			},
			"required": ["red", "green", "blue", "alpha"]
		},
		"tags": {"type": "array", "items": {"type": "string"}},
		"oldContent": {"type": "string"}
	},
	"additionalProperties": true
}`

var (
	schemaOnce   sync.Once
	schemaLoaded *gojsonschema.Schema
	schemaErr    error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaLoaded, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(Schema))
	})
	return schemaLoaded, schemaErr
}

// Validate checks r against Schema. asset names the owner in the error.
func Validate(asset string, r Record) error {
	schema, err := compiledSchema()
	if err != nil {
		return WrapError(err, "compile sidecar schema")
	}

	data, err := json.Marshal(map[string]any(r))
	if err != nil {
		return WrapError(err, "marshal sidecar")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return WrapError(err, "validate sidecar")
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return ValidationError{Asset: asset, Errors: errs}
}
