// Package validation checks configuration documents against JSON schemas.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/reglet-dev/valbridge/application/schema"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/ports"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "valbridge-config.json"

// SchemaValidator implements ports.ConfigValidator with a compiled JSON schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles schemaJSON.
func NewSchemaValidator(schemaJSON []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &SchemaValidator{schema: sch}, nil
}

// NewConfigValidator returns a validator for entities.Config documents.
func NewConfigValidator() (ports.ConfigValidator, error) {
	s, err := schema.ConfigSchema()
	if err != nil {
		return nil, err
	}
	return NewSchemaValidator(s)
}

// Validate checks doc, which must hold JSON-decoded values, against the schema.
func (v *SchemaValidator) Validate(doc any) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}

	err := v.schema.Validate(doc)
	if err == nil {
		return result, nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}

	result.Valid = false
	for _, leaf := range leaves(ve) {
		field := leaf.InstanceLocation
		if field == "" {
			field = "/"
		}
		result.Errors = append(result.Errors, entities.ValidationError{
			Field:   field,
			Message: leaf.Message,
		})
	}
	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].Field < result.Errors[j].Field
	})
	return result, nil
}

// leaves returns the most specific causes of a validation failure.
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, leaves(cause)...)
	}
	return out
}
