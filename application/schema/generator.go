// Package schema generates JSON schemas for the bridge configuration.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
)

// GenerateSchema creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12). Every field without
// omitempty is required.
func GenerateSchema(v interface{}) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
	return marshal(reflector.Reflect(v))
}

// ConfigSchema returns the schema of entities.Config documents. No field is
// required, since absent fields keep their defaults, and unknown keys are
// rejected.
func ConfigSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		Anonymous:                  true,
		RequiredFromJSONSchemaTags: true,
	}
	data, err := marshal(reflector.Reflect(&entities.Config{}))
	if err != nil {
		return nil, &errors.SchemaError{Type: "Config", Err: err}
	}
	return data, nil
}

func marshal(schema *jsonschema.Schema) ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return jsonBytes, nil
}
