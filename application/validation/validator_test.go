package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidator(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	tests := []struct {
		doc       map[string]any
		name      string
		wantField string
		valid     bool
	}{
		{
			name:  "empty document",
			doc:   map[string]any{},
			valid: true,
		},
		{
			name: "full document",
			doc: map[string]any{
				"module_name":           "env",
				"function_prefix":       "emlite_",
				"log_level":             "debug",
				"log_format":            "json",
				"max_pages":             float64(256),
				"heap_base":             float64(65536),
				"max_string_bytes":      float64(4096),
				"release_callback_args": false,
			},
			valid: true,
		},
		{
			name:      "unknown key",
			doc:       map[string]any{"max_page": float64(2)},
			wantField: "/",
		},
		{
			name:      "max pages out of range",
			doc:       map[string]any{"max_pages": float64(0)},
			wantField: "/max_pages",
		},
		{
			name:      "unknown log level",
			doc:       map[string]any{"log_level": "trace"},
			wantField: "/log_level",
		},
		{
			name:      "wrong type",
			doc:       map[string]any{"release_callback_args": "yes"},
			wantField: "/release_callback_args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Validate(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.valid {
				assert.Empty(t, result.Errors)
				return
			}
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.wantField, result.Errors[0].Field)
			assert.NotEmpty(t, result.Errors[0].Message)
		})
	}
}

func TestNewSchemaValidator_InvalidSchema(t *testing.T) {
	_, err := NewSchemaValidator([]byte(`{"type": 12}`))
	require.Error(t, err)

	_, err = NewSchemaValidator([]byte(`not json`))
	require.Error(t, err)
}
