package entities

// ErrorDetail is the structured form of a bridge error, as attached to log
// records.
// Types: "protocol", "memory", "allocation", "exception", "config", "validation", "internal".
type ErrorDetail struct {
	// Details carries error-specific context such as the offending handle.
	Details map[string]any `json:"details,omitempty"`

	Message string `json:"message"`
	Type    string `json:"type"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Fatal marks errors that abort the current module call.
	Fatal bool `json:"fatal,omitempty"`
}
