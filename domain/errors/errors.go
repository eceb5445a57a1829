// Package errors provides the bridge's error taxonomy.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/valbridge/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can describe themselves as
// a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail describes err as an ErrorDetail. Errors that do not implement
// DetailedError anywhere in their chain are reported as "internal".
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// IsFatal reports whether err leaves the bridge in a state where the current
// request must be aborted: unknown handles, heap corruption and out-of-bounds
// memory access. Host exceptions and allocation exhaustion are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		unknown *UnknownHandleError
		corrupt *CorruptionError
		access  *MemoryAccessError
	)
	return stdErrors.As(err, &unknown) || stdErrors.As(err, &corrupt) || stdErrors.As(err, &access)
}

// UnknownHandleError is returned when a handle has no live registry entry.
type UnknownHandleError struct {
	Handle entities.Handle
}

func (e *UnknownHandleError) Error() string {
	return fmt.Sprintf("unknown handle %d", uint32(e.Handle))
}

// ToErrorDetail implements DetailedError.
func (e *UnknownHandleError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "protocol",
		Code:    "unknown_handle",
		Fatal:   true,
		Details: map[string]any{"handle": uint32(e.Handle)},
	}
}

// CorruptionError reports a block header that failed validation on release,
// which covers double frees and pointers that were never allocated.
type CorruptionError struct {
	Reason string
	Ptr    uint32
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("double free or corruption at 0x%x: %s", e.Ptr, e.Reason)
}

// ToErrorDetail implements DetailedError.
func (e *CorruptionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "memory",
		Code:    "double_free_or_corruption",
		Fatal:   true,
	}
}

// AllocationError represents an allocation the heap could not satisfy.
type AllocationError struct {
	Err       error
	Requested uint32
	Pages     uint32 // pages currently committed
	Limit     uint32 // maximum pages
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("allocation of %d bytes failed (pages %d, limit %d)", e.Requested, e.Pages, e.Limit)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *AllocationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "allocation", Code: "out_of_memory"}
}

// ThrowKind classifies a ThrownError.
type ThrowKind string

const (
	// ThrowKindThrown is an exception raised by host code or by val_throw.
	ThrowKindThrown ThrowKind = "thrown"
	// ThrowKindNotCallable is raised when a call target is not a function.
	ThrowKindNotCallable ThrowKind = "not_callable"
	// ThrowKindNotConstructible is raised when a construct target is not a constructor.
	ThrowKindNotConstructible ThrowKind = "not_constructible"
)

// ThrownError carries a host exception across the sandbox boundary.
// Value holds the thrown host value so it can be rethrown unchanged.
type ThrownError struct {
	Value   any
	Message string
	Kind    ThrowKind
}

func (e *ThrownError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("host exception (%s)", e.Kind)
	}
	return fmt.Sprintf("host exception (%s): %s", e.Kind, e.Message)
}

// ToErrorDetail implements DetailedError.
func (e *ThrownError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "exception", Code: string(e.Kind)}
}

// MemoryAccessError reports a byte span outside the sandbox's linear memory.
type MemoryAccessError struct {
	Op     string
	Offset uint32
	Length uint32
	Size   uint32
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("%s out of bounds: offset %d length %d (memory size %d)", e.Op, e.Offset, e.Length, e.Size)
}

// ToErrorDetail implements DetailedError.
func (e *MemoryAccessError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "memory", Code: "out_of_bounds", Fatal: true}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// SchemaError represents a schema generation or validation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "schema"}
}
