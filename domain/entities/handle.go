package entities

import "fmt"

// Handle is an opaque integer naming a slot in the handle registry.
// It is the only way the sandboxed module refers to a host value.
type Handle uint32

// Reserved handles. They are registered when a registry is created and are
// never reassigned or released.
const (
	HandleNull Handle = iota
	HandleUndefined
	HandleFalse
	HandleTrue
	HandleGlobalThis

	// FirstDynamicHandle is the first handle given out for a registered value.
	FirstDynamicHandle
)

// IsReserved reports whether h is one of the pre-registered constant handles.
func (h Handle) IsReserved() bool {
	return h < FirstDynamicHandle
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	switch h {
	case HandleNull:
		return "handle(null)"
	case HandleUndefined:
		return "handle(undefined)"
	case HandleFalse:
		return "handle(false)"
	case HandleTrue:
		return "handle(true)"
	case HandleGlobalThis:
		return "handle(globalThis)"
	}
	return fmt.Sprintf("handle(%d)", uint32(h))
}

// BoolHandle returns the reserved handle for a boolean.
func BoolHandle(b bool) Handle {
	if b {
		return HandleTrue
	}
	return HandleFalse
}
