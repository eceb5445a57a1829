package hostfuncs

import (
	"context"
)

// HostContext carries per-invocation information about an entry point call
// through the middleware chain.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the entry point being invoked.
	FunctionName() string

	// Depth returns how many entry point calls enclose this one. Calls made
	// by the module from inside a callback have a depth greater than zero.
	Depth() int

	// SetValue stores a request-scoped value for later middleware.
	SetValue(key, value any)

	// GetValue retrieves a request-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	values   map[any]any
	funcName string
	depth    int
}

// NewHostContext creates a HostContext for funcName. If ctx already belongs
// to an entry point call, the new context is nested one level deeper.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	depth := 0
	if parent, ok := ctx.(HostContext); ok {
		depth = parent.Depth() + 1
	}
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		depth:    depth,
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) Depth() int {
	return c.depth
}

func (c *hostContext) SetValue(key, value any) {
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// FunctionNameFrom returns the entry point name carried by ctx, or "unknown".
func FunctionNameFrom(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}
