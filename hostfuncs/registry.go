package hostfuncs

import (
	"context"
	"fmt"
	"sort"
)

// HandlerRegistry is an immutable collection of named entry points.
// Once created via NewRegistry, entries cannot be added or removed.
type HandlerRegistry struct {
	entries    map[string]Entry
	names      []string // sorted for consistent iteration
	middleware []Middleware
}

// registryBuilder accumulates configuration during registry construction.
type registryBuilder struct {
	entries    map[string]Entry
	prefix     string
	middleware []Middleware
	errors     []error
}

// NewRegistry creates an immutable HandlerRegistry with the given options.
// Returns an error if any entry name is registered twice.
//
// Example usage:
//
//	registry, err := NewRegistry(
//	    WithNamePrefix("emlite_"),
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(AllBundles(bridge)),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{
		entries: make(map[string]Entry),
	}

	for _, opt := range opts {
		opt(b)
	}

	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	wrapped := make(map[string]Entry, len(b.entries))
	for name, entry := range b.entries {
		h := entry.Handler
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](h)
		}
		entry.Handler = named(name, h)
		wrapped[name] = entry
	}

	return &HandlerRegistry{
		entries:    wrapped,
		names:      names,
		middleware: b.middleware,
	}, nil
}

// named attaches the entry point name to the context before the chain runs.
func named(name string, h ValueHandler) ValueHandler {
	return func(ctx context.Context, stack []uint64) error {
		return h(NewHostContext(ctx, name), stack)
	}
}

// Invoke dispatches an entry point call by name.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, stack []uint64) error {
	entry, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("unknown entry point: %s", name)
	}
	if len(stack) < entry.StackSize() {
		return fmt.Errorf("entry point %s needs %d stack slots, got %d", name, entry.StackSize(), len(stack))
	}
	return entry.Handler(ctx, stack)
}

// Has returns true if an entry with the given name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Lookup returns the wrapped entry registered under name.
func (r *HandlerRegistry) Lookup(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns a sorted list of all registered entry names.
func (r *HandlerRegistry) Names() []string {
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

// Entries returns the wrapped entries in name order.
func (r *HandlerRegistry) Entries() []Entry {
	result := make([]Entry, 0, len(r.names))
	for _, name := range r.names {
		result = append(result, r.entries[name])
	}
	return result
}

// addEntry registers an entry under the builder's prefix.
func (b *registryBuilder) addEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("entry name cannot be empty")
	}
	if e.Handler == nil {
		return fmt.Errorf("entry %q has no handler", e.Name)
	}
	name := e.Name
	if !e.FixedName {
		name = b.prefix + name
	}
	if _, exists := b.entries[name]; exists {
		return fmt.Errorf("duplicate entry name: %q", name)
	}
	e.Name = name
	b.entries[name] = e
	return nil
}

// WithEntry registers a single entry point.
func WithEntry(e Entry) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addEntry(e); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithNamePrefix prefixes the names of entries registered after it.
func WithNamePrefix(prefix string) RegistryOption {
	return func(b *registryBuilder) {
		b.prefix = prefix
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
