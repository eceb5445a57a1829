// Package registry maps host values to the small integer handles the sandboxed
// module uses to refer to them.
//
// The table is bidirectional: a handle resolves to its value, and registering a
// value that is already live returns its existing handle and bumps its
// reference count. Entries disappear when their count reaches zero. Handles
// 0 through 4 name null, undefined, false, true and the global object; they are
// registered on construction and can never be released.
//
// A Registry is not safe for concurrent use. All calls happen on the goroutine
// running the sandboxed module, including re-entrant calls from callbacks.
package registry

import (
	"encoding/binary"
	"log/slog"
	"math"
	"math/big"

	"github.com/dop251/goja"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
)

// registryConfig holds configuration for the Registry.
type registryConfig struct {
	logger   *slog.Logger
	capacity int
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		logger:   slog.Default(),
		capacity: 64,
	}
}

// RegistryOption configures a Registry instance.
type RegistryOption func(*registryConfig)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(c *registryConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInitialCapacity presizes the handle table.
func WithInitialCapacity(n int) RegistryOption {
	return func(c *registryConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

type entry struct {
	value goja.Value
	key   valueKey
	refs  uint32
}

// Registry is the handle table.
type Registry struct {
	config  registryConfig
	entries map[entities.Handle]*entry
	index   map[valueKey]entities.Handle
	next    entities.Handle
}

// NewRegistry creates a registry seeded with the reserved handles for vm.
func NewRegistry(vm *goja.Runtime, opts ...RegistryOption) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Registry{
		config:  cfg,
		entries: make(map[entities.Handle]*entry, cfg.capacity),
		index:   make(map[valueKey]entities.Handle, cfg.capacity),
	}

	reserved := []goja.Value{
		entities.HandleNull:       goja.Null(),
		entities.HandleUndefined:  goja.Undefined(),
		entities.HandleFalse:      vm.ToValue(false),
		entities.HandleTrue:       vm.ToValue(true),
		entities.HandleGlobalThis: vm.GlobalObject(),
	}
	for i, v := range reserved {
		h := entities.Handle(i)
		key := keyOf(v)
		r.entries[h] = &entry{value: v, key: key, refs: 1}
		r.index[key] = h
	}
	r.next = entities.FirstDynamicHandle

	return r
}

// Register returns the handle for v, adding an entry when v is not live yet.
// Registering a live value increments its reference count.
func (r *Registry) Register(v goja.Value) entities.Handle {
	key := keyOf(v)
	if h, ok := r.index[key]; ok {
		if !h.IsReserved() {
			r.entries[h].refs++
		}
		return h
	}

	h := r.next
	r.next++
	r.entries[h] = &entry{value: v, key: key, refs: 1}
	r.index[key] = h
	return h
}

// Resolve returns the value named by h.
func (r *Registry) Resolve(h entities.Handle) (goja.Value, error) {
	e, ok := r.entries[h]
	if !ok {
		return nil, &errors.UnknownHandleError{Handle: h}
	}
	return e.value, nil
}

// Lookup returns the live handle for v without changing its count.
func (r *Registry) Lookup(v goja.Value) (entities.Handle, bool) {
	h, ok := r.index[keyOf(v)]
	return h, ok
}

// Contains reports whether v currently has a handle.
func (r *Registry) Contains(v goja.Value) bool {
	_, ok := r.index[keyOf(v)]
	return ok
}

// Retain increments the reference count of h. Unknown and reserved handles
// are ignored.
func (r *Registry) Retain(h entities.Handle) {
	if h.IsReserved() {
		return
	}
	if e, ok := r.entries[h]; ok {
		e.refs++
	}
}

// Release decrements the reference count of h and removes the entry when the
// count reaches zero. It reports whether the entry was removed. Unknown and
// reserved handles are ignored.
func (r *Registry) Release(h entities.Handle) bool {
	if h.IsReserved() {
		return false
	}
	e, ok := r.entries[h]
	if !ok {
		return false
	}
	if e.refs > 1 {
		e.refs--
		return false
	}
	delete(r.entries, h)
	if r.index[e.key] == h {
		delete(r.index, e.key)
	}
	return true
}

// Refs returns the reference count of h.
func (r *Registry) Refs(h entities.Handle) (uint32, bool) {
	e, ok := r.entries[h]
	if !ok {
		return 0, false
	}
	return e.refs, true
}

// Size returns the number of live handles, reserved ones included.
func (r *Registry) Size() int {
	return len(r.entries)
}

// Reset drops every entry except the reserved handles. Handle numbers keep
// increasing so stale handles from before the reset stay invalid.
func (r *Registry) Reset() {
	dropped := 0
	for h, e := range r.entries {
		if h.IsReserved() {
			continue
		}
		delete(r.entries, h)
		delete(r.index, e.key)
		dropped++
	}
	r.config.logger.Debug("handle registry reset", "dropped", dropped)
}

// Stats returns a snapshot of the registry.
func (r *Registry) Stats() entities.RegistryStats {
	return entities.RegistryStats{Live: len(r.entries), NextHandle: r.next}
}

type keyKind uint8

const (
	kindUndefined keyKind = iota
	kindNull
	kindBool
	kindNumber
	kindNaN
	kindString
	kindBigInt
	kindSymbol
	kindObject
	kindOther
)

// valueKey identifies a value the way a JavaScript Map compares keys:
// objects and symbols by identity, primitives by value, +0 and -0 alike and
// every NaN equal to every other.
type valueKey struct {
	ref  any
	str  string
	num  float64
	kind keyKind
	b    bool
}

func keyOf(v goja.Value) valueKey {
	if v == nil || goja.IsUndefined(v) {
		return valueKey{kind: kindUndefined}
	}
	if goja.IsNull(v) {
		return valueKey{kind: kindNull}
	}

	switch t := v.(type) {
	case *goja.Object:
		return valueKey{kind: kindObject, ref: t}
	case *goja.Symbol:
		return valueKey{kind: kindSymbol, ref: t}
	case goja.String:
		return valueKey{kind: kindString, str: codeUnits(t)}
	}

	switch x := v.Export().(type) {
	case bool:
		return valueKey{kind: kindBool, b: x}
	case int64:
		return numberKey(float64(x))
	case float64:
		return numberKey(x)
	case *big.Int:
		return valueKey{kind: kindBigInt, str: x.String()}
	}

	return valueKey{kind: kindOther, str: v.String()}
}

// codeUnits packs the UTF-16 code units of s. Exporting to a Go string would
// replace lone surrogates with U+FFFD and make distinct strings collide.
func codeUnits(s goja.String) string {
	n := s.Length()
	buf := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[2*i:], s.CharAt(i))
	}
	return string(buf)
}

func numberKey(f float64) valueKey {
	if math.IsNaN(f) {
		return valueKey{kind: kindNaN}
	}
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	return valueKey{kind: kindNumber, num: f}
}
