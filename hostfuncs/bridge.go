package hostfuncs

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"unicode/utf16"

	"github.com/dop251/goja"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/domain/ports"
	"github.com/reglet-dev/valbridge/host/registry"
	"github.com/reglet-dev/valbridge/internal/abi"
)

// Binding connects a Bridge to an instantiated module.
type Binding struct {
	Memory    ports.Memory
	Table     ports.FunctionTable
	Allocator ports.Allocator

	// Heap is the bridge-managed allocator. It is nil when the module brings
	// its own malloc and free, in which case Allocator wraps those exports.
	Heap *abi.Heap
}

type bridgeConfig struct {
	logger         *slog.Logger
	registry       *registry.Registry
	onGrowth       func(pages uint32)
	maxStringBytes uint32
	releaseArgs    bool
}

func defaultBridgeConfig() bridgeConfig {
	return bridgeConfig{
		logger:         slog.Default(),
		maxStringBytes: 1 << 20,
		releaseArgs:    true,
	}
}

// BridgeOption configures a Bridge.
type BridgeOption func(*bridgeConfig)

// WithBridgeLogger sets the logger for bridge lifecycle events.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(c *bridgeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHandleRegistry makes the bridge use an existing handle registry. The
// registry must have been created for the same goja runtime.
func WithHandleRegistry(r *registry.Registry) BridgeOption {
	return func(c *bridgeConfig) {
		c.registry = r
	}
}

// WithMaxStringBytes limits the length of any span read from the module.
func WithMaxStringBytes(n uint32) BridgeOption {
	return func(c *bridgeConfig) {
		if n > 0 {
			c.maxStringBytes = n
		}
	}
}

// WithReleaseCallbackArgs controls whether a callback releases its argument
// array handle after the module returns.
func WithReleaseCallbackArgs(enabled bool) BridgeOption {
	return func(c *bridgeConfig) {
		c.releaseArgs = enabled
	}
}

// WithGrowthObserver is called with the memory size in pages whenever the
// module reports that its memory grew.
func WithGrowthObserver(fn func(pages uint32)) BridgeOption {
	return func(c *bridgeConfig) {
		c.onGrowth = fn
	}
}

// Bridge executes host operations on behalf of the sandboxed module.
//
// Every operation takes and returns handles from the bridge's registry. The
// Bridge is single-threaded: the module, its host calls and any callbacks
// into the module all run on one goroutine, and operations may re-enter each
// other through callbacks.
type Bridge struct {
	ctx       context.Context
	vm        *goja.Runtime
	handles   *registry.Registry
	dispatch  *dispatchTable
	mem       ports.Memory
	table     ports.FunctionTable
	alloc     ports.Allocator
	heap      *abi.Heap
	callbacks map[uint32]uint32
	config    bridgeConfig
	nextCb    uint32
}

// NewBridge creates a bridge over vm.
func NewBridge(vm *goja.Runtime, opts ...BridgeOption) (*Bridge, error) {
	cfg := defaultBridgeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dispatch, err := newDispatchTable(vm)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dispatch table: %w", err)
	}

	handles := cfg.registry
	if handles == nil {
		handles = registry.NewRegistry(vm, registry.WithLogger(cfg.logger))
	}

	return &Bridge{
		ctx:       context.Background(),
		vm:        vm,
		handles:   handles,
		dispatch:  dispatch,
		callbacks: make(map[uint32]uint32),
		config:    cfg,
	}, nil
}

// Bind attaches the bridge to a module's memory, function table and allocator.
// Callbacks made for a previously bound module stop working.
func (b *Bridge) Bind(binding Binding) error {
	if binding.Memory == nil {
		return fmt.Errorf("binding requires a memory")
	}
	if binding.Allocator == nil {
		if binding.Heap == nil {
			return fmt.Errorf("binding requires an allocator")
		}
		binding.Allocator = binding.Heap
	}
	b.mem = binding.Memory
	b.table = binding.Table
	b.alloc = binding.Allocator
	b.heap = binding.Heap
	stale := len(b.callbacks)
	clear(b.callbacks)

	b.config.logger.Debug("bridge bound to module",
		"memory_bytes", b.mem.Size(),
		"stale_callbacks", stale,
		"bridge_heap", b.heap != nil,
		"function_table", b.table != nil)
	return nil
}

// Enter makes ctx the context for callbacks into the module until the
// returned function is called. Calls nest.
func (b *Bridge) Enter(ctx context.Context) (restore func()) {
	prev := b.ctx
	b.ctx = ctx
	return func() { b.ctx = prev }
}

// Context returns the context installed by the innermost Enter.
func (b *Bridge) Context() context.Context {
	return b.ctx
}

// Allocator returns the allocator strings are copied out with, or nil before Bind.
func (b *Bridge) Allocator() ports.Allocator {
	return b.alloc
}

// Memory returns the bound memory, or nil before Bind.
func (b *Bridge) Memory() ports.Memory {
	return b.mem
}

// Runtime returns the goja runtime holding the host values.
func (b *Bridge) Runtime() *goja.Runtime {
	return b.vm
}

// Handles returns the bridge's handle registry.
func (b *Bridge) Handles() *registry.Registry {
	return b.handles
}

// Heap returns the bridge-managed allocator, or nil when the module brings its own.
func (b *Bridge) Heap() *abi.Heap {
	return b.heap
}

// Null returns the reserved null handle.
func (b *Bridge) Null() entities.Handle { return entities.HandleNull }

// Undefined returns the reserved undefined handle.
func (b *Bridge) Undefined() entities.Handle { return entities.HandleUndefined }

// False returns the reserved false handle.
func (b *Bridge) False() entities.Handle { return entities.HandleFalse }

// True returns the reserved true handle.
func (b *Bridge) True() entities.Handle { return entities.HandleTrue }

// GlobalThis returns the reserved handle of the global object.
func (b *Bridge) GlobalThis() entities.Handle { return entities.HandleGlobalThis }

// NewArray registers a fresh empty array.
func (b *Bridge) NewArray() entities.Handle {
	return b.handles.Register(b.vm.NewArray())
}

// NewObject registers a fresh empty plain object.
func (b *Bridge) NewObject() entities.Handle {
	return b.handles.Register(b.vm.NewObject())
}

// MakeInt registers an integer number.
func (b *Bridge) MakeInt(n int32) entities.Handle {
	return b.handles.Register(b.vm.ToValue(int64(n)))
}

// MakeDouble registers a number.
func (b *Bridge) MakeDouble(f float64) entities.Handle {
	return b.handles.Register(b.vm.ToValue(f))
}

// MakeUint registers an unsigned integer number.
func (b *Bridge) MakeUint(n uint32) entities.Handle {
	return b.handles.Register(b.vm.ToValue(int64(n)))
}

// MakeBigInt registers a BigInt holding a signed 64-bit value.
func (b *Bridge) MakeBigInt(n int64) entities.Handle {
	return b.handles.Register(b.vm.ToValue(big.NewInt(n)))
}

// MakeBigUint registers a BigInt holding an unsigned 64-bit value.
func (b *Bridge) MakeBigUint(n uint64) entities.Handle {
	return b.handles.Register(b.vm.ToValue(new(big.Int).SetUint64(n)))
}

// MakeBool returns the reserved handle for a boolean.
func (b *Bridge) MakeBool(v bool) entities.Handle {
	return entities.BoolHandle(v)
}

// MakeString decodes n bytes at ptr as UTF-8 and registers the string.
func (b *Bridge) MakeString(ptr, n uint32) (entities.Handle, error) {
	s, err := b.readSpan(ptr, n)
	if err != nil {
		return 0, err
	}
	return b.handles.Register(b.vm.ToValue(s)), nil
}

// MakeStringUTF16 registers the string made of units little-endian UTF-16
// code units at ptr. Unpaired surrogates are preserved.
func (b *Bridge) MakeStringUTF16(ptr, units uint32) (entities.Handle, error) {
	if b.mem == nil {
		return 0, ErrNotBound
	}
	if uint64(units)*2 > uint64(b.config.maxStringBytes) {
		return 0, &errors.MemoryAccessError{Op: "read beyond string limit", Offset: ptr, Length: units, Size: b.mem.Size()}
	}
	chars, err := abi.ReadUTF16(b.mem, ptr, units)
	if err != nil {
		return 0, err
	}
	return b.handles.Register(goja.StringFromUTF16(chars)), nil
}

// Register adds a host value to the registry.
func (b *Bridge) Register(v goja.Value) entities.Handle {
	return b.handles.Register(v)
}

// Resolve returns the host value named by h.
func (b *Bridge) Resolve(h entities.Handle) (goja.Value, error) {
	return b.handles.Resolve(h)
}

// GetInt converts the value to a number and then to a 32-bit integer the
// way the host's ToInt32 does: NaN and infinities become 0, everything else
// wraps modulo 2^32.
func (b *Bridge) GetInt(h entities.Handle) (int32, error) {
	f, err := b.GetDouble(h)
	if err != nil {
		return 0, err
	}
	return toInt32(f), nil
}

// GetUint converts the value the way GetInt does and reinterprets the result
// as unsigned.
func (b *Bridge) GetUint(h entities.Handle) (uint32, error) {
	n, err := b.GetInt(h)
	return uint32(n), err
}

// GetBigInt converts the value to a BigInt and truncates it to a signed
// 64-bit integer. Values that have no BigInt form throw.
func (b *Bridge) GetBigInt(h entities.Handle) (int64, error) {
	n, err := b.bigInt(h, b.dispatch.toBigInt64)
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// GetBigUint is GetBigInt for an unsigned 64-bit integer.
func (b *Bridge) GetBigUint(h entities.Handle) (uint64, error) {
	n, err := b.bigInt(h, b.dispatch.toBigUint64)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func (b *Bridge) bigInt(h entities.Handle, op goja.Callable) (*big.Int, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return nil, err
	}
	r, err := b.dispatch.call(op, v)
	if err != nil {
		return nil, err
	}
	n, ok := r.Export().(*big.Int)
	if !ok {
		return nil, fmt.Errorf("bigint conversion produced %T", r.Export())
	}
	return n, nil
}

// GetDouble converts the value to a number.
func (b *Bridge) GetDouble(h entities.Handle) (float64, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return 0, err
	}
	n, err := b.dispatch.call(b.dispatch.toNumber, v)
	if err != nil {
		return 0, err
	}
	return n.ToFloat(), nil
}

// GetString stores String(value) as a NUL-terminated UTF-8 string in a fresh
// allocation owned by the module. It returns 0 when the allocation fails.
func (b *Bridge) GetString(h entities.Handle) (uint32, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return 0, err
	}
	s, err := b.dispatch.call(b.dispatch.toString, v)
	if err != nil {
		return 0, err
	}
	return b.copyOut(s.String())
}

// GetStringUTF16 stores String(value) as little-endian UTF-16 code units
// followed by a zero unit in a fresh allocation owned by the module. Unpaired
// surrogates are preserved. It returns 0 when the allocation fails.
func (b *Bridge) GetStringUTF16(h entities.Handle) (uint32, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return 0, err
	}
	s, err := b.dispatch.call(b.dispatch.toString, v)
	if err != nil {
		return 0, err
	}
	if b.mem == nil || b.alloc == nil {
		return 0, ErrNotBound
	}
	chars := codeUnits(s)
	ptr, err := abi.WriteUTF16(b.alloc, b.mem, chars)
	return b.nullOnAllocFailure(ptr, err, (len(chars)+1)*2)
}

// TypeOf stores the value's typeof tag the same way GetString does.
func (b *Bridge) TypeOf(h entities.Handle) (uint32, error) {
	v, err := b.handles.Resolve(h)
	if err != nil {
		return 0, err
	}
	tag, err := b.dispatch.call(b.dispatch.typeOf, v)
	if err != nil {
		return 0, err
	}
	return b.copyOut(tag.String())
}

// copyOut writes s for the module. Allocation failures are reported as a
// null pointer rather than an error.
func (b *Bridge) copyOut(s string) (uint32, error) {
	if b.mem == nil || b.alloc == nil {
		return 0, ErrNotBound
	}
	ptr, err := abi.WriteCString(b.alloc, b.mem, s)
	return b.nullOnAllocFailure(ptr, err, len(s)+1)
}

func (b *Bridge) nullOnAllocFailure(ptr uint32, err error, size int) (uint32, error) {
	if err != nil {
		var allocErr *errors.AllocationError
		if stdErrors.As(err, &allocErr) {
			b.config.logger.Warn("string copy failed", "bytes", size, "error", err)
			return 0, nil
		}
		return 0, err
	}
	return ptr, nil
}

// codeUnits returns the UTF-16 code units of a host string.
func codeUnits(v goja.Value) []uint16 {
	s, ok := v.(goja.String)
	if !ok {
		return utf16.Encode([]rune(v.String()))
	}
	out := make([]uint16, s.Length())
	for i := range out {
		out[i] = s.CharAt(i)
	}
	return out
}

// readSpan reads a UTF-8 string the module passed by pointer and length.
func (b *Bridge) readSpan(ptr, n uint32) (string, error) {
	if b.mem == nil {
		return "", ErrNotBound
	}
	if n > b.config.maxStringBytes {
		return "", &errors.MemoryAccessError{Op: "read beyond string limit", Offset: ptr, Length: n, Size: b.mem.Size()}
	}
	return abi.ReadString(b.mem, ptr, n)
}

// resolve2 resolves two handles.
func (b *Bridge) resolve2(x, y entities.Handle) (goja.Value, goja.Value, error) {
	a, err := b.handles.Resolve(x)
	if err != nil {
		return nil, nil, err
	}
	c, err := b.handles.Resolve(y)
	if err != nil {
		return nil, nil, err
	}
	return a, c, nil
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(m))
}
