package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/reglet-dev/valbridge/application/config"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/hostfuncs"
	wazeroadapter "github.com/reglet-dev/valbridge/infrastructure/wazero"
	"github.com/reglet-dev/valbridge/internal/abi"
	"github.com/reglet-dev/valbridge/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Executor manages the lifecycle of a bridged module.
//
// The mutex guards which module is loaded. It is never held while guest code
// runs, so host functions the guest calls may use the Executor and its
// Instance again. Like the bridge, an Executor runs one guest call at a time
// and must be driven from one goroutine.
type Executor struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	bridge   *hostfuncs.Bridge
	registry *hostfuncs.HandlerRegistry
	host     api.Module
	instance *Instance
	config   executorConfig
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	cfg := executorConfig{config: entities.DefaultConfig()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := config.Validate(cfg.config); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = log.NewLogger(cfg.config)
	}
	if cfg.vm == nil {
		cfg.vm = goja.New()
	}

	bridgeOpts := []hostfuncs.BridgeOption{
		hostfuncs.WithBridgeLogger(cfg.logger),
		hostfuncs.WithMaxStringBytes(cfg.config.MaxStringBytes),
		hostfuncs.WithReleaseCallbackArgs(cfg.config.ReleaseCallbackArgs),
	}
	if cfg.metrics != nil {
		bridgeOpts = append(bridgeOpts, hostfuncs.WithGrowthObserver(cfg.metrics.MemoryGrew))
	}
	bridge, err := hostfuncs.NewBridge(cfg.vm, bridgeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}

	middleware := []hostfuncs.Middleware{
		hostfuncs.PanicRecoveryMiddleware(),
		hostfuncs.LoggingMiddleware(cfg.logger),
	}
	if cfg.metrics != nil {
		middleware = append(middleware, hostfuncs.ObserverMiddleware(cfg.metrics.ObserveCall))
	}
	middleware = append(middleware, cfg.middleware...)

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(middleware...),
		hostfuncs.WithNamePrefix(cfg.config.FunctionPrefix),
		hostfuncs.WithBundle(hostfuncs.AllBundles(bridge)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry registry: %w", err)
	}

	rc := cfg.runtimeConfig
	if rc == nil {
		rc = wazero.NewRuntimeConfig()
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)

	e := &Executor{
		runtime:  rt,
		bridge:   bridge,
		registry: registry,
		config:   cfg,
	}

	if !cfg.withoutWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
		}
	}

	e.host, err = wazeroadapter.RegisterWithRuntime(ctx, rt, registry,
		wazeroadapter.WithModuleName(cfg.config.ModuleName),
		wazeroadapter.WithAdapterLogger(cfg.logger),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	cfg.logger.Debug("executor ready",
		"module_name", cfg.config.ModuleName,
		"entry_points", len(registry.Names()))
	return e, nil
}

// Close releases resources held by the executor, including the loaded module.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Close(ctx)
}

// Bridge returns the bridge. Host code uses it to register values the module
// should see and to resolve handles the module returns.
func (e *Executor) Bridge() *hostfuncs.Bridge {
	return e.bridge
}

// Registry returns the entry points exported to the module.
func (e *Executor) Registry() *hostfuncs.HandlerRegistry {
	return e.registry
}

// ResetHandles drops every non-reserved handle.
func (e *Executor) ResetHandles() {
	e.bridge.ResetHandles()
	e.observe()
}

// LoadModule instantiates a guest module and binds the bridge to it. An
// executor holds at most one module. The module's start section runs before
// the bridge is bound and must not call the bridge; _initialize, if exported,
// runs after.
func (e *Executor) LoadModule(ctx context.Context, wasmBytes []byte) (*Instance, error) {
	inst, err := e.instantiate(ctx, wasmBytes)
	if err != nil {
		return nil, err
	}

	if init := inst.module.ExportedFunction("_initialize"); init != nil {
		restore := e.bridge.Enter(ctx)
		_, err := init.Call(ctx)
		restore()
		if err != nil {
			_ = inst.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	e.observe()
	return inst, nil
}

// instantiate loads and binds a module and records it as the loaded one.
func (e *Executor) instantiate(ctx context.Context, wasmBytes []byte) (*Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.instance != nil {
		return nil, fmt.Errorf("module %q is already loaded", e.instance.module.Name())
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	name := "guest-" + uuid.NewString()
	mod, err := e.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	inst, err := e.bind(ctx, mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	e.instance = inst
	return inst, nil
}

func (e *Executor) bind(ctx context.Context, mod api.Module) (*Instance, error) {
	cfg := e.config.config

	mem, err := wazeroadapter.GuestMemory(mod)
	if err != nil {
		return nil, err
	}
	if pages := mem.Size() / abi.PageSize; pages > cfg.MaxPages {
		return nil, &errors.ConfigError{
			Field: "max_pages",
			Err:   fmt.Errorf("module starts with %d pages, above the limit of %d", pages, cfg.MaxPages),
		}
	}

	binding := hostfuncs.Binding{
		Memory: mem,
		Table:  wazeroadapter.NewFunctionTable(mod, 0),
	}

	if alloc, ok := wazeroadapter.NewGuestAllocator(mod, e.bridge.Context); ok {
		binding.Allocator = alloc
	} else {
		heapOpts := []abi.HeapOption{
			abi.WithBase(heapBase(mod, mem.Size(), cfg.HeapBase)),
			abi.WithMaxPages(cfg.MaxPages),
			abi.WithHeapLogger(e.config.logger),
		}
		if e.config.metrics != nil {
			heapOpts = append(heapOpts, abi.WithGrowHook(e.config.metrics.HeapGrew))
		}
		binding.Heap = abi.NewHeap(mem, heapOpts...)
	}

	if err := e.bridge.Bind(binding); err != nil {
		return nil, err
	}

	e.config.logger.Info("module loaded",
		"module", mod.Name(),
		"memory_pages", mem.Size()/abi.PageSize,
		"guest_allocator", binding.Heap == nil)

	return &Instance{exec: e, module: mod}, nil
}

// heapBase picks where the bridge heap starts: the configured base, the
// module's __heap_base export, or the end of its initial memory.
func heapBase(mod api.Module, memSize, configured uint32) uint32 {
	if configured != 0 {
		return configured
	}
	if g := mod.ExportedGlobal("__heap_base"); g != nil {
		return api.DecodeU32(g.Get())
	}
	return memSize
}

// observe publishes registry and heap snapshots to the metrics.
func (e *Executor) observe() {
	m := e.config.metrics
	if m == nil {
		return
	}
	m.ObserveRegistry(e.bridge.Handles().Stats())
	if heap := e.bridge.Heap(); heap != nil {
		m.ObserveHeap(heap.Stats())
	}
}
