package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/valbridge/hostfuncs"
	"github.com/reglet-dev/valbridge/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// DefaultModuleName is the import module guests use for the bridge.
const DefaultModuleName = "env"

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// Logger receives a record for every entry point that aborts a guest call.
	Logger *slog.Logger

	// ModuleName is the host module name (default: "env").
	ModuleName string

	// CustomHandlers allows adding wazero-specific functions that do not go
	// through the handler registry.
	CustomHandlers []CustomHandler
}

// CustomHandler is a raw wazero function exported next to the registry entries.
type CustomHandler struct {
	// Name is the exported function name.
	Name string

	// Handler is the wazero GoModuleFunc implementation.
	Handler api.GoModuleFunc

	// ParamTypes are the WASM parameter types.
	ParamTypes []api.ValueType

	// ResultTypes are the WASM result types.
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "env").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithAdapterLogger sets the logger used for aborted guest calls.
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName: DefaultModuleName,
		Logger:     slog.Default(),
	}
}

// RegisterWithRuntime exports every entry of registry from a host module
// instantiated in runtime, and returns that module.
//
// Entry handlers run directly on wazero's value stack. A handler error is
// raised as a panic so that the guest call unwinds and wazero returns the
// error from the guest export's Call.
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) (api.Module, error) {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, entry := range registry.Entries() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(goModuleFunc(cfg.Logger, entry), valueTypes(entry.Params), valueTypes(entry.Results)).
			WithName(entry.Name).
			Export(entry.Name)
	}

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			Export(ch.Name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate host module %q: %w", cfg.ModuleName, err)
	}
	return mod, nil
}

func goModuleFunc(logger *slog.Logger, entry hostfuncs.Entry) api.GoModuleFunc {
	handler := entry.Handler
	name := entry.Name
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		if err := handler(ctx, stack); err != nil {
			logger.DebugContext(ctx, "wazero: entry point aborted guest call", "function", name, "module", mod.Name(), log.ErrorAttr(err))
			panic(err)
		}
	}
}

// valueTypes maps entry value types to wazero value types.
func valueTypes(types []hostfuncs.ValueType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		switch t {
		case hostfuncs.ValueTypeI64:
			out[i] = api.ValueTypeI64
		case hostfuncs.ValueTypeF64:
			out[i] = api.ValueTypeF64
		default:
			out[i] = api.ValueTypeI32
		}
	}
	return out
}
