package host

import (
	"log/slog"

	"github.com/dop251/goja"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/hostfuncs"
	"github.com/reglet-dev/valbridge/infrastructure/metrics"
	"github.com/tetratelabs/wazero"
)

type executorConfig struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	runtimeConfig wazero.RuntimeConfig
	vm            *goja.Runtime
	middleware    []hostfuncs.Middleware
	config        entities.Config
	withoutWASI   bool
}

// Option defines a functional option for configuring the Executor.
type Option func(*executorConfig)

// WithConfig sets the bridge configuration (default: entities.DefaultConfig()).
func WithConfig(cfg entities.Config) Option {
	return func(c *executorConfig) {
		c.config = cfg
	}
}

// WithLogger sets the logger. Without it one is built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// WithMetrics records entry point calls, handle counts and heap usage.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *executorConfig) {
		c.metrics = m
	}
}

// WithRuntimeConfig sets the wazero runtime configuration.
func WithRuntimeConfig(rc wazero.RuntimeConfig) Option {
	return func(c *executorConfig) {
		c.runtimeConfig = rc
	}
}

// WithJSRuntime makes the executor use an existing goja runtime, e.g. one
// with host objects already installed on its global object.
func WithJSRuntime(vm *goja.Runtime) Option {
	return func(c *executorConfig) {
		c.vm = vm
	}
}

// WithMiddleware adds entry point middleware after the built-in chain.
func WithMiddleware(mw ...hostfuncs.Middleware) Option {
	return func(c *executorConfig) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithoutWASI skips instantiating wasi_snapshot_preview1.
func WithoutWASI() Option {
	return func(c *executorConfig) {
		c.withoutWASI = true
	}
}
