package entities

// Config represents the bridge configuration.
// It can be built with functional options or loaded from a YAML document with
// environment overrides (see application/config).
type Config struct {
	// ModuleName is the import module name the sandboxed module links against.
	ModuleName string `json:"module_name" yaml:"module_name" envconfig:"MODULE_NAME" validate:"required,max=64" jsonschema:"minLength=1,maxLength=64"`

	// FunctionPrefix is prepended to every entry point name (e.g. "emlite_").
	FunctionPrefix string `json:"function_prefix,omitempty" yaml:"function_prefix,omitempty" envconfig:"FUNCTION_PREFIX" validate:"max=32" jsonschema:"maxLength=32"`

	// LogLevel is the logging verbosity level ("debug", "info", "warn", "error").
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	// LogFormat selects the slog handler ("text" or "json").
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty" envconfig:"LOG_FORMAT" validate:"omitempty,oneof=text json" jsonschema:"enum=text,enum=json"`

	// MaxPages caps the linear memory the fallback allocator may grow to, in 64KiB pages.
	MaxPages uint32 `json:"max_pages" yaml:"max_pages" envconfig:"MAX_PAGES" validate:"min=1,max=65536" jsonschema:"minimum=1,maximum=65536"`

	// HeapBase overrides where the fallback allocator starts carving blocks.
	// Zero means: use the module's __heap_base export, or the end of memory.
	HeapBase uint32 `json:"heap_base,omitempty" yaml:"heap_base,omitempty" envconfig:"HEAP_BASE"`

	// MaxStringBytes limits the byte spans read from the sandboxed module.
	MaxStringBytes uint32 `json:"max_string_bytes" yaml:"max_string_bytes" envconfig:"MAX_STRING_BYTES" validate:"min=1" jsonschema:"minimum=1"`

	// ReleaseCallbackArgs releases the argument-array handle after every callback.
	ReleaseCallbackArgs bool `json:"release_callback_args" yaml:"release_callback_args" envconfig:"RELEASE_CALLBACK_ARGS"`
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		ModuleName:          "env",
		LogLevel:            "info",
		LogFormat:           "text",
		MaxPages:            4096,
		MaxStringBytes:      1 << 20,
		ReleaseCallbackArgs: true,
	}
}

// ConfigOption is a functional option for configuring the bridge.
type ConfigOption func(*Config)

// WithModuleName sets the import module name.
func WithModuleName(name string) ConfigOption {
	return func(c *Config) {
		if name != "" {
			c.ModuleName = name
		}
	}
}

// WithFunctionPrefix sets the entry point name prefix.
func WithFunctionPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.FunctionPrefix = prefix
	}
}

// WithLogLevel sets the logging verbosity level.
func WithLogLevel(level string) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// WithMaxPages sets the memory growth limit in pages.
func WithMaxPages(pages uint32) ConfigOption {
	return func(c *Config) {
		if pages > 0 {
			c.MaxPages = pages
		}
	}
}

// WithHeapBase pins the fallback allocator's first block offset.
func WithHeapBase(base uint32) ConfigOption {
	return func(c *Config) {
		c.HeapBase = base
	}
}

// WithReleaseCallbackArgs enables or disables argument-array release after callbacks.
func WithReleaseCallbackArgs(enabled bool) ConfigOption {
	return func(c *Config) {
		c.ReleaseCallbackArgs = enabled
	}
}

// NewConfig creates a new Config with the given options.
func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
