// Package config loads the bridge configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/reglet-dev/valbridge/application/validation"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/domain/ports"
	"github.com/reglet-dev/valbridge/infrastructure/parser"
)

// DefaultEnvPrefix prefixes the environment variables that override file values.
const DefaultEnvPrefix = "VALBRIDGE"

// validate is shared by every Loader.
var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type loaderConfig struct {
	parser    ports.ConfigParser
	validator ports.ConfigValidator
	envPrefix string
	base      entities.Config
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithParser sets a custom document parser.
func WithParser(p ports.ConfigParser) LoaderOption {
	return func(c *loaderConfig) {
		c.parser = p
	}
}

// WithValidator sets the schema validator applied to raw documents.
func WithValidator(v ports.ConfigValidator) LoaderOption {
	return func(c *loaderConfig) {
		c.validator = v
	}
}

// WithEnvPrefix sets the environment variable prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(c *loaderConfig) {
		c.envPrefix = prefix
	}
}

// WithBase sets the values used for fields absent from the document.
func WithBase(base entities.Config) LoaderOption {
	return func(c *loaderConfig) {
		c.base = base
	}
}

// Loader runs the configuration pipeline: schema check of the raw document,
// decode onto defaults, environment overrides, struct validation.
type Loader struct {
	config loaderConfig
}

// NewLoader creates a Loader with the YAML parser and the generated config schema.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	cfg := loaderConfig{
		parser:    parser.NewYamlConfigParser(),
		envPrefix: DefaultEnvPrefix,
		base:      entities.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.validator == nil {
		v, err := validation.NewConfigValidator()
		if err != nil {
			return nil, fmt.Errorf("failed to build config validator: %w", err)
		}
		cfg.validator = v
	}
	return &Loader{config: cfg}, nil
}

// Load builds a Config from a raw document.
func (l *Loader) Load(raw []byte) (*entities.Config, error) {
	doc, err := l.config.parser.Decode(raw)
	if err != nil {
		return nil, &errors.ConfigError{Err: fmt.Errorf("failed to parse config: %w", err)}
	}

	res, err := l.config.validator.Validate(doc)
	if err != nil {
		return nil, &errors.ConfigError{Err: fmt.Errorf("validation error: %w", err)}
	}
	if !res.Valid {
		msg := "schema validation failed:"
		for _, e := range res.Errors {
			msg += fmt.Sprintf("\n- %s: %s", e.Field, e.Message)
		}
		return nil, &errors.ConfigError{Field: res.Errors[0].Field, Err: fmt.Errorf("%s", msg)}
	}

	cfg, err := l.config.parser.Parse(raw, l.config.base)
	if err != nil {
		return nil, &errors.ConfigError{Err: fmt.Errorf("failed to decode config: %w", err)}
	}

	if l.config.envPrefix != "" {
		if err := envconfig.Process(l.config.envPrefix, cfg); err != nil {
			return nil, &errors.ConfigError{Field: "env", Err: err}
		}
	}

	if err := Validate(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and loads the document at path.
func (l *Loader) LoadFile(path string) (*entities.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return l.Load(raw)
}

// Validate checks the struct tags of cfg. The first violation is reported
// with the field's document key.
func Validate(cfg entities.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &errors.ConfigError{
			Field: fe.Field(),
			Err:   fmt.Errorf("value %v fails %q", fe.Value(), fe.Tag()),
		}
	}
	return &errors.ConfigError{Err: err}
}
