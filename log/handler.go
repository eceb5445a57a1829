// Package log builds the slog loggers used by the bridge.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
)

const (
	// FormatText selects slog's key=value handler.
	FormatText = "text"
	// FormatJSON selects slog's JSON handler.
	FormatJSON = "json"
)

// HandlerOption configures NewHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	writer    io.Writer
	format    string
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		writer: os.Stderr,
		format: FormatText,
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithFormat selects FormatText or FormatJSON. Unknown formats fall back to text.
func WithFormat(format string) HandlerOption {
	return func(c *handlerConfig) {
		c.format = format
	}
}

// WithWriter sets the destination of log records (default: stderr).
func WithWriter(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		if w != nil {
			c.writer = w
		}
	}
}

// NewHandler creates a slog handler with the given options.
func NewHandler(opts ...HandlerOption) slog.Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	hopts := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.addSource}
	if strings.EqualFold(cfg.format, FormatJSON) {
		return slog.NewJSONHandler(cfg.writer, hopts)
	}
	return slog.NewTextHandler(cfg.writer, hopts)
}

// NewLogger creates the bridge logger for cfg. Options override the level
// and format taken from cfg.
func NewLogger(cfg entities.Config, opts ...HandlerOption) *slog.Logger {
	base := []HandlerOption{WithLevel(ParseLevel(cfg.LogLevel)), WithFormat(cfg.LogFormat)}
	return slog.New(NewHandler(append(base, opts...)...)).With("component", "valbridge")
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ErrorAttr renders err as an "error" group built from its ErrorDetail, so
// handlers can filter on the error's type, code and fatality.
func ErrorAttr(err error) slog.Attr {
	d := errors.ToErrorDetail(err)
	if d == nil {
		return slog.Attr{}
	}
	attrs := []any{
		slog.String("message", d.Message),
		slog.String("type", d.Type),
	}
	if d.Code != "" {
		attrs = append(attrs, slog.String("code", d.Code))
	}
	attrs = append(attrs, slog.Bool("fatal", d.Fatal))
	if len(d.Details) > 0 {
		attrs = append(attrs, slog.Any("details", d.Details))
	}
	return slog.Group("error", attrs...)
}
