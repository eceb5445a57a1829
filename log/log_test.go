package log

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := entities.DefaultConfig()
	cfg.LogFormat = "json"
	cfg.LogLevel = "debug"

	logger := NewLogger(cfg, WithWriter(&buf))
	logger.Debug("heap grew", "pages", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "heap grew", record["msg"])
	assert.Equal(t, "valbridge", record["component"])
	assert.EqualValues(t, 3, record["pages"])
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(entities.DefaultConfig(), WithWriter(&buf))

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNewLogger_OptionsOverrideConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(entities.DefaultConfig(), WithWriter(&buf), WithLevel(slog.LevelError))

	logger.Warn("dropped")
	assert.Empty(t, buf.String())
}

func TestNewHandler_Source(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(WithWriter(&buf), WithSource(true))).Info("where")
	assert.Contains(t, buf.String(), "source=")
}

func TestErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Error("entry point failed", ErrorAttr(fmt.Errorf("val_throw: %w", &errors.UnknownHandleError{Handle: 9})))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	detail, ok := record["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "protocol", detail["type"])
	assert.Equal(t, "unknown_handle", detail["code"])
	assert.Equal(t, true, detail["fatal"])
	assert.Equal(t, map[string]any{"handle": float64(9)}, detail["details"])
}

func TestErrorAttr_PlainError(t *testing.T) {
	attr := ErrorAttr(stdErrors.New("boom"))
	assert.Equal(t, "error", attr.Key)

	got := map[string]slog.Value{}
	for _, a := range attr.Value.Group() {
		got[a.Key] = a.Value
	}
	assert.Equal(t, "internal", got["type"].String())
	assert.Equal(t, "boom", got["message"].String())
	assert.False(t, got["fatal"].Bool())
	assert.NotContains(t, got, "code")

	assert.True(t, ErrorAttr(nil).Equal(slog.Attr{}))
}
