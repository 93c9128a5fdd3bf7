package log

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func restoreLogger(t *testing.T) {
	original := logger
	t.Cleanup(func() { logger = original })
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInit(t *testing.T) {
	restoreLogger(t)

	t.Run("TextFormat", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "warn", Format: "text", Output: "stdout"}))
		assert.Equal(t, logrus.WarnLevel, logger.Level)
		_, ok := logger.Formatter.(*logrus.TextFormatter)
		assert.True(t, ok)
	})

	t.Run("JSONFormat", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: "stdout"}))
		assert.Equal(t, logrus.DebugLevel, logger.Level)
		_, ok := logger.Formatter.(*logrus.JSONFormatter)
		assert.True(t, ok)
	})

	t.Run("InvalidLevelDefaultsToInfo", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "loud", Format: "text"}))
		assert.Equal(t, logrus.InfoLevel, logger.Level)
	})

	t.Run("FileOutput", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "market.log")

		require.NoError(t, Init(Config{
			Level:      "info",
			Format:     "json",
			Output:     "file",
			Filename:   logFile,
			MaxSize:    10,
			MaxAge:     7,
			MaxBackups: 3,
		}))
		Info("test file message")

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "test file message")
	})
}

func TestServiceField(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	require.NoError(t, Init(Config{Level: "info", Format: "json", Service: "marketplace"}))
	logger.SetOutput(&buf)

	Info("started")
	entry := decode(t, &buf)
	assert.Equal(t, "marketplace", entry["service"])
}

func TestLevelsAndFields(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	logger = logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&buf)

	t.Run("Levels", func(t *testing.T) {
		for _, tc := range []struct {
			fn    func(...interface{})
			level string
		}{
			{Debug, "debug"},
			{Info, "info"},
			{Warn, "warning"},
			{Error, "error"},
		} {
			buf.Reset()
			tc.fn("hello")
			assert.Equal(t, tc.level, decode(t, &buf)["level"])
		}

		buf.Reset()
		Infof("order %d", 42)
		assert.Equal(t, "order 42", decode(t, &buf)["msg"])
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		WithFields(logrus.Fields{"vendor_id": 7, "action": "approve"}).Info("vendor approved")

		entry := decode(t, &buf)
		assert.Equal(t, "vendor approved", entry["msg"])
		assert.Equal(t, float64(7), entry["vendor_id"])
		assert.Equal(t, "approve", entry["action"])
	})

	t.Run("WithError", func(t *testing.T) {
		buf.Reset()
		WithError(assert.AnError).Error("operation failed")
		assert.Equal(t, assert.AnError.Error(), decode(t, &buf)["error"])
	})

	t.Run("WithContextAddsTraceIDs", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		}))

		buf.Reset()
		WithContext(ctx).Info("traced")
		entry := decode(t, &buf)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])

		buf.Reset()
		WithContext(context.Background()).Info("untraced")
		_, ok := decode(t, &buf)["trace_id"]
		assert.False(t, ok)
	})
}

func TestLevelFiltering(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	require.NoError(t, Init(Config{Level: "error", Format: "text"}))
	logger.SetOutput(&buf)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	assert.Empty(t, strings.TrimSpace(buf.String()))

	Error("error message")
	assert.Contains(t, buf.String(), "error message")
}

func TestSetLevel(t *testing.T) {
	restoreLogger(t)
	require.NoError(t, Init(Config{Level: "info", Format: "text"}))

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())
}

func TestGetLoggerWhenNotInitialized(t *testing.T) {
	restoreLogger(t)
	logger = nil
	assert.NotNil(t, GetLogger())
}
