package telemetry

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ccw/server/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WrapLogger(log.New(&buf, "", 0))
		logger.Printf("hello %s", "world")
		assert.Equal(t, "hello world\n", buf.String())
	})
}

func TestWrapZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := WrapZap(zap.New(core))
	logger.Printf("listening on %s", ":8080")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "listening on :8080", entries[0].Message)

	WrapZap(nil).Printf("ignored")
}

func TestStdLoggerForwards(t *testing.T) {
	var lines []string
	std := StdLogger(LoggerFunc(func(format string, args ...any) {
		lines = append(lines, format)
		lines[len(lines)-1] = args[0].(string)
	}))
	std.Print("tls handshake error")
	assert.Equal(t, []string{"tls handshake error"}, lines)
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add("test_counter", 2)
	adapter.Store("test_counter", 5)
	adapter.Add("test_counter", 3)

	assert.Equal(t, uint64(8), metrics.Snapshot()["test_counter"])

	nilAdapter := WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
	NopMetrics().Add("ignored", 1)
}
