package sinks

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ccw/server/logging"
)

func sampleEvent(eventType logging.EventType, sev logging.Severity) logging.Event {
	return logging.Event{
		Type:     eventType,
		Tick:     12,
		Time:     time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Actor:    logging.ActorRef("p1"),
		Severity: sev,
		Category: logging.CategoryCombo,
		Payload:  map[string]any{"step": 2},
	}
}

func TestConsoleFormatsEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsole(&buf, logging.ConsoleConfig{UseColor: true})
	require.NoError(t, sink.Write(sampleEvent("combo.chained", logging.SeverityWarn)))

	line := buf.String()
	assert.Contains(t, line, "[combo.chained] tick=12 actor=actor:p1 severity=warn")
	assert.Contains(t, line, `payload={"step":2}`)
	assert.Contains(t, line, colorYellow)
}

func TestJSONSinkWritesOneObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "combo.jsonl")
	sink, err := OpenJSONFile(logging.JSONConfig{FilePath: path})
	require.NoError(t, err)

	require.NoError(t, sink.Write(sampleEvent("combo.started", logging.SeverityInfo)))
	event := sampleEvent("combo.ended", logging.SeverityInfo)
	event.CommandID = "cmd-7"
	require.NoError(t, sink.Write(event))
	require.NoError(t, sink.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var decoded []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		decoded = append(decoded, obj)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, decoded, 2)
	assert.Equal(t, "combo.started", decoded[0]["type"])
	assert.Equal(t, "info", decoded[0]["severity"])
	assert.Equal(t, "cmd-7", decoded[1]["commandId"])
}

func TestOpenJSONFileRequiresPath(t *testing.T) {
	_, err := OpenJSONFile(logging.JSONConfig{})
	require.Error(t, err)
}

func TestSQLiteJournalsEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal", "events.db")
	sink, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(sampleEvent("combo.started", logging.SeverityInfo)))
	require.NoError(t, sink.Write(sampleEvent("combo.hit", logging.SeverityInfo)))
	withExtra := sampleEvent("combo.hit", logging.SeverityInfo).WithExtra("window", "combo")
	require.NoError(t, sink.Write(withExtra))

	counts, err := sink.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"combo.started": 1, "combo.hit": 2}, counts)
	require.NoError(t, sink.Close(ctx))

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close(ctx)
	counts, err = reopened.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["combo.hit"], "journal survives a reopen")
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	require.ErrorContains(t, err, "path is required")
}

func TestZapSinkMapsSeverity(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZap(zap.New(core))

	require.NoError(t, sink.Write(sampleEvent("combo.rejected", logging.SeverityWarn)))
	require.NoError(t, sink.Write(sampleEvent("combo.debug", logging.SeverityDebug).WithExtra("reason", "outside_window")))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "combo.rejected", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "actor:p1", entries[0].ContextMap()["actor"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "outside_window", entries[1].ContextMap()["reason"])
}

func TestNewZapLoggerRejectsUnknownFormat(t *testing.T) {
	_, err := NewZapLogger("xml", logging.SeverityInfo)
	require.Error(t, err)

	logger, err := NewZapLogger("json", logging.SeverityWarn)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestMemoryOfTypeAndReset(t *testing.T) {
	sink := NewMemory()
	sink.Publish(context.Background(), sampleEvent("a", logging.SeverityInfo))
	sink.Publish(context.Background(), sampleEvent("b", logging.SeverityInfo))
	sink.Publish(context.Background(), sampleEvent("a", logging.SeverityInfo))

	assert.Len(t, sink.OfType("a"), 2)
	assert.Len(t, sink.Events(), 3)
	sink.Reset()
	assert.Empty(t, sink.Events())
}

func TestFromConfigOpensNamedSinks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"console", "json", "zap", "sqlite", "memory"}
	cfg.JSON.FilePath = filepath.Join(dir, "events.jsonl")
	cfg.SQLite.Path = filepath.Join(dir, "events.db")

	opened, err := FromConfig(ctx, cfg, &bytes.Buffer{}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, opened, 5)
	for name, sink := range opened {
		assert.NoError(t, sink.Close(ctx), name)
	}

	cfg.SQLite.Path = ""
	cfg.EnabledSinks = []string{"sqlite"}
	opened, err = FromConfig(ctx, cfg, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, opened, "sqlite without a path is skipped")

	cfg.EnabledSinks = []string{"console", "carrier-pigeon"}
	_, err = FromConfig(ctx, cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "carrier-pigeon"))
}
