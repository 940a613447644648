package logging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu       sync.Mutex
	events   []Event
	closed   bool
	closeErr error
}

func (s *captureSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRouterFlushesQueuedEventsOnClose(t *testing.T) {
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.MinimumSeverity = SeverityInfo
	cfg.Fields = map[string]any{"service": "ccw"}

	router, err := NewRouter(cfg, ClockFunc(func() time.Time { return stamp }), nil, map[string]Sink{"capture": sink})
	require.NoError(t, err)

	ctx := context.Background()
	router.Publish(ctx, Event{Type: "combo.started", Tick: 1, Severity: SeverityInfo, Actor: ActorRef("p1")})
	router.Publish(ctx, Event{Type: "combo.debug", Tick: 1, Severity: SeverityDebug})
	router.Publish(ctx, Event{Type: "", Tick: 2, Severity: SeverityError})
	router.Publish(ctx, Event{Type: "combo.ended", Tick: 3, Severity: SeverityWarn, Extra: map[string]any{"service": "override"}})

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, router.Close(closeCtx))

	events := sink.snapshot()
	require.Len(t, events, 2, "debug events and untyped events are filtered")
	assert.Equal(t, EventType("combo.started"), events[0].Type)
	assert.Equal(t, stamp, events[0].Time)
	assert.Equal(t, "ccw", events[0].Extra["service"])
	assert.Equal(t, "override", events[1].Extra["service"], "event fields win over router fields")
	assert.True(t, sink.closed)

	stats := router.Stats()
	assert.EqualValues(t, 2, stats.EventsTotal)
	assert.Zero(t, stats.DroppedTotal)

	router.Publish(ctx, Event{Type: "late", Severity: SeverityError})
	assert.Len(t, sink.snapshot(), 2, "publishing after close is ignored")
}

func TestRouterCloseReportsSinkErrors(t *testing.T) {
	sink := &captureSink{closeErr: errors.New("disk gone")}
	router, err := NewRouter(DefaultConfig(), nil, nil, map[string]Sink{"capture": sink})
	require.NoError(t, err)
	require.ErrorContains(t, router.Close(context.Background()), "disk gone")
}

func TestRouterSinkLookup(t *testing.T) {
	sink := &captureSink{}
	router, err := NewRouter(DefaultConfig(), nil, nil, map[string]Sink{"capture": sink, "skipped": nil})
	require.NoError(t, err)
	defer router.Close(context.Background())

	assert.Same(t, sink, router.Sink("capture"))
	assert.Nil(t, router.Sink("skipped"))
	assert.NotNil(t, router.Metrics())
}

func TestWithFieldsDecoratesPublisher(t *testing.T) {
	var got []Event
	base := PublisherFunc(func(_ context.Context, event Event) { got = append(got, event) })
	pub := WithFields(base, map[string]any{"region": "eu"})

	original := Event{Type: "x", Extra: map[string]any{"keep": 1}}
	pub.Publish(context.Background(), original)

	require.Len(t, got, 1)
	assert.Equal(t, "eu", got[0].Extra["region"])
	assert.Equal(t, 1, got[0].Extra["keep"])
	_, leaked := original.Extra["region"]
	assert.False(t, leaked, "the caller's map is not mutated")

	assert.Equal(t, NopPublisher(), WithFields(nil, nil))
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"":        SeverityInfo,
		"debug":   SeverityDebug,
		" WARN ":  SeverityWarn,
		"warning": SeverityWarn,
		"error":   SeverityError,
	}
	for raw, want := range cases {
		got, err := ParseSeverity(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseSeverity("loud")
	assert.Error(t, err)
}

func TestMetricsSnapshotAndKeys(t *testing.T) {
	var metrics Metrics
	metrics.TelemetryAdd("b_total", 2)
	metrics.TelemetryAdd("b_total", 3)
	metrics.TelemetryStore("a_gauge", 7)
	metrics.TelemetryAdd("", 1)

	assert.Equal(t, map[string]uint64{"a_gauge": 7, "b_total": 5}, metrics.Snapshot())
	assert.Equal(t, []string{"a_gauge", "b_total"}, metrics.Keys())

	var nilMetrics *Metrics
	nilMetrics.TelemetryAdd("x", 1)
	assert.Empty(t, nilMetrics.Snapshot())
}
