package input

import (
	"context"

	"ccw/server/logging"
)

const (
	// EventBuffered is emitted when an intent is queued for later consumption.
	EventBuffered logging.EventType = "input.buffered"
	// EventEvicted is emitted when a full queue drops its oldest intent.
	EventEvicted logging.EventType = "input.evicted"
	// EventConsumed is emitted when a queued intent is handed to a consumer.
	EventConsumed logging.EventType = "input.consumed"
	// EventExpired is emitted when intents age out before being consumed.
	EventExpired logging.EventType = "input.expired"
)

// Queue names carried in payloads.
const (
	QueueAttack = "attack"
	QueueDodge  = "dodge"
)

// IntentPayload describes a single buffered intent.
type IntentPayload struct {
	Queue     string  `json:"queue"`
	Heavy     bool    `json:"heavy,omitempty"`
	Direction string  `json:"direction"`
	Stamp     float64 `json:"stampSeconds"`
	AgeMillis int64   `json:"ageMillis,omitempty"`
	Depth     int     `json:"depth"`
}

// ExpiredPayload counts intents dropped for age.
type ExpiredPayload struct {
	Queue string `json:"queue"`
	Count int    `json:"count"`
}

// Buffered publishes a debug event for a newly queued intent.
func Buffered(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload IntentPayload, extra map[string]any) {
	publish(ctx, pub, EventBuffered, tick, actor, payload, extra)
}

// Evicted publishes a debug event for an intent pushed out by a newer one.
func Evicted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload IntentPayload, extra map[string]any) {
	publish(ctx, pub, EventEvicted, tick, actor, payload, extra)
}

// Consumed publishes a debug event for an intent handed to a consumer.
func Consumed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload IntentPayload, extra map[string]any) {
	publish(ctx, pub, EventConsumed, tick, actor, payload, extra)
}

// Expired publishes a debug event for intents that aged out.
func Expired(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ExpiredPayload, extra map[string]any) {
	publish(ctx, pub, EventExpired, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryInput,
		Payload:  payload,
		Extra:    extra,
	})
}
