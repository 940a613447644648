package combo

import (
	"context"

	"ccw/server/logging"
)

const (
	// EventStarted is emitted when an actor commits to the first clip of a chain.
	EventStarted logging.EventType = "combo.started"
	// EventChained is emitted when a chain advances to its next clip.
	EventChained logging.EventType = "combo.chained"
	// EventHit is emitted once per combo step when the hit frame is reached.
	EventHit logging.EventType = "combo.hit"
	// EventEnded is emitted when a chain ends for any reason.
	EventEnded logging.EventType = "combo.ended"
	// EventRejected is emitted when a start, chain or cancel request fails softly.
	EventRejected logging.EventType = "combo.rejected"
	// EventPlaybackFailed is emitted when the animation collaborator refuses a clip.
	EventPlaybackFailed logging.EventType = "combo.playback_failed"
	// EventListenerPanic is emitted when a registered listener panics.
	EventListenerPanic logging.EventType = "combo.listener_panic"
)

// End reasons carried by EndedPayload.
const (
	EndAnimationEnd = "animation_end"
	EndProgress     = "progress_complete"
	EndCancelled    = "cancelled"
)

// StepPayload describes the combo step an event refers to.
type StepPayload struct {
	Clip     string  `json:"clip"`
	Step     int     `json:"step"`
	Heavy    bool    `json:"heavy"`
	Weapon   string  `json:"weapon"`
	Progress float64 `json:"progress"`
	Buffered bool    `json:"buffered,omitempty"`
}

// EndedPayload captures the final step and why the chain stopped.
type EndedPayload struct {
	StepPayload
	Reason string `json:"reason"`
}

// RejectedPayload names the refused operation and the reason.
type RejectedPayload struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
	Step      int    `json:"step,omitempty"`
}

// PlaybackFailedPayload names the clip that could not be played.
type PlaybackFailedPayload struct {
	Clip string `json:"clip"`
	Step int    `json:"step"`
}

// ListenerPanicPayload records a recovered listener panic.
type ListenerPanicPayload struct {
	Listener string `json:"listener"`
	Index    int    `json:"index"`
	Value    string `json:"value"`
}

// Started publishes a combo start event.
func Started(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StepPayload, extra map[string]any) {
	publish(ctx, pub, EventStarted, logging.SeverityInfo, tick, actor, payload, extra)
}

// Chained publishes a chain advance event.
func Chained(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StepPayload, extra map[string]any) {
	publish(ctx, pub, EventChained, logging.SeverityInfo, tick, actor, payload, extra)
}

// Hit publishes a hit-frame event.
func Hit(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StepPayload, extra map[string]any) {
	publish(ctx, pub, EventHit, logging.SeverityInfo, tick, actor, payload, extra)
}

// Ended publishes a combo end event.
func Ended(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EndedPayload, extra map[string]any) {
	publish(ctx, pub, EventEnded, logging.SeverityInfo, tick, actor, payload, extra)
}

// Rejected publishes a debug event for a soft failure.
func Rejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RejectedPayload, extra map[string]any) {
	publish(ctx, pub, EventRejected, logging.SeverityDebug, tick, actor, payload, extra)
}

// PlaybackFailed publishes a warning when a play request is refused.
func PlaybackFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlaybackFailedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlaybackFailed, logging.SeverityWarn, tick, actor, payload, extra)
}

// ListenerPanic publishes an error when a listener panics.
func ListenerPanic(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ListenerPanicPayload, extra map[string]any) {
	publish(ctx, pub, EventListenerPanic, logging.SeverityError, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryCombo,
		Payload:  payload,
		Extra:    extra,
	})
}
