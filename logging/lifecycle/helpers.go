package lifecycle

import (
	"context"

	"ccw/server/logging"
)

const (
	// EventSubsystemStarted is emitted when a subsystem finishes initialising.
	EventSubsystemStarted logging.EventType = "lifecycle.subsystem_started"
	// EventSubsystemReinitialized is emitted when Initialize is called on a running subsystem.
	EventSubsystemReinitialized logging.EventType = "lifecycle.subsystem_reinitialized"
	// EventSubsystemStopped is emitted when a subsystem shuts down and clears its registry.
	EventSubsystemStopped logging.EventType = "lifecycle.subsystem_stopped"
	// EventSessionJoined is emitted when a transport session binds to an actor.
	EventSessionJoined logging.EventType = "lifecycle.session_joined"
	// EventSessionLeft is emitted when a transport session ends.
	EventSessionLeft logging.EventType = "lifecycle.session_left"
	// EventSetReplaced is emitted when a registry entry is overwritten by name.
	EventSetReplaced logging.EventType = "lifecycle.set_replaced"
)

// SubsystemPayload names the subsystem and how much state it held.
type SubsystemPayload struct {
	Subsystem string `json:"subsystem"`
	Entries   int    `json:"entries,omitempty"`
}

// ReplacedPayload names the overwritten entry.
type ReplacedPayload struct {
	Subsystem string `json:"subsystem"`
	Name      string `json:"name"`
}

// SessionPayload describes a transport session.
type SessionPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// SubsystemStarted publishes a subsystem start event.
func SubsystemStarted(ctx context.Context, pub logging.Publisher, payload SubsystemPayload) {
	publish(ctx, pub, EventSubsystemStarted, logging.SeverityInfo, systemRef(payload.Subsystem), payload)
}

// SubsystemReinitialized publishes a warning for a redundant Initialize call.
func SubsystemReinitialized(ctx context.Context, pub logging.Publisher, payload SubsystemPayload) {
	publish(ctx, pub, EventSubsystemReinitialized, logging.SeverityWarn, systemRef(payload.Subsystem), payload)
}

// SubsystemStopped publishes a subsystem shutdown event.
func SubsystemStopped(ctx context.Context, pub logging.Publisher, payload SubsystemPayload) {
	publish(ctx, pub, EventSubsystemStopped, logging.SeverityInfo, systemRef(payload.Subsystem), payload)
}

// SessionJoined publishes a session bind event for actor.
func SessionJoined(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventSessionJoined, logging.SeverityInfo, actor, payload)
}

// SessionLeft publishes a session end event for actor.
func SessionLeft(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventSessionLeft, logging.SeverityInfo, actor, payload)
}

// SetReplaced publishes a warning when a named entry of a subsystem is overwritten.
func SetReplaced(ctx context.Context, pub logging.Publisher, payload ReplacedPayload) {
	publish(ctx, pub, EventSetReplaced, logging.SeverityWarn, systemRef(payload.Subsystem), payload)
}

func systemRef(name string) logging.EntityRef {
	return logging.EntityRef{ID: name, Kind: logging.EntityKindSystem}
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, actor logging.EntityRef, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
