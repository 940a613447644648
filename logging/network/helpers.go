package network

import (
	"context"

	"ccw/server/logging"
)

const (
	// EventMalformedMessage is emitted when a client frame cannot be decoded.
	EventMalformedMessage logging.EventType = "network.malformed_message"
	// EventCommandRejected is emitted when a client command is refused before staging.
	EventCommandRejected logging.EventType = "network.command_rejected"
)

// MalformedPayload records the decode failure.
type MalformedPayload struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

// CommandRejectedPayload records why a client command was refused.
type CommandRejectedPayload struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Seq       uint64 `json:"seq,omitempty"`
	Reason    string `json:"reason"`
}

// MalformedMessage publishes a warning for an undecodable client frame.
func MalformedMessage(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MalformedPayload) {
	publish(ctx, pub, EventMalformedMessage, logging.SeverityWarn, tick, actor, payload)
}

// CommandRejected publishes a debug event for a refused client command.
func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CommandRejectedPayload) {
	publish(ctx, pub, EventCommandRejected, logging.SeverityDebug, tick, actor, payload)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: "network",
		Payload:  payload,
	})
}
