package simulation

import (
	"context"

	"ccw/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a tick takes longer than its budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventDeltaClamped is emitted when a stalled loop resumes with a delta above the cap.
	EventDeltaClamped logging.EventType = "simulation.delta_clamped"
	// EventCommandDropped is emitted when a staged command is refused.
	EventCommandDropped logging.EventType = "simulation.command_dropped"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
	ActiveCombos   int     `json:"activeCombos"`
}

// DeltaClampedPayload captures the measured and applied tick deltas.
type DeltaClampedPayload struct {
	MeasuredMillis int64 `json:"measuredMillis"`
	AppliedMillis  int64 `json:"appliedMillis"`
}

// CommandDroppedPayload names the refused command and the reason.
type CommandDroppedPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
	Count   uint64 `json:"count"`
}

// TickBudgetOverrun publishes a warning when the loop exceeds the tick budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	publish(ctx, pub, EventTickBudgetOverrun, logging.SeverityWarn, tick, logging.EntityRef{Kind: logging.EntityKindSystem}, payload, extra)
}

// DeltaClamped publishes a debug event when the applied delta was capped.
func DeltaClamped(ctx context.Context, pub logging.Publisher, tick uint64, payload DeltaClampedPayload, extra map[string]any) {
	publish(ctx, pub, EventDeltaClamped, logging.SeverityDebug, tick, logging.EntityRef{Kind: logging.EntityKindSystem}, payload, extra)
}

// CommandDropped publishes a warning for a command refused by the staging buffer.
func CommandDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CommandDroppedPayload, extra map[string]any) {
	publish(ctx, pub, EventCommandDropped, logging.SeverityWarn, tick, actor, payload, extra)
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
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	})
}
