package sim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ccw/server/internal/clips"
	"ccw/server/internal/combo"
	"ccw/server/internal/input"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
	"ccw/server/logging/simulation"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to per-actor
	// queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the global command buffer is saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectInvalid indicates the command named no actor or an unknown type.
	CommandRejectInvalid = "invalid"
)

const (
	metricTicks            = "sim_ticks_total"
	metricTickDuration     = "sim_tick_duration_micros"
	metricCommandsApplied  = "sim_commands_applied_total"
	metricCommandsRefused  = "sim_commands_refused_total"
	metricCommandsDropped  = "sim_command_drops_total"
	metricBudgetOverruns   = "sim_tick_budget_overruns_total"
	defaultTickRate        = 60
	defaultMaxDelta        = 100 * time.Millisecond
	defaultCommandCapacity = 1024
)

// Combat is the combo surface the loop drives. *combo.Machine satisfies it.
type Combat interface {
	TryStartAttack(actor string, heavy bool, dir input.Direction) bool
	TryChainAttack(actor string, heavy bool) bool
	CancelCombo(actor string) bool
	IsInCombo(actor string) bool
	OnAnimationEvent(actor string, tag combo.Tag)
	OnAnimationProgress(actor string, progress float64)
	Update(dt time.Duration)
	ActiveCount() int
}

// InputClock is the input buffer surface the loop drives. *input.Buffer
// satisfies it.
type InputClock interface {
	BufferDodge(actor string, dir input.Direction)
	Update(dt time.Duration)
}

// Equipper records weapon changes carried by equip commands.
type Equipper interface {
	Equip(actor string, weapon clips.WeaponCategory)
}

// Targets are the subsystems a tick advances.
type Targets struct {
	Combat  Combat
	Input   InputClock
	Weapons Equipper
}

// Deps carries shared infrastructure.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
	Tracer    trace.Tracer
}

// LoopConfig tunes the command buffer and tick loop orchestration.
type LoopConfig struct {
	TickRate        int
	MaxDelta        time.Duration
	CommandCapacity int
	PerActorLimit   int
	WarningStep     int
}

// LoopHooks observe the loop without owning it.
type LoopHooks struct {
	AfterStep      func(LoopStepResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}

// LoopStepResult summarises one tick.
type LoopStepResult struct {
	Tick         uint64
	Delta        time.Duration
	ClampedDelta bool
	Duration     time.Duration
	Budget       time.Duration
	Results      []CommandResult
	ActiveCombos int
}

// Loop owns the simulation clock: it stages commands from any goroutine and
// applies them at the start of each tick, then advances the input buffer
// before the combo machine so window-open consumption sees current expiry.
type Loop struct {
	targets   Targets
	buffer    *CommandBuffer
	hooks     LoopHooks
	config    LoopConfig
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher
	clock     logging.Clock
	tracer    trace.Tracer

	tick          atomic.Uint64
	overrunStreak uint64
	scratch       []Command

	queueMu       sync.Mutex
	perActorCount map[string]int
	dropCounts    map[string]uint64
}

// NewLoop wires a loop to the subsystems it drives.
func NewLoop(targets Targets, deps Deps, cfg LoopConfig, hooks LoopHooks) (*Loop, error) {
	if targets.Combat == nil || targets.Input == nil {
		return nil, errors.New("sim: combat and input targets are required")
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if cfg.MaxDelta <= 0 {
		cfg.MaxDelta = defaultMaxDelta
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = defaultCommandCapacity
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.LoggerFunc(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("ccw/server/internal/sim")
	}
	return &Loop{
		targets:       targets,
		buffer:        NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:         hooks,
		config:        cfg,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		publisher:     deps.Publisher,
		clock:         deps.Clock,
		tracer:        deps.Tracer,
		perActorCount: make(map[string]int),
		dropCounts:    make(map[string]uint64),
	}, nil
}

// Tick reports the number of the most recent tick.
func (l *Loop) Tick() uint64 {
	return l.tick.Load()
}

// Budget reports the wall-clock time one tick may take.
func (l *Loop) Budget() time.Duration {
	return time.Second / time.Duration(l.config.TickRate)
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	return l.buffer.Len()
}

// Enqueue stages a command, enforcing per-actor throttling and capacity limits.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if cmd.ActorID == "" || !cmd.Type.Valid() {
		l.reportDrop(CommandRejectInvalid, cmd, 0)
		return false, CommandRejectInvalid
	}
	if cmd.OriginTick == 0 {
		cmd.OriginTick = l.Tick()
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.clock.Now()
	}

	reason := ""
	var dropCount uint64
	warnAt := 0
	l.queueMu.Lock()
	if l.config.PerActorLimit > 0 {
		count := l.perActorCount[cmd.ActorID]
		if count >= l.config.PerActorLimit {
			reason = CommandRejectQueueLimit
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else {
			l.perActorCount[cmd.ActorID] = count + 1
		}
	}
	if reason == "" {
		if !l.buffer.Push(cmd) {
			reason = CommandRejectQueueFull
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else if step := l.config.WarningStep; step > 0 {
			if length := l.buffer.Len(); length >= step && length%step == 0 {
				warnAt = length
			}
		}
	}
	l.queueMu.Unlock()

	if reason != "" {
		l.reportDrop(reason, cmd, dropCount)
		return false, reason
	}
	if warnAt > 0 && l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(warnAt)
	}
	return true, ""
}

// Advance runs one tick of dt: staged commands are applied in arrival order,
// then the input buffer and the combo machine are updated.
func (l *Loop) Advance(ctx context.Context, dt time.Duration) LoopStepResult {
	tick := l.tick.Add(1)
	_, span := l.tracer.Start(ctx, "sim.tick", trace.WithAttributes(
		attribute.Int64("sim.tick", int64(tick)),
		attribute.Int64("sim.delta_micros", dt.Microseconds()),
	))
	defer span.End()

	commands := l.drainCommands()
	results := make([]CommandResult, 0, len(commands))
	for _, cmd := range commands {
		accepted := l.apply(cmd)
		if accepted {
			l.metrics.Add(metricCommandsApplied, 1)
		} else {
			l.metrics.Add(metricCommandsRefused, 1)
		}
		results = append(results, CommandResult{Command: cmd, Accepted: accepted})
	}

	l.targets.Input.Update(dt)
	l.targets.Combat.Update(dt)
	active := l.targets.Combat.ActiveCount()

	l.metrics.Add(metricTicks, 1)
	span.SetAttributes(
		attribute.Int("sim.commands", len(commands)),
		attribute.Int("combo.active", active),
	)
	return LoopStepResult{
		Tick:         tick,
		Delta:        dt,
		Results:      results,
		ActiveCombos: active,
	}
}

func (l *Loop) apply(cmd Command) bool {
	combat := l.targets.Combat
	switch cmd.Type {
	case CommandAttack:
		if combat.IsInCombo(cmd.ActorID) {
			return combat.TryChainAttack(cmd.ActorID, cmd.Heavy)
		}
		return combat.TryStartAttack(cmd.ActorID, cmd.Heavy, cmd.Direction)
	case CommandChain:
		return combat.TryChainAttack(cmd.ActorID, cmd.Heavy)
	case CommandCancel:
		return combat.CancelCombo(cmd.ActorID)
	case CommandDodge:
		l.targets.Input.BufferDodge(cmd.ActorID, cmd.Direction)
		return true
	case CommandAnimEvent:
		if cmd.Tag == combo.TagUnknown {
			return false
		}
		combat.OnAnimationEvent(cmd.ActorID, cmd.Tag)
		return true
	case CommandAnimProgress:
		combat.OnAnimationProgress(cmd.ActorID, cmd.Progress)
		return true
	case CommandEquip:
		if l.targets.Weapons == nil {
			return false
		}
		l.targets.Weapons.Equip(cmd.ActorID, cmd.Weapon)
		return true
	}
	return false
}

// Run drives the fixed-timestep loop until ctx is cancelled. Measured deltas
// above MaxDelta are clamped so a stalled process does not skip whole clips.
func (l *Loop) Run(ctx context.Context) {
	budget := l.Budget()
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	last := l.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := l.clock.Now()
			dt := now.Sub(last)
			last = now
			clamped := false
			if dt <= 0 {
				dt = budget
			} else if dt > l.config.MaxDelta {
				simulation.DeltaClamped(ctx, l.publisher, l.Tick()+1, simulation.DeltaClampedPayload{
					MeasuredMillis: dt.Milliseconds(),
					AppliedMillis:  l.config.MaxDelta.Milliseconds(),
				}, nil)
				dt = l.config.MaxDelta
				clamped = true
			}

			start := l.clock.Now()
			result := l.Advance(ctx, dt)
			result.Duration = l.clock.Now().Sub(start)
			result.Budget = budget
			result.ClampedDelta = clamped
			l.checkBudget(ctx, result)

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) checkBudget(ctx context.Context, result LoopStepResult) {
	l.metrics.Store(metricTickDuration, uint64(result.Duration.Microseconds()))
	if result.Duration <= result.Budget {
		l.overrunStreak = 0
		return
	}
	l.overrunStreak++
	l.metrics.Add(metricBudgetOverruns, 1)
	simulation.TickBudgetOverrun(ctx, l.publisher, result.Tick, simulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          float64(result.Duration) / float64(result.Budget),
		Streak:         l.overrunStreak,
		ActiveCombos:   result.ActiveCombos,
	}, nil)
}

func (l *Loop) drainCommands() []Command {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	l.scratch = l.buffer.DrainInto(l.scratch[:0])
	if len(l.perActorCount) > 0 {
		clear(l.perActorCount)
	}
	return l.scratch
}

func (l *Loop) incrementDropLocked(actorID string) uint64 {
	if actorID == "" {
		return 0
	}
	count := l.dropCounts[actorID] + 1
	l.dropCounts[actorID] = count
	return count
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	l.metrics.Add(metricCommandsDropped, 1)
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	simulation.CommandDropped(context.Background(), l.publisher, l.Tick(), logging.ActorRef(cmd.ActorID), simulation.CommandDroppedPayload{
		Command: string(cmd.Type),
		Reason:  reason,
		Count:   count,
	}, nil)
	if reason == CommandRejectQueueLimit && count > 0 && count&(count-1) == 0 {
		l.logger.Printf(
			"[backpressure] dropping command actor=%s type=%s count=%d limit=%d",
			cmd.ActorID,
			cmd.Type,
			count,
			l.config.PerActorLimit,
		)
	}
}

var _ Combat = (*combo.Machine)(nil)
var _ InputClock = (*input.Buffer)(nil)
var _ Equipper = (*combo.WeaponTable)(nil)
