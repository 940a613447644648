package input

import (
	"context"
	"sync/atomic"
	"time"

	"ccw/server/internal/simutil"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
	inputlog "ccw/server/logging/input"
	"ccw/server/logging/lifecycle"
)

// Queue capacities and duration bounds.
const (
	AttackCapacity  = 3
	DodgeCapacity   = 2
	DefaultDuration = 300 * time.Millisecond
	MinDuration     = 50 * time.Millisecond
	MaxDuration     = time.Second
)

const (
	metricBuffered = "input_buffered_total"
	metricEvicted  = "input_evicted_total"
	metricConsumed = "input_consumed_total"
	metricExpired  = "input_expired_total"
	metricActors   = "input_buffer_actors"
)

// BufferedInput is an intent recorded before it could be applied.
type BufferedInput struct {
	Heavy     bool
	Direction Direction
	// Timestamp is the buffer clock at insertion.
	Timestamp time.Duration
}

type actorQueues struct {
	attacks queue
	dodges  queue
}

func newActorQueues() *actorQueues {
	return &actorQueues{
		attacks: newQueue(AttackCapacity),
		dodges:  newQueue(DodgeCapacity),
	}
}

func (a *actorQueues) empty() bool {
	return a.attacks.len() == 0 && a.dodges.len() == 0
}

// Config wires a Buffer to its collaborators. Zero values fall back to
// defaults.
type Config struct {
	Duration  time.Duration
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	// Tick reports the current simulation tick for published events.
	Tick func() uint64
}

// Buffer holds short-lived attack and dodge intents per actor. Entries older
// than the configured duration are never handed out.
type Buffer struct {
	entries     *simutil.Registry[string, *actorQueues]
	clock       atomic.Int64
	duration    atomic.Int64
	publisher   logging.Publisher
	metrics     telemetry.Metrics
	tick        func() uint64
	initialized atomic.Bool
}

// NewBuffer constructs an empty buffer with its clock at zero.
func NewBuffer(cfg Config) *Buffer {
	b := &Buffer{
		entries:   simutil.NewRegistry[string, *actorQueues](),
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		tick:      cfg.Tick,
	}
	if b.publisher == nil {
		b.publisher = logging.NopPublisher()
	}
	if b.metrics == nil {
		b.metrics = telemetry.NopMetrics()
	}
	if b.tick == nil {
		b.tick = func() uint64 { return 0 }
	}
	duration := cfg.Duration
	if duration == 0 {
		duration = DefaultDuration
	}
	b.duration.Store(int64(clampDuration(duration)))
	return b
}

// Initialize marks the buffer live. Calling it again only logs.
func (b *Buffer) Initialize(ctx context.Context) {
	if !b.initialized.CompareAndSwap(false, true) {
		lifecycle.SubsystemReinitialized(ctx, b.publisher, lifecycle.SubsystemPayload{Subsystem: "input", Entries: b.entries.Len()})
		return
	}
	lifecycle.SubsystemStarted(ctx, b.publisher, lifecycle.SubsystemPayload{Subsystem: "input"})
}

// Shutdown drops every pending intent.
func (b *Buffer) Shutdown(ctx context.Context) {
	n := b.entries.Clear()
	b.initialized.Store(false)
	b.metrics.Store(metricActors, 0)
	lifecycle.SubsystemStopped(ctx, b.publisher, lifecycle.SubsystemPayload{Subsystem: "input", Entries: n})
}

// Now reports the buffer clock.
func (b *Buffer) Now() time.Duration {
	return time.Duration(b.clock.Load())
}

// BufferDuration reports how long an intent stays valid.
func (b *Buffer) BufferDuration() time.Duration {
	return time.Duration(b.duration.Load())
}

// SetBufferDuration changes the expiry for every later check, clamped to
// [MinDuration, MaxDuration].
func (b *Buffer) SetBufferDuration(d time.Duration) {
	b.duration.Store(int64(clampDuration(d)))
}

func clampDuration(d time.Duration) time.Duration {
	return min(max(d, MinDuration), MaxDuration)
}

// BufferAttack queues an attack intent, evicting the oldest one when the
// queue already holds AttackCapacity entries.
func (b *Buffer) BufferAttack(actor string, heavy bool, dir Direction) {
	b.push(actor, inputlog.QueueAttack, BufferedInput{Heavy: heavy, Direction: dir})
}

// BufferDodge queues a dodge intent with the same eviction rule as attacks.
func (b *Buffer) BufferDodge(actor string, dir Direction) {
	b.push(actor, inputlog.QueueDodge, BufferedInput{Direction: dir})
}

func (b *Buffer) push(actor, name string, in BufferedInput) {
	if actor == "" {
		return
	}
	var (
		evicted    BufferedInput
		didEvict   bool
		depth      int
		actorCount int
	)
	b.entries.Mutate(func(entries map[string]*actorQueues) {
		in.Timestamp = b.Now()
		queues, ok := entries[actor]
		if !ok {
			queues = newActorQueues()
			entries[actor] = queues
		}
		q := queues.pick(name)
		evicted, didEvict = q.push(in)
		depth = q.len()
		actorCount = len(entries)
	})

	ctx := context.Background()
	ref := logging.ActorRef(actor)
	tick := b.tick()
	if didEvict {
		b.metrics.Add(metricEvicted, 1)
		inputlog.Evicted(ctx, b.publisher, tick, ref, b.payload(name, evicted, depth), nil)
	}
	b.metrics.Add(metricBuffered, 1)
	b.metrics.Store(metricActors, uint64(actorCount))
	inputlog.Buffered(ctx, b.publisher, tick, ref, b.payload(name, in, depth), nil)
}

func (a *actorQueues) pick(name string) *queue {
	if name == inputlog.QueueDodge {
		return &a.dodges
	}
	return &a.attacks
}

// ConsumeBufferedAttack removes and returns the oldest attack intent that has
// not expired. Expired entries in front of it are discarded.
func (b *Buffer) ConsumeBufferedAttack(actor string) (BufferedInput, bool) {
	return b.consume(actor, inputlog.QueueAttack)
}

// ConsumeBufferedDodge is ConsumeBufferedAttack for the dodge queue.
func (b *Buffer) ConsumeBufferedDodge(actor string) (BufferedInput, bool) {
	return b.consume(actor, inputlog.QueueDodge)
}

func (b *Buffer) consume(actor, name string) (BufferedInput, bool) {
	if actor == "" {
		return BufferedInput{}, false
	}
	var (
		found   BufferedInput
		ok      bool
		expired int
		depth   int
		now     time.Duration
	)
	b.entries.Mutate(func(entries map[string]*actorQueues) {
		queues, exists := entries[actor]
		if !exists {
			return
		}
		now = b.Now()
		limit := b.BufferDuration()
		q := queues.pick(name)
		for {
			in, more := q.pop()
			if !more {
				break
			}
			if now-in.Timestamp > limit {
				expired++
				continue
			}
			found, ok = in, true
			break
		}
		depth = q.len()
		if queues.empty() {
			delete(entries, actor)
		}
	})

	ctx := context.Background()
	ref := logging.ActorRef(actor)
	if expired > 0 {
		b.metrics.Add(metricExpired, uint64(expired))
		inputlog.Expired(ctx, b.publisher, b.tick(), ref, inputlog.ExpiredPayload{Queue: name, Count: expired}, nil)
	}
	if ok {
		b.metrics.Add(metricConsumed, 1)
		payload := b.payload(name, found, depth)
		payload.AgeMillis = (now - found.Timestamp).Milliseconds()
		inputlog.Consumed(ctx, b.publisher, b.tick(), ref, payload, nil)
	}
	return found, ok
}

// ClearBuffer drops both queues of actor.
func (b *Buffer) ClearBuffer(actor string) {
	if actor == "" {
		return
	}
	if _, ok := b.entries.Delete(actor); ok {
		b.metrics.Store(metricActors, uint64(b.entries.Len()))
	}
}

// Update advances the clock by dt, drops expired entries from the front of
// every queue and forgets actors with nothing left pending.
func (b *Buffer) Update(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	type expiry struct {
		actor string
		queue string
		count int
	}
	var (
		expiries   []expiry
		actorCount int
	)
	b.entries.Mutate(func(entries map[string]*actorQueues) {
		now := time.Duration(b.clock.Add(int64(dt)))
		limit := b.BufferDuration()
		for actor, queues := range entries {
			if n := dropExpired(&queues.attacks, now, limit); n > 0 {
				expiries = append(expiries, expiry{actor, inputlog.QueueAttack, n})
			}
			if n := dropExpired(&queues.dodges, now, limit); n > 0 {
				expiries = append(expiries, expiry{actor, inputlog.QueueDodge, n})
			}
			if queues.empty() {
				delete(entries, actor)
			}
		}
		actorCount = len(entries)
	})

	b.metrics.Store(metricActors, uint64(actorCount))
	if len(expiries) == 0 {
		return
	}
	ctx := context.Background()
	tick := b.tick()
	for _, e := range expiries {
		b.metrics.Add(metricExpired, uint64(e.count))
		inputlog.Expired(ctx, b.publisher, tick, logging.ActorRef(e.actor), inputlog.ExpiredPayload{Queue: e.queue, Count: e.count}, nil)
	}
}

func dropExpired(q *queue, now, limit time.Duration) int {
	dropped := 0
	for {
		in, ok := q.front()
		if !ok || now-in.Timestamp <= limit {
			return dropped
		}
		q.pop()
		dropped++
	}
}

// Pending reports how many attack and dodge intents actor has queued,
// including ones that expired since the last Update.
func (b *Buffer) Pending(actor string) (attacks, dodges int) {
	b.entries.Read(func(entries map[string]*actorQueues) {
		if queues, ok := entries[actor]; ok {
			attacks = queues.attacks.len()
			dodges = queues.dodges.len()
		}
	})
	return attacks, dodges
}

// Peek copies actor's attack queue oldest first without consuming it.
func (b *Buffer) Peek(actor string) []BufferedInput {
	var out []BufferedInput
	b.entries.Read(func(entries map[string]*actorQueues) {
		if queues, ok := entries[actor]; ok {
			out = queues.attacks.items()
		}
	})
	return out
}

// Len reports how many actors have pending input.
func (b *Buffer) Len() int {
	return b.entries.Len()
}

func (b *Buffer) payload(name string, in BufferedInput, depth int) inputlog.IntentPayload {
	return inputlog.IntentPayload{
		Queue:     name,
		Heavy:     in.Heavy,
		Direction: in.Direction.String(),
		Stamp:     in.Timestamp.Seconds(),
		Depth:     depth,
	}
}
