package combo

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync/atomic"

	"ccw/server/internal/clips"
	"ccw/server/internal/input"
	"ccw/server/internal/simutil"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
	combolog "ccw/server/logging/combo"
	"ccw/server/logging/lifecycle"
)

const (
	metricStarted        = "combo_started_total"
	metricChained        = "combo_chained_total"
	metricBufferedChains = "combo_buffered_chains_total"
	metricHits           = "combo_hits_total"
	metricEnded          = "combo_ended_total"
	metricRejected       = "combo_rejected_total"
	metricPlaybackFailed = "combo_playback_failed_total"
	metricListenerPanics = "combo_listener_panics_total"
	metricActive         = "combo_active"
)

// Rejection reasons carried by combo.rejected events.
const (
	ReasonNoChain       = "no_chain_for_weapon"
	ReasonEmptyChain    = "empty_chain"
	ReasonNotInCombo    = "not_in_combo"
	ReasonOutsideWindow = "outside_window"
	ReasonMaxLength     = "max_length"
	ReasonNoNextClip    = "no_next_clip"
	ReasonCommitted     = "committed"
)

// Config wires a Machine to its collaborators. Clips and Buffer are required.
type Config struct {
	Clips     ClipProvider
	Buffer    InputBuffer
	Weapons   WeaponResolver
	Player    Player
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	// Tick reports the current simulation tick for published events.
	Tick func() uint64
}

// Machine tracks every actor's attack chain. All state lives in one
// registry: queries share its lock, every transition holds it exclusively.
// Listener calls and play requests are issued after the lock is released so
// they may call back into the machine.
type Machine struct {
	states      *simutil.Registry[string, *State]
	clips       ClipProvider
	buffer      InputBuffer
	weapons     WeaponResolver
	player      Player
	publisher   logging.Publisher
	metrics     telemetry.Metrics
	tick        func() uint64
	initialized atomic.Bool

	hit   listenerList
	chain listenerList
	end   listenerList
}

// NewMachine constructs a machine. It accepts commands once Initialize has
// been called.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Clips == nil {
		return nil, errors.New("combo: clip provider is required")
	}
	if cfg.Buffer == nil {
		return nil, errors.New("combo: input buffer is required")
	}
	m := &Machine{
		states:    simutil.NewRegistry[string, *State](),
		clips:     cfg.Clips,
		buffer:    cfg.Buffer,
		weapons:   cfg.Weapons,
		player:    cfg.Player,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		tick:      cfg.Tick,
	}
	if m.weapons == nil {
		m.weapons = NewWeaponTable(clips.Unarmed)
	}
	if m.player == nil {
		m.player = acceptAllPlayer{}
	}
	if m.publisher == nil {
		m.publisher = logging.NopPublisher()
	}
	if m.metrics == nil {
		m.metrics = telemetry.NopMetrics()
	}
	if m.tick == nil {
		m.tick = func() uint64 { return 0 }
	}
	return m, nil
}

// Initialize enables the machine. Calling it again is harmless and logged.
func (m *Machine) Initialize(ctx context.Context) {
	if !m.initialized.CompareAndSwap(false, true) {
		lifecycle.SubsystemReinitialized(ctx, m.publisher, lifecycle.SubsystemPayload{Subsystem: "combo", Entries: m.states.Len()})
		return
	}
	lifecycle.SubsystemStarted(ctx, m.publisher, lifecycle.SubsystemPayload{Subsystem: "combo"})
}

// Shutdown drops every combo state and listener and disables the machine.
func (m *Machine) Shutdown(ctx context.Context) {
	m.initialized.Store(false)
	n := m.states.Clear()
	m.hit.clear()
	m.chain.clear()
	m.end.clear()
	m.metrics.Store(metricActive, 0)
	lifecycle.SubsystemStopped(ctx, m.publisher, lifecycle.SubsystemPayload{Subsystem: "combo", Entries: n})
}

// TryStartAttack begins a chain with the first light or heavy clip for the
// actor's weapon. Sprinting and jumping attacks open with the weapon's
// dedicated clip when it has one. A running chain for the actor is replaced.
func (m *Machine) TryStartAttack(actor string, heavy bool, dir input.Direction) bool {
	if actor == "" || !m.initialized.Load() {
		return false
	}
	weapon := m.weapons.WeaponFor(actor)
	chain, ok := m.clips.ChainForWeapon(weapon)
	if !ok {
		m.reject(actor, "start", ReasonNoChain, 0)
		return false
	}
	list := chain.Light
	if heavy {
		list = chain.Heavy
	}
	if len(list) == 0 {
		m.reject(actor, "start", ReasonEmptyChain, 0)
		return false
	}
	clip := list[0]
	switch {
	case dir == input.Sprinting && chain.Sprint != nil:
		clip = *chain.Sprint
	case dir == input.Jumping && chain.Jump != nil:
		clip = *chain.Jump
	}

	fresh := &State{
		Clip:      clip,
		Index:     1,
		Heavy:     heavy,
		Committed: true,
		Weapon:    weapon,
	}
	snap := *fresh
	var active int
	m.states.Mutate(func(entries map[string]*State) {
		entries[actor] = fresh
		active = len(entries)
	})
	m.metrics.Store(metricActive, uint64(active))
	m.deliver([]notice{
		{kind: kindStart, actor: actor, state: snap},
		{kind: kindPlay, actor: actor, state: snap},
	})
	return true
}

// TryChainAttack extends the actor's chain. Inside the combo window the
// chain advances at once. Before that, while the actor is still committed,
// the request is buffered and applied when the window opens; true then means
// accepted, not applied.
func (m *Machine) TryChainAttack(actor string, heavy bool) bool {
	if actor == "" || !m.initialized.Load() {
		return false
	}
	var (
		notices []notice
		reason  string
		step    int
		ok      bool
	)
	m.states.Mutate(func(entries map[string]*State) {
		st, exists := entries[actor]
		if !exists || !st.IsActive() {
			reason = ReasonNotInCombo
			return
		}
		step = st.Index
		switch {
		case st.InComboWindow:
			notices, reason = m.advanceLocked(actor, st, heavy, false)
			ok = reason == ""
		case st.Committed:
			m.buffer.BufferAttack(actor, heavy, input.Neutral)
			ok = true
		default:
			reason = ReasonOutsideWindow
		}
	})
	m.deliver(notices)
	if !ok {
		m.reject(actor, "chain", reason, step)
	}
	return ok
}

// AdvanceCombo moves the actor to the next clip of the light or heavy chain
// regardless of windows. It fails without side effects at MaxComboLength or
// when no next clip exists.
func (m *Machine) AdvanceCombo(actor string, heavy bool) bool {
	if actor == "" || !m.initialized.Load() {
		return false
	}
	var (
		notices []notice
		reason  string
		step    int
	)
	m.states.Mutate(func(entries map[string]*State) {
		st, exists := entries[actor]
		if !exists || !st.IsActive() {
			reason = ReasonNotInCombo
			return
		}
		step = st.Index
		notices, reason = m.advanceLocked(actor, st, heavy, false)
	})
	m.deliver(notices)
	if reason != "" {
		m.reject(actor, "advance", reason, step)
		return false
	}
	return true
}

func (m *Machine) advanceLocked(actor string, st *State, heavy, buffered bool) ([]notice, string) {
	if st.Index >= MaxComboLength {
		return nil, ReasonMaxLength
	}
	next, ok := m.clips.NextInChain(st.Clip.Name, heavy)
	if !ok {
		return nil, ReasonNoNextClip
	}
	st.Clip = next
	st.Index++
	st.Progress = 0
	st.Elapsed = 0
	st.Heavy = heavy
	st.Committed = true
	st.HitTriggered = false
	st.InComboWindow = false
	st.InCancelWindow = false
	snap := *st
	return []notice{
		{kind: kindChain, actor: actor, state: snap, buffered: buffered},
		{kind: kindPlay, actor: actor, state: snap},
	}, ""
}

// CancelCombo ends the actor's chain when the cancel window is open or the
// actor is no longer committed, and reports whether it did.
func (m *Machine) CancelCombo(actor string) bool {
	if actor == "" || !m.initialized.Load() {
		return false
	}
	var (
		notices []notice
		reason  string
		step    int
	)
	m.states.Mutate(func(entries map[string]*State) {
		st, exists := entries[actor]
		if !exists || !st.IsActive() {
			reason = ReasonNotInCombo
			return
		}
		step = st.Index
		if !st.InCancelWindow && st.Committed {
			reason = ReasonCommitted
			return
		}
		notices = m.endLocked(entries, actor, st, combolog.EndCancelled)
	})
	m.deliver(notices)
	if reason != "" {
		m.reject(actor, "cancel", reason, step)
		return false
	}
	return true
}

// endLocked removes the actor's state and pending input and records the end
// notice with the final snapshot.
func (m *Machine) endLocked(entries map[string]*State, actor string, st *State, reason string) []notice {
	snap := *st
	st.Reset()
	delete(entries, actor)
	m.buffer.ClearBuffer(actor)
	return []notice{{kind: kindEnd, actor: actor, state: snap, reason: reason}}
}

// GetComboState returns a snapshot of the actor's active chain.
func (m *Machine) GetComboState(actor string) (State, bool) {
	var (
		state State
		ok    bool
	)
	m.states.Read(func(entries map[string]*State) {
		if st, exists := entries[actor]; exists && st.IsActive() {
			state, ok = *st, true
		}
	})
	return state, ok
}

func (m *Machine) IsInCombo(actor string) bool {
	_, ok := m.GetComboState(actor)
	return ok
}

func (m *Machine) IsInComboWindow(actor string) bool {
	st, ok := m.GetComboState(actor)
	return ok && st.InComboWindow
}

func (m *Machine) IsCommitted(actor string) bool {
	st, ok := m.GetComboState(actor)
	return ok && st.Committed
}

// ActiveCount reports how many actors are mid-chain.
func (m *Machine) ActiveCount() int {
	return m.states.Len()
}

// Snapshot copies every active state, ordered by actor.
func (m *Machine) Snapshot() []ActorState {
	var out []ActorState
	m.states.Read(func(entries map[string]*State) {
		out = make([]ActorState, 0, len(entries))
		for actor, st := range entries {
			out = append(out, ActorState{Actor: actor, State: *st})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Actor < out[j].Actor })
	return out
}

// OnAnimationEvent applies a tag reported by the playback environment.
func (m *Machine) OnAnimationEvent(actor string, tag Tag) {
	if actor == "" || !m.initialized.Load() {
		return
	}
	var notices []notice
	m.states.Mutate(func(entries map[string]*State) {
		st, exists := entries[actor]
		if !exists || !st.IsActive() {
			return
		}
		switch tag {
		case ComboWindowOpen:
			st.InComboWindow = true
		case ComboWindowClose:
			st.InComboWindow = false
		case CancelWindowOpen:
			st.InCancelWindow = true
			st.Committed = false
		case CancelWindowClose:
			st.InCancelWindow = false
		case HitFrame:
			if !st.HitTriggered {
				st.HitTriggered = true
				notices = append(notices, notice{kind: kindHit, actor: actor, state: *st})
			}
		case AnimationEnd:
			notices = m.endLocked(entries, actor, st, combolog.EndAnimationEnd)
		}
	})
	m.deliver(notices)
}

// OnAnimationProgress overrides the tick-based progress estimate. The value
// is clamped to [0,1] and elapsed time follows it, so the next Update
// continues from the reported position.
func (m *Machine) OnAnimationProgress(actor string, progress float64) {
	if actor == "" || !m.initialized.Load() {
		return
	}
	if math.IsNaN(progress) {
		return
	}
	progress = min(max(progress, 0), 1)
	m.states.Mutate(func(entries map[string]*State) {
		st, exists := entries[actor]
		if !exists || !st.IsActive() {
			return
		}
		st.Progress = progress
		if st.Clip.Duration > 0 {
			st.Elapsed = durationAt(st.Clip.Duration, progress)
		}
	})
}

func (m *Machine) reject(actor, operation, reason string, step int) {
	m.metrics.Add(metricRejected, 1)
	combolog.Rejected(context.Background(), m.publisher, m.tick(), logging.ActorRef(actor), combolog.RejectedPayload{
		Operation: operation,
		Reason:    reason,
		Step:      step,
	}, nil)
}
