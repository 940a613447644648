package combo

import (
	"context"
	"fmt"
	"sync"

	"ccw/server/logging"
	combolog "ccw/server/logging/combo"
)

// Listener receives an actor and a snapshot of its state.
type Listener func(actor string, state State)

type listenerKind string

const (
	kindStart listenerKind = "start"
	kindHit   listenerKind = "hit"
	kindChain listenerKind = "chain"
	kindEnd   listenerKind = "end"
	kindPlay  listenerKind = "play"
)

type listenerList struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (l *listenerList) add(fn Listener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *listenerList) snapshot() []Listener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Listener(nil), l.listeners...)
}

func (l *listenerList) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = nil
}

// notice is a listener call or play request recorded under the registry
// lock and delivered after it is released.
type notice struct {
	kind     listenerKind
	actor    string
	state    State
	reason   string
	buffered bool
}

// OnHit registers fn for hit-frame notifications.
func (m *Machine) OnHit(fn Listener) { m.hit.add(fn) }

// OnChainAdvance registers fn for chain-advance notifications.
func (m *Machine) OnChainAdvance(fn Listener) { m.chain.add(fn) }

// OnComboEnd registers fn for end-of-chain notifications.
func (m *Machine) OnComboEnd(fn Listener) { m.end.add(fn) }

func (m *Machine) listFor(kind listenerKind) *listenerList {
	switch kind {
	case kindHit:
		return &m.hit
	case kindChain:
		return &m.chain
	case kindEnd:
		return &m.end
	default:
		return nil
	}
}

// deliver publishes and dispatches recorded notices in order. It must be
// called without the registry lock held.
func (m *Machine) deliver(notices []notice) {
	ctx := context.Background()
	for _, n := range notices {
		if n.kind == kindPlay {
			m.requestPlay(n.actor, n.state)
			continue
		}
		m.record(ctx, n)
		list := m.listFor(n.kind)
		if list == nil {
			continue
		}
		for i, fn := range list.snapshot() {
			m.invoke(n.kind, i, fn, n.actor, n.state)
		}
	}
}

func (m *Machine) record(ctx context.Context, n notice) {
	ref := logging.ActorRef(n.actor)
	payload := combolog.StepPayload{
		Clip:     n.state.Clip.Name,
		Step:     n.state.Index,
		Heavy:    n.state.Heavy,
		Weapon:   n.state.Weapon.String(),
		Progress: n.state.Progress,
		Buffered: n.buffered,
	}
	tick := m.tick()
	switch n.kind {
	case kindStart:
		m.metrics.Add(metricStarted, 1)
		combolog.Started(ctx, m.publisher, tick, ref, payload, nil)
	case kindHit:
		m.metrics.Add(metricHits, 1)
		combolog.Hit(ctx, m.publisher, tick, ref, payload, nil)
	case kindChain:
		m.metrics.Add(metricChained, 1)
		if n.buffered {
			m.metrics.Add(metricBufferedChains, 1)
		}
		combolog.Chained(ctx, m.publisher, tick, ref, payload, nil)
	case kindEnd:
		m.metrics.Add(metricEnded, 1)
		combolog.Ended(ctx, m.publisher, tick, ref, combolog.EndedPayload{StepPayload: payload, Reason: n.reason}, nil)
	}
}

func (m *Machine) invoke(kind listenerKind, index int, fn Listener, actor string, state State) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.Add(metricListenerPanics, 1)
			combolog.ListenerPanic(context.Background(), m.publisher, m.tick(), logging.ActorRef(actor), combolog.ListenerPanicPayload{
				Listener: string(kind),
				Index:    index,
				Value:    fmt.Sprint(r),
			}, nil)
		}
	}()
	fn(actor, state)
}

func (m *Machine) requestPlay(actor string, state State) {
	if m.player.RequestPlay(actor, state.Clip) {
		return
	}
	m.metrics.Add(metricPlaybackFailed, 1)
	combolog.PlaybackFailed(context.Background(), m.publisher, m.tick(), logging.ActorRef(actor), combolog.PlaybackFailedPayload{
		Clip: state.Clip.Name,
		Step: state.Index,
	}, nil)
}
