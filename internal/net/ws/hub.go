package ws

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"ccw/server/internal/combo"
	"ccw/server/internal/net/proto"
	"ccw/server/internal/telemetry"
)

// ComboSource is the listener surface of the combo machine.
type ComboSource interface {
	OnHit(fn combo.Listener)
	OnChainAdvance(fn combo.Listener)
	OnComboEnd(fn combo.Listener)
}

// Hub tracks live sessions by actor and pushes combo notifications to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	tick     func() uint64
	logger   telemetry.Logger
}

// NewHub builds an empty hub. tick may be nil.
func NewHub(tick func() uint64, logger telemetry.Logger) *Hub {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Hub{
		sessions: make(map[string]map[*Session]struct{}),
		tick:     tick,
		logger:   logger,
	}
}

// Attach subscribes the hub to hit, chain and end notifications.
func (h *Hub) Attach(src ComboSource) {
	src.OnHit(func(actor string, state combo.State) { h.Notify(proto.EventHit, actor, state) })
	src.OnChainAdvance(func(actor string, state combo.State) { h.Notify(proto.EventChain, actor, state) })
	src.OnComboEnd(func(actor string, state combo.State) { h.Notify(proto.EventEnd, actor, state) })
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.actor]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.actor] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.actor]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, s.actor)
	}
}

// Notify pushes a combo notification to every session driving actor. A
// session whose write fails is closed; its read loop unregisters it.
func (h *Hub) Notify(kind, actor string, state combo.State) {
	targets := h.sessionsFor(actor)
	if len(targets) == 0 {
		return
	}
	var tick uint64
	if h.tick != nil {
		tick = h.tick()
	}
	data, err := proto.EncodeComboEvent(proto.ComboEvent{Kind: kind, Actor: actor, Tick: tick, State: state})
	if err != nil {
		h.logger.Printf("failed to encode %s notification for %s: %v", kind, actor, err)
		return
	}
	for _, s := range targets {
		if err := s.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("dropping session %s for %s: %v", s.id, actor, err)
			s.Close()
		}
	}
}

func (h *Hub) sessionsFor(actor string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.sessions[actor]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// SessionCount reports the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.sessions {
		total += len(set)
	}
	return total
}

// Actors lists the actors with at least one session, sorted.
func (h *Hub) Actors() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.sessions))
	for actor := range h.sessions {
		out = append(out, actor)
	}
	sort.Strings(out)
	return out
}

// CloseAll disconnects every session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var all []*Session
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}
