package proto

import (
	"encoding/json"
	"fmt"

	"ccw/server/internal/clips"
	"ccw/server/internal/combo"
	"ccw/server/internal/input"
	"ccw/server/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	typeHello         = "hello"
	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
)

// Client message type identifiers.
const (
	TypeAttack       = "attack"
	TypeChain        = "chain"
	TypeCancel       = "cancel"
	TypeDodge        = "dodge"
	TypeAnimEvent    = "animEvent"
	TypeAnimProgress = "animProgress"
	TypeEquip        = "equip"
)

// Outbound combo notification types.
const (
	EventHit   = "hit"
	EventChain = "chain"
	EventEnd   = "end"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeHello         = typeHello
	TypeCommandAck    = typeCommandAck
	TypeCommandReject = typeCommandReject
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver        int      `json:"ver,omitempty"`
	Type       string   `json:"type"`
	Heavy      bool     `json:"heavy,omitempty"`
	Direction  string   `json:"direction,omitempty"`
	Tag        string   `json:"tag,omitempty"`
	Progress   *float64 `json:"progress,omitempty"`
	Weapon     string   `json:"weapon,omitempty"`
	CommandSeq *uint64  `json:"seq,omitempty"`
}

// Seq returns the client sequence number, zero when absent.
func (m ClientMessage) Seq() uint64 {
	if m.CommandSeq == nil {
		return 0
	}
	return *m.CommandSeq
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// ClientCommand converts a client message into the simulation command it
// carries. Origin metadata is filled in when the command is staged.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	var zero sim.Command
	switch msg.Type {
	case TypeAttack, TypeDodge:
		dir, err := input.ParseDirection(msg.Direction)
		if err != nil {
			return zero, false
		}
		cmdType := sim.CommandAttack
		if msg.Type == TypeDodge {
			cmdType = sim.CommandDodge
		}
		return sim.Command{Type: cmdType, Heavy: msg.Heavy, Direction: dir, Seq: msg.Seq()}, true
	case TypeChain:
		return sim.Command{Type: sim.CommandChain, Heavy: msg.Heavy, Seq: msg.Seq()}, true
	case TypeCancel:
		return sim.Command{Type: sim.CommandCancel, Seq: msg.Seq()}, true
	case TypeAnimEvent:
		tag, ok := combo.ParseTag(msg.Tag)
		if !ok {
			return zero, false
		}
		return sim.Command{Type: sim.CommandAnimEvent, Tag: tag, Seq: msg.Seq()}, true
	case TypeAnimProgress:
		if msg.Progress == nil {
			return zero, false
		}
		return sim.Command{Type: sim.CommandAnimProgress, Progress: *msg.Progress, Seq: msg.Seq()}, true
	case TypeEquip:
		weapon, err := clips.ParseWeaponCategory(msg.Weapon)
		if err != nil {
			return zero, false
		}
		return sim.Command{Type: sim.CommandEquip, Weapon: weapon, Seq: msg.Seq()}, true
	default:
		return zero, false
	}
}

// Hello greets a freshly upgraded session with the actor it controls.
type Hello struct {
	Actor string
	Tick  uint64
}

// EncodeHello renders the session greeting.
func EncodeHello(msg Hello) ([]byte, error) {
	frame := struct {
		Ver   int    `json:"ver"`
		Type  string `json:"type"`
		Actor string `json:"actor"`
		Tick  uint64 `json:"tick,omitempty"`
	}{
		Ver:   Version,
		Type:  typeHello,
		Actor: msg.Actor,
		Tick:  msg.Tick,
	}
	return json.Marshal(frame)
}

// CommandAck describes an acknowledgement of a staged command.
type CommandAck struct {
	Seq  uint64
	Tick uint64
}

// EncodeCommandAck renders a command acknowledgement response.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	frame := struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
		Tick uint64 `json:"tick,omitempty"`
	}{
		Ver:  Version,
		Type: typeCommandAck,
		Seq:  msg.Seq,
	}
	if msg.Tick > 0 {
		frame.Tick = msg.Tick
	}
	return json.Marshal(frame)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Seq    uint64
	Reason string
	Retry  bool
	Tick   uint64
}

// EncodeCommandReject renders a command rejection response.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
		Tick   uint64 `json:"tick,omitempty"`
	}{
		Ver:    Version,
		Type:   typeCommandReject,
		Seq:    msg.Seq,
		Reason: msg.Reason,
		Retry:  msg.Retry,
		Tick:   msg.Tick,
	}
	return json.Marshal(frame)
}

// StateView is the wire rendering of a combo state.
type StateView struct {
	Clip           string  `json:"clip"`
	Step           int     `json:"step"`
	Progress       float64 `json:"progress"`
	ElapsedMillis  int64   `json:"elapsedMillis"`
	InComboWindow  bool    `json:"inComboWindow"`
	InCancelWindow bool    `json:"inCancelWindow"`
	Heavy          bool    `json:"heavy"`
	HitTriggered   bool    `json:"hitTriggered"`
	Committed      bool    `json:"committed"`
	Weapon         string  `json:"weapon"`
}

// NewStateView flattens a combo state for clients.
func NewStateView(state combo.State) StateView {
	return StateView{
		Clip:           state.Clip.Name,
		Step:           state.Index,
		Progress:       state.Progress,
		ElapsedMillis:  state.Elapsed.Milliseconds(),
		InComboWindow:  state.InComboWindow,
		InCancelWindow: state.InCancelWindow,
		Heavy:          state.Heavy,
		HitTriggered:   state.HitTriggered,
		Committed:      state.Committed,
		Weapon:         state.Weapon.String(),
	}
}

// ComboEvent pushes a combo notification for the session's actor.
type ComboEvent struct {
	Kind  string
	Actor string
	Tick  uint64
	State combo.State
}

// EncodeComboEvent renders a hit, chain or end notification.
func EncodeComboEvent(msg ComboEvent) ([]byte, error) {
	switch msg.Kind {
	case EventHit, EventChain, EventEnd:
	default:
		return nil, fmt.Errorf("unknown combo event kind %q", msg.Kind)
	}
	frame := struct {
		Ver   int       `json:"ver"`
		Type  string    `json:"type"`
		Actor string    `json:"actor"`
		Tick  uint64    `json:"tick,omitempty"`
		State StateView `json:"state"`
	}{
		Ver:   Version,
		Type:  msg.Kind,
		Actor: msg.Actor,
		Tick:  msg.Tick,
		State: NewStateView(msg.State),
	}
	return json.Marshal(frame)
}
