package sim

import (
	"fmt"
	"time"

	"ccw/server/internal/clips"
	"ccw/server/internal/combo"
	"ccw/server/internal/input"
)

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	// CommandAttack starts a chain, or extends it when one is running.
	CommandAttack       CommandType = "attack"
	CommandChain        CommandType = "chain"
	CommandCancel       CommandType = "cancel"
	CommandDodge        CommandType = "dodge"
	CommandAnimEvent    CommandType = "animEvent"
	CommandAnimProgress CommandType = "animProgress"
	CommandEquip        CommandType = "equip"
)

// Valid reports whether t names a known command.
func (t CommandType) Valid() bool {
	switch t {
	case CommandAttack, CommandChain, CommandCancel, CommandDodge, CommandAnimEvent, CommandAnimProgress, CommandEquip:
		return true
	}
	return false
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64               `json:"originTick"`
	ActorID    string               `json:"actorId"`
	Type       CommandType          `json:"type"`
	IssuedAt   time.Time            `json:"issuedAt"`
	Seq        uint64               `json:"seq,omitempty"`
	Heavy      bool                 `json:"heavy,omitempty"`
	Direction  input.Direction      `json:"direction"`
	Tag        combo.Tag            `json:"tag,omitempty"`
	Progress   float64              `json:"progress,omitempty"`
	Weapon     clips.WeaponCategory `json:"weapon,omitempty"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%s)", c.Type, c.ActorID)
}

// CommandResult reports how a staged command fared when applied.
type CommandResult struct {
	Command  Command `json:"command"`
	Accepted bool    `json:"accepted"`
}
