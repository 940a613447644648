package combo

import (
	"time"

	"ccw/server/internal/clips"
)

// MaxComboLength caps how many steps a single chain may reach.
const MaxComboLength = 8

// State is one actor's progress through an attack chain. Values returned by
// the machine are snapshots.
type State struct {
	Clip           clips.Clip
	Index          int
	Progress       float64
	Elapsed        time.Duration
	InComboWindow  bool
	InCancelWindow bool
	Heavy          bool
	HitTriggered   bool
	Committed      bool
	Weapon         clips.WeaponCategory
}

// IsActive reports whether the state belongs to a running chain.
func (s State) IsActive() bool {
	return s.Index > 0
}

// Reset returns the state to inactive.
func (s *State) Reset() {
	*s = State{}
}

// ActorState pairs an actor with its state for diagnostics.
type ActorState struct {
	Actor string `json:"actor"`
	State State  `json:"state"`
}
