package clips

import (
	"fmt"
	"strings"
	"time"
)

// WeaponCategory groups equipped weapons that share an animation set.
type WeaponCategory uint8

const (
	Unarmed WeaponCategory = iota
	OneHandSword
	OneHandAxe
	OneHandMace
	OneHandDagger
	TwoHandSword
	TwoHandAxe
	DualWield
	SwordAndShield
	Staff
	weaponCategoryCount
)

var weaponNames = [...]string{
	Unarmed:        "Unarmed",
	OneHandSword:   "OneHandSword",
	OneHandAxe:     "OneHandAxe",
	OneHandMace:    "OneHandMace",
	OneHandDagger:  "OneHandDagger",
	TwoHandSword:   "TwoHandSword",
	TwoHandAxe:     "TwoHandAxe",
	DualWield:      "DualWield",
	SwordAndShield: "SwordAndShield",
	Staff:          "Staff",
}

func (w WeaponCategory) String() string {
	if w < weaponCategoryCount {
		return weaponNames[w]
	}
	return fmt.Sprintf("WeaponCategory(%d)", uint8(w))
}

// ParseWeaponCategory resolves a category name, ignoring case.
func ParseWeaponCategory(raw string) (WeaponCategory, error) {
	for i, name := range weaponNames {
		if strings.EqualFold(name, strings.TrimSpace(raw)) {
			return WeaponCategory(i), nil
		}
	}
	return Unarmed, fmt.Errorf("unknown weapon category %q", raw)
}

// Window is a normalized [Start, End] interval of clip playback.
type Window struct {
	Start float64
	End   float64
}

// Contains reports whether progress lies inside the closed interval.
func (w Window) Contains(progress float64) bool {
	return progress >= w.Start && progress <= w.End
}

func (w Window) valid() bool {
	return w.Start >= 0 && w.End <= 1 && w.Start <= w.End
}

// Clip is the read-only timing metadata of one attack animation.
type Clip struct {
	Name         string
	Path         string
	Duration     time.Duration
	HitFrame     time.Duration
	ComboWindow  Window
	CancelWindow Window
	RootMotion   bool
	Weapon       WeaponCategory
	// Direction is the movement input the clip answers to, if any.
	Direction string
}

// AnimationSet is the full move list for one weapon category.
type AnimationSet struct {
	Name         string
	Weapon       WeaponCategory
	Light        []Clip
	Heavy        []Clip
	Special      []Clip
	Sprint       *Clip
	Jump         *Clip
	GuardCounter *Clip
	Backstep     *Clip
	DodgeRoll    *Clip
}

// Chain is the subset of a set the combo machine starts attacks from.
type Chain struct {
	Light  []Clip
	Heavy  []Clip
	Sprint *Clip
	Jump   *Clip
}

func (s *AnimationSet) clips() []Clip {
	all := make([]Clip, 0, len(s.Light)+len(s.Heavy)+len(s.Special)+5)
	all = append(all, s.Light...)
	all = append(all, s.Heavy...)
	all = append(all, s.Special...)
	for _, optional := range []*Clip{s.Sprint, s.Jump, s.GuardCounter, s.Backstep, s.DodgeRoll} {
		if optional != nil {
			all = append(all, *optional)
		}
	}
	return all
}

func cloneSet(set AnimationSet) AnimationSet {
	cloned := set
	cloned.Light = append([]Clip(nil), set.Light...)
	cloned.Heavy = append([]Clip(nil), set.Heavy...)
	cloned.Special = append([]Clip(nil), set.Special...)
	cloned.Sprint = cloneClip(set.Sprint)
	cloned.Jump = cloneClip(set.Jump)
	cloned.GuardCounter = cloneClip(set.GuardCounter)
	cloned.Backstep = cloneClip(set.Backstep)
	cloned.DodgeRoll = cloneClip(set.DodgeRoll)
	return cloned
}

func cloneClip(clip *Clip) *Clip {
	if clip == nil {
		return nil
	}
	copied := *clip
	return &copied
}
