package combo

import (
	"sync"

	"ccw/server/internal/clips"
	"ccw/server/internal/input"
)

// ClipProvider answers clip timing and chain lookups.
type ClipProvider interface {
	Lookup(name string) (clips.Clip, bool)
	NextInChain(current string, heavy bool) (clips.Clip, bool)
	ChainForWeapon(weapon clips.WeaponCategory) (clips.Chain, bool)
}

// InputBuffer stores early chain requests until the combo window opens.
type InputBuffer interface {
	BufferAttack(actor string, heavy bool, dir input.Direction)
	ConsumeBufferedAttack(actor string) (input.BufferedInput, bool)
	ClearBuffer(actor string)
}

// WeaponResolver reports the weapon category an actor currently wields.
type WeaponResolver interface {
	WeaponFor(actor string) clips.WeaponCategory
}

// WeaponResolverFunc adapts a function into a WeaponResolver.
type WeaponResolverFunc func(actor string) clips.WeaponCategory

func (f WeaponResolverFunc) WeaponFor(actor string) clips.WeaponCategory {
	return f(actor)
}

// Player starts clip playback on an actor. A false return means the clip
// could not be played; the machine logs it and keeps its state.
type Player interface {
	RequestPlay(actor string, clip clips.Clip) bool
}

// PlayerFunc adapts a function into a Player.
type PlayerFunc func(actor string, clip clips.Clip) bool

func (f PlayerFunc) RequestPlay(actor string, clip clips.Clip) bool {
	return f(actor, clip)
}

type acceptAllPlayer struct{}

func (acceptAllPlayer) RequestPlay(string, clips.Clip) bool { return true }

// WeaponTable is a concurrency-safe actor to weapon mapping with a fallback
// category for actors that never equipped anything.
type WeaponTable struct {
	mu       sync.RWMutex
	fallback clips.WeaponCategory
	weapons  map[string]clips.WeaponCategory
}

// NewWeaponTable returns a table answering fallback for unknown actors.
func NewWeaponTable(fallback clips.WeaponCategory) *WeaponTable {
	return &WeaponTable{fallback: fallback, weapons: make(map[string]clips.WeaponCategory)}
}

// Equip records the weapon category actor wields.
func (t *WeaponTable) Equip(actor string, weapon clips.WeaponCategory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.weapons[actor] = weapon
}

// Forget drops actor's entry.
func (t *WeaponTable) Forget(actor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.weapons, actor)
}

func (t *WeaponTable) WeaponFor(actor string) clips.WeaponCategory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if weapon, ok := t.weapons[actor]; ok {
		return weapon
	}
	return t.fallback
}
