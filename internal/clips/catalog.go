package clips

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ccw/server/logging"
	"ccw/server/logging/lifecycle"
)

// Catalog is the clip metadata provider: it owns every registered animation
// set and answers lookups from the combo machine.
type Catalog struct {
	mu          sync.RWMutex
	sets        map[string]*AnimationSet
	clips       map[string]Clip
	owners      map[string]string
	byWeapon    map[WeaponCategory]string
	publisher   logging.Publisher
	initialized bool
}

// NewCatalog returns an empty catalog.
func NewCatalog(pub logging.Publisher) *Catalog {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Catalog{
		sets:      make(map[string]*AnimationSet),
		clips:     make(map[string]Clip),
		owners:    make(map[string]string),
		byWeapon:  make(map[WeaponCategory]string),
		publisher: pub,
	}
}

// Initialize registers the placeholder greatsword set when nothing else has
// been loaded. Repeated calls are harmless.
func (c *Catalog) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		n := len(c.sets)
		c.mu.Unlock()
		lifecycle.SubsystemReinitialized(ctx, c.publisher, lifecycle.SubsystemPayload{Subsystem: "clips", Entries: n})
		return nil
	}
	c.initialized = true
	empty := len(c.sets) == 0
	c.mu.Unlock()

	if empty {
		if err := c.Register(DefaultSet()); err != nil {
			return fmt.Errorf("register default set: %w", err)
		}
	}
	lifecycle.SubsystemStarted(ctx, c.publisher, lifecycle.SubsystemPayload{Subsystem: "clips", Entries: c.Len()})
	return nil
}

// Shutdown forgets every registered set.
func (c *Catalog) Shutdown(ctx context.Context) {
	c.mu.Lock()
	n := len(c.sets)
	c.sets = make(map[string]*AnimationSet)
	c.clips = make(map[string]Clip)
	c.owners = make(map[string]string)
	c.byWeapon = make(map[WeaponCategory]string)
	c.initialized = false
	c.mu.Unlock()
	lifecycle.SubsystemStopped(ctx, c.publisher, lifecycle.SubsystemPayload{Subsystem: "clips", Entries: n})
}

// Register validates and stores set, replacing any set with the same name.
// The set becomes the one served for its weapon category.
func (c *Catalog) Register(set AnimationSet) error {
	if err := validateSet(set); err != nil {
		return err
	}
	stored := cloneSet(set)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, clip := range stored.clips() {
		if owner, ok := c.owners[clip.Name]; ok && owner != stored.Name {
			return fmt.Errorf("set %q: clip %q already registered by set %q", stored.Name, clip.Name, owner)
		}
	}
	replaced := false
	if previous, ok := c.sets[stored.Name]; ok {
		c.removeLocked(previous)
		replaced = true
	}
	c.sets[stored.Name] = &stored
	c.byWeapon[stored.Weapon] = stored.Name
	for _, clip := range stored.clips() {
		c.clips[clip.Name] = clip
		c.owners[clip.Name] = stored.Name
	}
	if replaced {
		lifecycle.SetReplaced(context.Background(), c.publisher, lifecycle.ReplacedPayload{Subsystem: "clips", Name: stored.Name})
	}
	return nil
}

// Unregister removes the named set and its clips.
func (c *Catalog) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.sets[name]; ok {
		c.removeLocked(set)
	}
}

func (c *Catalog) removeLocked(set *AnimationSet) {
	for _, clip := range set.clips() {
		delete(c.clips, clip.Name)
		delete(c.owners, clip.Name)
	}
	if c.byWeapon[set.Weapon] == set.Name {
		delete(c.byWeapon, set.Weapon)
	}
	delete(c.sets, set.Name)
}

// Set returns a copy of the named set.
func (c *Catalog) Set(name string) (AnimationSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.sets[name]
	if !ok {
		return AnimationSet{}, false
	}
	return cloneSet(*set), true
}

// SetNames lists registered set names in sorted order.
func (c *Catalog) SetNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sets))
	for name := range c.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered sets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets)
}

// Lookup returns the timing metadata for a clip.
func (c *Catalog) Lookup(name string) (Clip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clip, ok := c.clips[name]
	return clip, ok
}

// NextInChain returns the clip that follows current in the light or heavy
// chain, wrapping to the chain's first clip after the last one. When current
// belongs to the other chain of its set, the step continues in the requested
// chain at the following position, so a light opener can be chained into a
// heavy finisher. It fails when current is unknown or the requested chain is
// empty.
func (c *Catalog) NextInChain(current string, heavy bool) (Clip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[current]
	if !ok {
		return Clip{}, false
	}
	set := c.sets[owner]
	chain, other := set.Light, set.Heavy
	if heavy {
		chain, other = set.Heavy, set.Light
	}
	if len(chain) == 0 {
		return Clip{}, false
	}
	if i := indexOf(chain, current); i >= 0 {
		return chain[(i+1)%len(chain)], true
	}
	if i := indexOf(other, current); i >= 0 {
		return chain[(i+1)%len(chain)], true
	}
	return Clip{}, false
}

func indexOf(chain []Clip, name string) int {
	for i := range chain {
		if chain[i].Name == name {
			return i
		}
	}
	return -1
}

// ChainForWeapon returns the attack chains served for a weapon category.
func (c *Catalog) ChainForWeapon(weapon WeaponCategory) (Chain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byWeapon[weapon]
	if !ok {
		return Chain{}, false
	}
	set := c.sets[name]
	return Chain{
		Light:  append([]Clip(nil), set.Light...),
		Heavy:  append([]Clip(nil), set.Heavy...),
		Sprint: cloneClip(set.Sprint),
		Jump:   cloneClip(set.Jump),
	}, true
}

func validateSet(set AnimationSet) error {
	if set.Name == "" {
		return errors.New("animation set name is required")
	}
	if set.Weapon >= weaponCategoryCount {
		return fmt.Errorf("set %q: unknown weapon category %d", set.Name, set.Weapon)
	}
	seen := make(map[string]struct{})
	var errs []error
	for _, clip := range set.clips() {
		if clip.Name == "" {
			errs = append(errs, fmt.Errorf("set %q: clip without name", set.Name))
			continue
		}
		if _, dup := seen[clip.Name]; dup {
			errs = append(errs, fmt.Errorf("set %q: duplicate clip %q", set.Name, clip.Name))
		}
		seen[clip.Name] = struct{}{}
		if clip.Duration <= 0 {
			errs = append(errs, fmt.Errorf("set %q: clip %q: duration must be positive", set.Name, clip.Name))
		}
		if clip.HitFrame < 0 || clip.HitFrame > clip.Duration {
			errs = append(errs, fmt.Errorf("set %q: clip %q: hit frame outside clip", set.Name, clip.Name))
		}
		if !clip.ComboWindow.valid() {
			errs = append(errs, fmt.Errorf("set %q: clip %q: invalid combo window", set.Name, clip.Name))
		}
		if !clip.CancelWindow.valid() {
			errs = append(errs, fmt.Errorf("set %q: clip %q: invalid cancel window", set.Name, clip.Name))
		}
	}
	return errors.Join(errs...)
}
