package clips

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccw/server/logging/lifecycle"
	"ccw/server/logging/sinks"
)

func testClip(name string) Clip {
	return Clip{
		Name:         name,
		Duration:     time.Second,
		HitFrame:     300 * time.Millisecond,
		ComboWindow:  Window{Start: 0.4, End: 0.75},
		CancelWindow: Window{Start: 0.6, End: 0.9},
		Weapon:       OneHandSword,
	}
}

func swordSet() AnimationSet {
	return AnimationSet{
		Name:   "sword",
		Weapon: OneHandSword,
		Light:  []Clip{testClip("l1"), testClip("l2"), testClip("l3")},
		Heavy:  []Clip{testClip("h1")},
	}
}

func TestCatalogLookupAndChain(t *testing.T) {
	c := NewCatalog(nil)
	require.NoError(t, c.Register(swordSet()))

	clip, ok := c.Lookup("l2")
	require.True(t, ok)
	assert.Equal(t, time.Second, clip.Duration)

	next, ok := c.NextInChain("l1", false)
	require.True(t, ok)
	assert.Equal(t, "l2", next.Name)

	wrapped, ok := c.NextInChain("l3", false)
	require.True(t, ok)
	assert.Equal(t, "l1", wrapped.Name, "last clip wraps to the first")

	single, ok := c.NextInChain("h1", true)
	require.True(t, ok)
	assert.Equal(t, "h1", single.Name)

	switched, ok := c.NextInChain("l1", true)
	require.True(t, ok)
	assert.Equal(t, "h1", switched.Name, "light step continues in the heavy chain")

	back, ok := c.NextInChain("h1", false)
	require.True(t, ok)
	assert.Equal(t, "l2", back.Name)

	_, ok = c.NextInChain("missing", false)
	assert.False(t, ok)

	lightOnly := AnimationSet{Name: "dagger", Weapon: OneHandDagger, Light: []Clip{testClip("d1")}}
	require.NoError(t, c.Register(lightOnly))
	_, ok = c.NextInChain("d1", true)
	assert.False(t, ok, "no heavy chain to continue into")
}

func TestCatalogChainForWeapon(t *testing.T) {
	c := NewCatalog(nil)
	require.NoError(t, c.Register(swordSet()))

	chain, ok := c.ChainForWeapon(OneHandSword)
	require.True(t, ok)
	assert.Len(t, chain.Light, 3)
	assert.Len(t, chain.Heavy, 1)
	assert.Nil(t, chain.Sprint)

	chain.Light[0].Name = "mutated"
	again, _ := c.ChainForWeapon(OneHandSword)
	assert.Equal(t, "l1", again.Light[0].Name, "callers receive copies")

	_, ok = c.ChainForWeapon(Staff)
	assert.False(t, ok)
}

func TestCatalogReplaceAndUnregister(t *testing.T) {
	mem := sinks.NewMemory()
	c := NewCatalog(mem)
	require.NoError(t, c.Register(swordSet()))

	replacement := swordSet()
	replacement.Light = replacement.Light[:1]
	require.NoError(t, c.Register(replacement))
	assert.Len(t, mem.OfType(lifecycle.EventSetReplaced), 1)

	_, ok := c.Lookup("l2")
	assert.False(t, ok, "clips of the replaced set are forgotten")

	c.Unregister("sword")
	assert.Zero(t, c.Len())
	_, ok = c.ChainForWeapon(OneHandSword)
	assert.False(t, ok)
}

func TestCatalogRejectsInvalidSets(t *testing.T) {
	c := NewCatalog(nil)

	bad := swordSet()
	bad.Light[1].ComboWindow = Window{Start: 0.8, End: 0.2}
	assert.Error(t, c.Register(bad))

	bad = swordSet()
	bad.Heavy[0].Duration = 0
	assert.Error(t, c.Register(bad))

	bad = swordSet()
	bad.Heavy[0].Name = "l1"
	assert.Error(t, c.Register(bad))

	assert.Error(t, c.Register(AnimationSet{}))

	require.NoError(t, c.Register(swordSet()))
	other := swordSet()
	other.Name = "other"
	assert.Error(t, c.Register(other), "clip names are unique across sets")
}

func TestCatalogInitializeRegistersDefault(t *testing.T) {
	mem := sinks.NewMemory()
	c := NewCatalog(mem)
	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, []string{DefaultSetName}, c.SetNames())

	chain, ok := c.ChainForWeapon(TwoHandSword)
	require.True(t, ok)
	require.Len(t, chain.Light, 4)
	assert.Equal(t, 900*time.Millisecond, chain.Light[0].Duration)
	assert.Equal(t, 1200*time.Millisecond, chain.Light[3].Duration)
	require.Len(t, chain.Heavy, 2)
	assert.Equal(t, 1500*time.Millisecond, chain.Heavy[1].Duration)

	require.NoError(t, c.Initialize(context.Background()))
	assert.Len(t, mem.OfType(lifecycle.EventSubsystemReinitialized), 1)

	c.Shutdown(context.Background())
	assert.Zero(t, c.Len())
}

func TestWeaponCategoryNames(t *testing.T) {
	for w := Unarmed; w < weaponCategoryCount; w++ {
		parsed, err := ParseWeaponCategory(w.String())
		require.NoError(t, err)
		assert.Equal(t, w, parsed)
	}
	_, err := ParseWeaponCategory("trebuchet")
	assert.Error(t, err)

	w, err := ParseWeaponCategory("twohandsword")
	require.NoError(t, err)
	assert.Equal(t, TwoHandSword, w)
}

func TestWindowContainsIsClosed(t *testing.T) {
	w := Window{Start: 0.4, End: 0.75}
	assert.True(t, w.Contains(0.4))
	assert.True(t, w.Contains(0.75))
	assert.False(t, w.Contains(0.39))
	assert.False(t, w.Contains(0.76))
}
