package clips

import (
	"fmt"
	"time"
)

// DefaultSetName names the placeholder set registered when no clip files are
// configured.
const DefaultSetName = "ccw_default_greatsword"

// DefaultSet returns the placeholder greatsword move list: four light swings
// of 0.9s to 1.2s and two heavy swings of 1.35s and 1.5s.
func DefaultSet() AnimationSet {
	set := AnimationSet{Name: DefaultSetName, Weapon: TwoHandSword}
	for i := 1; i <= 4; i++ {
		set.Light = append(set.Light, Clip{
			Name:         fmt.Sprintf("ccw_gs_light_%d", i),
			Path:         fmt.Sprintf("meshes/actors/character/animations/ccw/greatsword/attack_light_%d.hkx", i),
			Duration:     800*time.Millisecond + time.Duration(i)*100*time.Millisecond,
			HitFrame:     300 * time.Millisecond,
			ComboWindow:  Window{Start: 0.4, End: 0.75},
			CancelWindow: DefaultCancelWindow,
			Weapon:       TwoHandSword,
		})
	}
	for i := 1; i <= 2; i++ {
		set.Heavy = append(set.Heavy, Clip{
			Name:         fmt.Sprintf("ccw_gs_heavy_%d", i),
			Path:         fmt.Sprintf("meshes/actors/character/animations/ccw/greatsword/attack_heavy_%d.hkx", i),
			Duration:     1200*time.Millisecond + time.Duration(i)*150*time.Millisecond,
			HitFrame:     500 * time.Millisecond,
			ComboWindow:  Window{Start: 0.6, End: 0.9},
			CancelWindow: DefaultCancelWindow,
			Weapon:       TwoHandSword,
		})
	}
	return set
}
