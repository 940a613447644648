package combo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTag(t *testing.T) {
	cases := map[string]Tag{
		"ComboWindowOpen":   ComboWindowOpen,
		"combowindowclose":  ComboWindowClose,
		"CCW_CancelOpen":    CancelWindowOpen,
		"CCW_CancelClose":   CancelWindowClose,
		"CCW_HitFrame":      HitFrame,
		"HitFrame":          HitFrame,
		"bashRelease":       HitFrame,
		"CCW_AnimEnd":       AnimationEnd,
		"attackStop":        AnimationEnd,
		" CCW_ComboOpen ":   ComboWindowOpen,
		"AnimationEnd":      AnimationEnd,
		"CancelWindowClose": CancelWindowClose,
	}
	for raw, want := range cases {
		got, ok := ParseTag(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := ParseTag("weaponSwing")
	assert.False(t, ok)
	assert.Equal(t, "Unknown", TagUnknown.String())
	assert.Equal(t, "HitFrame", HitFrame.String())
}
