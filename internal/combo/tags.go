package combo

import "strings"

// Tag is an animation event delivered by the playback environment.
type Tag uint8

const (
	TagUnknown Tag = iota
	ComboWindowOpen
	ComboWindowClose
	CancelWindowOpen
	CancelWindowClose
	HitFrame
	AnimationEnd
)

var tagNames = map[Tag]string{
	ComboWindowOpen:   "ComboWindowOpen",
	ComboWindowClose:  "ComboWindowClose",
	CancelWindowOpen:  "CancelWindowOpen",
	CancelWindowClose: "CancelWindowClose",
	HitFrame:          "HitFrame",
	AnimationEnd:      "AnimationEnd",
}

// Event strings emitted by authored animation data and by the stock attack
// behaviors.
var tagAliases = map[string]Tag{
	"ccw_comboopen":   ComboWindowOpen,
	"ccw_comboclose":  ComboWindowClose,
	"ccw_cancelopen":  CancelWindowOpen,
	"ccw_cancelclose": CancelWindowClose,
	"ccw_hitframe":    HitFrame,
	"ccw_animend":     AnimationEnd,
	"bashrelease":     HitFrame,
	"attackstop":      AnimationEnd,
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseTag resolves a canonical tag name or a known animation event string,
// ignoring case.
func ParseTag(raw string) (Tag, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for tag, name := range tagNames {
		if strings.ToLower(name) == key {
			return tag, true
		}
	}
	if tag, ok := tagAliases[key]; ok {
		return tag, true
	}
	return TagUnknown, false
}
