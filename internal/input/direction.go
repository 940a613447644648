package input

import (
	"fmt"
	"strings"
)

// Direction is the movement context an attack or dodge was requested in.
type Direction uint8

const (
	Neutral Direction = iota
	Forward
	Left
	Right
	Back
	Standing
	Sprinting
	Jumping
	directionCount
)

var directionNames = [...]string{
	Neutral:   "neutral",
	Forward:   "forward",
	Left:      "left",
	Right:     "right",
	Back:      "back",
	Standing:  "standing",
	Sprinting: "sprinting",
	Jumping:   "jumping",
}

func (d Direction) String() string {
	if d < directionCount {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// ParseDirection resolves a direction name. The empty string is Neutral.
func ParseDirection(raw string) (Direction, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return Neutral, nil
	}
	for i, name := range directionNames {
		if name == trimmed {
			return Direction(i), nil
		}
	}
	return Neutral, fmt.Errorf("unknown direction %q", raw)
}

// MarshalText renders the direction name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a direction name.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
