package clips

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Window bounds applied when a clip document omits them.
var (
	DefaultComboWindow  = Window{Start: 0.4, End: 0.75}
	DefaultCancelWindow = Window{Start: 0.4, End: 0.85}
)

// SetDocument is an animation set as it appears on disk. The struct is
// exported so the schema command can reflect over it.
type SetDocument struct {
	Name         string         `yaml:"name" json:"name" jsonschema:"title=Set name,description=Unique identifier of the animation set.,minLength=1,required"`
	Weapon       string         `yaml:"weapon" json:"weapon" jsonschema:"title=Weapon category,enum=Unarmed,enum=OneHandSword,enum=OneHandAxe,enum=OneHandMace,enum=OneHandDagger,enum=TwoHandSword,enum=TwoHandAxe,enum=DualWield,enum=SwordAndShield,enum=Staff,required"`
	Light        []ClipDocument `yaml:"light" json:"light,omitempty" jsonschema:"description=Light attack chain in play order."`
	Heavy        []ClipDocument `yaml:"heavy" json:"heavy,omitempty" jsonschema:"description=Heavy attack chain in play order."`
	Special      []ClipDocument `yaml:"special" json:"special,omitempty"`
	Sprint       *ClipDocument  `yaml:"sprint" json:"sprint,omitempty" jsonschema:"description=Opener used while sprinting."`
	Jump         *ClipDocument  `yaml:"jump" json:"jump,omitempty" jsonschema:"description=Opener used while airborne."`
	GuardCounter *ClipDocument  `yaml:"guardCounter" json:"guardCounter,omitempty"`
	Backstep     *ClipDocument  `yaml:"backstep" json:"backstep,omitempty"`
	DodgeRoll    *ClipDocument  `yaml:"dodgeRoll" json:"dodgeRoll,omitempty"`
}

// ClipDocument is one clip entry of a SetDocument.
type ClipDocument struct {
	Name         string          `yaml:"name" json:"name" jsonschema:"title=Clip name,minLength=1,required"`
	Path         string          `yaml:"path" json:"path,omitempty" jsonschema:"description=Animation asset path handed to the player."`
	Duration     string          `yaml:"duration" json:"duration" jsonschema:"description=Clip length as a Go duration string (e.g. 900ms).,required"`
	HitFrame     string          `yaml:"hitFrame" json:"hitFrame" jsonschema:"description=Offset of the damage frame from clip start.,required"`
	ComboWindow  *WindowDocument `yaml:"comboWindow" json:"comboWindow,omitempty"`
	CancelWindow *WindowDocument `yaml:"cancelWindow" json:"cancelWindow,omitempty"`
	RootMotion   bool            `yaml:"rootMotion" json:"rootMotion,omitempty"`
	Direction    string          `yaml:"direction" json:"direction,omitempty"`
}

// WindowDocument is a normalized progress interval.
type WindowDocument struct {
	Start float64 `yaml:"start" json:"start" jsonschema:"minimum=0,maximum=1"`
	End   float64 `yaml:"end" json:"end" jsonschema:"minimum=0,maximum=1"`
}

// LoadFile parses a single YAML animation set.
func LoadFile(path string) (AnimationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AnimationSet{}, fmt.Errorf("read %s: %w", path, err)
	}
	var doc SetDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return AnimationSet{}, fmt.Errorf("decode %s: %w", path, err)
	}
	set, err := doc.toSet()
	if err != nil {
		return AnimationSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// LoadDir parses every *.yaml and *.yml file directly under dir, ordered by
// file name.
func LoadDir(dir string) ([]AnimationSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read clip directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	sets := make([]AnimationSet, 0, len(paths))
	var errs []error
	for _, path := range paths {
		set, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sets = append(sets, set)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return sets, nil
}

// LoadInto registers every set found in dir and returns how many were added.
func LoadInto(c *Catalog, dir string) (int, error) {
	sets, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, set := range sets {
		if err := c.Register(set); err != nil {
			return 0, err
		}
	}
	return len(sets), nil
}

func isYAML(entry fs.DirEntry) bool {
	ext := strings.ToLower(filepath.Ext(entry.Name()))
	return ext == ".yaml" || ext == ".yml"
}

func (d SetDocument) toSet() (AnimationSet, error) {
	weapon, err := ParseWeaponCategory(d.Weapon)
	if err != nil {
		return AnimationSet{}, fmt.Errorf("set %q: %w", d.Name, err)
	}
	set := AnimationSet{Name: d.Name, Weapon: weapon}

	var errs []error
	convertList := func(docs []ClipDocument) []Clip {
		out := make([]Clip, 0, len(docs))
		for _, doc := range docs {
			clip, err := doc.toClip(weapon)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, clip)
		}
		return out
	}
	convertOne := func(doc *ClipDocument) *Clip {
		if doc == nil {
			return nil
		}
		clip, err := doc.toClip(weapon)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		return &clip
	}

	set.Light = convertList(d.Light)
	set.Heavy = convertList(d.Heavy)
	set.Special = convertList(d.Special)
	set.Sprint = convertOne(d.Sprint)
	set.Jump = convertOne(d.Jump)
	set.GuardCounter = convertOne(d.GuardCounter)
	set.Backstep = convertOne(d.Backstep)
	set.DodgeRoll = convertOne(d.DodgeRoll)
	if len(errs) > 0 {
		return AnimationSet{}, fmt.Errorf("set %q: %w", d.Name, errors.Join(errs...))
	}
	return set, nil
}

func (d ClipDocument) toClip(weapon WeaponCategory) (Clip, error) {
	duration, err := time.ParseDuration(d.Duration)
	if err != nil {
		return Clip{}, fmt.Errorf("clip %q: duration: %w", d.Name, err)
	}
	var hit time.Duration
	if d.HitFrame != "" {
		hit, err = time.ParseDuration(d.HitFrame)
		if err != nil {
			return Clip{}, fmt.Errorf("clip %q: hit frame: %w", d.Name, err)
		}
	}
	return Clip{
		Name:         d.Name,
		Path:         d.Path,
		Duration:     duration,
		HitFrame:     hit,
		ComboWindow:  d.ComboWindow.orDefault(DefaultComboWindow),
		CancelWindow: d.CancelWindow.orDefault(DefaultCancelWindow),
		RootMotion:   d.RootMotion,
		Weapon:       weapon,
		Direction:    d.Direction,
	}, nil
}

func (w *WindowDocument) orDefault(fallback Window) Window {
	if w == nil {
		return fallback
	}
	return Window{Start: w.Start, End: w.End}
}
