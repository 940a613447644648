package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ccw/server/internal/app"
	"ccw/server/internal/config"
	servernet "ccw/server/internal/net"
	"ccw/server/internal/net/intake"
	"ccw/server/internal/net/proto"
	"ccw/server/internal/sim"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
	"ccw/server/logging/sinks"
)

const (
	defaultScriptTick   = 16 * time.Millisecond
	defaultScriptSettle = 2 * time.Second
)

// Script is a timeline of client commands replayed against fresh services.
type Script struct {
	Tick     time.Duration `yaml:"tick"`
	Duration time.Duration `yaml:"duration"`
	Weapon   string        `yaml:"weapon"`
	Steps    []ScriptStep  `yaml:"steps"`
}

// ScriptStep issues one command at a simulated instant.
type ScriptStep struct {
	At        time.Duration `yaml:"at"`
	Actor     string        `yaml:"actor"`
	Type      string        `yaml:"type"`
	Heavy     bool          `yaml:"heavy"`
	Direction string        `yaml:"direction"`
	Tag       string        `yaml:"tag"`
	Progress  *float64      `yaml:"progress"`
	Weapon    string        `yaml:"weapon"`
}

// TraceEvent is one published event in the simulation trace.
type TraceEvent struct {
	Tick     uint64 `json:"tick"`
	AtMillis int64  `json:"atMillis"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Actor    string `json:"actor,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Trace is the outcome of a scripted run.
type Trace struct {
	Ticks   uint64                `json:"ticks"`
	Events  []TraceEvent          `json:"events"`
	Active  []servernet.ComboView `json:"active"`
	Refused []sim.CommandResult   `json:"refused,omitempty"`
	Metrics map[string]uint64     `json:"metrics,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		scriptPath string
		clipsDir   string
		tick       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scripted command timeline and print the event trace",
		Long: `Replay a scripted command timeline and print the event trace.

The script is YAML: an optional tick and duration, an optional default weapon,
and a list of steps, each with an "at" offset, an actor and a command type
(attack, chain, cancel, dodge, animEvent, animProgress, equip).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scriptPath == "" {
				return fmt.Errorf("--script is required")
			}
			script, err := LoadScript(scriptPath)
			if err != nil {
				return err
			}
			if tick > 0 {
				script.Tick = tick
			}
			trace, err := RunScript(cmd.Context(), script, clipsDir)
			if err != nil {
				return err
			}
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(trace, func(w io.Writer) error {
				return writeTrace(w, trace)
			})
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "path to the YAML timeline")
	cmd.Flags().StringVar(&clipsDir, "clips", "", "directory of YAML animation sets to load")
	cmd.Flags().DurationVar(&tick, "tick", 0, "fixed tick length (overrides the script)")

	return cmd
}

// LoadScript parses a YAML timeline.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script %s: %w", path, err)
	}
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return Script{}, fmt.Errorf("parse script %s: %w", path, err)
	}
	return script, nil
}

// RunScript replays script on fresh services with a simulated clock. Events
// are captured synchronously, so the trace is identical across runs.
func RunScript(ctx context.Context, script Script, clipsDir string) (Trace, error) {
	step := script.Tick
	if step <= 0 {
		step = defaultScriptTick
	}

	messages := make([]proto.ClientMessage, len(script.Steps))
	offsets := make([]time.Duration, len(script.Steps))
	var last time.Duration
	for i, s := range script.Steps {
		if s.Actor == "" {
			return Trace{}, fmt.Errorf("step %d: actor is required", i)
		}
		msg := proto.ClientMessage{
			Type:      s.Type,
			Heavy:     s.Heavy,
			Direction: s.Direction,
			Tag:       s.Tag,
			Progress:  s.Progress,
			Weapon:    s.Weapon,
		}
		if _, ok := proto.ClientCommand(msg); !ok {
			return Trace{}, fmt.Errorf("step %d: invalid %q command", i, s.Type)
		}
		messages[i] = msg
		offsets[i] = s.At
		last = max(last, s.At)
	}
	order := make([]int, len(messages))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return offsets[order[a]] < offsets[order[b]] })

	duration := script.Duration
	if duration <= 0 {
		duration = last + defaultScriptSettle
	}

	cfg := config.Default()
	cfg.Clips.Dir = clipsDir
	cfg.Simulation.PerActorLimit = 0
	if script.Weapon != "" {
		cfg.Combo.DefaultWeapon = script.Weapon
		if err := cfg.Validate(); err != nil {
			return Trace{}, err
		}
	}

	epoch := time.Unix(0, 0).UTC()
	var elapsed time.Duration
	clock := logging.ClockFunc(func() time.Time { return epoch.Add(elapsed) })
	events := sinks.NewMemory()
	metrics := &logging.Metrics{}

	services, err := app.BuildServices(ctx, cfg, app.ServiceDeps{
		Publisher: events,
		Metrics:   telemetry.WrapMetrics(metrics),
		Clock:     clock,
	})
	if err != nil {
		return Trace{}, err
	}
	defer services.Shutdown(ctx)
	// Lifecycle events from construction are not part of the timeline.
	events.Reset()

	var (
		trace = Trace{Events: []TraceEvent{}}
		next  int
		stage = intake.CommandContext{Stager: services.Loop, Now: clock.Now}
	)
	for elapsed <= duration {
		for next < len(order) && offsets[order[next]] <= elapsed {
			i := order[next]
			if _, ok, reason := intake.StageClientCommand(stage, script.Steps[i].Actor, messages[i]); !ok {
				return Trace{}, fmt.Errorf("step %d refused: %s", i, reason)
			}
			next++
		}
		result := services.Loop.Advance(ctx, step)
		for _, r := range result.Results {
			if !r.Accepted {
				trace.Refused = append(trace.Refused, r)
			}
		}
		elapsed += step
	}

	for _, event := range events.Events() {
		trace.Events = append(trace.Events, TraceEvent{
			Tick:     event.Tick,
			AtMillis: tickStart(event.Tick, step).Milliseconds(),
			Type:     string(event.Type),
			Severity: event.Severity.String(),
			Actor:    event.Actor.ID,
			Payload:  event.Payload,
		})
	}
	trace.Ticks = services.Loop.Tick()
	trace.Active = servernet.CombosView(services.Machine.Snapshot())
	trace.Metrics = metrics.Snapshot()
	return trace, nil
}

// tickStart is the simulated instant at which tick began.
func tickStart(tick uint64, step time.Duration) time.Duration {
	if tick == 0 {
		return 0
	}
	return time.Duration(tick-1) * step
}

func writeTrace(w io.Writer, trace Trace) error {
	for _, event := range trace.Events {
		payload := ""
		if event.Payload != nil {
			data, err := json.Marshal(event.Payload)
			if err != nil {
				return fmt.Errorf("encode payload for %s: %w", event.Type, err)
			}
			payload = string(data)
		}
		if _, err := fmt.Fprintf(w, "t=%6dms tick=%-5d %-28s actor=%-8s %s\n", event.AtMillis, event.Tick, event.Type, event.Actor, payload); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "ticks=%d events=%d refused=%d active=%d\n", trace.Ticks, len(trace.Events), len(trace.Refused), len(trace.Active))
	return err
}
