package app

import (
	"context"
	"fmt"

	"ccw/server/internal/clips"
	"ccw/server/internal/combo"
	"ccw/server/internal/config"
	"ccw/server/internal/input"
	"ccw/server/internal/sim"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
)

// Services are the constructed gameplay subsystems shared by the server and
// the offline simulator.
type Services struct {
	Catalog *clips.Catalog
	Buffer  *input.Buffer
	Weapons *combo.WeaponTable
	Machine *combo.Machine
	Loop    *sim.Loop
}

// ServiceDeps carries the infrastructure the services publish through.
type ServiceDeps struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Player    combo.Player
	Hooks     sim.LoopHooks
}

// BuildServices constructs and initializes the catalog, input buffer, combo
// machine and loop from cfg. Clip sets found in cfg.Clips.Dir are registered
// on top of the built-in set.
func BuildServices(ctx context.Context, cfg *config.Config, deps ServiceDeps) (*Services, error) {
	if deps.Logger == nil {
		deps.Logger = telemetry.LoggerFunc(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}

	var loop *sim.Loop
	tick := func() uint64 {
		if loop == nil {
			return 0
		}
		return loop.Tick()
	}

	catalog := clips.NewCatalog(deps.Publisher)
	if err := catalog.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize clip catalog: %w", err)
	}
	if dir := cfg.Clips.Dir; dir != "" {
		n, err := clips.LoadInto(catalog, dir)
		if err != nil {
			return nil, fmt.Errorf("load clip sets: %w", err)
		}
		deps.Logger.Printf("loaded %d clip set(s) from %s", n, dir)
	}

	buffer := input.NewBuffer(input.Config{
		Duration:  cfg.Input.BufferDuration,
		Publisher: deps.Publisher,
		Metrics:   deps.Metrics,
		Tick:      tick,
	})
	buffer.Initialize(ctx)

	weapons := combo.NewWeaponTable(cfg.DefaultWeapon())
	machine, err := combo.NewMachine(combo.Config{
		Clips:     catalog,
		Buffer:    buffer,
		Weapons:   weapons,
		Player:    deps.Player,
		Publisher: deps.Publisher,
		Metrics:   deps.Metrics,
		Tick:      tick,
	})
	if err != nil {
		return nil, fmt.Errorf("construct combo machine: %w", err)
	}
	machine.Initialize(ctx)

	loop, err = sim.NewLoop(
		sim.Targets{Combat: machine, Input: buffer, Weapons: weapons},
		sim.Deps{
			Logger:    deps.Logger,
			Metrics:   deps.Metrics,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
		},
		cfg.LoopConfig(),
		deps.Hooks,
	)
	if err != nil {
		return nil, fmt.Errorf("construct loop: %w", err)
	}

	return &Services{
		Catalog: catalog,
		Buffer:  buffer,
		Weapons: weapons,
		Machine: machine,
		Loop:    loop,
	}, nil
}

// Shutdown stops the machine before the buffer and catalog it reads from.
func (s *Services) Shutdown(ctx context.Context) {
	s.Machine.Shutdown(ctx)
	s.Buffer.Shutdown(ctx)
	s.Catalog.Shutdown(ctx)
}
