package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"ccw/server/internal/clips"
	"ccw/server/internal/input"
	"ccw/server/internal/observability"
	"ccw/server/internal/sim"
	"ccw/server/logging"
)

type Config struct {
	Server        ServerConfig         `toml:"server"`
	Simulation    SimulationConfig     `toml:"simulation"`
	Combo         ComboConfig          `toml:"combo"`
	Clips         ClipsConfig          `toml:"clips"`
	Input         InputConfig          `toml:"input"`
	Logging       LoggingConfig        `toml:"logging"`
	Observability observability.Config `toml:"observability"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr" env:"CCW_ADDR"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"CCW_SHUTDOWN_TIMEOUT"`
}

type SimulationConfig struct {
	TickRate        int           `toml:"tick_rate" env:"CCW_TICK_RATE"`
	MaxDelta        time.Duration `toml:"max_delta" env:"CCW_MAX_DELTA"`
	CommandCapacity int           `toml:"command_capacity" env:"CCW_COMMAND_CAPACITY"`
	PerActorLimit   int           `toml:"per_actor_limit" env:"CCW_PER_ACTOR_LIMIT"`
	WarningStep     int           `toml:"warning_step" env:"CCW_WARNING_STEP"`
}

type ComboConfig struct {
	DefaultWeapon string `toml:"default_weapon" env:"CCW_DEFAULT_WEAPON"` // weapon for actors that never equipped one
}

type ClipsConfig struct {
	Dir string `toml:"dir" env:"CCW_CLIPS_DIR"` // empty keeps only the built-in set
}

type InputConfig struct {
	BufferDuration time.Duration `toml:"buffer_duration" env:"CCW_INPUT_BUFFER_DURATION"`
}

type LoggingConfig struct {
	Sinks      []string `toml:"sinks" env:"CCW_LOG_SINKS" envSeparator:","`
	Severity   string   `toml:"severity" env:"CCW_LOG_SEVERITY"`
	Format     string   `toml:"format" env:"CCW_LOG_FORMAT"` // zap encoder: "json" or "console"
	BufferSize int      `toml:"buffer_size" env:"CCW_LOG_BUFFER_SIZE"`
	JSONPath   string   `toml:"json_path" env:"CCW_LOG_JSON_PATH"`
	SQLitePath string   `toml:"sqlite_path" env:"CCW_LOG_SQLITE_PATH"`
	Color      bool     `toml:"color" env:"CCW_LOG_COLOR"`
}

// Load reads the TOML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting the
// environment.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	logDefaults := logging.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Simulation: SimulationConfig{
			TickRate:        60,
			MaxDelta:        100 * time.Millisecond,
			CommandCapacity: 1024,
			PerActorLimit:   8,
			WarningStep:     256,
		},
		Combo: ComboConfig{
			DefaultWeapon: clips.TwoHandSword.String(),
		},
		Input: InputConfig{
			BufferDuration: input.DefaultDuration,
		},
		Logging: LoggingConfig{
			Sinks:      logDefaults.EnabledSinks,
			Severity:   logDefaults.MinimumSeverity.String(),
			Format:     "console",
			BufferSize: logDefaults.BufferSize,
		},
		Observability: observability.Config{
			ServiceName: "ccw-server",
			SampleRatio: 1,
		},
	}
}

// Validate rejects values the services would otherwise silently replace.
func (c *Config) Validate() error {
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if c.Simulation.TickRate <= 0 {
		return fmt.Errorf("simulation.tick_rate must be positive, got %d", c.Simulation.TickRate)
	}
	if c.Simulation.MaxDelta <= 0 {
		return fmt.Errorf("simulation.max_delta must be positive, got %s", c.Simulation.MaxDelta)
	}
	if c.Simulation.CommandCapacity <= 0 {
		return fmt.Errorf("simulation.command_capacity must be positive, got %d", c.Simulation.CommandCapacity)
	}
	if _, err := clips.ParseWeaponCategory(c.Combo.DefaultWeapon); err != nil {
		return fmt.Errorf("combo.default_weapon: %w", err)
	}
	if _, err := logging.ParseSeverity(c.Logging.Severity); err != nil {
		return fmt.Errorf("logging.severity: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if r := c.Observability.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.sample_ratio must be within [0,1], got %v", r)
	}
	return nil
}

// DefaultWeapon resolves the configured fallback weapon category.
func (c *Config) DefaultWeapon() clips.WeaponCategory {
	weapon, err := clips.ParseWeaponCategory(c.Combo.DefaultWeapon)
	if err != nil {
		return clips.TwoHandSword
	}
	return weapon
}

// LoopConfig maps the simulation section onto the loop settings.
func (c *Config) LoopConfig() sim.LoopConfig {
	return sim.LoopConfig{
		TickRate:        c.Simulation.TickRate,
		MaxDelta:        c.Simulation.MaxDelta,
		CommandCapacity: c.Simulation.CommandCapacity,
		PerActorLimit:   c.Simulation.PerActorLimit,
		WarningStep:     c.Simulation.WarningStep,
	}
}

// RouterConfig maps the logging section onto the router settings.
func (c *Config) RouterConfig() logging.Config {
	out := logging.DefaultConfig()
	if len(c.Logging.Sinks) > 0 {
		out.EnabledSinks = append([]string(nil), c.Logging.Sinks...)
	}
	if c.Logging.BufferSize > 0 {
		out.BufferSize = c.Logging.BufferSize
	}
	if severity, err := logging.ParseSeverity(c.Logging.Severity); err == nil {
		out.MinimumSeverity = severity
	}
	out.JSON.FilePath = c.Logging.JSONPath
	out.SQLite.Path = c.Logging.SQLitePath
	out.Console.UseColor = c.Logging.Color
	return out
}
