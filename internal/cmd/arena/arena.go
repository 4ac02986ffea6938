// Package arena parses arena command flags and launches the arena runtime.
package arena

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/mhollis/shardfall/internal/platform/cmd"
	arenaserver "github.com/mhollis/shardfall/internal/services/arena/app"
)

// Config holds arena command configuration.
type Config struct {
	TickPeriod           time.Duration `env:"SHARDFALL_ARENA_TICK_PERIOD" envDefault:"50ms"`
	MaxCatchUp           int           `env:"SHARDFALL_ARENA_MAX_CATCH_UP" envDefault:"2"`
	IntentPerActorCap    int           `env:"SHARDFALL_ARENA_INTENT_PER_ACTOR_CAP" envDefault:"8"`
	IntentGlobalCap      int           `env:"SHARDFALL_ARENA_INTENT_GLOBAL_CAP" envDefault:"1024"`
	CommandPerSessionCap int           `env:"SHARDFALL_ARENA_COMMAND_PER_SESSION_CAP" envDefault:"4"`
	CommandGlobalCap     int           `env:"SHARDFALL_ARENA_COMMAND_GLOBAL_CAP" envDefault:"256"`
	Retention            int           `env:"SHARDFALL_ARENA_RETENTION" envDefault:"2"`
	HandshakeCapacity    int           `env:"SHARDFALL_ARENA_HANDSHAKE_CAPACITY" envDefault:"64"`
	HandshakeMaxPerTick  int           `env:"SHARDFALL_ARENA_HANDSHAKE_MAX_PER_TICK" envDefault:"16"`
	FlushInterval        time.Duration `env:"SHARDFALL_ARENA_FLUSH_INTERVAL" envDefault:"5s"`
	DBPath               string        `env:"SHARDFALL_ARENA_DB_PATH" envDefault:"data/arena.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.DurationVar(&cfg.TickPeriod, "tick-period", cfg.TickPeriod, "Fixed simulation tick period")
	fs.IntVar(&cfg.MaxCatchUp, "max-catch-up", cfg.MaxCatchUp, "Maximum ticks executed per wall-clock update")
	fs.IntVar(&cfg.IntentPerActorCap, "intent-per-actor-cap", cfg.IntentPerActorCap, "Staged intents per actor per window")
	fs.IntVar(&cfg.IntentGlobalCap, "intent-global-cap", cfg.IntentGlobalCap, "Staged intents per window across all actors")
	fs.IntVar(&cfg.CommandPerSessionCap, "command-per-session-cap", cfg.CommandPerSessionCap, "Staged commands per session per window")
	fs.IntVar(&cfg.CommandGlobalCap, "command-global-cap", cfg.CommandGlobalCap, "Staged commands per window across all sessions")
	fs.IntVar(&cfg.Retention, "retention", cfg.Retention, "Frozen batches kept readable behind the latest")
	fs.IntVar(&cfg.HandshakeCapacity, "handshake-capacity", cfg.HandshakeCapacity, "Handshake ring capacity")
	fs.IntVar(&cfg.HandshakeMaxPerTick, "handshake-max-per-tick", cfg.HandshakeMaxPerTick, "Handshakes processed per tick")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "Telemetry flush interval")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The arena telemetry SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the arena runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceArena, func(ctx context.Context) error {
		return arenaserver.Run(ctx, arenaserver.RunConfig{
			TickPeriod:           cfg.TickPeriod,
			MaxCatchUp:           cfg.MaxCatchUp,
			IntentPerActorCap:    cfg.IntentPerActorCap,
			IntentGlobalCap:      cfg.IntentGlobalCap,
			CommandPerSessionCap: cfg.CommandPerSessionCap,
			CommandGlobalCap:     cfg.CommandGlobalCap,
			Retention:            cfg.Retention,
			HandshakeCapacity:    cfg.HandshakeCapacity,
			HandshakeMaxPerTick:  cfg.HandshakeMaxPerTick,
			FlushInterval:        cfg.FlushInterval,
			DBPath:               cfg.DBPath,
		})
	})
}
