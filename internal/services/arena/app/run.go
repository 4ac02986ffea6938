package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mhollis/shardfall/internal/services/arena/storage/sqlite"
)

// RunConfig holds the inputs the arena process needs beyond Config.
type RunConfig struct {
	TickPeriod           time.Duration
	MaxCatchUp           int
	IntentPerActorCap    int
	IntentGlobalCap      int
	CommandPerSessionCap int
	CommandGlobalCap     int
	Retention            int
	HandshakeCapacity    int
	HandshakeMaxPerTick  int
	FlushInterval        time.Duration

	// DBPath is the telemetry SQLite path. Empty disables persistence.
	DBPath string
}

// Run wires the runtime, starts the tick loop, and blocks until ctx is done.
func Run(ctx context.Context, cfg RunConfig) error {
	var deps Deps
	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open telemetry store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close telemetry store: %v", err)
			}
		}()
		deps.Store = store
	}

	rt, err := New(Config{
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
	}, deps)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	rt.Start(ctx)
	log.Printf("arena loop running at %v period", rt.scheduler.Period())
	<-ctx.Done()
	rt.Stop()
	return nil
}
