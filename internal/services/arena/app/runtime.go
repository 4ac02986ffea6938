// Package app composes the arena core: staging containers, the handshake
// ring, the roster, the tick scheduler, and telemetry. A transport submits
// inputs through Runtime and reads rejections back as structured errors.
package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/mhollis/shardfall/internal/platform/errors"
	"github.com/mhollis/shardfall/internal/services/arena/core/pool"
	"github.com/mhollis/shardfall/internal/services/arena/core/ring"
	"github.com/mhollis/shardfall/internal/services/arena/core/staging"
	"github.com/mhollis/shardfall/internal/services/arena/core/tick"
	"github.com/mhollis/shardfall/internal/services/arena/domain/input"
	"github.com/mhollis/shardfall/internal/services/arena/observability/diag"
	"github.com/mhollis/shardfall/internal/services/arena/observability/telemetry"
	"github.com/mhollis/shardfall/internal/services/arena/storage"
)

// Config bounds the arena runtime. Zero fields fall back to defaults.
type Config struct {
	// TickPeriod is the fixed simulation period. Defaults to 50ms (20 Hz).
	TickPeriod time.Duration
	// MaxCatchUp caps ticks executed per wall-clock update.
	MaxCatchUp int

	// IntentPerActorCap and IntentGlobalCap bound the intent container per
	// window. Defaults: 8 per actor, 1024 global.
	IntentPerActorCap int
	IntentGlobalCap   int

	// CommandPerSessionCap and CommandGlobalCap bound the command container
	// per window. Defaults: 4 per session, 256 global.
	CommandPerSessionCap int
	CommandGlobalCap     int

	// Retention is how many trailing frozen batches stay readable.
	// Defaults to 2.
	Retention int

	// HandshakeCapacity is the handshake ring size; HandshakeMaxPerTick
	// bounds ring processing per tick. Defaults: 64 and 16.
	HandshakeCapacity   int
	HandshakeMaxPerTick int

	// FlushInterval is the telemetry flush period. Defaults to 5s.
	FlushInterval time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = 50 * time.Millisecond
	}
	if cfg.IntentPerActorCap <= 0 {
		cfg.IntentPerActorCap = 8
	}
	if cfg.IntentGlobalCap <= 0 {
		cfg.IntentGlobalCap = 1024
	}
	if cfg.CommandPerSessionCap <= 0 {
		cfg.CommandPerSessionCap = 4
	}
	if cfg.CommandGlobalCap <= 0 {
		cfg.CommandGlobalCap = 256
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 2
	}
	if cfg.HandshakeCapacity <= 0 {
		cfg.HandshakeCapacity = 64
	}
	if cfg.HandshakeMaxPerTick <= 0 {
		cfg.HandshakeMaxPerTick = 16
	}
	return cfg
}

// Deps are the runtime's injected collaborators.
type Deps struct {
	// Store persists telemetry. Optional; nil disables persistence.
	Store storage.TelemetryStore
	// Clock supplies wall-clock time. Defaults to time.Now.
	Clock func() time.Time
}

// Runtime is the composed arena core.
type Runtime struct {
	cfg Config

	scheduler  *tick.Scheduler
	intents    *staging.Container[input.ActorID, input.Intent]
	commands   *staging.Container[input.SessionID, input.Command]
	handshakes *ring.Pipeline[input.SessionID, input.Handshake]
	roster     *Roster
	match      *Match
	registry   *input.Registry

	intentDiag  *diag.StagingCounters
	commandDiag *diag.StagingCounters
	ringDiag    *diag.RingCounters
	loopDiag    *diag.LoopCounters
	recorder    *diag.Recorder
	flusher     *telemetry.Flusher

	// connected tracks sessions whose handshake completed. The tick
	// goroutine writes on completion while transports read and disconnect.
	connMu    sync.Mutex
	connected map[input.SessionID]struct{}

	// Frozen batches for the tick being executed. Written at Pre-Tick and
	// read by participants, all on the tick goroutine.
	frozenIntents  *staging.Batch[input.ActorID, input.Intent]
	frozenCommands *staging.Batch[input.SessionID, input.Command]

	unknownCommands atomic.Uint64
	actorScratch    []input.ActorID
}

// New wires a runtime. The scheduler is built stopped; call Start to run it.
func New(cfg Config, deps Deps) (*Runtime, error) {
	cfg = cfg.withDefaults()

	rt := &Runtime{
		cfg:         cfg,
		roster:      NewRoster(),
		match:       NewMatch(),
		registry:    input.NewRegistry(),
		intentDiag:  &diag.StagingCounters{},
		commandDiag: &diag.StagingCounters{},
		ringDiag:    &diag.RingCounters{},
		loopDiag:    &diag.LoopCounters{},
		connected:   make(map[input.SessionID]struct{}),
	}

	intentPool := pool.NewManager[staging.Entry[input.ActorID, input.Intent]]()
	commandPool := pool.NewManager[staging.Entry[input.SessionID, input.Command]]()

	rt.recorder = diag.NewRecorder(
		rt.intentDiag, rt.commandDiag, rt.ringDiag, rt.loopDiag,
		intentPool.Statistics, commandPool.Statistics,
	)
	rt.flusher = telemetry.NewFlusher(
		telemetry.NewEmitter(deps.Store),
		rt.recorder,
		func() uint64 { return rt.Tick() },
		telemetry.FlusherConfig{Interval: cfg.FlushInterval},
	)

	intents, err := staging.New(staging.Config{
		PerKeyCap: cfg.IntentPerActorCap,
		GlobalCap: cfg.IntentGlobalCap,
		Retention: cfg.Retention,
	}, staging.Deps[input.ActorID, input.Intent]{
		Pool: intentPool,
		Sink: staging.SinkFunc[input.ActorID](func(r staging.Rejection[input.ActorID]) {
			rt.flusher.ObserveRejection(storage.RejectionRecord{
				Code:   string(r.Code),
				Key:    actorKey(r.Key),
				ItemID: r.ItemID,
				Window: r.Window,
			})
		}),
		KeyOf:    func(in input.Intent) input.ActorID { return in.Actor },
		IDOf:     func(in input.Intent) uint64 { return in.InputID },
		Counters: rt.intentDiag,
	})
	if err != nil {
		return nil, fmt.Errorf("build intent container: %w", err)
	}
	rt.intents = intents

	commands, err := staging.New(staging.Config{
		PerKeyCap: cfg.CommandPerSessionCap,
		GlobalCap: cfg.CommandGlobalCap,
		Retention: cfg.Retention,
	}, staging.Deps[input.SessionID, input.Command]{
		Pool: commandPool,
		Sink: staging.SinkFunc[input.SessionID](func(r staging.Rejection[input.SessionID]) {
			rt.flusher.ObserveRejection(storage.RejectionRecord{
				Code:   string(r.Code),
				Key:    sessionKey(r.Key),
				ItemID: r.ItemID,
				Window: r.Window,
			})
		}),
		KeyOf:    func(cmd input.Command) input.SessionID { return cmd.Session },
		IDOf:     func(cmd input.Command) uint64 { return cmd.CommandID },
		Counters: rt.commandDiag,
	})
	if err != nil {
		return nil, fmt.Errorf("build command container: %w", err)
	}
	rt.commands = commands

	handshakes, err := ring.New(ring.Config{
		Capacity:   cfg.HandshakeCapacity,
		MaxPerTick: cfg.HandshakeMaxPerTick,
	}, ring.Deps[input.SessionID, input.Handshake]{
		Exec: rt.completeHandshake,
		Rejected: func(session input.SessionID) {
			rt.flusher.ObserveRejection(storage.RejectionRecord{
				Code: string(apperrors.CodeRejectRingFull),
				Key:  sessionKey(session),
			})
		},
		Counters: rt.ringDiag,
	})
	if err != nil {
		return nil, fmt.Errorf("build handshake ring: %w", err)
	}
	rt.handshakes = handshakes

	scheduler, err := tick.New(tick.Config{
		Period:     cfg.TickPeriod,
		MaxCatchUp: cfg.MaxCatchUp,
	}, tick.Deps{
		Clock:       deps.Clock,
		Eligibility: rt.roster,
		Counters:    rt.loopDiag,
	})
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	rt.scheduler = scheduler

	rt.registerHandlers()
	scheduler.OnPreTick(rt.freezeWindows)
	scheduler.Register(participantFunc{name: "handshakes", fn: rt.runHandshakes})
	scheduler.Register(participantFunc{name: "commands", fn: rt.runCommands})
	scheduler.Register(participantFunc{name: "intents", fn: rt.runIntents})
	scheduler.OnPostTick(rt.pruneWindows)

	return rt, nil
}

// participantFunc adapts a method to tick.Participant.
type participantFunc struct {
	name string
	fn   func(tick.Frame) error
}

func (p participantFunc) Name() string { return p.name }

func (p participantFunc) Execute(f tick.Frame) error { return p.fn(f) }

func actorKey(actor input.ActorID) string {
	return "actor:" + strconv.FormatUint(uint64(actor), 10)
}

func sessionKey(session input.SessionID) string {
	return "session:" + string(session)
}

// Start launches the tick loop and the telemetry flusher.
func (rt *Runtime) Start(ctx context.Context) {
	rt.flusher.Start(ctx)
	rt.scheduler.Start()
}

// Stop halts the tick loop, then the flusher. Safe to call more than once.
func (rt *Runtime) Stop() {
	rt.scheduler.Stop()
	rt.flusher.Stop()
}

// Tick reports the currently published tick number.
func (rt *Runtime) Tick() uint64 {
	return rt.scheduler.Tick()
}

// Match exposes authoritative match state for reads.
func (rt *Runtime) Match() *Match {
	return rt.match
}

// Roster exposes the membership roster for reads.
func (rt *Runtime) Roster() *Roster {
	return rt.roster
}

// Connected reports whether the session's handshake has been processed.
func (rt *Runtime) Connected(session input.SessionID) bool {
	rt.connMu.Lock()
	defer rt.connMu.Unlock()
	_, ok := rt.connected[session]
	return ok
}

// ReadDiagnostics fills dst with current counter values.
func (rt *Runtime) ReadDiagnostics(dst *diag.Snapshot) {
	rt.recorder.Read(dst)
}

// SubmitIntent validates an intent and stages it against the currently
// published tick. Structural rejections never reach the container; every
// rejection is observed before the error returns.
func (rt *Runtime) SubmitIntent(in input.Intent) error {
	window := rt.Tick()
	if verr := input.ValidateIntent(in); verr != nil {
		rt.intentDiag.RejectedStructural.Add(1)
		rt.flusher.ObserveRejection(storage.RejectionRecord{
			Code:   string(verr.Code),
			Key:    actorKey(in.Actor),
			ItemID: in.InputID,
			Window: window,
		})
		return verr
	}
	return rt.intents.TryStage(window, in)
}

// SubmitCommand validates a session command and stages it against the
// currently published tick.
func (rt *Runtime) SubmitCommand(cmd input.Command) error {
	window := rt.Tick()
	if verr := input.ValidateCommand(cmd); verr != nil {
		rt.commandDiag.RejectedStructural.Add(1)
		rt.flusher.ObserveRejection(storage.RejectionRecord{
			Code:   string(verr.Code),
			Key:    sessionKey(cmd.Session),
			ItemID: cmd.CommandID,
			Window: window,
		})
		return verr
	}
	return rt.commands.TryStage(window, cmd)
}

// EnqueueHandshake validates a handshake and enqueues it on the ring.
func (rt *Runtime) EnqueueHandshake(h input.Handshake) error {
	if verr := input.ValidateHandshake(h); verr != nil {
		rt.flusher.ObserveRejection(storage.RejectionRecord{
			Code: string(verr.Code),
			Key:  sessionKey(h.Session),
		})
		return verr
	}
	return rt.handshakes.TryEnqueue(h.Session, h)
}

// Disconnect removes a session: pending handshakes leave the ring and the
// session's actor leaves the roster and the match. Staged inputs already in
// flight still freeze and are skipped by eligibility.
func (rt *Runtime) Disconnect(session input.SessionID) {
	rt.handshakes.Drop(session)
	rt.connMu.Lock()
	delete(rt.connected, session)
	rt.connMu.Unlock()
	if actor, ok := rt.roster.Leave(session); ok {
		rt.match.RemoveActor(actor)
	}
}

// UnknownCommands reports how many frozen commands had no registered handler.
func (rt *Runtime) UnknownCommands() uint64 {
	return rt.unknownCommands.Load()
}

// freezeWindows commits the previous window on both containers. The
// scheduler publishes tick N before hooks run, so window N-1 freezes into
// the batch stamped N while producers stage into window N.
func (rt *Runtime) freezeWindows(f tick.Frame) {
	rt.frozenIntents = rt.intents.Freeze(f.Number - 1)
	rt.frozenCommands = rt.commands.Freeze(f.Number - 1)
}

// pruneWindows releases batches older than the retention horizon.
func (rt *Runtime) pruneWindows(f tick.Frame) {
	retention := uint64(rt.cfg.Retention)
	if f.Number <= retention {
		return
	}
	rt.intents.Prune(f.Number - retention)
	rt.commands.Prune(f.Number - retention)
}

func (rt *Runtime) runHandshakes(tick.Frame) error {
	rt.handshakes.ProcessTick()
	return nil
}

func (rt *Runtime) completeHandshake(session input.SessionID, _ input.Handshake) {
	rt.connMu.Lock()
	rt.connected[session] = struct{}{}
	rt.connMu.Unlock()
}

func (rt *Runtime) runCommands(f tick.Frame) error {
	batch := rt.frozenCommands
	for i := 0; i < batch.Len(); i++ {
		entry := batch.At(i)
		handler, ok := rt.registry.Handler(entry.Item.Kind)
		if !ok {
			rt.unknownCommands.Add(1)
			continue
		}
		if err := handler(entry.Item); err != nil {
			log.Printf("command %s session %s tick %d: %v", entry.Item.Kind, entry.Key, f.Number, err)
		}
	}
	return nil
}

func (rt *Runtime) runIntents(tick.Frame) error {
	batch := rt.frozenIntents
	rt.actorScratch = rt.roster.Actors(rt.actorScratch)
	for _, actor := range rt.actorScratch {
		for _, entry := range batch.ForKey(actor) {
			rt.match.Apply(actor, entry.Item)
		}
	}
	return nil
}

// registerHandlers binds the command kinds to their match mutations. Join
// and leave are the only paths that change roster membership, and they run
// during Execute on the tick goroutine.
func (rt *Runtime) registerHandlers() {
	rt.registry.Register(input.CommandJoinMatch, func(cmd input.Command) error {
		if !rt.roster.Join(cmd.Session, cmd.Join.Actor) {
			return fmt.Errorf("actor %d unavailable", cmd.Join.Actor)
		}
		rt.match.AddActor(cmd.Join.Actor)
		return nil
	})
	rt.registry.Register(input.CommandLeaveMatch, func(cmd input.Command) error {
		if actor, ok := rt.roster.Leave(cmd.Session); ok {
			rt.match.RemoveActor(actor)
		}
		return nil
	})
	rt.registry.Register(input.CommandSetLoadout, func(cmd input.Command) error {
		actor, ok := rt.roster.ActorFor(cmd.Session)
		if !ok {
			return fmt.Errorf("session %s has no actor", cmd.Session)
		}
		rt.match.SetLoadout(actor, cmd.Loadout)
		return nil
	})
	rt.registry.Register(input.CommandChat, func(cmd input.Command) error {
		rt.match.AppendChat(string(cmd.Session) + ": " + cmd.Chat.Text)
		return nil
	})
}
