// Package tick drives the fixed-period simulation loop.
//
// Exactly one goroutine runs the loop and is the sole mutator of staging,
// frozen and eligibility state. Every tick executes three phases in strict
// sequence: Pre-Tick (eligibility refresh, then pre-hooks, where containers
// freeze the previous window), Execute (participants), Post-Tick (post-hooks,
// the only point committed results are exposed downstream). All phases of
// tick T complete before any phase of tick T+1 begins.
package tick

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/mhollis/shardfall/internal/platform/errors"
	"github.com/mhollis/shardfall/internal/services/arena/observability/diag"
)

// defaultMaxCatchUp bounds how many ticks one wall-clock update may execute.
const defaultMaxCatchUp = 2

// Frame describes one tick to hooks and participants.
type Frame struct {
	// Number is the tick being executed.
	Number uint64
	// Now is the wall-clock instant the update began.
	Now time.Time
	// Delta is the fixed simulation period.
	Delta time.Duration
}

// Hook observes a tick phase.
type Hook func(Frame)

// Participant is a simulation system invoked during the Execute phase.
// Participants must not mutate scheduler registration or eligibility state
// mid-tick; registration mutation is detected and panics.
type Participant interface {
	Name() string
	Execute(Frame) error
}

// Eligibility refreshes the deterministic ordered key snapshot once per tick
// at Pre-Tick.
type Eligibility interface {
	Refresh(tick uint64)
}

// Config bounds the scheduler.
type Config struct {
	// Period is the fixed tick period.
	Period time.Duration
	// MaxCatchUp caps ticks executed per wall-clock update. Zero means the
	// default of 2. Backlog beyond the cap is dropped and counted.
	MaxCatchUp int
}

// Deps are the injected collaborators of a scheduler.
type Deps struct {
	// Clock supplies wall-clock time. Defaults to time.Now.
	Clock func() time.Time
	// Eligibility is refreshed at Pre-Tick. Optional.
	Eligibility Eligibility
	// Counters is the diagnostics group the loop increments. Optional.
	Counters *diag.LoopCounters
}

// Scheduler owns the authoritative tick loop.
type Scheduler struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	preHooks     []Hook
	participants []Participant
	postHooks    []Hook

	// number is the published tick counter; producers read it to stamp
	// submissions with the current window.
	number atomic.Uint64
	inTick atomic.Bool

	acc       time.Duration
	last      time.Time
	lastValid bool
}

// New validates cfg and builds a stopped scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Period <= 0 {
		return nil, apperrors.New(apperrors.CodeLoopInvalidPeriod, fmt.Sprintf("invalid tick period %s", cfg.Period))
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = defaultMaxCatchUp
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Scheduler{cfg: cfg, deps: deps}, nil
}

// Tick returns the currently published tick number. Producers use it as the
// staging window for new submissions.
func (s *Scheduler) Tick() uint64 {
	return s.number.Load()
}

// Period returns the fixed tick period.
func (s *Scheduler) Period() time.Duration {
	return s.cfg.Period
}

// OnPreTick registers a Pre-Tick hook. Hooks run in registration order.
func (s *Scheduler) OnPreTick(h Hook) {
	s.register(func() { s.preHooks = append(s.preHooks, h) })
}

// OnPostTick registers a Post-Tick hook. Hooks run in registration order.
func (s *Scheduler) OnPostTick(h Hook) {
	s.register(func() { s.postHooks = append(s.postHooks, h) })
}

// Register adds a participant to the Execute phase, in registration order.
func (s *Scheduler) Register(p Participant) {
	s.register(func() { s.participants = append(s.participants, p) })
}

// register guards registration state: mutating it while the loop runs would
// break the one-freeze-per-tick guarantee, so it is raised immediately.
func (s *Scheduler) register(apply func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.inTick.Load() {
		panic("tick: registration mutated while scheduler is running")
	}
	apply()
}

// Start launches the loop goroutine. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

// Stop halts the loop and waits for the in-flight tick to finish. Idempotent.
// It must not be called from hooks or participants.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	s.running = false
	s.acc = 0
	s.lastValid = false
	s.mu.Unlock()
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Advance(s.deps.Clock())
		}
	}
}

// Advance consumes wall-clock time and executes zero or more full tick
// cycles. It belongs to the authoritative goroutine; calling it from inside
// a tick panics.
func (s *Scheduler) Advance(now time.Time) int {
	if s.inTick.Load() {
		panic("tick: reentrant advance from inside a tick")
	}
	if !s.lastValid {
		s.last = now
		s.lastValid = true
		return 0
	}
	dt := now.Sub(s.last)
	s.last = now
	if dt < 0 {
		dt = 0
	}
	s.acc += dt

	executed := 0
	for s.acc >= s.cfg.Period {
		if executed == s.cfg.MaxCatchUp {
			// Drop the remaining backlog rather than spiral; the accumulator
			// holds no gameplay state so this only skips wall-clock credit.
			dropped := uint64(s.acc / s.cfg.Period)
			s.acc = 0
			if s.deps.Counters != nil {
				s.deps.Counters.ClampedUpdates.Add(1)
				s.deps.Counters.DroppedBacklog.Add(dropped)
			}
			log.Printf("[tick] dropped backlog of %d periods after catch-up clamp", dropped)
			break
		}
		s.acc -= s.cfg.Period
		s.runTick(now)
		executed++
	}
	return executed
}

// runTick executes one full Pre-Tick, Execute, Post-Tick cycle.
func (s *Scheduler) runTick(now time.Time) {
	start := s.deps.Clock()
	number := s.number.Load() + 1

	s.inTick.Store(true)
	// Publish the new tick first so producers stage into the new window
	// while Pre-Tick hooks freeze the previous one.
	s.number.Store(number)

	frame := Frame{Number: number, Now: now, Delta: s.cfg.Period}

	if s.deps.Eligibility != nil {
		s.deps.Eligibility.Refresh(number)
	}
	for _, h := range s.preHooks {
		h(frame)
	}
	for _, p := range s.participants {
		if err := p.Execute(frame); err != nil {
			log.Printf("[tick] participant %s tick %d: %v", p.Name(), number, err)
		}
	}
	for _, h := range s.postHooks {
		h(frame)
	}
	s.inTick.Store(false)

	duration := s.deps.Clock().Sub(start)
	if s.deps.Counters != nil {
		s.deps.Counters.Ticks.Add(1)
		s.deps.Counters.LastTickMicros.Store(uint64(duration.Microseconds()))
		if duration > s.cfg.Period {
			s.deps.Counters.BudgetOverruns.Add(1)
		}
	}
}
