package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/mhollis/shardfall/internal/platform/errors"
	"github.com/mhollis/shardfall/internal/services/arena/domain/input"
	"github.com/mhollis/shardfall/internal/services/arena/observability/diag"
)

const testPeriod = 10 * time.Millisecond

// harness drives the runtime tick by tick with a fake clock.
type harness struct {
	rt  *Runtime
	now time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.TickPeriod == 0 {
		cfg.TickPeriod = testPeriod
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Hour
	}
	rt, err := New(cfg, Deps{})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	h := &harness{rt: rt, now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	// Seed the accumulator so the next step executes exactly one tick.
	rt.scheduler.Advance(h.now)
	return h
}

// step advances wall clock by one period and runs the due tick.
func (h *harness) step(t *testing.T) {
	t.Helper()
	h.now = h.now.Add(h.rt.cfg.TickPeriod)
	if n := h.rt.scheduler.Advance(h.now); n != 1 {
		t.Fatalf("advance executed %d ticks, want 1", n)
	}
}

func joinCommand(session input.SessionID, id uint64, actor input.ActorID) input.Command {
	return input.Command{
		Session:   session,
		CommandID: id,
		Kind:      input.CommandJoinMatch,
		Join:      input.JoinPayload{Actor: actor},
	}
}

func moveIntent(actor input.ActorID, id uint64, dx, dy int8) input.Intent {
	return input.Intent{
		Actor:   actor,
		InputID: id,
		Kind:    input.IntentMove,
		Move:    input.MovePayload{DX: dx, DY: dy},
	}
}

func TestJoinThenMoveFlow(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.rt.SubmitCommand(joinCommand("s1", 1, 7)); err != nil {
		t.Fatalf("submit join: %v", err)
	}

	// Tick 1 freezes window 0 and executes the join.
	h.step(t)
	if h.rt.Roster().Len() != 1 {
		t.Fatalf("roster len = %d, want 1", h.rt.Roster().Len())
	}
	st, ok := h.rt.Match().Actor(7)
	if !ok {
		t.Fatal("actor 7 not spawned")
	}
	if st.Health != 100 {
		t.Fatalf("health = %d, want 100", st.Health)
	}

	// Staged at published tick 1, applied during tick 2.
	if err := h.rt.SubmitIntent(moveIntent(7, 11, 1, 0)); err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if st, _ := h.rt.Match().Actor(7); st.X != 0 {
		t.Fatalf("move applied before its tick: x = %d", st.X)
	}

	h.step(t)
	st, _ = h.rt.Match().Actor(7)
	if st.X != 1 || st.Y != 0 {
		t.Fatalf("position = (%d,%d), want (1,0)", st.X, st.Y)
	}
}

func TestIntentBeforeJoinIsSkipped(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.rt.SubmitCommand(joinCommand("s1", 1, 7)); err != nil {
		t.Fatalf("submit join: %v", err)
	}
	// Staged in the same window as the join. The actor joins during tick 1,
	// after eligibility was fixed, so the intent freezes but never applies.
	if err := h.rt.SubmitIntent(moveIntent(7, 5, 0, 1)); err != nil {
		t.Fatalf("submit move: %v", err)
	}

	h.step(t)
	st, ok := h.rt.Match().Actor(7)
	if !ok {
		t.Fatal("actor 7 not spawned")
	}
	if st.Y != 0 {
		t.Fatalf("ineligible intent applied: y = %d", st.Y)
	}
}

func TestClientAssertedSeqRejected(t *testing.T) {
	h := newHarness(t, Config{})

	in := moveIntent(7, 11, 1, 0)
	in.Seq = 3
	err := h.rt.SubmitIntent(in)
	if err == nil {
		t.Fatal("expected rejection for client-asserted seq")
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error type = %T, want *errors.Error", err)
	}
	if appErr.Code != apperrors.CodeRejectReservedSeq {
		t.Fatalf("code = %s, want %s", appErr.Code, apperrors.CodeRejectReservedSeq)
	}

	var snap diag.Snapshot
	h.rt.ReadDiagnostics(&snap)
	if snap.Intents.RejectedStructural != 1 {
		t.Fatalf("rejected structural = %d, want 1", snap.Intents.RejectedStructural)
	}
	if snap.Intents.Accepted != 0 {
		t.Fatalf("accepted = %d, want 0", snap.Intents.Accepted)
	}
}

func TestGuardAppliesBeforeHigherActorStrike(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.rt.SubmitCommand(joinCommand("s1", 1, 1)); err != nil {
		t.Fatalf("submit join s1: %v", err)
	}
	if err := h.rt.SubmitCommand(joinCommand("s2", 1, 5)); err != nil {
		t.Fatalf("submit join s2: %v", err)
	}
	h.step(t)
	h.step(t)

	// Same window: actor 1 raises guard, actor 5 strikes actor 1. Frozen
	// order is by actor handle, so the guard lands first and the strike is
	// absorbed.
	if err := h.rt.SubmitIntent(input.Intent{
		Actor: 1, InputID: 20, Kind: input.IntentGuard,
		Guard: input.GuardPayload{Raise: true},
	}); err != nil {
		t.Fatalf("submit guard: %v", err)
	}
	if err := h.rt.SubmitIntent(input.Intent{
		Actor: 5, InputID: 21, Kind: input.IntentStrike,
		Strike: input.StrikePayload{Target: 1, Slot: 0},
	}); err != nil {
		t.Fatalf("submit strike: %v", err)
	}

	h.step(t)
	st, _ := h.rt.Match().Actor(1)
	if !st.Guarding {
		t.Fatal("actor 1 not guarding")
	}
	if st.Health != 98 {
		t.Fatalf("health = %d, want 98", st.Health)
	}
}

func TestPerActorOverflowDropsNewest(t *testing.T) {
	h := newHarness(t, Config{IntentPerActorCap: 2, IntentGlobalCap: 16})

	for id := uint64(1); id <= 2; id++ {
		if err := h.rt.SubmitIntent(moveIntent(7, id, 1, 0)); err != nil {
			t.Fatalf("submit %d: %v", id, err)
		}
	}
	err := h.rt.SubmitIntent(moveIntent(7, 3, 1, 0))
	if err == nil {
		t.Fatal("expected per-actor overflow")
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeRejectOverflowKey {
		t.Fatalf("error = %v, want code %s", err, apperrors.CodeRejectOverflowKey)
	}

	var snap diag.Snapshot
	h.rt.ReadDiagnostics(&snap)
	if snap.Intents.Accepted != 2 {
		t.Fatalf("accepted = %d, want 2", snap.Intents.Accepted)
	}
	if snap.Intents.RejectedOverflowKey != 1 {
		t.Fatalf("overflow rejections = %d, want 1", snap.Intents.RejectedOverflowKey)
	}
}

func TestHandshakeAndDisconnect(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.rt.EnqueueHandshake(input.Handshake{Session: "s1", Protocol: input.ProtocolVersion, Token: "a"}); err != nil {
		t.Fatalf("enqueue s1: %v", err)
	}
	if err := h.rt.EnqueueHandshake(input.Handshake{Session: "s2", Protocol: input.ProtocolVersion, Token: "b"}); err != nil {
		t.Fatalf("enqueue s2: %v", err)
	}

	h.rt.Disconnect("s2")
	h.step(t)

	if !h.rt.Connected("s1") {
		t.Fatal("s1 handshake not processed")
	}
	if h.rt.Connected("s2") {
		t.Fatal("dropped s2 handshake was processed")
	}

	var snap diag.Snapshot
	h.rt.ReadDiagnostics(&snap)
	if snap.Handshakes.Processed != 1 {
		t.Fatalf("processed = %d, want 1", snap.Handshakes.Processed)
	}
	if snap.Handshakes.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", snap.Handshakes.Dropped)
	}
}

func TestInvalidHandshakeRejected(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.rt.EnqueueHandshake(input.Handshake{Session: "s1", Protocol: 1, Token: "a"})
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeRejectInvalidPayload {
		t.Fatalf("error = %v, want code %s", err, apperrors.CodeRejectInvalidPayload)
	}
}

func TestUnregisteredCommandKindCounted(t *testing.T) {
	h := newHarness(t, Config{})

	// Bypass validation: stage a kind the registry does not know so the
	// dispatch fallback is exercised.
	if err := h.rt.commands.TryStage(h.rt.Tick(), input.Command{
		Session:   "s1",
		CommandID: 1,
		Kind:      input.CommandKind(9),
	}); err != nil {
		t.Fatalf("stage raw command: %v", err)
	}

	h.step(t)
	if got := h.rt.UnknownCommands(); got != 1 {
		t.Fatalf("unknown commands = %d, want 1", got)
	}
}

func TestLoadoutChatAndLeave(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.rt.SubmitCommand(joinCommand("s1", 1, 7)); err != nil {
		t.Fatalf("submit join: %v", err)
	}
	h.step(t)

	if err := h.rt.SubmitCommand(input.Command{
		Session: "s1", CommandID: 2, Kind: input.CommandSetLoadout,
		Loadout: input.LoadoutPayload{Primary: 12, Secondary: 4},
	}); err != nil {
		t.Fatalf("submit loadout: %v", err)
	}
	if err := h.rt.SubmitCommand(input.Command{
		Session: "s1", CommandID: 3, Kind: input.CommandChat,
		Chat: input.ChatPayload{Text: "ready"},
	}); err != nil {
		t.Fatalf("submit chat: %v", err)
	}
	h.step(t)

	st, _ := h.rt.Match().Actor(7)
	if st.Loadout.Primary != 12 || st.Loadout.Secondary != 4 {
		t.Fatalf("loadout = %+v, want primary 12 secondary 4", st.Loadout)
	}
	if h.rt.Match().ChatLen() != 1 {
		t.Fatalf("chat len = %d, want 1", h.rt.Match().ChatLen())
	}

	if err := h.rt.SubmitCommand(input.Command{
		Session: "s1", CommandID: 4, Kind: input.CommandLeaveMatch,
	}); err != nil {
		t.Fatalf("submit leave: %v", err)
	}
	h.step(t)

	if h.rt.Roster().Len() != 0 {
		t.Fatalf("roster len = %d, want 0", h.rt.Roster().Len())
	}
	if _, ok := h.rt.Match().Actor(7); ok {
		t.Fatal("actor 7 still spawned after leave")
	}
}

func TestRuntimeStartStop(t *testing.T) {
	rt, err := New(Config{TickPeriod: time.Millisecond, FlushInterval: time.Hour}, Deps{})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	rt.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for rt.Tick() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler produced no ticks")
		}
		time.Sleep(time.Millisecond)
	}
	rt.Stop()
	rt.Stop()
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	rt, err := New(Config{TickPeriod: time.Millisecond, FlushInterval: time.Hour}, Deps{})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	rt.Start(context.Background())
	defer rt.Stop()

	// Sessions connect on the tick goroutine while the transport side reads
	// and disconnects. Exercised under the race detector.
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; i < 100; i++ {
		session := input.SessionID(fmt.Sprintf("s%d", i))
		hs := input.Handshake{Session: session, Protocol: input.ProtocolVersion, Token: "tok"}
		for rt.EnqueueHandshake(hs) != nil {
			if time.Now().After(deadline) {
				t.Fatal("ring never drained")
			}
			time.Sleep(time.Millisecond)
		}
		for !rt.Connected(session) {
			if time.Now().After(deadline) {
				t.Fatalf("handshake %s never completed", session)
			}
			time.Sleep(time.Millisecond)
		}
		if i%2 == 0 {
			rt.Disconnect(session)
			if rt.Connected(session) {
				t.Fatalf("disconnected session %s still reported connected", session)
			}
		}
	}

	if !rt.Connected("s99") {
		t.Fatal("session s99 should remain connected")
	}
}
