package app

import (
	"slices"
	"sync"

	"github.com/mhollis/shardfall/internal/services/arena/domain/input"
)

// Roster tracks which sessions have claimed actor handles in the match. It is
// the scheduler's eligibility collaborator: Refresh rebuilds a sorted actor
// snapshot once per tick, and participants iterate that snapshot so actor
// order never depends on map iteration.
//
// Membership mutates only on the tick goroutine, through the join and leave
// command handlers.
type Roster struct {
	mu        sync.Mutex
	bySession map[input.SessionID]input.ActorID
	byActor   map[input.ActorID]input.SessionID
	snapshot  []input.ActorID
}

// NewRoster builds an empty roster.
func NewRoster() *Roster {
	return &Roster{
		bySession: make(map[input.SessionID]input.ActorID),
		byActor:   make(map[input.ActorID]input.SessionID),
	}
}

// Join claims an actor handle for a session. Rejoining with the same pair is
// a no-op; claiming a taken actor or a second actor for a session fails.
func (r *Roster) Join(session input.SessionID, actor input.ActorID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.bySession[session]; ok {
		return existing == actor
	}
	if _, ok := r.byActor[actor]; ok {
		return false
	}
	r.bySession[session] = actor
	r.byActor[actor] = session
	return true
}

// Leave releases the session's actor handle.
func (r *Roster) Leave(session input.SessionID) (input.ActorID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	actor, ok := r.bySession[session]
	if !ok {
		return 0, false
	}
	delete(r.bySession, session)
	delete(r.byActor, actor)
	return actor, true
}

// ActorFor returns the actor handle claimed by session.
func (r *Roster) ActorFor(session input.SessionID) (input.ActorID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	actor, ok := r.bySession[session]
	return actor, ok
}

// Contains reports whether actor is in the current snapshot.
func (r *Roster) Contains(actor input.ActorID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := slices.BinarySearch(r.snapshot, actor)
	return ok
}

// Refresh rebuilds the sorted actor snapshot. Called by the scheduler at
// Pre-Tick, before any hook or participant runs.
func (r *Roster) Refresh(uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = r.snapshot[:0]
	for actor := range r.byActor {
		r.snapshot = append(r.snapshot, actor)
	}
	slices.Sort(r.snapshot)
}

// Actors copies the current snapshot into dst and returns it.
func (r *Roster) Actors(dst []input.ActorID) []input.ActorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(dst[:0], r.snapshot...)
}

// Len reports the number of joined sessions.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySession)
}
