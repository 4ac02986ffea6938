package app

import (
	"sync"

	"github.com/mhollis/shardfall/internal/services/arena/domain/input"
)

// slotDamage maps weapon slots to strike damage.
var slotDamage = [...]int32{10, 14, 6, 20}

const (
	startingHealth = 100
	guardedDivisor = 4
)

// ActorState is the authoritative per-actor match state.
type ActorState struct {
	X        int32
	Y        int32
	Health   int32
	Guarding bool
	Loadout  input.LoadoutPayload

	// LastAbility is the most recent ability invoked, zero when none.
	LastAbility uint16
}

// Match holds authoritative actor state. Mutations happen only on the tick
// goroutine during Execute; reads take the lock so transports and tests can
// observe state between ticks.
type Match struct {
	mu     sync.Mutex
	actors map[input.ActorID]*ActorState
	chat   []string
}

// NewMatch builds an empty match.
func NewMatch() *Match {
	return &Match{actors: make(map[input.ActorID]*ActorState)}
}

// AddActor spawns an actor at the origin with full health.
func (m *Match) AddActor(actor input.ActorID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actors[actor]; ok {
		return
	}
	m.actors[actor] = &ActorState{Health: startingHealth}
}

// RemoveActor despawns an actor.
func (m *Match) RemoveActor(actor input.ActorID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actors, actor)
}

// Actor returns a copy of the actor's state.
func (m *Match) Actor(actor input.ActorID) (ActorState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.actors[actor]
	if !ok {
		return ActorState{}, false
	}
	return *st, true
}

// SetLoadout replaces the actor's loadout.
func (m *Match) SetLoadout(actor input.ActorID, loadout input.LoadoutPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.actors[actor]; ok {
		st.Loadout = loadout
	}
}

// AppendChat records one chat line.
func (m *Match) AppendChat(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat = append(m.chat, line)
}

// ChatLen reports the number of recorded chat lines.
func (m *Match) ChatLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chat)
}

// Apply executes one frozen intent for an actor. Unknown actors are ignored;
// eligibility is decided by the roster before Apply is called.
func (m *Match) Apply(actor input.ActorID, in input.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.actors[actor]
	if !ok {
		return
	}

	switch in.Kind {
	case input.IntentMove:
		st.X += int32(in.Move.DX)
		st.Y += int32(in.Move.DY)
		st.Guarding = false
	case input.IntentStrike:
		target, ok := m.actors[in.Strike.Target]
		if !ok {
			return
		}
		damage := slotDamage[in.Strike.Slot]
		if target.Guarding {
			damage /= guardedDivisor
		}
		target.Health -= damage
		if target.Health < 0 {
			target.Health = 0
		}
	case input.IntentGuard:
		st.Guarding = in.Guard.Raise
	case input.IntentUseAbility:
		st.LastAbility = in.Ability.Ability
	}
}
