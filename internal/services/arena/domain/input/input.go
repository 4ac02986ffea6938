// Package input defines the client-submitted inputs the arena core stages:
// combat intents keyed by actor, session commands keyed by session, and
// connection handshakes.
//
// Each input is a closed tagged variant: a kind tag plus fixed per-kind
// payload records, so validators can be exhaustive. Keys are opaque,
// previously authenticated identifiers; a zero value is never a legal key.
package input

// ActorID is the server-issued handle of an authenticated actor.
type ActorID uint64

// SessionID is the server-issued identifier of an authenticated session.
type SessionID string

// IntentKind tags a combat intent variant.
type IntentKind uint8

const (
	IntentUnspecified IntentKind = iota
	IntentMove
	IntentStrike
	IntentGuard
	IntentUseAbility
)

// String returns the kind name for diagnostics.
func (k IntentKind) String() string {
	switch k {
	case IntentMove:
		return "move"
	case IntentStrike:
		return "strike"
	case IntentGuard:
		return "guard"
	case IntentUseAbility:
		return "use_ability"
	default:
		return "unspecified"
	}
}

// MovePayload is a unit direction on the arena grid.
type MovePayload struct {
	DX int8
	DY int8
}

// StrikePayload targets one actor with an equipped weapon slot.
type StrikePayload struct {
	Target ActorID
	Slot   uint8
}

// GuardPayload raises or lowers the actor's guard.
type GuardPayload struct {
	Raise bool
}

// AbilityPayload invokes a catalog ability, optionally targeted.
type AbilityPayload struct {
	Ability uint16
	Target  ActorID
}

// maxWeaponSlot bounds StrikePayload.Slot.
const maxWeaponSlot = 3

// Intent is one staged combat input. InputID is the client-carried natural
// identifier used in the freeze ordering; Seq belongs solely to the server
// and must arrive zero.
type Intent struct {
	Actor   ActorID
	InputID uint64
	Kind    IntentKind
	Seq     uint32

	Move    MovePayload
	Strike  StrikePayload
	Guard   GuardPayload
	Ability AbilityPayload
}

// CommandKind tags a session command variant.
type CommandKind uint8

const (
	CommandUnspecified CommandKind = iota
	CommandJoinMatch
	CommandLeaveMatch
	CommandSetLoadout
	CommandChat
)

// String returns the kind name for diagnostics.
func (k CommandKind) String() string {
	switch k {
	case CommandJoinMatch:
		return "join_match"
	case CommandLeaveMatch:
		return "leave_match"
	case CommandSetLoadout:
		return "set_loadout"
	case CommandChat:
		return "chat"
	default:
		return "unspecified"
	}
}

// JoinPayload attaches an actor handle to the session's match slot.
type JoinPayload struct {
	Actor ActorID
}

// LoadoutPayload selects catalog weapon ids.
type LoadoutPayload struct {
	Primary   uint16
	Secondary uint16
}

// ChatPayload carries one chat line.
type ChatPayload struct {
	Text string
}

// maxChatLen bounds ChatPayload.Text in bytes.
const maxChatLen = 256

// Command is one staged session command. CommandID is the client-carried
// natural identifier; Seq belongs solely to the server and must arrive zero.
type Command struct {
	Session   SessionID
	CommandID uint64
	Kind      CommandKind
	Seq       uint32

	Join    JoinPayload
	Loadout LoadoutPayload
	Chat    ChatPayload
}

// Handshake is a connection hello processed through the session ring
// pipeline rather than per-key staging.
type Handshake struct {
	Session  SessionID
	Protocol uint16
	Token    string
}

// ProtocolVersion is the wire protocol this build accepts.
const ProtocolVersion = 3
