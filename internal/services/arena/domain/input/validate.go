package input

import (
	"fmt"

	apperrors "github.com/mhollis/shardfall/internal/platform/errors"
)

// ValidateIntent checks an intent before it may reach staging. The switch is
// exhaustive over IntentKind; adding a kind without a validator arm is a
// compile-visible hole here rather than a runtime surprise downstream.
func ValidateIntent(in Intent) *apperrors.Error {
	if in.Actor == 0 {
		return apperrors.New(apperrors.CodeRejectMissingKey, "intent is missing an actor handle")
	}
	if in.InputID == 0 {
		return apperrors.New(apperrors.CodeRejectMissingInputID, "intent is missing an input id")
	}
	if in.Seq != 0 {
		// Ordering is assigned at freeze time; a client asserting it is a
		// structural violation, not a capacity problem.
		return apperrors.New(apperrors.CodeRejectReservedSeq, "intent carries a client-asserted sequence")
	}

	switch in.Kind {
	case IntentMove:
		if in.Move.DX < -1 || in.Move.DX > 1 || in.Move.DY < -1 || in.Move.DY > 1 {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, "move direction out of range")
		}
		if in.Move.DX == 0 && in.Move.DY == 0 {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, "move direction is zero")
		}
		return nil
	case IntentStrike:
		if in.Strike.Target == 0 {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, "strike has no target")
		}
		if in.Strike.Slot > maxWeaponSlot {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, fmt.Sprintf("weapon slot %d out of range", in.Strike.Slot))
		}
		return nil
	case IntentGuard:
		return nil
	case IntentUseAbility:
		if in.Ability.Ability == 0 {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, "ability id is required")
		}
		return nil
	default:
		return apperrors.New(apperrors.CodeRejectUnknownKind, fmt.Sprintf("unknown intent kind %d", in.Kind))
	}
}

// ValidateCommand checks a session command before it may reach staging.
func ValidateCommand(cmd Command) *apperrors.Error {
	if cmd.Session == "" {
		return apperrors.New(apperrors.CodeRejectMissingKey, "command is missing a session id")
	}
	if cmd.CommandID == 0 {
		return apperrors.New(apperrors.CodeRejectMissingInputID, "command is missing a command id")
	}
	if cmd.Seq != 0 {
		return apperrors.New(apperrors.CodeRejectReservedSeq, "command carries a client-asserted sequence")
	}

	switch cmd.Kind {
	case CommandJoinMatch:
		if cmd.Join.Actor == 0 {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, "join command has no actor handle")
		}
		return nil
	case CommandLeaveMatch:
		return nil
	case CommandSetLoadout:
		if cmd.Loadout.Primary == 0 {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, "loadout requires a primary weapon")
		}
		return nil
	case CommandChat:
		if cmd.Chat.Text == "" {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, "chat text is empty")
		}
		if len(cmd.Chat.Text) > maxChatLen {
			return apperrors.New(apperrors.CodeRejectInvalidPayload, fmt.Sprintf("chat text exceeds %d bytes", maxChatLen))
		}
		return nil
	default:
		return apperrors.New(apperrors.CodeRejectUnknownKind, fmt.Sprintf("unknown command kind %d", cmd.Kind))
	}
}

// ValidateHandshake checks a connection hello before it enters the ring.
func ValidateHandshake(h Handshake) *apperrors.Error {
	if h.Session == "" {
		return apperrors.New(apperrors.CodeRejectMissingKey, "handshake is missing a session id")
	}
	if h.Protocol != ProtocolVersion {
		return apperrors.New(apperrors.CodeRejectInvalidPayload, fmt.Sprintf("unsupported protocol version %d", h.Protocol))
	}
	if h.Token == "" {
		return apperrors.New(apperrors.CodeRejectInvalidPayload, "handshake token is required")
	}
	return nil
}
