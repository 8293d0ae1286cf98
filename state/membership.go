package state

import (
	"encoding/json"

	"github.com/tcriess/lightspeed-rooms/types"
)

func decodeContent(ev *types.Event, out interface{}) error {
	if err := json.Unmarshal(ev.Content, out); err != nil {
		return types.Validation("bad %s content: %s", ev.Type, err)
	}
	return nil
}

func invalidTransition(from, to types.MembershipState) error {
	f := string(from)
	if f == "" {
		f = "none"
	}
	return types.Forbidden("invalid membership transition %s -> %s", f, to)
}

// validateMembership checks an m.room.member event against the membership state
// machine and the power level guards, evaluated on the state as it stood before
// the event.
func validateMembership(st *types.RoomState, ev *types.Event) error {
	content, err := ev.MemberContent()
	if err != nil {
		return err
	}
	if ev.StateKey == nil || *ev.StateKey == "" {
		return types.Validation("member event requires the target user id as state key")
	}
	next := content.Membership
	if !next.IsValid() {
		return types.Validation("unknown membership state %q", string(next))
	}

	target := *ev.StateKey
	sender := ev.Sender
	current := st.Membership(target)
	senderLevel := st.PowerLevels.UserLevel(sender)
	senderJoined := st.IsJoined(sender)

	switch next {
	case types.MembershipJoin:
		if sender != target {
			return types.Forbidden("cannot join on behalf of another user")
		}
		switch current {
		case types.MembershipInvite:
			return nil // invitee accepts
		case types.MembershipBan:
			return types.Forbidden("user %s is banned from the room", target)
		case types.MembershipNone:
			if st.JoinRule == types.JoinRulePublic {
				return nil
			}
			if senderLevel >= 100 {
				return nil // admin self-add, e.g. the creator at room creation
			}
			return types.Forbidden("room requires invitation")
		default:
			return invalidTransition(current, next)
		}

	case types.MembershipInvite:
		if current != types.MembershipNone {
			return invalidTransition(current, next)
		}
		if !senderJoined {
			return types.Forbidden("inviter is not in the room")
		}
		if senderLevel < st.PowerLevels.Invite {
			return types.Forbidden("insufficient power level to invite (%d < %d)", senderLevel, st.PowerLevels.Invite)
		}
		return nil

	case types.MembershipLeave:
		switch current {
		case types.MembershipInvite:
			if sender == target {
				return nil // invitee declines
			}
			if senderJoined && senderLevel >= st.PowerLevels.Kick {
				return nil // inviter (or another moderator) revokes
			}
			return types.Forbidden("insufficient power level to revoke invitation")
		case types.MembershipJoin:
			if sender == target {
				return nil // self-leave is always permitted
			}
			if senderJoined && senderLevel >= st.PowerLevels.Kick {
				return nil
			}
			return types.Forbidden("insufficient power level to kick (%d < %d)", senderLevel, st.PowerLevels.Kick)
		case types.MembershipBan:
			// unban
			if !senderJoined || senderLevel < st.PowerLevels.Ban {
				return types.Forbidden("insufficient power level to unban (%d < %d)", senderLevel, st.PowerLevels.Ban)
			}
			return nil
		case types.MembershipNone:
			return types.Forbidden("user %s is not in the room", target)
		default:
			return invalidTransition(current, next)
		}

	case types.MembershipBan:
		if current != types.MembershipJoin {
			return invalidTransition(current, next)
		}
		if !senderJoined {
			return types.Forbidden("sender is not in the room")
		}
		if senderLevel < st.PowerLevels.Ban {
			return types.Forbidden("insufficient power level to ban (%d < %d)", senderLevel, st.PowerLevels.Ban)
		}
		if senderLevel <= st.PowerLevels.UserLevel(target) {
			return types.Forbidden("cannot ban a user with equal or higher power level")
		}
		return nil

	case types.MembershipKnock:
		if sender != target {
			return types.Forbidden("cannot knock on behalf of another user")
		}
		if current != types.MembershipNone {
			return invalidTransition(current, next)
		}
		if st.JoinRule != types.JoinRuleKnock && st.JoinRule != types.JoinRuleKnockRestricted {
			return types.Forbidden("room does not accept knocks")
		}
		return nil
	}
	return invalidTransition(current, next)
}
