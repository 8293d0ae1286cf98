package state

import (
	"github.com/tcriess/lightspeed-rooms/types"
)

// Authorize decides whether the sender may emit the candidate event, evaluated
// against the room state as it stood before the event. It never mutates st.
func Authorize(st *types.RoomState, ev *types.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.RoomId != st.RoomId {
		return types.Validation("event %s does not belong to room %s", ev.Id, st.RoomId)
	}

	if !ev.IsState() {
		// timeline events only require current membership plus the per-type level
		if !st.IsJoined(ev.Sender) {
			return types.Forbidden("user %s is not in the room", ev.Sender)
		}
		if lvl := st.PowerLevels.UserLevel(ev.Sender); lvl < st.PowerLevels.RequiredForTimeline(ev.Type) {
			return types.Forbidden("insufficient power level to send %s (%d < %d)", ev.Type, lvl, st.PowerLevels.RequiredForTimeline(ev.Type))
		}
		return nil
	}

	if ev.Type == types.EventTypeCreate {
		// only valid as the very first event of a room
		if len(st.StateEvents) > 0 {
			return types.Forbidden("room is already created")
		}
		return nil
	}

	if ev.Type == types.EventTypeMember {
		return validateMembership(st, ev)
	}

	if !st.IsJoined(ev.Sender) {
		return types.Forbidden("user %s is not in the room", ev.Sender)
	}
	required := st.PowerLevels.RequiredForState(ev.Type)
	if lvl := st.PowerLevels.UserLevel(ev.Sender); lvl < required {
		return types.Forbidden("insufficient power level for %s (%d < %d)", ev.Type, lvl, required)
	}

	switch ev.Type {
	case types.EventTypePowerLevels:
		return validatePowerLevelChange(st, ev)
	case types.EventTypeJoinRules:
		content, err := ev.JoinRulesContent()
		if err != nil {
			return err
		}
		if !content.JoinRule.IsValid() {
			return types.Validation("unknown join rule %q", string(content.JoinRule))
		}
	}
	return nil
}

// validatePowerLevelChange guards against privilege escalation: a sender may not
// grant a level above their own, and may not touch the level of a user whose
// current level is at or above their own (self-demotion excepted).
func validatePowerLevelChange(st *types.RoomState, ev *types.Event) error {
	next, err := ev.PowerLevelsContent()
	if err != nil {
		return err
	}
	cur := &st.PowerLevels
	senderLevel := cur.UserLevel(ev.Sender)

	for user, newLevel := range next.Users {
		oldLevel := cur.UserLevel(user)
		if newLevel == oldLevel {
			continue
		}
		if newLevel > senderLevel {
			return types.Forbidden("cannot grant a power level above your own (%d > %d)", newLevel, senderLevel)
		}
		if user != ev.Sender && oldLevel >= senderLevel {
			return types.Forbidden("cannot change the power level of a user at or above your own level")
		}
	}
	// dropping a user entry resets them to users_default, same protection applies
	for user, oldLevel := range cur.Users {
		if _, ok := next.Users[user]; ok {
			continue
		}
		if user != ev.Sender && oldLevel >= senderLevel {
			return types.Forbidden("cannot change the power level of a user at or above your own level")
		}
	}

	named := [][2]int{
		{cur.UsersDefault, next.UsersDefault},
		{cur.EventsDefault, next.EventsDefault},
		{cur.StateDefault, next.StateDefault},
		{cur.Ban, next.Ban},
		{cur.Kick, next.Kick},
		{cur.Redact, next.Redact},
		{cur.Invite, next.Invite},
	}
	for _, pair := range named {
		oldLevel, newLevel := pair[0], pair[1]
		if oldLevel == newLevel {
			continue
		}
		if oldLevel > senderLevel || newLevel > senderLevel {
			return types.Forbidden("cannot change a power level requirement above your own level")
		}
	}
	for eventType, newLevel := range next.Events {
		oldLevel, ok := cur.Events[eventType]
		if ok && oldLevel == newLevel {
			continue
		}
		if (ok && oldLevel > senderLevel) || newLevel > senderLevel {
			return types.Forbidden("cannot change a power level requirement above your own level")
		}
	}
	return nil
}
