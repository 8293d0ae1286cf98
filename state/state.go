// Package state implements the room state engine: genesis state construction,
// the membership state machine, the authorization rules gating every state
// mutation, and the deterministic resolver that reconciles competing state events.
//
// Everything in this package is a pure function of its inputs. Locking and
// persistence are the caller's concern.
package state

import (
	"github.com/mitchellh/hashstructure/v2"
	"github.com/tcriess/lightspeed-rooms/types"
)

// New constructs the genesis state of a room: creator at power level 100, default
// power levels, invite join rule, shared history visibility. The genesis events
// occupy their state slots directly; authorization starts with the first
// post-creation event.
func New(roomId, creator, roomVersion string) (*types.RoomState, error) {
	st := &types.RoomState{
		RoomId:            roomId,
		RoomVersion:       roomVersion,
		Creator:           creator,
		StateEvents:       make(types.StateMap),
		Members:           make(map[string]types.MembershipState),
		PowerLevels:       types.DefaultPowerLevels(creator),
		JoinRule:          types.JoinRuleInvite,
		HistoryVisibility: "shared",
	}

	createEv, err := types.NewStateEvent(roomId, creator, types.EventTypeCreate, "", types.CreateContent{
		Creator:     creator,
		RoomVersion: roomVersion,
	})
	if err != nil {
		return nil, err
	}
	memberEv, err := types.NewStateEvent(roomId, creator, types.EventTypeMember, creator, types.MemberContent{
		Membership: types.MembershipJoin,
	})
	if err != nil {
		return nil, err
	}
	plEv, err := types.NewStateEvent(roomId, creator, types.EventTypePowerLevels, "", st.PowerLevels)
	if err != nil {
		return nil, err
	}
	jrEv, err := types.NewStateEvent(roomId, creator, types.EventTypeJoinRules, "", types.JoinRulesContent{
		JoinRule: types.JoinRuleInvite,
	})
	if err != nil {
		return nil, err
	}
	hvEv, err := types.NewStateEvent(roomId, creator, types.EventTypeHistoryVisibility, "", types.HistoryVisibilityContent{
		HistoryVisibility: "shared",
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range []*types.Event{createEv, memberEv, plEv, jrEv, hvEv} {
		if err := Apply(st, ev); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Apply mutates the state with an already-authorized state event: the event takes
// its slot, and the denormalized caches (members, power levels, join rule, name,
// topic, history visibility) are refreshed from the event content.
func Apply(st *types.RoomState, ev *types.Event) error {
	if !ev.IsState() {
		return types.Validation("cannot apply timeline event %s to room state", ev.Id)
	}
	switch ev.Type {
	case types.EventTypeMember:
		content, err := ev.MemberContent()
		if err != nil {
			return err
		}
		target := *ev.StateKey
		if content.Membership == types.MembershipLeave {
			// a user who left is indistinguishable from one who never joined
			delete(st.Members, target)
		} else {
			st.Members[target] = content.Membership
		}

	case types.EventTypePowerLevels:
		content, err := ev.PowerLevelsContent()
		if err != nil {
			return err
		}
		st.PowerLevels = content.Clone()

	case types.EventTypeJoinRules:
		content, err := ev.JoinRulesContent()
		if err != nil {
			return err
		}
		st.JoinRule = content.JoinRule

	case types.EventTypeName:
		var content types.NameContent
		if err := decodeContent(ev, &content); err != nil {
			return err
		}
		st.Name = content.Name

	case types.EventTypeTopic:
		var content types.TopicContent
		if err := decodeContent(ev, &content); err != nil {
			return err
		}
		st.Topic = content.Topic

	case types.EventTypeHistoryVisibility:
		var content types.HistoryVisibilityContent
		if err := decodeContent(ev, &content); err != nil {
			return err
		}
		st.HistoryVisibility = content.HistoryVisibility
	}
	st.StateEvents[ev.Slot()] = ev
	return nil
}

// Fingerprint returns a deterministic hash of the materialized state. Two replicas
// that processed the same event set converge on the same fingerprint.
func Fingerprint(st *types.RoomState) (uint64, error) {
	return hashstructure.Hash(st, hashstructure.FormatV2, nil)
}
