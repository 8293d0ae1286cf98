package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-rooms/types"
)

const (
	testRoom = "!room:example.org"
	alice    = "@alice:example.org"
	bob      = "@bob:example.org"
	carol    = "@carol:example.org"
)

func newTestRoom(t *testing.T) *types.RoomState {
	t.Helper()
	st, err := New(testRoom, alice, "9")
	require.NoError(t, err)
	return st
}

// applyAs authorizes and applies a state event, failing the test on rejection.
func applyAs(t *testing.T, st *types.RoomState, sender, eventType, stateKey string, content interface{}) *types.Event {
	t.Helper()
	ev, err := types.NewStateEvent(testRoom, sender, eventType, stateKey, content)
	require.NoError(t, err)
	require.NoError(t, Authorize(st, ev))
	require.NoError(t, Apply(st, ev))
	return ev
}

func TestNewRoomGenesis(t *testing.T) {
	st := newTestRoom(t)

	assert.Equal(t, alice, st.Creator)
	assert.Equal(t, "9", st.RoomVersion)
	assert.Equal(t, 100, st.PowerLevels.UserLevel(alice))
	assert.True(t, st.IsJoined(alice))
	assert.Equal(t, 1, st.JoinedCount())
	assert.Equal(t, types.JoinRuleInvite, st.JoinRule)
	assert.Equal(t, "shared", st.HistoryVisibility)

	// the genesis events occupy their slots
	require.Len(t, st.StateEvents, 5)
	assert.NotNil(t, st.GetStateEvent(types.EventTypeCreate, ""))
	assert.NotNil(t, st.GetStateEvent(types.EventTypeMember, alice))
	assert.NotNil(t, st.GetStateEvent(types.EventTypePowerLevels, ""))
	assert.NotNil(t, st.GetStateEvent(types.EventTypeJoinRules, ""))
	assert.NotNil(t, st.GetStateEvent(types.EventTypeHistoryVisibility, ""))
}

func TestApplyRefreshesCaches(t *testing.T) {
	st := newTestRoom(t)

	applyAs(t, st, alice, types.EventTypeName, "", types.NameContent{Name: "General"})
	assert.Equal(t, "General", st.Name)

	applyAs(t, st, alice, types.EventTypeTopic, "", types.TopicContent{Topic: "everything"})
	assert.Equal(t, "everything", st.Topic)

	applyAs(t, st, alice, types.EventTypeJoinRules, "", types.JoinRulesContent{JoinRule: types.JoinRulePublic})
	assert.Equal(t, types.JoinRulePublic, st.JoinRule)

	applyAs(t, st, alice, types.EventTypeMember, bob, types.MemberContent{Membership: types.MembershipInvite})
	assert.Equal(t, types.MembershipInvite, st.Membership(bob))
}

func TestApplyLeaveRemovesMember(t *testing.T) {
	st := newTestRoom(t)
	applyAs(t, st, alice, types.EventTypeJoinRules, "", types.JoinRulesContent{JoinRule: types.JoinRulePublic})
	applyAs(t, st, bob, types.EventTypeMember, bob, types.MemberContent{Membership: types.MembershipJoin})
	require.True(t, st.IsJoined(bob))

	applyAs(t, st, bob, types.EventTypeMember, bob, types.MemberContent{Membership: types.MembershipLeave})
	// a user who left is indistinguishable from one who never joined
	_, present := st.Members[bob]
	assert.False(t, present)
	assert.Equal(t, types.MembershipNone, st.Membership(bob))
}

func TestApplyRejectsTimelineEvent(t *testing.T) {
	st := newTestRoom(t)
	ev, err := types.NewTimelineEvent(testRoom, alice, types.EventTypeMessage, types.MessageContent{Body: "hi"})
	require.NoError(t, err)
	err = Apply(st, ev)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestFingerprintConvergence(t *testing.T) {
	a := newTestRoom(t)
	b := a.Clone()

	fpA, err := Fingerprint(a)
	require.NoError(t, err)
	fpB, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)

	applyAs(t, b, alice, types.EventTypeName, "", types.NameContent{Name: "diverged"})
	fpB2, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fpA, fpB2)
}
