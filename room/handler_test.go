package room

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

var (
	alice = &types.Identity{UserId: "@alice:example.org", SubscriptionActive: true}
	bob   = &types.Identity{UserId: "@bob:example.org", SubscriptionActive: true}
	carol = &types.Identity{UserId: "@carol:example.org", SubscriptionActive: true}
)

type captureNotifier struct {
	mu     sync.Mutex
	events []*types.Event
}

func (n *captureNotifier) Notify(_ string, events []*types.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func testConfig() *config.Config {
	return &config.Config{
		ServerName:         "example.org",
		DefaultRoomVersion: "9",
		MaxMessageSize:     65536,
		HistoryConfig:      config.HistoryConfig{PageSize: 50},
	}
}

func newTestHandler(t *testing.T) (*Handler, *captureNotifier) {
	t.Helper()
	notifier := &captureNotifier{}
	store := persistence.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return NewHandler(store, testConfig(), notifier), notifier
}

func createPublicRoom(t *testing.T, h *Handler) string {
	t.Helper()
	resp, err := h.CreateRoom(alice, &types.RoomConfig{
		Name:   "General",
		Topic:  "everything",
		Preset: types.PresetPublicChat,
	})
	require.NoError(t, err)
	return resp.RoomId
}

func TestCreateRoomAndSummary(t *testing.T) {
	h, notifier := newTestHandler(t)
	roomId := createPublicRoom(t, h)

	assert.True(t, strings.HasPrefix(roomId, "!"))
	assert.True(t, strings.HasSuffix(roomId, ":example.org"))
	assert.True(t, notifier.count() > 0)

	summary, err := h.GetSummary(alice, roomId)
	require.NoError(t, err)
	assert.Equal(t, "General", summary.Name)
	assert.Equal(t, "everything", summary.Topic)
	assert.Equal(t, 1, summary.MemberCount)
	assert.Equal(t, types.JoinRulePublic, summary.JoinRule)
	assert.Equal(t, "shared", summary.HistoryVisibility)
}

func TestCreateRoomAlias(t *testing.T) {
	h, _ := newTestHandler(t)
	resp, err := h.CreateRoom(alice, &types.RoomConfig{RoomAliasName: "general", Preset: types.PresetPublicChat})
	require.NoError(t, err)
	assert.Equal(t, "#general:example.org", resp.RoomId)

	_, err = h.CreateRoom(bob, &types.RoomConfig{RoomAliasName: "general"})
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))
}

func TestCreateRoomUnknownPreset(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.CreateRoom(alice, &types.RoomConfig{Preset: "cozy"})
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestCreateRoomInvites(t *testing.T) {
	h, _ := newTestHandler(t)
	resp, err := h.CreateRoom(alice, &types.RoomConfig{Invite: []string{bob.UserId}})
	require.NoError(t, err)

	// default preset is invite-only, but bob holds an invitation
	_, err = h.JoinRoom(carol, resp.RoomId, "")
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))

	_, err = h.JoinRoom(bob, resp.RoomId, "")
	require.NoError(t, err)
}

func TestJoinLeaveLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	roomId := createPublicRoom(t, h)

	_, err := h.JoinRoom(bob, roomId, "")
	require.NoError(t, err)

	summary, err := h.GetSummary(bob, roomId)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.MemberCount)

	require.NoError(t, h.LeaveRoom(bob, roomId, "bye"))

	// a second leave has no membership to remove
	err = h.LeaveRoom(bob, roomId, "")
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))
}

func TestJoinUnknownRoom(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.JoinRoom(bob, "!missing:example.org", "")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestInviteKickBanUnban(t *testing.T) {
	h, _ := newTestHandler(t)
	roomId := createPublicRoom(t, h)

	_, err := h.JoinRoom(bob, roomId, "")
	require.NoError(t, err)

	// bob is at users_default 0, kicking needs 50
	err = h.KickUser(bob, roomId, alice.UserId, "")
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))

	require.NoError(t, h.BanUser(alice, roomId, bob.UserId, "spam"))
	_, err = h.JoinRoom(bob, roomId, "")
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))

	require.NoError(t, h.UnbanUser(alice, roomId, bob.UserId))
	_, err = h.JoinRoom(bob, roomId, "")
	require.NoError(t, err)

	require.NoError(t, h.KickUser(alice, roomId, bob.UserId, "enough"))
	summary, err := h.GetSummary(alice, roomId)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MemberCount)

	err = h.KickUser(alice, roomId, alice.UserId, "")
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestKnock(t *testing.T) {
	h, _ := newTestHandler(t)
	resp, err := h.CreateRoom(alice, &types.RoomConfig{
		InitialState: []types.StateEventConfig{{
			Type:    types.EventTypeJoinRules,
			Content: []byte(`{"join_rule":"knock"}`),
		}},
	})
	require.NoError(t, err)

	require.NoError(t, h.KnockRoom(bob, resp.RoomId, "let me in"))
	// the knock does not admit the user
	_, err = h.GetSummary(bob, resp.RoomId)
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))
}

func TestSendMessage(t *testing.T) {
	h, notifier := newTestHandler(t)
	roomId := createPublicRoom(t, h)

	before := notifier.count()
	resp, err := h.SendMessage(alice, roomId, &types.MessageContent{Body: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.EventId, "$"))
	assert.Equal(t, before+1, notifier.count())

	// non-members cannot post
	_, err = h.SendMessage(bob, roomId, &types.MessageContent{Body: "hi"})
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))
}

func TestSendMessageTooLarge(t *testing.T) {
	h, _ := newTestHandler(t)
	roomId := createPublicRoom(t, h)

	body := strings.Repeat("x", 70000)
	_, err := h.SendMessage(alice, roomId, &types.MessageContent{Body: body})
	require.Error(t, err)
	e := types.AsError(err)
	assert.Equal(t, types.CodeTooLarge, e.Code)
	assert.Equal(t, 413, e.Status)
}

func TestSendStateEvent(t *testing.T) {
	h, _ := newTestHandler(t)
	roomId := createPublicRoom(t, h)
	_, err := h.JoinRoom(bob, roomId, "")
	require.NoError(t, err)

	// bob lacks the state default level
	_, err = h.SendStateEvent(bob, roomId, types.EventTypeName, "", []byte(`{"name":"hijacked"}`))
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))

	resp, err := h.SendStateEvent(alice, roomId, types.EventTypeName, "", []byte(`{"name":"Renamed"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.EventId, "$"))

	summary, err := h.GetSummary(alice, roomId)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", summary.Name)
}

func TestGetMessagesPaged(t *testing.T) {
	h, _ := newTestHandler(t)
	roomId := createPublicRoom(t, h)

	for i := 0; i < 5; i++ {
		_, err := h.SendMessage(alice, roomId, &types.MessageContent{Body: "msg"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // distinct origin timestamps
	}

	var zero time.Time
	resp, err := h.GetMessages(alice, roomId, zero, zero, 0, 3)
	require.NoError(t, err)
	assert.Len(t, resp.Chunk, 3)
	assert.Equal(t, resp.Chunk[0].Id, resp.Start)
	assert.Equal(t, resp.Chunk[2].Id, resp.End)
	// newest first
	assert.True(t, resp.Chunk[0].OriginTs >= resp.Chunk[2].OriginTs)

	// history is members-only
	_, err = h.GetMessages(bob, roomId, zero, zero, 0, 0)
	require.Error(t, err)
	assert.True(t, types.IsForbidden(err))
}

func TestListRooms(t *testing.T) {
	h, _ := newTestHandler(t)
	first := createPublicRoom(t, h)
	second := createPublicRoom(t, h)

	_, err := h.JoinRoom(bob, first, "")
	require.NoError(t, err)

	joined, err := h.ListRooms(bob)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, joined)

	joined, err = h.ListRooms(alice)
	require.NoError(t, err)
	assert.Len(t, joined, 2)
	assert.Contains(t, joined, second)
}

func TestReconcileState(t *testing.T) {
	h, _ := newTestHandler(t)
	roomId := createPublicRoom(t, h)
	_, err := h.JoinRoom(bob, roomId, "")
	require.NoError(t, err)

	// bob's candidate fails authorization and is discarded, alice's wins
	evBob, err := types.NewStateEvent(roomId, bob.UserId, types.EventTypeName, "", types.NameContent{Name: "bob's name"})
	require.NoError(t, err)
	evAlice, err := types.NewStateEvent(roomId, alice.UserId, types.EventTypeName, "", types.NameContent{Name: "alice's name"})
	require.NoError(t, err)

	winners, err := h.ReconcileState(roomId, []*types.Event{evBob, evAlice})
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, evAlice.Id, winners[0].Id)

	summary, err := h.GetSummary(alice, roomId)
	require.NoError(t, err)
	assert.Equal(t, "alice's name", summary.Name)
}

func TestPowerLevelOverrideAtCreation(t *testing.T) {
	h, _ := newTestHandler(t)
	pl := types.DefaultPowerLevels(alice.UserId)
	pl.Users[bob.UserId] = 50
	resp, err := h.CreateRoom(alice, &types.RoomConfig{
		Preset:                    types.PresetPublicChat,
		PowerLevelContentOverride: &pl,
	})
	require.NoError(t, err)

	_, err = h.JoinRoom(bob, resp.RoomId, "")
	require.NoError(t, err)
	// bob is a moderator from the start
	_, err = h.SendStateEvent(bob, resp.RoomId, types.EventTypeTopic, "", []byte(`{"topic":"mod topic"}`))
	require.NoError(t, err)
}
