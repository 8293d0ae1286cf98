// Package room implements the orchestrator: it sequences the state engine, the
// authorization rules and the state store for every client-facing operation.
package room

import (
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/state"
	"github.com/tcriess/lightspeed-rooms/types"
)

const snapshotCacheSize = 256

// Notifier is invoked after a state mutation commits. Failures of downstream
// fan-out never roll back the committed transition, so Notify has no error return.
type Notifier interface {
	Notify(roomId string, events []*types.Event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, []*types.Event) {}

// Handler manages room operations on top of a StateStore.
type Handler struct {
	store    persistence.StateStore
	cfg      *config.Config
	notifier Notifier

	// read cache of committed snapshots; mutation paths always re-read from the
	// store inside the room's exclusive section
	snapshots *lru.Cache
}

func NewHandler(store persistence.StateStore, cfg *config.Config, notifier Notifier) *Handler {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	cache, _ := lru.New(snapshotCacheSize)
	return &Handler{
		store:     store,
		cfg:       cfg,
		notifier:  notifier,
		snapshots: cache,
	}
}

// storeError translates store sentinels into the API error taxonomy.
func storeError(err error) error {
	switch err {
	case persistence.ErrRoomNotFound:
		return types.NotFound("room not found")
	case persistence.ErrRoomExists:
		return types.Conflict("room already exists")
	}
	return types.Internal("storage error: %s", err)
}

// loadState reads a committed snapshot, preferring the cache. Only read paths use
// this; mutations go through mutate which always reads the store.
func (h *Handler) loadState(roomId string) (*types.RoomState, error) {
	if cached, ok := h.snapshots.Get(roomId); ok {
		return cached.(*types.RoomState).Clone(), nil
	}
	var st *types.RoomState
	err := h.store.WithShared(roomId, func() error {
		var err error
		st, err = h.store.GetRoom(roomId)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	h.snapshots.Add(roomId, st.Clone())
	return st, nil
}

// mutate runs one read-modify-write cycle inside the room's exclusive section.
// fn receives the current snapshot, applies its events to it and returns the
// events that were applied; they are broadcast after the commit.
func (h *Handler) mutate(roomId string, fn func(st *types.RoomState) ([]*types.Event, error)) error {
	var applied []*types.Event
	err := h.store.WithExclusive(roomId, func() error {
		st, err := h.store.GetRoom(roomId)
		if err != nil {
			return storeError(err)
		}
		applied, err = fn(st)
		if err != nil {
			return err
		}
		if err := h.store.UpdateRoom(st); err != nil {
			return storeError(err)
		}
		h.snapshots.Add(roomId, st.Clone())
		return nil
	})
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		h.notifier.Notify(roomId, applied)
	}
	return nil
}

// CreateRoom creates a room owned by the caller and seeds it from the supplied
// configuration. Every caller-supplied state event is individually authorized.
func (h *Handler) CreateRoom(user *types.Identity, rc *types.RoomConfig) (*types.CreateRoomResponse, error) {
	roomId := ""
	if rc.RoomAliasName != "" {
		roomId = types.NewRoomAlias(rc.RoomAliasName, h.cfg.ServerName)
	} else {
		roomId = types.NewRoomId(h.cfg.ServerName)
	}
	exists, err := h.store.RoomExists(roomId)
	if err != nil {
		return nil, storeError(err)
	}
	if exists {
		return nil, types.Conflict("room already exists: %s", roomId)
	}

	roomVersion := rc.RoomVersion
	if roomVersion == "" {
		roomVersion = h.cfg.DefaultRoomVersion
	}
	st, err := state.New(roomId, user.UserId, roomVersion)
	if err != nil {
		return nil, err
	}
	applied := make([]*types.Event, 0)
	for slot := range st.StateEvents {
		applied = append(applied, st.StateEvents[slot])
	}

	apply := func(ev *types.Event) error {
		if err := state.Authorize(st, ev); err != nil {
			return err
		}
		if err := state.Apply(st, ev); err != nil {
			return err
		}
		applied = append(applied, ev)
		return nil
	}

	joinRule, err := presetJoinRule(rc.Preset)
	if err != nil {
		return nil, err
	}
	if joinRule != st.JoinRule {
		ev, err := types.NewStateEvent(roomId, user.UserId, types.EventTypeJoinRules, "", types.JoinRulesContent{JoinRule: joinRule})
		if err != nil {
			return nil, err
		}
		if err := apply(ev); err != nil {
			return nil, err
		}
	}

	if rc.PowerLevelContentOverride != nil {
		ev, err := types.NewStateEvent(roomId, user.UserId, types.EventTypePowerLevels, "", rc.PowerLevelContentOverride)
		if err != nil {
			return nil, err
		}
		if err := apply(ev); err != nil {
			return nil, err
		}
	}

	if rc.Name != "" {
		ev, err := types.NewStateEvent(roomId, user.UserId, types.EventTypeName, "", types.NameContent{Name: rc.Name})
		if err != nil {
			return nil, err
		}
		if err := apply(ev); err != nil {
			return nil, err
		}
	}
	if rc.Topic != "" {
		ev, err := types.NewStateEvent(roomId, user.UserId, types.EventTypeTopic, "", types.TopicContent{Topic: rc.Topic})
		if err != nil {
			return nil, err
		}
		if err := apply(ev); err != nil {
			return nil, err
		}
	}

	// caller-supplied initial state; concurrent candidates for the same slot are
	// reconciled instead of applied last-write-wins
	initial := make([]*types.Event, 0, len(rc.InitialState))
	for _, sec := range rc.InitialState {
		ev, err := types.NewStateEvent(roomId, user.UserId, sec.Type, sec.StateKey, sec.Content)
		if err != nil {
			return nil, err
		}
		initial = append(initial, ev)
	}
	for _, group := range state.GroupBySlot(initial) {
		if len(group) == 1 {
			if err := apply(group[0]); err != nil {
				return nil, err
			}
			continue
		}
		winner, _, err := state.Resolve(st, group)
		if err != nil {
			return nil, err
		}
		if err := apply(winner); err != nil {
			return nil, err
		}
	}

	for _, target := range rc.Invite {
		ev, err := types.NewStateEvent(roomId, user.UserId, types.EventTypeMember, target, types.MemberContent{Membership: types.MembershipInvite})
		if err != nil {
			return nil, err
		}
		if err := apply(ev); err != nil {
			return nil, err
		}
	}

	if err := h.store.CreateRoom(st); err != nil {
		return nil, storeError(err)
	}
	h.snapshots.Add(roomId, st.Clone())
	h.notifier.Notify(roomId, applied)
	globals.AppLogger.Info("room created", "room", roomId, "creator", user.UserId)
	return &types.CreateRoomResponse{RoomId: roomId}, nil
}

func presetJoinRule(preset string) (types.JoinRule, error) {
	switch preset {
	case types.PresetPublicChat:
		return types.JoinRulePublic, nil
	case "", types.PresetPrivateChat, types.PresetTrustedPrivateChat:
		return types.JoinRuleInvite, nil
	}
	return "", types.Validation("unknown preset %q", preset)
}

// membershipChange runs one membership transition through the state machine.
func (h *Handler) membershipChange(sender *types.Identity, roomId, target string, membership types.MembershipState, reason string) error {
	return h.mutate(roomId, func(st *types.RoomState) ([]*types.Event, error) {
		ev, err := types.NewStateEvent(roomId, sender.UserId, types.EventTypeMember, target, types.MemberContent{
			Membership: membership,
			Reason:     reason,
		})
		if err != nil {
			return nil, err
		}
		if err := state.Authorize(st, ev); err != nil {
			return nil, err
		}
		if err := state.Apply(st, ev); err != nil {
			return nil, err
		}
		return []*types.Event{ev}, nil
	})
}

func (h *Handler) JoinRoom(user *types.Identity, roomId, reason string) (*types.JoinRoomResponse, error) {
	if err := h.membershipChange(user, roomId, user.UserId, types.MembershipJoin, reason); err != nil {
		return nil, err
	}
	return &types.JoinRoomResponse{RoomId: roomId}, nil
}

func (h *Handler) LeaveRoom(user *types.Identity, roomId, reason string) error {
	return h.membershipChange(user, roomId, user.UserId, types.MembershipLeave, reason)
}

func (h *Handler) InviteUser(user *types.Identity, roomId, target, reason string) error {
	return h.membershipChange(user, roomId, target, types.MembershipInvite, reason)
}

func (h *Handler) KickUser(user *types.Identity, roomId, target, reason string) error {
	if target == user.UserId {
		return types.Validation("use leave to remove yourself")
	}
	return h.membershipChange(user, roomId, target, types.MembershipLeave, reason)
}

func (h *Handler) BanUser(user *types.Identity, roomId, target, reason string) error {
	return h.membershipChange(user, roomId, target, types.MembershipBan, reason)
}

func (h *Handler) UnbanUser(user *types.Identity, roomId, target string) error {
	return h.membershipChange(user, roomId, target, types.MembershipLeave, "")
}

func (h *Handler) KnockRoom(user *types.Identity, roomId, reason string) error {
	return h.membershipChange(user, roomId, user.UserId, types.MembershipKnock, reason)
}

// SendMessage appends a timeline event. Messages never mutate room state, so the
// membership check runs under the room's shared section.
func (h *Handler) SendMessage(user *types.Identity, roomId string, content *types.MessageContent) (*types.SendMessageResponse, error) {
	if len(content.Body) > h.cfg.MaxMessageSize {
		return nil, types.MessageTooLarge(len(content.Body))
	}
	if content.MsgType == "" {
		content.MsgType = types.MsgTypeText
	}
	ev, err := types.NewTimelineEvent(roomId, user.UserId, types.EventTypeMessage, content)
	if err != nil {
		return nil, err
	}
	err = h.store.WithShared(roomId, func() error {
		st, err := h.store.GetRoom(roomId)
		if err != nil {
			return storeError(err)
		}
		if err := state.Authorize(st, ev); err != nil {
			return err
		}
		return h.store.AppendEvents(roomId, []*types.Event{ev})
	})
	if err != nil {
		return nil, err
	}
	h.notifier.Notify(roomId, []*types.Event{ev})
	return &types.SendMessageResponse{EventId: ev.Id}, nil
}

// SendStateEvent emits a generic state event (name, topic, join rules, power
// levels, custom types) through the authorization engine.
func (h *Handler) SendStateEvent(user *types.Identity, roomId, eventType, stateKey string, content json.RawMessage) (*types.SendStateResponse, error) {
	var eventId string
	err := h.mutate(roomId, func(st *types.RoomState) ([]*types.Event, error) {
		ev, err := types.NewStateEvent(roomId, user.UserId, eventType, stateKey, content)
		if err != nil {
			return nil, err
		}
		if err := state.Authorize(st, ev); err != nil {
			return nil, err
		}
		if err := state.Apply(st, ev); err != nil {
			return nil, err
		}
		eventId = ev.Id
		return []*types.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return &types.SendStateResponse{EventId: eventId}, nil
}

// ReconcileState merges competing state events (e.g. collected after a partition)
// into the room: per slot, the deterministic resolver picks one winner, which is
// then applied. Returns the applied winners.
func (h *Handler) ReconcileState(roomId string, candidates []*types.Event) ([]*types.Event, error) {
	winners := make([]*types.Event, 0)
	err := h.mutate(roomId, func(st *types.RoomState) ([]*types.Event, error) {
		for _, group := range state.GroupBySlot(candidates) {
			winner, superseded, err := state.Resolve(st, group)
			if err != nil {
				return nil, err
			}
			if err := state.Apply(st, winner); err != nil {
				return nil, err
			}
			if len(superseded) > 0 {
				// superseded events are retained in the timeline for audit
				if err := h.store.AppendEvents(roomId, superseded); err != nil {
					return nil, storeError(err)
				}
			}
			winners = append(winners, winner)
		}
		return winners, nil
	})
	if err != nil {
		return nil, err
	}
	return winners, nil
}

// ListRooms returns the ids of the rooms the user is currently joined to.
func (h *Handler) ListRooms(user *types.Identity) ([]string, error) {
	all, err := h.store.ListRooms()
	if err != nil {
		return nil, storeError(err)
	}
	joined := make([]string, 0)
	for _, roomId := range all {
		st, err := h.loadState(roomId)
		if err != nil {
			if types.IsNotFound(err) {
				continue // deleted concurrently
			}
			return nil, err
		}
		if st.IsJoined(user.UserId) {
			joined = append(joined, roomId)
		}
	}
	return joined, nil
}

// GetSummary returns the room summary. Only current members may see it.
func (h *Handler) GetSummary(user *types.Identity, roomId string) (*types.RoomSummary, error) {
	st, err := h.loadState(roomId)
	if err != nil {
		return nil, err
	}
	if !st.IsJoined(user.UserId) {
		return nil, types.Forbidden("user %s is not in the room", user.UserId)
	}
	return st.Summary(), nil
}

// GetMessages returns a page of the room's timeline, newest first.
func (h *Handler) GetMessages(user *types.Identity, roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) (*types.MessagesResponse, error) {
	st, err := h.loadState(roomId)
	if err != nil {
		return nil, err
	}
	if !st.IsJoined(user.UserId) {
		return nil, types.Forbidden("user %s is not in the room", user.UserId)
	}
	if toTs.IsZero() {
		toTs = time.Now().Add(time.Minute)
	}
	if maxCount <= 0 {
		maxCount = h.cfg.HistoryConfig.PageSize
	}
	var events []*types.Event
	err = h.store.WithShared(roomId, func() error {
		var err error
		events, err = h.store.EventHistory(roomId, fromTs, toTs, fromIdx, maxCount)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	resp := &types.MessagesResponse{Chunk: events}
	if len(events) > 0 {
		resp.Start = events[0].Id
		resp.End = events[len(events)-1].Id
	}
	return resp, nil
}
