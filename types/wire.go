package types

import "encoding/json"

// Room presets determine the default join rule at creation time.
const (
	PresetPrivateChat        = "private_chat"
	PresetPublicChat         = "public_chat"
	PresetTrustedPrivateChat = "trusted_private_chat"
)

// RoomConfig is the caller-supplied room creation configuration.
type RoomConfig struct {
	Name                      string             `json:"name,omitempty"`
	Topic                     string             `json:"topic,omitempty"`
	RoomAliasName             string             `json:"room_alias_name,omitempty"`
	Invite                    []string           `json:"invite,omitempty"`
	RoomVersion               string             `json:"room_version,omitempty"`
	InitialState              []StateEventConfig `json:"initial_state,omitempty"`
	Preset                    string             `json:"preset,omitempty"`
	IsDirect                  bool               `json:"is_direct,omitempty"`
	PowerLevelContentOverride *PowerLevels       `json:"power_level_content_override,omitempty"`
}

// StateEventConfig is one entry of RoomConfig.InitialState.
type StateEventConfig struct {
	Type     string          `json:"type"`
	StateKey string          `json:"state_key"`
	Content  json.RawMessage `json:"content"`
}

type CreateRoomResponse struct {
	RoomId string `json:"room_id"`
}

type JoinRoomResponse struct {
	RoomId string `json:"room_id"`
}

type SendMessageResponse struct {
	EventId string `json:"event_id"`
}

type SendStateResponse struct {
	EventId string `json:"event_id"`
}

// RoomSummary is the client-facing view of a room's headline state.
type RoomSummary struct {
	RoomId            string   `json:"room_id"`
	Name              string   `json:"name,omitempty"`
	Topic             string   `json:"topic,omitempty"`
	MemberCount       int      `json:"member_count"`
	JoinRule          JoinRule `json:"join_rules"`
	HistoryVisibility string   `json:"history_visibility,omitempty"`
}

// MessagesResponse is a page of timeline history, newest first.
type MessagesResponse struct {
	Chunk []*Event `json:"chunk"`
	Start string   `json:"start"`
	End   string   `json:"end"`
}

// Identity is the opaque authenticated identity handed in by the identity
// subsystem. The core never parses tokens itself.
type Identity struct {
	UserId             string   `json:"user_id"`
	SubscriptionActive bool     `json:"subscription_active"`
	Scopes             []string `json:"scopes,omitempty"`
}

// HasScope reports whether the identity carries the given scope. An identity with
// no scope list at all is treated as unrestricted.
func (i *Identity) HasScope(scope string) bool {
	if len(i.Scopes) == 0 {
		return true
	}
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
