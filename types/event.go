package types

import (
	"encoding/json"
	"time"
)

// Well-known event types. Custom types are allowed everywhere a type string is accepted.
const (
	EventTypeCreate            = "m.room.create"
	EventTypeMember            = "m.room.member"
	EventTypePowerLevels       = "m.room.power_levels"
	EventTypeJoinRules         = "m.room.join_rules"
	EventTypeHistoryVisibility = "m.room.history_visibility"
	EventTypeName              = "m.room.name"
	EventTypeTopic             = "m.room.topic"
	EventTypeMessage           = "m.room.message"
)

// Event is a single room event. State events carry a state key (the empty string is
// a valid state key); timeline events have none. Events are immutable once accepted.
type Event struct {
	Id         string          `json:"event_id"`
	Type       string          `json:"type"`
	StateKey   *string         `json:"state_key,omitempty"`
	Sender     string          `json:"sender"`
	RoomId     string          `json:"room_id"`
	Content    json.RawMessage `json:"content"`
	OriginTs   int64           `json:"origin_server_ts"` // milliseconds
	AuthEvents []string        `json:"auth_events,omitempty"`
}

func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// NewStateEvent creates a state event with a fresh id and the current origin timestamp.
// content may be any JSON-marshalable payload (typically one of the *Content structs).
func NewStateEvent(roomId, sender, eventType, stateKey string, content interface{}) (*Event, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, Validation("could not encode event content: %s", err)
	}
	sk := stateKey
	return &Event{
		Id:       NewEventId(),
		Type:     eventType,
		StateKey: &sk,
		Sender:   sender,
		RoomId:   roomId,
		Content:  raw,
		OriginTs: nowMs(),
	}, nil
}

// NewTimelineEvent creates a non-state event (no state key).
func NewTimelineEvent(roomId, sender, eventType string, content interface{}) (*Event, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, Validation("could not encode event content: %s", err)
	}
	return &Event{
		Id:       NewEventId(),
		Type:     eventType,
		Sender:   sender,
		RoomId:   roomId,
		Content:  raw,
		OriginTs: nowMs(),
	}, nil
}

// IsState reports whether the event occupies a (type, state key) slot.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// Slot returns the state slot the event competes for. Only meaningful for state events.
func (e *Event) Slot() Slot {
	sk := ""
	if e.StateKey != nil {
		sk = *e.StateKey
	}
	return Slot{Type: e.Type, StateKey: sk}
}

// Validate performs basic structural checks on the event.
func (e *Event) Validate() error {
	if e.Id == "" {
		return Validation("event id cannot be empty")
	}
	if e.Sender == "" {
		return Validation("sender cannot be empty")
	}
	if e.RoomId == "" {
		return Validation("room id cannot be empty")
	}
	if e.Type == "" {
		return Validation("event type cannot be empty")
	}
	return nil
}

// MemberContent decodes the event content as a membership change.
func (e *Event) MemberContent() (*MemberContent, error) {
	var c MemberContent
	if err := json.Unmarshal(e.Content, &c); err != nil {
		return nil, Validation("bad member event content: %s", err)
	}
	return &c, nil
}

// PowerLevelsContent decodes the event content as a power-levels configuration.
func (e *Event) PowerLevelsContent() (*PowerLevels, error) {
	var c PowerLevels
	if err := json.Unmarshal(e.Content, &c); err != nil {
		return nil, Validation("bad power levels content: %s", err)
	}
	return &c, nil
}

// JoinRulesContent decodes the event content as a join-rule change.
func (e *Event) JoinRulesContent() (*JoinRulesContent, error) {
	var c JoinRulesContent
	if err := json.Unmarshal(e.Content, &c); err != nil {
		return nil, Validation("bad join rules content: %s", err)
	}
	return &c, nil
}
