package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Slot identifies the unique (event type, state key) pair a state event occupies.
type Slot struct {
	Type     string `json:"type"`
	StateKey string `json:"state_key"`
}

// StateMap maps state slots to their current occupant. At most one event per slot;
// the occupant is always the outcome of state resolution.
// Implements json.Marshaler/Unmarshaler (struct keys do not round-trip through JSON
// maps) and driver.Valuer/sql.Scanner so snapshots can live in a database column.
type StateMap map[Slot]*Event

type stateMapEntry struct {
	Slot  Slot   `json:"slot"`
	Event *Event `json:"event"`
}

// MarshalJSON encodes the map as a list of entries sorted by slot for stable output.
func (m StateMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	entries := make([]stateMapEntry, 0, len(m))
	for slot, ev := range m {
		entries = append(entries, stateMapEntry{Slot: slot, Event: ev})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Slot.Type != entries[j].Slot.Type {
			return entries[i].Slot.Type < entries[j].Slot.Type
		}
		return entries[i].Slot.StateKey < entries[j].Slot.StateKey
	})
	return json.Marshal(entries)
}

// UnmarshalJSON to deserialize []byte
func (m *StateMap) UnmarshalJSON(b []byte) error {
	entries := make([]stateMapEntry, 0)
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	t := make(map[Slot]*Event, len(entries))
	for _, e := range entries {
		t[e.Slot] = e.Event
	}
	*m = StateMap(t)
	return nil
}

// Value return json value, implement driver.Valuer interface
func (m StateMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	ba, err := m.MarshalJSON()
	return string(ba), err
}

// Scan scan value into the map, implements sql.Scanner interface
func (m *StateMap) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("failed to unmarshal state map value:", val))
	}
	return m.UnmarshalJSON(ba)
}

// GormDataType gorm common data type
func (m StateMap) GormDataType() string {
	return "statemap"
}

// GormDBDataType gorm db data type
func (StateMap) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}

// RoomState is the current, reconciled view of one room. The join rule, name, topic
// and history visibility fields are read-through caches of the corresponding state
// slots; the slots are authoritative.
type RoomState struct {
	RoomId            string                     `json:"room_id"`
	RoomVersion       string                     `json:"room_version"`
	Creator           string                     `json:"creator"`
	StateEvents       StateMap                   `json:"state_events"`
	Members           map[string]MembershipState `json:"members"`
	PowerLevels       PowerLevels                `json:"power_levels"`
	JoinRule          JoinRule                   `json:"join_rule"`
	Name              string                     `json:"name,omitempty"`
	Topic             string                     `json:"topic,omitempty"`
	HistoryVisibility string                     `json:"history_visibility,omitempty"`
}

// GetStateEvent returns the current occupant of a slot, or nil.
func (s *RoomState) GetStateEvent(eventType, stateKey string) *Event {
	return s.StateEvents[Slot{Type: eventType, StateKey: stateKey}]
}

// Membership returns the user's current membership ("" for none).
func (s *RoomState) Membership(userId string) MembershipState {
	return s.Members[userId]
}

// IsJoined reports whether the user is currently joined.
func (s *RoomState) IsJoined(userId string) bool {
	return s.Members[userId] == MembershipJoin
}

// JoinedCount returns the number of currently joined members.
func (s *RoomState) JoinedCount() int {
	n := 0
	for _, m := range s.Members {
		if m == MembershipJoin {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the state. The store hands out clones so that one
// request's mutations never leak into another's snapshot.
func (s *RoomState) Clone() *RoomState {
	out := *s
	out.StateEvents = make(StateMap, len(s.StateEvents))
	for slot, ev := range s.StateEvents {
		e := *ev
		out.StateEvents[slot] = &e
	}
	out.Members = make(map[string]MembershipState, len(s.Members))
	for k, v := range s.Members {
		out.Members[k] = v
	}
	out.PowerLevels = s.PowerLevels.Clone()
	return &out
}

// Summary returns the client-facing summary of the room.
func (s *RoomState) Summary() *RoomSummary {
	return &RoomSummary{
		RoomId:            s.RoomId,
		Name:              s.Name,
		Topic:             s.Topic,
		MemberCount:       s.JoinedCount(),
		JoinRule:          s.JoinRule,
		HistoryVisibility: s.HistoryVisibility,
	}
}
