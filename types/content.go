package types

// CreateContent is the content of an m.room.create event. The creator is set once
// and never changes for the lifetime of the room.
type CreateContent struct {
	Creator     string `json:"creator"`
	RoomVersion string `json:"room_version,omitempty"`
	Federate    *bool  `json:"m.federate,omitempty"`
}

// MemberContent is the content of an m.room.member event. The target user is the
// event's state key, not part of the content.
type MemberContent struct {
	Membership  MembershipState `json:"membership"`
	DisplayName string          `json:"displayname,omitempty"`
	AvatarUrl   string          `json:"avatar_url,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// JoinRulesContent is the content of an m.room.join_rules event.
type JoinRulesContent struct {
	JoinRule JoinRule `json:"join_rule"`
}

// NameContent is the content of an m.room.name event.
type NameContent struct {
	Name string `json:"name"`
}

// TopicContent is the content of an m.room.topic event.
type TopicContent struct {
	Topic string `json:"topic"`
}

// HistoryVisibilityContent is the content of an m.room.history_visibility event.
type HistoryVisibilityContent struct {
	HistoryVisibility string `json:"history_visibility"`
}

// Message type strings for m.room.message events.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
	MsgTypeImage  = "m.image"
	MsgTypeFile   = "m.file"
)

// MessageContent is the content of an m.room.message timeline event.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}
