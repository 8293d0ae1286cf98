package types

import (
	"strings"

	"github.com/google/uuid"
)

func opaque() string {
	return strings.Replace(uuid.New().String(), "-", "", -1)
}

// NewRoomId returns a fresh room id of the form "!<opaque>:<serverName>".
func NewRoomId(serverName string) string {
	return "!" + opaque() + ":" + serverName
}

// NewRoomAlias returns a room alias of the form "#<alias>:<serverName>".
func NewRoomAlias(alias, serverName string) string {
	return "#" + alias + ":" + serverName
}

// NewEventId returns a fresh event id of the form "$<opaque>".
func NewEventId() string {
	return "$" + opaque()
}

// IsRoomId reports whether s looks like a room id or room alias.
func IsRoomId(s string) bool {
	if len(s) < 2 || (s[0] != '!' && s[0] != '#') {
		return false
	}
	return strings.Contains(s[1:], ":")
}
