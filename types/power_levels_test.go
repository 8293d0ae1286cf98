package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPowerLevels(t *testing.T) {
	pl := DefaultPowerLevels("@alice:test")
	assert.Equal(t, 100, pl.UserLevel("@alice:test"))
	assert.Equal(t, 0, pl.UserLevel("@bob:test"))
	assert.Equal(t, 50, pl.StateDefault)
	assert.Equal(t, 50, pl.Ban)
	assert.Equal(t, 50, pl.Kick)
	assert.Equal(t, 50, pl.Invite)
	assert.Equal(t, 0, pl.EventsDefault)
}

func TestRequiredForState(t *testing.T) {
	pl := DefaultPowerLevels("@alice:test")
	assert.Equal(t, 50, pl.RequiredForState(EventTypeName))

	pl.Events[EventTypeName] = 10
	assert.Equal(t, 10, pl.RequiredForState(EventTypeName))

	// administrative types never drop below the state default
	pl.Events[EventTypePowerLevels] = 0
	assert.Equal(t, 50, pl.RequiredForState(EventTypePowerLevels))
	pl.Events[EventTypeJoinRules] = 75
	assert.Equal(t, 75, pl.RequiredForState(EventTypeJoinRules))
}

func TestPowerLevelsClone(t *testing.T) {
	pl := DefaultPowerLevels("@alice:test")
	clone := pl.Clone()
	clone.Users["@bob:test"] = 50
	clone.Events[EventTypeMessage] = 25
	assert.Equal(t, 0, pl.UserLevel("@bob:test"))
	assert.Equal(t, 0, pl.RequiredForTimeline(EventTypeMessage))
}
