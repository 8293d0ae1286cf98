package types

// PowerLevels holds the per-user authorization ranks and the named defaults for a
// room. It doubles as the content of an m.room.power_levels event.
type PowerLevels struct {
	Users         map[string]int `json:"users"`
	UsersDefault  int            `json:"users_default"`
	Events        map[string]int `json:"events"`
	EventsDefault int            `json:"events_default"`
	StateDefault  int            `json:"state_default"`
	Ban           int            `json:"ban"`
	Kick          int            `json:"kick"`
	Redact        int            `json:"redact"`
	Invite        int            `json:"invite"`
}

// DefaultPowerLevels seeds the power level configuration for a fresh room:
// the creator gets level 100, everything else the documented defaults.
func DefaultPowerLevels(creator string) PowerLevels {
	return PowerLevels{
		Users:         map[string]int{creator: 100},
		UsersDefault:  0,
		Events:        map[string]int{},
		EventsDefault: 0,
		StateDefault:  50,
		Ban:           50,
		Kick:          50,
		Redact:        50,
		Invite:        50,
	}
}

// UserLevel returns the effective power level of a user.
func (p *PowerLevels) UserLevel(userId string) int {
	if lvl, ok := p.Users[userId]; ok {
		return lvl
	}
	return p.UsersDefault
}

// RequiredForState returns the power level required to emit a state event of the
// given type: the per-type override if present, otherwise the state default.
// Administrative types (power levels, join rules) never drop below the state default.
func (p *PowerLevels) RequiredForState(eventType string) int {
	if lvl, ok := p.Events[eventType]; ok {
		switch eventType {
		case EventTypePowerLevels, EventTypeJoinRules:
			if lvl < p.StateDefault {
				return p.StateDefault
			}
		}
		return lvl
	}
	return p.StateDefault
}

// RequiredForTimeline returns the power level required to emit a timeline event of
// the given type.
func (p *PowerLevels) RequiredForTimeline(eventType string) int {
	if lvl, ok := p.Events[eventType]; ok {
		return lvl
	}
	return p.EventsDefault
}

// Clone returns a deep copy.
func (p *PowerLevels) Clone() PowerLevels {
	out := *p
	out.Users = make(map[string]int, len(p.Users))
	for k, v := range p.Users {
		out.Users[k] = v
	}
	out.Events = make(map[string]int, len(p.Events))
	for k, v := range p.Events {
		out.Events[k] = v
	}
	return out
}
