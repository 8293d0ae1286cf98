package types

// MembershipState is a user's relationship to a room. The zero value ("") stands for
// "none": the user never interacted with the room, or left it again.
type MembershipState string

const (
	MembershipNone   MembershipState = ""
	MembershipJoin   MembershipState = "join"
	MembershipLeave  MembershipState = "leave"
	MembershipInvite MembershipState = "invite"
	MembershipBan    MembershipState = "ban"
	MembershipKnock  MembershipState = "knock"
)

func (m MembershipState) IsValid() bool {
	switch m {
	case MembershipJoin, MembershipLeave, MembershipInvite, MembershipBan, MembershipKnock:
		return true
	}
	return false
}

// JoinRule controls who may enter a room.
type JoinRule string

const (
	JoinRulePublic          JoinRule = "public"
	JoinRuleInvite          JoinRule = "invite"
	JoinRulePrivate         JoinRule = "private"
	JoinRuleKnock           JoinRule = "knock"
	JoinRuleKnockRestricted JoinRule = "knock_restricted"
	JoinRuleRestricted      JoinRule = "restricted"
)

func (r JoinRule) IsValid() bool {
	switch r {
	case JoinRulePublic, JoinRuleInvite, JoinRulePrivate, JoinRuleKnock, JoinRuleKnockRestricted, JoinRuleRestricted:
		return true
	}
	return false
}
