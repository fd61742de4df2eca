package domain

// Team is a named side. Teams exist independently of matches.
type Team struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName,omitempty"`
}

// Player belongs to a team roster. Roster membership is a superset of
// the playing eleven named for any one match.
type Player struct {
	ID     string `json:"id"`
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
}

// XIEntry is one slot in a match's playing eleven.
type XIEntry struct {
	PlayerID     string `json:"playerId"`
	BattingOrder int    `json:"battingOrder"`
	IsCaptain    bool   `json:"isCaptain"`
	IsKeeper     bool   `json:"isKeeper"`
}

// PlayingXI is the eleven (or rules.PlayersPerSide) named by one team
// for one match. It is frozen when the match goes live.
type PlayingXI struct {
	MatchID string    `json:"matchId"`
	TeamID  string    `json:"teamId"`
	Entries []XIEntry `json:"entries"`
}

// Has reports whether playerID was named in this eleven.
func (xi *PlayingXI) Has(playerID string) bool {
	if xi == nil {
		return false
	}
	for _, e := range xi.Entries {
		if e.PlayerID == playerID {
			return true
		}
	}
	return false
}

// Captain returns the captain's player id, or "" when none is flagged.
func (xi *PlayingXI) Captain() string {
	if xi == nil {
		return ""
	}
	for _, e := range xi.Entries {
		if e.IsCaptain {
			return e.PlayerID
		}
	}
	return ""
}

// Keeper returns the wicket-keeper's player id, or "" when none is flagged.
func (xi *PlayingXI) Keeper() string {
	if xi == nil {
		return ""
	}
	for _, e := range xi.Entries {
		if e.IsKeeper {
			return e.PlayerID
		}
	}
	return ""
}

// Role is what an authenticated subject is allowed to do on a match.
type Role string

const (
	// RoleCreator owns match setup: rules, officials, toss, lifecycle.
	RoleCreator Role = "creator"
	// RoleScorer submits ball events for one side.
	RoleScorer Role = "scorer"
	// RoleUmpire submits overriding ball events and resolves disputes.
	RoleUmpire Role = "umpire"
	// RoleCaptain may name the playing eleven for their own side.
	RoleCaptain Role = "captain"
	// RoleViewer may only read and subscribe.
	RoleViewer Role = "viewer"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleCreator, RoleScorer, RoleUmpire, RoleCaptain, RoleViewer:
		return true
	}
	return false
}

// Official is a subject registered on a match with a role and, for
// scorers and captains, the side they act for.
type Official struct {
	MatchID string     `json:"matchId"`
	Subject string     `json:"subject"`
	Role    Role       `json:"role"`
	Side    ScorerSide `json:"side,omitempty"`
}
