package auth

import "github.com/thirdumpire/crease/internal/domain"

// Command is the permission a caller needs. Scorers record play,
// officials settle disputes and lifecycle, the creator owns setup.
type Command string

const (
	CmdCreateMatch    Command = "create_match"
	CmdConductToss    Command = "conduct_toss"
	CmdSetPlayingXI   Command = "set_playing_xi"
	CmdOpenInnings    Command = "open_innings"
	CmdSetBatsmen     Command = "set_batsmen"
	CmdSetBowler      Command = "set_bowler"
	CmdOpenOver       Command = "open_over"
	CmdSubmitBall     Command = "submit_ball"
	CmdCloseInnings   Command = "close_innings"
	CmdResolveDispute Command = "resolve_dispute"
	CmdCorrectBall    Command = "correct_ball"
	CmdAbandonMatch   Command = "abandon_match"
)

// Allowed reports whether a role may run a command at all. Per-match
// registration (is this subject an official here, which side) is
// checked separately against the officials table.
func Allowed(role domain.Role, cmd Command) bool {
	switch cmd {
	case CmdCreateMatch:
		return true
	case CmdConductToss, CmdAbandonMatch:
		return role == domain.RoleCreator
	case CmdSetPlayingXI:
		return role == domain.RoleCreator || role == domain.RoleCaptain
	case CmdSubmitBall, CmdOpenOver, CmdOpenInnings, CmdSetBatsmen, CmdSetBowler, CmdCloseInnings:
		return role == domain.RoleScorer || role == domain.RoleUmpire
	case CmdResolveDispute, CmdCorrectBall:
		return role == domain.RoleUmpire || role == domain.RoleCreator
	}
	return false
}

// RequireOfficial checks that claims identify a registered official of
// the match with a role sufficient for cmd. The creator of the match is
// implicitly registered.
func RequireOfficial(c Claims, matchID, creatorID string, officials []*domain.Official, cmd Command) error {
	if c.MatchID != "" && c.MatchID != matchID {
		return domain.E(domain.ErrPermissionDenied, "credential is scoped to another match")
	}
	role := c.Role
	if c.Subject == creatorID {
		role = domain.RoleCreator
	} else {
		registered := false
		for _, o := range officials {
			if o.Subject == c.Subject && o.Role == c.Role {
				registered = true
				break
			}
		}
		if !registered {
			return domain.E(domain.ErrPermissionDenied,
				"%s is not registered as %s on this match", c.Subject, c.Role)
		}
	}
	if !Allowed(role, cmd) {
		return domain.E(domain.ErrPermissionDenied, "role %s may not %s", role, cmd)
	}
	return nil
}
