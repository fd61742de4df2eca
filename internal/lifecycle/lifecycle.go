// Package lifecycle is the match state machine. Transitions are pure
// functions over the match record; persistence and broadcast happen in
// the scoring pipeline after a transition succeeds.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
)

// CanTransition reports whether the state machine permits from -> to.
// Abandonment is allowed from every non-terminal state.
func CanTransition(from, to domain.MatchState) bool {
	if to == domain.MatchAbandoned {
		return !from.Terminal()
	}
	switch from {
	case domain.MatchScheduled:
		return to == domain.MatchTossPending
	case domain.MatchTossPending:
		return to == domain.MatchLive
	case domain.MatchLive:
		return to == domain.MatchInningsBreak || to == domain.MatchCompleted
	case domain.MatchInningsBreak:
		return to == domain.MatchLive || to == domain.MatchCompleted
	}
	return false
}

func transitionErr(m *domain.Match, to domain.MatchState) error {
	return domain.E(domain.ErrFailedPrecondition,
		"match %s is %s, cannot move to %s", m.ID, m.State, to)
}

// ConductToss records the coin toss. The match must not have started;
// the winner must be one of the parties.
func ConductToss(m *domain.Match, wonByTeamID string, elected domain.TossChoice, now time.Time) error {
	if m.State != domain.MatchScheduled && m.State != domain.MatchTossPending {
		return domain.E(domain.ErrFailedPrecondition,
			"toss can only be conducted before play, match is %s", m.State)
	}
	if m.Toss != nil {
		return domain.E(domain.ErrConflict, "toss already conducted")
	}
	if !m.HasTeam(wonByTeamID) {
		return domain.E(domain.ErrInvalidArgument, "toss winner %s is not playing this match", wonByTeamID)
	}
	if elected != domain.TossBat && elected != domain.TossBowl {
		return domain.E(domain.ErrInvalidArgument, "elected must be bat or bowl, got %q", elected)
	}
	m.Toss = &domain.Toss{WonByTeamID: wonByTeamID, Elected: elected, CalledAt: now.UTC()}
	if m.State == domain.MatchScheduled {
		m.State = domain.MatchTossPending
	}
	return nil
}

// ValidateXI checks one side's eleven against the rule sheet: exact
// size, distinct members, one captain, and a keeper when required.
func ValidateXI(m *domain.Match, xi *domain.PlayingXI) error {
	if m.State != domain.MatchScheduled && m.State != domain.MatchTossPending {
		return domain.E(domain.ErrFailedPrecondition,
			"playing eleven is frozen once the match is %s", m.State)
	}
	if !m.HasTeam(xi.TeamID) {
		return domain.E(domain.ErrInvalidArgument, "team %s is not playing this match", xi.TeamID)
	}
	if len(xi.Entries) != m.Rules.PlayersPerSide {
		return domain.E(domain.ErrInvalidArgument,
			"playing side must have exactly %d players, got %d", m.Rules.PlayersPerSide, len(xi.Entries))
	}
	seen := make(map[string]bool, len(xi.Entries))
	captains, keepers := 0, 0
	for _, e := range xi.Entries {
		if e.PlayerID == "" {
			return domain.E(domain.ErrInvalidArgument, "eleven entry missing playerId")
		}
		if seen[e.PlayerID] {
			return domain.E(domain.ErrInvalidArgument, "player %s named twice", e.PlayerID)
		}
		seen[e.PlayerID] = true
		if e.IsCaptain {
			captains++
		}
		if e.IsKeeper {
			keepers++
		}
	}
	if captains != 1 {
		return domain.E(domain.ErrInvalidArgument, "exactly one captain required, got %d", captains)
	}
	if keepers > 1 {
		return domain.E(domain.ErrInvalidArgument, "at most one keeper, got %d", keepers)
	}
	if m.Rules.RequireKeeper && keepers != 1 {
		return domain.E(domain.ErrInvalidArgument, "rule sheet requires a wicket-keeper")
	}
	return nil
}

// MaybeGoLive moves a match to Live once the toss is done and both
// sides have a complete eleven. Returns true when the transition fired.
func MaybeGoLive(m *domain.Match, homeXI, awayXI *domain.PlayingXI, now time.Time) bool {
	if m.State != domain.MatchTossPending || m.Toss == nil {
		return false
	}
	if homeXI == nil || awayXI == nil {
		return false
	}
	if len(homeXI.Entries) != m.Rules.PlayersPerSide || len(awayXI.Entries) != m.Rules.PlayersPerSide {
		return false
	}
	m.State = domain.MatchLive
	t := now.UTC()
	m.StartedAt = &t
	return true
}

// FirstBattingTeam derives innings one's batting side from the toss.
func FirstBattingTeam(m *domain.Match) (string, error) {
	if m.Toss == nil {
		return "", domain.E(domain.ErrFailedPrecondition, "toss has not been conducted")
	}
	if m.Toss.Elected == domain.TossBat {
		return m.Toss.WonByTeamID, nil
	}
	return m.Opponent(m.Toss.WonByTeamID), nil
}

// BeginInningsBreak moves a live match into the break between innings.
func BeginInningsBreak(m *domain.Match) error {
	if !CanTransition(m.State, domain.MatchInningsBreak) {
		return transitionErr(m, domain.MatchInningsBreak)
	}
	m.State = domain.MatchInningsBreak
	return nil
}

// ResumeLive reopens play for the next innings.
func ResumeLive(m *domain.Match) error {
	if m.State != domain.MatchInningsBreak {
		return transitionErr(m, domain.MatchLive)
	}
	m.State = domain.MatchLive
	return nil
}

// Complete finishes the match with a result.
func Complete(m *domain.Match, result domain.Result, now time.Time) error {
	if !CanTransition(m.State, domain.MatchCompleted) {
		return transitionErr(m, domain.MatchCompleted)
	}
	if result.Summary == "" {
		result.Summary = Summarize(m, result)
	}
	m.State = domain.MatchCompleted
	m.Result = &result
	t := now.UTC()
	m.EndedAt = &t
	return nil
}

// Abandon scraps the match from any non-terminal state.
func Abandon(m *domain.Match, reason string, now time.Time) error {
	if !CanTransition(m.State, domain.MatchAbandoned) {
		return transitionErr(m, domain.MatchAbandoned)
	}
	m.State = domain.MatchAbandoned
	summary := "match abandoned"
	if reason != "" {
		summary = "match abandoned: " + reason
	}
	m.Result = &domain.Result{Abandoned: true, Summary: summary}
	t := now.UTC()
	m.EndedAt = &t
	return nil
}

// Summarize renders the one-line result string.
func Summarize(m *domain.Match, r domain.Result) string {
	switch {
	case r.Abandoned:
		return "match abandoned"
	case r.Tie:
		return "match tied"
	case r.MarginKind == domain.MarginWickets:
		return fmt.Sprintf("won by %d wicket(s)", r.Margin)
	default:
		return fmt.Sprintf("won by %d run(s)", r.Margin)
	}
}
