package domain

import "time"

// MatchState is the lifecycle phase of a match. Transitions are strictly
// forward except that any non-completed match may be abandoned.
type MatchState string

const (
	MatchScheduled    MatchState = "scheduled"
	MatchTossPending  MatchState = "toss_pending"
	MatchLive         MatchState = "live"
	MatchInningsBreak MatchState = "innings_break"
	MatchCompleted    MatchState = "completed"
	MatchAbandoned    MatchState = "abandoned"
)

// Terminal reports whether no further transition out of s is possible.
func (s MatchState) Terminal() bool {
	return s == MatchCompleted || s == MatchAbandoned
}

// TossChoice is what the toss winner elected to do first.
type TossChoice string

const (
	TossBat  TossChoice = "bat"
	TossBowl TossChoice = "bowl"
)

// Toss records the coin toss outcome.
type Toss struct {
	WonByTeamID string     `json:"wonByTeamId"`
	Elected     TossChoice `json:"elected"`
	CalledAt    time.Time  `json:"calledAt"`
}

// TieBreak is how a tied match is settled.
type TieBreak string

const (
	TieStands    TieBreak = "tie"
	TieSuperOver TieBreak = "super_over"
)

// Rules is the per-match rule sheet. It is mutable while the match is
// scheduled or awaiting the toss and frozen the moment play starts.
type Rules struct {
	OversPerInnings   int      `json:"oversPerInnings"`
	BallsPerOver      int      `json:"ballsPerOver"`
	PlayersPerSide    int      `json:"playersPerSide"`
	InningsPerSide    int      `json:"inningsPerSide"`
	MaxOversPerBowler int      `json:"maxOversPerBowler"`
	PowerplayOvers    int      `json:"powerplayOvers"`
	NoBallRuns        int      `json:"noBallRuns"`
	WideRuns          int      `json:"wideRuns"`
	RequireKeeper     bool     `json:"requireKeeper"`
	TieBreak          TieBreak `json:"tieBreak"`
}

// DefaultRules is the Twenty20 preset used when a match is created
// without an explicit rule sheet.
func DefaultRules() Rules {
	return Rules{
		OversPerInnings:   20,
		BallsPerOver:      6,
		PlayersPerSide:    11,
		InningsPerSide:    1,
		MaxOversPerBowler: 4,
		PowerplayOvers:    6,
		NoBallRuns:        1,
		WideRuns:          1,
		RequireKeeper:     true,
		TieBreak:          TieStands,
	}
}

// WicketsToFall is the number of dismissals that ends an innings.
func (r Rules) WicketsToFall() int { return r.PlayersPerSide - 1 }

// BallsPerInnings is the legal-delivery budget of one innings.
func (r Rules) BallsPerInnings() int { return r.OversPerInnings * r.BallsPerOver }

// Validate rejects rule sheets that cannot describe a playable match.
func (r Rules) Validate() error {
	switch {
	case r.OversPerInnings < 1:
		return E(ErrInvalidArgument, "rules: oversPerInnings must be >= 1, got %d", r.OversPerInnings)
	case r.BallsPerOver < 1:
		return E(ErrInvalidArgument, "rules: ballsPerOver must be >= 1, got %d", r.BallsPerOver)
	case r.PlayersPerSide < 2:
		return E(ErrInvalidArgument, "rules: playersPerSide must be >= 2, got %d", r.PlayersPerSide)
	case r.InningsPerSide < 1 || r.InningsPerSide > 2:
		return E(ErrInvalidArgument, "rules: inningsPerSide must be 1 or 2, got %d", r.InningsPerSide)
	case r.MaxOversPerBowler < 0 || r.MaxOversPerBowler > r.OversPerInnings:
		return E(ErrInvalidArgument, "rules: maxOversPerBowler %d out of range", r.MaxOversPerBowler)
	case r.PowerplayOvers < 0 || r.PowerplayOvers > r.OversPerInnings:
		return E(ErrInvalidArgument, "rules: powerplayOvers %d out of range", r.PowerplayOvers)
	case r.NoBallRuns < 1:
		return E(ErrInvalidArgument, "rules: noBallRuns must be >= 1, got %d", r.NoBallRuns)
	case r.WideRuns < 1:
		return E(ErrInvalidArgument, "rules: wideRuns must be >= 1, got %d", r.WideRuns)
	}
	switch r.TieBreak {
	case TieStands, TieSuperOver:
	default:
		return E(ErrInvalidArgument, "rules: unknown tieBreak %q", r.TieBreak)
	}
	return nil
}

// MarginKind says how a winning margin is expressed.
type MarginKind string

const (
	MarginRuns    MarginKind = "runs"
	MarginWickets MarginKind = "wickets"
)

// Result is the final outcome of a completed match.
type Result struct {
	WinnerTeamID string     `json:"winnerTeamId,omitempty"`
	MarginKind   MarginKind `json:"marginKind,omitempty"`
	Margin       int        `json:"margin,omitempty"`
	Tie          bool       `json:"tie,omitempty"`
	Abandoned    bool       `json:"abandoned,omitempty"`
	Summary      string     `json:"summary"`
}

// Match is the root aggregate: two sides, a rule sheet and a lifecycle.
type Match struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Venue      string     `json:"venue,omitempty"`
	HomeTeamID string     `json:"homeTeamId"`
	AwayTeamID string     `json:"awayTeamId"`
	Rules      Rules      `json:"rules"`
	State      MatchState `json:"state"`
	Toss       *Toss      `json:"toss,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	CreatedBy  string     `json:"createdBy"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// TeamIDs returns both side ids, home first.
func (m *Match) TeamIDs() [2]string { return [2]string{m.HomeTeamID, m.AwayTeamID} }

// HasTeam reports whether teamID plays in this match.
func (m *Match) HasTeam(teamID string) bool {
	return teamID == m.HomeTeamID || teamID == m.AwayTeamID
}

// Opponent returns the other side of the match.
func (m *Match) Opponent(teamID string) string {
	if teamID == m.HomeTeamID {
		return m.AwayTeamID
	}
	return m.HomeTeamID
}
