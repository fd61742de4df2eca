package domain

import "time"

// TerminationReason says why an innings closed.
type TerminationReason string

const (
	TerminationNone           TerminationReason = ""
	TerminationAllOut         TerminationReason = "all_out"
	TerminationOversExhausted TerminationReason = "overs_exhausted"
	TerminationTargetChased   TerminationReason = "target_chased"
	TerminationDeclared       TerminationReason = "declared"
	TerminationAbandoned      TerminationReason = "abandoned"
)

// Innings is one team's turn to bat. Target, when set, is the total the
// batting side must strictly exceed to win; the innings terminates on
// the ball that takes the total past it.
type Innings struct {
	ID            string            `json:"id"`
	MatchID       string            `json:"matchId"`
	Number        int               `json:"number"`
	BattingTeamID string            `json:"battingTeamId"`
	BowlingTeamID string            `json:"bowlingTeamId"`
	Target        *int              `json:"target,omitempty"`
	Declared      bool              `json:"declared,omitempty"`
	Termination   TerminationReason `json:"termination,omitempty"`
	OpenedAt      time.Time         `json:"openedAt"`
	ClosedAt      *time.Time        `json:"closedAt,omitempty"`
}

// Open reports whether the innings is still accepting deliveries.
func (i *Innings) Open() bool { return i.ClosedAt == nil }

// Over is one bowler's spell of rules.BallsPerOver legal deliveries.
type Over struct {
	ID        string     `json:"id"`
	InningsID string     `json:"inningsId"`
	Number    int        `json:"number"`
	BowlerID  string     `json:"bowlerId"`
	OpenedAt  time.Time  `json:"openedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Open reports whether the over is still in progress.
func (o *Over) Open() bool { return o.ClosedAt == nil }
