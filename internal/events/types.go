package events

import (
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/projection"
	"github.com/thirdumpire/crease/internal/rules"
)

// ScoreLine is the compact running total attached to every scoring
// frame so a subscriber can render the headline without a full snapshot.
type ScoreLine struct {
	InningsID string `json:"inningsId"`
	Runs      int    `json:"runs"`
	Wickets   int    `json:"wickets"`
	Overs     string `json:"overs"`
	Target    *int   `json:"target,omitempty"`
}

// SnapshotPayload is sent once, as ConnectionEstablished, when a
// subscriber attaches to a match room.
type SnapshotPayload struct {
	Match   *domain.Match       `json:"match"`
	Innings *projection.Innings `json:"innings,omitempty"`
	LastSeq int64               `json:"lastSeq"`
}

// BallBowledPayload is published for every committed delivery, and as a
// provisional delta for a call held behind an open dispute. Unconfirmed
// deltas carry no ball id or consensus provenance; the canonical frame
// follows when the held buffer drains.
type BallBowledPayload struct {
	Ball        *domain.Ball           `json:"ball"`
	Score       ScoreLine              `json:"score"`
	Method      domain.ConsensusMethod `json:"method,omitempty"`
	Confidence  float64                `json:"confidence,omitempty"`
	Unconfirmed bool                   `json:"unconfirmed,omitempty"`
}

// WicketFallenPayload follows a BallBowled frame whose ball carried a
// dismissal.
type WicketFallenPayload struct {
	Wicket *domain.Wicket `json:"wicket"`
	Score  ScoreLine      `json:"score"`
}

// OverCompletePayload is published when the final legal delivery of an
// over commits.
type OverCompletePayload struct {
	InningsID string               `json:"inningsId"`
	Over      *projection.OverCard `json:"over"`
	Score     ScoreLine            `json:"score"`
}

// InningsCompletePayload is published when an innings terminates.
type InningsCompletePayload struct {
	InningsID string                   `json:"inningsId"`
	Reason    domain.TerminationReason `json:"reason"`
	Score     ScoreLine                `json:"score"`
}

// MatchCompletePayload carries the final result.
type MatchCompletePayload struct {
	Result *domain.Result `json:"result"`
}

// PlayerChangedPayload announces a change at the crease or a new
// bowler, outside the normal per-ball flow.
type PlayerChangedPayload struct {
	InningsID    string `json:"inningsId"`
	StrikerID    string `json:"strikerId,omitempty"`
	NonStrikerID string `json:"nonStrikerId,omitempty"`
	BowlerID     string `json:"bowlerId,omitempty"`
}

// MilestonePayload announces a personal or team milestone.
type MilestonePayload struct {
	InningsID string          `json:"inningsId"`
	Milestone rules.Milestone `json:"milestone"`
}

// DisputeRaisedPayload tells subscribers a delivery is pending a
// resolution; the slot and everything after it stays provisional.
type DisputeRaisedPayload struct {
	Dispute     *domain.Dispute `json:"dispute"`
	Unconfirmed bool            `json:"unconfirmed"`
}

// DisputeResolvedPayload precedes the Reconciliation frame that lists
// the canonical deliveries unblocked by the resolution.
type DisputeResolvedPayload struct {
	Dispute *domain.Dispute `json:"dispute"`
}

// ReconciliationPayload lists canonical deliveries committed out of the
// held buffer, in slot order, and is also sent on resume-from-sequence.
type ReconciliationPayload struct {
	Balls []*domain.Ball `json:"balls"`
	Score ScoreLine      `json:"score"`
}

// ErrorPayload is delivered to one subscriber before a policy close.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
