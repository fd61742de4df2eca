package domain

import "time"

// DisputeKind says which field the two benches disagreed on, or that
// one bench never reported the delivery before the window expired.
type DisputeKind string

const (
	DisputeRunsDiffer      DisputeKind = "runs_differ"
	DisputeWicketDiffer    DisputeKind = "wicket_differ"
	DisputeExtraKindDiffer DisputeKind = "extra_kind_differ"
	DisputeMissing         DisputeKind = "missing"
)

// DisputeStatus tracks a dispute through resolution.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute is an unresolved disagreement over one delivery slot. While a
// dispute is open the slot and everything after it stays out of the
// canonical record.
type Dispute struct {
	ID         string        `json:"id"`
	MatchID    string        `json:"matchId"`
	InningsID  string        `json:"inningsId"`
	Ref        BallRef       `json:"ref"`
	Kind       DisputeKind   `json:"kind"`
	Status     DisputeStatus `json:"status"`
	EventIDs   []string      `json:"eventIds"`
	RaisedAt   time.Time     `json:"raisedAt"`
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedBy string        `json:"resolvedBy,omitempty"`
	Method     string        `json:"method,omitempty"`
}

// ConsensusMethod says how a slot reached its canonical value.
type ConsensusMethod string

const (
	ConsensusScorerMatch    ConsensusMethod = "scorer_match"
	ConsensusUmpireOverride ConsensusMethod = "umpire_override"
	ConsensusSingleScorer   ConsensusMethod = "single_scorer_accepted"
	ConsensusResolution     ConsensusMethod = "dispute_resolution"
)

// Confidence is the trust weight attached to a committed ball.
func (m ConsensusMethod) Confidence() float64 {
	if m == ConsensusSingleScorer {
		return 0.5
	}
	return 1.0
}

// Consensus records how one committed ball earned its place in the
// canonical record.
type Consensus struct {
	BallID     string          `json:"ballId"`
	Method     ConsensusMethod `json:"method"`
	Confidence float64         `json:"confidence"`
	EventIDs   []string        `json:"eventIds"`
	DecidedAt  time.Time       `json:"decidedAt"`
}
