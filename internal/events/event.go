package events

import "time"

// Type names the frames a subscriber can receive. The strings are the
// stable wire names carried in the "type" field of every frame.
type Type string

const (
	TypeConnectionEstablished Type = "ConnectionEstablished"
	TypeBallBowled            Type = "BallBowled"
	TypeWicketFallen          Type = "WicketFallen"
	TypeOverComplete          Type = "OverComplete"
	TypeInningsComplete       Type = "InningsComplete"
	TypeMatchComplete         Type = "MatchComplete"
	TypePlayerChanged         Type = "PlayerChanged"
	TypeMilestoneAchieved     Type = "MilestoneAchieved"
	TypeScoringDisputeRaised  Type = "ScoringDisputeRaised"
	TypeDisputeResolved       Type = "DisputeResolved"
	TypeReconciliation        Type = "Reconciliation"
	TypeError                 Type = "Error"
)

// Event is the envelope that flows through the in-process bus from the
// scoring pipeline to the subscription hub. Seq is the log sequence of
// the raw event that caused it, which is the per-match delivery order.
type Event struct {
	Type      Type
	MatchID   string
	Seq       int64
	Timestamp time.Time
	Payload   any
}
