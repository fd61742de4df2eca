package domain

import (
	"encoding/json"
	"time"
)

// EventKind is the type tag of a raw scoring event.
type EventKind string

const (
	EventBallRecorded    EventKind = "ball_recorded"
	EventWicketRecorded  EventKind = "wicket_recorded"
	EventOverOpened      EventKind = "over_opened"
	EventInningsOpened   EventKind = "innings_opened"
	EventInningsClosed   EventKind = "innings_closed"
	EventCorrection      EventKind = "correction"
	EventDisputeRaised   EventKind = "dispute_raised"
	EventDisputeResolved EventKind = "dispute_resolved"
)

// ScorerSide identifies which bench a raw event came from.
type ScorerSide string

const (
	SideHome   ScorerSide = "home"
	SideAway   ScorerSide = "away"
	SideUmpire ScorerSide = "umpire"
	// SideSystem marks events the engine itself appends, such as
	// dispute bookkeeping.
	SideSystem ScorerSide = "system"
)

// ValidScorerSide reports whether s is a side a credential may carry.
func ValidScorerSide(s ScorerSide) bool {
	switch s {
	case SideHome, SideAway, SideUmpire:
		return true
	}
	return false
}

// ScoringEvent is the atomic unit of the append-only log. Events are
// immutable once appended; corrections are new events referencing the
// event they supersede. Payload holds the canonical encoding of the
// kind-specific payload, which is exactly what the event hash covers.
type ScoringEvent struct {
	ID        string          `json:"id"`
	MatchID   string          `json:"matchId"`
	InningsID string          `json:"inningsId,omitempty"`
	Seq       int64           `json:"seq"`
	PriorHash string          `json:"priorHash"`
	EventHash string          `json:"eventHash"`
	ScorerID  string          `json:"scorerId"`
	Side      ScorerSide      `json:"side"`
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// WicketCall is the dismissal portion of a submitted ball, before the
// projector assigns ids and fall-of-wicket bookkeeping.
type WicketCall struct {
	Kind         DismissalKind `json:"kind"`
	BatsmanOutID string        `json:"batsmanOutId"`
	FielderIDs   []string      `json:"fielderIds,omitempty"`
}

// BallPayload is the payload of ball_recorded events and of the
// replacement halves of corrections and dispute resolutions. Ext is an
// open extension bag carried through hashing and storage untouched.
type BallPayload struct {
	InningsID    string         `json:"inningsId"`
	OverID       string         `json:"overId"`
	OverNumber   int            `json:"overNumber"`
	BallInOver   int            `json:"ballInOver"`
	BowlerID     string         `json:"bowlerId"`
	StrikerID    string         `json:"strikerId"`
	NonStrikerID string         `json:"nonStrikerId"`
	RunsOffBat   int            `json:"runsOffBat"`
	IsBoundary   bool           `json:"isBoundary,omitempty"`
	BoundaryKind BoundaryKind   `json:"boundaryKind,omitempty"`
	ExtraKind    ExtraKind      `json:"extraKind"`
	ExtraRuns    int            `json:"extraRuns"`
	IsWicket     bool           `json:"isWicket"`
	Wicket       *WicketCall    `json:"wicket,omitempty"`
	ShotKind     string         `json:"shotKind,omitempty"`
	Ext          map[string]any `json:"ext,omitempty"`
}

// Ref is the delivery slot the payload targets.
func (p *BallPayload) Ref() BallRef {
	return BallRef{OverNumber: p.OverNumber, BallInOver: p.BallInOver}
}

// Legal reports whether the delivery counts toward the over.
func (p *BallPayload) Legal() bool { return p.ExtraKind.Legal() }

// AgreesWith compares the score-relevant fields of two calls for the
// same delivery slot. On disagreement it returns the dispute kind of
// the first differing field.
func (p *BallPayload) AgreesWith(o *BallPayload) (bool, DisputeKind) {
	if p.RunsOffBat != o.RunsOffBat {
		return false, DisputeRunsDiffer
	}
	// A struck four and four all run score the same but are different
	// deliveries; the benches must agree on which it was.
	if p.IsBoundary != o.IsBoundary || p.BoundaryKind != o.BoundaryKind {
		return false, DisputeRunsDiffer
	}
	if p.ExtraKind != o.ExtraKind || p.ExtraRuns != o.ExtraRuns {
		return false, DisputeExtraKindDiffer
	}
	if p.IsWicket != o.IsWicket {
		return false, DisputeWicketDiffer
	}
	if p.IsWicket {
		pw, ow := p.Wicket, o.Wicket
		if pw == nil || ow == nil {
			return false, DisputeWicketDiffer
		}
		if pw.Kind != ow.Kind || pw.BatsmanOutID != ow.BatsmanOutID {
			return false, DisputeWicketDiffer
		}
	}
	return true, ""
}

// Validate applies shape checks that need no match state.
func (p *BallPayload) Validate() error {
	switch {
	case p.InningsID == "":
		return E(ErrInvalidArgument, "ball: inningsId required")
	case p.OverNumber < 1:
		return E(ErrInvalidArgument, "ball: overNumber must be >= 1, got %d", p.OverNumber)
	case p.BallInOver < 1:
		return E(ErrInvalidArgument, "ball: ballInOver must be >= 1, got %d", p.BallInOver)
	case p.BowlerID == "" || p.StrikerID == "":
		return E(ErrInvalidArgument, "ball: bowlerId and strikerId required")
	case p.RunsOffBat < 0 || p.RunsOffBat > 6:
		return E(ErrInvalidArgument, "ball: runsOffBat %d out of range", p.RunsOffBat)
	case p.ExtraRuns < 0:
		return E(ErrInvalidArgument, "ball: extraRuns must be >= 0")
	}
	if !ValidExtraKind(p.ExtraKind) {
		return E(ErrInvalidArgument, "ball: unknown extraKind %q", p.ExtraKind)
	}
	if p.ExtraKind == ExtraNone && p.ExtraRuns != 0 {
		return E(ErrInvalidArgument, "ball: extraRuns set without extraKind")
	}
	if (p.ExtraKind == ExtraBye || p.ExtraKind == ExtraLegBye || p.ExtraKind == ExtraPenalty) && p.ExtraRuns < 1 {
		return E(ErrInvalidArgument, "ball: %s requires extraRuns >= 1", p.ExtraKind)
	}
	if p.IsBoundary {
		if !ValidBoundaryKind(p.BoundaryKind) {
			return E(ErrInvalidArgument, "ball: unknown boundaryKind %q", p.BoundaryKind)
		}
		if p.BoundaryKind == BoundaryFour && p.RunsOffBat != 4 {
			return E(ErrInvalidArgument, "ball: a four scores 4 off the bat, got %d", p.RunsOffBat)
		}
		if p.BoundaryKind == BoundarySix && p.RunsOffBat != 6 {
			return E(ErrInvalidArgument, "ball: a six scores 6 off the bat, got %d", p.RunsOffBat)
		}
	} else if p.BoundaryKind != "" {
		return E(ErrInvalidArgument, "ball: boundaryKind without isBoundary")
	}
	// On a wide, bye, leg bye or penalty award the ball never touched
	// the bat, so runs off the bat contradict the extra.
	if p.RunsOffBat > 0 {
		switch p.ExtraKind {
		case ExtraWide, ExtraBye, ExtraLegBye, ExtraPenalty:
			return E(ErrInvalidArgument, "ball: runsOffBat on a %s", p.ExtraKind)
		}
	}
	if p.IsWicket {
		if p.Wicket == nil {
			return E(ErrInvalidArgument, "ball: isWicket without wicket detail")
		}
		if !ValidDismissalKind(p.Wicket.Kind) {
			return E(ErrInvalidArgument, "ball: unknown dismissal %q", p.Wicket.Kind)
		}
		if p.Wicket.BatsmanOutID == "" {
			return E(ErrInvalidArgument, "ball: wicket requires batsmanOutId")
		}
		if p.Wicket.Kind.OnLegalDeliveryOnly() && !p.Legal() {
			return E(ErrInvalidArgument, "ball: %s cannot fall on a %s", p.Wicket.Kind, p.ExtraKind)
		}
		// A stumping needs the striker out of the crease to a ball the
		// keeper takes; a no-ball keeps the batsman not out. Off a wide
		// it remains possible.
		if p.Wicket.Kind == DismissalStumped && p.ExtraKind == ExtraNoBall {
			return E(ErrInvalidArgument, "ball: stumped cannot fall on a no_ball")
		}
	} else if p.Wicket != nil {
		return E(ErrInvalidArgument, "ball: wicket detail without isWicket")
	}
	return nil
}

// OverOpenedPayload announces the bowler for a new over.
type OverOpenedPayload struct {
	InningsID  string `json:"inningsId"`
	OverID     string `json:"overId"`
	OverNumber int    `json:"overNumber"`
	BowlerID   string `json:"bowlerId"`
}

// InningsOpenedPayload opens innings Number for the named batting side.
type InningsOpenedPayload struct {
	InningsID     string `json:"inningsId"`
	Number        int    `json:"number"`
	BattingTeamID string `json:"battingTeamId"`
	BowlingTeamID string `json:"bowlingTeamId"`
	Target        *int   `json:"target,omitempty"`
}

// InningsClosedPayload closes an innings, recording why.
type InningsClosedPayload struct {
	InningsID string            `json:"inningsId"`
	Reason    TerminationReason `json:"reason"`
	Declared  bool              `json:"declared,omitempty"`
}

// CorrectionPayload supersedes a previously committed ball. The
// replacement must keep the original delivery's legality class so
// already-committed subsequent slots keep their coordinates.
type CorrectionPayload struct {
	BallID      string      `json:"ballId"`
	Replacement BallPayload `json:"replacement"`
	Reason      string      `json:"reason,omitempty"`
}

// DisputeRaisedPayload records that consensus failed for a slot.
type DisputeRaisedPayload struct {
	DisputeID   string      `json:"disputeId"`
	InningsID   string      `json:"inningsId"`
	Ref         BallRef     `json:"ref"`
	Kind        DisputeKind `json:"kind"`
	EventIDs    []string    `json:"eventIds"`
	Description string      `json:"description,omitempty"`
}

// DisputeResolvedPayload records the resolver's final call for a
// disputed or expired slot.
type DisputeResolvedPayload struct {
	DisputeID string      `json:"disputeId"`
	Final     BallPayload `json:"final"`
	Method    string      `json:"method"`
}

// DecodePayload unmarshals raw payload bytes into dst, classifying
// malformed bytes as internal corruption rather than caller error.
func DecodePayload(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return Wrap(ErrInternal, err, "decode event payload")
	}
	return nil
}
