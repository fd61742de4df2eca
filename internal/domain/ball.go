package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BallRef addresses one delivery slot inside an innings. OverNumber is
// 1-based, BallInOver is the 1-based index of the legal-delivery slot the
// delivery was bowled at, and Attempt distinguishes re-bowls of the same
// slot after an illegal delivery (0 = first attempt).
type BallRef struct {
	OverNumber int `json:"over"`
	BallInOver int `json:"ball"`
	Attempt    int `json:"attempt,omitempty"`
}

// Decimal renders the scorebook notation <completedOvers>.<ballInOver>,
// so the 3rd ball of the 2nd over is "1.3" and the last ball of a
// twenty-over innings is "19.6".
func (r BallRef) Decimal() string {
	return fmt.Sprintf("%d.%d", r.OverNumber-1, r.BallInOver)
}

// ParseBallRef reads scorebook notation back into a BallRef.
func ParseBallRef(s string) (BallRef, error) {
	head, tail, ok := strings.Cut(s, ".")
	if !ok {
		return BallRef{}, E(ErrInvalidArgument, "ball ref %q: want <overs>.<ball>", s)
	}
	completed, err := strconv.Atoi(head)
	if err != nil || completed < 0 {
		return BallRef{}, E(ErrInvalidArgument, "ball ref %q: bad over part", s)
	}
	ball, err := strconv.Atoi(tail)
	if err != nil || ball < 1 {
		return BallRef{}, E(ErrInvalidArgument, "ball ref %q: bad ball part", s)
	}
	return BallRef{OverNumber: completed + 1, BallInOver: ball}, nil
}

// Before reports strict slot ordering within one innings.
func (r BallRef) Before(o BallRef) bool {
	if r.OverNumber != o.OverNumber {
		return r.OverNumber < o.OverNumber
	}
	if r.BallInOver != o.BallInOver {
		return r.BallInOver < o.BallInOver
	}
	return r.Attempt < o.Attempt
}

// ExtraKind classifies runs not credited to the striker's bat.
type ExtraKind string

const (
	ExtraNone    ExtraKind = "none"
	ExtraWide    ExtraKind = "wide"
	ExtraNoBall  ExtraKind = "no_ball"
	ExtraBye     ExtraKind = "bye"
	ExtraLegBye  ExtraKind = "leg_bye"
	ExtraPenalty ExtraKind = "penalty"
)

// ValidExtraKind reports whether k is a known extra classification.
func ValidExtraKind(k ExtraKind) bool {
	switch k {
	case ExtraNone, ExtraWide, ExtraNoBall, ExtraBye, ExtraLegBye, ExtraPenalty:
		return true
	}
	return false
}

// Legal reports whether a delivery with this extra counts toward the
// over. Wides, no-balls and penalty awards are re-bowled.
func (k ExtraKind) Legal() bool {
	switch k {
	case ExtraWide, ExtraNoBall, ExtraPenalty:
		return false
	}
	return true
}

// BoundaryKind distinguishes a struck boundary from runs physically
// run. Four all-run does not count in the fours column.
type BoundaryKind string

const (
	BoundaryFour BoundaryKind = "four"
	BoundarySix  BoundaryKind = "six"
)

// ValidBoundaryKind reports whether k is a known boundary classification.
func ValidBoundaryKind(k BoundaryKind) bool {
	return k == BoundaryFour || k == BoundarySix
}

// DismissalKind is the mode of a wicket.
type DismissalKind string

const (
	DismissalBowled      DismissalKind = "bowled"
	DismissalCaught      DismissalKind = "caught"
	DismissalLBW         DismissalKind = "lbw"
	DismissalRunOut      DismissalKind = "run_out"
	DismissalStumped     DismissalKind = "stumped"
	DismissalHitWicket   DismissalKind = "hit_wicket"
	DismissalRetired     DismissalKind = "retired"
	DismissalObstructing DismissalKind = "obstructing_field"
	DismissalTimedOut    DismissalKind = "timed_out"
	DismissalHandled     DismissalKind = "handled_ball"
	DismissalHitTwice    DismissalKind = "hit_ball_twice"
)

// ValidDismissalKind reports whether k is a known dismissal mode.
func ValidDismissalKind(k DismissalKind) bool {
	switch k {
	case DismissalBowled, DismissalCaught, DismissalLBW, DismissalRunOut,
		DismissalStumped, DismissalHitWicket, DismissalRetired,
		DismissalObstructing, DismissalTimedOut, DismissalHandled, DismissalHitTwice:
		return true
	}
	return false
}

// CreditsBowler reports whether the mode counts in the bowler's wicket
// column. Run-outs and retirements do not.
func (k DismissalKind) CreditsBowler() bool {
	switch k {
	case DismissalBowled, DismissalCaught, DismissalLBW, DismissalStumped, DismissalHitWicket:
		return true
	}
	return false
}

// OnLegalDeliveryOnly reports whether the mode can only occur off a
// legal delivery. A batsman cannot be bowled, lbw or caught off a wide
// or no-ball; run-outs and stumpings off wides remain possible.
func (k DismissalKind) OnLegalDeliveryOnly() bool {
	switch k {
	case DismissalBowled, DismissalCaught, DismissalLBW, DismissalHitWicket, DismissalHitTwice:
		return true
	}
	return false
}

// CanDismissNonStriker reports whether the mode can remove the batsman
// at the bowler's end.
func (k DismissalKind) CanDismissNonStriker() bool {
	switch k {
	case DismissalRunOut, DismissalRetired, DismissalObstructing, DismissalTimedOut:
		return true
	}
	return false
}

// Wicket is a committed dismissal.
type Wicket struct {
	ID           string        `json:"id"`
	InningsID    string        `json:"inningsId"`
	BallID       string        `json:"ballId"`
	Kind         DismissalKind `json:"kind"`
	BatsmanOutID string        `json:"batsmanOutId"`
	BowlerID     string        `json:"bowlerId,omitempty"`
	FielderIDs   []string      `json:"fielderIds,omitempty"`
	Number       int           `json:"number"`
	ScoreAtFall  int           `json:"scoreAtFall"`
	OverDecimal  string        `json:"overDecimal"`
}

// Ball is one committed delivery: the consensus-resolved record that the
// projector folds into aggregates. Team runs from the delivery are
// RunsOffBat plus ExtraRuns plus the automatic illegal-delivery penalty.
type Ball struct {
	ID           string       `json:"id"`
	InningsID    string       `json:"inningsId"`
	OverID       string       `json:"overId"`
	Ref          BallRef      `json:"ref"`
	BowlerID     string       `json:"bowlerId"`
	StrikerID    string       `json:"strikerId"`
	NonStrikerID string       `json:"nonStrikerId"`
	RunsOffBat   int          `json:"runsOffBat"`
	IsBoundary   bool         `json:"isBoundary,omitempty"`
	BoundaryKind BoundaryKind `json:"boundaryKind,omitempty"`
	ExtraKind    ExtraKind    `json:"extraKind"`
	ExtraRuns    int          `json:"extraRuns"`
	IsLegal      bool         `json:"isLegal"`
	IsWicket     bool         `json:"isWicket"`
	Wicket       *Wicket      `json:"wicket,omitempty"`
	ShotKind     string       `json:"shotKind,omitempty"`
	EventID      string       `json:"eventId"`
	BowledAt     time.Time    `json:"bowledAt"`
}

// TeamRuns is the total added to the batting side by this delivery.
func (b *Ball) TeamRuns(r Rules) int {
	runs := b.RunsOffBat + b.ExtraRuns
	switch b.ExtraKind {
	case ExtraWide:
		runs += r.WideRuns
	case ExtraNoBall:
		runs += r.NoBallRuns
	}
	return runs
}

// BatsmanRuns is the portion credited to the striker's bat.
func (b *Ball) BatsmanRuns() int {
	switch b.ExtraKind {
	case ExtraWide, ExtraBye, ExtraLegBye, ExtraPenalty:
		return 0
	}
	return b.RunsOffBat
}

// BowlerRuns is the portion charged against the bowler. Byes, leg byes
// and penalty awards are the fielding side's fault, not the bowler's.
func (b *Ball) BowlerRuns(r Rules) int {
	switch b.ExtraKind {
	case ExtraBye, ExtraLegBye, ExtraPenalty:
		return 0
	case ExtraWide:
		return r.WideRuns + b.ExtraRuns
	case ExtraNoBall:
		return r.NoBallRuns + b.RunsOffBat
	}
	return b.RunsOffBat
}

// RotatesStrike reports whether the batsmen end the delivery having
// crossed an odd number of times. A struck boundary scores without
// running; an all-run four is four completed runs.
func (b *Ball) RotatesStrike() bool {
	runs := b.RunsOffBat + b.ExtraRuns
	if b.IsBoundary {
		runs = b.ExtraRuns
	}
	return runs%2 == 1
}

// Symbol renders the scorebook notation for one delivery: "." for a dot,
// the run count for runs off the bat, "w"/"nb" prefixes for illegal
// deliveries, "b"/"lb" for byes, and "W" for a wicket.
func (b *Ball) Symbol() string {
	if b.IsWicket {
		if b.RunsOffBat > 0 {
			return fmt.Sprintf("%dW", b.RunsOffBat)
		}
		return "W"
	}
	switch b.ExtraKind {
	case ExtraWide:
		if b.ExtraRuns > 0 {
			return fmt.Sprintf("%dwd", b.ExtraRuns)
		}
		return "wd"
	case ExtraNoBall:
		if b.RunsOffBat > 0 {
			return fmt.Sprintf("%dnb", b.RunsOffBat)
		}
		return "nb"
	case ExtraBye:
		return fmt.Sprintf("%db", b.ExtraRuns)
	case ExtraLegBye:
		return fmt.Sprintf("%dlb", b.ExtraRuns)
	case ExtraPenalty:
		return fmt.Sprintf("%dp", b.ExtraRuns)
	}
	if b.RunsOffBat == 0 {
		return "."
	}
	return strconv.Itoa(b.RunsOffBat)
}
