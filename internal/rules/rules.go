// Package rules is the pure cricket rule engine: stateless functions
// from (rule sheet, current state, candidate delivery) to decisions.
// Nothing here touches storage or clocks, which keeps every decision
// replayable.
package rules

import (
	"github.com/thirdumpire/crease/internal/domain"
)

// DeliveryContext is the slice of live state a legality check needs.
// The caller extracts it from the projection under the match lock.
type DeliveryContext struct {
	MatchState   domain.MatchState
	InningsID    string
	InningsOpen  bool
	ExpectedRef  domain.BallRef
	OverID       string
	OverBowlerID string
	StrikerID    string
	NonStrikerID string
	BattingXI    *domain.PlayingXI
	BowlingXI    *domain.PlayingXI
	Dismissed    map[string]bool
	// Provisional is set when earlier delivery slots are still awaiting
	// consensus: the crease and over state those slots will produce is
	// unknown, so checks against them are skipped and re-run at commit.
	Provisional bool
	// JoinsPending is set when the coordinate targets a slot another
	// scorer has already opened. ExpectedRef has provisionally advanced
	// past that slot, so the sequence check would wrongly reject the
	// sibling call; the slot itself proves the coordinate is in play.
	JoinsPending bool
}

// CheckDelivery decides whether a submitted ball is acceptable against
// the current match state. Shape validation has already happened; this
// is about state: sequencing, actors and dismissal legality.
func CheckDelivery(r domain.Rules, ctx DeliveryContext, p *domain.BallPayload) error {
	if ctx.MatchState != domain.MatchLive {
		return domain.E(domain.ErrFailedPrecondition, "match is %s, not live", ctx.MatchState)
	}
	if !ctx.InningsOpen {
		return domain.E(domain.ErrFailedPrecondition, "innings %s is closed", p.InningsID)
	}
	if p.InningsID != ctx.InningsID {
		return domain.E(domain.ErrFailedPrecondition, "innings %s is not the innings in progress", p.InningsID)
	}
	if ref := p.Ref(); !ctx.JoinsPending && ref != ctx.ExpectedRef {
		return domain.E(domain.ErrFailedPrecondition,
			"out of sequence: got %s, next deliverable slot is %s", ref.Decimal(), ctx.ExpectedRef.Decimal()).
			WithDetail("expected", ctx.ExpectedRef.Decimal()).
			WithDetail("got", ref.Decimal())
	}
	if !ctx.Provisional {
		if ctx.OverID == "" {
			return domain.E(domain.ErrFailedPrecondition, "over %d has not been opened", p.OverNumber)
		}
		if p.OverID != ctx.OverID {
			return domain.E(domain.ErrFailedPrecondition, "overId does not match the open over")
		}
		if p.BowlerID != ctx.OverBowlerID {
			return domain.E(domain.ErrFailedPrecondition,
				"bowler %s did not open this over (%s did)", p.BowlerID, ctx.OverBowlerID)
		}
		if ctx.StrikerID == "" || ctx.NonStrikerID == "" {
			return domain.E(domain.ErrFailedPrecondition, "batsmen not set: a new batsman must come in first")
		}
		if p.StrikerID != ctx.StrikerID {
			return domain.E(domain.ErrFailedPrecondition,
				"striker mismatch: %s is on strike", ctx.StrikerID)
		}
		if p.NonStrikerID != ctx.NonStrikerID {
			return domain.E(domain.ErrFailedPrecondition,
				"non-striker mismatch: %s is at the bowler's end", ctx.NonStrikerID)
		}
	}
	if !ctx.BattingXI.Has(p.StrikerID) || !ctx.BattingXI.Has(p.NonStrikerID) {
		return domain.E(domain.ErrFailedPrecondition, "batsman not in the playing eleven")
	}
	if !ctx.BowlingXI.Has(p.BowlerID) {
		return domain.E(domain.ErrFailedPrecondition, "bowler %s not in the playing eleven", p.BowlerID)
	}
	if p.IsWicket {
		out := p.Wicket.BatsmanOutID
		if !ctx.Provisional {
			if out != ctx.StrikerID && out != ctx.NonStrikerID {
				return domain.E(domain.ErrFailedPrecondition, "batsman out %s is not at the crease", out)
			}
			if ctx.Dismissed[out] {
				return domain.E(domain.ErrFailedPrecondition, "batsman %s is already out", out)
			}
		}
		if k := p.Wicket.Kind; !k.CanDismissNonStriker() && out != p.StrikerID {
			return domain.E(domain.ErrInvalidArgument, "%s can only dismiss the striker", k)
		}
	}
	return nil
}

// OverOpenContext is the state an over-open check reads.
type OverOpenContext struct {
	MatchState       domain.MatchState
	InningsOpen      bool
	CurrentOverOpen  bool
	LastOverNumber   int
	PrevOverBowlerID string
	BowlerOvers      map[string]int
	BowlingXI        *domain.PlayingXI
}

// CheckOverOpen decides whether a new over may start with the named
// bowler. MaxOversPerBowler of zero means no quota.
func CheckOverOpen(r domain.Rules, ctx OverOpenContext, number int, bowlerID string) error {
	if ctx.MatchState != domain.MatchLive {
		return domain.E(domain.ErrFailedPrecondition, "match is %s, not live", ctx.MatchState)
	}
	if !ctx.InningsOpen {
		return domain.E(domain.ErrFailedPrecondition, "innings is closed")
	}
	if ctx.CurrentOverOpen {
		return domain.E(domain.ErrFailedPrecondition, "over %d still in progress", ctx.LastOverNumber)
	}
	if number != ctx.LastOverNumber+1 {
		return domain.E(domain.ErrFailedPrecondition,
			"over number %d out of sequence, next is %d", number, ctx.LastOverNumber+1)
	}
	if number > r.OversPerInnings {
		return domain.E(domain.ErrFailedPrecondition,
			"innings is limited to %d overs", r.OversPerInnings)
	}
	if !ctx.BowlingXI.Has(bowlerID) {
		return domain.E(domain.ErrFailedPrecondition, "bowler %s not in the playing eleven", bowlerID)
	}
	if bowlerID == ctx.PrevOverBowlerID && ctx.PrevOverBowlerID != "" {
		return domain.E(domain.ErrFailedPrecondition, "bowler cannot bowl consecutive overs")
	}
	if r.MaxOversPerBowler > 0 && ctx.BowlerOvers[bowlerID] >= r.MaxOversPerBowler {
		return domain.E(domain.ErrFailedPrecondition,
			"bowler %s has bowled the maximum %d overs", bowlerID, r.MaxOversPerBowler)
	}
	return nil
}

// BatsmenContext is the state a batsmen-change check reads.
type BatsmenContext struct {
	MatchState  domain.MatchState
	InningsOpen bool
	BattingXI   *domain.PlayingXI
	Dismissed   map[string]bool
}

// CheckBatsmen decides whether the named pair may take the crease.
func CheckBatsmen(ctx BatsmenContext, strikerID, nonStrikerID string) error {
	if ctx.MatchState != domain.MatchLive {
		return domain.E(domain.ErrFailedPrecondition, "match is %s, not live", ctx.MatchState)
	}
	if !ctx.InningsOpen {
		return domain.E(domain.ErrFailedPrecondition, "innings is closed")
	}
	if strikerID == "" {
		return domain.E(domain.ErrInvalidArgument, "strikerId required")
	}
	if strikerID == nonStrikerID {
		return domain.E(domain.ErrInvalidArgument, "striker and non-striker must differ")
	}
	for _, id := range []string{strikerID, nonStrikerID} {
		if id == "" {
			continue
		}
		if !ctx.BattingXI.Has(id) {
			return domain.E(domain.ErrFailedPrecondition, "batsman %s not in the playing eleven", id)
		}
		if ctx.Dismissed[id] {
			return domain.E(domain.ErrFailedPrecondition, "batsman %s is already out", id)
		}
	}
	return nil
}

// OverComplete reports whether an over with the given count of legal
// deliveries is finished.
func OverComplete(r domain.Rules, legalDeliveries int) bool {
	return legalDeliveries >= r.BallsPerOver
}

// Maiden reports whether a completed over was a maiden: a full over of
// legal deliveries with not a single run charged to the bowler.
func Maiden(r domain.Rules, legalDeliveries, bowlerRuns int) bool {
	return legalDeliveries >= r.BallsPerOver && bowlerRuns == 0
}

// InningsProgress is the running total a termination check reads.
type InningsProgress struct {
	Runs            int
	Wickets         int
	LegalDeliveries int
	Target          *int
}

// Termination reports why an innings just ended, or TerminationNone if
// it is still alive. The target check comes first: a chase ends the
// moment the total strictly exceeds the target, even mid-over.
func Termination(r domain.Rules, p InningsProgress) domain.TerminationReason {
	if p.Target != nil && p.Runs > *p.Target {
		return domain.TerminationTargetChased
	}
	if p.Wickets >= r.WicketsToFall() {
		return domain.TerminationAllOut
	}
	if p.LegalDeliveries >= r.BallsPerInnings() {
		return domain.TerminationOversExhausted
	}
	return domain.TerminationNone
}

// Outcome computes the final result once the last innings has closed.
// first and second are the completed innings totals in batting order.
func Outcome(firstRuns, secondRuns, secondWickets int, r domain.Rules,
	firstTeamID, secondTeamID string) domain.Result {
	switch {
	case secondRuns > firstRuns:
		return domain.Result{
			WinnerTeamID: secondTeamID,
			MarginKind:   domain.MarginWickets,
			Margin:       r.WicketsToFall() - secondWickets,
		}
	case firstRuns > secondRuns:
		return domain.Result{
			WinnerTeamID: firstTeamID,
			MarginKind:   domain.MarginRuns,
			Margin:       firstRuns - secondRuns,
		}
	default:
		return domain.Result{Tie: true}
	}
}
