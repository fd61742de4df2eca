package projection

import (
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/rules"
)

// ApplyResult is everything one committed ball changed, for persistence
// and fanout.
type ApplyResult struct {
	Ball          *domain.Ball
	Over          *OverCard
	OverCompleted bool
	FallOfWicket  *FallOfWicket
	Milestones    []rules.Milestone
	Termination   domain.TerminationReason
}

// ApplyBall folds one committed ball into the aggregate. The ball has
// already passed legality checks; apply trusts its actor fields, which
// is what makes replay independent of operational state. The ball's
// wicket bookkeeping fields are filled in as a side effect.
func (inn *Innings) ApplyBall(r domain.Rules, b *domain.Ball) (ApplyResult, error) {
	if inn.Closed {
		return ApplyResult{}, domain.E(domain.ErrInternal, "apply on closed innings %s", inn.InningsID)
	}
	over := inn.ensureOver(b)
	if over.Completed {
		return ApplyResult{}, domain.E(domain.ErrInternal, "apply on completed over %d", over.Number)
	}

	// Crease state comes from the ball itself so a replayed fold never
	// depends on operational commands that are not in the log.
	inn.StrikerID = b.StrikerID
	inn.NonStrikerID = b.NonStrikerID
	inn.BowlerID = b.BowlerID

	b.IsLegal = b.ExtraKind.Legal()
	teamRuns := b.TeamRuns(r)
	batRuns := b.BatsmanRuns()
	bowlerRuns := b.BowlerRuns(r)

	runsBefore := inn.Runs
	inn.Runs += teamRuns
	inn.PartnershipRuns += teamRuns
	switch b.ExtraKind {
	case domain.ExtraWide:
		inn.Extras.Wides += r.WideRuns + b.ExtraRuns
	case domain.ExtraNoBall:
		// Byes or leg byes run off a no-ball are folded into the no-ball
		// column of the breakdown.
		inn.Extras.NoBalls += r.NoBallRuns + b.ExtraRuns
	case domain.ExtraBye:
		inn.Extras.Byes += b.ExtraRuns
	case domain.ExtraLegBye:
		inn.Extras.LegByes += b.ExtraRuns
	case domain.ExtraPenalty:
		inn.Extras.Penalties += b.ExtraRuns
	}

	striker := inn.batsman(b.StrikerID)
	if b.NonStrikerID != "" {
		inn.batsman(b.NonStrikerID)
	}
	strikerBefore := striker.Runs
	striker.Runs += batRuns
	if b.IsLegal {
		striker.Balls++
		inn.LegalDeliveries++
	}
	if b.IsBoundary {
		switch b.BoundaryKind {
		case domain.BoundaryFour:
			striker.Fours++
		case domain.BoundarySix:
			striker.Sixes++
		}
	}

	bowler := inn.bowler(b.BowlerID)
	bowler.Runs += bowlerRuns
	wicketsBefore := bowler.Wickets
	switch b.ExtraKind {
	case domain.ExtraWide:
		bowler.Wides++
	case domain.ExtraNoBall:
		bowler.NoBalls++
	}

	credited := b.IsWicket && b.Wicket != nil && b.Wicket.Kind.CreditsBowler()
	if b.IsLegal {
		bowler.Deliveries++
		bowler.WicketSeq = append(bowler.WicketSeq, credited)
	}
	if credited {
		bowler.Wickets++
		b.Wicket.BowlerID = b.BowlerID
	}

	if b.IsLegal {
		over.LegalDeliveries++
	}
	over.TeamRuns += teamRuns
	over.BowlerRuns += bowlerRuns
	over.Symbols = append(over.Symbols, b.Symbol())
	if b.IsWicket {
		over.Wickets++
	}

	res := ApplyResult{Ball: b, Over: over}

	// Rotation first, then the dismissal vacates whichever end the out
	// batsman finished on.
	if b.RotatesStrike() {
		inn.StrikerID, inn.NonStrikerID = inn.NonStrikerID, inn.StrikerID
	}
	if b.IsWicket {
		inn.Wickets++
		out := inn.batsman(b.Wicket.BatsmanOutID)
		out.Out = true
		out.Dismissal = string(b.Wicket.Kind)
		inn.Dismissed[b.Wicket.BatsmanOutID] = true

		fow := FallOfWicket{
			Number:          inn.Wickets,
			Score:           inn.Runs,
			BatsmanOutID:    b.Wicket.BatsmanOutID,
			AtBall:          b.Ref.Decimal(),
			PartnershipRuns: inn.PartnershipRuns,
		}
		inn.FallOfWickets = append(inn.FallOfWickets, fow)
		inn.PartnershipRuns = 0
		res.FallOfWicket = &fow

		b.Wicket.InningsID = b.InningsID
		b.Wicket.BallID = b.ID
		b.Wicket.Number = fow.Number
		b.Wicket.ScoreAtFall = fow.Score
		b.Wicket.OverDecimal = fow.AtBall

		switch b.Wicket.BatsmanOutID {
		case inn.StrikerID:
			inn.StrikerID = ""
		case inn.NonStrikerID:
			inn.NonStrikerID = ""
		}
	}

	if rules.OverComplete(r, over.LegalDeliveries) {
		over.Completed = true
		over.Maiden = rules.Maiden(r, over.LegalDeliveries, over.BowlerRuns)
		if over.Maiden {
			bowler.Maidens++
		}
		res.OverCompleted = true
		// End-of-over swap, unless a wicket on the final ball left an
		// end vacant; the incoming batsman's placement settles strike.
		if !b.IsWicket {
			inn.StrikerID, inn.NonStrikerID = inn.NonStrikerID, inn.StrikerID
		}
	}

	inn.LastBall = b.Ref.Decimal()

	res.Milestones = rules.DetectMilestones(rules.MilestoneInput{
		BattingTeamID:     inn.BattingTeamID,
		TeamRunsBefore:    runsBefore,
		TeamRunsAfter:     inn.Runs,
		StrikerID:         b.StrikerID,
		StrikerRunsBefore: strikerBefore,
		StrikerRunsAfter:  striker.Runs,
		BowlerID:          b.BowlerID,
		BowlerWktsBefore:  wicketsBefore,
		BowlerWktsAfter:   bowler.Wickets,
		BowlerSequence:    bowler.WicketSeq,
	})

	if reason := rules.Termination(r, inn.Progress()); reason != domain.TerminationNone {
		inn.Closed = true
		inn.Termination = reason
		res.Termination = reason
	}
	return res, nil
}

// Close marks the innings finished for reasons the fold cannot see,
// such as a declaration or an abandoned match.
func (inn *Innings) Close(reason domain.TerminationReason, declared bool) {
	inn.Closed = true
	inn.Termination = reason
	inn.Declared = declared
}

// Rebuild refolds an innings from scratch. Corrections rewrite one
// committed ball and then replay the whole sequence, which is cheaper
// to reason about than surgical deltas and provably consistent with
// cold-start recovery.
func Rebuild(r domain.Rules, meta *domain.Innings, balls []*domain.Ball) (*Innings, error) {
	inn := NewInnings(meta)
	for _, b := range balls {
		if _, err := inn.ApplyBall(r, b); err != nil {
			return nil, err
		}
	}
	if meta.Termination != domain.TerminationNone && !inn.Closed {
		inn.Close(meta.Termination, meta.Declared)
	}
	return inn, nil
}
