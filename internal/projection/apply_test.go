package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/rules"
)

type foldHarness struct {
	t     *testing.T
	r     domain.Rules
	meta  *domain.Innings
	inn   *Innings
	balls []*domain.Ball
	seq   int
}

func newFold(t *testing.T) *foldHarness {
	meta := &domain.Innings{
		ID:            "inn1",
		MatchID:       "m1",
		Number:        1,
		BattingTeamID: "team-a",
		BowlingTeamID: "team-b",
	}
	h := &foldHarness{t: t, r: domain.DefaultRules(), meta: meta, inn: NewInnings(meta)}
	h.inn.SetBatsmen("bat-1", "bat-2")
	return h
}

func (h *foldHarness) openOver(bowlerID string) {
	next := h.inn.ExpectedRef().OverNumber
	h.inn.OpenOver(&domain.Over{
		ID:        domain.NewID(),
		InningsID: h.meta.ID,
		Number:    next,
		BowlerID:  bowlerID,
	})
}

// bowl submits the next slot the way the service would: coordinates and
// crease state read from the live aggregate.
func (h *foldHarness) bowl(mut func(*domain.Ball)) ApplyResult {
	h.t.Helper()
	h.seq++
	over := h.inn.CurrentOver()
	require.NotNil(h.t, over, "over must be opened before bowling")
	b := &domain.Ball{
		ID:           domain.NewID(),
		InningsID:    h.meta.ID,
		OverID:       over.OverID,
		Ref:          h.inn.ExpectedRef(),
		BowlerID:     over.BowlerID,
		StrikerID:    h.inn.StrikerID,
		NonStrikerID: h.inn.NonStrikerID,
		ExtraKind:    domain.ExtraNone,
		BowledAt:     time.Unix(1700000000+int64(h.seq), 0).UTC(),
	}
	if mut != nil {
		mut(b)
	}
	res, err := h.inn.ApplyBall(h.r, b)
	require.NoError(h.t, err)
	h.balls = append(h.balls, b)
	return res
}

func runs(n int) func(*domain.Ball) {
	return func(b *domain.Ball) { b.RunsOffBat = n }
}

// boundary marks a ball struck to (or over) the rope, as opposed to the
// same runs taken all run.
func boundary(n int) func(*domain.Ball) {
	return func(b *domain.Ball) {
		b.RunsOffBat = n
		b.IsBoundary = true
		b.BoundaryKind = domain.BoundaryFour
		if n == 6 {
			b.BoundaryKind = domain.BoundarySix
		}
	}
}

func wicket(kind domain.DismissalKind, out string) func(*domain.Ball) {
	return func(b *domain.Ball) {
		b.IsWicket = true
		b.Wicket = &domain.Wicket{Kind: kind, BatsmanOutID: out}
	}
}

func TestCleanOverScoresEightAndRotates(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")

	var last ApplyResult
	for _, mut := range []func(*domain.Ball){nil, runs(1), boundary(4), nil, runs(2), runs(1)} {
		last = h.bowl(mut)
	}

	assert.Equal(t, 8, h.inn.Runs)
	assert.Equal(t, 0, h.inn.Wickets)
	assert.Equal(t, 6, h.inn.LegalDeliveries)
	assert.True(t, last.OverCompleted)
	assert.Equal(t, []string{".", "1", "4", ".", "2", "1"}, last.Over.Symbols)

	// bat-1's single moved bat-2 onto strike for the rest of the over.
	bat1 := h.inn.Batsmen[0]
	bat2 := h.inn.Batsmen[1]
	require.Equal(t, "bat-1", bat1.PlayerID)
	assert.Equal(t, 1, bat1.Runs)
	assert.Equal(t, 2, bat1.Balls)
	assert.Equal(t, 7, bat2.Runs)
	assert.Equal(t, 4, bat2.Balls)
	assert.Equal(t, 1, bat2.Fours)

	// The single off the last ball crossed the batsmen, and the
	// end-of-over swap hands bat-2 the strike again.
	assert.Equal(t, "bat-2", h.inn.StrikerID)
	assert.Equal(t, "bat-1", h.inn.NonStrikerID)

	bowler := h.inn.Bowlers[0]
	assert.Equal(t, 8, bowler.Runs)
	assert.Equal(t, 6, bowler.Deliveries)
	assert.False(t, last.Over.Maiden)
}

func TestMaidenOver(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")

	var last ApplyResult
	for i := 0; i < 6; i++ {
		last = h.bowl(nil)
	}

	require.True(t, last.OverCompleted)
	assert.True(t, last.Over.Maiden)
	assert.Equal(t, 1, h.inn.Bowlers[0].Maidens)
	assert.Equal(t, 0, h.inn.Runs)
}

func TestByesDoNotSpoilBowlerFiguresButWidesDo(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")

	h.bowl(func(b *domain.Ball) {
		b.ExtraKind = domain.ExtraBye
		b.ExtraRuns = 2
	})
	assert.Equal(t, 2, h.inn.Runs)
	assert.Equal(t, 2, h.inn.Extras.Byes)
	assert.Equal(t, 0, h.inn.Bowlers[0].Runs, "byes are not charged to the bowler")

	h.bowl(func(b *domain.Ball) { b.ExtraKind = domain.ExtraWide })
	assert.Equal(t, 3, h.inn.Runs)
	assert.Equal(t, 1, h.inn.Extras.Wides)
	assert.Equal(t, 1, h.inn.Bowlers[0].Runs, "wides are charged to the bowler")
	assert.Equal(t, 1, h.inn.Bowlers[0].Wides)
}

func TestWideThenWicketSameSlot(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")
	h.bowl(nil)
	h.bowl(nil)

	// Wide at 1.3: one run, slot does not advance.
	res := h.bowl(func(b *domain.Ball) { b.ExtraKind = domain.ExtraWide })
	assert.Equal(t, 1, h.inn.Runs)
	assert.Equal(t, 2, res.Over.LegalDeliveries)
	assert.Equal(t, domain.BallRef{OverNumber: 1, BallInOver: 3}, h.inn.ExpectedRef(),
		"wide does not consume the slot")

	// The re-bowled 1.3 is a catch.
	res = h.bowl(wicket(domain.DismissalCaught, "bat-1"))
	require.NotNil(t, res.FallOfWicket)
	assert.Equal(t, 1, res.FallOfWicket.Number)
	assert.Equal(t, 1, res.FallOfWicket.Score)
	assert.Equal(t, "0.3", res.FallOfWicket.AtBall)
	assert.Equal(t, domain.BallRef{OverNumber: 1, BallInOver: 4}, h.inn.ExpectedRef(),
		"legal wicket ball consumes the slot")

	assert.Equal(t, "", h.inn.StrikerID, "striker end vacant until the new batsman is set")
	assert.Equal(t, "bat-2", h.inn.NonStrikerID)
	assert.Equal(t, 1, h.inn.Bowlers[0].Wickets, "catch credits the bowler")
}

func TestRunOutGoingForSecondVacatesTheRightEnd(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")

	// One run completed, striker out going back for two: the single
	// already swapped ends, so the out batsman is at the non-striker end.
	h.bowl(func(b *domain.Ball) {
		b.RunsOffBat = 1
		b.IsWicket = true
		b.Wicket = &domain.Wicket{Kind: domain.DismissalRunOut, BatsmanOutID: "bat-1"}
	})

	assert.Equal(t, 1, h.inn.Runs)
	assert.Equal(t, "bat-2", h.inn.StrikerID, "the crossed batsman keeps strike")
	assert.Equal(t, "", h.inn.NonStrikerID)
	assert.Equal(t, 0, h.inn.Bowlers[0].Wickets, "run out does not credit the bowler")
	assert.True(t, h.inn.Dismissed["bat-1"])
}

func TestLastBallWicketSkipsEndOfOverSwap(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")
	for i := 0; i < 5; i++ {
		h.bowl(nil)
	}
	res := h.bowl(wicket(domain.DismissalBowled, "bat-1"))

	require.True(t, res.OverCompleted)
	assert.Equal(t, "", h.inn.StrikerID)
	assert.Equal(t, "bat-2", h.inn.NonStrikerID,
		"survivor stays put; the incoming batsman's placement settles strike")
}

func TestNewBatsmanAfterMidOverWicket(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")
	h.bowl(wicket(domain.DismissalBowled, "bat-1"))

	assert.Equal(t, domain.BallRef{OverNumber: 1, BallInOver: 2}, h.inn.ExpectedRef())
	h.inn.SetBatsmen("bat-3", "")
	assert.Equal(t, "bat-3", h.inn.StrikerID)
	assert.Equal(t, "bat-2", h.inn.NonStrikerID)

	h.bowl(runs(4))
	assert.Equal(t, 4, h.inn.batsman("bat-3").Runs)
}

func TestChaseTerminatesPastTarget(t *testing.T) {
	target := 11
	meta := &domain.Innings{
		ID: "inn2", MatchID: "m1", Number: 2,
		BattingTeamID: "team-b", BowlingTeamID: "team-a",
		Target: &target,
	}
	h := &foldHarness{t: t, r: domain.DefaultRules(), meta: meta, inn: NewInnings(meta)}
	h.inn.SetBatsmen("bat-1", "bat-2")
	h.openOver("bowler-1")

	h.bowl(boundary(6))
	h.bowl(boundary(4))
	assert.False(t, h.inn.Closed, "level with ten, target not exceeded")

	res := h.bowl(runs(1))
	assert.False(t, h.inn.Closed, "eleven equals the target, still not exceeded")
	assert.Equal(t, domain.TerminationNone, res.Termination)

	res = h.bowl(runs(2))
	assert.True(t, h.inn.Closed)
	assert.Equal(t, domain.TerminationTargetChased, res.Termination)
	assert.Equal(t, 13, h.inn.Runs)
}

func TestAllOutTerminates(t *testing.T) {
	h := newFold(t)
	h.r.PlayersPerSide = 3 // two wickets end the innings
	h.openOver("bowler-1")

	h.bowl(wicket(domain.DismissalBowled, "bat-1"))
	h.inn.SetBatsmen("bat-3", "")
	res := h.bowl(wicket(domain.DismissalBowled, "bat-3"))

	assert.True(t, h.inn.Closed)
	assert.Equal(t, domain.TerminationAllOut, res.Termination)
}

func TestOversExhaustedTerminates(t *testing.T) {
	h := newFold(t)
	h.r.OversPerInnings = 1
	h.openOver("bowler-1")

	var res ApplyResult
	for i := 0; i < 6; i++ {
		res = h.bowl(runs(1))
	}
	assert.True(t, h.inn.Closed)
	assert.Equal(t, domain.TerminationOversExhausted, res.Termination)
}

func TestHatTrickAcrossOvers(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")
	for i := 0; i < 4; i++ {
		h.bowl(nil)
	}
	h.bowl(wicket(domain.DismissalBowled, "bat-1"))
	h.inn.SetBatsmen("bat-3", "")
	res := h.bowl(wicket(domain.DismissalCaught, "bat-3"))
	require.True(t, res.OverCompleted)
	h.inn.SetBatsmen("bat-4", "")

	// Different bowler in between does not break the sequence.
	h.openOver("bowler-2")
	for i := 0; i < 6; i++ {
		h.bowl(nil)
	}

	h.openOver("bowler-1")
	h.inn.SetBatsmen("bat-4", "bat-2")
	res = h.bowl(wicket(domain.DismissalLBW, "bat-4"))

	var kinds []rules.MilestoneKind
	for _, m := range res.Milestones {
		kinds = append(kinds, m.Kind)
	}
	assert.Contains(t, kinds, rules.MilestoneHatTrick)
}

func TestFiftyMilestone(t *testing.T) {
	h := newFold(t)
	bowlers := []string{"bowler-1", "bowler-2"}
	var got []rules.Milestone
	for over := 0; over < 5; over++ {
		h.openOver(bowlers[over%2])
		for ball := 0; ball < 6; ball++ {
			res := h.bowl(boundary(4))
			got = append(got, res.Milestones...)
		}
	}
	var kinds []rules.MilestoneKind
	for _, m := range got {
		kinds = append(kinds, m.Kind)
	}
	assert.Contains(t, kinds, rules.MilestoneFifty)
	assert.Contains(t, kinds, rules.MilestoneTeamFifty)
}

func TestAllRunFourIsNotABoundary(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")

	h.bowl(runs(4))
	h.bowl(boundary(4))

	bat1 := h.inn.batsman("bat-1")
	assert.Equal(t, 8, bat1.Runs)
	assert.Equal(t, 1, bat1.Fours, "only the struck ball counts toward the boundary tally")
	assert.Equal(t, 0, bat1.Sixes)
	// Four completed runs bring the striker back to the same end.
	assert.Equal(t, "bat-1", h.inn.StrikerID)
}

func TestRatesNilBeforeFirstDelivery(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")
	h.bowl(nil)
	h.bowl(nil)

	bat1 := h.inn.batsman("bat-1")
	require.NotNil(t, bat1.StrikeRate())
	assert.Zero(t, *bat1.StrikeRate(), "two dots is a rate of zero, not an unknown")

	bat2 := h.inn.batsman("bat-2")
	require.NotNil(t, bat2)
	assert.Nil(t, bat2.StrikeRate(), "yet to face, the rate is undefined")

	bowler := h.inn.Bowlers[0]
	require.NotNil(t, bowler.Economy(h.r))
	assert.Zero(t, *bowler.Economy(h.r))

	fresh := &BowlerCard{PlayerID: "bowler-2"}
	assert.Nil(t, fresh.Economy(h.r), "no deliveries, no economy")
}

func TestRebuildReproducesLiveStateExactly(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")
	h.bowl(runs(1))
	h.bowl(func(b *domain.Ball) { b.ExtraKind = domain.ExtraWide })
	h.bowl(boundary(4))
	h.bowl(func(b *domain.Ball) {
		b.ExtraKind = domain.ExtraNoBall
		b.RunsOffBat = 2
	})
	h.bowl(wicket(domain.DismissalCaught, "bat-2"))
	h.inn.SetBatsmen("bat-3", "")
	h.bowl(runs(3))
	h.bowl(nil)
	h.bowl(runs(2))

	live, err := h.inn.Fingerprint()
	require.NoError(t, err)

	replayed, err := Rebuild(h.r, h.meta, h.balls)
	require.NoError(t, err)
	again, err := replayed.Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, live, again, "replay must reproduce live aggregates byte for byte")
	assert.Equal(t, h.inn.Runs, replayed.Runs)
	assert.Equal(t, h.inn.Wickets, replayed.Wickets)
}

func TestRebuildWithCorrectedBall(t *testing.T) {
	h := newFold(t)
	h.openOver("bowler-1")
	h.bowl(runs(1))
	h.bowl(boundary(4))
	h.bowl(nil)

	require.Equal(t, 5, h.inn.Runs)

	// The boundary at 0.2 is corrected to two runs.
	corrected := make([]*domain.Ball, len(h.balls))
	for i, b := range h.balls {
		cp := *b
		corrected[i] = &cp
	}
	corrected[1].RunsOffBat = 2
	corrected[1].IsBoundary = false
	corrected[1].BoundaryKind = ""

	replayed, err := Rebuild(h.r, h.meta, corrected)
	require.NoError(t, err)
	assert.Equal(t, 3, replayed.Runs)
	assert.Equal(t, 0, replayed.batsman("bat-2").Fours)
}
