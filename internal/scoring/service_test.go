package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirdumpire/crease/internal/auth"
	"github.com/thirdumpire/crease/internal/config"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/events"
	"github.com/thirdumpire/crease/internal/store"
)

var testEpoch = time.UnixMilli(1700000000000).UTC()

type harness struct {
	t     *testing.T
	svc   *Service
	clock time.Time

	frames []events.Event
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "crease.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx, db))
	require.NoError(t, eventlog.Migrate(ctx, db))

	cfg := &config.Config{
		AuthSecret:           "test-secret",
		ScorerQuorum:         2,
		ConsensusWindow:      30 * time.Second,
		ConsensusWindowBalls: 8,
		SingleScorerFallback: true,
		CommandTimeout:       5 * time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}
	signer, err := auth.NewSigner(cfg.AuthSecret)
	require.NoError(t, err)
	bus := events.NewBus()

	h := &harness{t: t, clock: testEpoch}
	h.svc = NewService(db, cfg, &config.RulePresets{}, signer, bus)
	t.Cleanup(h.svc.Close)
	h.svc.now = func() time.Time { return h.clock }
	bus.SubscribeAll(func(e events.Event) error {
		h.frames = append(h.frames, e)
		return nil
	})
	return h
}

func (h *harness) tick(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) framesOf(t events.Type) []events.Event {
	var out []events.Event
	for _, f := range h.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func creatorClaims() auth.Claims {
	return auth.Claims{Subject: "organizer", Role: domain.RoleCreator}
}

func scorerClaims(subject string, side domain.ScorerSide) auth.Claims {
	return auth.Claims{Subject: subject, Role: domain.RoleScorer, Side: side}
}

func umpireClaims() auth.Claims {
	return auth.Claims{Subject: "tv-umpire", Role: domain.RoleUmpire}
}

var (
	homeBench = scorerClaims("home-bench", domain.SideHome)
	awayBench = scorerClaims("away-bench", domain.SideAway)
)

func rosterInput(prefix string, n int) []PlayerInput {
	out := make([]PlayerInput, n)
	for i := range out {
		out[i] = PlayerInput{ID: fmt.Sprintf("%s%d", prefix, i+1), Name: fmt.Sprintf("Player %s%d", prefix, i+1)}
	}
	return out
}

func eleven(teamID, prefix string, n int) *domain.PlayingXI {
	xi := &domain.PlayingXI{TeamID: teamID}
	for i := 0; i < n; i++ {
		xi.Entries = append(xi.Entries, domain.XIEntry{
			PlayerID:     fmt.Sprintf("%s%d", prefix, i+1),
			BattingOrder: i + 1,
			IsCaptain:    i == 0,
			IsKeeper:     i == 1,
		})
	}
	return xi
}

// liveMatch walks a match through setup to the first ball of the first
// over: toss won by home electing to bat, h1 and h2 at the crease, a11
// (or the last away player) bowling.
func (h *harness) liveMatch(r *domain.Rules) (*domain.Match, *domain.Innings, *domain.Over) {
	h.t.Helper()
	ctx := context.Background()
	rules := domain.DefaultRules()
	if r != nil {
		rules = *r
	}
	n := rules.PlayersPerSide

	m, err := h.svc.CreateMatch(ctx, creatorClaims(), CreateMatchParams{
		Name:  "Kestrels v Harriers",
		Venue: "County Ground",
		Home:  TeamInput{ID: "team-home", Name: "Kestrels", Players: rosterInput("h", n)},
		Away:  TeamInput{ID: "team-away", Name: "Harriers", Players: rosterInput("a", n)},
		Rules: &rules,
		Officials: []OfficialInput{
			{Subject: "home-bench", Role: domain.RoleScorer, Side: domain.SideHome},
			{Subject: "away-bench", Role: domain.RoleScorer, Side: domain.SideAway},
			{Subject: "tv-umpire", Role: domain.RoleUmpire},
		},
	})
	require.NoError(h.t, err)

	require.NoError(h.t, h.svc.ConductToss(ctx, creatorClaims(), m.ID, "team-home", domain.TossBat))
	require.NoError(h.t, h.svc.SetPlayingXI(ctx, creatorClaims(), m.ID, eleven("team-home", "h", n)))
	require.NoError(h.t, h.svc.SetPlayingXI(ctx, creatorClaims(), m.ID, eleven("team-away", "a", n)))

	inn, err := h.svc.OpenInnings(ctx, homeBench, m.ID)
	require.NoError(h.t, err)
	require.NoError(h.t, h.svc.SetBatsmen(ctx, homeBench, m.ID, inn.ID, "h1", "h2"))
	over, err := h.svc.OpenOver(ctx, homeBench, m.ID, inn.ID, 1, fmt.Sprintf("a%d", n))
	require.NoError(h.t, err)
	return m, inn, over
}

// draft builds the payload for the next deliverable slot straight from
// the match's live state, the way a bench console would.
func (h *harness) draft(matchID string) *domain.BallPayload {
	h.t.Helper()
	mc, err := h.svc.reg.Get(context.Background(), matchID)
	require.NoError(h.t, err)
	var p domain.BallPayload
	require.NoError(h.t, mc.Do(context.Background(), func(st *State) error {
		ref := st.ExpectedRef()
		p = domain.BallPayload{
			InningsID:    st.CurrentInnings().ID,
			OverNumber:   ref.OverNumber,
			BallInOver:   ref.BallInOver,
			StrikerID:    st.Live.StrikerID,
			NonStrikerID: st.Live.NonStrikerID,
			ExtraKind:    domain.ExtraNone,
		}
		if st.OpenOver != nil {
			p.OverID = st.OpenOver.ID
			p.BowlerID = st.OpenOver.BowlerID
		}
		return nil
	}))
	return &p
}

// submit sends the same call from both benches and returns the second
// bench's result, which is where consensus lands.
func (h *harness) submit(matchID string, p *domain.BallPayload) *SubmitResult {
	h.t.Helper()
	ctx := context.Background()
	_, err := h.svc.SubmitBall(ctx, homeBench, matchID, p)
	require.NoError(h.t, err)
	h.tick(time.Second)
	res, err := h.svc.SubmitBall(ctx, awayBench, matchID, p)
	require.NoError(h.t, err)
	return res
}

func (h *harness) score(matchID string, runs int) *SubmitResult {
	p := h.draft(matchID)
	p.RunsOffBat = runs
	return h.submit(matchID, p)
}

// inspect reads a copy of live state off the match goroutine.
func (h *harness) inspect(matchID string, fn func(st *State)) {
	h.t.Helper()
	mc, err := h.svc.reg.Get(context.Background(), matchID)
	require.NoError(h.t, err)
	require.NoError(h.t, mc.Do(context.Background(), func(st *State) error {
		fn(st)
		return nil
	}))
}

func TestCleanOverScoring(t *testing.T) {
	h := newHarness(t, nil)
	m, inn, _ := h.liveMatch(nil)

	for _, runs := range []int{0, 1, 4, 0, 2, 1} {
		res := h.score(m.ID, runs)
		assert.Equal(t, "committed", res.Status)
	}

	h.inspect(m.ID, func(st *State) {
		assert.Equal(t, 8, st.Live.Runs)
		assert.Zero(t, st.Live.Wickets)
		assert.Equal(t, 6, st.Live.LegalDeliveries)
		require.Len(t, st.Live.Overs, 1)
		assert.True(t, st.Live.Overs[0].Completed)
		assert.False(t, st.Live.Overs[0].Maiden)
		// Singles off 1.2 and 1.6 put h2 on strike; the end-of-over swap
		// keeps them there.
		assert.Equal(t, "h2", st.Live.StrikerID)
		assert.Equal(t, "h1", st.Live.NonStrikerID)
		assert.Nil(t, st.OpenOver)
	})

	assert.Len(t, h.framesOf(events.TypeBallBowled), 6)
	require.Len(t, h.framesOf(events.TypeOverComplete), 1)
	oc := h.framesOf(events.TypeOverComplete)[0].Payload.(events.OverCompletePayload)
	assert.Equal(t, inn.ID, oc.InningsID)
	assert.Equal(t, "1.0", oc.Score.Overs)
	assert.Equal(t, 8, oc.Score.Runs)
}

func TestMaidenOverBookkeeping(t *testing.T) {
	h := newHarness(t, nil)
	m, _, _ := h.liveMatch(nil)

	for i := 0; i < 6; i++ {
		h.score(m.ID, 0)
	}

	h.inspect(m.ID, func(st *State) {
		require.Len(t, st.Live.Overs, 1)
		assert.True(t, st.Live.Overs[0].Maiden)
		require.Len(t, st.Live.Bowlers, 1)
		assert.Equal(t, 1, st.Live.Bowlers[0].Maidens)
		assert.Zero(t, st.Live.Bowlers[0].Runs)
	})
}

func TestWideThenStumping(t *testing.T) {
	h := newHarness(t, nil)
	m, inn, _ := h.liveMatch(nil)

	// 0.1 wide, re-bowled.
	wide := h.draft(m.ID)
	wide.ExtraKind = domain.ExtraWide
	res := h.submit(m.ID, wide)
	assert.Equal(t, "committed", res.Status)

	// The keeper whips the bails off on the next wide.
	stump := h.draft(m.ID)
	require.Equal(t, 1, stump.BallInOver, "a wide does not advance the slot")
	stump.ExtraKind = domain.ExtraWide
	stump.IsWicket = true
	stump.Wicket = &domain.WicketCall{Kind: domain.DismissalStumped, BatsmanOutID: "h1"}
	res = h.submit(m.ID, stump)
	assert.Equal(t, "committed", res.Status)

	h.inspect(m.ID, func(st *State) {
		assert.Equal(t, 2, st.Live.Runs, "two wide penalties, nothing off the bat")
		assert.Equal(t, 1, st.Live.Wickets)
		assert.Zero(t, st.Live.LegalDeliveries)
		assert.True(t, st.Live.Dismissed["h1"])
		assert.Empty(t, st.Live.StrikerID, "the striker's end is vacant")
		require.Len(t, st.Live.Bowlers, 1)
		assert.Equal(t, 1, st.Live.Bowlers[0].Wickets, "stumpings credit the bowler")
	})

	require.Len(t, h.framesOf(events.TypeWicketFallen), 1)
	wf := h.framesOf(events.TypeWicketFallen)[0].Payload.(events.WicketFallenPayload)
	assert.Equal(t, domain.DismissalStumped, wf.Wicket.Kind)
	assert.Equal(t, "0.1", wf.Wicket.OverDecimal)

	// Play resumes once the new batsman is in, still at slot 0.1.
	require.NoError(t, h.svc.SetBatsmen(context.Background(), homeBench, m.ID, inn.ID, "h3", ""))
	res = h.score(m.ID, 0)
	assert.Equal(t, "committed", res.Status)
	h.inspect(m.ID, func(st *State) {
		assert.Equal(t, 1, st.Live.LegalDeliveries)
	})
}

func TestDisputeHoldsPlayUntilResolved(t *testing.T) {
	h := newHarness(t, nil)
	m, _, _ := h.liveMatch(nil)
	ctx := context.Background()

	// The benches split on whether the batsmen ran two or three.
	first := h.draft(m.ID)
	first.RunsOffBat = 2
	_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, first)
	require.NoError(t, err)
	contested := *first
	contested.RunsOffBat = 3
	res, err := h.svc.SubmitBall(ctx, awayBench, m.ID, &contested)
	require.Error(t, err)
	assert.Equal(t, domain.ErrDisputed, domain.KindOf(err))
	require.NotNil(t, res)
	assert.Equal(t, "disputed", res.Status)
	require.NotEmpty(t, res.DisputeID)

	disputes, err := h.svc.Disputes(ctx, m.ID, domain.DisputeOpen)
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	assert.Equal(t, domain.DisputeRunsDiffer, disputes[0].Kind)

	// The next delivery is accepted but held behind the dispute.
	second := h.draft(m.ID)
	require.Equal(t, 2, second.BallInOver, "play continues past the disputed slot")
	second.RunsOffBat = 1
	held := h.submit(m.ID, second)
	assert.Equal(t, "pending", held.Status)
	h.inspect(m.ID, func(st *State) {
		assert.Zero(t, st.Live.Runs, "nothing commits while the dispute is open")
		assert.Equal(t, 2, st.Engine.Pending())
	})

	// Subscribers still see the held delivery, flagged provisional. Only
	// the first bench's call gets a delta; the join stays silent.
	provisional := h.framesOf(events.TypeBallBowled)
	require.Len(t, provisional, 1)
	pd := provisional[0].Payload.(events.BallBowledPayload)
	assert.True(t, pd.Unconfirmed)
	assert.Empty(t, pd.Ball.ID, "a provisional delta has no canonical identity")
	assert.Equal(t, 1, pd.Ball.RunsOffBat)

	// The third umpire rules three; both held slots land in order.
	final := contested
	d, err := h.svc.ResolveDispute(ctx, umpireClaims(), m.ID, res.DisputeID, &final)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeResolved, d.Status)
	assert.Equal(t, "tv-umpire", d.ResolvedBy)

	h.inspect(m.ID, func(st *State) {
		assert.Equal(t, 4, st.Live.Runs)
		assert.Equal(t, 2, st.Live.LegalDeliveries)
		assert.Zero(t, st.Engine.Pending())
	})

	require.Len(t, h.framesOf(events.TypeScoringDisputeRaised), 1)
	require.Len(t, h.framesOf(events.TypeDisputeResolved), 1)
	recs := h.framesOf(events.TypeReconciliation)
	require.Len(t, recs, 1)
	rec := recs[0].Payload.(events.ReconciliationPayload)
	require.Len(t, rec.Balls, 2)
	assert.Equal(t, 3, rec.Balls[0].RunsOffBat)
	assert.Equal(t, 4, rec.Score.Runs)

	// The canonical frames for both held slots follow the resolution.
	bowled := h.framesOf(events.TypeBallBowled)
	require.Len(t, bowled, 3)
	for _, f := range bowled[1:] {
		assert.False(t, f.Payload.(events.BallBowledPayload).Unconfirmed)
	}

	// The provenance trail shows how each ball was decided.
	c1, err := store.GetConsensus(ctx, h.svc.db, rec.Balls[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsensusResolution, c1.Method)
	c2, err := store.GetConsensus(ctx, h.svc.db, rec.Balls[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsensusScorerMatch, c2.Method)
}

func TestLoneCallCommitsAfterWindow(t *testing.T) {
	h := newHarness(t, nil)
	m, inn, _ := h.liveMatch(nil)
	ctx := context.Background()

	p := h.draft(m.ID)
	p.RunsOffBat = 4
	res, err := h.svc.SubmitBall(ctx, homeBench, m.ID, p)
	require.NoError(t, err)
	assert.Equal(t, "pending", res.Status)

	// Inside the window the sweeper leaves it alone.
	h.tick(10 * time.Second)
	h.svc.SweepExpired(ctx)
	balls, err := h.svc.Balls(ctx, inn.ID)
	require.NoError(t, err)
	assert.Empty(t, balls)

	h.tick(25 * time.Second)
	h.svc.SweepExpired(ctx)
	balls, err = h.svc.Balls(ctx, inn.ID)
	require.NoError(t, err)
	require.Len(t, balls, 1)

	c, err := store.GetConsensus(ctx, h.svc.db, balls[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsensusSingleScorer, c.Method)
	assert.Equal(t, 0.5, c.Confidence, "an unconfirmed call is half-trusted")
	require.Len(t, h.framesOf(events.TypeBallBowled), 1)
}

func TestFramePublishOrderPinnedToCommitOrder(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.ScorerQuorum = 1 })
	m, inn, _ := h.liveMatch(nil)
	ctx := context.Background()

	// A subscriber that stalls on the first delivery's frame. While it
	// stalls the match goroutine is occupied, so the next command must
	// not commit until the frame is out.
	started := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	h.svc.bus.SubscribeAll(func(e events.Event) error {
		if e.Type == events.TypeBallBowled {
			once.Do(func() {
				close(started)
				<-gate
			})
		}
		return nil
	})

	first := h.draft(m.ID)
	errA := make(chan error, 1)
	go func() {
		_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, first)
		errA <- err
	}()
	<-started

	second := *first
	second.BallInOver = 2
	errB := make(chan error, 1)
	go func() {
		_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, &second)
		errB <- err
	}()

	time.Sleep(100 * time.Millisecond)
	balls, err := h.svc.Balls(ctx, inn.ID)
	require.NoError(t, err)
	assert.Len(t, balls, 1, "second delivery must wait behind the unpublished frame")

	close(gate)
	require.NoError(t, <-errA)
	require.NoError(t, <-errB)
	assert.Len(t, h.framesOf(events.TypeBallBowled), 2)
}

func chaseRules() *domain.Rules {
	r := domain.DefaultRules()
	r.OversPerInnings = 1
	r.PlayersPerSide = 3
	r.MaxOversPerBowler = 1
	r.PowerplayOvers = 1
	r.RequireKeeper = false
	return &r
}

func TestChaseFinishesMatch(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.ScorerQuorum = 1 })
	m, _, _ := h.liveMatch(chaseRules())
	ctx := context.Background()

	// First innings: a boundary and five dots off the only over.
	for _, runs := range []int{4, 0, 0, 0, 0, 0} {
		p := h.draft(m.ID)
		p.RunsOffBat = runs
		_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, p)
		require.NoError(t, err)
	}

	got, err := h.svc.Match(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchInningsBreak, got.State)
	require.Len(t, h.framesOf(events.TypeInningsComplete), 1)
	ic := h.framesOf(events.TypeInningsComplete)[0].Payload.(events.InningsCompletePayload)
	assert.Equal(t, domain.TerminationOversExhausted, ic.Reason)

	// Second innings: away needs five, first ball goes over the ropes.
	inn2, err := h.svc.OpenInnings(ctx, homeBench, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "team-away", inn2.BattingTeamID)
	require.NotNil(t, inn2.Target)
	assert.Equal(t, 4, *inn2.Target)

	require.NoError(t, h.svc.SetBatsmen(ctx, homeBench, m.ID, inn2.ID, "a1", "a2"))
	_, err = h.svc.OpenOver(ctx, homeBench, m.ID, inn2.ID, 1, "h3")
	require.NoError(t, err)

	p := h.draft(m.ID)
	p.RunsOffBat = 6
	_, err = h.svc.SubmitBall(ctx, homeBench, m.ID, p)
	require.NoError(t, err)

	got, err = h.svc.Match(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchCompleted, got.State)
	require.NotNil(t, got.Result)
	assert.Equal(t, "team-away", got.Result.WinnerTeamID)
	assert.Equal(t, domain.MarginWickets, got.Result.MarginKind)
	assert.Equal(t, 2, got.Result.Margin)
	assert.Equal(t, "won by 2 wicket(s)", got.Result.Summary)
	require.Len(t, h.framesOf(events.TypeMatchComplete), 1)
}

func TestCorrectionRefoldsInnings(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.ScorerQuorum = 1 })
	m, inn, _ := h.liveMatch(nil)
	ctx := context.Background()

	four := h.draft(m.ID)
	four.RunsOffBat = 4
	res, err := h.svc.SubmitBall(ctx, homeBench, m.ID, four)
	require.NoError(t, err)
	require.Len(t, res.Balls, 1)
	target := res.Balls[0]

	dot := h.draft(m.ID)
	_, err = h.svc.SubmitBall(ctx, homeBench, m.ID, dot)
	require.NoError(t, err)

	// The boundary was actually a six.
	replacement := *four
	replacement.RunsOffBat = 6
	corrected, err := h.svc.CorrectBall(ctx, creatorClaims(), m.ID, &domain.CorrectionPayload{
		BallID:      target.ID,
		Replacement: replacement,
		Reason:      "cleared the rope on review",
	})
	require.NoError(t, err)
	assert.Equal(t, target.ID, corrected.ID, "the canonical ball keeps its identity")
	assert.Equal(t, 6, corrected.RunsOffBat)

	h.inspect(m.ID, func(st *State) {
		assert.Equal(t, 6, st.Live.Runs)
		assert.Equal(t, 2, st.Live.LegalDeliveries)
	})
	balls, err := h.svc.Balls(ctx, inn.ID)
	require.NoError(t, err)
	require.Len(t, balls, 2)
	assert.Equal(t, 6, balls[0].RunsOffBat)

	// A correction that changes legality would shift later coordinates.
	bad := replacement
	bad.ExtraKind = domain.ExtraWide
	bad.RunsOffBat = 0
	_, err = h.svc.CorrectBall(ctx, creatorClaims(), m.ID, &domain.CorrectionPayload{
		BallID: target.ID, Replacement: bad,
	})
	assert.Equal(t, domain.ErrFailedPrecondition, domain.KindOf(err))
}

func TestDeclarationClosesInnings(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.ScorerQuorum = 1 })
	m, inn, _ := h.liveMatch(nil)
	ctx := context.Background()

	p := h.draft(m.ID)
	p.RunsOffBat = 1
	_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, p)
	require.NoError(t, err)

	require.NoError(t, h.svc.CloseInnings(ctx, homeBench, m.ID, inn.ID))

	got, err := h.svc.Match(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchInningsBreak, got.State)
	h.inspect(m.ID, func(st *State) {
		meta := st.CurrentInnings()
		assert.Equal(t, domain.TerminationDeclared, meta.Termination)
		assert.True(t, meta.Declared)
		assert.NotNil(t, meta.ClosedAt)
	})
	require.Len(t, h.framesOf(events.TypeInningsComplete), 1)
}

func TestDeclarationBlockedWhileBallsPending(t *testing.T) {
	h := newHarness(t, nil)
	m, inn, _ := h.liveMatch(nil)
	ctx := context.Background()

	p := h.draft(m.ID)
	p.RunsOffBat = 1
	_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, p)
	require.NoError(t, err)

	err = h.svc.CloseInnings(ctx, homeBench, m.ID, inn.ID)
	assert.Equal(t, domain.ErrFailedPrecondition, domain.KindOf(err))
}

func TestChainTamperIsDetected(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.ScorerQuorum = 1 })
	m, _, _ := h.liveMatch(nil)
	ctx := context.Background()

	for _, runs := range []int{1, 4, 0} {
		p := h.draft(m.ID)
		p.RunsOffBat = runs
		_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, p)
		require.NoError(t, err)
	}

	ok, _, err := h.svc.VerifyChain(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Someone edits a ball straight in the database.
	_, err = h.svc.db.ExecContext(ctx,
		`UPDATE scoring_events SET payload = ? WHERE match_id = ? AND seq = 3`,
		[]byte(`{"runsOffBat":0}`), m.ID)
	require.NoError(t, err)

	ok, brokenSeq, err := h.svc.VerifyChain(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), brokenSeq)
}

func TestRehydrationReproducesLiveState(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.ScorerQuorum = 1 })
	m, _, _ := h.liveMatch(nil)
	ctx := context.Background()

	for _, runs := range []int{4, 1, 0} {
		p := h.draft(m.ID)
		p.RunsOffBat = runs
		_, err := h.svc.SubmitBall(ctx, homeBench, m.ID, p)
		require.NoError(t, err)
	}
	var before string
	h.inspect(m.ID, func(st *State) {
		fp, err := st.Live.Fingerprint()
		require.NoError(t, err)
		before = fp
	})

	// Evict the context; the next touch rebuilds everything from disk.
	h.svc.reg.Invalidate(m.ID)
	h.inspect(m.ID, func(st *State) {
		fp, err := st.Live.Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, before, fp, "replay must reproduce live state exactly")
		assert.Equal(t, 5, st.Live.Runs)
		require.NotNil(t, st.OpenOver)
	})

	raw, err := h.svc.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	var snap events.SnapshotPayload
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, 5, snap.Innings.Runs)
	assert.Positive(t, snap.LastSeq)
}

func TestViewerMayNotScore(t *testing.T) {
	h := newHarness(t, nil)
	m, _, _ := h.liveMatch(nil)

	p := h.draft(m.ID)
	_, err := h.svc.SubmitBall(context.Background(),
		auth.Claims{Subject: "fan", Role: domain.RoleViewer}, m.ID, p)
	assert.Equal(t, domain.ErrPermissionDenied, domain.KindOf(err))
}

func TestOutOfSequenceBallRejected(t *testing.T) {
	h := newHarness(t, nil)
	m, _, _ := h.liveMatch(nil)

	p := h.draft(m.ID)
	p.BallInOver = 3
	_, err := h.svc.SubmitBall(context.Background(), homeBench, m.ID, p)
	assert.Equal(t, domain.ErrFailedPrecondition, domain.KindOf(err))
}
