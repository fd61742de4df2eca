package scoring

import (
	"context"
	"database/sql"
	"time"

	"github.com/thirdumpire/crease/internal/auth"
	"github.com/thirdumpire/crease/internal/consensus"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/events"
	"github.com/thirdumpire/crease/internal/lifecycle"
	"github.com/thirdumpire/crease/internal/projection"
	"github.com/thirdumpire/crease/internal/rules"
	"github.com/thirdumpire/crease/internal/store"
	"github.com/thirdumpire/crease/internal/telemetry"
)

// SubmitResult tells the scorer what became of their call.
type SubmitResult struct {
	EventID   string         `json:"eventId"`
	Seq       int64          `json:"seq"`
	Status    string         `json:"status"` // committed | pending | disputed
	Balls     []*domain.Ball `json:"balls,omitempty"`
	DisputeID string         `json:"disputeId,omitempty"`
}

// SubmitBall ingests one scorer's call. The raw event is always
// appended; whether the delivery commits, waits for the sibling bench,
// or opens a dispute is the consensus engine's call. A dispute is
// reported as ErrDisputed even though the write itself succeeded.
func (s *Service) SubmitBall(ctx context.Context, c auth.Claims, matchID string, p *domain.BallPayload) (*SubmitResult, error) {
	var (
		out        *SubmitResult
		disputeErr error
	)
	err := s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdSubmitBall); err != nil {
			return nil, err
		}
		side := c.Side
		if c.Role == domain.RoleUmpire {
			side = domain.SideUmpire
		}
		if !domain.ValidScorerSide(side) {
			return nil, domain.E(domain.ErrPermissionDenied, "credential carries no scoring side")
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}

		meta := st.CurrentInnings()
		if meta == nil || st.Live == nil {
			return nil, domain.E(domain.ErrFailedPrecondition, "no innings is open")
		}
		// A call for a slot another scorer already opened joins that slot
		// rather than advancing play; only genuinely new slots are held
		// to the provisionally advanced coordinate.
		joins := st.Engine.Joins(p)
		provisional := st.Engine.Pending() > 0
		overID, overBowler := "", ""
		if st.OpenOver != nil {
			overID, overBowler = st.OpenOver.ID, st.OpenOver.BowlerID
		}
		if err := rules.CheckDelivery(st.Match.Rules, rules.DeliveryContext{
			MatchState:   st.Match.State,
			InningsID:    meta.ID,
			InningsOpen:  meta.Open() && !st.Live.Closed,
			ExpectedRef:  st.ExpectedRef(),
			OverID:       overID,
			OverBowlerID: overBowler,
			StrikerID:    st.Live.StrikerID,
			NonStrikerID: st.Live.NonStrikerID,
			BattingXI:    st.BattingXI(),
			BowlingXI:    st.BowlingXI(),
			Dismissed:    st.Live.Dismissed,
			Provisional:  provisional,
			JoinsPending: joins,
		}, p); err != nil {
			return nil, err
		}

		var frames []events.Event
		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			ev := &domain.ScoringEvent{
				InningsID: p.InningsID,
				ScorerID:  c.Subject,
				Side:      side,
				Kind:      domain.EventBallRecorded,
			}
			if err := s.appendEvent(ctx, tx, st, ev, p); err != nil {
				return err
			}
			out = &SubmitResult{EventID: ev.ID, Seq: ev.Seq, Status: "pending"}

			dispute, commits, err := st.Engine.Observe(ctx, tx, ev, p, s.now())
			if err != nil {
				return err
			}
			if dispute != nil {
				f, err := s.raiseDispute(ctx, tx, st, dispute)
				if err != nil {
					return err
				}
				frames = append(frames, f)
				out.Status = "disputed"
				out.DisputeID = dispute.ID
				disputeErr = domain.E(domain.ErrDisputed,
					"benches disagree on ball %s", dispute.Ref.Decimal()).
					WithDetail("disputeId", dispute.ID).
					WithDetail("eventId", ev.ID)
				return nil
			}
			f, balls, err := s.applyCommits(ctx, tx, st, commits)
			if err != nil {
				return err
			}
			frames = append(frames, f...)
			if len(balls) > 0 {
				out.Status = "committed"
				out.Balls = balls
			}
			// More than one release means a held buffer drained.
			if len(balls) > 1 {
				frames = append(frames, s.frame(st, events.TypeReconciliation,
					events.ReconciliationPayload{Balls: balls, Score: scoreLine(st)}))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		// A call accepted but held behind an open dispute surfaces right
		// away as an unconfirmed delta; the canonical frame follows once
		// the dispute resolves and the held buffer drains.
		if out.Status == "pending" && !joins {
			if head := st.Engine.HeldSince(); head != nil && head.Status == consensus.SlotDisputed {
				b := ballFromPayload(p, p.Ref(), s.now())
				b.ID = ""
				b.EventID = out.EventID
				frames = append(frames, s.frame(st, events.TypeBallBowled, events.BallBowledPayload{
					Ball:        b,
					Score:       scoreLine(st),
					Unconfirmed: true,
				}))
			}
		}
		telemetry.Metrics.HeldBalls.Set(int64(st.Engine.Pending()))
		return frames, nil
	})
	if err != nil {
		return nil, err
	}
	return out, disputeErr
}

// CloseInnings declares an innings closed before the fold would end it.
func (s *Service) CloseInnings(ctx context.Context, c auth.Claims, matchID, inningsID string) error {
	return s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdCloseInnings); err != nil {
			return nil, err
		}
		meta := st.CurrentInnings()
		if meta == nil || meta.ID != inningsID || !meta.Open() {
			return nil, domain.E(domain.ErrNotFound, "innings %s is not in progress", inningsID)
		}
		if n := st.Engine.Pending(); n > 0 {
			return nil, domain.E(domain.ErrFailedPrecondition,
				"%d deliveries are awaiting consensus; resolve them before declaring", n)
		}
		var frames []events.Event
		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			f, err := s.closeInnings(ctx, tx, st, domain.TerminationDeclared, true)
			frames = f
			return err
		})
		return frames, err
	})
}

// ResolveDispute settles an open dispute with the resolver's final call
// and commits everything the resolution unblocked, in slot order.
func (s *Service) ResolveDispute(ctx context.Context, c auth.Claims, matchID, disputeID string, final *domain.BallPayload) (*domain.Dispute, error) {
	var out *domain.Dispute
	err := s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdResolveDispute); err != nil {
			return nil, err
		}
		if err := final.Validate(); err != nil {
			return nil, err
		}
		var frames []events.Event
		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			d, err := store.GetDispute(ctx, tx, disputeID)
			if err != nil {
				return err
			}
			if d.MatchID != st.Match.ID {
				return domain.E(domain.ErrNotFound, "dispute %s not found on this match", disputeID)
			}
			if d.Status != domain.DisputeOpen {
				return domain.E(domain.ErrFailedPrecondition, "dispute %s is already resolved", disputeID)
			}

			ev := &domain.ScoringEvent{
				InningsID: d.InningsID,
				ScorerID:  c.Subject,
				Side:      domain.SideUmpire,
				Kind:      domain.EventDisputeResolved,
			}
			if err := s.appendEvent(ctx, tx, st, ev, domain.DisputeResolvedPayload{
				DisputeID: disputeID,
				Final:     *final,
				Method:    string(domain.ConsensusResolution),
			}); err != nil {
				return err
			}

			commits, err := st.Engine.Resolve(ctx, tx, disputeID, final, ev.ID)
			if err != nil {
				return err
			}

			now := s.now().UTC()
			d.Status = domain.DisputeResolved
			d.ResolvedAt = &now
			d.ResolvedBy = c.Subject
			d.Method = string(domain.ConsensusResolution)
			if err := store.ResolveDisputeRow(ctx, tx, d); err != nil {
				return err
			}
			telemetry.Metrics.DisputesResolved.Inc()
			out = d
			frames = append(frames, s.frame(st, events.TypeDisputeResolved,
				events.DisputeResolvedPayload{Dispute: d}))

			f, balls, err := s.applyCommits(ctx, tx, st, commits)
			if err != nil {
				return err
			}
			frames = append(frames, f...)
			if len(balls) > 0 {
				frames = append(frames, s.frame(st, events.TypeReconciliation,
					events.ReconciliationPayload{Balls: balls, Score: scoreLine(st)}))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		telemetry.Metrics.HeldBalls.Set(int64(st.Engine.Pending()))
		return frames, nil
	})
	return out, err
}

// CorrectBall rewrites one committed delivery of the innings in
// progress and refolds the aggregate from scratch. The replacement must
// keep the original's legality class so every later delivery keeps its
// coordinates.
func (s *Service) CorrectBall(ctx context.Context, c auth.Claims, matchID string, corr *domain.CorrectionPayload) (*domain.Ball, error) {
	var out *domain.Ball
	err := s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdCorrectBall); err != nil {
			return nil, err
		}
		if err := corr.Replacement.Validate(); err != nil {
			return nil, err
		}
		meta := st.CurrentInnings()
		if meta == nil || !meta.Open() {
			return nil, domain.E(domain.ErrFailedPrecondition,
				"corrections only apply to the innings in progress")
		}

		var frames []events.Event
		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			orig, err := store.GetBall(ctx, tx, corr.BallID)
			if err != nil {
				return err
			}
			if orig.InningsID != meta.ID {
				return domain.E(domain.ErrFailedPrecondition,
					"ball %s belongs to a closed innings", corr.BallID)
			}
			rep := corr.Replacement
			if rep.OverNumber != orig.Ref.OverNumber || rep.BallInOver != orig.Ref.BallInOver {
				return domain.E(domain.ErrInvalidArgument,
					"replacement must keep the delivery at %s", orig.Ref.Decimal())
			}
			if rep.Legal() != orig.IsLegal {
				return domain.E(domain.ErrFailedPrecondition,
					"replacement changes the delivery's legality; later coordinates would shift")
			}

			ev := &domain.ScoringEvent{
				InningsID: meta.ID,
				ScorerID:  c.Subject,
				Side:      domain.SideUmpire,
				Kind:      domain.EventCorrection,
			}
			if err := s.appendEvent(ctx, tx, st, ev, corr); err != nil {
				return err
			}

			b := ballFromPayload(&rep, orig.Ref, s.now())
			b.ID = orig.ID
			b.OverID = orig.OverID
			b.EventID = ev.ID
			b.BowledAt = orig.BowledAt
			if err := store.ReplaceBall(ctx, tx, b); err != nil {
				return err
			}

			balls, err := store.BallsByInnings(ctx, tx, meta.ID)
			if err != nil {
				return err
			}
			rebuilt, err := projection.Rebuild(st.Match.Rules, meta, balls)
			if err != nil {
				return err
			}
			// Operational crease state survives the refold.
			rebuilt.StrikerID = st.Live.StrikerID
			rebuilt.NonStrikerID = st.Live.NonStrikerID
			rebuilt.BowlerID = st.Live.BowlerID
			st.Live = rebuilt
			out = b

			telemetry.Metrics.CorrectionsApplied.Inc()
			frames = append(frames, s.frame(st, events.TypeReconciliation,
				events.ReconciliationPayload{Balls: []*domain.Ball{b}, Score: scoreLine(st)}))
			return nil
		})
		return frames, err
	})
	return out, err
}

// raiseDispute appends the bookkeeping event, persists the dispute and
// builds its frame, inside the caller's transaction.
func (s *Service) raiseDispute(ctx context.Context, tx store.DBTX, st *State, d *domain.Dispute) (events.Event, error) {
	ev := &domain.ScoringEvent{
		InningsID: d.InningsID,
		ScorerID:  "system",
		Side:      domain.SideSystem,
		Kind:      domain.EventDisputeRaised,
	}
	if err := s.appendEvent(ctx, tx, st, ev, domain.DisputeRaisedPayload{
		DisputeID: d.ID,
		InningsID: d.InningsID,
		Ref:       d.Ref,
		Kind:      d.Kind,
		EventIDs:  d.EventIDs,
	}); err != nil {
		return events.Event{}, err
	}
	if err := store.InsertDispute(ctx, tx, d); err != nil {
		return events.Event{}, err
	}
	telemetry.Metrics.DisputesRaised.Inc()
	telemetry.Warnf("match %s: dispute %s (%s) on ball %s", st.Match.ID, d.ID, d.Kind, d.Ref.Decimal())
	return s.frame(st, events.TypeScoringDisputeRaised, events.DisputeRaisedPayload{
		Dispute:     d,
		Unconfirmed: d.Kind == domain.DisputeMissing,
	}), nil
}

// applyCommits folds released slots into the canonical record, in slot
// order, carrying every knock-on effect: wicket rows, over close,
// innings termination, match result.
func (s *Service) applyCommits(ctx context.Context, tx store.DBTX, st *State, commits []*consensus.Commit) ([]events.Event, []*domain.Ball, error) {
	var frames []events.Event
	var balls []*domain.Ball
	for _, commit := range commits {
		b := ballFromPayload(commit.Decision.Payload, commit.Ref, s.now())
		if len(commit.Decision.EventIDs) > 0 {
			b.EventID = commit.Decision.EventIDs[0]
		}
		// A held ball may predate the projector's view of the open over.
		if st.OpenOver != nil && st.OpenOver.Number == commit.Ref.OverNumber {
			b.OverID = st.OpenOver.ID
		}

		res, err := st.Live.ApplyBall(st.Match.Rules, b)
		if err != nil {
			return nil, nil, err
		}
		if err := store.InsertBall(ctx, tx, b); err != nil {
			return nil, nil, err
		}
		if err := store.InsertConsensus(ctx, tx, &domain.Consensus{
			BallID:     b.ID,
			Method:     commit.Decision.Method,
			Confidence: commit.Decision.Confidence,
			EventIDs:   commit.Decision.EventIDs,
			DecidedAt:  s.now().UTC(),
		}); err != nil {
			return nil, nil, err
		}
		if err := store.UpdateCrease(ctx, tx, b.InningsID,
			st.Live.StrikerID, st.Live.NonStrikerID, st.Live.BowlerID); err != nil {
			return nil, nil, err
		}
		if commit.DisputeID != "" {
			if err := s.settleDispute(ctx, tx, st, commit, &frames); err != nil {
				return nil, nil, err
			}
		}
		telemetry.Metrics.BallsCommitted.Inc()
		balls = append(balls, b)

		frames = append(frames, s.frame(st, events.TypeBallBowled, events.BallBowledPayload{
			Ball:       b,
			Score:      scoreLine(st),
			Method:     commit.Decision.Method,
			Confidence: commit.Decision.Confidence,
		}))
		if res.FallOfWicket != nil {
			frames = append(frames, s.frame(st, events.TypeWicketFallen, events.WicketFallenPayload{
				Wicket: b.Wicket,
				Score:  scoreLine(st),
			}))
		}
		for _, m := range res.Milestones {
			frames = append(frames, s.frame(st, events.TypeMilestoneAchieved, events.MilestonePayload{
				InningsID: b.InningsID,
				Milestone: m,
			}))
		}
		if res.OverCompleted {
			if err := store.CloseOverRow(ctx, tx, res.Over.OverID, s.now().UTC()); err != nil {
				return nil, nil, err
			}
			if st.OpenOver != nil && st.OpenOver.ID == res.Over.OverID {
				st.OpenOver = nil
			}
			frames = append(frames, s.frame(st, events.TypeOverComplete, events.OverCompletePayload{
				InningsID: b.InningsID,
				Over:      res.Over,
				Score:     scoreLine(st),
			}))
		}
		if res.Termination != domain.TerminationNone {
			f, err := s.closeInnings(ctx, tx, st, res.Termination, false)
			if err != nil {
				return nil, nil, err
			}
			frames = append(frames, f...)
		}
	}
	return frames, balls, nil
}

// settleDispute closes a dispute whose slot reached consensus without a
// manual resolution, e.g. the missing bench agreeing after expiry.
func (s *Service) settleDispute(ctx context.Context, tx store.DBTX, st *State, commit *consensus.Commit, frames *[]events.Event) error {
	d, err := store.GetDispute(ctx, tx, commit.DisputeID)
	if err != nil {
		return err
	}
	if d.Status != domain.DisputeOpen {
		return nil
	}
	now := s.now().UTC()
	d.Status = domain.DisputeResolved
	d.ResolvedAt = &now
	d.ResolvedBy = "consensus"
	d.Method = string(commit.Decision.Method)
	if err := store.ResolveDisputeRow(ctx, tx, d); err != nil {
		return err
	}
	telemetry.Metrics.DisputesResolved.Inc()
	*frames = append(*frames, s.frame(st, events.TypeDisputeResolved,
		events.DisputeResolvedPayload{Dispute: d}))
	return nil
}

// closeInnings ends the innings in progress, settles totals and drives
// the match lifecycle: break before the next innings, or completion
// with a result after the last one.
func (s *Service) closeInnings(ctx context.Context, tx store.DBTX, st *State, reason domain.TerminationReason, declared bool) ([]events.Event, error) {
	meta := st.CurrentInnings()
	now := s.now().UTC()
	meta.Termination = reason
	meta.Declared = declared
	meta.ClosedAt = &now

	ev := &domain.ScoringEvent{
		InningsID: meta.ID,
		ScorerID:  "system",
		Side:      domain.SideSystem,
		Kind:      domain.EventInningsClosed,
	}
	if err := s.appendEvent(ctx, tx, st, ev, domain.InningsClosedPayload{
		InningsID: meta.ID,
		Reason:    reason,
		Declared:  declared,
	}); err != nil {
		return nil, err
	}
	if err := store.CloseInningsRow(ctx, tx, meta); err != nil {
		return nil, err
	}
	if !st.Live.Closed {
		st.Live.Close(reason, declared)
	}
	st.Totals[meta.BattingTeamID] += st.Live.Runs
	telemetry.Infof("match %s: innings %d closed (%s) at %d/%d",
		st.Match.ID, meta.Number, reason, st.Live.Runs, st.Live.Wickets)

	frames := []events.Event{s.frame(st, events.TypeInningsComplete, events.InningsCompletePayload{
		InningsID: meta.ID,
		Reason:    reason,
		Score:     scoreLine(st),
	})}

	if len(st.Innings) == st.TotalInnings() {
		batting := meta.BattingTeamID
		bowling := st.Match.Opponent(batting)
		result := rules.Outcome(st.Totals[bowling], st.Totals[batting], st.Live.Wickets,
			st.Match.Rules, bowling, batting)
		if err := lifecycle.Complete(st.Match, result, now); err != nil {
			return nil, err
		}
		frames = append(frames, s.frame(st, events.TypeMatchComplete, events.MatchCompletePayload{
			Result: st.Match.Result,
		}))
		telemetry.Infof("match %s complete: %s", st.Match.ID, st.Match.Result.Summary)
	} else if err := lifecycle.BeginInningsBreak(st.Match); err != nil {
		return nil, err
	}
	if err := store.UpdateMatch(ctx, tx, st.Match); err != nil {
		return nil, err
	}
	return frames, nil
}

func ballFromPayload(p *domain.BallPayload, ref domain.BallRef, now time.Time) *domain.Ball {
	b := &domain.Ball{
		ID:           domain.NewID(),
		InningsID:    p.InningsID,
		OverID:       p.OverID,
		Ref:          ref,
		BowlerID:     p.BowlerID,
		StrikerID:    p.StrikerID,
		NonStrikerID: p.NonStrikerID,
		RunsOffBat:   p.RunsOffBat,
		IsBoundary:   p.IsBoundary,
		BoundaryKind: p.BoundaryKind,
		ExtraKind:    p.ExtraKind,
		ExtraRuns:    p.ExtraRuns,
		IsLegal:      p.Legal(),
		IsWicket:     p.IsWicket,
		ShotKind:     p.ShotKind,
		BowledAt:     now.UTC(),
	}
	if p.IsWicket && p.Wicket != nil {
		b.Wicket = &domain.Wicket{
			Kind:         p.Wicket.Kind,
			BatsmanOutID: p.Wicket.BatsmanOutID,
			FielderIDs:   p.Wicket.FielderIDs,
		}
	}
	return b
}

// SweepExpired walks the resident matches and closes out consensus
// slots that outlived the matching window. Called from the sweeper
// goroutine; each match is handled on its own queue.
func (s *Service) SweepExpired(ctx context.Context) {
	for _, mc := range s.reg.Resident() {
		err := mc.Do(ctx, func(st *State) error {
			if st.Match.State != domain.MatchLive || st.Engine.Pending() == 0 {
				return nil
			}
			var frames []events.Event
			err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
				disputes, commits, err := st.Engine.ExpireStale(ctx, tx, s.now(), st.LastSeq)
				if err != nil {
					return err
				}
				for _, d := range disputes {
					f, err := s.raiseDispute(ctx, tx, st, d)
					if err != nil {
						return err
					}
					frames = append(frames, f)
				}
				f, balls, err := s.applyCommits(ctx, tx, st, commits)
				if err != nil {
					return err
				}
				frames = append(frames, f...)
				if len(balls) > 1 {
					frames = append(frames, s.frame(st, events.TypeReconciliation,
						events.ReconciliationPayload{Balls: balls, Score: scoreLine(st)}))
				}
				telemetry.Metrics.HeldBalls.Set(int64(st.Engine.Pending()))
				return nil
			})
			if err != nil {
				return err
			}
			// Published here, on the match goroutine, so sweeper frames
			// interleave with command frames in commit order.
			for _, f := range frames {
				s.bus.Publish(f)
			}
			return nil
		})
		if err != nil {
			telemetry.Errorf("sweep match %s: %v", mc.MatchID, err)
		}
	}
}

// StartSweeper runs SweepExpired on a fixed cadence until ctx ends.
func (s *Service) StartSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpired(ctx)
			}
		}
	}()
}
