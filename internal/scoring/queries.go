package scoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/events"
	"github.com/thirdumpire/crease/internal/store"
	"github.com/thirdumpire/crease/internal/telemetry"
)

// Match returns one match record straight from storage.
func (s *Service) Match(ctx context.Context, matchID string) (*domain.Match, error) {
	return store.GetMatch(ctx, s.db, matchID)
}

// Matches lists matches, optionally filtered by state.
func (s *Service) Matches(ctx context.Context, state domain.MatchState, limit int) ([]*domain.Match, error) {
	return store.ListMatches(ctx, s.db, state, limit)
}

// Snapshot renders the full live view of a match. The marshal happens
// on the match goroutine so the aggregate is never read mid-command;
// callers get immutable bytes they can serve concurrently.
func (s *Service) Snapshot(ctx context.Context, matchID string) (json.RawMessage, error) {
	start := time.Now()
	mc, err := s.reg.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	err = mc.Do(ctx, func(st *State) error {
		payload := events.SnapshotPayload{
			Match:   st.Match,
			Innings: st.Live,
			LastSeq: st.LastSeq,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return domain.Wrap(domain.ErrInternal, err, "encode snapshot")
		}
		raw = b
		return nil
	})
	telemetry.Metrics.SnapshotLatency.Record(time.Since(start))
	return raw, err
}

// Resume builds the catch-up frame for a subscriber reconnecting with a
// last-seen sequence number. Nil when the subscriber is already current.
func (s *Service) Resume(ctx context.Context, matchID string, fromSeq int64) (*events.ReconciliationPayload, error) {
	mc, err := s.reg.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	var out *events.ReconciliationPayload
	err = mc.Do(ctx, func(st *State) error {
		if fromSeq >= st.LastSeq || st.Live == nil {
			return nil
		}
		balls, err := store.BallsByInnings(ctx, s.db, st.Live.InningsID)
		if err != nil {
			return err
		}
		out = &events.ReconciliationPayload{Balls: balls, Score: scoreLine(st)}
		return nil
	})
	return out, err
}

// Innings returns every innings of a match in order.
func (s *Service) Innings(ctx context.Context, matchID string) ([]*domain.Innings, error) {
	return store.InningsByMatch(ctx, s.db, matchID)
}

// Balls returns the canonical deliveries of one innings in slot order.
func (s *Service) Balls(ctx context.Context, inningsID string) ([]*domain.Ball, error) {
	return store.BallsByInnings(ctx, s.db, inningsID)
}

// Disputes lists a match's disputes, optionally filtered by status.
func (s *Service) Disputes(ctx context.Context, matchID string, status domain.DisputeStatus) ([]*domain.Dispute, error) {
	return store.DisputesByMatch(ctx, s.db, matchID, status)
}

// Events reads a slice of the raw event log, for audit and resume.
func (s *Service) Events(ctx context.Context, matchID string, fromSeq, toSeq int64) ([]*domain.ScoringEvent, error) {
	return eventlog.ReadRange(ctx, s.db, matchID, fromSeq, toSeq)
}

// VerifyChain walks a match's hash chain from genesis. A break is
// evidence of tampering or corruption, not a user error.
func (s *Service) VerifyChain(ctx context.Context, matchID string) (bool, int64, error) {
	ok, brokenSeq, err := eventlog.VerifyChain(ctx, s.db, matchID)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		telemetry.Metrics.ChainBreaks.Inc()
		telemetry.Errorf("match %s: hash chain broken at seq %d", matchID, brokenSeq)
	}
	return ok, brokenSeq, nil
}
