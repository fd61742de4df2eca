package consensus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/thirdumpire/crease/internal/canonical"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/store"
)

// saveSlot upserts a slot row inside the caller's transaction, so slot
// state and the event append land or roll back together.
func (e *Engine) saveSlot(ctx context.Context, q store.DBTX, s *Slot) error {
	eventIDs, err := json.Marshal(s.EventIDs())
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "encode slot event ids")
	}
	decision := ""
	if s.Decision != nil {
		b, err := json.Marshal(s.Decision)
		if err != nil {
			return domain.Wrap(domain.ErrInternal, err, "encode slot decision")
		}
		decision = string(b)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO slots
			(match_id, innings_id, over_number, ball_in_over, attempt,
			 status, event_ids_json, dispute_id, decision_json, opened_at_ms, opened_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id, innings_id, over_number, ball_in_over, attempt)
		DO UPDATE SET status = excluded.status,
		              event_ids_json = excluded.event_ids_json,
		              dispute_id = excluded.dispute_id,
		              decision_json = excluded.decision_json`,
		e.matchID, s.InningsID, s.Ref.OverNumber, s.Ref.BallInOver, s.Ref.Attempt,
		string(s.Status), string(eventIDs), s.DisputeID, decision,
		s.OpenedAt.UnixMilli(), s.OpenedSeq,
	)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "save slot %s", s.Ref.Decimal())
	}
	return nil
}

// Load rebuilds an engine from the slots table after a restart.
// Committed rows only feed the attempt counters; pending rows get their
// calls re-read from the event log so matching picks up where it left
// off.
func Load(ctx context.Context, q store.DBTX, matchID string, cfg Config) (*Engine, error) {
	e := New(matchID, cfg)
	rows, err := q.QueryContext(ctx, `
		SELECT innings_id, over_number, ball_in_over, attempt,
		       status, event_ids_json, dispute_id, decision_json, opened_at_ms, opened_seq
		FROM slots WHERE match_id = ?
		ORDER BY opened_seq ASC`, matchID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "load slots")
	}
	defer rows.Close()

	for rows.Next() {
		var s Slot
		var status, eventIDs, decision string
		var openedMillis int64
		err := rows.Scan(&s.InningsID, &s.Ref.OverNumber, &s.Ref.BallInOver, &s.Ref.Attempt,
			&status, &eventIDs, &s.DisputeID, &decision, &openedMillis, &s.OpenedSeq)
		if err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "scan slot")
		}
		s.Status = SlotStatus(status)
		s.OpenedAt = time.UnixMilli(openedMillis).UTC()

		key := coord{s.InningsID, s.Ref.OverNumber, s.Ref.BallInOver}
		if s.Ref.Attempt+1 > e.attempts[key] {
			e.attempts[key] = s.Ref.Attempt + 1
		}
		if s.Status == SlotCommitted {
			continue
		}

		var ids []string
		if err := json.Unmarshal([]byte(eventIDs), &ids); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "decode slot event ids")
		}
		for _, id := range ids {
			ev, err := eventlog.ByID(ctx, q, matchID, id)
			if err != nil {
				return nil, err
			}
			if ev.Kind != domain.EventBallRecorded {
				continue
			}
			var p domain.BallPayload
			if err := domain.DecodePayload(ev.Payload, &p); err != nil {
				return nil, err
			}
			canon, err := canonical.Transform(ev.Payload)
			if err != nil {
				return nil, domain.Wrap(domain.ErrInternal, err, "canonicalize call")
			}
			s.calls = append(s.calls, &call{
				EventID:   ev.ID,
				ScorerID:  ev.ScorerID,
				Side:      ev.Side,
				Payload:   &p,
				Canonical: canon,
				At:        ev.Timestamp,
				Seq:       ev.Seq,
			})
		}
		if decision != "" {
			var d Decision
			if err := json.Unmarshal([]byte(decision), &d); err != nil {
				return nil, domain.Wrap(domain.ErrInternal, err, "decode slot decision")
			}
			s.Decision = &d
		}
		e.slots = append(e.slots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "load slots")
	}
	return e, nil
}
