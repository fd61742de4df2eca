package eventlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/thirdumpire/crease/internal/canonical"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS scoring_events (
	id          TEXT PRIMARY KEY,
	match_id    TEXT NOT NULL,
	innings_id  TEXT NOT NULL DEFAULT '',
	seq         INTEGER NOT NULL,
	prior_hash  TEXT NOT NULL,
	event_hash  TEXT NOT NULL,
	scorer_id   TEXT NOT NULL,
	side        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     BLOB NOT NULL,
	signature   TEXT NOT NULL DEFAULT '',
	event_ts_ms INTEGER NOT NULL,
	UNIQUE (match_id, seq)
);`

// Migrate creates the event table if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return domain.Wrap(domain.ErrInternal, err, "event log schema")
	}
	return nil
}

// Append assigns the next per-match sequence number, links the event to
// the chain tail and inserts it. The caller must hold the match's
// command queue and pass the commit transaction; the payload must
// already be canonical bytes.
func Append(ctx context.Context, q store.DBTX, ev *domain.ScoringEvent) error {
	seq, tailHash, err := Tail(ctx, q, ev.MatchID)
	if err != nil {
		return err
	}
	ev.Seq = seq + 1
	ev.PriorHash = tailHash
	ev.EventHash, err = EventHash(ev.PriorHash, ev.ScorerID, ev.Timestamp, ev.Payload)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "hash event")
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO scoring_events
			(id, match_id, innings_id, seq, prior_hash, event_hash,
			 scorer_id, side, kind, payload, signature, event_ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.MatchID, ev.InningsID, ev.Seq, ev.PriorHash, ev.EventHash,
		ev.ScorerID, string(ev.Side), string(ev.Kind), []byte(ev.Payload),
		ev.Signature, ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "append event seq %d", ev.Seq)
	}
	return nil
}

// Tail returns the last sequence number and event hash for a match.
// A match with no events yet reads as (0, GenesisHash).
func Tail(ctx context.Context, q store.DBTX, matchID string) (int64, string, error) {
	var seq int64
	var hash string
	err := q.QueryRowContext(ctx, `
		SELECT seq, event_hash FROM scoring_events
		WHERE match_id = ? ORDER BY seq DESC LIMIT 1`, matchID).Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return 0, GenesisHash, nil
	}
	if err != nil {
		return 0, "", domain.Wrap(domain.ErrInternal, err, "read chain tail")
	}
	return seq, hash, nil
}

// ReadRange returns events with fromSeq <= seq <= toSeq in sequence
// order. A toSeq of zero or less means "to the end".
func ReadRange(ctx context.Context, q store.DBTX, matchID string, fromSeq, toSeq int64) ([]*domain.ScoringEvent, error) {
	if fromSeq < 1 {
		fromSeq = 1
	}
	var rows *sql.Rows
	var err error
	if toSeq > 0 {
		rows, err = q.QueryContext(ctx, `
			SELECT id, match_id, innings_id, seq, prior_hash, event_hash,
			       scorer_id, side, kind, payload, signature, event_ts_ms
			FROM scoring_events
			WHERE match_id = ? AND seq >= ? AND seq <= ?
			ORDER BY seq ASC`, matchID, fromSeq, toSeq)
	} else {
		rows, err = q.QueryContext(ctx, `
			SELECT id, match_id, innings_id, seq, prior_hash, event_hash,
			       scorer_id, side, kind, payload, signature, event_ts_ms
			FROM scoring_events
			WHERE match_id = ? AND seq >= ?
			ORDER BY seq ASC`, matchID, fromSeq)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "read events")
	}
	defer rows.Close()

	var out []*domain.ScoringEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "read events")
	}
	return out, nil
}

// ReadAll returns a match's full log in sequence order.
func ReadAll(ctx context.Context, q store.DBTX, matchID string) ([]*domain.ScoringEvent, error) {
	return ReadRange(ctx, q, matchID, 1, 0)
}

// ByID loads one event by its id.
func ByID(ctx context.Context, q store.DBTX, matchID, id string) (*domain.ScoringEvent, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, match_id, innings_id, seq, prior_hash, event_hash,
		       scorer_id, side, kind, payload, signature, event_ts_ms
		FROM scoring_events WHERE match_id = ? AND id = ?`, matchID, id)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, domain.E(domain.ErrNotFound, "event %s not found", id)
	}
	return ev, nil
}

// Matches lists every match id present in the log.
func Matches(ctx context.Context, q store.DBTX) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT match_id FROM scoring_events ORDER BY match_id`)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list matches")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "scan match id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// VerifyChain walks a match's log from the genesis sentinel and
// recomputes every link. It reports the first sequence number whose
// stored bytes no longer hash to the recorded value, or whose linkage
// or numbering is broken. A missing match verifies trivially.
func VerifyChain(ctx context.Context, q store.DBTX, matchID string) (bool, int64, error) {
	events, err := ReadAll(ctx, q, matchID)
	if err != nil {
		return false, 0, err
	}
	priorHash := GenesisHash
	var priorSeq int64
	for _, ev := range events {
		if ev.Seq != priorSeq+1 {
			return false, ev.Seq, nil
		}
		if ev.PriorHash != priorHash {
			return false, ev.Seq, nil
		}
		payload, err := canonical.Transform(ev.Payload)
		if err != nil {
			return false, ev.Seq, nil
		}
		want, err := EventHash(ev.PriorHash, ev.ScorerID, ev.Timestamp, payload)
		if err != nil {
			return false, ev.Seq, nil
		}
		if want != ev.EventHash {
			return false, ev.Seq, nil
		}
		priorHash = ev.EventHash
		priorSeq = ev.Seq
	}
	return true, 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*domain.ScoringEvent, error) {
	var ev domain.ScoringEvent
	var side, kind string
	var payload []byte
	var tsMillis int64
	err := r.Scan(&ev.ID, &ev.MatchID, &ev.InningsID, &ev.Seq, &ev.PriorHash,
		&ev.EventHash, &ev.ScorerID, &side, &kind, &payload, &ev.Signature, &tsMillis)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "scan event")
	}
	ev.Side = domain.ScorerSide(side)
	ev.Kind = domain.EventKind(kind)
	ev.Payload = payload
	ev.Timestamp = time.UnixMilli(tsMillis).UTC()
	return &ev, nil
}
