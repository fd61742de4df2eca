package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
)

// InsertDispute writes a freshly raised dispute.
func InsertDispute(ctx context.Context, q DBTX, d *domain.Dispute) error {
	eventIDs, err := json.Marshal(d.EventIDs)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "encode dispute events")
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO disputes
			(id, match_id, innings_id, over_number, ball_in_over, attempt,
			 kind, status, event_ids_json, raised_at_ms, resolved_at_ms, resolved_by, method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.MatchID, d.InningsID, d.Ref.OverNumber, d.Ref.BallInOver, d.Ref.Attempt,
		string(d.Kind), string(d.Status), string(eventIDs), d.RaisedAt.UnixMilli(),
		nullMillis(d.ResolvedAt), d.ResolvedBy, d.Method)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert dispute")
	}
	return nil
}

// ResolveDisputeRow marks a dispute settled.
func ResolveDisputeRow(ctx context.Context, q DBTX, d *domain.Dispute) error {
	res, err := q.ExecContext(ctx, `
		UPDATE disputes SET status = ?, resolved_at_ms = ?, resolved_by = ?, method = ?
		WHERE id = ?`,
		string(d.Status), nullMillis(d.ResolvedAt), d.ResolvedBy, d.Method, d.ID)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "resolve dispute")
	}
	return requireRow(res, "dispute", d.ID)
}

// GetDispute loads one dispute by id.
func GetDispute(ctx context.Context, q DBTX, id string) (*domain.Dispute, error) {
	row := q.QueryRowContext(ctx, disputeSelect+` WHERE id = ?`, id)
	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.ErrNotFound, "dispute %s not found", id)
	}
	return d, err
}

// DisputesByMatch lists a match's disputes, optionally by status.
func DisputesByMatch(ctx context.Context, q DBTX, matchID string, status domain.DisputeStatus) ([]*domain.Dispute, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = q.QueryContext(ctx,
			disputeSelect+` WHERE match_id = ? AND status = ? ORDER BY raised_at_ms`,
			matchID, string(status))
	} else {
		rows, err = q.QueryContext(ctx,
			disputeSelect+` WHERE match_id = ? ORDER BY raised_at_ms`, matchID)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list disputes")
	}
	defer rows.Close()
	var out []*domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const disputeSelect = `
	SELECT id, match_id, innings_id, over_number, ball_in_over, attempt,
	       kind, status, event_ids_json, raised_at_ms, resolved_at_ms, resolved_by, method
	FROM disputes`

func scanDispute(r rowScanner) (*domain.Dispute, error) {
	var d domain.Dispute
	var kind, status, eventIDs string
	var raisedMs int64
	var resolvedMs sql.NullInt64
	err := r.Scan(&d.ID, &d.MatchID, &d.InningsID, &d.Ref.OverNumber, &d.Ref.BallInOver,
		&d.Ref.Attempt, &kind, &status, &eventIDs, &raisedMs, &resolvedMs,
		&d.ResolvedBy, &d.Method)
	if err != nil {
		return nil, err
	}
	d.Kind = domain.DisputeKind(kind)
	d.Status = domain.DisputeStatus(status)
	if err := json.Unmarshal([]byte(eventIDs), &d.EventIDs); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "decode dispute events")
	}
	d.RaisedAt = time.UnixMilli(raisedMs).UTC()
	d.ResolvedAt = millisPtr(resolvedMs)
	return &d, nil
}

// InsertConsensus records how a committed ball earned its place.
func InsertConsensus(ctx context.Context, q DBTX, c *domain.Consensus) error {
	eventIDs, err := json.Marshal(c.EventIDs)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "encode consensus events")
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO consensus (ball_id, method, confidence, event_ids_json, decided_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ball_id) DO UPDATE SET
			method = excluded.method, confidence = excluded.confidence,
			event_ids_json = excluded.event_ids_json, decided_at_ms = excluded.decided_at_ms`,
		c.BallID, string(c.Method), c.Confidence, string(eventIDs), c.DecidedAt.UnixMilli())
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert consensus")
	}
	return nil
}

// GetConsensus loads the consensus record for a ball.
func GetConsensus(ctx context.Context, q DBTX, ballID string) (*domain.Consensus, error) {
	var c domain.Consensus
	var method, eventIDs string
	var decidedMs int64
	err := q.QueryRowContext(ctx, `
		SELECT ball_id, method, confidence, event_ids_json, decided_at_ms
		FROM consensus WHERE ball_id = ?`, ballID).
		Scan(&c.BallID, &method, &c.Confidence, &eventIDs, &decidedMs)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.ErrNotFound, "consensus for ball %s not found", ballID)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "get consensus")
	}
	c.Method = domain.ConsensusMethod(method)
	if err := json.Unmarshal([]byte(eventIDs), &c.EventIDs); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "decode consensus events")
	}
	c.DecidedAt = time.UnixMilli(decidedMs).UTC()
	return &c, nil
}
