package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
)

// InsertBall writes one committed delivery and, when it carries a
// wicket, the wicket row with it.
func InsertBall(ctx context.Context, q DBTX, b *domain.Ball) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO balls
			(id, innings_id, over_id, over_number, ball_in_over, attempt,
			 bowler_id, striker_id, non_striker_id, runs_off_bat, is_boundary,
			 boundary_kind, extra_kind, extra_runs, is_legal, is_wicket,
			 shot_kind, event_id, bowled_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.InningsID, b.OverID, b.Ref.OverNumber, b.Ref.BallInOver, b.Ref.Attempt,
		b.BowlerID, b.StrikerID, b.NonStrikerID, b.RunsOffBat, boolInt(b.IsBoundary),
		string(b.BoundaryKind), string(b.ExtraKind), b.ExtraRuns, boolInt(b.IsLegal),
		boolInt(b.IsWicket), b.ShotKind, b.EventID, b.BowledAt.UnixMilli())
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert ball")
	}
	if b.IsWicket && b.Wicket != nil {
		if err := insertWicket(ctx, q, b.Wicket); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceBall rewrites a corrected delivery in place, id preserved, and
// reconciles its wicket row.
func ReplaceBall(ctx context.Context, q DBTX, b *domain.Ball) error {
	res, err := q.ExecContext(ctx, `
		UPDATE balls SET
			bowler_id = ?, striker_id = ?, non_striker_id = ?, runs_off_bat = ?,
			is_boundary = ?, boundary_kind = ?, extra_kind = ?, extra_runs = ?,
			is_legal = ?, is_wicket = ?, shot_kind = ?, event_id = ?
		WHERE id = ?`,
		b.BowlerID, b.StrikerID, b.NonStrikerID, b.RunsOffBat, boolInt(b.IsBoundary),
		string(b.BoundaryKind), string(b.ExtraKind), b.ExtraRuns, boolInt(b.IsLegal),
		boolInt(b.IsWicket), b.ShotKind, b.EventID, b.ID)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "replace ball")
	}
	if err := requireRow(res, "ball", b.ID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM wickets WHERE ball_id = ?`, b.ID); err != nil {
		return domain.Wrap(domain.ErrInternal, err, "clear wicket")
	}
	if b.IsWicket && b.Wicket != nil {
		return insertWicket(ctx, q, b.Wicket)
	}
	return nil
}

func insertWicket(ctx context.Context, q DBTX, w *domain.Wicket) error {
	fielders, err := json.Marshal(w.FielderIDs)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "encode fielders")
	}
	if w.ID == "" {
		w.ID = domain.NewID()
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO wickets
			(id, innings_id, ball_id, kind, batsman_out_id, bowler_id,
			 fielders_json, number, score_at_fall, over_decimal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.InningsID, w.BallID, string(w.Kind), w.BatsmanOutID, w.BowlerID,
		string(fielders), w.Number, w.ScoreAtFall, w.OverDecimal)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert wicket")
	}
	return nil
}

// GetBall loads one committed delivery with its wicket, if any.
func GetBall(ctx context.Context, q DBTX, id string) (*domain.Ball, error) {
	row := q.QueryRowContext(ctx, ballSelect+` WHERE b.id = ?`, id)
	b, err := scanBall(row)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.ErrNotFound, "ball %s not found", id)
	}
	return b, err
}

// BallsByInnings returns the committed deliveries of an innings in slot
// order, which is the canonical fold order.
func BallsByInnings(ctx context.Context, q DBTX, inningsID string) ([]*domain.Ball, error) {
	rows, err := q.QueryContext(ctx,
		ballSelect+` WHERE b.innings_id = ? ORDER BY b.over_number, b.ball_in_over, b.attempt`,
		inningsID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list balls")
	}
	defer rows.Close()
	var out []*domain.Ball
	for rows.Next() {
		b, err := scanBall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BallsByOver returns one over's committed deliveries in slot order.
func BallsByOver(ctx context.Context, q DBTX, overID string) ([]*domain.Ball, error) {
	rows, err := q.QueryContext(ctx,
		ballSelect+` WHERE b.over_id = ? ORDER BY b.ball_in_over, b.attempt`, overID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list over balls")
	}
	defer rows.Close()
	var out []*domain.Ball
	for rows.Next() {
		b, err := scanBall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// WicketsByInnings lists an innings' wickets in fall order.
func WicketsByInnings(ctx context.Context, q DBTX, inningsID string) ([]*domain.Wicket, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, innings_id, ball_id, kind, batsman_out_id, bowler_id,
		       fielders_json, number, score_at_fall, over_decimal
		FROM wickets WHERE innings_id = ? ORDER BY number`, inningsID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list wickets")
	}
	defer rows.Close()
	var out []*domain.Wicket
	for rows.Next() {
		w, err := scanWicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

const ballSelect = `
	SELECT b.id, b.innings_id, b.over_id, b.over_number, b.ball_in_over, b.attempt,
	       b.bowler_id, b.striker_id, b.non_striker_id, b.runs_off_bat, b.is_boundary,
	       b.boundary_kind, b.extra_kind, b.extra_runs, b.is_legal, b.is_wicket,
	       b.shot_kind, b.event_id, b.bowled_at_ms,
	       w.id, w.kind, w.batsman_out_id, w.bowler_id, w.fielders_json,
	       w.number, w.score_at_fall, w.over_decimal
	FROM balls b LEFT JOIN wickets w ON w.ball_id = b.id`

func scanBall(r rowScanner) (*domain.Ball, error) {
	var b domain.Ball
	var boundaryKind, extraKind string
	var isBoundary, isLegal, isWicket int
	var bowledMs int64
	var wID, wKind, wOut, wBowler, wFielders, wDecimal sql.NullString
	var wNumber, wScore sql.NullInt64
	err := r.Scan(&b.ID, &b.InningsID, &b.OverID, &b.Ref.OverNumber, &b.Ref.BallInOver,
		&b.Ref.Attempt, &b.BowlerID, &b.StrikerID, &b.NonStrikerID, &b.RunsOffBat,
		&isBoundary, &boundaryKind, &extraKind, &b.ExtraRuns, &isLegal, &isWicket,
		&b.ShotKind, &b.EventID, &bowledMs,
		&wID, &wKind, &wOut, &wBowler, &wFielders, &wNumber, &wScore, &wDecimal)
	if err != nil {
		return nil, err
	}
	b.IsBoundary = isBoundary != 0
	b.BoundaryKind = domain.BoundaryKind(boundaryKind)
	b.ExtraKind = domain.ExtraKind(extraKind)
	b.IsLegal = isLegal != 0
	b.IsWicket = isWicket != 0
	b.BowledAt = time.UnixMilli(bowledMs).UTC()
	if b.IsWicket && wID.Valid {
		w := &domain.Wicket{
			ID:           wID.String,
			InningsID:    b.InningsID,
			BallID:       b.ID,
			Kind:         domain.DismissalKind(wKind.String),
			BatsmanOutID: wOut.String,
			BowlerID:     wBowler.String,
			Number:       int(wNumber.Int64),
			ScoreAtFall:  int(wScore.Int64),
			OverDecimal:  wDecimal.String,
		}
		if wFielders.Valid && wFielders.String != "" {
			if err := json.Unmarshal([]byte(wFielders.String), &w.FielderIDs); err != nil {
				return nil, domain.Wrap(domain.ErrInternal, err, "decode fielders")
			}
		}
		b.Wicket = w
	}
	return &b, nil
}

func scanWicket(r rowScanner) (*domain.Wicket, error) {
	var w domain.Wicket
	var kind, fielders string
	err := r.Scan(&w.ID, &w.InningsID, &w.BallID, &kind, &w.BatsmanOutID,
		&w.BowlerID, &fielders, &w.Number, &w.ScoreAtFall, &w.OverDecimal)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "scan wicket")
	}
	w.Kind = domain.DismissalKind(kind)
	if fielders != "" {
		if err := json.Unmarshal([]byte(fielders), &w.FielderIDs); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "decode fielders")
		}
	}
	return &w, nil
}
