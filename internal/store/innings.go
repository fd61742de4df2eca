package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
)

// InsertInnings writes a newly opened innings.
func InsertInnings(ctx context.Context, q DBTX, inn *domain.Innings) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO innings
			(id, match_id, number, batting_team_id, bowling_team_id, target,
			 declared, termination, opened_at_ms, closed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inn.ID, inn.MatchID, inn.Number, inn.BattingTeamID, inn.BowlingTeamID,
		nullInt(inn.Target), boolInt(inn.Declared), string(inn.Termination),
		inn.OpenedAt.UnixMilli(), nullMillis(inn.ClosedAt))
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert innings")
	}
	return nil
}

// CloseInningsRow records why and when an innings ended.
func CloseInningsRow(ctx context.Context, q DBTX, inn *domain.Innings) error {
	res, err := q.ExecContext(ctx, `
		UPDATE innings SET declared = ?, termination = ?, closed_at_ms = ?
		WHERE id = ?`,
		boolInt(inn.Declared), string(inn.Termination), nullMillis(inn.ClosedAt), inn.ID)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "close innings")
	}
	return requireRow(res, "innings", inn.ID)
}

// UpdateCrease persists the operational crease state, which is the one
// piece of live state not derivable from committed balls alone.
func UpdateCrease(ctx context.Context, q DBTX, inningsID, strikerID, nonStrikerID, bowlerID string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE innings SET striker_id = ?, non_striker_id = ?, bowler_id = ?
		WHERE id = ?`, strikerID, nonStrikerID, bowlerID, inningsID)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "update crease")
	}
	return requireRow(res, "innings", inningsID)
}

// GetCrease reads back the persisted crease state.
func GetCrease(ctx context.Context, q DBTX, inningsID string) (striker, nonStriker, bowler string, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT striker_id, non_striker_id, bowler_id FROM innings WHERE id = ?`, inningsID).
		Scan(&striker, &nonStriker, &bowler)
	if err == sql.ErrNoRows {
		return "", "", "", domain.E(domain.ErrNotFound, "innings %s not found", inningsID)
	}
	if err != nil {
		return "", "", "", domain.Wrap(domain.ErrInternal, err, "get crease")
	}
	return striker, nonStriker, bowler, nil
}

// GetInnings loads one innings by id.
func GetInnings(ctx context.Context, q DBTX, id string) (*domain.Innings, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, match_id, number, batting_team_id, bowling_team_id, target,
		       declared, termination, opened_at_ms, closed_at_ms
		FROM innings WHERE id = ?`, id)
	inn, err := scanInnings(row)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.ErrNotFound, "innings %s not found", id)
	}
	return inn, err
}

// InningsByMatch lists a match's innings in batting order.
func InningsByMatch(ctx context.Context, q DBTX, matchID string) ([]*domain.Innings, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, match_id, number, batting_team_id, bowling_team_id, target,
		       declared, termination, opened_at_ms, closed_at_ms
		FROM innings WHERE match_id = ? ORDER BY number`, matchID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list innings")
	}
	defer rows.Close()
	var out []*domain.Innings
	for rows.Next() {
		inn, err := scanInnings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inn)
	}
	return out, rows.Err()
}

func scanInnings(r rowScanner) (*domain.Innings, error) {
	var inn domain.Innings
	var target sql.NullInt64
	var declared int
	var termination string
	var openedMs int64
	var closedMs sql.NullInt64
	err := r.Scan(&inn.ID, &inn.MatchID, &inn.Number, &inn.BattingTeamID,
		&inn.BowlingTeamID, &target, &declared, &termination, &openedMs, &closedMs)
	if err != nil {
		return nil, err
	}
	if target.Valid {
		v := int(target.Int64)
		inn.Target = &v
	}
	inn.Declared = declared != 0
	inn.Termination = domain.TerminationReason(termination)
	inn.OpenedAt = time.UnixMilli(openedMs).UTC()
	inn.ClosedAt = millisPtr(closedMs)
	return &inn, nil
}

// InsertOver writes a newly opened over.
func InsertOver(ctx context.Context, q DBTX, o *domain.Over) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO overs (id, innings_id, number, bowler_id, opened_at_ms, closed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.InningsID, o.Number, o.BowlerID, o.OpenedAt.UnixMilli(), nullMillis(o.ClosedAt))
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert over")
	}
	return nil
}

// CloseOverRow stamps an over's completion time.
func CloseOverRow(ctx context.Context, q DBTX, overID string, closedAt time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE overs SET closed_at_ms = ? WHERE id = ?`, closedAt.UnixMilli(), overID)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "close over")
	}
	return requireRow(res, "over", overID)
}

// OversByInnings lists an innings' overs in bowling order.
func OversByInnings(ctx context.Context, q DBTX, inningsID string) ([]*domain.Over, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, innings_id, number, bowler_id, opened_at_ms, closed_at_ms
		FROM overs WHERE innings_id = ? ORDER BY number`, inningsID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list overs")
	}
	defer rows.Close()
	var out []*domain.Over
	for rows.Next() {
		var o domain.Over
		var openedMs int64
		var closedMs sql.NullInt64
		if err := rows.Scan(&o.ID, &o.InningsID, &o.Number, &o.BowlerID, &openedMs, &closedMs); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "scan over")
		}
		o.OpenedAt = time.UnixMilli(openedMs).UTC()
		o.ClosedAt = millisPtr(closedMs)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
