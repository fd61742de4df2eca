package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
)

// InsertMatch writes a freshly created match.
func InsertMatch(ctx context.Context, q DBTX, m *domain.Match) error {
	rules, err := json.Marshal(m.Rules)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "encode rules")
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO matches
			(id, name, venue, home_team_id, away_team_id, rules_json, state,
			 toss_json, result_json, created_by, created_at_ms, started_at_ms, ended_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Venue, m.HomeTeamID, m.AwayTeamID, string(rules),
		string(m.State), nullJSON(m.Toss), nullJSON(m.Result), m.CreatedBy,
		m.CreatedAt.UnixMilli(), nullMillis(m.StartedAt), nullMillis(m.EndedAt),
	)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert match")
	}
	return nil
}

// UpdateMatch rewrites the mutable columns of a match row.
func UpdateMatch(ctx context.Context, q DBTX, m *domain.Match) error {
	rules, err := json.Marshal(m.Rules)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "encode rules")
	}
	res, err := q.ExecContext(ctx, `
		UPDATE matches SET
			name = ?, venue = ?, rules_json = ?, state = ?, toss_json = ?,
			result_json = ?, started_at_ms = ?, ended_at_ms = ?
		WHERE id = ?`,
		m.Name, m.Venue, string(rules), string(m.State), nullJSON(m.Toss),
		nullJSON(m.Result), nullMillis(m.StartedAt), nullMillis(m.EndedAt), m.ID,
	)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "update match")
	}
	return requireRow(res, "match", m.ID)
}

// GetMatch loads one match by id.
func GetMatch(ctx context.Context, q DBTX, id string) (*domain.Match, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, venue, home_team_id, away_team_id, rules_json, state,
		       toss_json, result_json, created_by, created_at_ms, started_at_ms, ended_at_ms
		FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.ErrNotFound, "match %s not found", id)
	}
	return m, err
}

// ListMatches returns matches, optionally filtered by state, newest first.
func ListMatches(ctx context.Context, q DBTX, state domain.MatchState, limit int) ([]*domain.Match, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if state != "" {
		rows, err = q.QueryContext(ctx, `
			SELECT id, name, venue, home_team_id, away_team_id, rules_json, state,
			       toss_json, result_json, created_by, created_at_ms, started_at_ms, ended_at_ms
			FROM matches WHERE state = ? ORDER BY created_at_ms DESC LIMIT ?`, string(state), limit)
	} else {
		rows, err = q.QueryContext(ctx, `
			SELECT id, name, venue, home_team_id, away_team_id, rules_json, state,
			       toss_json, result_json, created_by, created_at_ms, started_at_ms, ended_at_ms
			FROM matches ORDER BY created_at_ms DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list matches")
	}
	defer rows.Close()

	var out []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMatch(r rowScanner) (*domain.Match, error) {
	var m domain.Match
	var rulesJSON, state string
	var tossJSON, resultJSON sql.NullString
	var createdMs int64
	var startedMs, endedMs sql.NullInt64
	err := r.Scan(&m.ID, &m.Name, &m.Venue, &m.HomeTeamID, &m.AwayTeamID,
		&rulesJSON, &state, &tossJSON, &resultJSON, &m.CreatedBy,
		&createdMs, &startedMs, &endedMs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rulesJSON), &m.Rules); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "decode rules for match %s", m.ID)
	}
	m.State = domain.MatchState(state)
	if tossJSON.Valid {
		m.Toss = new(domain.Toss)
		if err := json.Unmarshal([]byte(tossJSON.String), m.Toss); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "decode toss for match %s", m.ID)
		}
	}
	if resultJSON.Valid {
		m.Result = new(domain.Result)
		if err := json.Unmarshal([]byte(resultJSON.String), m.Result); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "decode result for match %s", m.ID)
		}
	}
	m.CreatedAt = time.UnixMilli(createdMs).UTC()
	m.StartedAt = millisPtr(startedMs)
	m.EndedAt = millisPtr(endedMs)
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullJSON(v any) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case *domain.Toss:
		if x == nil {
			return nil
		}
	case *domain.Result:
		if x == nil {
			return nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(raw)
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func requireRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "rows affected")
	}
	if n == 0 {
		return domain.E(domain.ErrNotFound, "%s %s not found", what, id)
	}
	return nil
}
