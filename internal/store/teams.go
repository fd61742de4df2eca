package store

import (
	"context"
	"database/sql"

	"github.com/thirdumpire/crease/internal/domain"
)

// UpsertTeam inserts or renames a team.
func UpsertTeam(ctx context.Context, q DBTX, t *domain.Team) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO teams (id, name, short_name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, short_name = excluded.short_name`,
		t.ID, t.Name, t.ShortName)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "upsert team")
	}
	return nil
}

// GetTeam loads one team by id.
func GetTeam(ctx context.Context, q DBTX, id string) (*domain.Team, error) {
	var t domain.Team
	err := q.QueryRowContext(ctx,
		`SELECT id, name, short_name FROM teams WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.ShortName)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.ErrNotFound, "team %s not found", id)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "get team")
	}
	return &t, nil
}

// InsertPlayer adds a player to a team roster.
func InsertPlayer(ctx context.Context, q DBTX, p *domain.Player) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO players (id, team_id, name) VALUES (?, ?, ?)`,
		p.ID, p.TeamID, p.Name)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "insert player")
	}
	return nil
}

// GetPlayer loads one player by id.
func GetPlayer(ctx context.Context, q DBTX, id string) (*domain.Player, error) {
	var p domain.Player
	err := q.QueryRowContext(ctx,
		`SELECT id, team_id, name FROM players WHERE id = ?`, id).
		Scan(&p.ID, &p.TeamID, &p.Name)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.ErrNotFound, "player %s not found", id)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "get player")
	}
	return &p, nil
}

// PlayersByTeam lists a roster in name order.
func PlayersByTeam(ctx context.Context, q DBTX, teamID string) ([]*domain.Player, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, team_id, name FROM players WHERE team_id = ? ORDER BY name`, teamID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list players")
	}
	defer rows.Close()
	var out []*domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Name); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "scan player")
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ReplaceXI swaps a side's playing eleven wholesale. Called only before
// the match goes live.
func ReplaceXI(ctx context.Context, q DBTX, xi *domain.PlayingXI) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM playing_xi WHERE match_id = ? AND team_id = ?`,
		xi.MatchID, xi.TeamID); err != nil {
		return domain.Wrap(domain.ErrInternal, err, "clear eleven")
	}
	for _, e := range xi.Entries {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO playing_xi (match_id, team_id, player_id, batting_order, is_captain, is_keeper)
			VALUES (?, ?, ?, ?, ?, ?)`,
			xi.MatchID, xi.TeamID, e.PlayerID, e.BattingOrder,
			boolInt(e.IsCaptain), boolInt(e.IsKeeper)); err != nil {
			return domain.Wrap(domain.ErrInternal, err, "insert eleven entry")
		}
	}
	return nil
}

// GetXI loads a side's eleven, nil when none has been named.
func GetXI(ctx context.Context, q DBTX, matchID, teamID string) (*domain.PlayingXI, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT player_id, batting_order, is_captain, is_keeper
		FROM playing_xi WHERE match_id = ? AND team_id = ?
		ORDER BY batting_order`, matchID, teamID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "get eleven")
	}
	defer rows.Close()

	xi := &domain.PlayingXI{MatchID: matchID, TeamID: teamID}
	for rows.Next() {
		var e domain.XIEntry
		var captain, keeper int
		if err := rows.Scan(&e.PlayerID, &e.BattingOrder, &captain, &keeper); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "scan eleven entry")
		}
		e.IsCaptain = captain != 0
		e.IsKeeper = keeper != 0
		xi.Entries = append(xi.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "get eleven")
	}
	if len(xi.Entries) == 0 {
		return nil, nil
	}
	return xi, nil
}

// UpsertOfficial registers a subject on a match.
func UpsertOfficial(ctx context.Context, q DBTX, o *domain.Official) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO officials (match_id, subject, role, side) VALUES (?, ?, ?, ?)
		ON CONFLICT (match_id, subject, role) DO UPDATE SET side = excluded.side`,
		o.MatchID, o.Subject, string(o.Role), string(o.Side))
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "upsert official")
	}
	return nil
}

// OfficialsByMatch lists everyone registered on a match.
func OfficialsByMatch(ctx context.Context, q DBTX, matchID string) ([]*domain.Official, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT match_id, subject, role, side FROM officials
		WHERE match_id = ? ORDER BY subject, role`, matchID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err, "list officials")
	}
	defer rows.Close()
	var out []*domain.Official
	for rows.Next() {
		var o domain.Official
		var role, side string
		if err := rows.Scan(&o.MatchID, &o.Subject, &role, &side); err != nil {
			return nil, domain.Wrap(domain.ErrInternal, err, "scan official")
		}
		o.Role = domain.Role(role)
		o.Side = domain.ScorerSide(side)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
