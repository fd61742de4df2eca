package store

import (
	"context"
	"database/sql"

	"github.com/thirdumpire/crease/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	venue         TEXT NOT NULL DEFAULT '',
	home_team_id  TEXT NOT NULL,
	away_team_id  TEXT NOT NULL,
	rules_json    TEXT NOT NULL,
	state         TEXT NOT NULL,
	toss_json     TEXT,
	result_json   TEXT,
	created_by    TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	started_at_ms INTEGER,
	ended_at_ms   INTEGER
);

CREATE TABLE IF NOT EXISTS teams (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	short_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS players (
	id      TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS playing_xi (
	match_id      TEXT NOT NULL,
	team_id       TEXT NOT NULL,
	player_id     TEXT NOT NULL,
	batting_order INTEGER NOT NULL,
	is_captain    INTEGER NOT NULL DEFAULT 0,
	is_keeper     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (match_id, team_id, player_id)
);

CREATE TABLE IF NOT EXISTS officials (
	match_id TEXT NOT NULL,
	subject  TEXT NOT NULL,
	role     TEXT NOT NULL,
	side     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (match_id, subject, role)
);

CREATE TABLE IF NOT EXISTS innings (
	id              TEXT PRIMARY KEY,
	match_id        TEXT NOT NULL,
	number          INTEGER NOT NULL,
	batting_team_id TEXT NOT NULL,
	bowling_team_id TEXT NOT NULL,
	target          INTEGER,
	declared        INTEGER NOT NULL DEFAULT 0,
	termination     TEXT NOT NULL DEFAULT '',
	striker_id      TEXT NOT NULL DEFAULT '',
	non_striker_id  TEXT NOT NULL DEFAULT '',
	bowler_id       TEXT NOT NULL DEFAULT '',
	opened_at_ms    INTEGER NOT NULL,
	closed_at_ms    INTEGER,
	UNIQUE (match_id, number)
);

CREATE TABLE IF NOT EXISTS overs (
	id           TEXT PRIMARY KEY,
	innings_id   TEXT NOT NULL,
	number       INTEGER NOT NULL,
	bowler_id    TEXT NOT NULL,
	opened_at_ms INTEGER NOT NULL,
	closed_at_ms INTEGER,
	UNIQUE (innings_id, number)
);

CREATE TABLE IF NOT EXISTS balls (
	id             TEXT PRIMARY KEY,
	innings_id     TEXT NOT NULL,
	over_id        TEXT NOT NULL,
	over_number    INTEGER NOT NULL,
	ball_in_over   INTEGER NOT NULL,
	attempt        INTEGER NOT NULL DEFAULT 0,
	bowler_id      TEXT NOT NULL,
	striker_id     TEXT NOT NULL,
	non_striker_id TEXT NOT NULL,
	runs_off_bat   INTEGER NOT NULL,
	is_boundary    INTEGER NOT NULL DEFAULT 0,
	boundary_kind  TEXT NOT NULL DEFAULT '',
	extra_kind     TEXT NOT NULL,
	extra_runs     INTEGER NOT NULL,
	is_legal       INTEGER NOT NULL,
	is_wicket      INTEGER NOT NULL,
	shot_kind      TEXT NOT NULL DEFAULT '',
	event_id       TEXT NOT NULL,
	bowled_at_ms   INTEGER NOT NULL,
	UNIQUE (innings_id, over_number, ball_in_over, attempt)
);

CREATE TABLE IF NOT EXISTS wickets (
	id             TEXT PRIMARY KEY,
	innings_id     TEXT NOT NULL,
	ball_id        TEXT NOT NULL,
	kind           TEXT NOT NULL,
	batsman_out_id TEXT NOT NULL,
	bowler_id      TEXT NOT NULL DEFAULT '',
	fielders_json  TEXT NOT NULL DEFAULT '[]',
	number         INTEGER NOT NULL,
	score_at_fall  INTEGER NOT NULL,
	over_decimal   TEXT NOT NULL,
	UNIQUE (ball_id)
);

CREATE TABLE IF NOT EXISTS disputes (
	id             TEXT PRIMARY KEY,
	match_id       TEXT NOT NULL,
	innings_id     TEXT NOT NULL,
	over_number    INTEGER NOT NULL,
	ball_in_over   INTEGER NOT NULL,
	attempt        INTEGER NOT NULL DEFAULT 0,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL,
	event_ids_json TEXT NOT NULL DEFAULT '[]',
	raised_at_ms   INTEGER NOT NULL,
	resolved_at_ms INTEGER,
	resolved_by    TEXT NOT NULL DEFAULT '',
	method         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS consensus (
	ball_id        TEXT PRIMARY KEY,
	method         TEXT NOT NULL,
	confidence     REAL NOT NULL,
	event_ids_json TEXT NOT NULL DEFAULT '[]',
	decided_at_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS slots (
	match_id       TEXT NOT NULL,
	innings_id     TEXT NOT NULL,
	over_number    INTEGER NOT NULL,
	ball_in_over   INTEGER NOT NULL,
	attempt        INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	event_ids_json TEXT NOT NULL DEFAULT '[]',
	dispute_id     TEXT NOT NULL DEFAULT '',
	decision_json  TEXT NOT NULL DEFAULT '',
	opened_at_ms   INTEGER NOT NULL,
	opened_seq     INTEGER NOT NULL,
	PRIMARY KEY (match_id, innings_id, over_number, ball_in_over, attempt)
);`

// Migrate creates every table this package owns. The event log table is
// owned and migrated by the eventlog package against the same database.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return domain.Wrap(domain.ErrInternal, err, "store schema")
	}
	return nil
}
