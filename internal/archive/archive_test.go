package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirdumpire/crease/internal/canonical"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/store"
)

func seedMatch(t *testing.T, db *sql.DB) *domain.Match {
	t.Helper()
	ctx := context.Background()
	now := time.UnixMilli(1700000000000).UTC()
	m := &domain.Match{
		ID:         "m1",
		Name:       "Kestrels v Harriers",
		HomeTeamID: "team-home",
		AwayTeamID: "team-away",
		Rules:      domain.DefaultRules(),
		State:      domain.MatchCompleted,
		CreatedBy:  "organizer",
		CreatedAt:  now,
	}
	require.NoError(t, store.InsertMatch(ctx, db, m))

	closed := now.Add(time.Hour)
	inn := &domain.Innings{
		ID:            "inn1",
		MatchID:       m.ID,
		Number:        1,
		BattingTeamID: "team-home",
		BowlingTeamID: "team-away",
		Termination:   domain.TerminationOversExhausted,
		OpenedAt:      now,
		ClosedAt:      &closed,
	}
	require.NoError(t, store.InsertInnings(ctx, db, inn))

	payload, err := canonical.Marshal(map[string]any{
		"overNumber": 1, "ballInOver": 1, "runsOffBat": 4, "extraKind": "none",
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, eventlog.Append(ctx, db, &domain.ScoringEvent{
			ID:        domain.NewID(),
			MatchID:   m.ID,
			InningsID: inn.ID,
			ScorerID:  "home-bench",
			Side:      domain.SideHome,
			Kind:      domain.EventBallRecorded,
			Payload:   payload,
			Signature: "sig",
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}))
	}
	return m
}

func TestExportWritesFullRecord(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "crease.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx, db))
	require.NoError(t, eventlog.Migrate(ctx, db))
	m := seedMatch(t, db)

	dir := t.TempDir()
	a := &Archiver{db: db, dir: dir, now: func() time.Time { return time.UnixMilli(1700003600000) }}
	path, err := a.ExportMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "m1.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var exp Export
	require.NoError(t, json.Unmarshal(raw, &exp))
	assert.Equal(t, m.ID, exp.Match.ID)
	require.Len(t, exp.Innings, 1)
	assert.Equal(t, "inn1", exp.Innings[0].Innings.ID)
	assert.Len(t, exp.Events, 3)
	assert.True(t, exp.ChainIntact)

	// No stray temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestExportUnknownMatchFails(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "crease.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx, db))
	require.NoError(t, eventlog.Migrate(ctx, db))

	a := &Archiver{db: db, dir: t.TempDir(), now: time.Now}
	_, err = a.ExportMatch(ctx, "nope")
	assert.Equal(t, domain.ErrNotFound, domain.KindOf(err))
}
