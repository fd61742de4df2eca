package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirdumpire/crease/internal/canonical"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func appendBall(t *testing.T, db *sql.DB, matchID string, n int) *domain.ScoringEvent {
	t.Helper()
	payload, err := canonical.Marshal(map[string]any{
		"overNumber": 1 + n/6,
		"ballInOver": 1 + n%6,
		"runsOffBat": n % 5,
		"extraKind":  "none",
	})
	require.NoError(t, err)
	ev := &domain.ScoringEvent{
		ID:        domain.NewID(),
		MatchID:   matchID,
		InningsID: "inn1",
		ScorerID:  "scorer-home",
		Side:      domain.SideHome,
		Kind:      domain.EventBallRecorded,
		Payload:   payload,
		Signature: "sig",
		Timestamp: time.UnixMilli(1700000000000 + int64(n)*1000).UTC(),
	}
	require.NoError(t, Append(context.Background(), db, ev))
	return ev
}

func TestAppendLinksChain(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := appendBall(t, db, "m1", 0)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, GenesisHash, first.PriorHash)
	assert.Len(t, first.EventHash, 64)

	second := appendBall(t, db, "m1", 1)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, first.EventHash, second.PriorHash)

	// Sequences are per match.
	other := appendBall(t, db, "m2", 0)
	assert.Equal(t, int64(1), other.Seq)
	assert.Equal(t, GenesisHash, other.PriorHash)

	seq, tail, err := Tail(ctx, db, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
	assert.Equal(t, second.EventHash, tail)
}

func TestReadRange(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		appendBall(t, db, "m1", i)
	}

	mid, err := ReadRange(ctx, db, "m1", 4, 6)
	require.NoError(t, err)
	require.Len(t, mid, 3)
	assert.Equal(t, int64(4), mid[0].Seq)
	assert.Equal(t, int64(6), mid[2].Seq)

	tail, err := ReadRange(ctx, db, "m1", 8, 0)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, int64(10), tail[2].Seq)

	all, err := ReadAll(ctx, db, "m1")
	require.NoError(t, err)
	assert.Len(t, all, 10)

	none, err := ReadAll(ctx, db, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReadRoundTripsEvent(t *testing.T) {
	db := openTestDB(t)
	want := appendBall(t, db, "m1", 3)

	got, err := ReadAll(context.Background(), db, "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.ID, got[0].ID)
	assert.Equal(t, want.Kind, got[0].Kind)
	assert.Equal(t, want.Side, got[0].Side)
	assert.Equal(t, want.EventHash, got[0].EventHash)
	assert.Equal(t, string(want.Payload), string(got[0].Payload))
	assert.True(t, want.Timestamp.Equal(got[0].Timestamp))
}

func TestVerifyChainClean(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 50; i++ {
		appendBall(t, db, "m1", i)
	}
	ok, breakSeq, err := VerifyChain(context.Background(), db, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, breakSeq)
}

func TestVerifyChainEmptyMatch(t *testing.T) {
	db := openTestDB(t)
	ok, _, err := VerifyChain(context.Background(), db, "nothing")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyChainDetectsPayloadTamper(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		appendBall(t, db, "m1", i)
	}

	// Quietly turn the delivery at seq 42 into a boundary.
	doctored, err := canonical.Marshal(map[string]any{
		"overNumber": 7, "ballInOver": 6, "runsOffBat": 4, "extraKind": "none",
	})
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`UPDATE scoring_events SET payload = ? WHERE match_id = ? AND seq = ?`,
		doctored, "m1", 42)
	require.NoError(t, err)

	ok, breakSeq, err := VerifyChain(ctx, db, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(42), breakSeq)
}

func TestVerifyChainDetectsTimestampTamper(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		appendBall(t, db, "m1", i)
	}
	_, err := db.ExecContext(ctx,
		`UPDATE scoring_events SET event_ts_ms = event_ts_ms + 1 WHERE match_id = ? AND seq = ?`,
		"m1", 10)
	require.NoError(t, err)

	ok, breakSeq, err := VerifyChain(ctx, db, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(10), breakSeq)
}

func TestVerifyChainDetectsDeletedEvent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		appendBall(t, db, "m1", i)
	}
	_, err := db.ExecContext(ctx,
		`DELETE FROM scoring_events WHERE match_id = ? AND seq = ?`, "m1", 7)
	require.NoError(t, err)

	ok, breakSeq, err := VerifyChain(ctx, db, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(8), breakSeq, "gap surfaces at the first missing link")
}

func TestMatches(t *testing.T) {
	db := openTestDB(t)
	appendBall(t, db, "m2", 0)
	appendBall(t, db, "m1", 0)
	appendBall(t, db, "m1", 1)

	got, err := Matches(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, got)
}

func TestEventHashRejectsBadPrior(t *testing.T) {
	_, err := EventHash("not-hex", "scorer", time.Now(), []byte(`{}`))
	assert.Error(t, err)
	_, err = EventHash("abcd", "scorer", time.Now(), []byte(`{}`))
	assert.Error(t, err, "short digest rejected")
}

func TestEventHashSensitivity(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	payload := []byte(`{"runsOffBat":1}`)
	base, err := EventHash(GenesisHash, "scorer-a", ts, payload)
	require.NoError(t, err)

	cases := map[string]func() (string, error){
		"scorer": func() (string, error) { return EventHash(GenesisHash, "scorer-b", ts, payload) },
		"time":   func() (string, error) { return EventHash(GenesisHash, "scorer-a", ts.Add(time.Millisecond), payload) },
		"payload": func() (string, error) {
			return EventHash(GenesisHash, "scorer-a", ts, []byte(`{"runsOffBat":2}`))
		},
		"prior": func() (string, error) {
			other := fmt.Sprintf("%064d", 1)
			return EventHash(other, "scorer-a", ts, payload)
		},
	}
	for name, fn := range cases {
		got, err := fn()
		require.NoError(t, err, name)
		assert.NotEqual(t, base, got, "changing %s must change the hash", name)
	}
}
