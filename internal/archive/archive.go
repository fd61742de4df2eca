// Package archive exports finished matches as flat JSON files: the
// match record, every innings with its deliveries, and the full raw
// event log. The export is a cold copy for scorebooks and league
// records; the database stays the source of truth.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/events"
	"github.com/thirdumpire/crease/internal/store"
	"github.com/thirdumpire/crease/internal/telemetry"
)

// Export is the on-disk shape of one archived match.
type Export struct {
	ArchivedAt  time.Time              `json:"archivedAt"`
	Match       *domain.Match          `json:"match"`
	Innings     []*InningsExport       `json:"innings"`
	Events      []*domain.ScoringEvent `json:"events"`
	ChainIntact bool                   `json:"chainIntact"`
}

type InningsExport struct {
	Innings *domain.Innings  `json:"innings"`
	Balls   []*domain.Ball   `json:"balls"`
	Wickets []*domain.Wicket `json:"wickets"`
}

// Archiver listens for match completion and writes the export in the
// background. A nil or empty directory disables it.
type Archiver struct {
	db  *sql.DB
	dir string
	now func() time.Time
	log telemetry.Logger

	wg sync.WaitGroup
}

func New(db *sql.DB, dir string, bus *events.Bus) *Archiver {
	a := &Archiver{db: db, dir: dir, now: time.Now, log: telemetry.Scope("archive")}
	if dir != "" {
		bus.Subscribe(events.TypeMatchComplete, a.onComplete)
	}
	return a
}

// Wait blocks until in-flight exports finish. Called on shutdown.
func (a *Archiver) Wait() { a.wg.Wait() }

func (a *Archiver) onComplete(evt events.Event) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if path, err := a.ExportMatch(ctx, evt.MatchID); err != nil {
			a.log.Errorf("export match %s: %v", evt.MatchID, err)
		} else {
			a.log.Infof("match %s archived to %s", evt.MatchID, path)
		}
	}()
	return nil
}

// ExportMatch writes one match's archive file and returns its path.
// The write goes through a temp file so a crash never leaves a
// half-written archive behind.
func (a *Archiver) ExportMatch(ctx context.Context, matchID string) (string, error) {
	exp, err := a.build(ctx, matchID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", domain.Wrap(domain.ErrInternal, err, "create archive dir")
	}

	b, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", domain.Wrap(domain.ErrInternal, err, "encode archive")
	}
	path := filepath.Join(a.dir, matchID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", domain.Wrap(domain.ErrInternal, err, "write archive")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", domain.Wrap(domain.ErrInternal, err, "finalize archive")
	}
	return path, nil
}

func (a *Archiver) build(ctx context.Context, matchID string) (*Export, error) {
	m, err := store.GetMatch(ctx, a.db, matchID)
	if err != nil {
		return nil, err
	}
	innings, err := store.InningsByMatch(ctx, a.db, matchID)
	if err != nil {
		return nil, err
	}
	exp := &Export{ArchivedAt: a.now().UTC(), Match: m}
	for _, inn := range innings {
		balls, err := store.BallsByInnings(ctx, a.db, inn.ID)
		if err != nil {
			return nil, err
		}
		wickets, err := store.WicketsByInnings(ctx, a.db, inn.ID)
		if err != nil {
			return nil, err
		}
		exp.Innings = append(exp.Innings, &InningsExport{Innings: inn, Balls: balls, Wickets: wickets})
	}
	exp.Events, err = eventlog.ReadAll(ctx, a.db, matchID)
	if err != nil {
		return nil, err
	}
	exp.ChainIntact, _, err = eventlog.VerifyChain(ctx, a.db, matchID)
	if err != nil {
		return nil, err
	}
	return exp, nil
}
