package scoring

import (
	"context"
	"database/sql"
	"sync"

	"github.com/thirdumpire/crease/internal/consensus"
	"github.com/thirdumpire/crease/internal/telemetry"
)

// Registry maps match ids to their MatchContexts, creating them lazily
// from storage on first touch. Terminal matches stay resident until
// eviction so late queries and socket attaches still find them.
type Registry struct {
	db  *sql.DB
	cfg consensus.Config

	mu   sync.RWMutex
	ctxs map[string]*MatchContext
}

func NewRegistry(db *sql.DB, cfg consensus.Config) *Registry {
	return &Registry{db: db, cfg: cfg, ctxs: make(map[string]*MatchContext)}
}

// Get returns the context for a match, hydrating it from storage when
// it is not resident. Concurrent first touches of the same match are
// serialized by the write lock; the loser of the race reuses the
// winner's context.
func (r *Registry) Get(ctx context.Context, matchID string) (*MatchContext, error) {
	r.mu.RLock()
	mc, ok := r.ctxs[matchID]
	r.mu.RUnlock()
	if ok {
		return mc, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if mc, ok := r.ctxs[matchID]; ok {
		return mc, nil
	}
	st, err := loadState(ctx, r.db, matchID, r.cfg)
	if err != nil {
		return nil, err
	}
	mc = newMatchContext(matchID, st)
	r.ctxs[matchID] = mc
	telemetry.Metrics.ActiveMatches.Set(int64(len(r.ctxs)))
	return mc, nil
}

// Put registers a freshly created match's context.
func (r *Registry) Put(mc *MatchContext) {
	r.mu.Lock()
	r.ctxs[mc.MatchID] = mc
	telemetry.Metrics.ActiveMatches.Set(int64(len(r.ctxs)))
	r.mu.Unlock()
}

// Invalidate evicts a context so the next touch rehydrates from
// storage. Called when an in-memory mutation may have diverged from a
// rolled-back transaction.
func (r *Registry) Invalidate(matchID string) {
	r.mu.Lock()
	mc, ok := r.ctxs[matchID]
	if ok {
		delete(r.ctxs, matchID)
		telemetry.Metrics.ActiveMatches.Set(int64(len(r.ctxs)))
	}
	r.mu.Unlock()
	if ok {
		mc.Close()
	}
}

// Resident snapshots the currently loaded contexts, for the consensus
// window sweeper. It deliberately does not hydrate anything: a match
// nobody has touched has no pending slots to expire.
func (r *Registry) Resident() []*MatchContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MatchContext, 0, len(r.ctxs))
	for _, mc := range r.ctxs {
		out = append(out, mc)
	}
	return out
}

// Close drains and stops every match goroutine.
func (r *Registry) Close() {
	r.mu.Lock()
	ctxs := r.ctxs
	r.ctxs = make(map[string]*MatchContext)
	telemetry.Metrics.ActiveMatches.Set(0)
	r.mu.Unlock()
	for _, mc := range ctxs {
		mc.Close()
	}
}
