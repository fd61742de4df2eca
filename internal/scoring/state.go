// Package scoring is the command pipeline: every mutation of one match
// flows through that match's single goroutine, and every scoring commit
// is one sqlite transaction covering the event append, the consensus
// bookkeeping and the projection tables.
package scoring

import (
	"context"
	"database/sql"

	"github.com/thirdumpire/crease/internal/consensus"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/projection"
	"github.com/thirdumpire/crease/internal/store"
)

// State is the single source of truth for one live match. All access is
// serialized through the MatchContext goroutine, so no field needs a
// lock.
type State struct {
	Match     *domain.Match
	Officials []*domain.Official
	HomeXI    *domain.PlayingXI
	AwayXI    *domain.PlayingXI

	// Innings metas in batting order; Live is the aggregate of the
	// newest one, nil before the first innings opens.
	Innings []*domain.Innings
	Live    *projection.Innings

	// OpenOver is the over currently accepting deliveries, nil between
	// overs.
	OpenOver *domain.Over

	// Totals holds completed-innings runs per team, which is all the
	// result computation needs.
	Totals map[string]int

	Engine  *consensus.Engine
	LastSeq int64
}

// CurrentInnings returns the newest innings meta, nil before the first.
func (st *State) CurrentInnings() *domain.Innings {
	if len(st.Innings) == 0 {
		return nil
	}
	return st.Innings[len(st.Innings)-1]
}

// XIFor returns the named team's eleven, nil when not yet set.
func (st *State) XIFor(teamID string) *domain.PlayingXI {
	switch teamID {
	case st.Match.HomeTeamID:
		return st.HomeXI
	case st.Match.AwayTeamID:
		return st.AwayXI
	}
	return nil
}

// BattingXI and BowlingXI resolve the elevens for the live innings.
func (st *State) BattingXI() *domain.PlayingXI {
	if st.Live == nil {
		return nil
	}
	return st.XIFor(st.Live.BattingTeamID)
}

func (st *State) BowlingXI() *domain.PlayingXI {
	if st.Live == nil {
		return nil
	}
	return st.XIFor(st.Live.BowlingTeamID)
}

// TotalInnings is how many innings this match plays in all.
func (st *State) TotalInnings() int {
	return st.Match.Rules.InningsPerSide * 2
}

// ExpectedRef is the coordinate the next submitted ball must target,
// with pending slots advanced provisionally.
func (st *State) ExpectedRef() domain.BallRef {
	if st.Live == nil {
		return domain.BallRef{OverNumber: 1, BallInOver: 1}
	}
	return st.Engine.Expected(st.Live.ExpectedRef(), st.Match.Rules.BallsPerOver)
}

// loadState hydrates a match from storage: the record, the rosters, the
// closed-innings totals, the live aggregate refolded from committed
// balls, and the pending consensus slots.
func loadState(ctx context.Context, db *sql.DB, matchID string, cfg consensus.Config) (*State, error) {
	m, err := store.GetMatch(ctx, db, matchID)
	if err != nil {
		return nil, err
	}
	st := &State{Match: m, Totals: map[string]int{}}

	if st.Officials, err = store.OfficialsByMatch(ctx, db, matchID); err != nil {
		return nil, err
	}
	if st.HomeXI, err = store.GetXI(ctx, db, matchID, m.HomeTeamID); err != nil {
		return nil, err
	}
	if st.AwayXI, err = store.GetXI(ctx, db, matchID, m.AwayTeamID); err != nil {
		return nil, err
	}
	if st.Innings, err = store.InningsByMatch(ctx, db, matchID); err != nil {
		return nil, err
	}

	for i, meta := range st.Innings {
		balls, err := store.BallsByInnings(ctx, db, meta.ID)
		if err != nil {
			return nil, err
		}
		agg, err := projection.Rebuild(m.Rules, meta, balls)
		if err != nil {
			return nil, err
		}
		if !meta.Open() {
			st.Totals[meta.BattingTeamID] += agg.Runs
		}
		if i == len(st.Innings)-1 {
			st.Live = agg
		}
	}

	// Operational crease state (a new batsman named after a wicket, the
	// next over's bowler) is not derivable from committed balls.
	if live := st.CurrentInnings(); live != nil && live.Open() {
		striker, nonStriker, bowler, err := store.GetCrease(ctx, db, live.ID)
		if err != nil {
			return nil, err
		}
		st.Live.StrikerID = striker
		st.Live.NonStrikerID = nonStriker
		st.Live.BowlerID = bowler

		overs, err := store.OversByInnings(ctx, db, live.ID)
		if err != nil {
			return nil, err
		}
		for _, o := range overs {
			if o.Open() {
				st.OpenOver = o
			}
		}
	}

	if st.Engine, err = consensus.Load(ctx, db, matchID, cfg); err != nil {
		return nil, err
	}
	if st.LastSeq, _, err = eventlog.Tail(ctx, db, matchID); err != nil {
		return nil, err
	}
	return st, nil
}
