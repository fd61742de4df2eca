package scoring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thirdumpire/crease/internal/auth"
	"github.com/thirdumpire/crease/internal/canonical"
	"github.com/thirdumpire/crease/internal/config"
	"github.com/thirdumpire/crease/internal/consensus"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/events"
	"github.com/thirdumpire/crease/internal/lifecycle"
	"github.com/thirdumpire/crease/internal/projection"
	"github.com/thirdumpire/crease/internal/rules"
	"github.com/thirdumpire/crease/internal/store"
	"github.com/thirdumpire/crease/internal/telemetry"
)

// Service is the command surface of the engine. Commands resolve the
// match's context, run on its goroutine, commit one transaction, and
// publish fanout frames only after the transaction lands.
type Service struct {
	db      *sql.DB
	cfg     *config.Config
	presets *config.RulePresets
	signer  *auth.Signer
	bus     *events.Bus
	reg     *Registry

	// now is swapped by tests that need a deterministic clock.
	now func() time.Time
}

func NewService(db *sql.DB, cfg *config.Config, presets *config.RulePresets, signer *auth.Signer, bus *events.Bus) *Service {
	return &Service{
		db:      db,
		cfg:     cfg,
		presets: presets,
		signer:  signer,
		bus:     bus,
		reg: NewRegistry(db, consensus.Config{
			Quorum:               cfg.ScorerQuorum,
			Window:               cfg.ConsensusWindow,
			WindowEvents:         cfg.ConsensusWindowBalls,
			SingleScorerFallback: cfg.SingleScorerFallback,
		}),
		now: time.Now,
	}
}

// Close drains every match goroutine.
func (s *Service) Close() { s.reg.Close() }

// run executes one command on the match's goroutine with the configured
// timeout and records metrics. The frames the command produced are
// published on the match goroutine too, after the transaction commits:
// the next command for the match cannot commit, let alone publish,
// until this command's frames are on the bus, so subscribers see frames
// in commit order. An internal or transient failure evicts the cached
// context: the in-memory state may have diverged from the rolled-back
// transaction, and rehydration is cheap.
func (s *Service) run(ctx context.Context, matchID string, fn func(ctx context.Context, st *State) ([]events.Event, error)) error {
	start := time.Now()
	telemetry.Metrics.CommandsReceived.Inc()
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	mc, err := s.reg.Get(cctx, matchID)
	if err != nil {
		telemetry.Metrics.CommandErrors.Inc()
		return err
	}
	err = mc.Do(cctx, func(st *State) error {
		frames, ferr := fn(cctx, st)
		if ferr != nil {
			return ferr
		}
		for _, f := range frames {
			s.bus.Publish(f)
		}
		return nil
	})
	telemetry.Metrics.CommandLatency.Record(time.Since(start))
	if err != nil {
		telemetry.Metrics.CommandErrors.Inc()
		switch domain.KindOf(err) {
		case domain.ErrInternal, domain.ErrTransient:
			s.reg.Invalidate(matchID)
		}
		return err
	}
	return nil
}

func (s *Service) frame(st *State, t events.Type, payload any) events.Event {
	return events.Event{
		Type:      t,
		MatchID:   st.Match.ID,
		Seq:       st.LastSeq,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
}

// appendEvent canonicalizes the payload, MACs it to the scorer, links it
// to the chain tail and inserts it, all inside the caller's transaction.
func (s *Service) appendEvent(ctx context.Context, tx store.DBTX, st *State, ev *domain.ScoringEvent, payload any) error {
	raw, err := canonical.Marshal(payload)
	if err != nil {
		return err
	}
	ev.ID = domain.NewID()
	ev.MatchID = st.Match.ID
	ev.Payload = raw
	ev.Timestamp = s.now().UTC()
	if ev.ScorerID != "" {
		ev.Signature = s.signer.SignPayload(ev.ScorerID, raw)
	}
	appendStart := time.Now()
	if err := eventlog.Append(ctx, tx, ev); err != nil {
		return err
	}
	telemetry.Metrics.AppendLatency.Record(time.Since(appendStart))
	telemetry.Metrics.EventsAppended.Inc()
	st.LastSeq = ev.Seq
	return nil
}

func (st *State) authorize(c auth.Claims, cmd auth.Command) error {
	return auth.RequireOfficial(c, st.Match.ID, st.Match.CreatedBy, st.Officials, cmd)
}

func scoreLine(st *State) events.ScoreLine {
	inn := st.Live
	per := st.Match.Rules.BallsPerOver
	return events.ScoreLine{
		InningsID: inn.InningsID,
		Runs:      inn.Runs,
		Wickets:   inn.Wickets,
		Overs:     fmt.Sprintf("%d.%d", inn.LegalDeliveries/per, inn.LegalDeliveries%per),
		Target:    inn.Target,
	}
}

// PlayerInput and TeamInput describe the sides of a new match. IDs are
// assigned when absent so callers can create everything in one shot.
type PlayerInput struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type TeamInput struct {
	ID        string        `json:"id,omitempty"`
	Name      string        `json:"name"`
	ShortName string        `json:"shortName,omitempty"`
	Players   []PlayerInput `json:"players,omitempty"`
}

type OfficialInput struct {
	Subject string            `json:"subject"`
	Role    domain.Role       `json:"role"`
	Side    domain.ScorerSide `json:"side,omitempty"`
}

type CreateMatchParams struct {
	Name       string          `json:"name"`
	Venue      string          `json:"venue,omitempty"`
	Home       TeamInput       `json:"home"`
	Away       TeamInput       `json:"away"`
	RulePreset string          `json:"rulePreset,omitempty"`
	Rules      *domain.Rules   `json:"rules,omitempty"`
	Officials  []OfficialInput `json:"officials,omitempty"`
}

// CreateMatch creates the match with both rosters and its officials in
// one transaction and registers its context.
func (s *Service) CreateMatch(ctx context.Context, c auth.Claims, p CreateMatchParams) (*domain.Match, error) {
	if p.Name == "" {
		return nil, domain.E(domain.ErrInvalidArgument, "match name required")
	}
	if p.Home.Name == "" || p.Away.Name == "" {
		return nil, domain.E(domain.ErrInvalidArgument, "both teams must be named")
	}

	r := domain.DefaultRules()
	switch {
	case p.Rules != nil:
		r = *p.Rules
	case p.RulePreset != "":
		preset, ok := s.presets.Rules(p.RulePreset)
		if !ok {
			return nil, domain.E(domain.ErrInvalidArgument, "unknown rule preset %q", p.RulePreset)
		}
		r = preset
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	home := materializeTeam(p.Home)
	away := materializeTeam(p.Away)
	now := s.now().UTC()
	m := &domain.Match{
		ID:         domain.NewID(),
		Name:       p.Name,
		Venue:      p.Venue,
		HomeTeamID: home.ID,
		AwayTeamID: away.ID,
		Rules:      r,
		State:      domain.MatchScheduled,
		CreatedBy:  c.Subject,
		CreatedAt:  now,
	}

	officials := make([]*domain.Official, 0, len(p.Officials))
	for _, o := range p.Officials {
		if !domain.ValidRole(o.Role) {
			return nil, domain.E(domain.ErrInvalidArgument, "unknown role %q for %s", o.Role, o.Subject)
		}
		if o.Role == domain.RoleScorer && o.Side != domain.SideHome && o.Side != domain.SideAway {
			return nil, domain.E(domain.ErrInvalidArgument, "scorer %s needs a side", o.Subject)
		}
		officials = append(officials, &domain.Official{
			MatchID: m.ID, Subject: o.Subject, Role: o.Role, Side: o.Side,
		})
	}

	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := store.InsertMatch(ctx, tx, m); err != nil {
			return err
		}
		for _, t := range []*domain.Team{home, away} {
			if err := store.UpsertTeam(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, pl := range materializePlayers(home.ID, p.Home.Players) {
			if err := store.InsertPlayer(ctx, tx, pl); err != nil {
				return err
			}
		}
		for _, pl := range materializePlayers(away.ID, p.Away.Players) {
			if err := store.InsertPlayer(ctx, tx, pl); err != nil {
				return err
			}
		}
		for _, o := range officials {
			if err := store.UpsertOfficial(ctx, tx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	st, err := loadState(ctx, s.db, m.ID, s.reg.cfg)
	if err != nil {
		return nil, err
	}
	s.reg.Put(newMatchContext(m.ID, st))
	telemetry.Infof("match %s created: %s vs %s at %q", m.ID, home.Name, away.Name, p.Venue)
	return m, nil
}

func materializeTeam(in TeamInput) *domain.Team {
	id := in.ID
	if id == "" {
		id = domain.NewID()
	}
	return &domain.Team{ID: id, Name: in.Name, ShortName: in.ShortName}
}

func materializePlayers(teamID string, in []PlayerInput) []*domain.Player {
	out := make([]*domain.Player, 0, len(in))
	for _, p := range in {
		id := p.ID
		if id == "" {
			id = domain.NewID()
		}
		out = append(out, &domain.Player{ID: id, TeamID: teamID, Name: p.Name})
	}
	return out
}

// ConductToss records the coin toss.
func (s *Service) ConductToss(ctx context.Context, c auth.Claims, matchID, wonByTeamID string, elected domain.TossChoice) error {
	return s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdConductToss); err != nil {
			return nil, err
		}
		if err := lifecycle.ConductToss(st.Match, wonByTeamID, elected, s.now()); err != nil {
			return nil, err
		}
		return nil, store.UpdateMatch(ctx, s.db, st.Match)
	})
}

// SetPlayingXI names one side's eleven. The match goes live on its own
// once the toss is done and both elevens are complete.
func (s *Service) SetPlayingXI(ctx context.Context, c auth.Claims, matchID string, xi *domain.PlayingXI) error {
	return s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdSetPlayingXI); err != nil {
			return nil, err
		}
		if c.Role == domain.RoleCaptain && c.Subject != st.Match.CreatedBy {
			// Captains only name their own side.
			side := domain.SideHome
			if xi.TeamID == st.Match.AwayTeamID {
				side = domain.SideAway
			}
			if c.Side != side {
				return nil, domain.E(domain.ErrPermissionDenied,
					"captain of the %s side cannot name the %s eleven", c.Side, side)
			}
		}
		xi.MatchID = st.Match.ID
		if err := lifecycle.ValidateXI(st.Match, xi); err != nil {
			return nil, err
		}

		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			if err := store.ReplaceXI(ctx, tx, xi); err != nil {
				return err
			}
			if xi.TeamID == st.Match.HomeTeamID {
				st.HomeXI = xi
			} else {
				st.AwayXI = xi
			}
			if lifecycle.MaybeGoLive(st.Match, st.HomeXI, st.AwayXI, s.now()) {
				telemetry.Infof("match %s is live", st.Match.ID)
				return store.UpdateMatch(ctx, tx, st.Match)
			}
			return nil
		})
		return nil, err
	})
}

// OpenInnings starts the next innings. The batting side is derived from
// the toss for innings one and alternates after; a chase target is set
// for the final innings.
func (s *Service) OpenInnings(ctx context.Context, c auth.Claims, matchID string) (*domain.Innings, error) {
	var out *domain.Innings
	err := s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdOpenInnings); err != nil {
			return nil, err
		}
		if prev := st.CurrentInnings(); prev != nil && prev.Open() {
			return nil, domain.E(domain.ErrFailedPrecondition,
				"innings %d is still in progress", prev.Number)
		}
		number := len(st.Innings) + 1
		if number > st.TotalInnings() {
			return nil, domain.E(domain.ErrFailedPrecondition, "all innings have been played")
		}

		var batting string
		if number == 1 {
			if st.Match.State != domain.MatchLive {
				return nil, domain.E(domain.ErrFailedPrecondition,
					"match is %s: toss and both elevens must be in first", st.Match.State)
			}
			var err error
			if batting, err = lifecycle.FirstBattingTeam(st.Match); err != nil {
				return nil, err
			}
		} else {
			if err := lifecycle.ResumeLive(st.Match); err != nil {
				return nil, err
			}
			batting = st.Match.Opponent(st.Innings[number-2].BattingTeamID)
		}
		bowling := st.Match.Opponent(batting)

		now := s.now().UTC()
		inn := &domain.Innings{
			ID:            domain.NewID(),
			MatchID:       st.Match.ID,
			Number:        number,
			BattingTeamID: batting,
			BowlingTeamID: bowling,
			OpenedAt:      now,
		}
		if number == st.TotalInnings() && number > 1 {
			target := st.Totals[bowling] - st.Totals[batting]
			if target >= 0 {
				inn.Target = &target
			}
		}

		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			ev := &domain.ScoringEvent{
				InningsID: inn.ID,
				ScorerID:  c.Subject,
				Side:      c.Side,
				Kind:      domain.EventInningsOpened,
			}
			if err := s.appendEvent(ctx, tx, st, ev, domain.InningsOpenedPayload{
				InningsID:     inn.ID,
				Number:        inn.Number,
				BattingTeamID: batting,
				BowlingTeamID: bowling,
				Target:        inn.Target,
			}); err != nil {
				return err
			}
			if err := store.InsertInnings(ctx, tx, inn); err != nil {
				return err
			}
			return store.UpdateMatch(ctx, tx, st.Match)
		})
		if err != nil {
			return nil, err
		}
		st.Innings = append(st.Innings, inn)
		st.Live = projection.NewInnings(inn)
		st.OpenOver = nil
		out = inn
		telemetry.Infof("match %s: innings %d open, %s batting", st.Match.ID, number, batting)
		return nil, nil
	})
	return out, err
}

// SetBatsmen places the pair at the crease: the openers, or the new
// batsman after a wicket. Crease state is operational, not logged.
func (s *Service) SetBatsmen(ctx context.Context, c auth.Claims, matchID, inningsID, strikerID, nonStrikerID string) error {
	return s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdSetBatsmen); err != nil {
			return nil, err
		}
		meta := st.CurrentInnings()
		if meta == nil || meta.ID != inningsID {
			return nil, domain.E(domain.ErrNotFound, "innings %s is not in progress", inningsID)
		}
		if err := rules.CheckBatsmen(rules.BatsmenContext{
			MatchState:  st.Match.State,
			InningsOpen: meta.Open() && !st.Live.Closed,
			BattingXI:   st.BattingXI(),
			Dismissed:   st.Live.Dismissed,
		}, strikerID, nonStrikerID); err != nil {
			return nil, err
		}
		st.Live.SetBatsmen(strikerID, nonStrikerID)
		if err := store.UpdateCrease(ctx, s.db, inningsID,
			st.Live.StrikerID, st.Live.NonStrikerID, st.Live.BowlerID); err != nil {
			return nil, err
		}
		return []events.Event{s.frame(st, events.TypePlayerChanged, events.PlayerChangedPayload{
			InningsID:    inningsID,
			StrikerID:    st.Live.StrikerID,
			NonStrikerID: st.Live.NonStrikerID,
		})}, nil
	})
}

// OpenOver starts the next over with the named bowler.
func (s *Service) OpenOver(ctx context.Context, c auth.Claims, matchID, inningsID string, number int, bowlerID string) (*domain.Over, error) {
	var out *domain.Over
	err := s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdOpenOver); err != nil {
			return nil, err
		}
		meta := st.CurrentInnings()
		if meta == nil || meta.ID != inningsID {
			return nil, domain.E(domain.ErrNotFound, "innings %s is not in progress", inningsID)
		}
		last := 0
		if over := st.Live.CurrentOver(); over != nil {
			last = over.Number
		}
		if err := rules.CheckOverOpen(st.Match.Rules, rules.OverOpenContext{
			MatchState:       st.Match.State,
			InningsOpen:      meta.Open() && !st.Live.Closed,
			CurrentOverOpen:  st.Live.OverInProgress(),
			LastOverNumber:   last,
			PrevOverBowlerID: st.Live.PrevOverBowler(),
			BowlerOvers:      st.Live.BowlerOverCounts(),
			BowlingXI:        st.BowlingXI(),
		}, number, bowlerID); err != nil {
			return nil, err
		}

		over := &domain.Over{
			ID:        domain.NewID(),
			InningsID: inningsID,
			Number:    number,
			BowlerID:  bowlerID,
			OpenedAt:  s.now().UTC(),
		}
		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			ev := &domain.ScoringEvent{
				InningsID: inningsID,
				ScorerID:  c.Subject,
				Side:      c.Side,
				Kind:      domain.EventOverOpened,
			}
			if err := s.appendEvent(ctx, tx, st, ev, domain.OverOpenedPayload{
				InningsID:  inningsID,
				OverID:     over.ID,
				OverNumber: number,
				BowlerID:   bowlerID,
			}); err != nil {
				return err
			}
			if err := store.InsertOver(ctx, tx, over); err != nil {
				return err
			}
			return store.UpdateCrease(ctx, tx, inningsID,
				st.Live.StrikerID, st.Live.NonStrikerID, bowlerID)
		})
		if err != nil {
			return nil, err
		}
		st.OpenOver = over
		st.Live.OpenOver(over)
		out = over
		return []events.Event{s.frame(st, events.TypePlayerChanged, events.PlayerChangedPayload{
			InningsID: inningsID,
			BowlerID:  bowlerID,
		})}, nil
	})
	return out, err
}

// SetBowler pre-announces the next over's bowler between overs, for the
// display feed. The binding choice is OpenOver's.
func (s *Service) SetBowler(ctx context.Context, c auth.Claims, matchID, inningsID, bowlerID string) error {
	return s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdSetBowler); err != nil {
			return nil, err
		}
		meta := st.CurrentInnings()
		if meta == nil || meta.ID != inningsID {
			return nil, domain.E(domain.ErrNotFound, "innings %s is not in progress", inningsID)
		}
		if st.Live.OverInProgress() {
			return nil, domain.E(domain.ErrFailedPrecondition,
				"over %d is in progress; the bowler is fixed until it ends", st.Live.CurrentOver().Number)
		}
		if !st.BowlingXI().Has(bowlerID) {
			return nil, domain.E(domain.ErrFailedPrecondition, "bowler %s not in the playing eleven", bowlerID)
		}
		st.Live.BowlerID = bowlerID
		if err := store.UpdateCrease(ctx, s.db, inningsID,
			st.Live.StrikerID, st.Live.NonStrikerID, bowlerID); err != nil {
			return nil, err
		}
		return []events.Event{s.frame(st, events.TypePlayerChanged, events.PlayerChangedPayload{
			InningsID: inningsID,
			BowlerID:  bowlerID,
		})}, nil
	})
}

// AbandonMatch scraps a non-terminal match, closing any open innings.
func (s *Service) AbandonMatch(ctx context.Context, c auth.Claims, matchID, reason string) error {
	return s.run(ctx, matchID, func(ctx context.Context, st *State) ([]events.Event, error) {
		if err := st.authorize(c, auth.CmdAbandonMatch); err != nil {
			return nil, err
		}
		if err := lifecycle.Abandon(st.Match, reason, s.now()); err != nil {
			return nil, err
		}
		err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
			if meta := st.CurrentInnings(); meta != nil && meta.Open() {
				now := s.now().UTC()
				meta.Termination = domain.TerminationAbandoned
				meta.ClosedAt = &now
				ev := &domain.ScoringEvent{
					InningsID: meta.ID,
					ScorerID:  c.Subject,
					Side:      domain.SideSystem,
					Kind:      domain.EventInningsClosed,
				}
				if err := s.appendEvent(ctx, tx, st, ev, domain.InningsClosedPayload{
					InningsID: meta.ID,
					Reason:    domain.TerminationAbandoned,
				}); err != nil {
					return err
				}
				if err := store.CloseInningsRow(ctx, tx, meta); err != nil {
					return err
				}
				if !st.Live.Closed {
					st.Live.Close(domain.TerminationAbandoned, false)
				}
			}
			return store.UpdateMatch(ctx, tx, st.Match)
		})
		if err != nil {
			return nil, err
		}
		telemetry.Warnf("match %s abandoned: %s", st.Match.ID, reason)
		return []events.Event{s.frame(st, events.TypeMatchComplete, events.MatchCompletePayload{
			Result: st.Match.Result,
		})}, nil
	})
}
