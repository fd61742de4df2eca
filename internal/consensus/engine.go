// Package consensus matches per-delivery calls from independent
// scorers. Every submitted ball opens or joins a slot; a slot commits
// to the canonical record only when its calls agree, an umpire rules,
// or a dispute is resolved, and only after every earlier slot has
// committed, so canonical deliveries always reach the projection in
// slot order.
package consensus

import (
	"context"
	"time"

	"github.com/thirdumpire/crease/internal/canonical"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/store"
)

// Config is the matching policy for one match.
type Config struct {
	// Quorum is the number of active scorers registered. One means a
	// lone bench: every call commits immediately.
	Quorum int
	// Window is how long a slot waits for the sibling call before it
	// expires.
	Window time.Duration
	// WindowEvents expires a slot once this many raw events have been
	// appended after it, regardless of wall clock.
	WindowEvents int
	// SingleScorerFallback accepts a lone call on expiry at half
	// confidence instead of opening a missing-call dispute.
	SingleScorerFallback bool
}

// SlotStatus is a slot's place in the commit pipeline.
type SlotStatus string

const (
	// SlotOpen: waiting for the sibling scorer's call.
	SlotOpen SlotStatus = "open"
	// SlotDisputed: calls disagree (or one is missing past the window);
	// the slot and everything behind it is held.
	SlotDisputed SlotStatus = "disputed"
	// SlotDecided: consensus reached but an earlier slot still blocks
	// the commit.
	SlotDecided SlotStatus = "decided"
	// SlotCommitted: canonical ball written.
	SlotCommitted SlotStatus = "committed"
)

// Decision is the consensus outcome for one slot.
type Decision struct {
	Method     domain.ConsensusMethod `json:"method"`
	Confidence float64                `json:"confidence"`
	Payload    *domain.BallPayload    `json:"payload"`
	EventIDs   []string               `json:"eventIds"`
}

// call is one scorer's account of a delivery.
type call struct {
	EventID   string
	ScorerID  string
	Side      domain.ScorerSide
	Payload   *domain.BallPayload
	Canonical []byte
	At        time.Time
	Seq       int64
}

// Slot is one logical delivery awaiting or past consensus.
type Slot struct {
	InningsID string
	Ref       domain.BallRef
	Status    SlotStatus
	DisputeID string
	Decision  *Decision
	OpenedAt  time.Time
	OpenedSeq int64

	calls []*call
}

// EventIDs lists the raw events backing this slot.
func (s *Slot) EventIDs() []string {
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.EventID
	}
	return out
}

// provisional is the payload used to predict the next coordinate while
// the slot is still undecided.
func (s *Slot) provisional() *domain.BallPayload {
	if s.Decision != nil {
		return s.Decision.Payload
	}
	if len(s.calls) > 0 {
		return s.calls[0].Payload
	}
	return nil
}

// Commit is one slot released to the projector, in slot order.
// DisputeID is set when the slot had an open dispute that this commit
// settles.
type Commit struct {
	InningsID string
	Ref       domain.BallRef
	Decision  *Decision
	DisputeID string
}

type coord struct {
	inningsID  string
	overNumber int
	ballInOver int
}

// Engine tracks the pending slots of one match. It is not safe for
// concurrent use: the per-match command queue serializes every call.
type Engine struct {
	matchID string
	cfg     Config

	// pending slots in open order; committed slots are pruned.
	slots []*Slot
	// attempts counts slots ever opened per coordinate, committed ones
	// included, so re-bowls of the same coordinate get distinct keys.
	attempts map[coord]int
}

// New builds an empty engine for a match with no pending slots.
func New(matchID string, cfg Config) *Engine {
	return &Engine{matchID: matchID, cfg: cfg, attempts: make(map[coord]int)}
}

// SetQuorum adjusts the active-scorer count, e.g. when an umpire
// registers mid-match.
func (e *Engine) SetQuorum(n int) {
	if n > 0 {
		e.cfg.Quorum = n
	}
}

// Pending reports how many slots are awaiting consensus or commit.
func (e *Engine) Pending() int { return len(e.slots) }

// HeldSince returns the first blocked slot, or nil when the pipeline
// is clear.
func (e *Engine) HeldSince() *Slot {
	if len(e.slots) == 0 {
		return nil
	}
	return e.slots[0]
}

// Expected returns the coordinate the next new call must target, given
// the projector's next deliverable slot. Pending slots advance the
// coordinate provisionally: a pending legal delivery moves play on, an
// illegal one stays put for the re-bowl.
func (e *Engine) Expected(projected domain.BallRef, ballsPerOver int) domain.BallRef {
	ref := domain.BallRef{OverNumber: projected.OverNumber, BallInOver: projected.BallInOver}
	for _, s := range e.slots {
		p := s.provisional()
		if p == nil || !p.Legal() {
			continue
		}
		ref.BallInOver++
		if ref.BallInOver > ballsPerOver {
			ref.OverNumber++
			ref.BallInOver = 1
		}
	}
	return ref
}

// Observe feeds one appended BallRecorded event into the matcher. It
// returns the dispute it raised, if any, and every slot the arrival
// released for canonical commit, in slot order. A byte-identical
// resubmission by the same scorer is a Conflict.
func (e *Engine) Observe(ctx context.Context, q store.DBTX, ev *domain.ScoringEvent, p *domain.BallPayload, now time.Time) (*domain.Dispute, []*Commit, error) {
	canon, err := canonical.Transform(ev.Payload)
	if err != nil {
		return nil, nil, domain.Wrap(domain.ErrInternal, err, "canonicalize call")
	}
	c := &call{
		EventID:   ev.ID,
		ScorerID:  ev.ScorerID,
		Side:      ev.Side,
		Payload:   p,
		Canonical: canon,
		At:        ev.Timestamp,
		Seq:       ev.Seq,
	}

	slot := e.joinable(p)
	if slot == nil {
		slot = e.open(p, c)
	} else {
		if err := e.merge(slot, c); err != nil {
			return nil, nil, err
		}
	}

	dispute := e.decide(slot, now)
	if dispute != nil {
		if err := e.saveSlot(ctx, q, slot); err != nil {
			return nil, nil, err
		}
		return dispute, nil, nil
	}
	ready, err := e.flush(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	if slot.Status != SlotCommitted {
		if err := e.saveSlot(ctx, q, slot); err != nil {
			return nil, nil, err
		}
	}
	return nil, ready, nil
}

// Resolve settles the dispute with the resolver's final payload and
// returns the commits it unblocked, the resolved slot first.
func (e *Engine) Resolve(ctx context.Context, q store.DBTX, disputeID string, final *domain.BallPayload, resolutionEventID string) ([]*Commit, error) {
	var slot *Slot
	for _, s := range e.slots {
		if s.DisputeID == disputeID {
			slot = s
			break
		}
	}
	if slot == nil {
		return nil, domain.E(domain.ErrNotFound, "no pending slot for dispute %s", disputeID)
	}
	if slot.Status != SlotDisputed {
		return nil, domain.E(domain.ErrFailedPrecondition, "dispute %s is not open", disputeID)
	}
	slot.Status = SlotDecided
	slot.Decision = &Decision{
		Method:     domain.ConsensusResolution,
		Confidence: domain.ConsensusResolution.Confidence(),
		Payload:    final,
		EventIDs:   append(slot.EventIDs(), resolutionEventID),
	}
	return e.flush(ctx, q)
}

// ExpireStale closes out open slots that outlived the matching window:
// either the lone call is accepted at half confidence, or a
// missing-call dispute opens. lastSeq is the current log tail.
func (e *Engine) ExpireStale(ctx context.Context, q store.DBTX, now time.Time, lastSeq int64) ([]*domain.Dispute, []*Commit, error) {
	if e.cfg.Quorum < 2 {
		return nil, nil, nil
	}
	var disputes []*domain.Dispute
	changed := false
	for _, s := range e.slots {
		if s.Status != SlotOpen || len(s.calls) != 1 {
			continue
		}
		aged := e.cfg.Window > 0 && now.Sub(s.OpenedAt) >= e.cfg.Window
		passed := e.cfg.WindowEvents > 0 && lastSeq-s.OpenedSeq >= int64(e.cfg.WindowEvents)
		if !aged && !passed {
			continue
		}
		changed = true
		if e.cfg.SingleScorerFallback {
			s.Status = SlotDecided
			s.Decision = &Decision{
				Method:     domain.ConsensusSingleScorer,
				Confidence: domain.ConsensusSingleScorer.Confidence(),
				Payload:    s.calls[0].Payload,
				EventIDs:   s.EventIDs(),
			}
		} else {
			s.Status = SlotDisputed
			s.DisputeID = domain.NewID()
			disputes = append(disputes, e.disputeFor(s, domain.DisputeMissing, now))
		}
		if err := e.saveSlot(ctx, q, s); err != nil {
			return nil, nil, err
		}
	}
	if !changed {
		return nil, nil, nil
	}
	ready, err := e.flush(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return disputes, ready, nil
}

// Joins reports whether the payload targets a slot still awaiting
// consensus. A sibling call for a pending coordinate is not out of
// sequence even though the provisional coordinate has moved past it.
func (e *Engine) Joins(p *domain.BallPayload) bool {
	return e.joinable(p) != nil
}

// joinable returns the pending slot a call at this coordinate belongs
// to: the newest non-committed slot at the coordinate, since an older
// one means the delivery was re-bowled.
func (e *Engine) joinable(p *domain.BallPayload) *Slot {
	for i := len(e.slots) - 1; i >= 0; i-- {
		s := e.slots[i]
		if s.InningsID == p.InningsID &&
			s.Ref.OverNumber == p.OverNumber && s.Ref.BallInOver == p.BallInOver {
			return s
		}
	}
	return nil
}

func (e *Engine) open(p *domain.BallPayload, c *call) *Slot {
	key := coord{p.InningsID, p.OverNumber, p.BallInOver}
	s := &Slot{
		InningsID: p.InningsID,
		Ref: domain.BallRef{
			OverNumber: p.OverNumber,
			BallInOver: p.BallInOver,
			Attempt:    e.attempts[key],
		},
		Status:    SlotOpen,
		OpenedAt:  c.At,
		OpenedSeq: c.Seq,
		calls:     []*call{c},
	}
	e.attempts[key]++
	e.slots = append(e.slots, s)
	return s
}

// merge adds a sibling call. The same scorer repeating an identical
// call is rejected; a changed call replaces their earlier one.
func (e *Engine) merge(s *Slot, c *call) error {
	for i, prev := range s.calls {
		if prev.ScorerID != c.ScorerID {
			continue
		}
		if string(prev.Canonical) == string(c.Canonical) {
			return domain.E(domain.ErrConflict,
				"scorer %s already recorded ball %s", c.ScorerID, s.Ref.Decimal()).
				WithDetail("eventId", prev.EventID)
		}
		s.calls[i] = c
		return nil
	}
	s.calls = append(s.calls, c)
	return nil
}

// decide applies the matching rules to a slot. It returns a freshly
// raised dispute, or nil when the slot is decided or still waiting.
func (e *Engine) decide(s *Slot, now time.Time) *domain.Dispute {
	if s.Status != SlotOpen && s.Status != SlotDisputed {
		return nil
	}

	// An umpire call is authoritative regardless of what the benches say.
	for _, c := range s.calls {
		if c.Side == domain.SideUmpire {
			s.Status = SlotDecided
			s.Decision = &Decision{
				Method:     domain.ConsensusUmpireOverride,
				Confidence: domain.ConsensusUmpireOverride.Confidence(),
				Payload:    c.Payload,
				EventIDs:   s.EventIDs(),
			}
			return nil
		}
	}

	if e.cfg.Quorum < 2 {
		s.Status = SlotDecided
		s.Decision = &Decision{
			Method:     domain.ConsensusSingleScorer,
			Confidence: 1.0,
			Payload:    s.calls[0].Payload,
			EventIDs:   s.EventIDs(),
		}
		return nil
	}
	if len(s.calls) < 2 {
		return nil
	}

	a, b := s.calls[0], s.calls[1]
	if agree, kind := a.Payload.AgreesWith(b.Payload); !agree {
		if s.Status == SlotDisputed {
			// Already disputed; a changed call keeps the dispute open.
			return nil
		}
		s.Status = SlotDisputed
		s.DisputeID = domain.NewID()
		return e.disputeFor(s, kind, now)
	}
	s.Status = SlotDecided
	s.Decision = &Decision{
		Method:     domain.ConsensusScorerMatch,
		Confidence: domain.ConsensusScorerMatch.Confidence(),
		Payload:    a.Payload,
		EventIDs:   s.EventIDs(),
	}
	return nil
}

func (e *Engine) disputeFor(s *Slot, kind domain.DisputeKind, now time.Time) *domain.Dispute {
	return &domain.Dispute{
		ID:        s.DisputeID,
		MatchID:   e.matchID,
		InningsID: s.InningsID,
		Ref:       s.Ref,
		Kind:      kind,
		Status:    domain.DisputeOpen,
		EventIDs:  s.EventIDs(),
		RaisedAt:  now.UTC(),
	}
}

// flush releases decided slots from the front of the queue. A slot
// behind an open or disputed one stays held no matter how long ago its
// own consensus arrived.
func (e *Engine) flush(ctx context.Context, q store.DBTX) ([]*Commit, error) {
	var out []*Commit
	for len(e.slots) > 0 && e.slots[0].Status == SlotDecided {
		s := e.slots[0]
		s.Status = SlotCommitted
		if err := e.saveSlot(ctx, q, s); err != nil {
			return nil, err
		}
		out = append(out, &Commit{
			InningsID: s.InningsID,
			Ref:       s.Ref,
			Decision:  s.Decision,
			DisputeID: s.DisputeID,
		})
		e.slots = e.slots[1:]
	}
	return out, nil
}
