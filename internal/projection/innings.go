// Package projection folds committed balls into live aggregates. The
// fold is deterministic: replaying the same canonical deliveries in the
// same order rebuilds byte-identical state, which is what makes the
// event log the single source of truth.
package projection

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/thirdumpire/crease/internal/canonical"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/rules"
)

// BatsmanCard is one batting line. Balls counts legal deliveries faced.
type BatsmanCard struct {
	PlayerID  string `json:"playerId"`
	Runs      int    `json:"runs"`
	Balls     int    `json:"balls"`
	Fours     int    `json:"fours"`
	Sixes     int    `json:"sixes"`
	Out       bool   `json:"out"`
	Dismissal string `json:"dismissal,omitempty"`
}

// StrikeRate is runs per hundred balls, or nil before the first ball
// faced. Nil keeps a batsman yet to face distinct from one scoring at
// zero.
func (c *BatsmanCard) StrikeRate() *float64 {
	if c.Balls == 0 {
		return nil
	}
	sr := float64(c.Runs) * 100 / float64(c.Balls)
	return &sr
}

// BowlerCard is one bowling line. Deliveries counts legal balls only;
// WicketSeq holds one entry per legal delivery, true when a credited
// wicket fell, and is what hat-trick detection reads.
type BowlerCard struct {
	PlayerID   string `json:"playerId"`
	Deliveries int    `json:"deliveries"`
	Runs       int    `json:"runs"`
	Wickets    int    `json:"wickets"`
	Maidens    int    `json:"maidens"`
	Wides      int    `json:"wides"`
	NoBalls    int    `json:"noBalls"`
	WicketSeq  []bool `json:"wicketSeq,omitempty"`
}

// Overs renders the bowler's quota used, scorebook style ("3.4").
func (c *BowlerCard) Overs(r domain.Rules) string {
	return fmt.Sprintf("%d.%d", c.Deliveries/r.BallsPerOver, c.Deliveries%r.BallsPerOver)
}

// Economy is runs conceded per over of legal deliveries, or nil before
// the first legal ball bowled.
func (c *BowlerCard) Economy(r domain.Rules) *float64 {
	if c.Deliveries == 0 {
		return nil
	}
	eco := float64(c.Runs) * float64(r.BallsPerOver) / float64(c.Deliveries)
	return &eco
}

// OverCard is one over's running record.
type OverCard struct {
	OverID          string   `json:"overId"`
	Number          int      `json:"number"`
	BowlerID        string   `json:"bowlerId"`
	LegalDeliveries int      `json:"legalDeliveries"`
	TeamRuns        int      `json:"teamRuns"`
	BowlerRuns      int      `json:"bowlerRuns"`
	Wickets         int      `json:"wickets"`
	Symbols         []string `json:"symbols"`
	Maiden          bool     `json:"maiden"`
	Completed       bool     `json:"completed"`
}

// FallOfWicket is one entry of the fall-of-wickets table.
type FallOfWicket struct {
	Number          int    `json:"number"`
	Score           int    `json:"score"`
	BatsmanOutID    string `json:"batsmanOutId"`
	AtBall          string `json:"atBall"`
	PartnershipRuns int    `json:"partnershipRuns"`
}

// Extras is the extras breakdown. Wides and no-balls include the
// automatic penalty plus any runs taken on the delivery.
type Extras struct {
	Wides     int `json:"wides"`
	NoBalls   int `json:"noBalls"`
	Byes      int `json:"byes"`
	LegByes   int `json:"legByes"`
	Penalties int `json:"penalties"`
}

// Total is the extras contribution to the team total.
func (e Extras) Total() int {
	return e.Wides + e.NoBalls + e.Byes + e.LegByes + e.Penalties
}

// Innings is the live aggregate for one innings. Batsmen and Bowlers
// are ordered by first appearance so serialization is reproducible.
type Innings struct {
	InningsID     string `json:"inningsId"`
	Number        int    `json:"number"`
	BattingTeamID string `json:"battingTeamId"`
	BowlingTeamID string `json:"bowlingTeamId"`
	Target        *int   `json:"target,omitempty"`

	Runs            int    `json:"runs"`
	Wickets         int    `json:"wickets"`
	Extras          Extras `json:"extras"`
	LegalDeliveries int    `json:"legalDeliveries"`

	StrikerID    string `json:"strikerId,omitempty"`
	NonStrikerID string `json:"nonStrikerId,omitempty"`
	BowlerID     string `json:"bowlerId,omitempty"`

	Batsmen       []*BatsmanCard `json:"batsmen"`
	Bowlers       []*BowlerCard  `json:"bowlers"`
	Overs         []*OverCard    `json:"overs"`
	FallOfWickets []FallOfWicket `json:"fallOfWickets"`

	PartnershipRuns int    `json:"partnershipRuns"`
	LastBall        string `json:"lastBall,omitempty"`

	Closed      bool                     `json:"closed"`
	Declared    bool                     `json:"declared,omitempty"`
	Termination domain.TerminationReason `json:"termination,omitempty"`

	// Dismissed is rebuilt from FallOfWickets on load and therefore
	// excluded from serialization.
	Dismissed map[string]bool `json:"-"`
}

// NewInnings starts an empty aggregate for the given innings record.
func NewInnings(inn *domain.Innings) *Innings {
	return &Innings{
		InningsID:     inn.ID,
		Number:        inn.Number,
		BattingTeamID: inn.BattingTeamID,
		BowlingTeamID: inn.BowlingTeamID,
		Target:        inn.Target,
		Batsmen:       []*BatsmanCard{},
		Bowlers:       []*BowlerCard{},
		Overs:         []*OverCard{},
		FallOfWickets: []FallOfWicket{},
		Dismissed:     map[string]bool{},
	}
}

// CurrentOver returns the newest over card, or nil before the first
// over opens.
func (inn *Innings) CurrentOver() *OverCard {
	if len(inn.Overs) == 0 {
		return nil
	}
	return inn.Overs[len(inn.Overs)-1]
}

// OverInProgress reports whether a ball can currently be bowled without
// opening a new over first.
func (inn *Innings) OverInProgress() bool {
	over := inn.CurrentOver()
	return over != nil && !over.Completed
}

// ExpectedRef is the next deliverable slot: the first ball of the next
// over when no over is in progress, otherwise the next legal-ball index
// of the open over.
func (inn *Innings) ExpectedRef() domain.BallRef {
	over := inn.CurrentOver()
	if over == nil || over.Completed {
		next := 1
		if over != nil {
			next = over.Number + 1
		}
		return domain.BallRef{OverNumber: next, BallInOver: 1}
	}
	return domain.BallRef{OverNumber: over.Number, BallInOver: over.LegalDeliveries + 1}
}

// OpenOver appends a fresh over card. Eligibility has already been
// checked by the rule engine.
func (inn *Innings) OpenOver(over *domain.Over) *OverCard {
	card := &OverCard{
		OverID:   over.ID,
		Number:   over.Number,
		BowlerID: over.BowlerID,
		Symbols:  []string{},
	}
	inn.Overs = append(inn.Overs, card)
	inn.BowlerID = over.BowlerID
	return card
}

// SetBatsmen places the pair at the crease. An empty nonStrikerID keeps
// the current occupant of that end. Batting cards are only ever created
// by deliveries, so a batsman who never faces leaves no trace and
// replay from the log stays exact.
func (inn *Innings) SetBatsmen(strikerID, nonStrikerID string) {
	inn.StrikerID = strikerID
	if nonStrikerID != "" {
		inn.NonStrikerID = nonStrikerID
	}
}

// BowlerOverCounts returns completed overs per bowler, for quota checks.
func (inn *Innings) BowlerOverCounts() map[string]int {
	counts := make(map[string]int, len(inn.Bowlers))
	for _, over := range inn.Overs {
		if over.Completed {
			counts[over.BowlerID]++
		}
	}
	return counts
}

// PrevOverBowler returns the bowler of the last completed over.
func (inn *Innings) PrevOverBowler() string {
	for i := len(inn.Overs) - 1; i >= 0; i-- {
		if inn.Overs[i].Completed {
			return inn.Overs[i].BowlerID
		}
	}
	return ""
}

// Progress is the running total in rule-engine terms.
func (inn *Innings) Progress() rules.InningsProgress {
	return rules.InningsProgress{
		Runs:            inn.Runs,
		Wickets:         inn.Wickets,
		LegalDeliveries: inn.LegalDeliveries,
		Target:          inn.Target,
	}
}

// Fingerprint is a content hash of the aggregate, used to assert that
// replay reproduces live state exactly.
func (inn *Innings) Fingerprint() (string, error) {
	raw, err := canonical.Marshal(inn)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (inn *Innings) batsman(playerID string) *BatsmanCard {
	for _, c := range inn.Batsmen {
		if c.PlayerID == playerID {
			return c
		}
	}
	c := &BatsmanCard{PlayerID: playerID}
	inn.Batsmen = append(inn.Batsmen, c)
	return c
}

func (inn *Innings) bowler(playerID string) *BowlerCard {
	for _, c := range inn.Bowlers {
		if c.PlayerID == playerID {
			return c
		}
	}
	c := &BowlerCard{PlayerID: playerID}
	inn.Bowlers = append(inn.Bowlers, c)
	return c
}

// ensureOver returns the over card a folded ball belongs to, creating
// it from the ball itself during replay.
func (inn *Innings) ensureOver(b *domain.Ball) *OverCard {
	if over := inn.CurrentOver(); over != nil && over.Number == b.Ref.OverNumber {
		return over
	}
	return inn.OpenOver(&domain.Over{
		ID:        b.OverID,
		InningsID: b.InningsID,
		Number:    b.Ref.OverNumber,
		BowlerID:  b.BowlerID,
	})
}
