package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBall() BallPayload {
	return BallPayload{
		InningsID:    NewID(),
		OverID:       NewID(),
		OverNumber:   6,
		BallInOver:   2,
		BowlerID:     "bowler-1",
		StrikerID:    "bat-1",
		NonStrikerID: "bat-2",
		ExtraKind:    ExtraNone,
	}
}

func TestBallPayloadValidate(t *testing.T) {
	good := validBall()
	require.NoError(t, good.Validate())

	t.Run("missing innings", func(t *testing.T) {
		p := validBall()
		p.InningsID = ""
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("runs out of range", func(t *testing.T) {
		p := validBall()
		p.RunsOffBat = 7
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("unknown extra", func(t *testing.T) {
		p := validBall()
		p.ExtraKind = "overthrow"
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("extra runs without extra", func(t *testing.T) {
		p := validBall()
		p.ExtraRuns = 2
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("bye needs runs", func(t *testing.T) {
		p := validBall()
		p.ExtraKind = ExtraBye
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("struck four accepted", func(t *testing.T) {
		p := validBall()
		p.RunsOffBat = 4
		p.IsBoundary = true
		p.BoundaryKind = BoundaryFour
		assert.NoError(t, p.Validate())
	})
	t.Run("boundary without kind", func(t *testing.T) {
		p := validBall()
		p.RunsOffBat = 4
		p.IsBoundary = true
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("four scoring two rejected", func(t *testing.T) {
		p := validBall()
		p.RunsOffBat = 2
		p.IsBoundary = true
		p.BoundaryKind = BoundaryFour
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("kind without boundary flag", func(t *testing.T) {
		p := validBall()
		p.RunsOffBat = 6
		p.BoundaryKind = BoundarySix
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("wicket without detail", func(t *testing.T) {
		p := validBall()
		p.IsWicket = true
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("bowled off a wide rejected", func(t *testing.T) {
		p := validBall()
		p.ExtraKind = ExtraWide
		p.IsWicket = true
		p.Wicket = &WicketCall{Kind: DismissalBowled, BatsmanOutID: "bat-1"}
		assert.True(t, IsKind(p.Validate(), ErrInvalidArgument))
	})
	t.Run("stumped off a wide allowed", func(t *testing.T) {
		p := validBall()
		p.ExtraKind = ExtraWide
		p.IsWicket = true
		p.Wicket = &WicketCall{Kind: DismissalStumped, BatsmanOutID: "bat-1"}
		assert.NoError(t, p.Validate())
	})
}

func TestBallPayloadAgreesWith(t *testing.T) {
	a := validBall()
	b := validBall()
	b.InningsID = a.InningsID

	ok, _ := a.AgreesWith(&b)
	assert.True(t, ok, "identical score fields agree")

	t.Run("actor fields do not matter", func(t *testing.T) {
		c := b
		c.NonStrikerID = "someone-else"
		c.ShotKind = "cover drive"
		ok, _ := a.AgreesWith(&c)
		assert.True(t, ok)
	})
	t.Run("runs differ", func(t *testing.T) {
		c := b
		c.RunsOffBat = 4
		ok, kind := a.AgreesWith(&c)
		assert.False(t, ok)
		assert.Equal(t, DisputeRunsDiffer, kind)
	})
	t.Run("struck four versus four all run", func(t *testing.T) {
		x := validBall()
		x.RunsOffBat = 4
		x.IsBoundary = true
		x.BoundaryKind = BoundaryFour
		y := validBall()
		y.InningsID = x.InningsID
		y.RunsOffBat = 4
		ok, kind := x.AgreesWith(&y)
		assert.False(t, ok, "same total, different deliveries")
		assert.Equal(t, DisputeRunsDiffer, kind)
	})
	t.Run("extra kind differs", func(t *testing.T) {
		c := b
		c.ExtraKind = ExtraWide
		ok, kind := a.AgreesWith(&c)
		assert.False(t, ok)
		assert.Equal(t, DisputeExtraKindDiffer, kind)
	})
	t.Run("wicket differs", func(t *testing.T) {
		c := b
		c.IsWicket = true
		c.Wicket = &WicketCall{Kind: DismissalCaught, BatsmanOutID: "bat-1"}
		ok, kind := a.AgreesWith(&c)
		assert.False(t, ok)
		assert.Equal(t, DisputeWicketDiffer, kind)
	})
	t.Run("same wicket different batsman", func(t *testing.T) {
		x := validBall()
		x.IsWicket = true
		x.Wicket = &WicketCall{Kind: DismissalRunOut, BatsmanOutID: "bat-1"}
		y := x
		y.Wicket = &WicketCall{Kind: DismissalRunOut, BatsmanOutID: "bat-2"}
		ok, kind := x.AgreesWith(&y)
		assert.False(t, ok)
		assert.Equal(t, DisputeWicketDiffer, kind)
	})
}

func TestErrorTaxonomy(t *testing.T) {
	err := E(ErrConflict, "over %d already open", 7)
	assert.Equal(t, ErrConflict, KindOf(err))
	assert.Contains(t, err.Error(), "over 7 already open")

	wrapped := Wrap(ErrTransient, err, "enqueue")
	assert.Equal(t, ErrTransient, KindOf(wrapped))
	assert.ErrorContains(t, wrapped, "enqueue")

	detailed := E(ErrDisputed, "scorers disagree").WithDetail("disputeId", "d-1")
	assert.Equal(t, "d-1", detailed.Details["disputeId"])

	assert.Equal(t, ErrInternal, KindOf(assert.AnError))
}
