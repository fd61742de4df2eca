package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBallRefDecimal(t *testing.T) {
	assert.Equal(t, "0.1", BallRef{OverNumber: 1, BallInOver: 1}.Decimal())
	assert.Equal(t, "1.3", BallRef{OverNumber: 2, BallInOver: 3}.Decimal())
	assert.Equal(t, "19.6", BallRef{OverNumber: 20, BallInOver: 6}.Decimal())
}

func TestParseBallRef(t *testing.T) {
	ref, err := ParseBallRef("19.6")
	require.NoError(t, err)
	assert.Equal(t, BallRef{OverNumber: 20, BallInOver: 6}, ref)

	ref, err = ParseBallRef("0.1")
	require.NoError(t, err)
	assert.Equal(t, BallRef{OverNumber: 1, BallInOver: 1}, ref)

	for _, bad := range []string{"", "3", "a.b", "-1.2", "2.0"} {
		_, err := ParseBallRef(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestBallRefOrdering(t *testing.T) {
	a := BallRef{OverNumber: 5, BallInOver: 2}
	b := BallRef{OverNumber: 5, BallInOver: 2, Attempt: 1}
	c := BallRef{OverNumber: 5, BallInOver: 3}
	d := BallRef{OverNumber: 6, BallInOver: 1}
	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.True(t, c.Before(d))
	assert.False(t, d.Before(a))
	assert.False(t, a.Before(a))
}

func TestBallRunAttribution(t *testing.T) {
	rules := DefaultRules()
	cases := []struct {
		name    string
		ball    Ball
		team    int
		batsman int
		bowler  int
		legal   bool
	}{
		{"dot", Ball{ExtraKind: ExtraNone}, 0, 0, 0, true},
		{"single", Ball{RunsOffBat: 1, ExtraKind: ExtraNone}, 1, 1, 1, true},
		{"four", Ball{RunsOffBat: 4, ExtraKind: ExtraNone}, 4, 4, 4, true},
		{"wide", Ball{ExtraKind: ExtraWide}, 1, 0, 1, false},
		{"wide plus two ran", Ball{ExtraKind: ExtraWide, ExtraRuns: 2}, 3, 0, 3, false},
		{"no ball plus four off bat", Ball{RunsOffBat: 4, ExtraKind: ExtraNoBall}, 5, 4, 5, false},
		{"two byes", Ball{ExtraKind: ExtraBye, ExtraRuns: 2}, 2, 0, 0, true},
		{"leg bye", Ball{ExtraKind: ExtraLegBye, ExtraRuns: 1}, 1, 0, 0, true},
		{"penalty five", Ball{ExtraKind: ExtraPenalty, ExtraRuns: 5}, 5, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.team, tc.ball.TeamRuns(rules), "team runs")
			assert.Equal(t, tc.batsman, tc.ball.BatsmanRuns(), "batsman runs")
			assert.Equal(t, tc.bowler, tc.ball.BowlerRuns(rules), "bowler runs")
			assert.Equal(t, tc.legal, tc.ball.ExtraKind.Legal(), "legality")
		})
	}
}

func TestBallRotatesStrike(t *testing.T) {
	assert.False(t, (&Ball{RunsOffBat: 0}).RotatesStrike())
	assert.True(t, (&Ball{RunsOffBat: 1}).RotatesStrike())
	assert.False(t, (&Ball{RunsOffBat: 2}).RotatesStrike())
	assert.True(t, (&Ball{RunsOffBat: 3}).RotatesStrike())
	// A struck boundary scores without anyone running.
	assert.False(t, (&Ball{RunsOffBat: 4, IsBoundary: true, BoundaryKind: BoundaryFour}).RotatesStrike())
	assert.False(t, (&Ball{RunsOffBat: 6, IsBoundary: true, BoundaryKind: BoundarySix}).RotatesStrike())
	// Four all run is four completed runs, an even number of crossings.
	assert.False(t, (&Ball{RunsOffBat: 4}).RotatesStrike())
	// Byes and wides rotate on what the batsmen actually ran.
	assert.True(t, (&Ball{ExtraKind: ExtraBye, ExtraRuns: 1}).RotatesStrike())
	assert.False(t, (&Ball{ExtraKind: ExtraWide, ExtraRuns: 2}).RotatesStrike())
	assert.True(t, (&Ball{ExtraKind: ExtraWide, ExtraRuns: 1}).RotatesStrike())
}

func TestBallSymbol(t *testing.T) {
	assert.Equal(t, ".", (&Ball{}).Symbol())
	assert.Equal(t, "4", (&Ball{RunsOffBat: 4}).Symbol())
	assert.Equal(t, "wd", (&Ball{ExtraKind: ExtraWide}).Symbol())
	assert.Equal(t, "2wd", (&Ball{ExtraKind: ExtraWide, ExtraRuns: 2}).Symbol())
	assert.Equal(t, "nb", (&Ball{ExtraKind: ExtraNoBall}).Symbol())
	assert.Equal(t, "4nb", (&Ball{RunsOffBat: 4, ExtraKind: ExtraNoBall}).Symbol())
	assert.Equal(t, "2b", (&Ball{ExtraKind: ExtraBye, ExtraRuns: 2}).Symbol())
	assert.Equal(t, "1lb", (&Ball{ExtraKind: ExtraLegBye, ExtraRuns: 1}).Symbol())
	assert.Equal(t, "W", (&Ball{IsWicket: true}).Symbol())
	assert.Equal(t, "1W", (&Ball{RunsOffBat: 1, IsWicket: true}).Symbol())
}

func TestDismissalKindRules(t *testing.T) {
	assert.True(t, DismissalBowled.CreditsBowler())
	assert.True(t, DismissalCaught.CreditsBowler())
	assert.True(t, DismissalStumped.CreditsBowler())
	assert.False(t, DismissalRunOut.CreditsBowler())
	assert.False(t, DismissalRetired.CreditsBowler())

	assert.True(t, DismissalBowled.OnLegalDeliveryOnly())
	assert.True(t, DismissalCaught.OnLegalDeliveryOnly())
	// Stumping off a wide and run-out off a no-ball are both possible.
	assert.False(t, DismissalStumped.OnLegalDeliveryOnly())
	assert.False(t, DismissalRunOut.OnLegalDeliveryOnly())
}
