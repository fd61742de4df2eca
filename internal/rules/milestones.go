package rules

// MilestoneKind classifies a notable moment worth announcing to
// subscribers the instant it happens.
type MilestoneKind string

const (
	MilestoneFifty       MilestoneKind = "fifty"
	MilestoneCentury     MilestoneKind = "century"
	MilestoneHatTrick    MilestoneKind = "hat_trick"
	MilestoneTeamFifty   MilestoneKind = "team_fifty"
	MilestoneTeamHundred MilestoneKind = "team_hundred"
	MilestoneFiveWickets MilestoneKind = "five_wickets"
)

// Milestone is one detected moment.
type Milestone struct {
	Kind     MilestoneKind `json:"kind"`
	PlayerID string        `json:"playerId,omitempty"`
	TeamID   string        `json:"teamId,omitempty"`
	Value    int           `json:"value"`
}

// BatsmanMilestones reports the personal marks crossed by a score
// moving from before to after. Every multiple of fifty is a mark, so a
// batsman on 148 who hits a boundary raises 150.
func BatsmanMilestones(playerID string, before, after int) []Milestone {
	var out []Milestone
	for mark := (before/50 + 1) * 50; mark <= after; mark += 50 {
		kind := MilestoneFifty
		if mark%100 == 0 {
			kind = MilestoneCentury
		}
		out = append(out, Milestone{Kind: kind, PlayerID: playerID, Value: after})
	}
	return out
}

// TeamMilestones reports the team totals crossed by a score moving from
// before to after.
func TeamMilestones(teamID string, before, after int) []Milestone {
	var out []Milestone
	if before < 50 && after >= 50 {
		out = append(out, Milestone{Kind: MilestoneTeamFifty, TeamID: teamID, Value: after})
	}
	if before < 100 && after >= 100 {
		out = append(out, Milestone{Kind: MilestoneTeamHundred, TeamID: teamID, Value: after})
	}
	return out
}

// BowlerMilestones reports wicket-haul marks.
func BowlerMilestones(playerID string, before, after int) []Milestone {
	if before < 5 && after >= 5 {
		return []Milestone{{Kind: MilestoneFiveWickets, PlayerID: playerID, Value: after}}
	}
	return nil
}

// HatTrick reports whether the trailing three entries of a bowler's
// credited-wicket sequence are all wickets. The sequence holds one bool
// per legal delivery by that bowler in the innings, oldest first.
func HatTrick(wicketByDelivery []bool) bool {
	n := len(wicketByDelivery)
	if n < 3 {
		return false
	}
	return wicketByDelivery[n-1] && wicketByDelivery[n-2] && wicketByDelivery[n-3]
}

// MilestoneInput is the before/after readings for one committed ball.
type MilestoneInput struct {
	BattingTeamID     string
	TeamRunsBefore    int
	TeamRunsAfter     int
	StrikerID         string
	StrikerRunsBefore int
	StrikerRunsAfter  int
	BowlerID          string
	BowlerWktsBefore  int
	BowlerWktsAfter   int
	BowlerSequence    []bool
}

// DetectMilestones bundles every check run after one committed ball.
func DetectMilestones(in MilestoneInput) []Milestone {
	var out []Milestone
	out = append(out, BatsmanMilestones(in.StrikerID, in.StrikerRunsBefore, in.StrikerRunsAfter)...)
	out = append(out, TeamMilestones(in.BattingTeamID, in.TeamRunsBefore, in.TeamRunsAfter)...)
	out = append(out, BowlerMilestones(in.BowlerID, in.BowlerWktsBefore, in.BowlerWktsAfter)...)
	if in.BowlerWktsAfter > in.BowlerWktsBefore && HatTrick(in.BowlerSequence) {
		out = append(out, Milestone{Kind: MilestoneHatTrick, PlayerID: in.BowlerID, Value: in.BowlerWktsAfter})
	}
	return out
}
