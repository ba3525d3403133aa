// Package league derives cross-roster statistics from per-race point series.
//
// Tie rule: when two or more rosters share the highest score for a race, no
// winner is awarded for that round. This is deterministic and independent of
// roster ordering.
//
// Late joiners enter with a zero-padded points history, so their pre-join
// rounds count as zero-scoring participation. A round that produced no winner
// while the league had a single roster therefore becomes contested once a
// second roster joins, and the tally retroactively awards it.
package league

import (
	"sort"

	"github.com/gridpit/economy-engine/internal/model"
)

// RaceWins recomputes the per-roster race-win tally from each roster's
// points history. A round produces a winner only when at least two rosters
// competed in it and exactly one scored the strict maximum.
func RaceWins(rosters []*model.Roster) map[string]int {
	wins := make(map[string]int, len(rosters))
	for _, r := range rosters {
		wins[r.ID] = 0
	}
	if len(rosters) < 2 {
		return wins
	}

	rounds := 0
	for _, r := range rosters {
		if len(r.PointsHistory) > rounds {
			rounds = len(r.PointsHistory)
		}
	}

	for round := 0; round < rounds; round++ {
		var leader *model.Roster
		tied := false
		competitors := 0

		for _, r := range rosters {
			if round >= len(r.PointsHistory) {
				continue
			}
			competitors++
			switch {
			case leader == nil:
				leader = r
			case r.PointsHistory[round].GreaterThan(leader.PointsHistory[round]):
				leader = r
				tied = false
			case r.PointsHistory[round].Equal(leader.PointsHistory[round]):
				tied = true
			}
		}

		if leader != nil && !tied && competitors >= 2 {
			wins[leader.ID]++
		}
	}
	return wins
}

// Apply recomputes race wins and writes them onto the rosters.
func Apply(rosters []*model.Roster) {
	wins := RaceWins(rosters)
	for _, r := range rosters {
		r.RaceWins = wins[r.ID]
	}
}

// Standings returns the league table ordered by total points descending,
// race wins and then roster ID breaking ties.
func Standings(rosters []*model.Roster) []model.Standing {
	table := make([]model.Standing, 0, len(rosters))
	for _, r := range rosters {
		table = append(table, model.Standing{
			RosterID:    r.ID,
			Name:        r.Name,
			TotalPoints: r.TotalPoints,
			RaceWins:    r.RaceWins,
		})
	}

	sort.Slice(table, func(i, j int) bool {
		if !table[i].TotalPoints.Equal(table[j].TotalPoints) {
			return table[i].TotalPoints.GreaterThan(table[j].TotalPoints)
		}
		if table[i].RaceWins != table[j].RaceWins {
			return table[i].RaceWins > table[j].RaceWins
		}
		return table[i].RosterID < table[j].RosterID
	})
	return table
}
