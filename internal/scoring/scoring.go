// Package scoring converts a completed race's results into roster points:
// base driver and constructor points, the ace multiplier, the hot-hand bonus
// for a contract's first race, the stale-roster penalty, and the late-joiner
// catch-up.
//
// Rule ordering for a contract that is both newly added and designated ace:
// the ace multiplier applies to the base points first; the hot-hand bonus is
// added afterwards and is never multiplied.
//
// The engine returns the roster's points for one race; accumulating season
// totals, history, and cross-league win tallies is the caller's job.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/model"
)

// Breakdown itemizes one roster's points for one race. RaceTotal excludes
// banked locked points; season totals add those separately so the bank is
// counted once, not once per race.
type Breakdown struct {
	Base         decimal.Decimal `json:"base"`
	AceBonus     decimal.Decimal `json:"ace_bonus"`
	HotHand      decimal.Decimal `json:"hot_hand"`
	CatchUp      decimal.Decimal `json:"catch_up"`
	StalePenalty decimal.Decimal `json:"stale_penalty"` // magnitude; subtracted from the total
	RaceTotal    decimal.Decimal `json:"race_total"`
}

// Score computes the roster's points for one completed race and credits each
// contract's share onto the contract. assets resolves constructor driver
// pairings and current prices.
func Score(r *model.Roster, res *model.RaceResult, assets map[string]*model.Asset, rules *config.RuleSet) Breakdown {
	var b Breakdown
	b.Base = decimal.Zero
	b.AceBonus = decimal.Zero
	b.HotHand = decimal.Zero
	b.CatchUp = decimal.Zero
	b.StalePenalty = decimal.Zero

	for _, c := range r.Drivers {
		scoreContract(r, c, res, assets, rules, &b)
	}
	if r.Constructor != nil {
		scoreContract(r, r.Constructor, res, assets, rules, &b)
	}

	// Stale-roster penalty: one flat deduction per race beyond the
	// threshold. Any transfer resets the counter.
	r.RacesSinceTransfer++
	if r.RacesSinceTransfer > rules.StaleThreshold {
		b.StalePenalty = rules.StalePenalty
	}

	// Late-joiner catch-up: flat bonus per missed race, applied once.
	if !r.CatchUpApplied && r.JoinedAfterRace > 0 {
		b.CatchUp = rules.CatchUpPointsPerRace.Mul(decimal.NewFromInt(int64(r.JoinedAfterRace)))
		r.CatchUpApplied = true
	}

	b.RaceTotal = b.Base.Add(b.AceBonus).Add(b.HotHand).Add(b.CatchUp).Sub(b.StalePenalty)
	return b
}

func scoreContract(r *model.Roster, c *model.Contract, res *model.RaceResult, assets map[string]*model.Asset, rules *config.RuleSet, b *Breakdown) {
	// Pre-acquisition races never score.
	if c.AddedAtRace >= res.Round {
		return
	}

	var base decimal.Decimal
	var podium bool

	if c.Kind == model.KindConstructor {
		base = constructorPoints(c.AssetID, res, assets)
	} else {
		entry, ok := res.Entries[c.AssetID]
		if !ok {
			return
		}
		base = entryPoints(entry, res.Sprint)
		podium = !entry.DNF && entry.Position >= 1 && entry.Position <= 3
	}

	credited := base
	b.Base = b.Base.Add(base)

	if r.AceID == c.AssetID && c.CurrentPrice.LessThanOrEqual(rules.AcePriceCeiling) {
		aceBonus := base.Mul(rules.AceMultiplier).Sub(base)
		b.AceBonus = b.AceBonus.Add(aceBonus)
		credited = credited.Add(aceBonus)
	}

	// Hot-hand: first race with this contract, drivers only, one bonus with
	// podium precedence.
	if c.Kind == model.KindDriver && c.RacesHeld == 0 {
		var bonus decimal.Decimal
		switch {
		case podium:
			bonus = rules.HotHandPodiumBonus
		case base.GreaterThanOrEqual(rules.HotHandPointsThreshold):
			bonus = rules.HotHandPointsBonus
		}
		if bonus.IsPositive() {
			b.HotHand = b.HotHand.Add(bonus)
			credited = credited.Add(bonus)
		}
	}

	c.PointsScored = c.PointsScored.Add(credited)
}

// constructorPoints sums the race-weekend points of the constructor's two
// drivers.
func constructorPoints(constructorID string, res *model.RaceResult, assets map[string]*model.Asset) decimal.Decimal {
	a, ok := assets[constructorID]
	if !ok {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, driverID := range a.DriverIDs {
		if entry, ok := res.Entries[driverID]; ok {
			total = total.Add(entryPoints(entry, res.Sprint))
		}
	}
	return total
}

func entryPoints(e model.ResultEntry, sprint bool) decimal.Decimal {
	pts := e.Points
	if sprint {
		pts = pts.Add(e.SprintPoints)
	}
	return pts
}
