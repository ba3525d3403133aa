// Package pricing converts rolling race performance into a bounded,
// rate-limited market price per asset.
//
// The model keeps a capped most-recent-first window of per-race point totals
// (sprint races carry reduced weight), maps the weighted average to a target
// price, and moves the current price toward the target by at most
// MaxChangePerRace, clamped to [MinPrice, MaxPrice].
//
// All monetary values use shopspring/decimal — never float64 for money.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/model"
)

// Model applies the price evolution rules. It is stateless — asset form and
// prices live on the Asset, passed as an argument.
type Model struct {
	rules *config.RuleSet
}

// New creates a pricing model bound to a rule set.
func New(rules *config.RuleSet) *Model {
	return &Model{rules: rules}
}

// InitialPrice derives a season-opening price from the prior-season average
// points, using the same points→price mapping as in-season updates.
func (m *Model) InitialPrice(prevSeasonAvg decimal.Decimal) decimal.Decimal {
	target := prevSeasonAvg.Mul(m.rules.DollarsPerPoint).Round(0)
	return clamp(target, m.rules.MinPrice, m.rules.MaxPrice)
}

// Update applies one completed race to the asset: prepends the race's point
// total to the rolling window, recomputes the weighted average, and moves the
// price toward the target within the per-race change limit.
//
// Mutates only the asset's price fields and rolling history.
func (m *Model) Update(a *model.Asset, points decimal.Decimal, sprint bool) {
	a.RecentForm = append([]model.RacePoints{{Points: points, Sprint: sprint}}, a.RecentForm...)
	if len(a.RecentForm) > m.rules.WindowSize {
		a.RecentForm = a.RecentForm[:m.rules.WindowSize]
	}

	avg := m.weightedAverage(a.RecentForm)
	target := avg.Mul(m.rules.DollarsPerPoint).Round(0)

	change := clamp(target.Sub(a.Price), m.rules.MaxChangePerRace.Neg(), m.rules.MaxChangePerRace)

	a.PrevPrice = a.Price
	a.Price = clamp(a.Price.Add(change), m.rules.MinPrice, m.rules.MaxPrice)
}

// weightedAverage computes the sprint-weighted rolling average:
// sprint entries count at SprintWeight, standard races at full weight.
func (m *Model) weightedAverage(form []model.RacePoints) decimal.Decimal {
	if len(form) == 0 {
		return decimal.Zero
	}

	one := decimal.NewFromInt(1)
	sum := decimal.Zero
	weights := decimal.Zero

	for _, f := range form {
		w := one
		if f.Sprint {
			w = m.rules.SprintWeight
		}
		sum = sum.Add(f.Points.Mul(w))
		weights = weights.Add(w)
	}

	return sum.Div(weights)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
