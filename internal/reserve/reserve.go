// Package reserve fills empty driver slots after contract expiries: the
// cheapest eligible assets are bought greedily until the roster is back to
// full strength or nothing affordable remains.
//
// Running short is an accepted, observable condition, not an error — the
// roster simply stays under strength until prices move or a manual purchase
// is made.
package reserve

import (
	"sort"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/contract"
	"github.com/gridpit/economy-engine/internal/model"
	"github.com/gridpit/economy-engine/internal/transfer"
)

// Fill tops the roster's driver slots up with reserve picks. Candidates are
// active drivers the roster does not hold and is not locked out of, cheapest
// first (asset ID breaks price ties for determinism). Returns the trade-log
// entries for the purchases made, possibly none.
func Fill(r *model.Roster, assets map[string]*model.Asset, rules *config.RuleSet, completedRaces int) []model.TradeLogEntry {
	candidates := make([]*model.Asset, 0, len(assets))
	for _, a := range assets {
		if a.Kind != model.KindDriver || r.Holds(a.ID) {
			continue
		}
		if _, locked := contract.Lockout(r, a.ID, completedRaces); locked {
			continue
		}
		candidates = append(candidates, a)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].Price.Equal(candidates[j].Price) {
			return candidates[i].Price.LessThan(candidates[j].Price)
		}
		return candidates[i].ID < candidates[j].ID
	})

	var entries []model.TradeLogEntry
	for _, a := range candidates {
		if len(r.Drivers) >= rules.DriverSlots {
			break
		}
		if a.Price.GreaterThan(r.Budget) {
			continue
		}
		_, entry, err := transfer.Buy(r, a, rules, completedRaces, true)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
