// Package contract handles the contract lifecycle for held assets:
// purchase → hold → expiry → lockout → eligible-again.
//
// The once-per-race sweep advances held-for-race counters, expires stale
// contracts at market price, registers post-expiry lockouts, and prunes
// lockouts whose cooldown has elapsed. The sweep is idempotent with respect
// to missing contracts: removing an already-absent contract is a no-op.
package contract

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/model"
)

// SlotStatus classifies one driver slot of a roster. An explicit slot state
// makes the auto-fill precondition a pattern match instead of a multi-field
// check.
type SlotStatus string

const (
	SlotHeld           SlotStatus = "HELD"
	SlotEmpty          SlotStatus = "EMPTY"
	SlotPendingLockout SlotStatus = "PENDING_LOCKOUT"
)

// Slot describes the state of one driver slot.
type Slot struct {
	Status        SlotStatus
	Contract      *model.Contract // set when Status == SlotHeld
	AssetID       string          // set when Status == SlotPendingLockout
	LockoutExpiry int             // round after which the asset is purchasable again
}

// New creates a contract for an asset at its current market price.
// completedRaces is the number of races already run; the contract scores
// from the next race onward.
func New(a *model.Asset, rules *config.RuleSet, completedRaces int, autoFilled bool) *model.Contract {
	return &model.Contract{
		AssetID:       a.ID,
		Kind:          a.Kind,
		PurchasePrice: a.Price,
		CurrentPrice:  a.Price,
		PointsScored:  decimal.Zero,
		RacesHeld:     0,
		Length:        rules.ContractLength,
		AutoFilled:    autoFilled,
		AddedAtRace:   completedRaces,
	}
}

// Lockout reports whether assetID is locked out for the roster, and how many
// races remain before it clears. An asset is purchasable again once
// completedRaces ≥ its lockout expiry; staying past that point never
// re-locks it.
func Lockout(r *model.Roster, assetID string, completedRaces int) (remaining int, locked bool) {
	expiry, ok := r.Lockouts[assetID]
	if !ok || completedRaces >= expiry {
		return 0, false
	}
	return expiry - completedRaces, true
}

// Expired is one contract removed by the sweep, with the sale proceeds
// credited for it.
type Expired struct {
	Contract *model.Contract
	Proceeds decimal.Decimal
}

// SweepResult summarizes one roster's expiry/lockout sweep for a race.
type SweepResult struct {
	Expired     []Expired
	OpenSlots   int  // driver slots free after expiries
	CanAutoFill bool // open slots exist and no lockouts are pending
}

// Sweep runs the per-roster expiry and lockout pass for the race numbered
// round, in order:
//
//  1. Increment racesHeld for every held contract.
//  2. Expire contracts whose racesHeld reached the contract length: sell at
//     current market price (no early-termination fee on natural expiry),
//     bank accumulated points into locked points, register a lockout, and
//     clear the ace designation if it pointed at the expired asset.
//  3. Prune lockouts whose expiry round has passed.
func Sweep(r *model.Roster, rules *config.RuleSet, round int) SweepResult {
	var res SweepResult

	if r.Lockouts == nil {
		r.Lockouts = make(map[string]int)
	}

	advance := func(c *model.Contract) {
		c.RacesHeld++
	}
	for _, c := range r.Drivers {
		advance(c)
	}
	if r.Constructor != nil {
		advance(r.Constructor)
	}

	expire := func(c *model.Contract) {
		r.Budget = r.Budget.Add(c.CurrentPrice)
		r.LockedPoints = r.LockedPoints.Add(c.PointsScored)
		r.Lockouts[c.AssetID] = round + rules.LockoutRaces
		if r.AceID == c.AssetID {
			r.AceID = ""
		}
		res.Expired = append(res.Expired, Expired{Contract: c, Proceeds: c.CurrentPrice})
	}

	kept := r.Drivers[:0]
	for _, c := range r.Drivers {
		if c.RacesHeld >= c.Length {
			expire(c)
			continue
		}
		kept = append(kept, c)
	}
	r.Drivers = kept

	if r.Constructor != nil && r.Constructor.RacesHeld >= r.Constructor.Length {
		expire(r.Constructor)
		r.Constructor = nil
	}

	for assetID, expiry := range r.Lockouts {
		if round >= expiry {
			delete(r.Lockouts, assetID)
		}
	}

	res.OpenSlots = rules.DriverSlots - len(r.Drivers)
	res.CanAutoFill = res.OpenSlots > 0 && len(r.Lockouts) == 0
	return res
}

// Slots returns the roster's driver slots as explicit states: held contracts
// first, then pending lockouts, then empties up to the configured slot count.
func Slots(r *model.Roster, rules *config.RuleSet, completedRaces int) []Slot {
	slots := make([]Slot, 0, rules.DriverSlots)
	for _, c := range r.Drivers {
		slots = append(slots, Slot{Status: SlotHeld, Contract: c})
	}
	pending := make([]string, 0, len(r.Lockouts))
	for assetID, expiry := range r.Lockouts {
		if completedRaces < expiry {
			pending = append(pending, assetID)
		}
	}
	sort.Strings(pending)
	for _, assetID := range pending {
		if len(slots) >= rules.DriverSlots {
			break
		}
		slots = append(slots, Slot{Status: SlotPendingLockout, AssetID: assetID, LockoutExpiry: r.Lockouts[assetID]})
	}
	for len(slots) < rules.DriverSlots {
		slots = append(slots, Slot{Status: SlotEmpty})
	}
	return slots
}
