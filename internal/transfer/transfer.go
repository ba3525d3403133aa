// Package transfer implements the buy/sell/swap operations of the roster
// economy: purchase cost, sale commission, early-termination fees, and the
// value-capture bonus for profitable sales.
//
// Every operation either applies fully or rejects with a typed error and no
// state change. Budget solvency is checked before any mutation; no operation
// leaves a roster with a negative budget, even transiently.
//
// All monetary values use shopspring/decimal — never float64 for money.
package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/contract"
	"github.com/gridpit/economy-engine/internal/model"
)

var (
	// ErrRosterFull is returned when all driver slots are taken.
	ErrRosterFull = errors.New("transfer: driver slots full")

	// ErrConstructorSet is returned when a constructor is already held.
	ErrConstructorSet = errors.New("transfer: constructor already held")

	// ErrDuplicateAsset is returned when the asset is already on the roster.
	ErrDuplicateAsset = errors.New("transfer: asset already held")

	// ErrAssetLockedOut is the match target for LockoutError.
	ErrAssetLockedOut = errors.New("transfer: asset locked out")

	// ErrInsufficientBudget is the match target for BudgetError.
	ErrInsufficientBudget = errors.New("transfer: insufficient budget")

	// ErrNotHeld is returned when selling an asset the roster does not hold.
	ErrNotHeld = errors.New("transfer: asset not held")
)

// LockoutError reports a rejected transfer against a locked-out asset,
// surfacing the remaining cooldown to the caller.
type LockoutError struct {
	AssetID   string
	Remaining int // races until the asset is purchasable again
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("transfer: asset %s locked out for %d more race(s)", e.AssetID, e.Remaining)
}

func (e *LockoutError) Is(target error) bool { return target == ErrAssetLockedOut }

// BudgetError reports a rejected transfer that would overdraw the budget,
// stating the shortfall.
type BudgetError struct {
	Shortfall decimal.Decimal
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("transfer: insufficient budget, short by %s", e.Shortfall)
}

func (e *BudgetError) Is(target error) bool { return target == ErrInsufficientBudget }

// --- Fee math ---

var ten = decimal.NewFromInt(10)

// SaleProceeds returns the commission-adjusted proceeds of a voluntary sale:
// floor(price × (1 − saleCommissionRate)).
func SaleProceeds(price decimal.Decimal, rules *config.RuleSet) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return price.Mul(one.Sub(rules.SaleCommissionRate)).Floor()
}

// EarlyTerminationFee returns the fee for breaking an unexpired contract:
// floor(price × earlyTerminationRate × racesRemaining).
func EarlyTerminationFee(price decimal.Decimal, rules *config.RuleSet, racesRemaining int) decimal.Decimal {
	return price.Mul(rules.EarlyTerminationRate).Mul(decimal.NewFromInt(int64(racesRemaining))).Floor()
}

// ValueCaptureBonus returns the bonus points for selling above the purchase
// price: floor(profit / 10) × valueCaptureRate. Zero when there is no profit.
func ValueCaptureBonus(purchasePrice, salePrice decimal.Decimal, rules *config.RuleSet) decimal.Decimal {
	profit := salePrice.Sub(purchasePrice)
	if profit.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return profit.Div(ten).Floor().Mul(rules.ValueCaptureRate)
}

// --- Operations ---

// Buy acquires the asset for the roster at current market price.
// completedRaces is the number of races already run.
func Buy(r *model.Roster, a *model.Asset, rules *config.RuleSet, completedRaces int, autoFilled bool) (*model.Contract, model.TradeLogEntry, error) {
	if err := validateBuy(r, a, rules, completedRaces); err != nil {
		return nil, model.TradeLogEntry{}, err
	}

	c := contract.New(a, rules, completedRaces, autoFilled)
	r.Budget = r.Budget.Sub(a.Price)
	if a.Kind == model.KindConstructor {
		r.Constructor = c
	} else {
		r.Drivers = append(r.Drivers, c)
	}
	r.RacesSinceTransfer = 0

	action := model.ActionBuy
	reason := "manual purchase"
	if autoFilled {
		action = model.ActionAutoFill
		reason = "reserve auto-fill"
	}
	return c, logEntry(r, completedRaces, action, a.ID, a.Price, decimal.Zero, reason), nil
}

// Sell releases the asset. An unexpired contract pays the early-termination
// fee in place of the sale commission; accumulated contract points are banked
// into locked points, and a profitable sale earns the value-capture bonus.
func Sell(r *model.Roster, a *model.Asset, rules *config.RuleSet, completedRaces int) (decimal.Decimal, model.TradeLogEntry, error) {
	return sell(r, a, rules, completedRaces, model.ActionSell)
}

// Swap atomically replaces oldAsset with newAsset. The net budget delta is
// validated up front; on any rejection neither side of the swap is applied.
func Swap(r *model.Roster, oldAsset, newAsset *model.Asset, rules *config.RuleSet, completedRaces int) ([]model.TradeLogEntry, error) {
	c := r.Contract(oldAsset.ID)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotHeld, oldAsset.ID)
	}
	if r.Holds(newAsset.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, newAsset.ID)
	}
	if oldAsset.Kind != newAsset.Kind {
		return nil, fmt.Errorf("transfer: cannot swap %s for %s", oldAsset.Kind, newAsset.Kind)
	}
	if remaining, locked := contract.Lockout(r, newAsset.ID, completedRaces); locked {
		return nil, &LockoutError{AssetID: newAsset.ID, Remaining: remaining}
	}

	proceeds := sellProceeds(c, oldAsset.Price, rules)
	net := newAsset.Price.Sub(proceeds)
	if net.GreaterThan(r.Budget) {
		return nil, &BudgetError{Shortfall: net.Sub(r.Budget)}
	}

	_, outEntry, err := sell(r, oldAsset, rules, completedRaces, model.ActionSwapOut)
	if err != nil {
		return nil, err
	}
	inContract := contract.New(newAsset, rules, completedRaces, false)
	r.Budget = r.Budget.Sub(newAsset.Price)
	if newAsset.Kind == model.KindConstructor {
		r.Constructor = inContract
	} else {
		r.Drivers = append(r.Drivers, inContract)
	}
	r.RacesSinceTransfer = 0

	inEntry := logEntry(r, completedRaces, model.ActionSwapIn, newAsset.ID, newAsset.Price, decimal.Zero,
		"swap for "+oldAsset.ID)
	return []model.TradeLogEntry{outEntry, inEntry}, nil
}

func validateBuy(r *model.Roster, a *model.Asset, rules *config.RuleSet, completedRaces int) error {
	if a.Kind == model.KindConstructor {
		if r.Constructor != nil {
			return ErrConstructorSet
		}
	} else if len(r.Drivers) >= rules.DriverSlots {
		return ErrRosterFull
	}
	if r.Holds(a.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateAsset, a.ID)
	}
	if remaining, locked := contract.Lockout(r, a.ID, completedRaces); locked {
		return &LockoutError{AssetID: a.ID, Remaining: remaining}
	}
	if a.Price.GreaterThan(r.Budget) {
		return &BudgetError{Shortfall: a.Price.Sub(r.Budget)}
	}
	return nil
}

// sellProceeds picks the fee schedule for a sale: an unexpired contract pays
// the early-termination fee off the full market price; otherwise the flat
// sale commission applies.
func sellProceeds(c *model.Contract, price decimal.Decimal, rules *config.RuleSet) decimal.Decimal {
	if remaining := c.RacesRemaining(); remaining > 0 {
		return price.Sub(EarlyTerminationFee(price, rules, remaining))
	}
	return SaleProceeds(price, rules)
}

func sell(r *model.Roster, a *model.Asset, rules *config.RuleSet, completedRaces int, action model.TradeAction) (decimal.Decimal, model.TradeLogEntry, error) {
	c := r.Contract(a.ID)
	if c == nil {
		return decimal.Zero, model.TradeLogEntry{}, fmt.Errorf("%w: %s", ErrNotHeld, a.ID)
	}

	proceeds := sellProceeds(c, a.Price, rules)
	fee := a.Price.Sub(proceeds)
	bonus := ValueCaptureBonus(c.PurchasePrice, a.Price, rules)

	r.Budget = r.Budget.Add(proceeds)
	r.LockedPoints = r.LockedPoints.Add(c.PointsScored).Add(bonus)
	if r.AceID == a.ID {
		r.AceID = ""
	}
	r.RacesSinceTransfer = 0
	removeContract(r, a.ID)

	reason := "voluntary sale"
	if c.RacesRemaining() > 0 {
		reason = fmt.Sprintf("early termination, %d race(s) remaining", c.RacesRemaining())
	}
	if bonus.IsPositive() {
		reason += fmt.Sprintf(", value capture +%s pts", bonus)
	}
	return proceeds, logEntry(r, completedRaces, action, a.ID, proceeds, fee, reason), nil
}

func removeContract(r *model.Roster, assetID string) {
	for i, c := range r.Drivers {
		if c.AssetID == assetID {
			r.Drivers = append(r.Drivers[:i], r.Drivers[i+1:]...)
			return
		}
	}
	if r.Constructor != nil && r.Constructor.AssetID == assetID {
		r.Constructor = nil
	}
}

func logEntry(r *model.Roster, round int, action model.TradeAction, assetID string, price, fee decimal.Decimal, reason string) model.TradeLogEntry {
	return model.TradeLogEntry{
		ID:        uuid.New().String(),
		Round:     round,
		RosterID:  r.ID,
		Action:    action,
		AssetID:   assetID,
		Price:     price,
		Fee:       fee,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}
