package contract_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/contract"
	"github.com/gridpit/economy-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testRoster() *model.Roster {
	return &model.Roster{
		ID:       "roster1",
		Budget:   d(500),
		Lockouts: make(map[string]int),
	}
}

func heldContract(assetID string, racesHeld, length int, price, points float64) *model.Contract {
	return &model.Contract{
		AssetID:      assetID,
		Kind:         model.KindDriver,
		CurrentPrice: d(price),
		PointsScored: d(points),
		RacesHeld:    racesHeld,
		Length:       length,
	}
}

func TestSweep_IncrementsRacesHeld(t *testing.T) {
	rules := config.Default()
	r := testRoster()
	r.Drivers = []*model.Contract{heldContract("HAM", 1, 5, 80, 12)}
	r.Constructor = &model.Contract{AssetID: "MER", Kind: model.KindConstructor, Length: 5, RacesHeld: 2, CurrentPrice: d(120)}

	contract.Sweep(r, rules, 3)

	if r.Drivers[0].RacesHeld != 2 {
		t.Errorf("driver racesHeld = %d, want 2", r.Drivers[0].RacesHeld)
	}
	if r.Constructor.RacesHeld != 3 {
		t.Errorf("constructor racesHeld = %d, want 3", r.Constructor.RacesHeld)
	}
}

func TestSweep_ExpiresExactlyAtContractLength(t *testing.T) {
	rules := config.Default()

	// racesHeld 3 → 4: one race short of the 5-race length, must survive.
	r := testRoster()
	r.Drivers = []*model.Contract{heldContract("HAM", 3, 5, 80, 12)}
	res := contract.Sweep(r, rules, 4)
	if len(res.Expired) != 0 {
		t.Fatalf("contract expired early at racesHeld=4")
	}

	// racesHeld 4 → 5: reaches the length, must expire now.
	res = contract.Sweep(r, rules, 5)
	if len(res.Expired) != 1 {
		t.Fatalf("expected expiry at racesHeld=5, got %d expired", len(res.Expired))
	}
	if len(r.Drivers) != 0 {
		t.Errorf("expired contract still held")
	}
}

func TestSweep_ExpirySellsAtMarketPriceAndBanksPoints(t *testing.T) {
	rules := config.Default()
	r := testRoster()
	r.Drivers = []*model.Contract{heldContract("HAM", 4, 5, 130, 47)}
	r.AceID = "HAM"

	res := contract.Sweep(r, rules, 6)

	// Full market price, no commission or fee on natural expiry.
	if !r.Budget.Equal(d(630)) {
		t.Errorf("budget = %s, want 630", r.Budget)
	}
	if !r.LockedPoints.Equal(d(47)) {
		t.Errorf("locked points = %s, want 47", r.LockedPoints)
	}
	if r.AceID != "" {
		t.Errorf("ace designation not cleared on expiry")
	}
	if !res.Expired[0].Proceeds.Equal(d(130)) {
		t.Errorf("proceeds = %s, want 130", res.Expired[0].Proceeds)
	}

	// Lockout registered for LockoutRaces beyond the expiry round.
	expiry, ok := r.Lockouts["HAM"]
	if !ok || expiry != 6+rules.LockoutRaces {
		t.Errorf("lockout expiry = %d (present=%v), want %d", expiry, ok, 6+rules.LockoutRaces)
	}
}

func TestSweep_AutoFillBlockedWhileLockoutPending(t *testing.T) {
	rules := config.Default()
	r := testRoster()
	r.Drivers = []*model.Contract{heldContract("HAM", 4, 5, 80, 10)}

	res := contract.Sweep(r, rules, 5)
	if res.OpenSlots != rules.DriverSlots {
		t.Errorf("open slots = %d, want %d", res.OpenSlots, rules.DriverSlots)
	}
	if res.CanAutoFill {
		t.Errorf("auto-fill allowed while lockout pending")
	}

	// Next race: lockout (expiry round 6) clears, auto-fill unblocks.
	res = contract.Sweep(r, rules, 6)
	if !res.CanAutoFill {
		t.Errorf("auto-fill still blocked after lockout cleared")
	}
	if len(r.Lockouts) != 0 {
		t.Errorf("lockout not pruned: %v", r.Lockouts)
	}
}

func TestLockout_ClearsAndNeverRelocks(t *testing.T) {
	r := testRoster()
	r.Lockouts["HAM"] = 6

	if remaining, locked := contract.Lockout(r, "HAM", 5); !locked || remaining != 1 {
		t.Errorf("at round 5: locked=%v remaining=%d, want locked with 1 remaining", locked, remaining)
	}
	for _, completed := range []int{6, 7, 20} {
		if _, locked := contract.Lockout(r, "HAM", completed); locked {
			t.Errorf("asset still locked at completedRaces=%d", completed)
		}
	}
	if _, locked := contract.Lockout(r, "VER", 5); locked {
		t.Errorf("unrelated asset reported locked")
	}
}

func TestSweep_IdempotentOnEmptyRoster(t *testing.T) {
	rules := config.Default()
	r := testRoster()

	res := contract.Sweep(r, rules, 3)
	if len(res.Expired) != 0 {
		t.Errorf("sweep of empty roster expired %d contracts", len(res.Expired))
	}
	if !r.Budget.Equal(d(500)) {
		t.Errorf("budget changed on empty sweep: %s", r.Budget)
	}
}

func TestSlots_ExplicitStates(t *testing.T) {
	rules := config.Default()
	r := testRoster()
	r.Drivers = []*model.Contract{heldContract("HAM", 1, 5, 80, 0), heldContract("VER", 2, 5, 200, 0)}
	r.Lockouts["LEC"] = 7

	slots := contract.Slots(r, rules, 6)

	if len(slots) != rules.DriverSlots {
		t.Fatalf("slot count = %d, want %d", len(slots), rules.DriverSlots)
	}
	if slots[0].Status != contract.SlotHeld || slots[1].Status != contract.SlotHeld {
		t.Errorf("first two slots should be held, got %s/%s", slots[0].Status, slots[1].Status)
	}
	if slots[2].Status != contract.SlotPendingLockout || slots[2].AssetID != "LEC" {
		t.Errorf("slot 2 = %+v, want pending lockout for LEC", slots[2])
	}
	if slots[3].Status != contract.SlotEmpty || slots[4].Status != contract.SlotEmpty {
		t.Errorf("trailing slots should be empty")
	}
}

func TestNew_ContractDefaults(t *testing.T) {
	rules := config.Default()
	a := &model.Asset{ID: "NOR", Kind: model.KindDriver, Price: d(150)}

	c := contract.New(a, rules, 8, true)

	if c.RacesHeld != 0 || c.Length != rules.ContractLength {
		t.Errorf("racesHeld/length = %d/%d, want 0/%d", c.RacesHeld, c.Length, rules.ContractLength)
	}
	if !c.PurchasePrice.Equal(d(150)) || !c.CurrentPrice.Equal(d(150)) {
		t.Errorf("prices = %s/%s, want 150/150", c.PurchasePrice, c.CurrentPrice)
	}
	if !c.AutoFilled || c.AddedAtRace != 8 {
		t.Errorf("autoFilled=%v addedAtRace=%d, want true/8", c.AutoFilled, c.AddedAtRace)
	}
}
