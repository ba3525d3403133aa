package scoring_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/model"
	"github.com/gridpit/economy-engine/internal/scoring"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func held(assetID string, racesHeld, addedAt int, price float64) *model.Contract {
	return &model.Contract{
		AssetID:      assetID,
		Kind:         model.KindDriver,
		CurrentPrice: d(price),
		RacesHeld:    racesHeld,
		Length:       5,
		AddedAtRace:  addedAt,
	}
}

func race(round int, entries ...model.ResultEntry) *model.RaceResult {
	res := &model.RaceResult{Round: round, Entries: make(map[string]model.ResultEntry), Complete: true}
	for _, e := range entries {
		res.Entries[e.AssetID] = e
	}
	return res
}

func entry(assetID string, pos int, pts float64) model.ResultEntry {
	return model.ResultEntry{AssetID: assetID, Position: pos, Points: d(pts)}
}

func testRoster(contracts ...*model.Contract) *model.Roster {
	return &model.Roster{
		ID:       "roster1",
		Drivers:  contracts,
		Lockouts: make(map[string]int),
	}
}

func TestScore_BasePointsForHeldDrivers(t *testing.T) {
	rules := config.Default()
	r := testRoster(held("VER", 2, 0, 200), held("HAM", 1, 0, 150))
	res := race(3, entry("VER", 1, 25), entry("HAM", 4, 12), entry("LEC", 2, 18))

	b := scoring.Score(r, res, nil, rules)

	if !b.Base.Equal(d(37)) {
		t.Errorf("base = %s, want 37 (unheld LEC excluded)", b.Base)
	}
	if !b.RaceTotal.Equal(d(37)) {
		t.Errorf("total = %s, want 37", b.RaceTotal)
	}
}

func TestScore_SkipsPreAcquisitionRaces(t *testing.T) {
	rules := config.Default()
	// Added at race 3 → scores from race 4 onward, not race 3.
	r := testRoster(held("VER", 0, 3, 200))
	res := race(3, entry("VER", 1, 25))

	b := scoring.Score(r, res, nil, rules)
	if !b.Base.IsZero() {
		t.Errorf("base = %s, want 0 for pre-acquisition race", b.Base)
	}
}

func TestScore_AceMultiplier(t *testing.T) {
	rules := config.Default() // 2×, ceiling 300

	t.Run("applies at or below ceiling", func(t *testing.T) {
		r := testRoster(held("VER", 2, 0, 300))
		r.AceID = "VER"
		b := scoring.Score(r, race(3, entry("VER", 1, 25)), nil, rules)

		if !b.AceBonus.Equal(d(25)) {
			t.Errorf("ace bonus = %s, want 25", b.AceBonus)
		}
		if !b.RaceTotal.Equal(d(50)) {
			t.Errorf("total = %s, want 50", b.RaceTotal)
		}
	})

	t.Run("suppressed above ceiling", func(t *testing.T) {
		// Price drift can carry an ace above the ceiling after designation;
		// the multiplier stops applying while it stays there.
		r := testRoster(held("VER", 2, 0, 310))
		r.AceID = "VER"
		b := scoring.Score(r, race(3, entry("VER", 1, 25)), nil, rules)

		if !b.AceBonus.IsZero() {
			t.Errorf("ace bonus = %s, want 0 above ceiling", b.AceBonus)
		}
	})
}

func TestScore_HotHand(t *testing.T) {
	rules := config.Default()

	tests := []struct {
		name string
		pos  int
		dnf  bool
		pts  float64
		want float64
	}{
		{"podium on debut", 2, false, 18, 10},
		{"podium precedence over points bonus", 1, false, 25, 10},
		{"points threshold met", 5, false, 10, 5},
		{"below threshold", 11, false, 0, 0},
		{"dnf never podium", 2, true, 12, 5}, // 12 ≥ threshold → smaller bonus still applies
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRoster(held("VER", 0, 2, 200))
			e := entry("VER", tt.pos, tt.pts)
			e.DNF = tt.dnf
			b := scoring.Score(r, race(3, e), nil, rules)

			if !b.HotHand.Equal(d(tt.want)) {
				t.Errorf("hot hand = %s, want %v", b.HotHand, tt.want)
			}
		})
	}

	t.Run("not on later races", func(t *testing.T) {
		r := testRoster(held("VER", 1, 0, 200))
		b := scoring.Score(r, race(2, entry("VER", 1, 25)), nil, rules)
		if !b.HotHand.IsZero() {
			t.Errorf("hot hand = %s on racesHeld=1, want 0", b.HotHand)
		}
	})
}

func TestScore_AceAndHotHandOrdering(t *testing.T) {
	// Newly-added ace on the podium: multiplier doubles the base points,
	// hot-hand bonus is added afterwards unmultiplied. 18×2 + 10 = 46.
	rules := config.Default()
	r := testRoster(held("VER", 0, 2, 200))
	r.AceID = "VER"

	b := scoring.Score(r, race(3, entry("VER", 3, 18)), nil, rules)

	if !b.RaceTotal.Equal(d(46)) {
		t.Errorf("total = %s, want 46 (18×2 + 10)", b.RaceTotal)
	}
}

func TestScore_ConstructorFromDriverPair(t *testing.T) {
	rules := config.Default()
	assets := map[string]*model.Asset{
		"RBR": {ID: "RBR", Kind: model.KindConstructor, DriverIDs: [2]string{"VER", "PER"}},
	}
	r := testRoster()
	r.Constructor = &model.Contract{
		AssetID: "RBR", Kind: model.KindConstructor,
		CurrentPrice: d(250), RacesHeld: 0, Length: 5, AddedAtRace: 0,
	}

	res := race(1, entry("VER", 1, 25), entry("PER", 3, 15))
	b := scoring.Score(r, res, assets, rules)

	if !b.Base.Equal(d(40)) {
		t.Errorf("constructor base = %s, want 40", b.Base)
	}
	// No hot-hand for constructors even on a debut podium pair.
	if !b.HotHand.IsZero() {
		t.Errorf("hot hand = %s for constructor, want 0", b.HotHand)
	}
}

func TestScore_ConstructorAceMultiplier(t *testing.T) {
	rules := config.Default()
	assets := map[string]*model.Asset{
		"RBR": {ID: "RBR", Kind: model.KindConstructor, DriverIDs: [2]string{"VER", "PER"}},
	}
	r := testRoster()
	r.Constructor = &model.Contract{
		AssetID: "RBR", Kind: model.KindConstructor,
		CurrentPrice: d(250), RacesHeld: 1, Length: 5, AddedAtRace: 0,
	}
	r.AceID = "RBR"

	b := scoring.Score(r, race(2, entry("VER", 1, 25), entry("PER", 5, 10)), assets, rules)

	if !b.AceBonus.Equal(d(35)) {
		t.Errorf("ace bonus = %s, want 35", b.AceBonus)
	}
}

func TestScore_SprintWeekendAddsSecondarySet(t *testing.T) {
	rules := config.Default()
	r := testRoster(held("VER", 2, 0, 200))

	res := race(3, entry("VER", 1, 25))
	e := res.Entries["VER"]
	e.SprintPoints = d(8)
	res.Entries["VER"] = e
	res.Sprint = true

	b := scoring.Score(r, res, nil, rules)
	if !b.Base.Equal(d(33)) {
		t.Errorf("base = %s, want 33 (25 race + 8 sprint)", b.Base)
	}
}

func TestScore_StalePenaltyAccrual(t *testing.T) {
	// Untouched for threshold + k races loses exactly k × penalty.
	rules := config.Default() // threshold 5, penalty 5
	r := testRoster(held("VER", 1, 0, 200))

	totalPenalty := decimal.Zero
	k := 3
	for round := 1; round <= rules.StaleThreshold+k; round++ {
		b := scoring.Score(r, race(round, entry("VER", 10, 1)), nil, rules)
		totalPenalty = totalPenalty.Add(b.StalePenalty)
	}

	want := rules.StalePenalty.Mul(d(float64(k)))
	if !totalPenalty.Equal(want) {
		t.Errorf("accrued penalty = %s, want %s", totalPenalty, want)
	}

	// A transfer resets the counter; the next race carries no penalty.
	r.RacesSinceTransfer = 0
	b := scoring.Score(r, race(9, entry("VER", 10, 1)), nil, rules)
	if !b.StalePenalty.IsZero() {
		t.Errorf("penalty = %s after reset, want 0", b.StalePenalty)
	}
}

func TestScore_LateJoinerCatchUpOnce(t *testing.T) {
	rules := config.Default() // 5 per missed race
	r := testRoster(held("VER", 0, 3, 200))
	r.JoinedAfterRace = 3

	b := scoring.Score(r, race(4, entry("VER", 1, 25)), nil, rules)
	if !b.CatchUp.Equal(d(15)) {
		t.Errorf("catch-up = %s, want 15", b.CatchUp)
	}

	b = scoring.Score(r, race(5, entry("VER", 1, 25)), nil, rules)
	if !b.CatchUp.IsZero() {
		t.Errorf("catch-up applied twice: %s", b.CatchUp)
	}
}

func TestScore_CreditsContractPoints(t *testing.T) {
	rules := config.Default()
	c := held("VER", 0, 0, 200)
	r := testRoster(c)
	r.AceID = "VER"

	scoring.Score(r, race(1, entry("VER", 1, 25)), nil, rules)

	// 25×2 ace + 10 podium hot-hand = 60 credited to the contract.
	if !c.PointsScored.Equal(d(60)) {
		t.Errorf("contract points = %s, want 60", c.PointsScored)
	}
}
