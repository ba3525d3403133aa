package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/api"
	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/economy"
	"github.com/gridpit/economy-engine/internal/model"
	"github.com/gridpit/economy-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service over an in-memory store and chi router.
func newTestEnv(t *testing.T, rules *config.RuleSet) (*economy.Engine, *store.MemoryStore, chi.Router) {
	t.Helper()
	if rules == nil {
		rules = config.Default()
	}
	ms := store.NewMemoryStore()
	engine := economy.New(rules, ms)
	svc := api.NewService(engine, ms, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return engine, ms, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedSeason(t *testing.T, router chi.Router, seeds ...economy.AssetSeed) {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/season/assets", api.BootstrapRequest{Assets: seeds})
	if w.Code != http.StatusCreated {
		t.Fatalf("season bootstrap failed: %d %s", w.Code, w.Body.String())
	}
}

func createRoster(t *testing.T, router chi.Router, owner, league, name string) model.Roster {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/rosters", api.CreateRosterRequest{
		OwnerID: owner, LeagueID: league, Name: name,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("roster creation failed: %d %s", w.Code, w.Body.String())
	}
	var r model.Roster
	json.Unmarshal(w.Body.Bytes(), &r)
	return r
}

func driverSeed(id string, prevAvg float64) economy.AssetSeed {
	return economy.AssetSeed{ID: id, Kind: model.KindDriver, Name: id, PrevSeasonAvg: d(prevAvg)}
}

// --- Season bootstrap ---

func TestBootstrapSeason_Valid(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/season/assets", api.BootstrapRequest{
		Assets: []economy.AssetSeed{
			driverSeed("VER", 20),
			{ID: "RBR", Kind: model.KindConstructor, Name: "Red Bull",
				PrevSeasonAvg: d(30), DriverIDs: [2]string{"VER", "PER"}},
		},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created []model.Asset
	json.Unmarshal(w.Body.Bytes(), &created)
	if len(created) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(created))
	}
	if !created[0].Price.Equal(d(200)) {
		t.Errorf("VER opening price = %s, want 200", created[0].Price)
	}
}

func TestBootstrapSeason_EmptyBody(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/season/assets", api.BootstrapRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty asset list, got %d", w.Code)
	}
}

func TestBootstrapSeason_DuplicateAsset(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 20))

	w := doJSON(t, router, "POST", "/api/v1/season/assets", api.BootstrapRequest{
		Assets: []economy.AssetSeed{driverSeed("VER", 20)},
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate asset, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Roster management ---

func TestCreateRoster_Valid(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	r := createRoster(t, router, "owner1", "league1", "Team A")
	if !r.Budget.Equal(d(1000)) {
		t.Errorf("budget = %s, want 1000", r.Budget)
	}
	if r.ID == "" {
		t.Error("expected non-empty roster id")
	}
}

func TestCreateRoster_MissingOwner(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/rosters", api.CreateRosterRequest{Name: "Team A"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing owner, got %d", w.Code)
	}
}

func TestGetRoster_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := doJSON(t, router, "GET", "/api/v1/rosters/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetSlots_EmptyRoster(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	r := createRoster(t, router, "owner1", "", "Team A")

	w := doJSON(t, router, "GET", "/api/v1/rosters/"+r.ID+"/slots", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var slots []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &slots)
	if len(slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(slots))
	}
}

// --- Transfers ---

func TestTransfer_Buy(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5)) // opens at 50
	r := createRoster(t, router, "owner1", "", "Team A")

	w := doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionBuy, AssetID: "VER",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated model.Roster
	json.Unmarshal(w.Body.Bytes(), &updated)
	if !updated.Budget.Equal(d(950)) {
		t.Errorf("budget = %s, want 950", updated.Budget)
	}
	if len(updated.Drivers) != 1 || updated.Drivers[0].AssetID != "VER" {
		t.Errorf("drivers = %+v, want VER held", updated.Drivers)
	}
}

func TestTransfer_BudgetRejected(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("A", 60), driverSeed("B", 60)) // 600 each
	r := createRoster(t, router, "owner1", "", "Team A")

	w := doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionBuy, AssetID: "A",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("first buy failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionBuy, AssetID: "B",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for insufficient budget, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTransfer_SellNotHeld(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5))
	r := createRoster(t, router, "owner1", "", "Team A")

	w := doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionSell, AssetID: "VER",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for unheld sale, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTransfer_Swap(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5), driverSeed("NOR", 6))
	r := createRoster(t, router, "owner1", "", "Team A")

	doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionBuy, AssetID: "VER",
	})

	w := doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionSwapOut, AssetID: "VER", ReplacementID: "NOR",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated model.Roster
	json.Unmarshal(w.Body.Bytes(), &updated)
	if len(updated.Drivers) != 1 || updated.Drivers[0].AssetID != "NOR" {
		t.Errorf("drivers = %+v, want NOR after swap", updated.Drivers)
	}
}

func TestTransfer_UnknownRoster(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5))

	w := doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: "nope", Action: model.ActionBuy, AssetID: "VER",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestTransfer_InvalidAction(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5))
	r := createRoster(t, router, "owner1", "", "Team A")

	w := doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: "SHORT", AssetID: "VER",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid action, got %d", w.Code)
	}
}

func TestTransfer_TradeLogRecorded(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5))
	r := createRoster(t, router, "owner1", "", "Team A")

	doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionBuy, AssetID: "VER",
	})

	entries, err := ms.TradeLogByRoster(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("trade log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 trade log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != model.ActionBuy || e.AssetID != "VER" {
		t.Errorf("entry = %+v, want BUY VER", e)
	}
	if !e.Price.Equal(d(50)) {
		t.Errorf("logged price = %s, want 50", e.Price)
	}
	if e.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	w := doJSON(t, router, "GET", "/api/v1/rosters/"+r.ID+"/trades", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trade log endpoint: %d %s", w.Code, w.Body.String())
	}
	var got []model.TradeLogEntry
	json.Unmarshal(w.Body.Bytes(), &got)
	if len(got) != 1 {
		t.Errorf("endpoint entries = %d, want 1", len(got))
	}
}

// --- Ace designation ---

func TestAce_SetAndClear(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5))
	r := createRoster(t, router, "owner1", "", "Team A")

	doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionBuy, AssetID: "VER",
	})

	w := doJSON(t, router, "POST", "/api/v1/rosters/"+r.ID+"/ace", api.AceRequest{AssetID: "VER"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated model.Roster
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.AceID != "VER" {
		t.Errorf("ace = %q, want VER", updated.AceID)
	}

	w = doJSON(t, router, "DELETE", "/api/v1/rosters/"+r.ID+"/ace", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated = model.Roster{} // ace_id is omitempty; Unmarshal leaves absent fields untouched
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.AceID != "" {
		t.Errorf("ace = %q after clear, want empty", updated.AceID)
	}
}

func TestAce_UnheldRejected(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 5))
	r := createRoster(t, router, "owner1", "", "Team A")

	w := doJSON(t, router, "POST", "/api/v1/rosters/"+r.ID+"/ace", api.AceRequest{AssetID: "VER"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for unheld ace, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Race submission ---

func TestSubmitRace_ScoresAndReprices(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 10)) // opens at 100
	r := createRoster(t, router, "owner1", "", "Team A")

	doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: r.ID, Action: model.ActionBuy, AssetID: "VER",
	})

	w := doJSON(t, router, "POST", "/api/v1/races", model.RaceResult{
		Round:    1,
		Complete: true,
		Entries: map[string]model.ResultEntry{
			"VER": {AssetID: "VER", Position: 1, Points: d(25)},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var report economy.RaceReport
	json.Unmarshal(w.Body.Bytes(), &report)
	if report.Round != 1 || len(report.RosterResults) != 1 {
		t.Fatalf("report = %+v, want round 1 with 1 roster", report)
	}
	// 25 base + 10 hot-hand podium bonus on the contract's first race.
	if !report.RosterResults[0].Breakdown.RaceTotal.Equal(d(35)) {
		t.Errorf("race total = %s, want 35", report.RosterResults[0].Breakdown.RaceTotal)
	}

	aw := doJSON(t, router, "GET", "/api/v1/assets/VER", nil)
	var asset model.Asset
	json.Unmarshal(aw.Body.Bytes(), &asset)
	// Average 25 → target 250, rate-limited to +30.
	if !asset.Price.Equal(d(130)) {
		t.Errorf("price after race = %s, want 130", asset.Price)
	}
}

func TestSubmitRace_ReplayRejected(t *testing.T) {
	_, _, router := newTestEnv(t, nil)
	seedSeason(t, router, driverSeed("VER", 10))

	res := model.RaceResult{Round: 1, Complete: true, Entries: map[string]model.ResultEntry{}}
	if w := doJSON(t, router, "POST", "/api/v1/races", res); w.Code != http.StatusOK {
		t.Fatalf("first submission: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, router, "POST", "/api/v1/races", res); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for replay, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitRace_IncompleteRejected(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := doJSON(t, router, "POST", "/api/v1/races", model.RaceResult{Round: 1, Complete: false})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for incomplete result, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Standings ---

func TestStandings_Ordering(t *testing.T) {
	rules := config.Default()
	rules.DriverSlots = 1
	_, _, router := newTestEnv(t, rules)
	seedSeason(t, router, driverSeed("VER", 5), driverSeed("NOR", 5))

	a := createRoster(t, router, "o1", "league1", "Team A")
	b := createRoster(t, router, "o2", "league1", "Team B")
	doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: a.ID, Action: model.ActionBuy, AssetID: "VER",
	})
	doJSON(t, router, "POST", "/api/v1/transfer", api.TransferRequest{
		RosterID: b.ID, Action: model.ActionBuy, AssetID: "NOR",
	})

	doJSON(t, router, "POST", "/api/v1/races", model.RaceResult{
		Round: 1, Complete: true,
		Entries: map[string]model.ResultEntry{
			"VER": {AssetID: "VER", Position: 4, Points: d(30)},
			"NOR": {AssetID: "NOR", Position: 5, Points: d(4)},
		},
	})

	w := doJSON(t, router, "GET", "/api/v1/leagues/league1/standings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var table []model.Standing
	json.Unmarshal(w.Body.Bytes(), &table)
	if len(table) != 2 {
		t.Fatalf("standings rows = %d, want 2", len(table))
	}
	if table[0].Name != "Team A" || table[0].RaceWins != 1 {
		t.Errorf("leader = %+v, want Team A with 1 win", table[0])
	}
}

func TestStandings_EmptyLeague(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := doJSON(t, router, "GET", "/api/v1/leagues/none/standings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var table []model.Standing
	json.Unmarshal(w.Body.Bytes(), &table)
	if len(table) != 0 {
		t.Errorf("standings = %v, want empty", table)
	}
}
