// Package economy is the orchestration core of the roster economy: it owns
// the season's assets, rosters, and completed-race counter, serializes all
// mutations, and drives the per-race pipeline of pricing, scoring, contract
// sweep, reserve auto-fill, and league tallies.
//
// State lives in memory; fully-updated snapshots are handed to the store
// after each mutation. Uses a mutex for serialized execution
// (single-instance). For horizontal scaling, replace with distributed
// locking or database-level optimistic concurrency.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/config"
	"github.com/gridpit/economy-engine/internal/contract"
	"github.com/gridpit/economy-engine/internal/league"
	"github.com/gridpit/economy-engine/internal/metrics"
	"github.com/gridpit/economy-engine/internal/model"
	"github.com/gridpit/economy-engine/internal/pricing"
	"github.com/gridpit/economy-engine/internal/reserve"
	"github.com/gridpit/economy-engine/internal/scoring"
	"github.com/gridpit/economy-engine/internal/store"
	"github.com/gridpit/economy-engine/internal/transfer"
)

var (
	// ErrAssetNotFound is returned for references to unknown assets.
	ErrAssetNotFound = errors.New("economy: asset not found")

	// ErrAssetExists is returned when seeding an asset ID twice.
	ErrAssetExists = errors.New("economy: asset already exists")

	// ErrRosterNotFound is returned for references to unknown rosters.
	ErrRosterNotFound = errors.New("economy: roster not found")

	// ErrRaceIncomplete rejects results not marked complete by the provider.
	ErrRaceIncomplete = errors.New("economy: race result not marked complete")

	// ErrRaceAlreadyProcessed rejects a round fed through the engine twice.
	ErrRaceAlreadyProcessed = errors.New("economy: race already processed")

	// ErrRaceOutOfOrder rejects rounds arriving ahead of sequence.
	ErrRaceOutOfOrder = errors.New("economy: race out of order")

	// ErrAceNotHeld rejects an ace designation for an asset not on the roster.
	ErrAceNotHeld = errors.New("economy: ace must reference a held asset")

	// ErrAceIneligible rejects an ace whose price exceeds the ceiling.
	ErrAceIneligible = errors.New("economy: asset price exceeds ace ceiling")
)

// AssetSeed describes one asset at season setup. The opening price is derived
// from the prior season's average points.
type AssetSeed struct {
	ID            string          `json:"id"`
	Kind          model.AssetKind `json:"kind"`
	Name          string          `json:"name"`
	PrevSeasonAvg decimal.Decimal `json:"prev_season_avg"`
	DriverIDs     [2]string       `json:"driver_ids,omitempty"` // constructors only
}

// RosterRace is one roster's outcome for a processed race.
type RosterRace struct {
	RosterID   string           `json:"roster_id"`
	Breakdown  scoring.Breakdown `json:"breakdown"`
	Expired    []string         `json:"expired,omitempty"`     // contracts removed by the sweep
	AutoFilled []string         `json:"auto_filled,omitempty"` // reserve purchases after the sweep
}

// RaceReport summarizes one processed race across all rosters.
type RaceReport struct {
	Round         int          `json:"round"`
	RosterResults []RosterRace `json:"roster_results"`
}

// Engine coordinates the economy's state machines over shared season state.
type Engine struct {
	mu      sync.Mutex
	rules   *config.RuleSet
	pricing *pricing.Model
	store   store.Store

	assets         map[string]*model.Asset
	rosters        map[string]*model.Roster
	completedRaces int
}

// New creates an engine over an empty season.
func New(rules *config.RuleSet, st store.Store) *Engine {
	return &Engine{
		rules:   rules,
		pricing: pricing.New(rules),
		store:   st,
		assets:  make(map[string]*model.Asset),
		rosters: make(map[string]*model.Roster),
	}
}

// AddAsset registers a tradable asset. Constructors must name their two
// drivers so constructor points can be derived from race results.
func (e *Engine) AddAsset(ctx context.Context, seed AssetSeed) (*model.Asset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seed.ID == "" {
		return nil, fmt.Errorf("economy: asset id is required")
	}
	if seed.Kind != model.KindDriver && seed.Kind != model.KindConstructor {
		return nil, fmt.Errorf("economy: unknown asset kind %q", seed.Kind)
	}
	if _, ok := e.assets[seed.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetExists, seed.ID)
	}
	if seed.Kind == model.KindConstructor && (seed.DriverIDs[0] == "" || seed.DriverIDs[1] == "") {
		return nil, fmt.Errorf("economy: constructor %s needs two driver ids", seed.ID)
	}

	price := e.pricing.InitialPrice(seed.PrevSeasonAvg)
	a := &model.Asset{
		ID:           seed.ID,
		Kind:         seed.Kind,
		Name:         seed.Name,
		Price:        price,
		PrevPrice:    price,
		SeasonPoints: decimal.Zero,
		DriverIDs:    seed.DriverIDs,
	}
	e.assets[a.ID] = a
	e.persistAsset(ctx, a)

	slog.Info("asset registered", "asset", a.ID, "kind", a.Kind, "price", price.String())
	return copyAsset(a), nil
}

// CreateRoster registers a roster with the starting budget. A roster created
// after races have run is a late joiner: its history is padded with
// zero-point rounds so round indices line up across the league, and the
// one-time catch-up bonus is granted at its first scored race.
func (e *Engine) CreateRoster(ctx context.Context, ownerID, leagueID, name string) (*model.Roster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := &model.Roster{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		LeagueID:        leagueID,
		Name:            name,
		Budget:          e.rules.StartingBudget,
		TotalPoints:     decimal.Zero,
		LockedPoints:    decimal.Zero,
		Lockouts:        make(map[string]int),
		JoinedAfterRace: e.completedRaces,
		PointsHistory:   make([]decimal.Decimal, e.completedRaces),
	}
	e.rosters[r.ID] = r
	metrics.ActiveRosters.Inc()
	e.persistRoster(ctx, r)

	slog.Info("roster created", "roster", r.ID, "owner", ownerID, "league", leagueID, "joined_after", r.JoinedAfterRace)
	return copyRoster(r), nil
}

// Buy purchases an asset for the roster at current market price.
func (e *Engine) Buy(ctx context.Context, rosterID, assetID string) (*model.Roster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, a, err := e.lookup(rosterID, assetID)
	if err != nil {
		return nil, err
	}

	_, entry, err := transfer.Buy(r, a, e.rules, e.completedRaces, false)
	if err != nil {
		return nil, err
	}

	metrics.TransfersTotal.WithLabelValues(string(entry.Action)).Inc()
	e.persistRoster(ctx, r)
	e.appendLog(ctx, entry)

	slog.Info("asset bought", "roster", r.ID, "asset", a.ID, "price", a.Price.String(), "budget", r.Budget.String())
	return copyRoster(r), nil
}

// Sell releases an asset. The value-capture bonus of a profitable sale is
// new points and joins the season total; the contract's accumulated points
// only move from active to locked, already counted when scored.
func (e *Engine) Sell(ctx context.Context, rosterID, assetID string) (*model.Roster, decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, a, err := e.lookup(rosterID, assetID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	bonus := decimal.Zero
	if c := r.Contract(assetID); c != nil {
		bonus = transfer.ValueCaptureBonus(c.PurchasePrice, a.Price, e.rules)
	}

	proceeds, entry, err := transfer.Sell(r, a, e.rules, e.completedRaces)
	if err != nil {
		return nil, decimal.Zero, err
	}
	r.TotalPoints = r.TotalPoints.Add(bonus)

	metrics.TransfersTotal.WithLabelValues(string(entry.Action)).Inc()
	e.persistRoster(ctx, r)
	e.appendLog(ctx, entry)

	slog.Info("asset sold", "roster", r.ID, "asset", a.ID, "proceeds", proceeds.String(), "bonus", bonus.String())
	return copyRoster(r), proceeds, nil
}

// Swap atomically replaces one held asset with another of the same kind.
func (e *Engine) Swap(ctx context.Context, rosterID, oldAssetID, newAssetID string) (*model.Roster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, oldAsset, err := e.lookup(rosterID, oldAssetID)
	if err != nil {
		return nil, err
	}
	newAsset, ok := e.assets[newAssetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, newAssetID)
	}

	bonus := decimal.Zero
	if c := r.Contract(oldAssetID); c != nil {
		bonus = transfer.ValueCaptureBonus(c.PurchasePrice, oldAsset.Price, e.rules)
	}

	entries, err := transfer.Swap(r, oldAsset, newAsset, e.rules, e.completedRaces)
	if err != nil {
		return nil, err
	}
	r.TotalPoints = r.TotalPoints.Add(bonus)

	for _, entry := range entries {
		metrics.TransfersTotal.WithLabelValues(string(entry.Action)).Inc()
	}
	e.persistRoster(ctx, r)
	e.appendLog(ctx, entries...)

	slog.Info("assets swapped", "roster", r.ID, "out", oldAssetID, "in", newAssetID, "budget", r.Budget.String())
	return copyRoster(r), nil
}

// SetAce designates a held asset as the roster's ace. The designation itself
// enforces the price ceiling; scoring re-checks it each race since prices
// move.
func (e *Engine) SetAce(ctx context.Context, rosterID, assetID string) (*model.Roster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, a, err := e.lookup(rosterID, assetID)
	if err != nil {
		return nil, err
	}
	if !r.Holds(assetID) {
		return nil, fmt.Errorf("%w: %s", ErrAceNotHeld, assetID)
	}
	if a.Price.GreaterThan(e.rules.AcePriceCeiling) {
		return nil, fmt.Errorf("%w: %s priced %s, ceiling %s", ErrAceIneligible, assetID, a.Price, e.rules.AcePriceCeiling)
	}

	r.AceID = assetID
	e.persistRoster(ctx, r)
	return copyRoster(r), nil
}

// ClearAce removes the roster's ace designation.
func (e *Engine) ClearAce(ctx context.Context, rosterID string) (*model.Roster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rosters[rosterID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRosterNotFound, rosterID)
	}
	r.AceID = ""
	e.persistRoster(ctx, r)
	return copyRoster(r), nil
}

// ProcessRace runs the per-race pipeline for the next round in sequence:
//
//  1. Reprice every asset from the race's point totals.
//  2. Score every roster (before the sweep, so a contract's first scored
//     race still counts as newly added for the hot-hand bonus).
//  3. Sweep contract expiries and lockouts, then reserve auto-fill.
//  4. Recompute league race-win tallies.
//
// Results must arrive complete, in round order, exactly once.
func (e *Engine) ProcessRace(ctx context.Context, res *model.RaceResult) (*RaceReport, error) {
	if res == nil || !res.Complete {
		return nil, ErrRaceIncomplete
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case res.Round <= e.completedRaces:
		return nil, fmt.Errorf("%w: round %d", ErrRaceAlreadyProcessed, res.Round)
	case res.Round != e.completedRaces+1:
		return nil, fmt.Errorf("%w: round %d with %d race(s) completed", ErrRaceOutOfOrder, res.Round, e.completedRaces)
	}

	// Reprice assets and accrue season points.
	for _, id := range sortedKeys(e.assets) {
		a := e.assets[id]
		pts := assetRacePoints(a, res)
		e.pricing.Update(a, pts, res.Sprint)
		a.SeasonPoints = a.SeasonPoints.Add(pts)
	}

	// Sync held-contract prices before scoring: the ace ceiling and expiry
	// proceeds both read the contract's current price.
	rosterIDs := sortedKeys(e.rosters)
	for _, id := range rosterIDs {
		e.syncContractPrices(e.rosters[id])
	}

	report := &RaceReport{Round: res.Round}
	var logEntries []model.TradeLogEntry

	for _, id := range rosterIDs {
		r := e.rosters[id]
		rr := RosterRace{RosterID: r.ID}

		rr.Breakdown = scoring.Score(r, res, e.assets, e.rules)

		sweep := contract.Sweep(r, e.rules, res.Round)
		for _, exp := range sweep.Expired {
			metrics.ContractExpiries.Inc()
			metrics.TransfersTotal.WithLabelValues(string(model.ActionExpiry)).Inc()
			rr.Expired = append(rr.Expired, exp.Contract.AssetID)
			logEntries = append(logEntries, model.TradeLogEntry{
				ID:        uuid.New().String(),
				Round:     res.Round,
				RosterID:  r.ID,
				Action:    model.ActionExpiry,
				AssetID:   exp.Contract.AssetID,
				Price:     exp.Proceeds,
				Fee:       decimal.Zero,
				Reason:    fmt.Sprintf("contract expired after %d race(s)", exp.Contract.RacesHeld),
				Timestamp: time.Now().UTC(),
			})
		}

		if sweep.CanAutoFill {
			fills := reserve.Fill(r, e.assets, e.rules, res.Round)
			for _, entry := range fills {
				rr.AutoFilled = append(rr.AutoFilled, entry.AssetID)
				metrics.TransfersTotal.WithLabelValues(string(entry.Action)).Inc()
			}
			metrics.AutoFillPurchases.Add(float64(len(fills)))
			logEntries = append(logEntries, fills...)
		}

		r.PointsHistory = append(r.PointsHistory, rr.Breakdown.RaceTotal)
		r.TotalPoints = r.TotalPoints.Add(rr.Breakdown.RaceTotal)
		report.RosterResults = append(report.RosterResults, rr)
	}

	for _, group := range e.leagueGroups() {
		league.Apply(group)
	}

	e.completedRaces = res.Round
	metrics.RacesProcessed.Inc()

	for _, id := range sortedKeys(e.assets) {
		e.persistAsset(ctx, e.assets[id])
	}
	for _, id := range rosterIDs {
		e.persistRoster(ctx, e.rosters[id])
	}
	e.appendLog(ctx, logEntries...)

	slog.Info("race processed",
		"round", res.Round,
		"sprint", res.Sprint,
		"rosters", len(rosterIDs),
		"trade_events", len(logEntries),
	)
	return report, nil
}

// CompletedRaces returns the number of races processed so far.
func (e *Engine) CompletedRaces() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completedRaces
}

// Asset returns a snapshot of one asset.
func (e *Engine) Asset(id string) (*model.Asset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return copyAsset(a), nil
}

// Assets returns snapshots of all assets, ordered by ID.
func (e *Engine) Assets() []model.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Asset, 0, len(e.assets))
	for _, id := range sortedKeys(e.assets) {
		out = append(out, *copyAsset(e.assets[id]))
	}
	return out
}

// Roster returns a snapshot of one roster.
func (e *Engine) Roster(id string) (*model.Roster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rosters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRosterNotFound, id)
	}
	return copyRoster(r), nil
}

// Rosters returns snapshots of all rosters, ordered by ID.
func (e *Engine) Rosters() []model.Roster {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Roster, 0, len(e.rosters))
	for _, id := range sortedKeys(e.rosters) {
		out = append(out, *copyRoster(e.rosters[id]))
	}
	return out
}

// Slots returns the roster's driver slots as explicit states.
func (e *Engine) Slots(rosterID string) ([]contract.Slot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rosters[rosterID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRosterNotFound, rosterID)
	}
	return contract.Slots(r, e.rules, e.completedRaces), nil
}

// Standings returns the league table for one league.
func (e *Engine) Standings(leagueID string) []model.Standing {
	e.mu.Lock()
	defer e.mu.Unlock()

	var members []*model.Roster
	for _, id := range sortedKeys(e.rosters) {
		if r := e.rosters[id]; r.LeagueID == leagueID {
			members = append(members, r)
		}
	}
	return league.Standings(members)
}

// --- internals ---

func (e *Engine) lookup(rosterID, assetID string) (*model.Roster, *model.Asset, error) {
	r, ok := e.rosters[rosterID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRosterNotFound, rosterID)
	}
	a, ok := e.assets[assetID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return r, a, nil
}

func (e *Engine) syncContractPrices(r *model.Roster) {
	reprice := func(c *model.Contract) {
		if a, ok := e.assets[c.AssetID]; ok {
			c.CurrentPrice = a.Price
		}
	}
	for _, c := range r.Drivers {
		reprice(c)
	}
	if r.Constructor != nil {
		reprice(r.Constructor)
	}
}

// leagueGroups partitions rosters by league; rosters without a league compete
// in no race-win tally.
func (e *Engine) leagueGroups() [][]*model.Roster {
	byLeague := make(map[string][]*model.Roster)
	for _, id := range sortedKeys(e.rosters) {
		r := e.rosters[id]
		if r.LeagueID == "" {
			continue
		}
		byLeague[r.LeagueID] = append(byLeague[r.LeagueID], r)
	}

	groups := make([][]*model.Roster, 0, len(byLeague))
	for _, leagueID := range sortedKeys(byLeague) {
		groups = append(groups, byLeague[leagueID])
	}
	return groups
}

// assetRacePoints is an asset's raw point total for the race weekend: its own
// result entry for drivers, the two drivers' combined entries for
// constructors. Sprint points count only on sprint weekends.
func assetRacePoints(a *model.Asset, res *model.RaceResult) decimal.Decimal {
	entryPoints := func(entry model.ResultEntry) decimal.Decimal {
		pts := entry.Points
		if res.Sprint {
			pts = pts.Add(entry.SprintPoints)
		}
		return pts
	}

	if a.Kind == model.KindConstructor {
		total := decimal.Zero
		for _, driverID := range a.DriverIDs {
			if entry, ok := res.Entries[driverID]; ok {
				total = total.Add(entryPoints(entry))
			}
		}
		return total
	}

	if entry, ok := res.Entries[a.ID]; ok {
		return entryPoints(entry)
	}
	return decimal.Zero
}

func (e *Engine) persistAsset(ctx context.Context, a *model.Asset) {
	if err := e.store.SaveAsset(ctx, a); err != nil {
		slog.Warn("asset snapshot save failed", "asset", a.ID, "err", err)
	}
}

func (e *Engine) persistRoster(ctx context.Context, r *model.Roster) {
	if err := e.store.SaveRoster(ctx, r); err != nil {
		slog.Warn("roster snapshot save failed", "roster", r.ID, "err", err)
	}
}

func (e *Engine) appendLog(ctx context.Context, entries ...model.TradeLogEntry) {
	for i := range entries {
		if err := e.store.AppendTradeLog(ctx, &entries[i]); err != nil {
			slog.Warn("trade log append failed", "entry", entries[i].ID, "err", err)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyAsset(a *model.Asset) *model.Asset {
	cp := *a
	cp.RecentForm = append([]model.RacePoints(nil), a.RecentForm...)
	return &cp
}

func copyRoster(r *model.Roster) *model.Roster {
	cp := *r
	cp.Drivers = make([]*model.Contract, len(r.Drivers))
	for i, c := range r.Drivers {
		cc := *c
		cp.Drivers[i] = &cc
	}
	if r.Constructor != nil {
		cc := *r.Constructor
		cp.Constructor = &cc
	}
	cp.Lockouts = make(map[string]int, len(r.Lockouts))
	for k, v := range r.Lockouts {
		cp.Lockouts[k] = v
	}
	cp.PointsHistory = append([]decimal.Decimal(nil), r.PointsHistory...)
	return &cp
}
