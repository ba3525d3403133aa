package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	assets   map[string]*model.Asset
	rosters  map[string]*model.Roster
	tradeLog []model.TradeLogEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:  make(map[string]*model.Asset),
		rosters: make(map[string]*model.Roster),
	}
}

func (s *MemoryStore) SaveAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assets[a.ID] = copyAsset(a)
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s not found", id)
	}
	return copyAsset(a), nil
}

func (s *MemoryStore) ListAssets(_ context.Context) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]model.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, *copyAsset(a))
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (s *MemoryStore) SaveRoster(_ context.Context, r *model.Roster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rosters[r.ID] = copyRoster(r)
	return nil
}

func (s *MemoryStore) GetRoster(_ context.Context, id string) (*model.Roster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rosters[id]
	if !ok {
		return nil, fmt.Errorf("roster %s not found", id)
	}
	return copyRoster(r), nil
}

func (s *MemoryStore) ListRosters(_ context.Context) ([]model.Roster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rosters := make([]model.Roster, 0, len(s.rosters))
	for _, r := range s.rosters {
		rosters = append(rosters, *copyRoster(r))
	}
	sort.Slice(rosters, func(i, j int) bool { return rosters[i].ID < rosters[j].ID })
	return rosters, nil
}

func (s *MemoryStore) AppendTradeLog(_ context.Context, entry *model.TradeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tradeLog = append(s.tradeLog, *entry)
	return nil
}

func (s *MemoryStore) TradeLogByRoster(_ context.Context, rosterID string) ([]model.TradeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeLogEntry
	for _, e := range s.tradeLog {
		if e.RosterID == rosterID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) TradeLogByAsset(_ context.Context, assetID string) ([]model.TradeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeLogEntry
	for _, e := range s.tradeLog {
		if e.AssetID == assetID {
			result = append(result, e)
		}
	}
	return result, nil
}

// Deep copies guard against external mutation of stored snapshots.

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
