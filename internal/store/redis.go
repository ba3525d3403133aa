package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridpit/economy-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) SaveAsset(ctx context.Context, a *model.Asset) error {
	if err := s.primary.SaveAsset(ctx, a); err != nil {
		return err
	}
	s.cacheJSON(ctx, assetKey(a.ID), a)
	return nil
}

func (s *CachedStore) SaveRoster(ctx context.Context, r *model.Roster) error {
	if err := s.primary.SaveRoster(ctx, r); err != nil {
		return err
	}
	s.cacheJSON(ctx, rosterKey(r.ID), r)
	return nil
}

func (s *CachedStore) AppendTradeLog(ctx context.Context, entry *model.TradeLogEntry) error {
	if err := s.primary.AppendTradeLog(ctx, entry); err != nil {
		return err
	}
	// Invalidate cached histories; next read will re-populate.
	s.rdb.Del(ctx, tradeLogRosterKey(entry.RosterID), tradeLogAssetKey(entry.AssetID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetKey(id)).Bytes()
	if err == nil {
		var a model.Asset
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, assetKey(id), a)
	return a, nil
}

func (s *CachedStore) GetRoster(ctx context.Context, id string) (*model.Roster, error) {
	data, err := s.rdb.Get(ctx, rosterKey(id)).Bytes()
	if err == nil {
		var r model.Roster
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.GetRoster(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, rosterKey(id), r)
	return r, nil
}

func (s *CachedStore) TradeLogByRoster(ctx context.Context, rosterID string) ([]model.TradeLogEntry, error) {
	data, err := s.rdb.Get(ctx, tradeLogRosterKey(rosterID)).Bytes()
	if err == nil {
		var entries []model.TradeLogEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	entries, err := s.primary.TradeLogByRoster(ctx, rosterID)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, tradeLogRosterKey(rosterID), entries)
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return s.primary.ListAssets(ctx)
}

func (s *CachedStore) ListRosters(ctx context.Context) ([]model.Roster, error) {
	return s.primary.ListRosters(ctx)
}

func (s *CachedStore) TradeLogByAsset(ctx context.Context, assetID string) ([]model.TradeLogEntry, error) {
	return s.primary.TradeLogByAsset(ctx, assetID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func assetKey(id string) string { return fmt.Sprintf("asset:%s", id) }

func rosterKey(id string) string { return fmt.Sprintf("roster:%s", id) }

func tradeLogRosterKey(id string) string { return fmt.Sprintf("tradelog:roster:%s", id) }

func tradeLogAssetKey(id string) string { return fmt.Sprintf("tradelog:asset:%s", id) }
