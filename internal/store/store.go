// Package store defines the persistence interface for the economy engine.
// The engine owns all state in memory and hands fully-updated snapshots to
// the store after each mutation; implementations include PostgreSQL (source
// of truth), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/gridpit/economy-engine/internal/model"
)

// Store is the persistence interface. Snapshots are whole-document writes;
// the trade log is append-only.
type Store interface {
	// --- Asset snapshots ---

	// SaveAsset upserts an asset snapshot.
	SaveAsset(ctx context.Context, a *model.Asset) error

	// GetAsset retrieves an asset by ID.
	GetAsset(ctx context.Context, id string) (*model.Asset, error)

	// ListAssets returns all assets.
	ListAssets(ctx context.Context) ([]model.Asset, error)

	// --- Roster snapshots ---

	// SaveRoster upserts a roster snapshot, contracts included.
	SaveRoster(ctx context.Context, r *model.Roster) error

	// GetRoster retrieves a roster by ID.
	GetRoster(ctx context.Context, id string) (*model.Roster, error)

	// ListRosters returns all rosters.
	ListRosters(ctx context.Context) ([]model.Roster, error)

	// --- Immutable trade log ---

	// AppendTradeLog appends an immutable audit record.
	AppendTradeLog(ctx context.Context, entry *model.TradeLogEntry) error

	// TradeLogByRoster returns all events for a roster, oldest first.
	TradeLogByRoster(ctx context.Context, rosterID string) ([]model.TradeLogEntry, error)

	// TradeLogByAsset returns all events touching an asset, oldest first.
	TradeLogByAsset(ctx context.Context, assetID string) ([]model.TradeLogEntry, error)
}
