package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gridpit/economy-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary scalars are stored as NUMERIC for exact decimal precision;
// nested state (contracts, rolling form, lockouts) is stored as JSONB
// alongside the scalar columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveAsset(ctx context.Context, a *model.Asset) error {
	form, err := json.Marshal(a.RecentForm)
	if err != nil {
		return fmt.Errorf("encode asset %s form: %w", a.ID, err)
	}
	drivers, err := json.Marshal(a.DriverIDs)
	if err != nil {
		return fmt.Errorf("encode asset %s drivers: %w", a.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO assets (id, kind, name, price, prev_price, season_points, recent_form, driver_ids)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::JSONB, $8::JSONB)
		 ON CONFLICT (id) DO UPDATE
		 SET price = EXCLUDED.price, prev_price = EXCLUDED.prev_price,
		     season_points = EXCLUDED.season_points,
		     recent_form = EXCLUDED.recent_form, driver_ids = EXCLUDED.driver_ids`,
		a.ID, a.Kind, a.Name,
		a.Price.String(), a.PrevPrice.String(), a.SeasonPoints.String(),
		form, drivers,
	)
	return err
}

func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var a model.Asset
	var price, prevPrice, seasonPoints string
	var form, drivers []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, name,
		        price::TEXT, prev_price::TEXT, season_points::TEXT,
		        recent_form, driver_ids
		 FROM assets WHERE id = $1`, id).
		Scan(&a.ID, &a.Kind, &a.Name,
			&price, &prevPrice, &seasonPoints,
			&form, &drivers)
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}

	a.Price, _ = decimal.NewFromString(price)
	a.PrevPrice, _ = decimal.NewFromString(prevPrice)
	a.SeasonPoints, _ = decimal.NewFromString(seasonPoints)
	if err := json.Unmarshal(form, &a.RecentForm); err != nil {
		return nil, fmt.Errorf("decode asset %s form: %w", id, err)
	}
	if err := json.Unmarshal(drivers, &a.DriverIDs); err != nil {
		return nil, fmt.Errorf("decode asset %s drivers: %w", id, err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, name,
		        price::TEXT, prev_price::TEXT, season_points::TEXT,
		        recent_form, driver_ids
		 FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		var price, prevPrice, seasonPoints string
		var form, drivers []byte
		if err := rows.Scan(&a.ID, &a.Kind, &a.Name,
			&price, &prevPrice, &seasonPoints,
			&form, &drivers); err != nil {
			return nil, err
		}
		a.Price, _ = decimal.NewFromString(price)
		a.PrevPrice, _ = decimal.NewFromString(prevPrice)
		a.SeasonPoints, _ = decimal.NewFromString(seasonPoints)
		if err := json.Unmarshal(form, &a.RecentForm); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(drivers, &a.DriverIDs); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// rosterDoc carries the nested roster state that has no scalar column.
type rosterDoc struct {
	Drivers            []*model.Contract `json:"drivers"`
	Constructor        *model.Contract   `json:"constructor,omitempty"`
	AceID              string            `json:"ace_id,omitempty"`
	RacesSinceTransfer int               `json:"races_since_transfer"`
	Lockouts           map[string]int    `json:"lockouts"`
	JoinedAfterRace    int               `json:"joined_after_race"`
	CatchUpApplied     bool              `json:"catch_up_applied"`
	PointsHistory      []decimal.Decimal `json:"points_history"`
	RaceWins           int               `json:"race_wins"`
}

func (s *PostgresStore) SaveRoster(ctx context.Context, r *model.Roster) error {
	doc, err := json.Marshal(rosterDoc{
		Drivers:            r.Drivers,
		Constructor:        r.Constructor,
		AceID:              r.AceID,
		RacesSinceTransfer: r.RacesSinceTransfer,
		Lockouts:           r.Lockouts,
		JoinedAfterRace:    r.JoinedAfterRace,
		CatchUpApplied:     r.CatchUpApplied,
		PointsHistory:      r.PointsHistory,
		RaceWins:           r.RaceWins,
	})
	if err != nil {
		return fmt.Errorf("encode roster %s: %w", r.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO rosters (id, owner_id, league_id, name, budget, total_points, locked_points, state)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::JSONB)
		 ON CONFLICT (id) DO UPDATE
		 SET budget = EXCLUDED.budget, total_points = EXCLUDED.total_points,
		     locked_points = EXCLUDED.locked_points, state = EXCLUDED.state`,
		r.ID, r.OwnerID, r.LeagueID, r.Name,
		r.Budget.String(), r.TotalPoints.String(), r.LockedPoints.String(),
		doc,
	)
	return err
}

func (s *PostgresStore) GetRoster(ctx context.Context, id string) (*model.Roster, error) {
	var r model.Roster
	var budget, totalPoints, lockedPoints string
	var doc []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, league_id, name,
		        budget::TEXT, total_points::TEXT, locked_points::TEXT, state
		 FROM rosters WHERE id = $1`, id).
		Scan(&r.ID, &r.OwnerID, &r.LeagueID, &r.Name,
			&budget, &totalPoints, &lockedPoints, &doc)
	if err != nil {
		return nil, fmt.Errorf("get roster %s: %w", id, err)
	}

	if err := hydrateRoster(&r, budget, totalPoints, lockedPoints, doc); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) ListRosters(ctx context.Context) ([]model.Roster, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, league_id, name,
		        budget::TEXT, total_points::TEXT, locked_points::TEXT, state
		 FROM rosters ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rosters []model.Roster
	for rows.Next() {
		var r model.Roster
		var budget, totalPoints, lockedPoints string
		var doc []byte
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.LeagueID, &r.Name,
			&budget, &totalPoints, &lockedPoints, &doc); err != nil {
			return nil, err
		}
		if err := hydrateRoster(&r, budget, totalPoints, lockedPoints, doc); err != nil {
			return nil, err
		}
		rosters = append(rosters, r)
	}
	return rosters, rows.Err()
}

func hydrateRoster(r *model.Roster, budget, totalPoints, lockedPoints string, doc []byte) error {
	r.Budget, _ = decimal.NewFromString(budget)
	r.TotalPoints, _ = decimal.NewFromString(totalPoints)
	r.LockedPoints, _ = decimal.NewFromString(lockedPoints)

	var d rosterDoc
	if err := json.Unmarshal(doc, &d); err != nil {
		return err
	}
	r.Drivers = d.Drivers
	r.Constructor = d.Constructor
	r.AceID = d.AceID
	r.RacesSinceTransfer = d.RacesSinceTransfer
	r.Lockouts = d.Lockouts
	if r.Lockouts == nil {
		r.Lockouts = make(map[string]int)
	}
	r.JoinedAfterRace = d.JoinedAfterRace
	r.CatchUpApplied = d.CatchUpApplied
	r.PointsHistory = d.PointsHistory
	r.RaceWins = d.RaceWins
	return nil
}

func (s *PostgresStore) AppendTradeLog(ctx context.Context, e *model.TradeLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_log (id, round, roster_id, action, asset_id, price, fee, reason, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		e.ID, e.Round, e.RosterID, e.Action, e.AssetID,
		e.Price.String(), e.Fee.String(), e.Reason,
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) TradeLogByRoster(ctx context.Context, rosterID string) ([]model.TradeLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, round, roster_id, action, asset_id,
		        price::TEXT, fee::TEXT, reason, timestamp
		 FROM trade_log WHERE roster_id = $1 ORDER BY timestamp`, rosterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeLog(rows)
}

func (s *PostgresStore) TradeLogByAsset(ctx context.Context, assetID string) ([]model.TradeLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, round, roster_id, action, asset_id,
		        price::TEXT, fee::TEXT, reason, timestamp
		 FROM trade_log WHERE asset_id = $1 ORDER BY timestamp`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeLog(rows)
}

// scanTradeLog reads pgx rows into TradeLogEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTradeLog(rows pgxRows) ([]model.TradeLogEntry, error) {
	var entries []model.TradeLogEntry
	for rows.Next() {
		var e model.TradeLogEntry
		var priceS, feeS string

		if err := rows.Scan(&e.ID, &e.Round, &e.RosterID, &e.Action, &e.AssetID,
			&priceS, &feeS, &e.Reason, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Price, _ = decimal.NewFromString(priceS)
		e.Fee, _ = decimal.NewFromString(feeS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
