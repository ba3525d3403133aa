// Package model defines the core domain types shared across the economy engine.
// All monetary values and point totals use shopspring/decimal — never float64
// for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetKind distinguishes the two tradable asset classes.
type AssetKind string

const (
	KindDriver      AssetKind = "DRIVER"
	KindConstructor AssetKind = "CONSTRUCTOR"
)

// RacePoints is one entry in an asset's rolling performance window.
type RacePoints struct {
	Points decimal.Decimal `json:"points"`
	Sprint bool            `json:"sprint"` // reduced-weight event
}

// Asset is a driver or constructor with a market price driven by recent
// performance. Created at season setup; never deleted during a season.
type Asset struct {
	ID           string          `json:"id" db:"id"`
	Kind         AssetKind       `json:"kind" db:"kind"`
	Name         string          `json:"name" db:"name"`
	Price        decimal.Decimal `json:"price" db:"price"`
	PrevPrice    decimal.Decimal `json:"prev_price" db:"prev_price"`
	RecentForm   []RacePoints    `json:"recent_form"` // most-recent-first, capped at the window length
	SeasonPoints decimal.Decimal `json:"season_points" db:"season_points"`

	// DriverIDs is set for constructors only: the two drivers whose combined
	// results determine constructor points.
	DriverIDs [2]string `json:"driver_ids,omitempty"`
}

// Contract binds one roster to one held asset for a finite number of races.
type Contract struct {
	AssetID       string          `json:"asset_id"`
	Kind          AssetKind       `json:"kind"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"` // synced from the Asset each race
	PointsScored  decimal.Decimal `json:"points_scored"` // credited while held
	RacesHeld     int             `json:"races_held"`    // monotonically non-decreasing
	Length        int             `json:"length"`        // races until forced expiry
	AutoFilled    bool            `json:"auto_filled"`
	AddedAtRace   int             `json:"added_at_race"` // last completed round at purchase time
}

// RacesRemaining returns the races left before natural expiry.
func (c *Contract) RacesRemaining() int {
	if c.RacesHeld >= c.Length {
		return 0
	}
	return c.Length - c.RacesHeld
}

// Roster is one participant's squad: up to five driver contracts and one
// constructor contract, plus the budget and bonus/penalty bookkeeping.
type Roster struct {
	ID       string `json:"id" db:"id"`
	OwnerID  string `json:"owner_id" db:"owner_id"`
	LeagueID string `json:"league_id,omitempty" db:"league_id"`
	Name     string `json:"name" db:"name"`

	Budget       decimal.Decimal `json:"budget" db:"budget"`
	TotalPoints  decimal.Decimal `json:"total_points" db:"total_points"`
	LockedPoints decimal.Decimal `json:"locked_points" db:"locked_points"` // banked from departed assets; only grows

	Drivers     []*Contract `json:"drivers"`               // len ≤ 5, no duplicate asset ids
	Constructor *Contract   `json:"constructor,omitempty"` // at most one
	AceID       string      `json:"ace_id,omitempty"`      // must reference a currently-held asset

	RacesSinceTransfer int            `json:"races_since_transfer"`
	Lockouts           map[string]int `json:"lockouts"` // assetID → round after which it is purchasable again

	JoinedAfterRace int  `json:"joined_after_race"` // races missed before joining
	CatchUpApplied  bool `json:"catch_up_applied"`

	PointsHistory []decimal.Decimal `json:"points_history"` // per-race totals, index = round-1
	RaceWins      int               `json:"race_wins"`
}

// Contract returns the held contract for assetID, or nil.
func (r *Roster) Contract(assetID string) *Contract {
	for _, c := range r.Drivers {
		if c.AssetID == assetID {
			return c
		}
	}
	if r.Constructor != nil && r.Constructor.AssetID == assetID {
		return r.Constructor
	}
	return nil
}

// Holds reports whether the roster currently holds assetID.
func (r *Roster) Holds(assetID string) bool {
	return r.Contract(assetID) != nil
}

// ResultEntry is one asset's outcome in a completed race.
type ResultEntry struct {
	AssetID    string          `json:"asset_id"`
	Position   int             `json:"position"` // finishing position; ignored when DNF
	DNF        bool            `json:"dnf"`
	Points     decimal.Decimal `json:"points"`
	FastestLap bool            `json:"fastest_lap"`

	// Sprint fields are populated only for sprint weekends.
	SprintPosition int             `json:"sprint_position,omitempty"`
	SprintDNF      bool            `json:"sprint_dnf,omitempty"`
	SprintPoints   decimal.Decimal `json:"sprint_points"`
}

// RaceResult is the immutable per-race input from the external results
// provider. Read-only to this core; marked Complete exactly once per race.
type RaceResult struct {
	Round    int                    `json:"round"`
	Sprint   bool                   `json:"sprint"` // sprint weekend (secondary result set present)
	Entries  map[string]ResultEntry `json:"entries"`
	Complete bool                   `json:"complete"`
}

// TradeAction is the kind of event recorded in the trade log.
type TradeAction string

const (
	ActionBuy      TradeAction = "BUY"
	ActionSell     TradeAction = "SELL"
	ActionSwapOut  TradeAction = "SWAP_OUT"
	ActionSwapIn   TradeAction = "SWAP_IN"
	ActionExpiry   TradeAction = "EXPIRY"
	ActionAutoFill TradeAction = "AUTO_FILL"
)

// TradeLogEntry is an immutable audit record of a roster economy event.
// Once created, these are never modified or deleted.
type TradeLogEntry struct {
	ID        string          `json:"id" db:"id"`
	Round     int             `json:"round" db:"round"`
	RosterID  string          `json:"roster_id" db:"roster_id"`
	Action    TradeAction     `json:"action" db:"action"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Fee       decimal.Decimal `json:"fee" db:"fee"`
	Reason    string          `json:"reason" db:"reason"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Standing is one roster's row in a league table.
type Standing struct {
	RosterID    string          `json:"roster_id"`
	Name        string          `json:"name"`
	TotalPoints decimal.Decimal `json:"total_points"`
	RaceWins    int             `json:"race_wins"`
}
