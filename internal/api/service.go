// Package api provides the HTTP surface of the roster economy engine:
// season setup, roster management, transfers, race submission, and
// league queries.
//
// Business rejections from the engines map to 4xx responses with the
// rejection reason passed through verbatim; only infrastructure failures
// produce 5xx.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridpit/economy-engine/internal/economy"
	"github.com/gridpit/economy-engine/internal/metrics"
	"github.com/gridpit/economy-engine/internal/model"
	"github.com/gridpit/economy-engine/internal/store"
	"github.com/gridpit/economy-engine/internal/transfer"
)

// Service handles the HTTP API over the economy engine.
type Service struct {
	engine *economy.Engine
	store  store.Store
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates the API service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(engine *economy.Engine, st store.Store, hub *WSHub) *Service {
	return &Service{engine: engine, store: st, wsHub: hub}
}

// Routes mounts all API handlers on a router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/season/assets", s.BootstrapSeason)
	r.Get("/assets", s.ListAssets)
	r.Get("/assets/{assetID}", s.GetAsset)
	r.Get("/assets/{assetID}/trades", s.AssetTradeLog)

	r.Post("/rosters", s.CreateRoster)
	r.Get("/rosters", s.ListRosters)
	r.Get("/rosters/{rosterID}", s.GetRoster)
	r.Get("/rosters/{rosterID}/slots", s.GetSlots)
	r.Get("/rosters/{rosterID}/trades", s.RosterTradeLog)
	r.Post("/rosters/{rosterID}/ace", s.SetAce)
	r.Delete("/rosters/{rosterID}/ace", s.ClearAce)

	r.Post("/transfer", s.ExecuteTransfer)
	r.Post("/races", s.SubmitRace)

	r.Get("/leagues/{leagueID}/standings", s.GetStandings)
}

// --- Request/Response types ---

// BootstrapRequest is the JSON body for season setup.
type BootstrapRequest struct {
	Assets []economy.AssetSeed `json:"assets"`
}

// CreateRosterRequest is the JSON body for roster creation.
type CreateRosterRequest struct {
	OwnerID  string `json:"owner_id"`
	LeagueID string `json:"league_id"`
	Name     string `json:"name"`
}

// TransferRequest is the JSON body for POST /transfer.
type TransferRequest struct {
	RosterID      string            `json:"roster_id"`
	Action        model.TradeAction `json:"action"`                   // BUY, SELL, or SWAP_OUT for swaps
	AssetID       string            `json:"asset_id"`                 // asset bought or sold; outgoing leg of a swap
	ReplacementID string            `json:"replacement_id,omitempty"` // incoming leg of a swap
}

// AceRequest is the JSON body for ace designation.
type AceRequest struct {
	AssetID string `json:"asset_id"`
}

// --- HTTP Handlers ---

// BootstrapSeason handles POST /api/v1/season/assets
// Registers the season's assets with prices derived from prior-season form.
func (s *Service) BootstrapSeason(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Assets) == 0 {
		writeError(w, "assets are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	created := make([]model.Asset, 0, len(req.Assets))
	for _, seed := range req.Assets {
		a, err := s.engine.AddAsset(ctx, seed)
		if err != nil {
			s.writeRejection(w, err)
			return
		}
		created = append(created, *a)
	}

	slog.Info("season assets registered", "count", len(created))
	writeJSON(w, http.StatusCreated, created)
}

// ListAssets handles GET /api/v1/assets
func (s *Service) ListAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Assets())
}

// GetAsset handles GET /api/v1/assets/{assetID}
func (s *Service) GetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Asset(chi.URLParam(r, "assetID"))
	if err != nil {
		writeError(w, "asset not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AssetTradeLog handles GET /api/v1/assets/{assetID}/trades
func (s *Service) AssetTradeLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.TradeLogByAsset(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		writeError(w, "failed to load trade log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.TradeLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// CreateRoster handles POST /api/v1/rosters
func (s *Service) CreateRoster(w http.ResponseWriter, r *http.Request) {
	var req CreateRosterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" || req.Name == "" {
		writeError(w, "owner_id and name are required", http.StatusBadRequest)
		return
	}

	roster, err := s.engine.CreateRoster(r.Context(), req.OwnerID, req.LeagueID, req.Name)
	if err != nil {
		s.writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roster)
}

// ListRosters handles GET /api/v1/rosters
func (s *Service) ListRosters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Rosters())
}

// GetRoster handles GET /api/v1/rosters/{rosterID}
func (s *Service) GetRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.engine.Roster(chi.URLParam(r, "rosterID"))
	if err != nil {
		writeError(w, "roster not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// GetSlots handles GET /api/v1/rosters/{rosterID}/slots
// Returns the driver slots as explicit held/empty/pending-lockout states.
func (s *Service) GetSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := s.engine.Slots(chi.URLParam(r, "rosterID"))
	if err != nil {
		writeError(w, "roster not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// RosterTradeLog handles GET /api/v1/rosters/{rosterID}/trades
func (s *Service) RosterTradeLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.TradeLogByRoster(r.Context(), chi.URLParam(r, "rosterID"))
	if err != nil {
		writeError(w, "failed to load trade log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.TradeLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// SetAce handles POST /api/v1/rosters/{rosterID}/ace
func (s *Service) SetAce(w http.ResponseWriter, r *http.Request) {
	var req AceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	roster, err := s.engine.SetAce(r.Context(), chi.URLParam(r, "rosterID"), req.AssetID)
	if err != nil {
		s.writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// ClearAce handles DELETE /api/v1/rosters/{rosterID}/ace
func (s *Service) ClearAce(w http.ResponseWriter, r *http.Request) {
	roster, err := s.engine.ClearAce(r.Context(), chi.URLParam(r, "rosterID"))
	if err != nil {
		s.writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// ExecuteTransfer handles POST /api/v1/transfer
// Executes a buy, sell, or swap and returns the updated roster.
func (s *Service) ExecuteTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RosterID == "" || req.AssetID == "" {
		writeError(w, "roster_id and asset_id are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var roster *model.Roster
	var err error

	switch req.Action {
	case model.ActionBuy:
		roster, err = s.engine.Buy(ctx, req.RosterID, req.AssetID)
	case model.ActionSell:
		roster, _, err = s.engine.Sell(ctx, req.RosterID, req.AssetID)
	case model.ActionSwapOut:
		if req.ReplacementID == "" {
			writeError(w, "replacement_id is required for swaps", http.StatusBadRequest)
			return
		}
		roster, err = s.engine.Swap(ctx, req.RosterID, req.AssetID, req.ReplacementID)
	default:
		writeError(w, "action must be BUY, SELL, or SWAP_OUT", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeRejection(w, err)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "transfer_executed",
			RosterID: req.RosterID,
			Action:   string(req.Action),
			AssetID:  req.AssetID,
		})
	}
	writeJSON(w, http.StatusOK, roster)
}

// SubmitRace handles POST /api/v1/races
// Feeds a completed race result through the engine and returns the
// per-roster race report.
func (s *Service) SubmitRace(w http.ResponseWriter, r *http.Request) {
	var res model.RaceResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	report, err := s.engine.ProcessRace(r.Context(), &res)
	if err != nil {
		s.writeRejection(w, err)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "race_processed", Round: report.Round})
	}
	writeJSON(w, http.StatusOK, report)
}

// GetStandings handles GET /api/v1/leagues/{leagueID}/standings
func (s *Service) GetStandings(w http.ResponseWriter, r *http.Request) {
	table := s.engine.Standings(chi.URLParam(r, "leagueID"))
	if table == nil {
		table = []model.Standing{}
	}
	writeJSON(w, http.StatusOK, table)
}

// --- Error mapping ---

// writeRejection maps engine errors to HTTP statuses. Business rejections
// surface their reason verbatim.
func (s *Service) writeRejection(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	reason := "other"

	switch {
	case errors.Is(err, economy.ErrRosterNotFound), errors.Is(err, economy.ErrAssetNotFound):
		status = http.StatusNotFound
		reason = "not_found"
	case errors.Is(err, economy.ErrRaceIncomplete):
		status = http.StatusBadRequest
		reason = "race_incomplete"
	case errors.Is(err, economy.ErrRaceAlreadyProcessed):
		reason = "race_replay"
	case errors.Is(err, economy.ErrRaceOutOfOrder):
		reason = "race_out_of_order"
	case errors.Is(err, transfer.ErrRosterFull):
		reason = "roster_full"
	case errors.Is(err, transfer.ErrConstructorSet):
		reason = "constructor_set"
	case errors.Is(err, transfer.ErrDuplicateAsset):
		reason = "duplicate_asset"
	case errors.Is(err, transfer.ErrAssetLockedOut):
		reason = "lockout"
	case errors.Is(err, transfer.ErrInsufficientBudget):
		reason = "budget"
	case errors.Is(err, transfer.ErrNotHeld):
		reason = "not_held"
	case errors.Is(err, economy.ErrAceNotHeld), errors.Is(err, economy.ErrAceIneligible):
		reason = "ace_ineligible"
	case errors.Is(err, economy.ErrAssetExists):
		reason = "duplicate_asset"
	default:
		status = http.StatusBadRequest
	}

	metrics.TransferRejections.WithLabelValues(reason).Inc()
	writeError(w, err.Error(), status)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
