package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oddsline/settled/internal/domain"
)

// AdminService defines the engine methods the admin handler requires.
type AdminService interface {
	Initialize(ctx context.Context, admin, assetID string) error
	Config(ctx context.Context) (domain.EngineConfig, error)
}

// AdminHandler serves initialization, the test faucet, and balance lookups.
type AdminHandler struct {
	engine AdminService
	tokens domain.TokenLedger
	faucet bool // faucet surface enabled
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler. faucet controls whether the mint
// endpoint is exposed.
func NewAdminHandler(engine AdminService, tokens domain.TokenLedger, faucet bool, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		engine: engine,
		tokens: tokens,
		faucet: faucet,
		logger: logger,
	}
}

// initializeRequest is the body for POST /api/admin/initialize.
type initializeRequest struct {
	Admin   string `json:"admin"`
	AssetID string `json:"asset_id"`
}

// Initialize stores the admin identity and staked asset; first call wins.
// POST /api/admin/initialize
func (h *AdminHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Admin == "" || req.AssetID == "" {
		writeError(w, http.StatusBadRequest, "admin and asset_id are required")
		return
	}

	if err := h.engine.Initialize(r.Context(), req.Admin, req.AssetID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: initialize failed",
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

// faucetRequest is the body for POST /api/faucet. Amount is a decimal string.
type faucetRequest struct {
	Identity string `json:"identity"`
	Amount   string `json:"amount"`
}

// Faucet mints test funds to an identity. Disabled outside development
// deployments.
// POST /api/faucet
func (h *AdminHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	if !h.faucet {
		writeError(w, http.StatusNotFound, "faucet disabled")
		return
	}

	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	cfg, err := h.engine.Config(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := h.tokens.Mint(r.Context(), cfg.AssetID, req.Identity, amount); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: faucet mint failed",
			slog.String("identity", req.Identity),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

// balanceResponse returns a holder's balance as a decimal string.
type balanceResponse struct {
	Holder  string `json:"holder"`
	AssetID string `json:"asset_id"`
	Balance string `json:"balance"`
}

// GetBalance returns an identity's balance of the staked asset.
// GET /api/balances/{user}
func (h *AdminHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	cfg, err := h.engine.Config(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	balance, err := h.tokens.Balance(r.Context(), cfg.AssetID, user)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Holder:  user,
		AssetID: cfg.AssetID,
		Balance: balance.String(),
	})
}
