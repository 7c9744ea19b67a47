package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/oddsline/settled/internal/domain"
	"github.com/oddsline/settled/internal/server/middleware"
)

// TradeService defines the engine methods the trade handler requires.
type TradeService interface {
	BuyShares(ctx context.Context, auth domain.AuthContext, buyer string, marketID uint64, side domain.Side, amount *big.Int) error
	ResolveMarket(ctx context.Context, auth domain.AuthContext, marketID uint64, outcome domain.Side) error
	ClaimWinnings(ctx context.Context, auth domain.AuthContext, user string, marketID uint64) (*big.Int, error)
}

// TradeHandler serves the state-mutating market operations: buy, resolve,
// claim. Each invocation is serialized per market through the lock manager
// before it reaches the engine.
type TradeHandler struct {
	engine TradeService
	locks  domain.LockManager
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(engine TradeService, locks domain.LockManager, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		engine: engine,
		locks:  locks,
		logger: logger,
	}
}

func marketLockKey(id uint64) string {
	return "market:" + strconv.FormatUint(id, 10)
}

// buyRequest is the body for POST /api/markets/{id}/buy. Amount is a decimal
// string of base currency units.
type buyRequest struct {
	Buyer  string `json:"buyer"`
	Side   string `json:"side"`
	Amount string `json:"amount"`
}

// BuyShares stakes on one side of an open market.
// POST /api/markets/{id}/buy
func (h *TradeHandler) BuyShares(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Buyer == "" {
		writeError(w, http.StatusBadRequest, "buyer is required")
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	auth := middleware.AuthFrom(r.Context())

	err = withLock(r.Context(), h.locks, marketLockKey(id), func() error {
		return h.engine.BuyShares(r.Context(), auth, req.Buyer, id, side, amount)
	})
	if err != nil {
		h.logError(r, "buy shares", id, err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolveRequest is the body for POST /api/markets/{id}/resolve.
type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// ResolveMarket records the market outcome. Admin only.
// POST /api/markets/{id}/resolve
func (h *TradeHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome, err := domain.ParseSide(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	auth := middleware.AuthFrom(r.Context())

	err = withLock(r.Context(), h.locks, marketLockKey(id), func() error {
		return h.engine.ResolveMarket(r.Context(), auth, id, outcome)
	})
	if err != nil {
		h.logError(r, "resolve market", id, err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "outcome": string(outcome)})
}

// claimRequest is the body for POST /api/markets/{id}/claim.
type claimRequest struct {
	User string `json:"user"`
}

// claimResponse returns the payout as a decimal string.
type claimResponse struct {
	Payout string `json:"payout"`
}

// ClaimWinnings pays out a resolved market position.
// POST /api/markets/{id}/claim
func (h *TradeHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	auth := middleware.AuthFrom(r.Context())

	var payout *big.Int
	err := withLock(r.Context(), h.locks, marketLockKey(id), func() error {
		var err error
		payout, err = h.engine.ClaimWinnings(r.Context(), auth, req.User, id)
		return err
	})
	if err != nil {
		h.logError(r, "claim winnings", id, err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{Payout: payout.String()})
}

func (h *TradeHandler) logError(r *http.Request, op string, marketID uint64, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.Uint64("market_id", marketID),
		slog.String("error", err.Error()),
	)
}
