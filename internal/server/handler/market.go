package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oddsline/settled/internal/domain"
	"github.com/oddsline/settled/internal/server/middleware"
)

// MarketService defines the engine methods the market handler requires. It is
// declared locally so the handler package does not depend on the concrete
// engine implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, auth domain.AuthContext, creator, question string, deadline time.Time) (uint64, error)
	GetMarket(ctx context.Context, marketID uint64) (domain.Market, error)
	GetPosition(ctx context.Context, marketID uint64, user string) (domain.Position, error)
	GetMarketCount(ctx context.Context) (uint64, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	engine MarketService
	locks  domain.LockManager
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(engine MarketService, locks domain.LockManager, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		engine: engine,
		locks:  locks,
		logger: logger,
	}
}

// createMarketRequest is the body for POST /api/markets.
type createMarketRequest struct {
	Creator  string    `json:"creator"`
	Question string    `json:"question"`
	Deadline time.Time `json:"deadline"`
}

// createMarketResponse returns the allocated id.
type createMarketResponse struct {
	MarketID uint64 `json:"market_id"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Creator == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "creator and question are required")
		return
	}

	auth := middleware.AuthFrom(r.Context())

	var id uint64
	// Creation allocates from the shared id counter, so all creates
	// serialize on one key.
	err := withLock(r.Context(), h.locks, "create", func() error {
		var err error
		id, err = h.engine.CreateMarket(r.Context(), auth, req.Creator, req.Question, req.Deadline)
		return err
	})
	if err != nil {
		h.logError(r, "create market", err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createMarketResponse{MarketID: id})
}

// GetMarket returns a single market by its id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.engine.GetMarket(r.Context(), id)
	if err != nil {
		h.logError(r, "get market", err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marketResponse(id, market))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketWithID `json:"markets"`
	Total   uint64         `json:"total"`
}

// marketWithID pairs a market with its id for wire responses.
type marketWithID struct {
	MarketID uint64 `json:"market_id"`
	domain.Market
}

func marketResponse(id uint64, m domain.Market) marketWithID {
	return marketWithID{MarketID: id, Market: m}
}

// ListMarkets returns markets in id order. Ids are dense and zero-based, so
// the listing walks the id space directly.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.GetMarketCount(r.Context())
	if err != nil {
		h.logError(r, "count markets", err)
		writeEngineError(w, err)
		return
	}

	limit, offset := parseListParams(r)

	markets := make([]marketWithID, 0, limit)
	for id := uint64(offset); id < count && len(markets) < limit; id++ {
		market, err := h.engine.GetMarket(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrMarketNotFound) {
				// Evicted from the ledger after its lease lapsed.
				continue
			}
			h.logError(r, "list markets", err)
			writeEngineError(w, err)
			return
		}
		markets = append(markets, marketResponse(id, market))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets, Total: count})
}

// marketCountResponse is the body for the count endpoint.
type marketCountResponse struct {
	Count uint64 `json:"count"`
}

// GetMarketCount returns the number of markets created.
// GET /api/markets/count
func (h *MarketHandler) GetMarketCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.GetMarketCount(r.Context())
	if err != nil {
		h.logError(r, "count markets", err)
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketCountResponse{Count: count})
}

// GetPosition returns a user's position in a market; a user that never
// staked gets the zero position.
// GET /api/markets/{id}/positions/{user}
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	user := pathParam(r, "user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	position, err := h.engine.GetPosition(r.Context(), id, user)
	if err != nil {
		h.logError(r, "get position", err)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, position)
}

func (h *MarketHandler) logError(r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
}

// parseListParams extracts limit/offset query parameters.
// Defaults: limit=50 (max 500), offset=0.
func parseListParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()

	limit = 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset = 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
