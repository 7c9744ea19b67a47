package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oddsline/settled/internal/engine"
	"github.com/oddsline/settled/internal/registry"
	"github.com/oddsline/settled/internal/server/middleware"
	"github.com/oddsline/settled/internal/store/memory"
)

// testAPI runs the real engine over in-memory dependencies behind the same
// route table and identity middleware the server uses.
type testAPI struct {
	srv *httptest.Server
	now time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	api := &testAPI{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := registry.NewMemoryKV(48*time.Hour, func() time.Time { return api.now })
	ledger := memory.NewLedger()
	bus := memory.NewBus()
	locks := memory.NewLockManager()

	eng := engine.New(registry.New(kv), ledger, bus, "custody", func() time.Time { return api.now }, logger)

	markets := NewMarketHandler(eng, locks, logger)
	trades := NewTradeHandler(eng, locks, logger)
	admin := NewAdminHandler(eng, ledger, true, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/count", markets.GetMarketCount)
	mux.HandleFunc("GET /api/markets/{id}", markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/positions/{user}", markets.GetPosition)
	mux.HandleFunc("POST /api/markets/{id}/buy", trades.BuyShares)
	mux.HandleFunc("POST /api/markets/{id}/resolve", trades.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/claim", trades.ClaimWinnings)
	mux.HandleFunc("POST /api/admin/initialize", admin.Initialize)
	mux.HandleFunc("POST /api/faucet", admin.Faucet)
	mux.HandleFunc("GET /api/balances/{user}", admin.GetBalance)

	api.srv = httptest.NewServer(middleware.Identity(nil, true)(mux))
	t.Cleanup(api.srv.Close)
	return api
}

// do issues a request acting as the given identity and decodes the JSON
// response into out (when non-nil).
func (api *testAPI) do(t *testing.T, method, path, identity string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, api.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if identity != "" {
		req.Header.Set("X-Identity", identity)
	}

	resp, err := api.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (api *testAPI) initialize(t *testing.T) {
	t.Helper()
	code := api.do(t, http.MethodPost, "/api/admin/initialize", "admin",
		map[string]string{"admin": "admin", "asset_id": "usdc"}, nil)
	if code != http.StatusCreated {
		t.Fatalf("initialize status = %d, want 201", code)
	}
}

func (api *testAPI) mint(t *testing.T, identity string, amount int) {
	t.Helper()
	code := api.do(t, http.MethodPost, "/api/faucet", identity,
		map[string]string{"identity": identity, "amount": fmt.Sprint(amount)}, nil)
	if code != http.StatusOK {
		t.Fatalf("faucet status = %d, want 200", code)
	}
}

func (api *testAPI) createMarket(t *testing.T, creator string) uint64 {
	t.Helper()
	var resp struct {
		MarketID uint64 `json:"market_id"`
	}
	code := api.do(t, http.MethodPost, "/api/markets", creator, map[string]any{
		"creator":  creator,
		"question": "will it rain",
		"deadline": api.now.Add(24 * time.Hour),
	}, &resp)
	if code != http.StatusCreated {
		t.Fatalf("create market status = %d, want 201", code)
	}
	return resp.MarketID
}

func TestAPIMarketLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.initialize(t)
	api.mint(t, "alice", 100)
	api.mint(t, "bob", 100)

	id := api.createMarket(t, "alice")
	if id != 0 {
		t.Fatalf("first market id = %d, want 0", id)
	}

	buyPath := fmt.Sprintf("/api/markets/%d/buy", id)
	code := api.do(t, http.MethodPost, buyPath, "alice",
		map[string]string{"buyer": "alice", "side": "yes", "amount": "40"}, nil)
	if code != http.StatusOK {
		t.Fatalf("buy status = %d, want 200", code)
	}
	code = api.do(t, http.MethodPost, buyPath, "bob",
		map[string]string{"buyer": "bob", "side": "no", "amount": "60"}, nil)
	if code != http.StatusOK {
		t.Fatalf("buy status = %d, want 200", code)
	}

	// Stake totals ride as JSON numbers of arbitrary precision.
	var market struct {
		MarketID    uint64      `json:"market_id"`
		Status      string      `json:"status"`
		TotalYes    json.Number `json:"total_yes"`
		TotalNo     json.Number `json:"total_no"`
		PoolBalance json.Number `json:"pool_balance"`
	}
	code = api.do(t, http.MethodGet, fmt.Sprintf("/api/markets/%d", id), "", nil, &market)
	if code != http.StatusOK {
		t.Fatalf("get market status = %d, want 200", code)
	}
	if market.TotalYes != "40" || market.TotalNo != "60" || market.PoolBalance != "100" {
		t.Errorf("market totals = %s/%s/%s, want 40/60/100", market.TotalYes, market.TotalNo, market.PoolBalance)
	}
	if market.Status != "open" {
		t.Errorf("market status = %s, want open", market.Status)
	}

	api.now = api.now.Add(25 * time.Hour)
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/resolve", id), "admin",
		map[string]string{"outcome": "yes"}, nil)
	if code != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", code)
	}

	var claim struct {
		Payout string `json:"payout"`
	}
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/claim", id), "alice",
		map[string]string{"user": "alice"}, &claim)
	if code != http.StatusOK {
		t.Fatalf("claim status = %d, want 200", code)
	}
	if claim.Payout != "100" {
		t.Errorf("payout = %s, want 100", claim.Payout)
	}

	var balance struct {
		Balance string `json:"balance"`
	}
	code = api.do(t, http.MethodGet, "/api/balances/alice", "", nil, &balance)
	if code != http.StatusOK {
		t.Fatalf("balance status = %d, want 200", code)
	}
	if balance.Balance != "160" {
		t.Errorf("alice balance = %s, want 160", balance.Balance)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	api := newTestAPI(t)

	// Before initialize every operation is unavailable.
	code := api.do(t, http.MethodPost, "/api/markets", "alice", map[string]any{
		"creator":  "alice",
		"question": "q",
		"deadline": api.now.Add(time.Hour),
	}, nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("create before initialize = %d, want 503", code)
	}

	api.initialize(t)

	// Double initialize conflicts.
	code = api.do(t, http.MethodPost, "/api/admin/initialize", "admin",
		map[string]string{"admin": "x", "asset_id": "y"}, nil)
	if code != http.StatusConflict {
		t.Fatalf("second initialize = %d, want 409", code)
	}

	// Unknown market.
	code = api.do(t, http.MethodGet, "/api/markets/99", "", nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("unknown market = %d, want 404", code)
	}

	// Creating as somebody else is forbidden.
	code = api.do(t, http.MethodPost, "/api/markets", "mallory", map[string]any{
		"creator":  "alice",
		"question": "q",
		"deadline": api.now.Add(time.Hour),
	}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("spoofed creator = %d, want 403", code)
	}

	// Past deadline is a bad request.
	code = api.do(t, http.MethodPost, "/api/markets", "alice", map[string]any{
		"creator":  "alice",
		"question": "q",
		"deadline": api.now.Add(-time.Hour),
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("past deadline = %d, want 400", code)
	}

	id := api.createMarket(t, "alice")

	// Buying with no funds fails with payment required.
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/buy", id), "alice",
		map[string]string{"buyer": "alice", "side": "yes", "amount": "5"}, nil)
	if code != http.StatusPaymentRequired {
		t.Fatalf("broke buyer = %d, want 402", code)
	}

	// Malformed side and amount are rejected up front.
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/buy", id), "alice",
		map[string]string{"buyer": "alice", "side": "maybe", "amount": "5"}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad side = %d, want 400", code)
	}
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/buy", id), "alice",
		map[string]string{"buyer": "alice", "side": "yes", "amount": "five"}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad amount = %d, want 400", code)
	}

	// Resolving before the deadline is unprocessable; as a non-admin it
	// is forbidden.
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/resolve", id), "admin",
		map[string]string{"outcome": "yes"}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("early resolve = %d, want 422", code)
	}
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/resolve", id), "alice",
		map[string]string{"outcome": "yes"}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("non-admin resolve = %d, want 403", code)
	}

	// Claiming an open market is unprocessable.
	code = api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/claim", id), "alice",
		map[string]string{"user": "alice"}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("claim open market = %d, want 422", code)
	}
}

func TestAPIDoubleClaimConflicts(t *testing.T) {
	api := newTestAPI(t)
	api.initialize(t)
	api.mint(t, "alice", 10)
	id := api.createMarket(t, "alice")

	api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/buy", id), "alice",
		map[string]string{"buyer": "alice", "side": "yes", "amount": "10"}, nil)

	api.now = api.now.Add(25 * time.Hour)
	api.do(t, http.MethodPost, fmt.Sprintf("/api/markets/%d/resolve", id), "admin",
		map[string]string{"outcome": "yes"}, nil)

	claimPath := fmt.Sprintf("/api/markets/%d/claim", id)
	if code := api.do(t, http.MethodPost, claimPath, "alice", map[string]string{"user": "alice"}, nil); code != http.StatusOK {
		t.Fatalf("first claim = %d, want 200", code)
	}
	if code := api.do(t, http.MethodPost, claimPath, "alice", map[string]string{"user": "alice"}, nil); code != http.StatusConflict {
		t.Fatalf("second claim = %d, want 409", code)
	}
}

func TestAPIListMarkets(t *testing.T) {
	api := newTestAPI(t)
	api.initialize(t)

	for i := 0; i < 3; i++ {
		api.createMarket(t, "alice")
	}

	var list struct {
		Markets []struct {
			MarketID uint64 `json:"market_id"`
		} `json:"markets"`
		Total uint64 `json:"total"`
	}
	code := api.do(t, http.MethodGet, "/api/markets?limit=2", "", nil, &list)
	if code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", code)
	}
	if list.Total != 3 {
		t.Errorf("total = %d, want 3", list.Total)
	}
	if len(list.Markets) != 2 {
		t.Fatalf("len(markets) = %d, want 2", len(list.Markets))
	}
	if list.Markets[0].MarketID != 0 || list.Markets[1].MarketID != 1 {
		t.Errorf("ids = %d,%d, want 0,1", list.Markets[0].MarketID, list.Markets[1].MarketID)
	}

	var count struct {
		Count uint64 `json:"count"`
	}
	if code := api.do(t, http.MethodGet, "/api/markets/count", "", nil, &count); code != http.StatusOK {
		t.Fatalf("count status = %d, want 200", code)
	}
	if count.Count != 3 {
		t.Errorf("count = %d, want 3", count.Count)
	}
}

func TestAPIPositionForStranger(t *testing.T) {
	api := newTestAPI(t)
	api.initialize(t)
	id := api.createMarket(t, "alice")

	var pos struct {
		YesShares json.Number `json:"yes_shares"`
		NoShares  json.Number `json:"no_shares"`
		Claimed   bool        `json:"claimed"`
	}
	code := api.do(t, http.MethodGet, fmt.Sprintf("/api/markets/%d/positions/stranger", id), "", nil, &pos)
	if code != http.StatusOK {
		t.Fatalf("position status = %d, want 200", code)
	}
	if pos.YesShares != "0" || pos.NoShares != "0" || pos.Claimed {
		t.Errorf("position = %+v, want zeroed", pos)
	}
}

func TestAPIFaucetDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := registry.NewMemoryKV(time.Hour, nil)
	ledger := memory.NewLedger()
	eng := engine.New(registry.New(kv), ledger, memory.NewBus(), "custody", nil, logger)

	admin := NewAdminHandler(eng, ledger, false, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/faucet", bytes.NewBufferString(`{"identity":"a","amount":"1"}`))
	rec := httptest.NewRecorder()
	admin.Faucet(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("disabled faucet = %d, want 404", rec.Code)
	}
}
