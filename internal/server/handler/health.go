package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	ledger Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. ledger may be nil in ephemeral
// mode.
func NewHealthHandler(ledger Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{ledger: ledger, logger: logger}
}

// HealthCheck responds with a JSON status. The ledger store is pinged so a
// lost Redis connection surfaces as degraded rather than a silent 200.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if h.ledger != nil {
		if err := h.ledger.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health: ledger ping failed",
				slog.String("error", err.Error()),
			)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
