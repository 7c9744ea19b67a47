package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/oddsline/settled/internal/domain"
)

// MarketReader provides the market lookup the archiver needs; the engine
// satisfies it.
type MarketReader interface {
	GetMarket(ctx context.Context, marketID uint64) (domain.Market, error)
}

// BlobPutter is the narrow upload contract the archiver requires from the
// Writer.
type BlobPutter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SettlementReport is the archived snapshot of a resolved market: the frozen
// totals every later payout is computed from.
type SettlementReport struct {
	MarketID    uint64    `json:"market_id"`
	Question    string    `json:"question"`
	Creator     string    `json:"creator"`
	Outcome     string    `json:"outcome"`
	TotalYes    *big.Int  `json:"total_yes"`
	TotalNo     *big.Int  `json:"total_no"`
	PoolBalance *big.Int  `json:"pool_balance"`
	Deadline    time.Time `json:"deadline"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Archiver listens for resolve events and uploads a settlement report for
// each resolved market. Archival is best-effort: a failed upload is logged
// and skipped, never blocking settlement itself.
type Archiver struct {
	sub     domain.EventSubscriber
	markets MarketReader
	writer  BlobPutter
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(sub domain.EventSubscriber, markets MarketReader, writer BlobPutter, logger *slog.Logger) *Archiver {
	return &Archiver{
		sub:     sub,
		markets: markets,
		writer:  writer,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// Run subscribes to resolve events and archives until the context ends.
func (a *Archiver) Run(ctx context.Context) error {
	msgs, err := a.sub.Subscribe(ctx, domain.EventResolve)
	if err != nil {
		return fmt.Errorf("s3blob: subscribe resolve events: %w", err)
	}

	a.logger.InfoContext(ctx, "settlement archiver started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}

			var ev domain.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				a.logger.WarnContext(ctx, "malformed resolve event",
					slog.String("error", err.Error()),
				)
				continue
			}

			if err := a.Archive(ctx, ev); err != nil {
				a.logger.ErrorContext(ctx, "settlement archive failed",
					slog.Uint64("market_id", ev.MarketID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Archive uploads the settlement report for one resolve event.
func (a *Archiver) Archive(ctx context.Context, ev domain.Event) error {
	market, err := a.markets.GetMarket(ctx, ev.MarketID)
	if err != nil {
		return fmt.Errorf("s3blob: load market %d: %w", ev.MarketID, err)
	}

	report := SettlementReport{
		MarketID:    ev.MarketID,
		Question:    market.Question,
		Creator:     market.Creator,
		Outcome:     string(market.Outcome),
		TotalYes:    market.TotalYes,
		TotalNo:     market.TotalNo,
		PoolBalance: market.PoolBalance,
		Deadline:    market.Deadline,
		ResolvedAt:  ev.EmittedAt,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report %d: %w", ev.MarketID, err)
	}

	path := fmt.Sprintf("settlements/%s/market-%d.json",
		ev.EmittedAt.UTC().Format("2006/01/02"), ev.MarketID)

	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "settlement report archived",
		slog.Uint64("market_id", ev.MarketID),
		slog.String("path", path),
	)
	return nil
}
