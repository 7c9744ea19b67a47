// Package engine implements the market lifecycle state machine and the
// payout accounting for binary-outcome prediction markets. The engine takes
// no locks: the serving layer guarantees that invocations touching the same
// state execute one at a time, and the registry commits each invocation
// all-or-nothing.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/oddsline/settled/internal/domain"
)

// Clock supplies the current time; injected so the temporal gates are
// testable without sleeping.
type Clock func() time.Time

// Engine executes the public operations of the settlement core. Each
// operation validates authorization and state, mutates records through the
// registry, and moves funds through the token ledger where money moves.
type Engine struct {
	reg     domain.Registry
	tokens  domain.TokenLedger
	events  domain.EventPublisher
	custody string // identity holding pooled stake
	clock   Clock
	logger  *slog.Logger
}

// New creates an Engine. A nil clock defaults to time.Now.
func New(reg domain.Registry, tokens domain.TokenLedger, events domain.EventPublisher, custody string, clock Clock, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		reg:     reg,
		tokens:  tokens,
		events:  events,
		custody: custody,
		clock:   clock,
		logger:  logger.With(slog.String("component", "engine")),
	}
}

// Initialize stores the admin identity and staked asset. First call wins;
// any later call fails with ErrAlreadyInitialized.
func (e *Engine) Initialize(ctx context.Context, admin, assetID string) error {
	if err := e.reg.InitConfig(ctx, domain.EngineConfig{Admin: admin, AssetID: assetID}); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "engine initialized",
		slog.String("admin", admin),
		slog.String("asset_id", assetID),
	)
	return nil
}

// CreateMarket opens a new market and returns its id. The deadline must be
// strictly in the future; a rejected create never advances the id counter.
func (e *Engine) CreateMarket(ctx context.Context, auth domain.AuthContext, creator, question string, deadline time.Time) (uint64, error) {
	if err := auth.Require(creator); err != nil {
		return 0, err
	}
	if err := e.reg.Renew(ctx); err != nil {
		return 0, fmt.Errorf("engine: renew leases: %w", err)
	}
	if _, err := e.reg.Config(ctx); err != nil {
		return 0, err
	}

	now := e.clock()
	if !deadline.After(now) {
		return 0, domain.ErrInvalidDeadline
	}

	id, err := e.reg.AllocateID(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: allocate market id: %w", err)
	}

	market := domain.NewMarket(creator, question, deadline, now)
	if err := e.reg.PutMarket(ctx, id, market); err != nil {
		return 0, fmt.Errorf("engine: store market %d: %w", id, err)
	}

	e.emit(ctx, domain.NewCreateEvent(id, creator, now))
	return id, nil
}

// BuyShares stakes amount on one side of an open market before its deadline.
// Funds move from the buyer into custody before totals are updated.
func (e *Engine) BuyShares(ctx context.Context, auth domain.AuthContext, buyer string, marketID uint64, side domain.Side, amount *big.Int) error {
	if err := auth.Require(buyer); err != nil {
		return err
	}
	if err := e.reg.Renew(ctx); err != nil {
		return fmt.Errorf("engine: renew leases: %w", err)
	}
	cfg, err := e.reg.Config(ctx)
	if err != nil {
		return err
	}

	if side != domain.SideYes && side != domain.SideNo {
		return fmt.Errorf("engine: invalid side %q", side)
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	market, err := e.reg.Market(ctx, marketID)
	if err != nil {
		return err
	}
	if market.Resolved() {
		return domain.ErrMarketClosed
	}
	if !e.clock().Before(market.Deadline) {
		return domain.ErrMarketClosed
	}

	// All validation passed; the transfer is the first external effect.
	if err := e.tokens.Transfer(ctx, cfg.AssetID, buyer, e.custody, amount); err != nil {
		return fmt.Errorf("engine: collect stake: %w", err)
	}

	market.AddStake(side, amount)

	position, err := e.reg.Position(ctx, marketID, buyer)
	if err != nil {
		return fmt.Errorf("engine: load position: %w", err)
	}
	position.AddShares(side, amount)

	if err := e.reg.PutMarket(ctx, marketID, market); err != nil {
		return fmt.Errorf("engine: store market %d: %w", marketID, err)
	}
	if err := e.reg.PutPosition(ctx, marketID, buyer, position); err != nil {
		return fmt.Errorf("engine: store position: %w", err)
	}

	e.emit(ctx, domain.NewBuyEvent(marketID, buyer, side, amount, e.clock()))
	return nil
}

// ResolveMarket records the real-world outcome. Only the stored admin may
// resolve, only after the deadline, and only once; the first outcome sticks.
func (e *Engine) ResolveMarket(ctx context.Context, auth domain.AuthContext, marketID uint64, outcome domain.Side) error {
	if err := e.reg.Renew(ctx); err != nil {
		return fmt.Errorf("engine: renew leases: %w", err)
	}
	cfg, err := e.reg.Config(ctx)
	if err != nil {
		return err
	}
	if err := auth.Require(cfg.Admin); err != nil {
		return err
	}

	market, err := e.reg.Market(ctx, marketID)
	if err != nil {
		return err
	}
	if market.Resolved() {
		return domain.ErrMarketAlreadyResolved
	}
	if e.clock().Before(market.Deadline) {
		return domain.ErrDeadlineNotReached
	}

	market.Status = domain.MarketStatusResolved
	market.Outcome = outcome
	if err := e.reg.PutMarket(ctx, marketID, market); err != nil {
		return fmt.Errorf("engine: store market %d: %w", marketID, err)
	}

	e.emit(ctx, domain.NewResolveEvent(marketID, outcome, e.clock()))
	return nil
}

// ClaimWinnings pays out the claimant's share of a resolved market's pool.
// The claim flag is set before the payout transfer, so a failed transfer can
// never be double-tried into a double payment.
func (e *Engine) ClaimWinnings(ctx context.Context, auth domain.AuthContext, user string, marketID uint64) (*big.Int, error) {
	if err := auth.Require(user); err != nil {
		return nil, err
	}
	if err := e.reg.Renew(ctx); err != nil {
		return nil, fmt.Errorf("engine: renew leases: %w", err)
	}
	cfg, err := e.reg.Config(ctx)
	if err != nil {
		return nil, err
	}

	market, err := e.reg.Market(ctx, marketID)
	if err != nil {
		return nil, err
	}
	position, err := e.reg.Position(ctx, marketID, user)
	if err != nil {
		return nil, fmt.Errorf("engine: load position: %w", err)
	}

	if position.Claimed {
		return nil, domain.ErrAlreadyClaimed
	}
	if !market.Resolved() {
		return nil, domain.ErrMarketNotResolved
	}

	payout := Payout(market, position)

	position.Claimed = true
	if err := e.reg.PutPosition(ctx, marketID, user, position); err != nil {
		return nil, fmt.Errorf("engine: store position: %w", err)
	}

	if payout.Sign() > 0 {
		if err := e.tokens.Transfer(ctx, cfg.AssetID, e.custody, user, payout); err != nil {
			// The position is already marked claimed; surface the
			// transfer failure rather than allowing a retry to pay twice.
			return nil, fmt.Errorf("engine: pay out claim: %w", err)
		}
	}

	e.emit(ctx, domain.NewClaimEvent(marketID, user, payout, e.clock()))
	return payout, nil
}

// GetMarket returns the market with the given id.
func (e *Engine) GetMarket(ctx context.Context, marketID uint64) (domain.Market, error) {
	if err := e.reg.Renew(ctx); err != nil {
		return domain.Market{}, fmt.Errorf("engine: renew leases: %w", err)
	}
	return e.reg.Market(ctx, marketID)
}

// GetPosition returns the user's position in the market, zero-valued if the
// user never staked.
func (e *Engine) GetPosition(ctx context.Context, marketID uint64, user string) (domain.Position, error) {
	if err := e.reg.Renew(ctx); err != nil {
		return domain.Position{}, fmt.Errorf("engine: renew leases: %w", err)
	}
	return e.reg.Position(ctx, marketID, user)
}

// Config returns the stored engine configuration.
func (e *Engine) Config(ctx context.Context) (domain.EngineConfig, error) {
	return e.reg.Config(ctx)
}

// GetMarketCount returns the number of markets created.
func (e *Engine) GetMarketCount(ctx context.Context) (uint64, error) {
	if err := e.reg.Renew(ctx); err != nil {
		return 0, fmt.Errorf("engine: renew leases: %w", err)
	}
	return e.reg.MarketCount(ctx)
}

// emit publishes an event best-effort. Events are one-way notifications with
// no delivery guarantee; a publish failure never aborts the operation.
func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			slog.String("topic", string(ev.Topic)),
			slog.Uint64("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}
