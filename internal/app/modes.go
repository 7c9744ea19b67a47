package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/oddsline/settled/internal/blob/s3"
	"github.com/oddsline/settled/internal/engine"
	"github.com/oddsline/settled/internal/server"
	"github.com/oddsline/settled/internal/server/handler"
	"github.com/oddsline/settled/internal/server/ws"
)

// shutdownGrace bounds how long in-flight requests may run after the context
// is cancelled.
const shutdownGrace = 10 * time.Second

// Serve builds the engine and API on top of the wired dependencies and runs
// them until the context is cancelled.
func (a *App) Serve(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api server")

	g, ctx := errgroup.WithContext(ctx)

	eng := engine.New(
		deps.Registry,
		deps.TokenLedger,
		deps.Events,
		a.cfg.Engine.Custody,
		nil,
		a.logger,
	)

	// WebSocket hub relaying engine events to connected clients.
	hub := ws.NewHub(deps.Subscriber, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// Settlement report archiver, when object storage is configured.
	if deps.BlobWriter != nil {
		archiver := s3blob.NewArchiver(deps.Subscriber, eng, deps.BlobWriter, a.logger)
		g.Go(func() error {
			if err := archiver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Pinger, a.logger),
		Markets: handler.NewMarketHandler(eng, deps.LockManager, a.logger),
		Trades:  handler.NewTradeHandler(eng, deps.LockManager, a.logger),
		Admin:   handler.NewAdminHandler(eng, deps.TokenLedger, a.cfg.Engine.FaucetEnabled, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:             a.cfg.Server.Port,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		IdentityTokens:   a.cfg.Auth.Tokens,
		InsecureIdentity: a.cfg.Auth.Insecure,
		RateLimit:        a.cfg.Server.RateLimit,
		RateWindow:       a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
