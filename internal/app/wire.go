package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/oddsline/settled/internal/blob/s3"
	"github.com/oddsline/settled/internal/config"
	"github.com/oddsline/settled/internal/domain"
	"github.com/oddsline/settled/internal/events"
	"github.com/oddsline/settled/internal/registry"
	"github.com/oddsline/settled/internal/store/memory"
	"github.com/oddsline/settled/internal/store/postgres"
	"github.com/oddsline/settled/internal/store/redis"
)

// Dependencies bundles every domain-level dependency that the application
// needs to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Registry    domain.Registry
	TokenLedger domain.TokenLedger

	// Events fans publications out to every sink (Redis bus, Postgres
	// journal); Subscriber delivers them to in-process consumers.
	Events     domain.EventPublisher
	Subscriber domain.EventSubscriber

	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// BlobWriter is nil unless the settlement report archive is enabled.
	BlobWriter *s3blob.Writer

	// Ledger health probe for the /api/health endpoint. Nil in ephemeral
	// mode, where there is nothing external to probe.
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if strings.ToLower(cfg.Mode) == "ephemeral" {
		bus := memory.NewBus()
		deps := &Dependencies{
			Registry:    registry.New(registry.NewMemoryKV(cfg.Engine.LeaseTTL.Duration, nil)),
			TokenLedger: memory.NewLedger(),
			Events:      bus,
			Subscriber:  bus,
			LockManager: memory.NewLockManager(),
		}
		return deps, cleanup, nil
	}

	deps := &Dependencies{}

	// --- Redis: leased ledger store, event bus, locks, rate limiting ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Registry = registry.New(redis.NewLedger(redisClient, cfg.Engine.LeaseTTL.Duration))
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	bus := redis.NewEventBus(redisClient)
	deps.Subscriber = bus

	// --- PostgreSQL: token balances and the event journal ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TokenLedger = postgres.NewTokenLedger(pool)
	deps.Pinger = pgClient

	// Every event goes to the live bus and the durable journal.
	deps.Events = events.NewFanout(logger, bus, postgres.NewEventJournal(pool))

	// --- S3: settlement report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	return deps, cleanup, nil
}
