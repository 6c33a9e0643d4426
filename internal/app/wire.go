package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/polypnl/internal/addrset"
	s3blob "github.com/alanyoungcy/polypnl/internal/blob/s3"
	"github.com/alanyoungcy/polypnl/internal/cache/redis"
	"github.com/alanyoungcy/polypnl/internal/config"
	"github.com/alanyoungcy/polypnl/internal/engine"
	"github.com/alanyoungcy/polypnl/internal/extract"
	"github.com/alanyoungcy/polypnl/internal/sink"
	"github.com/alanyoungcy/polypnl/internal/sink/postgres"
)

// Dependencies bundles everything the application modes need: the engine,
// the combined sink, and the archiver handle for the shutdown flush. RunID
// tags this process run in logs and archive object keys.
type Dependencies struct {
	Engine   *engine.Engine
	Sink     sink.Sink
	Archiver *s3blob.FillArchiver
	RunID    string
}

// Wire constructs all concrete dependencies from the given configuration and
// returns them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{RunID: uuid.NewString()}

	excluded := addrset.Default()
	if len(cfg.Contracts.Excluded) > 0 {
		excluded = addrset.New(cfg.Contracts.Excluded)
	}
	deps.Engine = engine.New(engine.Config{
		Contracts: extract.Contracts{
			CTFExchange:     common.HexToAddress(cfg.Contracts.CTFExchange),
			NegRiskExchange: common.HexToAddress(cfg.Contracts.NegRiskExchange),
			USDC:            common.HexToAddress(cfg.Contracts.USDC),
		},
		Excluded:      excluded,
		MaxReorgDepth: cfg.Chain.MaxReorgDepth,
	}, logger)

	minTrade, err := sink.ParseParams(cfg.Sink.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: sink params: %w", err)
	}

	var sinks sink.Multi

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.NewClient(ctx, postgres.ClientConfig{
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

		sinks = append(sinks, postgres.NewSink(pgClient, deps.Engine, minTrade, logger))
	}

	// --- Redis price cache ---
	if cfg.Redis.Enabled {
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

		sinks = append(sinks, redis.NewPriceCache(redisClient))
	}

	// --- S3 fill archival ---
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

		deps.Archiver = s3blob.NewFillArchiver(
			s3blob.NewWriter(s3Client), deps.RunID, cfg.S3.FlushBlocks, logger,
		)
		sinks = append(sinks, deps.Archiver)
	}

	if len(sinks) > 0 {
		deps.Sink = sinks
	}

	return deps, cleanup, nil
}
