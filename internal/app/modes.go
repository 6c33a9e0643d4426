package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polypnl/internal/feed"
)

// flushTimeout bounds the final archive upload after the run context is
// already cancelled.
const flushTimeout = 30 * time.Second

func (a *App) feedConfig() feed.Config {
	return feed.Config{
		StartBlock:    a.cfg.Chain.StartBlock,
		Confirmations: a.cfg.Chain.Confirmations,
		BatchSize:     a.cfg.Chain.BatchSize,
		PollInterval:  a.cfg.Chain.PollInterval.Duration,
	}
}

// IndexMode follows the chain head, feeding confirmed blocks through the
// engine and sinks until the context is cancelled.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode",
		slog.Uint64("start_block", a.cfg.Chain.StartBlock),
		slog.String("run_id", deps.RunID),
	)

	client, err := feed.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	f := feed.New(client, deps.Engine, deps.Sink, a.feedConfig(), deps.RunID, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.RunLoop(gctx)
	})

	err = g.Wait()
	a.flushArchiver(deps)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// BackfillMode re-indexes the configured block range once and exits.
func (a *App) BackfillMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backfill mode",
		slog.Uint64("from", a.cfg.Backfill.From),
		slog.Uint64("to", a.cfg.Backfill.To),
		slog.String("run_id", deps.RunID),
	)

	client, err := feed.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	f := feed.New(client, deps.Engine, deps.Sink, a.feedConfig(), deps.RunID, a.logger)

	err = f.Backfill(ctx, a.cfg.Backfill.From, a.cfg.Backfill.To)
	a.flushArchiver(deps)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// flushArchiver uploads the archiver's partial tail batch. It runs on a
// fresh context because the run context is typically already cancelled.
func (a *App) flushArchiver(deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := deps.Archiver.Flush(ctx); err != nil {
		a.logger.Error("final archive flush failed", slog.String("error", err.Error()))
	}
}
