package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polypnl/internal/abi"
	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/engine"
	"github.com/alanyoungcy/polypnl/internal/sink"
)

// Defaults for Config zero values.
const (
	DefaultConfirmations = 12
	DefaultBatchSize     = 100
	DefaultPollInterval  = 2 * time.Second
)

// Config controls the polling feed.
type Config struct {
	// StartBlock is the first block to process when the feed has no state.
	StartBlock uint64

	// Confirmations is how far behind the chain head the feed stays. Blocks
	// deeper than this can still reorg; the feed rewinds when they do.
	Confirmations uint64

	// BatchSize caps how many blocks one poll iteration processes.
	BatchSize uint64

	// PollInterval is the delay between head checks in RunLoop.
	PollInterval time.Duration
}

type blockRef struct {
	number uint64
	hash   common.Hash
}

// Feed polls a chain endpoint and feeds confirmed blocks to the engine and
// sink in order. It records the hash of every processed block; a parent-hash
// mismatch on the next block means the chain reorganized, and the feed
// rewinds the engine one block at a time until hashes line up again.
//
// Feed is single-threaded: one goroutine calls Run or RunLoop.
type Feed struct {
	client ChainClient
	engine *engine.Engine
	sink   sink.Sink
	cfg    Config
	logger *slog.Logger

	next   uint64
	recent []blockRef
}

// New creates a Feed. snk may be nil when no materialization is wanted.
// runID tags this process run in logs.
func New(client ChainClient, eng *engine.Engine, snk sink.Sink, cfg Config, runID string, logger *slog.Logger) *Feed {
	if cfg.Confirmations == 0 {
		cfg.Confirmations = DefaultConfirmations
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Feed{
		client: client,
		engine: eng,
		sink:   snk,
		cfg:    cfg,
		logger: logger.With(
			slog.String("component", "feed"),
			slog.String("run_id", runID),
		),
		next: cfg.StartBlock,
	}
}

// topicFilter matches any of the three event signatures in a log's first
// topic position.
func topicFilter() [][]common.Hash {
	return [][]common.Hash{{
		abi.OrderFilledSig,
		abi.TransferSingleSig,
		abi.TransferSig,
	}}
}

// Run performs one poll iteration: it processes every confirmed block that
// is ready, up to the batch cap. It returns how many blocks advanced.
func (f *Feed) Run(ctx context.Context) (int, error) {
	head, err := f.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("feed: block number: %w", err)
	}
	if head < f.cfg.Confirmations {
		return 0, nil
	}
	safe := head - f.cfg.Confirmations

	processed := 0
	for f.next <= safe && uint64(processed) < f.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := f.step(ctx); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// RunLoop polls until the context is cancelled.
func (f *Feed) RunLoop(ctx context.Context) error {
	f.logger.Info("feed started", slog.Uint64("start_block", f.next))
	defer f.logger.Info("feed stopped")

	if _, err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		f.logger.Error("poll failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := f.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				f.logger.Error("poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// step processes block f.next, or rewinds one block if its parent hash does
// not match what was processed before.
func (f *Feed) step(ctx context.Context) error {
	n := f.next
	header, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return fmt.Errorf("feed: header %d: %w", n, err)
	}

	if tip, ok := f.tip(); ok && tip.number == n-1 && header.ParentHash != tip.hash {
		return f.rewind(tip)
	}

	logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(n),
		ToBlock:   new(big.Int).SetUint64(n),
		Topics:    topicFilter(),
	})
	if err != nil {
		return fmt.Errorf("feed: filter logs %d: %w", n, err)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Index < logs[j].Index })

	res := f.engine.ProcessBlock(domain.Block{
		Number:     n,
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  int64(header.Time),
		Logs:       logs,
	})

	if f.sink != nil {
		if err := f.sink.WriteBlock(ctx, res); err != nil {
			// Back the engine out of the block so the retry next poll does
			// not double-apply it.
			if _, rerr := f.engine.RevertBlock(); rerr != nil {
				return fmt.Errorf("feed: sink block %d: %w (revert failed: %v)", n, err, rerr)
			}
			return fmt.Errorf("feed: sink block %d: %w", n, err)
		}
	}

	f.push(blockRef{number: n, hash: header.Hash()})
	f.next = n + 1
	return nil
}

// rewind undoes the most recently processed block after a parent-hash
// mismatch. The next Run picks up at that height and re-fetches it from the
// new canonical chain; consecutive mismatches rewind further, bounded by the
// engine's journal window.
func (f *Feed) rewind(tip blockRef) error {
	reverted, err := f.engine.RevertBlock()
	if err != nil {
		return fmt.Errorf("feed: rewind at block %d: %w", tip.number, err)
	}
	f.recent = f.recent[:len(f.recent)-1]
	f.next = reverted

	f.logger.Warn("reorg detected, rewound one block",
		slog.Uint64("block", reverted),
		slog.String("stale_hash", tip.hash.Hex()),
	)
	return nil
}

func (f *Feed) tip() (blockRef, bool) {
	if len(f.recent) == 0 {
		return blockRef{}, false
	}
	return f.recent[len(f.recent)-1], true
}

func (f *Feed) push(ref blockRef) {
	f.recent = append(f.recent, ref)
	if len(f.recent) > engine.DefaultMaxReorgDepth {
		f.recent = f.recent[1:]
	}
}

// NextBlock returns the next block height the feed will process.
func (f *Feed) NextBlock() uint64 {
	return f.next
}
