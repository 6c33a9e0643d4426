// Package engine implements the incremental aggregation core: per-block
// application of decoded events to the keyed accumulator stores, the
// realized-P&L calculation, and the derivation of per-user and per-market
// snapshots. Everything is single-threaded and deterministic; the host feed
// delivers one block at a time and handles reorgs by calling RevertBlock.
package engine

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/polypnl/internal/addrset"
	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/extract"
	"github.com/alanyoungcy/polypnl/internal/state"
)

// DefaultMaxReorgDepth is how many block journals are retained for rollback
// when the config does not say otherwise. Polygon reorgs deeper than this
// are not recoverable in-process and require a re-index.
const DefaultMaxReorgDepth = 64

// Config carries the engine's construction parameters.
type Config struct {
	Contracts     extract.Contracts
	Excluded      *addrset.Set
	MaxReorgDepth int
}

// blockJournal is everything needed to undo one block: the merged per-key
// deltas of every accumulator. The latest-price table is deliberately absent;
// it is last-write-wins and gets overwritten by the replacement block.
type blockJournal struct {
	number       uint64
	positions    []state.Delta
	costBasis    []state.Delta
	realized     []state.Delta
	volume       []state.Delta
	tradeCount   []state.Delta
	marketVolume []state.Delta
}

// Engine owns the seven stores and applies blocks to them. It is not safe
// for concurrent use; the feed is its single caller.
type Engine struct {
	extractor *extract.Extractor
	excluded  *addrset.Set

	positions    *state.Accumulator // user:token -> outcome token quantity
	costBasis    *state.Accumulator // user:token -> accumulated cost units
	realized     *state.Accumulator // user -> realized P&L, 10^18 price scale
	volume       *state.Accumulator // user -> traded amount total
	tradeCount   *state.Accumulator // user -> fill count
	marketVolume *state.Accumulator // token -> traded amount total
	prices       *state.LatestPrices

	journals  []blockJournal
	maxDepth  int
	lastBlock uint64
	logger    *slog.Logger
}

// New creates an Engine with empty stores.
func New(cfg Config, logger *slog.Logger) *Engine {
	excluded := cfg.Excluded
	if excluded == nil {
		excluded = addrset.Default()
	}
	maxDepth := cfg.MaxReorgDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxReorgDepth
	}

	return &Engine{
		extractor:    extract.New(cfg.Contracts, excluded),
		excluded:     excluded,
		positions:    state.NewAccumulator("positions"),
		costBasis:    state.NewAccumulator("cost_basis"),
		realized:     state.NewAccumulator("realized_pnl"),
		volume:       state.NewAccumulator("user_volume"),
		tradeCount:   state.NewAccumulator("trade_count"),
		marketVolume: state.NewAccumulator("market_volume"),
		prices:       state.NewLatestPrices(),
		maxDepth:     maxDepth,
		logger:       logger.With(slog.String("component", "engine")),
	}
}

// ProcessBlock runs all stages for one block in dependency order: extraction,
// accumulator updates, latest prices, realized P&L, then snapshot derivation.
// The block's journal is retained for RevertBlock.
func (e *Engine) ProcessBlock(blk domain.Block) *domain.BlockResult {
	ev := e.extractor.ExtractBlock(blk)

	e.applyPositions(ev.TokenTransfers)
	e.applyCostBasis(ev.Fills)
	e.applyVolume(ev.Fills)
	e.applyTradeCounts(ev.Fills)
	e.applyMarketVolume(ev.Fills)
	priceUpdates := e.applyLatestPrices(ev.Fills)

	// Runs after the position and cost-basis updates: a sell settles against
	// the basis as of this block, including this block's own earlier buys.
	e.applyRealizedPnL(ev.Fills)

	journal := blockJournal{
		number:       blk.Number,
		positions:    e.positions.EndBlock(),
		costBasis:    e.costBasis.EndBlock(),
		realized:     e.realized.EndBlock(),
		volume:       e.volume.EndBlock(),
		tradeCount:   e.tradeCount.EndBlock(),
		marketVolume: e.marketVolume.EndBlock(),
	}

	res := &domain.BlockResult{
		BlockNumber:    blk.Number,
		Timestamp:      blk.Timestamp,
		Fills:          ev.Fills,
		TokenTransfers: ev.TokenTransfers,
		CashTransfers:  ev.CashTransfers,
		Users:          e.deriveUserPnL(blk, ev, journal.positions),
		Markets:        deriveMarketStats(journal.marketVolume),
		PriceUpdates:   priceUpdates,
	}

	e.journals = append(e.journals, journal)
	if len(e.journals) > e.maxDepth {
		e.journals = e.journals[1:]
	}
	e.lastBlock = blk.Number

	if len(ev.Fills) > 0 || len(ev.TokenTransfers) > 0 {
		e.logger.Debug("block processed",
			slog.Uint64("block", blk.Number),
			slog.Int("fills", len(ev.Fills)),
			slog.Int("token_transfers", len(ev.TokenTransfers)),
			slog.Int("users_affected", len(res.Users)),
		)
	}

	return res
}

// RevertBlock undoes the most recently processed block by inverse-applying
// its journal to every accumulator, and returns the reverted block number.
// It fails when the journal window has been exhausted.
func (e *Engine) RevertBlock() (uint64, error) {
	if len(e.journals) == 0 {
		return 0, fmt.Errorf("engine: revert block: %w", domain.ErrReorgTooDeep)
	}

	j := e.journals[len(e.journals)-1]
	e.journals = e.journals[:len(e.journals)-1]

	e.positions.Revert(j.positions)
	e.costBasis.Revert(j.costBasis)
	e.realized.Revert(j.realized)
	e.volume.Revert(j.volume)
	e.tradeCount.Revert(j.tradeCount)
	e.marketVolume.Revert(j.marketVolume)

	e.lastBlock = j.number - 1
	e.logger.Info("block reverted", slog.Uint64("block", j.number))
	return j.number, nil
}

// LastBlock returns the number of the most recently processed block.
func (e *Engine) LastBlock() uint64 {
	return e.lastBlock
}

// Price returns the latest observed trade price for a market. The sink uses
// this to fill the market snapshot's current-price column.
func (e *Engine) Price(tokenID string) (domain.TokenPrice, bool) {
	return e.prices.Get(tokenID)
}

// Position returns the current outcome token quantity held by user in the
// given market.
func (e *Engine) Position(user, tokenID string) *big.Int {
	return e.positions.Get(state.PositionKey(user, tokenID))
}

// CostBasis returns the user's accumulated basis in the given market.
func (e *Engine) CostBasis(user, tokenID string) *big.Int {
	return e.costBasis.Get(state.PositionKey(user, tokenID))
}

// Realized returns the user's realized P&L total, at 10^18 price scale.
func (e *Engine) Realized(user string) *big.Int {
	return e.realized.Get(user)
}
