package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/sink"
)

const insertTrade = `
	INSERT INTO trades (
		id, block_number, block_time, tx_hash, log_index,
		maker, taker, token_id, side,
		price, amount, fee, exchange, order_hash
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13, $14
	) ON CONFLICT (id) DO NOTHING`

const upsertUser = `
	INSERT INTO user_pnl (
		user_address, realized_pnl, unrealized_pnl, total_pnl,
		total_volume, total_trades, fees_paid,
		win_count, loss_count, last_trade_at, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7,
		$8, $9, $10, NOW()
	) ON CONFLICT (user_address) DO UPDATE SET
		realized_pnl = EXCLUDED.realized_pnl,
		unrealized_pnl = EXCLUDED.unrealized_pnl,
		total_pnl = EXCLUDED.total_pnl,
		total_volume = EXCLUDED.total_volume,
		total_trades = EXCLUDED.total_trades,
		fees_paid = EXCLUDED.fees_paid,
		win_count = EXCLUDED.win_count,
		loss_count = EXCLUDED.loss_count,
		last_trade_at = EXCLUDED.last_trade_at,
		updated_at = NOW()`

const upsertMarket = `
	INSERT INTO markets (
		token_id, total_volume, current_price, price_block, updated_at
	) VALUES (
		$1, $2, $3, $4, NOW()
	) ON CONFLICT (token_id) DO UPDATE SET
		total_volume = EXCLUDED.total_volume,
		current_price = COALESCE(EXCLUDED.current_price, markets.current_price),
		price_block = COALESCE(EXCLUDED.price_block, markets.price_block),
		updated_at = NOW()`

// Sink writes block results to PostgreSQL. Trade rows are insert-once keyed
// by fill id, so replaying a block after a reorg rewind is idempotent;
// snapshot rows carry full totals and are simply overwritten.
type Sink struct {
	pool     *pgxpool.Pool
	prices   sink.PriceLookup
	minTrade *big.Int
	logger   *slog.Logger
}

// NewSink builds a Sink on the client's pool. minTrade may be nil to keep
// every fill.
func NewSink(client *Client, prices sink.PriceLookup, minTrade *big.Int, logger *slog.Logger) *Sink {
	return &Sink{
		pool:     client.Pool(),
		prices:   prices,
		minTrade: minTrade,
		logger:   logger.With(slog.String("component", "pg_sink")),
	}
}

// WriteBlock implements sink.Sink. All rows for the block go out in one pgx
// batch over a single round trip.
func (s *Sink) WriteBlock(ctx context.Context, res *domain.BlockResult) error {
	batch := &pgx.Batch{}

	fills := sink.FilterFills(res.Fills, s.minTrade)
	for _, f := range fills {
		batch.Queue(insertTrade,
			f.ID, f.BlockNumber, sink.Timestamp(f.Timestamp), f.TxHash, int64(f.LogIndex),
			f.Maker, f.Taker, f.TokenID, f.Side,
			f.Price, f.Amount.String(), f.Fee.String(), f.Exchange, f.OrderHash,
		)
	}

	for _, u := range res.Users {
		batch.Queue(upsertUser,
			u.UserAddress, u.RealizedPnL, u.UnrealizedPnL, u.TotalPnL,
			u.TotalVolume, u.TotalTrades, u.FeesPaid,
			u.WinCount, u.LossCount, sink.Timestamp(u.LastTradeAt),
		)
	}

	for _, m := range res.Markets {
		var price, priceBlock any
		if p, ok := s.prices.Price(m.TokenID); ok {
			price = p.Price
			priceBlock = int64(p.BlockNumber)
		}
		batch.Queue(upsertMarket, m.TokenID, m.TotalVolume, price, priceBlock)
	}

	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: write block %d item %d: %w", res.BlockNumber, i, err)
		}
	}

	s.logger.Debug("block written",
		slog.Uint64("block", res.BlockNumber),
		slog.Int("trades", len(fills)),
		slog.Int("users", len(res.Users)),
		slog.Int("markets", len(res.Markets)),
	)
	return nil
}
