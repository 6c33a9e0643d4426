package engine

import (
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/fixedpoint"
	"github.com/alanyoungcy/polypnl/internal/state"
)

// applyPositions moves outcome token quantity between holders. Each side of
// a transfer is credited independently, so a transfer touching one excluded
// address still updates the other party.
func (e *Engine) applyPositions(transfers []domain.TokenTransfer) {
	for i := range transfers {
		tr := &transfers[i]
		if !e.excluded.Contains(tr.From) {
			key := state.PositionKey(tr.From, tr.TokenID)
			e.positions.Apply(key, new(big.Int).Neg(tr.Amount))
		}
		if !e.excluded.Contains(tr.To) {
			key := state.PositionKey(tr.To, tr.TokenID)
			e.positions.Apply(key, tr.Amount)
		}
	}
}

// applyCostBasis accrues the taker's basis: buys add the traded amount,
// sells remove it. The basis is accumulated in raw traded-amount units, not
// price-weighted cost. That is a known simplification carried over from the
// deployed accounting; correcting it would change every downstream P&L
// figure and needs a product decision first.
func (e *Engine) applyCostBasis(fills []domain.OrderFill) {
	for i := range fills {
		fill := &fills[i]
		if e.excluded.Contains(fill.Taker) {
			continue
		}
		key := state.PositionKey(fill.Taker, fill.TokenID)
		switch fill.Side {
		case domain.SideBuy:
			e.costBasis.Apply(key, fill.Amount)
		case domain.SideSell:
			e.costBasis.Apply(key, new(big.Int).Neg(fill.Amount))
		}
	}
}

// applyVolume credits the traded amount to both counterparties.
func (e *Engine) applyVolume(fills []domain.OrderFill) {
	for i := range fills {
		fill := &fills[i]
		if !e.excluded.Contains(fill.Maker) {
			e.volume.Apply(fill.Maker, fill.Amount)
		}
		if !e.excluded.Contains(fill.Taker) {
			e.volume.Apply(fill.Taker, fill.Amount)
		}
	}
}

// applyTradeCounts increments both counterparties' fill counts.
func (e *Engine) applyTradeCounts(fills []domain.OrderFill) {
	one := big.NewInt(1)
	for i := range fills {
		fill := &fills[i]
		if !e.excluded.Contains(fill.Maker) {
			e.tradeCount.Apply(fill.Maker, one)
		}
		if !e.excluded.Contains(fill.Taker) {
			e.tradeCount.Apply(fill.Taker, one)
		}
	}
}

// applyMarketVolume accrues per-market volume. Unlike the user-scoped
// stores this is unconditional: protocol-side fills still move the market.
func (e *Engine) applyMarketVolume(fills []domain.OrderFill) {
	for i := range fills {
		e.marketVolume.Apply(fills[i].TokenID, fills[i].Amount)
	}
}

// applyLatestPrices records each fill's price; the last fill per market in
// log order wins. Returns the touched markets' final prices in first-touch
// order.
func (e *Engine) applyLatestPrices(fills []domain.OrderFill) []domain.TokenPrice {
	var touched []string
	seen := make(map[string]struct{})

	for i := range fills {
		fill := &fills[i]
		e.prices.Set(domain.TokenPrice{
			TokenID:     fill.TokenID,
			Price:       fill.Price,
			BlockNumber: fill.BlockNumber,
			Timestamp:   fill.Timestamp,
		})
		if _, ok := seen[fill.TokenID]; !ok {
			seen[fill.TokenID] = struct{}{}
			touched = append(touched, fill.TokenID)
		}
	}

	updates := make([]domain.TokenPrice, 0, len(touched))
	for _, tokenID := range touched {
		if price, ok := e.prices.Get(tokenID); ok {
			updates = append(updates, price)
		}
	}
	return updates
}

// applyRealizedPnL settles every sell against the taker's average entry
// price. The average is cost basis over position quantity with truncating
// division, zero when no position is held. The sell price is parsed back to
// its 10^18-scaled form; see fixedpoint.Parse for the [0,1) domain contract
// this inherits.
//
// The basis may go negative when a user sells more than the store shows they
// hold (incomplete upstream history). That is recorded as-is, never clamped.
func (e *Engine) applyRealizedPnL(fills []domain.OrderFill) {
	for i := range fills {
		fill := &fills[i]
		if fill.Side != domain.SideSell || e.excluded.Contains(fill.Taker) {
			continue
		}

		key := state.PositionKey(fill.Taker, fill.TokenID)
		quantity := e.positions.Get(key)
		basis := e.costBasis.Get(key)

		avgEntry := new(big.Int)
		if quantity.Sign() != 0 {
			avgEntry.Quo(basis, quantity)
		}

		sellPrice := fixedpoint.Parse(fill.Price)
		pnl := new(big.Int).Sub(sellPrice, avgEntry)
		pnl.Mul(pnl, fill.Amount)

		e.realized.Apply(fill.Taker, pnl)

		if basis.Sign() < 0 {
			e.logger.Warn("negative cost basis",
				slog.String("user", fill.Taker),
				slog.String("token_id", fill.TokenID),
				slog.String("cost_basis", basis.String()),
			)
		}
	}
}
