package engine

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/extract"
	"github.com/alanyoungcy/polypnl/internal/state"
)

// deriveUserPnL emits one snapshot per affected user: everyone whose
// position changed this block plus every non-excluded counterparty of this
// block's fills. Values are the accumulators' current totals, not deltas,
// so the sink can upsert them wholesale. Users are sorted for deterministic
// output.
func (e *Engine) deriveUserPnL(blk domain.Block, ev extract.Events, positionDeltas []state.Delta) []domain.UserPnL {
	affected := make(map[string]struct{})

	for i := range positionDeltas {
		user, _, ok := strings.Cut(positionDeltas[i].Key, ":")
		if ok {
			affected[user] = struct{}{}
		}
	}
	for i := range ev.Fills {
		if !e.excluded.Contains(ev.Fills[i].Maker) {
			affected[ev.Fills[i].Maker] = struct{}{}
		}
		if !e.excluded.Contains(ev.Fills[i].Taker) {
			affected[ev.Fills[i].Taker] = struct{}{}
		}
	}

	users := make([]string, 0, len(affected))
	for user := range affected {
		users = append(users, user)
	}
	sort.Strings(users)

	snapshots := make([]domain.UserPnL, 0, len(users))
	for _, user := range users {
		realized := e.realized.Get(user).String()
		snapshots = append(snapshots, domain.UserPnL{
			UserAddress:   user,
			RealizedPnL:   realized,
			UnrealizedPnL: domain.ZeroDecimal,
			TotalPnL:      realized,
			TotalVolume:   e.volume.Get(user).String(),
			TotalTrades:   e.tradeCount.Get(user).Int64(),
			FeesPaid:      domain.ZeroDecimal,
			LastTradeAt:   blk.Timestamp,
		})
	}
	return snapshots
}

// deriveMarketStats emits one snapshot per market whose cumulative volume
// changed this block, carrying the new running total. The current price
// column is resolved later by the sink from the latest-price table.
func deriveMarketStats(volumeDeltas []state.Delta) []domain.MarketStat {
	stats := make([]domain.MarketStat, 0, len(volumeDeltas))
	for i := range volumeDeltas {
		stats = append(stats, domain.MarketStat{
			TokenID:     volumeDeltas[i].Key,
			TotalVolume: volumeDeltas[i].NewValue.String(),
		})
	}
	return stats
}
