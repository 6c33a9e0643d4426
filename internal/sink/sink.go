// Package sink materializes per-block engine output for downstream
// consumers. A sink receives the complete result of one processed block and
// persists whatever slice of it the backend cares about.
package sink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// Sink consumes one block's worth of derived output. Implementations must
// tolerate replays of the same block (reorg rewinds re-emit blocks).
type Sink interface {
	WriteBlock(ctx context.Context, res *domain.BlockResult) error
}

// PriceLookup resolves the current price of a token. The engine's
// latest-value store satisfies this.
type PriceLookup interface {
	Price(tokenID string) (domain.TokenPrice, bool)
}

// ParseParams parses a sink parameter string of the form
// "key=value&key=value". The only recognized key is min_trade_size, a
// base-unit integer below which fills are not materialized as trade rows.
// An empty string means no filtering.
func ParseParams(params string) (*big.Int, error) {
	if strings.TrimSpace(params) == "" {
		return nil, nil
	}
	for _, kv := range strings.Split(params, "&") {
		key, val, found := strings.Cut(kv, "=")
		if !found {
			return nil, fmt.Errorf("sink: malformed parameter %q", kv)
		}
		if key != "min_trade_size" {
			return nil, fmt.Errorf("sink: unknown parameter %q", key)
		}
		min, ok := new(big.Int).SetString(val, 10)
		if !ok {
			return nil, fmt.Errorf("sink: min_trade_size %q is not an integer", val)
		}
		if min.Sign() < 0 {
			return nil, fmt.Errorf("sink: min_trade_size %q is negative", val)
		}
		return min, nil
	}
	return nil, nil
}

// FilterFills returns the fills whose traded amount is at least min.
// A nil min keeps everything.
func FilterFills(fills []domain.OrderFill, min *big.Int) []domain.OrderFill {
	if min == nil {
		return fills
	}
	kept := make([]domain.OrderFill, 0, len(fills))
	for _, f := range fills {
		if f.Amount.Cmp(min) >= 0 {
			kept = append(kept, f)
		}
	}
	return kept
}

// Timestamp renders a unix time as a calendar string in UTC, the layout the
// relational schema stores.
func Timestamp(secs int64) string {
	return time.Unix(secs, 0).UTC().Format("2006-01-02 15:04:05")
}

// Multi fans one block out to several sinks in order, stopping at the first
// failure.
type Multi []Sink

// WriteBlock implements Sink.
func (m Multi) WriteBlock(ctx context.Context, res *domain.BlockResult) error {
	for _, s := range m {
		if err := s.WriteBlock(ctx, res); err != nil {
			return err
		}
	}
	return nil
}
