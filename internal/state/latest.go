package state

import "github.com/alanyoungcy/polypnl/internal/domain"

// LatestPrices is a last-write-wins table of the most recent trade price per
// market. Unlike the accumulators it keeps no journal and is never reverted
// on a reorg: replaying the replacement block simply overwrites it.
type LatestPrices struct {
	prices map[string]domain.TokenPrice
}

// NewLatestPrices creates an empty table.
func NewLatestPrices() *LatestPrices {
	return &LatestPrices{prices: make(map[string]domain.TokenPrice)}
}

// Set overwrites the stored price for the token. Within a block the caller
// iterates fills in log order, so the last fill touching a market wins.
func (p *LatestPrices) Set(price domain.TokenPrice) {
	p.prices[price.TokenID] = price
}

// Get returns the latest price for the token, if one has been observed.
func (p *LatestPrices) Get(tokenID string) (domain.TokenPrice, bool) {
	price, ok := p.prices[tokenID]
	return price, ok
}

// Len returns the number of markets with an observed price.
func (p *LatestPrices) Len() int {
	return len(p.prices)
}
