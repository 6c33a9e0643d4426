package domain

// ZeroDecimal is the canonical 18-fractional-digit zero value.
const ZeroDecimal = "0.000000000000000000"

// UserPnL is the per-user analytics snapshot emitted for every user affected
// in a block. Values are full current totals, not deltas, so the sink can
// apply superseding upserts. Monetary fields are decimal strings of the
// 10^18-scaled accumulator values.
//
// UnrealizedPnL is always "0": computing it needs a live mark-to-market of
// open positions, which this pipeline does not do yet. TotalPnL therefore
// equals RealizedPnL. FeesPaid and the win/loss counters are likewise
// reserved columns with no accumulator behind them.
type UserPnL struct {
	UserAddress   string
	RealizedPnL   string
	UnrealizedPnL string
	TotalPnL      string
	TotalVolume   string
	TotalTrades   int64
	FeesPaid      string
	WinCount      int64
	LossCount     int64
	LastTradeAt   int64 // Unix seconds of the emitting block
}

// MarketStat is the per-market snapshot emitted for every market whose
// cumulative volume changed in a block. CurrentPrice is left empty here; the
// sink projection resolves it from the latest-price table.
type MarketStat struct {
	TokenID     string
	TotalVolume string
}

// TokenPrice is the last observed trade price of a market, with provenance.
type TokenPrice struct {
	TokenID     string
	Price       string
	BlockNumber uint64
	Timestamp   int64
}

// BlockResult is everything ProcessBlock derives from one block: the decoded
// events and the snapshot records for the sink. All fields are immutable once
// returned.
type BlockResult struct {
	BlockNumber uint64
	Timestamp   int64

	Fills          []OrderFill
	TokenTransfers []TokenTransfer
	CashTransfers  []CashTransfer

	Users   []UserPnL
	Markets []MarketStat

	// PriceUpdates lists the latest-price entries touched by this block's
	// fills, one per market, in first-touch order.
	PriceUpdates []TokenPrice
}
