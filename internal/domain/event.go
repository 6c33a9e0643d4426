// Package domain defines the core types shared across the P&L pipeline:
// decoded chain events, per-block processing results, and the snapshot
// records handed to the sink.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fill sides, from the taker's perspective.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Exchange tags identifying which contract emitted a fill.
const (
	ExchangeCTF     = "ctf"
	ExchangeNegRisk = "neg_risk"
)

// Block is one block's worth of raw logs together with the header fields the
// pipeline needs. Logs are expected in log-index order.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  int64
	Logs       []types.Log
}

// OrderFill is an immutable record of one matched order on a Polymarket
// exchange. Side, Price, Amount and TokenID are derived from the raw asset
// ids: the leg whose asset id is "0" is the USDC (collateral) leg.
type OrderFill struct {
	ID          string // "{tx_hash}-{log_index}", unique per fill
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Timestamp   int64

	Maker   string // lowercase 0x-prefixed address
	Taker   string
	TokenID string // decimal token id of the outcome token leg
	Side    string // SideBuy or SideSell, taker's perspective
	Price   string // 18-fractional-digit decimal string
	Amount  *big.Int
	Fee     *big.Int

	MakerAssetID      string
	TakerAssetID      string
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int

	Exchange  string // ExchangeCTF or ExchangeNegRisk
	OrderHash string
}

// TokenTransfer is a decoded ERC-1155 TransferSingle event: a change of
// custody of an outcome token independent of trading (settlement, merges).
type TokenTransfer struct {
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Timestamp   int64

	From     string
	To       string
	TokenID  string
	Amount   *big.Int
	Contract string
}

// CashTransfer is a decoded ERC-20 Transfer of the settlement currency.
type CashTransfer struct {
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Timestamp   int64

	From   string
	To     string
	Amount *big.Int
}
