// Package extract turns a block's raw logs into typed pipeline events. It is
// the only place that knows which contracts to listen to and how a fill's
// side, price and traded amount are derived from the raw maker/taker legs.
package extract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polypnl/internal/abi"
	"github.com/alanyoungcy/polypnl/internal/addrset"
	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/fixedpoint"
)

// Polygon mainnet contract defaults.
const (
	DefaultCTFExchange     = "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e"
	DefaultNegRiskExchange = "0xc5d563a36ae78145c45a50134d48a1215220f80a"
	DefaultUSDC            = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
)

// usdcAssetID marks the collateral leg of a fill. When the maker asset is
// USDC, the maker is paying cash and the taker is selling tokens; otherwise
// the taker is paying cash and buying.
const usdcAssetID = 0

// Contracts names the chain contracts the extractor listens to.
type Contracts struct {
	CTFExchange     common.Address
	NegRiskExchange common.Address
	USDC            common.Address
}

// DefaultContracts returns the Polygon mainnet deployment.
func DefaultContracts() Contracts {
	return Contracts{
		CTFExchange:     common.HexToAddress(DefaultCTFExchange),
		NegRiskExchange: common.HexToAddress(DefaultNegRiskExchange),
		USDC:            common.HexToAddress(DefaultUSDC),
	}
}

// Events holds one block's decoded events, each slice in log-index order.
type Events struct {
	Fills          []domain.OrderFill
	TokenTransfers []domain.TokenTransfer
	CashTransfers  []domain.CashTransfer
}

// Extractor decodes raw logs into domain events. It is stateless and safe
// for concurrent use.
type Extractor struct {
	contracts Contracts
	excluded  *addrset.Set
}

// New creates an Extractor for the given contracts and excluded-address set.
func New(contracts Contracts, excluded *addrset.Set) *Extractor {
	return &Extractor{contracts: contracts, excluded: excluded}
}

// Excluded exposes the extractor's address filter for downstream stages.
func (x *Extractor) Excluded() *addrset.Set {
	return x.excluded
}

// ExtractBlock decodes every matching log of the block. Logs that do not
// match a known contract/layout are skipped without error. Fills and token
// transfers where both counterparties are excluded carry no economic
// information for any tracked user and are dropped here, before any
// accumulation.
func (x *Extractor) ExtractBlock(blk domain.Block) Events {
	var ev Events
	for i := range blk.Logs {
		log := &blk.Logs[i]
		switch {
		case log.Address == x.contracts.CTFExchange || log.Address == x.contracts.NegRiskExchange:
			if fill, ok := x.extractFill(blk, log); ok {
				ev.Fills = append(ev.Fills, fill)
			}
		case len(log.Topics) > 0 && log.Topics[0] == abi.TransferSingleSig:
			if tr, ok := x.extractTokenTransfer(blk, log); ok {
				ev.TokenTransfers = append(ev.TokenTransfers, tr)
			}
		case log.Address == x.contracts.USDC && len(log.Topics) > 0 && log.Topics[0] == abi.TransferSig:
			if tr, ok := x.extractCashTransfer(blk, log); ok {
				ev.CashTransfers = append(ev.CashTransfers, tr)
			}
		}
	}
	return ev
}

func (x *Extractor) extractFill(blk domain.Block, log *types.Log) (domain.OrderFill, bool) {
	decoded, ok := abi.DecodeOrderFilled(log)
	if !ok {
		return domain.OrderFill{}, false
	}

	makerAddr := formatAddress(decoded.Maker)
	takerAddr := formatAddress(decoded.Taker)
	if x.excluded.Contains(makerAddr) && x.excluded.Contains(takerAddr) {
		return domain.OrderFill{}, false
	}

	fill := domain.OrderFill{
		ID:                fmt.Sprintf("%s-%d", log.TxHash.Hex(), log.Index),
		TxHash:            log.TxHash.Hex(),
		LogIndex:          log.Index,
		BlockNumber:       blk.Number,
		Timestamp:         blk.Timestamp,
		Maker:             makerAddr,
		Taker:             takerAddr,
		Fee:               decoded.Fee,
		MakerAssetID:      decoded.MakerAssetID.String(),
		TakerAssetID:      decoded.TakerAssetID.String(),
		MakerAmountFilled: decoded.MakerAmountFilled,
		TakerAmountFilled: decoded.TakerAmountFilled,
		OrderHash:         decoded.OrderHash,
	}

	if log.Address == x.contracts.CTFExchange {
		fill.Exchange = domain.ExchangeCTF
	} else {
		fill.Exchange = domain.ExchangeNegRisk
	}

	if decoded.MakerAssetID.Sign() == usdcAssetID {
		// Maker pays USDC, so the taker is selling tokens. The traded
		// amount is the cash leg; price is cash per token.
		fill.Side = domain.SideSell
		fill.Price = fixedpoint.Format(decoded.MakerAmountFilled, decoded.TakerAmountFilled)
		fill.Amount = decoded.MakerAmountFilled
		fill.TokenID = decoded.TakerAssetID.String()
	} else {
		// Taker pays USDC and is buying.
		fill.Side = domain.SideBuy
		fill.Price = fixedpoint.Format(decoded.TakerAmountFilled, decoded.MakerAmountFilled)
		fill.Amount = decoded.TakerAmountFilled
		fill.TokenID = decoded.MakerAssetID.String()
	}

	return fill, true
}

func (x *Extractor) extractTokenTransfer(blk domain.Block, log *types.Log) (domain.TokenTransfer, bool) {
	decoded, ok := abi.DecodeTransferSingle(log)
	if !ok {
		return domain.TokenTransfer{}, false
	}

	from := formatAddress(decoded.From)
	to := formatAddress(decoded.To)
	if x.excluded.Contains(from) && x.excluded.Contains(to) {
		return domain.TokenTransfer{}, false
	}

	return domain.TokenTransfer{
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
		BlockNumber: blk.Number,
		Timestamp:   blk.Timestamp,
		From:        from,
		To:          to,
		TokenID:     decoded.TokenID.String(),
		Amount:      decoded.Amount,
		Contract:    formatAddress(log.Address),
	}, true
}

func (x *Extractor) extractCashTransfer(blk domain.Block, log *types.Log) (domain.CashTransfer, bool) {
	decoded, ok := abi.DecodeTransfer(log)
	if !ok {
		return domain.CashTransfer{}, false
	}

	return domain.CashTransfer{
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
		BlockNumber: blk.Number,
		Timestamp:   blk.Timestamp,
		From:        formatAddress(decoded.From),
		To:          formatAddress(decoded.To),
		Amount:      decoded.Amount,
	}, true
}

// formatAddress renders an address as lowercase 0x-prefixed hex, the
// canonical form for store keys and sink rows.
func formatAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}
