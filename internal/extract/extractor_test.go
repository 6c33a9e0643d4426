package extract

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polypnl/internal/abi"
	"github.com/alanyoungcy/polypnl/internal/addrset"
	"github.com/alanyoungcy/polypnl/internal/domain"
)

var (
	alice    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	ctf      = common.HexToAddress(DefaultCTFExchange)
	excluded = common.HexToAddress(addrset.DefaultExcluded[0])
)

func word(v *big.Int) []byte {
	var w [32]byte
	v.FillBytes(w[:])
	return w[:]
}

func addrWord(a common.Address) []byte {
	var w [32]byte
	copy(w[12:], a.Bytes())
	return w[:]
}

func fillLog(exchange, maker, taker common.Address, makerAsset, takerAsset, makerAmt, takerAmt int64, idx uint) types.Log {
	data := word(big.NewInt(1)) // order hash
	data = append(data, addrWord(maker)...)
	data = append(data, addrWord(taker)...)
	data = append(data, word(big.NewInt(makerAsset))...)
	data = append(data, word(big.NewInt(takerAsset))...)
	data = append(data, word(big.NewInt(makerAmt))...)
	data = append(data, word(big.NewInt(takerAmt))...)
	return types.Log{
		Address: exchange,
		Topics:  []common.Hash{abi.OrderFilledSig},
		Data:    data,
		TxHash:  common.HexToHash("0xaa"),
		Index:   idx,
	}
}

func transferSingleLog(from, to common.Address, tokenID, amount int64, idx uint) types.Log {
	return types.Log{
		Address: common.HexToAddress("0x4d97dcd97ec945f40cf65f87097ace5ea0476045"),
		Topics: []common.Hash{
			abi.TransferSingleSig,
			common.BytesToHash(from.Bytes()), // operator
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   append(word(big.NewInt(tokenID)), word(big.NewInt(amount))...),
		TxHash: common.HexToHash("0xbb"),
		Index:  idx,
	}
}

func usdcTransferLog(from, to common.Address, amount int64, idx uint) types.Log {
	return types.Log{
		Address: common.HexToAddress(DefaultUSDC),
		Topics: []common.Hash{
			abi.TransferSig,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   word(big.NewInt(amount)),
		TxHash: common.HexToHash("0xcc"),
		Index:  idx,
	}
}

func newTestExtractor() *Extractor {
	return New(DefaultContracts(), addrset.Default())
}

func TestExtractBuyFill(t *testing.T) {
	x := newTestExtractor()
	// Maker gives tokens (asset 777), taker pays 600000 USDC for 1000000 tokens.
	blk := domain.Block{
		Number:    100,
		Timestamp: 1700000000,
		Logs:      []types.Log{fillLog(ctf, alice, bob, 777, 0, 1000000, 600000, 3)},
	}

	ev := x.ExtractBlock(blk)
	require.Len(t, ev.Fills, 1)
	fill := ev.Fills[0]

	assert.Equal(t, domain.SideBuy, fill.Side)
	assert.Equal(t, "777", fill.TokenID)
	assert.Equal(t, "0.600000000000000000", fill.Price)
	assert.Equal(t, big.NewInt(600000), fill.Amount)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", fill.Maker)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", fill.Taker)
	assert.Equal(t, domain.ExchangeCTF, fill.Exchange)
	assert.Equal(t, uint64(100), fill.BlockNumber)
	assert.Equal(t, uint(3), fill.LogIndex)
}

func TestExtractSellFill(t *testing.T) {
	x := newTestExtractor()
	// Maker pays 800000 USDC (asset 0) for 1000000 of token 777: taker sells.
	blk := domain.Block{
		Number: 101,
		Logs:   []types.Log{fillLog(ctf, alice, bob, 0, 777, 800000, 1000000, 0)},
	}

	ev := x.ExtractBlock(blk)
	require.Len(t, ev.Fills, 1)
	fill := ev.Fills[0]

	assert.Equal(t, domain.SideSell, fill.Side)
	assert.Equal(t, "777", fill.TokenID)
	assert.Equal(t, "0.800000000000000000", fill.Price)
	assert.Equal(t, big.NewInt(800000), fill.Amount)
}

func TestExtractNegRiskExchangeTag(t *testing.T) {
	x := newTestExtractor()
	negRisk := common.HexToAddress(DefaultNegRiskExchange)
	blk := domain.Block{Logs: []types.Log{fillLog(negRisk, alice, bob, 777, 0, 1, 1, 0)}}

	ev := x.ExtractBlock(blk)
	require.Len(t, ev.Fills, 1)
	assert.Equal(t, domain.ExchangeNegRisk, ev.Fills[0].Exchange)
}

func TestExtractSkipsFillWhenBothPartiesExcluded(t *testing.T) {
	x := newTestExtractor()
	other := common.HexToAddress(addrset.DefaultExcluded[3])
	blk := domain.Block{Logs: []types.Log{fillLog(ctf, excluded, other, 777, 0, 1, 1, 0)}}

	ev := x.ExtractBlock(blk)
	assert.Empty(t, ev.Fills)
}

func TestExtractKeepsFillWithOneExcludedParty(t *testing.T) {
	x := newTestExtractor()
	blk := domain.Block{Logs: []types.Log{fillLog(ctf, excluded, bob, 777, 0, 1, 1, 0)}}

	ev := x.ExtractBlock(blk)
	assert.Len(t, ev.Fills, 1)
}

func TestExtractTokenTransfer(t *testing.T) {
	x := newTestExtractor()
	blk := domain.Block{
		Number: 55,
		Logs:   []types.Log{transferSingleLog(alice, bob, 777, 42, 7)},
	}

	ev := x.ExtractBlock(blk)
	require.Len(t, ev.TokenTransfers, 1)
	tr := ev.TokenTransfers[0]

	assert.Equal(t, "777", tr.TokenID)
	assert.Equal(t, big.NewInt(42), tr.Amount)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", tr.From)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", tr.To)
}

func TestExtractSkipsTransferBetweenExcludedAddresses(t *testing.T) {
	x := newTestExtractor()
	zero := common.HexToAddress(addrset.DefaultExcluded[5])
	blk := domain.Block{Logs: []types.Log{transferSingleLog(excluded, zero, 777, 42, 0)}}

	ev := x.ExtractBlock(blk)
	assert.Empty(t, ev.TokenTransfers)
}

func TestExtractCashTransfer(t *testing.T) {
	x := newTestExtractor()
	blk := domain.Block{Logs: []types.Log{usdcTransferLog(alice, bob, 1500000, 0)}}

	ev := x.ExtractBlock(blk)
	require.Len(t, ev.CashTransfers, 1)
	assert.Equal(t, big.NewInt(1500000), ev.CashTransfers[0].Amount)
}

func TestExtractIgnoresUnknownLogs(t *testing.T) {
	x := newTestExtractor()
	blk := domain.Block{Logs: []types.Log{
		{Address: alice, Topics: []common.Hash{common.HexToHash("0x01")}, Data: make([]byte, 256)},
		// Undersized OrderFilled payload at an exchange address.
		{Address: ctf, Topics: []common.Hash{abi.OrderFilledSig}, Data: make([]byte, 100)},
	}}

	ev := x.ExtractBlock(blk)
	assert.Empty(t, ev.Fills)
	assert.Empty(t, ev.TokenTransfers)
	assert.Empty(t, ev.CashTransfers)
}
