package engine

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polypnl/internal/abi"
	"github.com/alanyoungcy/polypnl/internal/addrset"
	"github.com/alanyoungcy/polypnl/internal/domain"
	"github.com/alanyoungcy/polypnl/internal/extract"
)

var (
	makerAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	takerAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	ctfAddr   = common.HexToAddress(extract.DefaultCTFExchange)

	makerHex = "0x1111111111111111111111111111111111111111"
	takerHex = "0x2222222222222222222222222222222222222222"
)

func newTestEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Contracts: extract.DefaultContracts()}, logger)
}

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

// buyLog builds an OrderFilled log where the taker buys tokenID, paying
// usdcAmt (the taker leg) for tokenAmt outcome tokens (the maker leg).
func buyLog(tokenID int64, tokenAmt, usdcAmt *big.Int, idx uint) types.Log {
	return fillLog(big.NewInt(tokenID), big.NewInt(0), tokenAmt, usdcAmt, idx)
}

// sellLog builds an OrderFilled log where the taker sells tokenID, receiving
// usdcAmt (the maker leg) for tokenAmt outcome tokens.
func sellLog(tokenID int64, usdcAmt, tokenAmt *big.Int, idx uint) types.Log {
	return fillLog(big.NewInt(0), big.NewInt(tokenID), usdcAmt, tokenAmt, idx)
}

func fillLog(makerAsset, takerAsset, makerAmt, takerAmt *big.Int, idx uint) types.Log {
	data := word(big.NewInt(1))
	data = append(data, addrWord(makerAddr)...)
	data = append(data, addrWord(takerAddr)...)
	data = append(data, word(makerAsset)...)
	data = append(data, word(takerAsset)...)
	data = append(data, word(makerAmt)...)
	data = append(data, word(takerAmt)...)
	return types.Log{
		Address: ctfAddr,
		Topics:  []common.Hash{abi.OrderFilledSig},
		Data:    data,
		TxHash:  common.HexToHash("0xaa"),
		Index:   idx,
	}
}

func transferLog(from, to common.Address, tokenID int64, amount *big.Int, idx uint) types.Log {
	return types.Log{
		Address: common.HexToAddress("0x4d97dcd97ec945f40cf65f87097ace5ea0476045"),
		Topics: []common.Hash{
			abi.TransferSingleSig,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   append(word(big.NewInt(tokenID)), word(amount)...),
		TxHash: common.HexToHash("0xbb"),
		Index:  idx,
	}
}

func block(number uint64, logs ...types.Log) domain.Block {
	return domain.Block{
		Number:    number,
		Timestamp: 1700000000 + int64(number),
		Logs:      logs,
	}
}

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return v
}

// seedEntry gives the taker a one-base-unit position in token 777 with the
// given accumulated basis. The sell tests pick the basis so that, after the
// sell's own basis decrement (the calculator reads post-update values), the
// average entry price is exactly 0.60 at 10^18 scale.
func seedEntry(t *testing.T, e *Engine, basis *big.Int) {
	t.Helper()
	res := e.ProcessBlock(block(100,
		buyLog(777, big.NewInt(1), basis, 0),
		transferLog(common.HexToAddress(addrset.DefaultExcluded[5]), takerAddr, 777, big.NewInt(1), 1),
	))
	require.Len(t, res.Fills, 1)
	require.Equal(t, big.NewInt(1), e.Position(takerHex, "777"))
	require.Equal(t, basis, e.CostBasis(takerHex, "777"))
}

func TestSellAboveEntryRealizesProfit(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000004"))

	// Sell 5 token units for 4 cash units: price 0.80, traded amount 4.
	e.ProcessBlock(block(101, sellLog(777, big.NewInt(4), big.NewInt(5), 0)))

	// (0.80 - 0.60) at 10^18 scale, times the traded amount of 4.
	assert.Equal(t, bi("800000000000000000"), e.Realized(takerHex))
}

func TestSellBelowEntryRealizesLoss(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000002"))

	// Price 0.40, traded amount 2.
	e.ProcessBlock(block(101, sellLog(777, big.NewInt(2), big.NewInt(5), 0)))

	// (0.40 - 0.60) * 2 at 10^18 scale.
	assert.Equal(t, bi("-400000000000000000"), e.Realized(takerHex))
}

func TestSellAtEntryPriceRealizesNothing(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000003"))

	// Price 0.60, traded amount 3: a round trip at the entry price.
	e.ProcessBlock(block(101, sellLog(777, big.NewInt(3), big.NewInt(5), 0)))

	assert.Zero(t, e.Realized(takerHex).Sign())
}

// The calculator runs after the block's cost-basis updates, so a sell
// settles against a basis already reduced by its own traded amount. With a
// basis of exactly 0.60 the average entry comes out 4 short of 0.60 and the
// P&L is 16 above the idealized figure. This pins the post-update contract.
func TestSellSettlesAgainstPostUpdateBasis(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000000"))

	e.ProcessBlock(block(101, sellLog(777, big.NewInt(4), big.NewInt(5), 0)))

	assert.Equal(t, bi("800000000000000016"), e.Realized(takerHex))
}

func TestRoundTripThenFullExit(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000004"))

	// Sell at 0.80, then transfer the whole position away in the next
	// block. A same-block transfer would zero the quantity before the
	// calculator reads it, since the position store updates first.
	res := e.ProcessBlock(block(101, sellLog(777, big.NewInt(4), big.NewInt(5), 0)))
	e.ProcessBlock(block(102,
		transferLog(takerAddr, common.HexToAddress(addrset.DefaultExcluded[5]), 777, big.NewInt(1), 0),
	))

	assert.Equal(t, bi("800000000000000000"), e.Realized(takerHex))
	assert.Zero(t, e.Position(takerHex, "777").Sign())

	// Both fill parties appear in the snapshots.
	users := make(map[string]domain.UserPnL)
	for _, u := range res.Users {
		users[u.UserAddress] = u
	}
	require.Contains(t, users, takerHex)
	require.Contains(t, users, makerHex)
	assert.Equal(t, "800000000000000000", users[takerHex].RealizedPnL)
	assert.Equal(t, users[takerHex].RealizedPnL, users[takerHex].TotalPnL)
	assert.Equal(t, domain.ZeroDecimal, users[takerHex].UnrealizedPnL)
	assert.Equal(t, "0", users[makerHex].RealizedPnL)
}

func TestSellWithoutPositionUsesZeroEntry(t *testing.T) {
	e := newTestEngine()

	// No prior position: the average entry is 0 and the whole sale counts
	// as profit. The basis goes negative; that is recorded, not clamped.
	e.ProcessBlock(block(100, sellLog(777, big.NewInt(4), big.NewInt(5), 0)))

	assert.Equal(t, bi("3200000000000000000"), e.Realized(takerHex)) // 0.80 * 4
	assert.Equal(t, big.NewInt(-4), e.CostBasis(takerHex, "777"))
}

// A sell priced at or above 1.0 parses to zero (the codec's documented
// domain restriction), so the realized P&L degrades to -avg * amount.
func TestSellAtOneParsesToZeroPrice(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000005"))

	// 5 cash for 5 tokens: price "1.000000000000000000".
	e.ProcessBlock(block(101, sellLog(777, big.NewInt(5), big.NewInt(5), 0)))

	// (0 - 0.60) * 5 at 10^18 scale.
	assert.Equal(t, bi("-3000000000000000000"), e.Realized(takerHex))
}

func TestBuyAccruesBasisAndVolume(t *testing.T) {
	e := newTestEngine()

	// 1,000,000 token base units for 600,000 cash units: price 0.60.
	res := e.ProcessBlock(block(100, buyLog(777, big.NewInt(1000000), big.NewInt(600000), 0)))

	assert.Equal(t, big.NewInt(600000), e.CostBasis(takerHex, "777"))

	users := make(map[string]domain.UserPnL)
	for _, u := range res.Users {
		users[u.UserAddress] = u
	}
	require.Contains(t, users, takerHex)
	require.Contains(t, users, makerHex)
	assert.Equal(t, "600000", users[takerHex].TotalVolume)
	assert.Equal(t, int64(1), users[takerHex].TotalTrades)
	assert.Equal(t, "600000", users[makerHex].TotalVolume)
	assert.Equal(t, int64(1), users[makerHex].TotalTrades)

	require.Len(t, res.Markets, 1)
	assert.Equal(t, "777", res.Markets[0].TokenID)
	assert.Equal(t, "600000", res.Markets[0].TotalVolume)
}

func TestMarketVolumeAccumulatesAcrossBlocks(t *testing.T) {
	e := newTestEngine()

	e.ProcessBlock(block(100, buyLog(777, big.NewInt(1000000), big.NewInt(600000), 0)))
	res := e.ProcessBlock(block(101, buyLog(777, big.NewInt(1000000), big.NewInt(500000), 0)))

	require.Len(t, res.Markets, 1)
	assert.Equal(t, "1100000", res.Markets[0].TotalVolume)
}

func TestLatestPriceLastWriteWinsWithinBlock(t *testing.T) {
	e := newTestEngine()

	res := e.ProcessBlock(block(100,
		buyLog(777, big.NewInt(1000000), big.NewInt(600000), 0),
		buyLog(777, big.NewInt(1000000), big.NewInt(650000), 1),
	))

	price, ok := e.Price("777")
	require.True(t, ok)
	assert.Equal(t, "0.650000000000000000", price.Price)
	assert.Equal(t, uint64(100), price.BlockNumber)

	require.Len(t, res.PriceUpdates, 1)
	assert.Equal(t, "0.650000000000000000", res.PriceUpdates[0].Price)
}

func TestExcludedOnlyEventsMutateNothing(t *testing.T) {
	e := newTestEngine()
	excludedA := common.HexToAddress(addrset.DefaultExcluded[0])
	excludedB := common.HexToAddress(addrset.DefaultExcluded[5])

	usdcTransfer := types.Log{
		Address: common.HexToAddress(extract.DefaultUSDC),
		Topics: []common.Hash{
			abi.TransferSig,
			common.BytesToHash(excludedA.Bytes()),
			common.BytesToHash(excludedB.Bytes()),
		},
		Data: word(big.NewInt(1000000)),
	}

	res := e.ProcessBlock(block(100,
		transferLog(excludedA, excludedB, 777, big.NewInt(42), 0),
		usdcTransfer,
	))

	assert.Empty(t, res.Users)
	assert.Empty(t, res.Markets)
	assert.Empty(t, res.TokenTransfers)
}

func TestRevertRestoresEveryStore(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000004"))

	e.ProcessBlock(block(101, sellLog(777, big.NewInt(4), big.NewInt(5), 0)))
	require.Equal(t, bi("800000000000000000"), e.Realized(takerHex))

	n, err := e.RevertBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(101), n)
	assert.Equal(t, uint64(100), e.LastBlock())

	assert.Zero(t, e.Realized(takerHex).Sign())
	assert.Equal(t, bi("600000000000000004"), e.CostBasis(takerHex, "777"))
	assert.Equal(t, big.NewInt(1), e.Position(takerHex, "777"))
}

func TestRevertThenReplayProducesIdenticalResult(t *testing.T) {
	e := newTestEngine()
	seedEntry(t, e, bi("600000000000000004"))
	blk := block(101, sellLog(777, big.NewInt(4), big.NewInt(5), 0))

	first := e.ProcessBlock(blk)
	_, err := e.RevertBlock()
	require.NoError(t, err)
	second := e.ProcessBlock(blk)

	assert.Equal(t, first, second)
	assert.Equal(t, bi("800000000000000000"), e.Realized(takerHex))
}

func TestRevertBeyondJournalWindowFails(t *testing.T) {
	e := newTestEngine()

	_, err := e.RevertBlock()
	assert.ErrorIs(t, err, domain.ErrReorgTooDeep)
}

func TestJournalWindowIsBounded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(Config{Contracts: extract.DefaultContracts(), MaxReorgDepth: 2}, logger)

	for n := uint64(100); n < 105; n++ {
		e.ProcessBlock(block(n, buyLog(777, big.NewInt(10), big.NewInt(5), 0)))
	}

	_, err := e.RevertBlock()
	require.NoError(t, err)
	_, err = e.RevertBlock()
	require.NoError(t, err)
	_, err = e.RevertBlock()
	assert.ErrorIs(t, err, domain.ErrReorgTooDeep)
}
