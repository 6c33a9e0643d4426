// Package abi decodes the three fixed-layout contract events this pipeline
// consumes: OrderFilled on the Polymarket exchanges, ERC-1155 TransferSingle,
// and ERC-20 Transfer. Decoding is purely structural: a log either matches
// the expected layout and decodes, or it is skipped. There is no error state;
// a zero value is a legitimate magnitude, not a failure.
package abi

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event signatures (topic 0).
var (
	// OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)
	OrderFilledSig = common.HexToHash("0xd0a08e8c493f9c94f29cd823d8491c595ba216413f5c5af0ab29662a795b4ba4")
	// TransferSingle(address,address,address,uint256,uint256)
	TransferSingleSig = common.HexToHash("0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62")
	// Transfer(address,address,uint256)
	TransferSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

const wordSize = 32

// OrderFilled is the decoded payload of an exchange OrderFilled event. All
// eight fields live in the data payload; the order hash occupies the first
// word and the two addresses are left-padded to a word each.
type OrderFilled struct {
	OrderHash         string
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
}

// TransferSingle is the decoded payload of an ERC-1155 TransferSingle event.
type TransferSingle struct {
	Operator common.Address
	From     common.Address
	To       common.Address
	TokenID  *big.Int
	Amount   *big.Int
}

// Transfer is the decoded payload of an ERC-20 Transfer event.
type Transfer struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// DecodeOrderFilled decodes an OrderFilled event from a raw log. The data
// payload must carry at least seven 32-byte words (order hash, maker, taker,
// the two asset ids and the two filled amounts); an eighth word, when
// present, is the fee. Returns false when the layout does not match.
func DecodeOrderFilled(log *types.Log) (OrderFilled, bool) {
	if len(log.Topics) == 0 {
		return OrderFilled{}, false
	}
	if len(log.Data) < 7*wordSize {
		return OrderFilled{}, false
	}

	ev := OrderFilled{
		OrderHash:         hexutil.Encode(log.Data[0:32])[2:],
		Maker:             common.BytesToAddress(log.Data[44:64]),
		Taker:             common.BytesToAddress(log.Data[76:96]),
		MakerAssetID:      word(log.Data, 3),
		TakerAssetID:      word(log.Data, 4),
		MakerAmountFilled: word(log.Data, 5),
		TakerAmountFilled: word(log.Data, 6),
		Fee:               new(big.Int),
	}
	if len(log.Data) >= 8*wordSize {
		ev.Fee = word(log.Data, 7)
	}
	return ev, true
}

// DecodeTransferSingle decodes an ERC-1155 TransferSingle event. The
// operator, from and to addresses are indexed topics; token id and amount
// form the 64-byte data payload.
func DecodeTransferSingle(log *types.Log) (TransferSingle, bool) {
	if len(log.Topics) < 4 || len(log.Data) < 2*wordSize {
		return TransferSingle{}, false
	}

	return TransferSingle{
		Operator: common.BytesToAddress(log.Topics[1].Bytes()[12:]),
		From:     common.BytesToAddress(log.Topics[2].Bytes()[12:]),
		To:       common.BytesToAddress(log.Topics[3].Bytes()[12:]),
		TokenID:  word(log.Data, 0),
		Amount:   word(log.Data, 1),
	}, true
}

// DecodeTransfer decodes an ERC-20 Transfer event. From and to are indexed
// topics; the amount is the first data word.
func DecodeTransfer(log *types.Log) (Transfer, bool) {
	if len(log.Topics) < 3 || len(log.Data) < wordSize {
		return Transfer{}, false
	}

	return Transfer{
		From:   common.BytesToAddress(log.Topics[1].Bytes()[12:]),
		To:     common.BytesToAddress(log.Topics[2].Bytes()[12:]),
		Amount: word(log.Data, 0),
	}, true
}

// word parses the i-th 32-byte word of data as a big-endian unsigned integer.
func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*wordSize : (i+1)*wordSize])
}
