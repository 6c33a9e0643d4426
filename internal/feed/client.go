// Package feed drives the P&L engine from an Ethereum JSON-RPC endpoint: it
// polls for confirmed blocks, fetches the relevant logs, and hands each
// block to the engine in order, rewinding on reorgs.
package feed

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainClient is the slice of the JSON-RPC surface the feed uses.
// *ethclient.Client satisfies it.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rawURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("feed: dial %s: %w", rawURL, err)
	}
	return client, nil
}
