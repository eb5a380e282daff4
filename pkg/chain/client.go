// Package chain wraps the source-chain EVM JSON-RPC surface the indexer and
// snapshot engine need: head-block lookups and filtered eth_getLogs
// windows, with first-responsive-wins fallback across candidate RPC URLs.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a thin wrapper over ethclient.Client exposing exactly the two
// source-chain RPC verbs the indexer and snapshot engine need:
// getBlockNumber and getLogs.
type Client struct {
	eth     *ethclient.Client
	url     string
	chainID int64
}

// Dial connects to the given RPC URL.
func Dial(url string, chainID int64) (*Client, error) {
	eth, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return &Client{eth: eth, url: url, chainID: chainID}, nil
}

// DialFirstResponsive connects to the first URL in candidates that answers
// an eth_blockNumber call within the given context: multiple candidate
// URLs are configured per chain, and the first one to respond wins.
func DialFirstResponsive(ctx context.Context, candidates []string, chainID int64) (*Client, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("chain: no candidate RPC URLs configured")
	}

	var lastErr error
	for _, url := range candidates {
		c, err := Dial(url, chainID)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := c.HeadBlock(ctx); err != nil {
			lastErr = err
			c.Close()
			continue
		}
		return c, nil
	}
	return nil, fmt.Errorf("chain: no responsive RPC among %d candidates: %w", len(candidates), lastErr)
}

// Close releases the underlying connection.
func (c *Client) Close() { c.eth.Close() }

// URL returns the endpoint this client is connected to.
func (c *Client) URL() string { return c.url }

// HeadBlock returns the current chain head block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// GetLogs fetches logs in [fromBlock, toBlock] matching contractAddress and,
// if non-zero, topic0. Providers may reject overly wide ranges; callers
// classify that error via IsRangeTooLarge and shrink their window.
func (c *Client) GetLogs(ctx context.Context, contractAddress common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{contractAddress},
	}
	if topic0 != (common.Hash{}) {
		query.Topics = [][]common.Hash{{topic0}}
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs [%d,%d]: %w", fromBlock, toBlock, err)
	}
	return logs, nil
}
