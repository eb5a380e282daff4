// Package destchain talks to the destination chain's JSON-RPC surface.
// There is no dedicated SDK vendored for it, so this wraps go-ethereum/rpc's
// transport-agnostic JSON-RPC 2.0 client (it speaks plain HTTP JSON-RPC
// regardless of target chain) instead of inventing a hand-rolled HTTP
// client: a typed backend wrapping a generic JSON-RPC client for a non-EVM
// chain family.
package destchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// Cluster selects which destination-chain deployment a request targets.
type Cluster string

const (
	ClusterDevnet  Cluster = "devnet"
	ClusterMainnet Cluster = "mainnet"
)

// ErrUnsupportedCluster is returned when an event names an EVM-chain-id
// cluster selector; this RPC only speaks to the non-EVM destination chain
// family, so EVM selectors are rejected outright rather than silently
// routed to a default.
var ErrUnsupportedCluster = fmt.Errorf("destchain: EVM cluster selectors are not supported on this RPC")

// IsEVMSelector reports whether selector looks like an EVM chain id (a bare
// decimal integer) rather than one of the named clusters.
func IsEVMSelector(selector string) bool {
	if selector == "" {
		return false
	}
	for _, r := range selector {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Blockhash is the response shape of getLatestBlockhash.
type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Client is a cluster-aware JSON-RPC client: one rpc.Client per configured
// cluster URL, selected per call by Cluster.
type Client struct {
	byCluster      map[Cluster]*rpc.Client
	defaultCluster Cluster
}

// New dials one JSON-RPC client per entry in urls and validates that
// defaultCluster is among them.
func New(ctx context.Context, urls map[Cluster]string, defaultCluster Cluster) (*Client, error) {
	if _, ok := urls[defaultCluster]; !ok {
		return nil, fmt.Errorf("destchain: default cluster %q has no configured URL", defaultCluster)
	}
	byCluster := make(map[Cluster]*rpc.Client, len(urls))
	for cluster, url := range urls {
		c, err := rpc.DialContext(ctx, url)
		if err != nil {
			for _, opened := range byCluster {
				opened.Close()
			}
			return nil, fmt.Errorf("destchain: dial cluster %s: %w", cluster, err)
		}
		byCluster[cluster] = c
	}
	return &Client{byCluster: byCluster, defaultCluster: defaultCluster}, nil
}

// Close releases every underlying RPC connection.
func (c *Client) Close() {
	for _, rc := range c.byCluster {
		rc.Close()
	}
}

// resolve picks the rpc.Client for selector, falling back to the default
// cluster when selector is empty, and rejecting EVM-chain-id selectors.
func (c *Client) resolve(selector string) (*rpc.Client, error) {
	if selector == "" {
		return c.byCluster[c.defaultCluster], nil
	}
	if IsEVMSelector(selector) {
		return nil, ErrUnsupportedCluster
	}
	rc, ok := c.byCluster[Cluster(selector)]
	if !ok {
		return nil, fmt.Errorf("destchain: unknown cluster %q", selector)
	}
	return rc, nil
}

// GetLatestBlockhash calls getLatestBlockhash with commitment "confirmed"
// against the resolved cluster.
func (c *Client) GetLatestBlockhash(ctx context.Context, clusterSelector string) (Blockhash, error) {
	rc, err := c.resolve(clusterSelector)
	if err != nil {
		return Blockhash{}, err
	}
	var result struct {
		Value Blockhash `json:"value"`
	}
	if err := rc.CallContext(ctx, &result, "getLatestBlockhash", map[string]string{"commitment": "confirmed"}); err != nil {
		return Blockhash{}, fmt.Errorf("destchain: getLatestBlockhash: %w", err)
	}
	return result.Value, nil
}

// SendAndConfirmTransaction submits a base64-encoded, fully-signed
// transaction and waits for confirmation at commitment level "confirmed",
// returning the transaction signature/id.
func (c *Client) SendAndConfirmTransaction(ctx context.Context, clusterSelector string, signedTxBase64 string) (string, error) {
	rc, err := c.resolve(clusterSelector)
	if err != nil {
		return "", err
	}
	var txID string
	err = rc.CallContext(ctx, &txID, "sendAndConfirmTransaction", signedTxBase64, map[string]string{
		"encoding":   "base64",
		"commitment": "confirmed",
	})
	if err != nil {
		return "", fmt.Errorf("destchain: sendAndConfirmTransaction: %w", err)
	}
	return txID, nil
}

// Instruction is the on-chain program's instruction schema. This package
// treats the destination-chain program as an external interface and never
// inspects its contents, only carries opaque encoded bytes produced by the
// caller.
type Instruction interface {
	Encode() ([]byte, error)
}
