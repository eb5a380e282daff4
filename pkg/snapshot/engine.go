// Package snapshot implements the historical token-supply reconstruction
// engine: it replays Transfer logs into a balance map, quantizes each
// holder's balance, signs a per-holder leaf, commits the set to a Merkle
// root, and submits the resulting mint/commitment transaction to the
// destination chain.
package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vamp-labs/control-plane/pkg/destchain"
	"github.com/vamp-labs/control-plane/pkg/merkle"
	"github.com/vamp-labs/control-plane/pkg/pricing"
	"github.com/vamp-labs/control-plane/pkg/signing"
)

// TransferTopic0 is Keccak256("Transfer(address,address,uint256)").
var TransferTopic0 = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3e")

// LogFetcher is the narrow chain-reading capability the snapshot engine
// needs: windowed log scanning over an already-resolved RPC endpoint.
type LogFetcher interface {
	GetLogs(ctx context.Context, contractAddress common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error)
}

// DestChainSubmitter is the narrow subset of *destchain.Client the engine
// needs, narrowed to an interface so tests can drive RunClone without a
// live destination-chain RPC endpoint.
type DestChainSubmitter interface {
	GetLatestBlockhash(ctx context.Context, clusterSelector string) (destchain.Blockhash, error)
	SendAndConfirmTransaction(ctx context.Context, clusterSelector string, signedTxBase64 string) (string, error)
}

var _ DestChainSubmitter = (*destchain.Client)(nil)

// Persistence stores the resumable per-erc20_address balance map and the
// final submission record, so a crash mid-snapshot resumes from the last
// completed window rather than replaying from the deployment block.
type Persistence interface {
	LoadSnapshot(ctx context.Context, erc20Address common.Address) (balances BalanceMap, lastScannedBlock uint64, found bool, err error)
	SaveSnapshot(ctx context.Context, erc20Address common.Address, balances BalanceMap, lastScannedBlock uint64) error
	SaveResult(ctx context.Context, erc20Address common.Address, result Result) error
}

// Holder is a quantized, signed per-address leaf produced by RunClone.
type Holder struct {
	Address   common.Address
	Amount    uint64
	Decimals  uint8
	Signature [65]byte
}

// Result is the record persisted after a successful destination-chain
// submission.
type Result struct {
	IntentID        [32]byte
	TargetTxID      string
	MintAccount     string
	VampStateAccount string
	MerkleRoot      [32]byte
	Holders         []Holder
}

// TokenMetadata carries the destination-chain mint parameters.
type TokenMetadata struct {
	Name     string
	Symbol   string
	URI      string
	Decimals uint8
}

// CloneTxParams is everything TransactionBuilder needs to encode the
// destination-chain submission transaction.
type CloneTxParams struct {
	IntentID        [32]byte
	Token           TokenMetadata
	TotalMinted     uint64
	MerkleRoot      [32]byte
	Pricing         pricing.Params
	SolverPubKey    string
	ValidatorPubKey string
}

// TransactionBuilder encodes CloneTxParams into a signed, base64-encoded
// destination-chain transaction. The on-chain instruction schema is
// treated as an external interface; this package never looks inside the
// result.
type TransactionBuilder interface {
	BuildCloneTransaction(ctx context.Context, params CloneTxParams, blockhash destchain.Blockhash) (signedTxBase64 string, mintAccount string, vampStateAccount string, err error)
}

// Request parametrizes one RunClone invocation.
type Request struct {
	ChainID         int64
	Erc20Address    common.Address
	BlockNumber     uint64
	IntentID        [32]byte
	DeploymentBlock uint64
	WindowSize      uint64
	Token           TokenMetadata
	Pricing         pricing.Params
	SolverPubKey    string
	ValidatorPubKey string
	ClusterSelector string
}

// Engine ties together the chain scan, quantization, signing, Merkle
// commitment and destination-chain submission steps.
type Engine struct {
	chain       LogFetcher
	persistence Persistence
	signer      *signing.Signer
	destChain   DestChainSubmitter
	txBuilder   TransactionBuilder
}

// NewEngine validates its dependencies up front, rejecting nil
// collaborators immediately rather than failing later at an arbitrary call
// site.
func NewEngine(chainReader LogFetcher, persistence Persistence, signer *signing.Signer, destChain DestChainSubmitter, txBuilder TransactionBuilder) (*Engine, error) {
	if chainReader == nil {
		return nil, ErrNilChain
	}
	if persistence == nil {
		return nil, ErrNilPersistence
	}
	if signer == nil {
		return nil, ErrNilSigner
	}
	if destChain == nil {
		return nil, ErrNilDestChain
	}
	if txBuilder == nil {
		return nil, ErrNilTransactionBuilder
	}
	return &Engine{
		chain:       chainReader,
		persistence: persistence,
		signer:      signer,
		destChain:   destChain,
		txBuilder:   txBuilder,
	}, nil
}

// RunClone reconstructs the historical balance set for req.Erc20Address up
// to req.BlockNumber, quantizes and signs each holder, commits the set to
// a Merkle root, and submits the resulting mint/commitment transaction.
func (e *Engine) RunClone(ctx context.Context, req Request) (Result, error) {
	balances, lastScanned, found, err := e.persistence.LoadSnapshot(ctx, req.Erc20Address)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: load: %w", err)
	}
	if !found {
		balances = NewBalanceMap()
		lastScanned = req.DeploymentBlock
	}

	windowSize := req.WindowSize
	if windowSize == 0 {
		windowSize = 2000
	}

	from := lastScanned
	if from < req.DeploymentBlock {
		from = req.DeploymentBlock
	}

	for from <= req.BlockNumber {
		to := req.BlockNumber
		if from+windowSize-1 < to {
			to = from + windowSize - 1
		}

		logs, err := e.chain.GetLogs(ctx, req.Erc20Address, TransferTopic0, from, to)
		if err != nil {
			return Result{}, fmt.Errorf("snapshot: get logs [%d,%d]: %w", from, to, err)
		}
		sort.Slice(logs, func(i, j int) bool {
			if logs[i].BlockNumber != logs[j].BlockNumber {
				return logs[i].BlockNumber < logs[j].BlockNumber
			}
			return logs[i].Index < logs[j].Index
		})
		for _, l := range logs {
			if err := balances.ApplyTransferLog(l); err != nil {
				return Result{}, fmt.Errorf("snapshot: apply transfer %s:%d: %w", l.TxHash, l.Index, err)
			}
		}

		if err := e.persistence.SaveSnapshot(ctx, req.Erc20Address, balances, to); err != nil {
			return Result{}, fmt.Errorf("snapshot: save progress at block %d: %w", to, err)
		}
		from = to + 1
	}

	holders, leaves, err := quantizeAndSign(balances, req.IntentID, e.signer)
	if err != nil {
		return Result{}, err
	}

	tree := merkle.Build(leaves)
	root := tree.Root()

	var totalMinted uint64
	for _, h := range holders {
		totalMinted += h.Amount
	}

	blockhash, err := e.destChain.GetLatestBlockhash(ctx, req.ClusterSelector)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: get latest blockhash: %w", err)
	}

	txParams := CloneTxParams{
		IntentID:        req.IntentID,
		Token:           req.Token,
		TotalMinted:     totalMinted,
		MerkleRoot:      root,
		Pricing:         req.Pricing,
		SolverPubKey:    req.SolverPubKey,
		ValidatorPubKey: req.ValidatorPubKey,
	}
	signedTx, mintAccount, vampStateAccount, err := e.txBuilder.BuildCloneTransaction(ctx, txParams, blockhash)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: build transaction: %w", err)
	}

	txID, err := e.destChain.SendAndConfirmTransaction(ctx, req.ClusterSelector, signedTx)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: submit transaction: %w", err)
	}

	result := Result{
		IntentID:         req.IntentID,
		TargetTxID:       txID,
		MintAccount:      mintAccount,
		VampStateAccount: vampStateAccount,
		MerkleRoot:       root,
		Holders:          holders,
	}
	if err := e.persistence.SaveResult(ctx, req.Erc20Address, result); err != nil {
		return Result{}, fmt.Errorf("snapshot: save result: %w", err)
	}
	return result, nil
}

// quantizeAndSign quantizes and signs every positive-balance holder, in
// address order so the resulting leaf set (and hence the Merkle root) is
// deterministic regardless of map iteration order.
func quantizeAndSign(balances BalanceMap, intentID [32]byte, signer *signing.Signer) ([]Holder, []merkle.Leaf, error) {
	addrs := make([]common.Address, 0, len(balances))
	for addr, amount := range balances {
		if amount.Sign() > 0 {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Hex() < addrs[j].Hex()
	})

	holders := make([]Holder, 0, len(addrs))
	leaves := make([]merkle.Leaf, 0, len(addrs))

	for _, addr := range addrs {
		amount, decimals, err := ConvertToSol(new(big.Int).Set(balances[addr]))
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: quantize %s: %w", addr, err)
		}

		hash := signing.BalanceHash(addr, amount, intentID)
		sig, err := signer.Sign(hash)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: sign %s: %w", addr, err)
		}

		holders = append(holders, Holder{Address: addr, Amount: amount, Decimals: decimals, Signature: sig})

		var leafAccount [20]byte
		copy(leafAccount[:], addr.Bytes())
		leaves = append(leaves, merkle.Leaf{Account: leafAccount, Amount: amount, Decimals: decimals})
	}

	return holders, leaves, nil
}
