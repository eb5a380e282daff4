package snapshot

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vamp-labs/control-plane/pkg/destchain"
	"github.com/vamp-labs/control-plane/pkg/signing"
)

func transferLog(block uint64, index uint, from, to common.Address, value *big.Int) types.Log {
	return types.Log{
		BlockNumber: block,
		Index:       index,
		Topics: []common.Hash{
			TransferTopic0,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

type fakeLogFetcher struct {
	logs []types.Log
}

func (f *fakeLogFetcher) GetLogs(ctx context.Context, contractAddress common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= fromBlock && l.BlockNumber <= toBlock {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeDestChain struct{}

func (f *fakeDestChain) GetLatestBlockhash(ctx context.Context, clusterSelector string) (destchain.Blockhash, error) {
	return destchain.Blockhash{Blockhash: "fakehash", LastValidBlockHeight: 100}, nil
}

func (f *fakeDestChain) SendAndConfirmTransaction(ctx context.Context, clusterSelector string, signedTxBase64 string) (string, error) {
	return "fake-tx-id", nil
}

type fakeTxBuilder struct {
	lastParams CloneTxParams
}

func (f *fakeTxBuilder) BuildCloneTransaction(ctx context.Context, params CloneTxParams, blockhash destchain.Blockhash) (string, string, string, error) {
	f.lastParams = params
	return "c2lnbmVkLXR4", "mint-account", "vamp-state-account", nil
}

func TestRunClone_ReconstructsBalancesAndSubmits(t *testing.T) {
	zero := common.Address{}
	holder1 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	holder2 := common.HexToAddress("0x2222222222222222222222222222222222222222")

	amount1 := new(big.Int).Mul(big.NewInt(1_000_000_000), big.NewInt(1_000_000_000)) // 1e18
	amount2 := new(big.Int).Mul(big.NewInt(500_000_000), big.NewInt(1_000_000_000))   // 5e17

	logs := []types.Log{
		transferLog(10, 0, zero, holder1, amount1), // mint to holder1
		transferLog(11, 0, zero, holder2, amount2), // mint to holder2
	}

	fetcher := &fakeLogFetcher{logs: logs}
	persistence := NewMemPersistence()
	signer, err := signing.NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362de")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	builder := &fakeTxBuilder{}

	erc20 := common.HexToAddress("0x3333333333333333333333333333333333333333")

	engine, err := NewEngine(fetcher, persistence, signer, &fakeDestChain{}, builder)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	req := Request{
		ChainID:         1,
		Erc20Address:    erc20,
		BlockNumber:     20,
		IntentID:        [32]byte{0x11},
		DeploymentBlock: 0,
		WindowSize:      5,
		Token:           TokenMetadata{Name: "Vamp", Symbol: "VMP", Decimals: 9},
	}

	result, err := engine.RunClone(context.Background(), req)
	if err != nil {
		t.Fatalf("RunClone: %v", err)
	}

	if len(result.Holders) != 2 {
		t.Fatalf("holders = %d, want 2", len(result.Holders))
	}
	if result.TargetTxID == "" {
		t.Fatal("expected a non-empty target tx id")
	}
	if result.MerkleRoot == ([32]byte{}) {
		t.Fatal("expected a non-zero merkle root for a non-empty holder set")
	}

	saved, ok := persistence.Result(erc20)
	if !ok {
		t.Fatal("expected SaveResult to have been called")
	}
	if saved.TargetTxID != result.TargetTxID {
		t.Fatalf("persisted result txid = %s, want %s", saved.TargetTxID, result.TargetTxID)
	}
}

func TestRunClone_ResumesFromPersistedCheckpoint(t *testing.T) {
	zero := common.Address{}
	holder := common.HexToAddress("0x4444444444444444444444444444444444444444")
	amount := new(big.Int).Mul(big.NewInt(1_000_000_000), big.NewInt(1_000_000_000))

	erc20 := common.HexToAddress("0x5555555555555555555555555555555555555555")
	persistence := NewMemPersistence()
	pre := NewBalanceMap()
	pre[holder] = new(big.Int).Set(amount)
	if err := persistence.SaveSnapshot(context.Background(), erc20, pre, 15); err != nil {
		t.Fatalf("seed SaveSnapshot: %v", err)
	}

	// A log before the checkpoint must be ignored by the resumed scan.
	staleLog := transferLog(5, 0, zero, holder, amount)
	fetcher := &fakeLogFetcher{logs: []types.Log{staleLog}}

	signer, _ := signing.NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362de")
	builder := &fakeTxBuilder{}

	engine, err := NewEngine(fetcher, persistence, signer, &fakeDestChain{}, builder)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	req := Request{Erc20Address: erc20, BlockNumber: 20, WindowSize: 5}
	result, err := engine.RunClone(context.Background(), req)
	if err != nil {
		t.Fatalf("RunClone: %v", err)
	}
	if len(result.Holders) != 1 {
		t.Fatalf("holders = %d, want 1 (balance should come from the persisted checkpoint, not re-scanned)", len(result.Holders))
	}
}
