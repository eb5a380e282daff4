package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vamp-labs/control-plane/pkg/broker"
	"github.com/vamp-labs/control-plane/pkg/indexedevents"
	"github.com/vamp-labs/control-plane/pkg/store/memstore"
)

type fakeChain struct {
	head uint64
	logs []types.Log
	err  error
}

func (f *fakeChain) HeadBlock(ctx context.Context) (uint64, error) {
	return f.head, f.err
}

func (f *fakeChain) GetLogs(ctx context.Context, contractAddress common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= fromBlock && l.BlockNumber <= toBlock {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeEvents struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeEvents() *fakeEvents { return &fakeEvents{seen: map[string]bool{}} }

func (f *fakeEvents) Insert(ctx context.Context, ev indexedevents.Event) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s#%d", ev.TxHash, ev.LogIndex)
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

type fakePublisher struct {
	mu  sync.Mutex
	got []broker.Envelope
}

func (p *fakePublisher) Publish(ctx context.Context, key broker.RoutingKey, env broker.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, env)
	return nil
}
func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func testLog(block uint64, txHash string, logIndex uint, requestedBy common.Address) types.Log {
	return types.Log{
		BlockNumber: block,
		TxHash:      common.HexToHash(txHash),
		Index:       logIndex,
		Topics: []common.Hash{
			common.HexToHash("0xabc"),
			common.BytesToHash(common.HexToAddress("0x1").Bytes()),
			common.BytesToHash(requestedBy.Bytes()),
		},
	}
}

func decodeTestLog(l types.Log) (broker.Envelope, error) {
	return DecodeCloneRequested(1, l)
}

func TestTick_PublishesAndAdvancesCheckpoint(t *testing.T) {
	st := memstore.New()
	events := newFakeEvents()
	pub := &fakePublisher{}
	ch := &fakeChain{
		head: 100,
		logs: []types.Log{
			testLog(10, "0xaaa", 0, common.HexToAddress("0x2")),
			testLog(12, "0xbbb", 1, common.HexToAddress("0x3")),
		},
	}

	cfg := Config{
		ChainID:         1,
		ContractAddress: common.HexToAddress("0x1"),
		Topic0:          common.HexToHash("0xabc"),
		RoutingKey:      broker.RoutingKeyClone,
		Confirmations:   5,
		OverlapBlocks:   0,
		MaxBlockRange:   1000,
		DeploymentBlock: 0,
	}
	idx := New(ch, st, events, pub, decodeTestLog, cfg, nil)

	if err := idx.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if events.count() != 2 {
		t.Fatalf("events inserted = %d, want 2", events.count())
	}
	if pub.count() != 2 {
		t.Fatalf("events published = %d, want 2", pub.count())
	}

	last, err := st.GetLastProcessedBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetLastProcessedBlock: %v", err)
	}
	finalized := ch.head - cfg.Confirmations
	if last != finalized {
		t.Fatalf("checkpoint = %d, want %d", last, finalized)
	}
}

func TestTick_SkipsWhenHeadBelowConfirmations(t *testing.T) {
	st := memstore.New()
	events := newFakeEvents()
	pub := &fakePublisher{}
	ch := &fakeChain{head: 3}

	cfg := Config{
		ChainID:       1,
		Confirmations: 5,
		MaxBlockRange: 1000,
	}
	idx := New(ch, st, events, pub, decodeTestLog, cfg, nil)

	if err := idx.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if pub.count() != 0 {
		t.Fatalf("expected no publications when head <= confirmations, got %d", pub.count())
	}
}

func TestTick_IdempotentOnRepeatedLog(t *testing.T) {
	st := memstore.New()
	events := newFakeEvents()
	pub := &fakePublisher{}
	l := testLog(10, "0xaaa", 0, common.HexToAddress("0x2"))
	ch := &fakeChain{head: 100, logs: []types.Log{l}}

	cfg := Config{
		ChainID:         1,
		ContractAddress: common.HexToAddress("0x1"),
		Topic0:          common.HexToHash("0xabc"),
		RoutingKey:      broker.RoutingKeyClone,
		Confirmations:   5,
		MaxBlockRange:   1000,
	}
	idx := New(ch, st, events, pub, decodeTestLog, cfg, nil)

	if err := idx.tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	// Second feed of the same (tx_hash, log_index): the publisher will see
	// it again (at-least-once publish is allowed), but the events table
	// dedupes to exactly one logical row.
	if err := idx.tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if events.count() != 1 {
		t.Fatalf("events rows = %d, want 1", events.count())
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	st := memstore.New()
	events := newFakeEvents()
	pub := &fakePublisher{}
	ch := &fakeChain{head: 3, err: nil}

	cfg := Config{Confirmations: 5, MaxBlockRange: 1000, PollInterval: 10 * time.Millisecond}
	idx := New(ch, st, events, pub, decodeTestLog, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := idx.Run(ctx)
	if err == nil {
		t.Fatal("expected Run to return an error on context cancellation")
	}
}
