// Package indexer implements the finality-aware, idempotent source-chain
// log follower: one Indexer runs the tick loop for a single
// (chain, contract, topic) tuple, a run/Start/Stop shape driven by block
// ranges instead of a wall-clock interval.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vamp-labs/control-plane/pkg/broker"
	"github.com/vamp-labs/control-plane/pkg/chain"
	"github.com/vamp-labs/control-plane/pkg/indexedevents"
	"github.com/vamp-labs/control-plane/pkg/store"
)

// ErrRangeTooLarge is returned by a tick when the RPC provider rejects the
// requested block window as too wide. It is not retried within the tick;
// the operator must lower Config.MaxBlockRange.
var ErrRangeTooLarge = errors.New("indexer: block range too large for provider")

// Decoder turns a raw log into the broker envelope published for it. Each
// tuple is wired to exactly one event kind, so the decoder need not branch
// on topic0 itself.
type Decoder func(types.Log) (broker.Envelope, error)

// ChainReader is the subset of *chain.Client the tick loop needs, narrowed
// to an interface so tests can drive the loop against a fake source chain
// instead of a live RPC endpoint.
type ChainReader interface {
	HeadBlock(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, contractAddress common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error)
}

// EventInserter is the subset of *indexedevents.Repository the tick loop
// needs.
type EventInserter interface {
	Insert(ctx context.Context, ev indexedevents.Event) (inserted bool, err error)
}

var (
	_ ChainReader   = (*chain.Client)(nil)
	_ EventInserter = (*indexedevents.Repository)(nil)
)

// Config parametrizes one (chain, contract, topic) tuple.
type Config struct {
	ChainID         int64
	ContractAddress common.Address
	Topic0          common.Hash
	RoutingKey      broker.RoutingKey
	Confirmations   uint64
	OverlapBlocks   uint64
	MaxBlockRange   uint64
	PollInterval    time.Duration
	DeploymentBlock uint64
}

// TickRecorder mirrors a tick's outcome into an external metrics system
// (pkg/metrics' Prometheus CounterVec in production). An Indexer operates
// correctly with no TickRecorder attached.
type TickRecorder interface {
	Observe(routingKey, result string)
}

// Indexer runs the tick loop for one Config against one chain client.
type Indexer struct {
	chain     ChainReader
	store     store.RequestStore
	events    EventInserter
	publisher broker.Publisher
	decode    Decoder
	cfg       Config
	logger    *log.Logger
	recorder  TickRecorder
}

// New constructs an Indexer. logger defaults to a bracketed stdlib logger
// when nil.
func New(chainClient ChainReader, st store.RequestStore, events EventInserter, publisher broker.Publisher, decode Decoder, cfg Config, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.New(log.Writer(), fmt.Sprintf("[Indexer:%s] ", cfg.RoutingKey), log.LstdFlags)
	}
	return &Indexer{
		chain:     chainClient,
		store:     st,
		events:    events,
		publisher: publisher,
		decode:    decode,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetRecorder attaches r; every future tick outcome is also observed by r.
func (idx *Indexer) SetRecorder(r TickRecorder) {
	idx.recorder = r
}

func (idx *Indexer) observe(result string) {
	if idx.recorder != nil {
		idx.recorder.Observe(string(idx.cfg.RoutingKey), result)
	}
}

// Run drives the tick loop until ctx is canceled. On any transient error it
// backs off exponentially from 1s to a 30s cap before retrying the same
// tick; a successful tick resets the backoff and sleeps PollInterval. A
// RangeTooLarge error is logged and treated like any other failed tick —
// the caller is expected to notice the repeated log lines and shrink
// MaxBlockRange; Run itself never mutates configuration.
func (idx *Indexer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry indefinitely; only ctx cancellation stops us

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := idx.tick(ctx); err != nil {
			if errors.Is(err, ErrRangeTooLarge) {
				idx.logger.Printf("range too large, lower max_block_range: %v", err)
				idx.observe("range_too_large")
			} else {
				idx.logger.Printf("tick failed: %v", err)
				idx.observe("failure")
			}
			wait := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		idx.observe("success")
		bo.Reset()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idx.cfg.PollInterval):
		}
	}
}

// tick reads the checkpoint, computes the finalized head, scans any new
// windows for logs, publishes and records each one, and advances the
// checkpoint — a single invocation of the poll loop.
func (idx *Indexer) tick(ctx context.Context) error {
	last, err := idx.store.GetLastProcessedBlock(ctx, idx.cfg.ChainID)
	if err != nil {
		return fmt.Errorf("indexer: get checkpoint: %w", err)
	}
	if last == 0 {
		last = idx.cfg.DeploymentBlock
	}

	head, err := idx.chain.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("indexer: head block: %w", err)
	}
	if head <= idx.cfg.Confirmations {
		return nil
	}
	finalized := head - idx.cfg.Confirmations

	from := idx.cfg.DeploymentBlock
	if last > idx.cfg.OverlapBlocks {
		candidate := last - idx.cfg.OverlapBlocks
		if candidate > from {
			from = candidate
		}
	}
	if from > finalized {
		return nil
	}

	for from <= finalized {
		to := finalized
		if idx.cfg.MaxBlockRange > 0 && from+idx.cfg.MaxBlockRange-1 < to {
			to = from + idx.cfg.MaxBlockRange - 1
		}

		logs, err := idx.chain.GetLogs(ctx, idx.cfg.ContractAddress, idx.cfg.Topic0, from, to)
		if err != nil {
			if chain.IsRangeTooLarge(err) {
				return fmt.Errorf("%w: %v", ErrRangeTooLarge, err)
			}
			return fmt.Errorf("indexer: get logs [%d,%d]: %w", from, to, err)
		}

		sort.Slice(logs, func(i, j int) bool {
			if logs[i].BlockNumber != logs[j].BlockNumber {
				return logs[i].BlockNumber < logs[j].BlockNumber
			}
			return logs[i].Index < logs[j].Index
		})

		for _, l := range logs {
			if err := idx.publishAndInsert(ctx, l); err != nil {
				return fmt.Errorf("indexer: publish/insert %s:%d: %w", l.TxHash, l.Index, err)
			}
		}

		if err := idx.store.SetLastProcessedBlock(ctx, idx.cfg.ChainID, to); err != nil {
			return fmt.Errorf("indexer: set checkpoint: %w", err)
		}
		from = to + 1
	}
	return nil
}

// publishAndInsert is the single unit of work per log: publish first, then
// record the row; a failure at either stage aborts the window so the whole
// tick is retried, which may
// republish a log the broker already has — downstream consumers must be
// idempotent on (tx_hash, log_index).
func (idx *Indexer) publishAndInsert(ctx context.Context, l types.Log) error {
	env, err := idx.decode(l)
	if err != nil {
		idx.logger.Printf("malformed log %s:%d, skipping: %v", l.TxHash, l.Index, err)
		return nil
	}

	if err := idx.publisher.Publish(ctx, idx.cfg.RoutingKey, env); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	ev := indexedevents.Event{
		ChainID:         idx.cfg.ChainID,
		BlockNumber:     l.BlockNumber,
		BlockHash:       l.BlockHash.Hex(),
		TxHash:          l.TxHash.Hex(),
		LogIndex:        uint32(l.Index),
		ContractAddress: l.Address.Hex(),
		Topic0:          idx.cfg.Topic0.Hex(),
		Data:            l.Data,
	}
	if _, err := idx.events.Insert(ctx, ev); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}
