// Package store defines the request store façade: a key/value surface over
// intents, the sequence-id allocator and per-chain checkpoints. Backings
// are provided in the postgres, redisseq and memstore subpackages; all
// implement RequestStore with identical semantics so higher layers can be
// tested hermetically against memstore.
package store

import (
	"context"
	"errors"

	"github.com/vamp-labs/control-plane/pkg/intent"
)

// Sentinel errors returned by RequestStore implementations. Transient I/O
// errors (connection loss, timeouts) are NOT among these: they are returned
// wrapped and retried by the caller.
var (
	// ErrNotFound is returned when an intent lookup finds no matching row.
	ErrNotFound = errors.New("store: intent not found")
	// ErrMappingNotFound is returned when a sequence id has no intent mapping.
	ErrMappingNotFound = errors.New("store: sequence mapping not found")
)

// UpdateRawFunc mutates fields of an intent other than State. It must be a
// pure function of the current intent; the store may invoke it more than
// once under optimistic-concurrency retry.
type UpdateRawFunc func(current intent.Intent) (intent.Intent, error)

// StatePredicate decides whether a CAS should proceed from the observed
// current state.
type StatePredicate func(current intent.State) bool

// RequestStore is the persistence capability the orchestrator and indexer
// depend on. Every operation is atomic at the storage layer; CAS operations
// on a single intent are linearizable with respect to other CAS operations
// on the same intent.
type RequestStore interface {
	// NextSequenceID atomically increments and returns the global sequence
	// counter, starting at 1. Never returns the same value twice.
	NextSequenceID(ctx context.Context) (intent.SequenceID, error)

	// PutRequest persists a brand-new intent under its ID and durably
	// records the sequence_id -> intent_id mapping before returning.
	PutRequest(ctx context.Context, i intent.Intent) error

	// GetByIntentID returns ErrNotFound if no intent exists with that id.
	GetByIntentID(ctx context.Context, id intent.ID) (intent.Intent, error)

	// GetBySequenceID returns ErrMappingNotFound if the sequence id was
	// never assigned, or ErrNotFound if the mapped intent is missing.
	GetBySequenceID(ctx context.Context, seq intent.SequenceID) (intent.Intent, error)

	// UpdateStateIf performs a linearizable compare-and-swap: reads the
	// current intent, evaluates pred against its state, and on true writes
	// newState and returns true; on false it returns false without writing.
	UpdateStateIf(ctx context.Context, id intent.ID, pred StatePredicate, newState intent.State) (bool, error)

	// UpdateRaw performs an optimistic load-modify-store of fields other
	// than State. Concurrent updates on the same intent never interleave
	// partial writes.
	UpdateRaw(ctx context.Context, id intent.ID, fn UpdateRawFunc) error

	// GetLastProcessedBlock returns the checkpoint for chainID, or 0 if none
	// has been recorded yet.
	GetLastProcessedBlock(ctx context.Context, chainID int64) (uint64, error)

	// SetLastProcessedBlock applies last_block := max(last_block, n). Lower
	// values are silently dropped.
	SetLastProcessedBlock(ctx context.Context, chainID int64, n uint64) error
}
