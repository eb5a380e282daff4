// Package redisseq is a networked-KV RequestStore backing: it uses INCR
// for sequence allocation and Lua scripts (EVAL) for the compare-and-swap
// operations, so a CAS round-trip is a single atomic command as far as
// Redis is concerned.
package redisseq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/store"
)

const (
	sequenceCounterKey = "vamp:seq"
	intentKeyPrefix    = "vamp:intent:"
	seqMapKeyPrefix    = "vamp:seq2intent:"
	checkpointKey      = "vamp:checkpoint"
)

// casStateScript implements update_state_if atomically: it reads the stored
// state, and only if it equals the expected "from" value does it write the
// new state, returning 1 on success and 0 on a failed compare.
var casStateScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if raw == false then
	return -1
end
local doc = cjson.decode(raw)
if doc.state ~= ARGV[1] then
	return 0
end
doc.state = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(doc))
return 1
`)

// updateRawScript implements update_raw: it overwrites the fields touched
// by UpdateRawFunc (schema_version, data, proto_data) in a single atomic
// command after the caller has computed the new values from a snapshot.
var updateRawScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if raw == false then
	return -1
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// Store is a Redis-backed RequestStore. Because Intent.State transitions
// must be evaluated against an arbitrary Go predicate (not just equality),
// UpdateStateIf loads the current state first to evaluate the predicate,
// then uses casStateScript to apply the write atomically against the
// observed value — any interleaving concurrent writer causes the script's
// equality check to fail and the caller retries.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing *redis.Client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

type wireIntent struct {
	SequenceID    uint64 `json:"sequence_id"`
	State         string `json:"state"`
	SchemaVersion uint32 `json:"schema_version"`
	Data          string `json:"data"`
	ProtoData     string `json:"proto_data"`
}

func toWire(i intent.Intent) wireIntent {
	return wireIntent{
		SequenceID:    uint64(i.SequenceID),
		State:         string(i.State),
		SchemaVersion: i.SchemaVersion,
		Data:          string(i.Data),
		ProtoData:     string(i.ProtoData),
	}
}

func fromWire(id intent.ID, w wireIntent) intent.Intent {
	return intent.Intent{
		ID:            id,
		SequenceID:    intent.SequenceID(w.SequenceID),
		State:         intent.State(w.State),
		SchemaVersion: w.SchemaVersion,
		Data:          []byte(w.Data),
		ProtoData:     []byte(w.ProtoData),
	}
}

func intentKey(id intent.ID) string {
	return intentKeyPrefix + fmt.Sprintf("%x", id[:])
}

func (s *Store) NextSequenceID(ctx context.Context) (intent.SequenceID, error) {
	n, err := s.rdb.Incr(ctx, sequenceCounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redisseq: incr sequence: %w", err)
	}
	return intent.SequenceID(n), nil
}

func (s *Store) PutRequest(ctx context.Context, i intent.Intent) error {
	raw, err := json.Marshal(toWire(i))
	if err != nil {
		return fmt.Errorf("redisseq: marshal intent: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, intentKey(i.ID), raw, 0)
	pipe.Set(ctx, seqMapKeyPrefix+fmt.Sprintf("%d", i.SequenceID), intentKey(i.ID), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisseq: put request: %w", err)
	}
	return nil
}

func (s *Store) GetByIntentID(ctx context.Context, id intent.ID) (intent.Intent, error) {
	raw, err := s.rdb.Get(ctx, intentKey(id)).Result()
	if err == redis.Nil {
		return intent.Intent{}, store.ErrNotFound
	}
	if err != nil {
		return intent.Intent{}, fmt.Errorf("redisseq: get: %w", err)
	}
	var w wireIntent
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return intent.Intent{}, fmt.Errorf("redisseq: unmarshal: %w", err)
	}
	return fromWire(id, w), nil
}

func (s *Store) GetBySequenceID(ctx context.Context, seq intent.SequenceID) (intent.Intent, error) {
	key, err := s.rdb.Get(ctx, seqMapKeyPrefix+fmt.Sprintf("%d", seq)).Result()
	if err == redis.Nil {
		return intent.Intent{}, store.ErrMappingNotFound
	}
	if err != nil {
		return intent.Intent{}, fmt.Errorf("redisseq: get mapping: %w", err)
	}

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return intent.Intent{}, store.ErrNotFound
	}
	if err != nil {
		return intent.Intent{}, fmt.Errorf("redisseq: get mapped intent: %w", err)
	}

	var w wireIntent
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return intent.Intent{}, fmt.Errorf("redisseq: unmarshal: %w", err)
	}

	var id intent.ID
	idHex := key[len(intentKeyPrefix):]
	if _, err := fmt.Sscanf(idHex, "%x", &id); err != nil {
		return intent.Intent{}, fmt.Errorf("redisseq: decode intent id: %w", err)
	}
	return fromWire(id, w), nil
}

// UpdateStateIf loads the current state, evaluates pred in Go, then applies
// the write via casStateScript keyed on the exact state it observed so a
// concurrent writer that changed the state in between causes the script's
// equality check (not just this function's predicate check) to fail.
func (s *Store) UpdateStateIf(ctx context.Context, id intent.ID, pred store.StatePredicate, newState intent.State) (bool, error) {
	current, err := s.GetByIntentID(ctx, id)
	if err != nil {
		return false, err
	}
	if !pred(current.State) {
		return false, nil
	}

	res, err := casStateScript.Run(ctx, s.rdb, []string{intentKey(id)}, string(current.State), string(newState)).Int()
	if err != nil {
		return false, fmt.Errorf("redisseq: cas state: %w", err)
	}
	switch res {
	case -1:
		return false, store.ErrNotFound
	case 0:
		return false, nil // lost the race; caller may retry
	default:
		return true, nil
	}
}

func (s *Store) UpdateRaw(ctx context.Context, id intent.ID, fn store.UpdateRawFunc) error {
	current, err := s.GetByIntentID(ctx, id)
	if err != nil {
		return err
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(toWire(updated))
	if err != nil {
		return fmt.Errorf("redisseq: marshal updated intent: %w", err)
	}

	res, err := updateRawScript.Run(ctx, s.rdb, []string{intentKey(id)}, string(raw)).Int()
	if err != nil {
		return fmt.Errorf("redisseq: update raw: %w", err)
	}
	if res == -1 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetLastProcessedBlock(ctx context.Context, chainID int64) (uint64, error) {
	n, err := s.rdb.HGet(ctx, checkpointKey, fmt.Sprintf("%d", chainID)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redisseq: get checkpoint: %w", err)
	}
	return n, nil
}

var checkpointScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local candidate = tonumber(ARGV[2])
if candidate > current then
	redis.call('HSET', KEYS[1], ARGV[1], candidate)
end
return 1
`)

// SetLastProcessedBlock applies last_block := max(last_block, n) atomically
// via a Lua script so concurrent writers never regress the checkpoint.
func (s *Store) SetLastProcessedBlock(ctx context.Context, chainID int64, n uint64) error {
	_, err := checkpointScript.Run(ctx, s.rdb, []string{checkpointKey}, fmt.Sprintf("%d", chainID), fmt.Sprintf("%d", n)).Result()
	if err != nil {
		return fmt.Errorf("redisseq: set checkpoint: %w", err)
	}
	return nil
}

var _ store.RequestStore = (*Store)(nil)
