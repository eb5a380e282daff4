// Package memstore is an in-memory RequestStore backing with the same
// linearizability guarantees as the production Postgres/Redis backings, for
// hermetic unit tests of components built against store.RequestStore.
package memstore

import (
	"context"
	"sync"

	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/store"
)

// Store is an in-memory RequestStore. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	seq         uint64
	intents     map[intent.ID]intent.Intent
	seqToIntent map[intent.SequenceID]intent.ID
	checkpoints map[int64]uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		intents:     make(map[intent.ID]intent.Intent),
		seqToIntent: make(map[intent.SequenceID]intent.ID),
		checkpoints: make(map[int64]uint64),
	}
}

func (s *Store) NextSequenceID(ctx context.Context) (intent.SequenceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return intent.SequenceID(s.seq), nil
}

func (s *Store) PutRequest(ctx context.Context, i intent.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[i.ID] = i
	s.seqToIntent[i.SequenceID] = i.ID
	return nil
}

func (s *Store) GetByIntentID(ctx context.Context, id intent.ID) (intent.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.intents[id]
	if !ok {
		return intent.Intent{}, store.ErrNotFound
	}
	return i, nil
}

func (s *Store) GetBySequenceID(ctx context.Context, seq intent.SequenceID) (intent.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.seqToIntent[seq]
	if !ok {
		return intent.Intent{}, store.ErrMappingNotFound
	}
	i, ok := s.intents[id]
	if !ok {
		return intent.Intent{}, store.ErrNotFound
	}
	return i, nil
}

func (s *Store) UpdateStateIf(ctx context.Context, id intent.ID, pred store.StatePredicate, newState intent.State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.intents[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if !pred(i.State) {
		return false, nil
	}
	i.State = newState
	s.intents[id] = i
	return true, nil
}

func (s *Store) UpdateRaw(ctx context.Context, id intent.ID, fn store.UpdateRawFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.intents[id]
	if !ok {
		return store.ErrNotFound
	}
	updated, err := fn(i)
	if err != nil {
		return err
	}
	s.intents[id] = updated
	return nil
}

func (s *Store) GetLastProcessedBlock(ctx context.Context, chainID int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[chainID], nil
}

func (s *Store) SetLastProcessedBlock(ctx context.Context, chainID int64, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.checkpoints[chainID] {
		s.checkpoints[chainID] = n
	}
	return nil
}

var _ store.RequestStore = (*Store)(nil)
