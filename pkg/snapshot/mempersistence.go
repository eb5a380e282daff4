package snapshot

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemPersistence is an in-memory Persistence used by tests and as the
// local-development fallback when no DATABASE_URL is configured; it has no
// durability across process restarts. Production deployments should use
// postgres.SnapshotPersistence instead.
type MemPersistence struct {
	mu        sync.Mutex
	snapshots map[common.Address]memSnapshot
	results   map[common.Address]Result
}

type memSnapshot struct {
	balances    BalanceMap
	lastScanned uint64
}

// NewMemPersistence returns an empty MemPersistence.
func NewMemPersistence() *MemPersistence {
	return &MemPersistence{
		snapshots: make(map[common.Address]memSnapshot),
		results:   make(map[common.Address]Result),
	}
}

func (m *MemPersistence) LoadSnapshot(ctx context.Context, erc20Address common.Address) (BalanceMap, uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[erc20Address]
	if !ok {
		return nil, 0, false, nil
	}
	return snap.balances.Clone(), snap.lastScanned, true, nil
}

func (m *MemPersistence) SaveSnapshot(ctx context.Context, erc20Address common.Address, balances BalanceMap, lastScannedBlock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[erc20Address] = memSnapshot{balances: balances.Clone(), lastScanned: lastScannedBlock}
	return nil
}

func (m *MemPersistence) SaveResult(ctx context.Context, erc20Address common.Address, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[erc20Address] = result
	return nil
}

// Result returns the last saved result for erc20Address, for test assertions.
func (m *MemPersistence) Result(erc20Address common.Address) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[erc20Address]
	return r, ok
}

var _ Persistence = (*MemPersistence)(nil)
