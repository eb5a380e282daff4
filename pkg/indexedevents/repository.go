// Package indexedevents persists the indexer's append-only log of observed
// source-chain events, enforcing a (tx_hash, log_index) uniqueness
// constraint so republication on retry never produces duplicate rows.
package indexedevents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// pqUniqueViolation is the SQLSTATE Postgres uses for a unique constraint
// violation; see https://www.postgresql.org/docs/current/errcodes-appendix.html
const pqUniqueViolation = "23505"

// Event is a single indexed source-chain log.
type Event struct {
	ChainID         int64
	BlockNumber     uint64
	BlockHash       string
	TxHash          string
	LogIndex        uint32
	ContractAddress string
	Topic0          string
	JobID           string
	Data            []byte
}

// Repository stores Events in the indexed_events table created by the
// request store's 0001_initial migration.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a *sql.DB already pointed at the request-store schema.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert inserts ev, returning (false, nil) instead of an error when the
// row already exists per the (tx_hash, log_index) uniqueness constraint —
// a republished log on retry is silently ignored, not treated as a
// failure.
func (r *Repository) Insert(ctx context.Context, ev Event) (inserted bool, err error) {
	var blockHash sql.NullString
	if ev.BlockHash != "" {
		blockHash = sql.NullString{String: ev.BlockHash, Valid: true}
	}
	var jobID sql.NullString
	if ev.JobID != "" {
		jobID = sql.NullString{String: ev.JobID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO indexed_events
			(chain_id, block_number, block_hash, tx_hash, log_index, contract_address, topic0, job_id, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ChainID, int64(ev.BlockNumber), blockHash, ev.TxHash, int32(ev.LogIndex),
		ev.ContractAddress, ev.Topic0, jobID, ev.Data,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("indexedevents: insert: %w", err)
	}
	return true, nil
}

// CountByTxLogIndex is a test/debug helper returning how many rows exist
// for a given (tx_hash, log_index) pair; used to assert idempotence.
func (r *Repository) CountByTxLogIndex(ctx context.Context, txHash string, logIndex uint32) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM indexed_events WHERE tx_hash = $1 AND log_index = $2`,
		txHash, int32(logIndex),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("indexedevents: count: %w", err)
	}
	return n, nil
}
