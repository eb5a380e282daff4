package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vamp-labs/control-plane/pkg/intent"
	"github.com/vamp-labs/control-plane/pkg/store"
)

// Repository implements store.RequestStore over the intents,
// sequence_to_intent, sequence_counter and chain_checkpoints tables created
// by the 0001_initial migration.
type Repository struct {
	client *Client
}

// NewRepository wraps an already-migrated Client.
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

func (r *Repository) NextSequenceID(ctx context.Context) (intent.SequenceID, error) {
	var v int64
	err := r.client.DB().QueryRowContext(ctx,
		`UPDATE sequence_counter SET value = value + 1 WHERE id = 1 RETURNING value`,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("postgres: next sequence id: %w", err)
	}
	return intent.SequenceID(v), nil
}

// PutRequest writes the intent row and the sequence->intent mapping in the
// same transaction, committing the mapping last so a dangling mapping
// (pointing to an intent that was never durably written) is impossible.
func (r *Repository) PutRequest(ctx context.Context, i intent.Intent) error {
	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: put request: begin: %w", err)
	}
	defer tx.Rollback()

	data := i.Data
	if data == nil {
		data = json.RawMessage(`{}`)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO intents (intent_id, sequence_id, state, schema_version, data, proto_data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID[:], int64(i.SequenceID), string(i.State), i.SchemaVersion, []byte(data), i.ProtoData,
	)
	if err != nil {
		return fmt.Errorf("postgres: put request: insert intent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sequence_to_intent (sequence_id, intent_id) VALUES ($1, $2)`,
		int64(i.SequenceID), i.ID[:],
	)
	if err != nil {
		return fmt.Errorf("postgres: put request: insert mapping: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) GetByIntentID(ctx context.Context, id intent.ID) (intent.Intent, error) {
	return r.scanIntent(ctx, `
		SELECT intent_id, sequence_id, state, schema_version, data, proto_data
		FROM intents WHERE intent_id = $1`, id[:])
}

func (r *Repository) GetBySequenceID(ctx context.Context, seq intent.SequenceID) (intent.Intent, error) {
	var intentID []byte
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT intent_id FROM sequence_to_intent WHERE sequence_id = $1`, int64(seq),
	).Scan(&intentID)
	if err == sql.ErrNoRows {
		return intent.Intent{}, store.ErrMappingNotFound
	}
	if err != nil {
		return intent.Intent{}, fmt.Errorf("postgres: get by sequence id: %w", err)
	}

	return r.scanIntent(ctx, `
		SELECT intent_id, sequence_id, state, schema_version, data, proto_data
		FROM intents WHERE intent_id = $1`, intentID)
}

func (r *Repository) scanIntent(ctx context.Context, query string, args ...interface{}) (intent.Intent, error) {
	var (
		idBytes   []byte
		seq       int64
		state     string
		schemaVer uint32
		data      []byte
		protoData []byte
	)
	err := r.client.DB().QueryRowContext(ctx, query, args...).Scan(&idBytes, &seq, &state, &schemaVer, &data, &protoData)
	if err == sql.ErrNoRows {
		return intent.Intent{}, store.ErrNotFound
	}
	if err != nil {
		return intent.Intent{}, fmt.Errorf("postgres: scan intent: %w", err)
	}

	var id intent.ID
	copy(id[:], idBytes)

	return intent.Intent{
		ID:            id,
		SequenceID:    intent.SequenceID(seq),
		State:         intent.State(state),
		SchemaVersion: schemaVer,
		Data:          json.RawMessage(data),
		ProtoData:     protoData,
	}, nil
}

// UpdateStateIf implements the compare-and-swap using a transaction with
// SELECT ... FOR UPDATE to serialize concurrent CAS attempts on the same
// intent row.
func (r *Repository) UpdateStateIf(ctx context.Context, id intent.ID, pred store.StatePredicate, newState intent.State) (bool, error) {
	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("postgres: update state if: begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT state FROM intents WHERE intent_id = $1 FOR UPDATE`, id[:]).Scan(&current)
	if err == sql.ErrNoRows {
		return false, store.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("postgres: update state if: select: %w", err)
	}

	if !pred(intent.State(current)) {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE intents SET state = $2, updated_at = now() WHERE intent_id = $1`, id[:], string(newState)); err != nil {
		return false, fmt.Errorf("postgres: update state if: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("postgres: update state if: commit: %w", err)
	}
	return true, nil
}

// UpdateRaw performs a transactional load-modify-store, holding the row
// lock for the duration of fn so concurrent updates on the same intent
// cannot interleave partial writes.
func (r *Repository) UpdateRaw(ctx context.Context, id intent.ID, fn store.UpdateRawFunc) error {
	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: update raw: begin: %w", err)
	}
	defer tx.Rollback()

	var (
		seq       int64
		state     string
		schemaVer uint32
		data      []byte
		protoData []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT sequence_id, state, schema_version, data, proto_data
		FROM intents WHERE intent_id = $1 FOR UPDATE`, id[:],
	).Scan(&seq, &state, &schemaVer, &data, &protoData)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: update raw: select: %w", err)
	}

	current := intent.Intent{
		ID:            id,
		SequenceID:    intent.SequenceID(seq),
		State:         intent.State(state),
		SchemaVersion: schemaVer,
		Data:          json.RawMessage(data),
		ProtoData:     protoData,
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE intents SET schema_version = $2, data = $3, proto_data = $4, updated_at = now()
		WHERE intent_id = $1`,
		id[:], updated.SchemaVersion, []byte(updated.Data), updated.ProtoData,
	)
	if err != nil {
		return fmt.Errorf("postgres: update raw: update: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) GetLastProcessedBlock(ctx context.Context, chainID int64) (uint64, error) {
	var n int64
	err := r.client.DB().QueryRowContext(ctx,
		`SELECT last_block FROM chain_checkpoints WHERE chain_id = $1`, chainID,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get checkpoint: %w", err)
	}
	return uint64(n), nil
}

// SetLastProcessedBlock upserts the checkpoint, applying the monotonic
// max(last_block, n) rule entirely inside the statement to stay atomic
// under concurrent writers.
func (r *Repository) SetLastProcessedBlock(ctx context.Context, chainID int64, n uint64) error {
	_, err := r.client.DB().ExecContext(ctx, `
		INSERT INTO chain_checkpoints (chain_id, last_block) VALUES ($1, $2)
		ON CONFLICT (chain_id) DO UPDATE SET last_block = GREATEST(chain_checkpoints.last_block, EXCLUDED.last_block)`,
		chainID, int64(n),
	)
	if err != nil {
		return fmt.Errorf("postgres: set checkpoint: %w", err)
	}
	return nil
}

var _ store.RequestStore = (*Repository)(nil)
