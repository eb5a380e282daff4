package postgres

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vamp-labs/control-plane/pkg/snapshot"
)

// SnapshotPersistence implements snapshot.Persistence over the
// snapshot_state and snapshot_results tables created by the
// 0002_snapshot_persistence migration: snapshot_state holds the resumable
// per-erc20_address balance map and last-scanned block, snapshot_results
// holds the record of a completed destination-chain submission.
type SnapshotPersistence struct {
	client *Client
}

// NewSnapshotPersistence wraps an already-migrated Client.
func NewSnapshotPersistence(client *Client) *SnapshotPersistence {
	return &SnapshotPersistence{client: client}
}

type wireHolder struct {
	Address   string `json:"address"`
	Amount    uint64 `json:"amount"`
	Decimals  uint8  `json:"decimals"`
	Signature string `json:"signature"`
}

func (p *SnapshotPersistence) LoadSnapshot(ctx context.Context, erc20Address common.Address) (snapshot.BalanceMap, uint64, bool, error) {
	var (
		rawBalances []byte
		lastScanned int64
	)
	err := p.client.DB().QueryRowContext(ctx,
		`SELECT balances, last_scanned_block FROM snapshot_state WHERE erc20_address = $1`,
		erc20Address.Bytes(),
	).Scan(&rawBalances, &lastScanned)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("postgres: load snapshot: %w", err)
	}

	var wire map[string]string
	if err := json.Unmarshal(rawBalances, &wire); err != nil {
		return nil, 0, false, fmt.Errorf("postgres: decode balances: %w", err)
	}
	balances := snapshot.NewBalanceMap()
	for addrHex, amountDec := range wire {
		amount, ok := new(big.Int).SetString(amountDec, 10)
		if !ok {
			return nil, 0, false, fmt.Errorf("postgres: invalid balance %q for %s", amountDec, addrHex)
		}
		balances[common.HexToAddress(addrHex)] = amount
	}
	return balances, uint64(lastScanned), true, nil
}

// SaveSnapshot upserts the balance map and last-scanned block for
// erc20Address, replacing whatever was previously stored so a resumed scan
// always starts from the most recently completed window.
func (p *SnapshotPersistence) SaveSnapshot(ctx context.Context, erc20Address common.Address, balances snapshot.BalanceMap, lastScannedBlock uint64) error {
	wire := make(map[string]string, len(balances))
	for addr, amount := range balances {
		wire[addr.Hex()] = amount.String()
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("postgres: marshal balances: %w", err)
	}

	_, err = p.client.DB().ExecContext(ctx, `
		INSERT INTO snapshot_state (erc20_address, balances, last_scanned_block, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (erc20_address) DO UPDATE SET
			balances = EXCLUDED.balances,
			last_scanned_block = EXCLUDED.last_scanned_block,
			updated_at = now()`,
		erc20Address.Bytes(), raw, int64(lastScannedBlock),
	)
	if err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}
	return nil
}

func (p *SnapshotPersistence) SaveResult(ctx context.Context, erc20Address common.Address, result snapshot.Result) error {
	holders := make([]wireHolder, len(result.Holders))
	for i, h := range result.Holders {
		holders[i] = wireHolder{
			Address:   h.Address.Hex(),
			Amount:    h.Amount,
			Decimals:  h.Decimals,
			Signature: hex.EncodeToString(h.Signature[:]),
		}
	}
	rawHolders, err := json.Marshal(holders)
	if err != nil {
		return fmt.Errorf("postgres: marshal holders: %w", err)
	}

	_, err = p.client.DB().ExecContext(ctx, `
		INSERT INTO snapshot_results (erc20_address, intent_id, target_tx_id, mint_account, vamp_state_account, merkle_root, holders, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (erc20_address) DO UPDATE SET
			intent_id = EXCLUDED.intent_id,
			target_tx_id = EXCLUDED.target_tx_id,
			mint_account = EXCLUDED.mint_account,
			vamp_state_account = EXCLUDED.vamp_state_account,
			merkle_root = EXCLUDED.merkle_root,
			holders = EXCLUDED.holders,
			created_at = now()`,
		erc20Address.Bytes(), result.IntentID[:], result.TargetTxID, result.MintAccount, result.VampStateAccount, result.MerkleRoot[:], rawHolders,
	)
	if err != nil {
		return fmt.Errorf("postgres: save result: %w", err)
	}
	return nil
}

var _ snapshot.Persistence = (*SnapshotPersistence)(nil)
