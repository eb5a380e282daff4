package signing

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BalanceHash computes Keccak256(address || amount_le_8_bytes || intent_id),
// the digest signed by the snapshot engine for each holder and recomputed
// by the orchestrator's claim route to verify the owner signature.
func BalanceHash(address common.Address, amount uint64, intentID [32]byte) [32]byte {
	buf := make([]byte, 0, 20+8+32)
	buf = append(buf, address.Bytes()...)
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], amount)
	buf = append(buf, amt[:]...)
	buf = append(buf, intentID[:]...)
	return crypto.Keccak256Hash(buf)
}
