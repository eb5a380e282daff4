package indexer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vamp-labs/control-plane/pkg/broker"
	"github.com/vamp-labs/control-plane/pkg/intent"
)

// jobID folds a log's transaction hash into the 64-bit correlation id
// carried as job_id on the published event. A tx hash is always 32 bytes,
// so FoldID never sees a partial chunk here.
func jobID(l types.Log) uint64 {
	id, _ := intent.FoldID(l.TxHash.Bytes())
	return id
}

// decodeAddressTopic reads a 20-byte address right-aligned in a 32-byte
// indexed topic, the standard Solidity ABI encoding for an indexed address
// parameter.
func decodeAddressTopic(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

// DecodeCloneRequested decodes a CloneRequested log whose indexed topics
// are (topic0, erc20Address, requestedBy) and whose data word carries
// nothing further; block number and tx hash come from the log envelope
// itself.
func DecodeCloneRequested(chainID int64, l types.Log) (broker.Envelope, error) {
	if len(l.Topics) < 3 {
		return broker.Envelope{}, fmt.Errorf("indexer: CloneRequested log has %d topics, want >= 3", len(l.Topics))
	}
	return broker.Envelope{
		RoutingKey: broker.RoutingKeyClone,
		Clone: &broker.CloneRequested{
			ChainID:         chainID,
			BlockNumber:     l.BlockNumber,
			TxHash:          l.TxHash.Hex(),
			LogIndex:        l.Index,
			ContractAddress: l.Address.Hex(),
			JobID:           jobID(l),
			Erc20Address:    decodeAddressTopic(l.Topics[1]).Hex(),
			RequestedBy:     decodeAddressTopic(l.Topics[2]).Hex(),
		},
	}, nil
}

// claimDataWords is the number of 32-byte ABI words in a ClaimRequested
// log's data: amount, decimals, ownerSig.R, ownerSig.S, ownerSig.V,
// claimerDestinationAddress.
const claimDataWords = 6

// DecodeClaimRequested decodes a ClaimRequested log whose indexed topics are
// (topic0, claimerAddress) and whose data is
// abi.encode(uint256 amount, uint8 decimals, bytes32 r, bytes32 s, uint8 v,
// address claimerDestinationAddress) — the claimer's own Ethereum-prefixed
// signature over the balance hash, carried so the orchestrator's claim route
// can verify it without a second round trip to the source chain.
func DecodeClaimRequested(chainID int64, l types.Log) (broker.Envelope, error) {
	if len(l.Topics) < 2 {
		return broker.Envelope{}, fmt.Errorf("indexer: ClaimRequested log has %d topics, want >= 2", len(l.Topics))
	}
	const wantLen = claimDataWords * 32
	if len(l.Data) < wantLen {
		return broker.Envelope{}, fmt.Errorf("indexer: ClaimRequested data is %d bytes, want >= %d", len(l.Data), wantLen)
	}

	amount := new(big.Int).SetBytes(l.Data[0:32])
	if !amount.IsUint64() {
		return broker.Envelope{}, fmt.Errorf("indexer: ClaimRequested amount overflows uint64")
	}
	decimals := new(big.Int).SetBytes(l.Data[32:64])
	if !decimals.IsUint64() || decimals.Uint64() > 255 {
		return broker.Envelope{}, fmt.Errorf("indexer: ClaimRequested decimals out of range")
	}
	sigR := l.Data[64:96]
	sigS := l.Data[96:128]
	sigV := new(big.Int).SetBytes(l.Data[128:160])
	if !sigV.IsUint64() || sigV.Uint64() > 255 {
		return broker.Envelope{}, fmt.Errorf("indexer: ClaimRequested signature V out of range")
	}
	destination := decodeAddressTopic(common.BytesToHash(l.Data[160:192]))

	var sig [65]byte
	copy(sig[0:32], sigR)
	copy(sig[32:64], sigS)
	sig[64] = byte(sigV.Uint64())

	return broker.Envelope{
		RoutingKey: broker.RoutingKeyClaim,
		Claim: &broker.ClaimRequested{
			ChainID:                   chainID,
			BlockNumber:               l.BlockNumber,
			TxHash:                    l.TxHash.Hex(),
			LogIndex:                  l.Index,
			ContractAddress:           l.Address.Hex(),
			JobID:                     jobID(l),
			ClaimerAddress:            decodeAddressTopic(l.Topics[1]).Hex(),
			Amount:                    amount.Uint64(),
			Decimals:                  uint8(decimals.Uint64()),
			OwnerSignature:            "0x" + common.Bytes2Hex(sig[:]),
			ClaimerDestinationAddress: destination.Hex(),
		},
	}, nil
}
