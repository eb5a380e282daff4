package snapshot

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var errShortTopics = errors.New("snapshot: Transfer log has fewer than 3 topics")

// zeroAddress is the ERC-20 mint/burn sentinel: transfers to/from it never
// update a holder balance.
var zeroAddress common.Address

// BalanceMap is the single-owner per-holder balance accumulator a snapshot
// task mutates while walking Transfer logs; it is never shared across
// tasks.
type BalanceMap map[common.Address]*big.Int

// NewBalanceMap creates an empty map, the starting point when no prior
// snapshot exists for an erc20_address.
func NewBalanceMap() BalanceMap {
	return make(BalanceMap)
}

// Clone returns a deep copy, used when resuming from a persisted snapshot
// so the in-flight window never mutates the caller's stored copy on error.
func (b BalanceMap) Clone() BalanceMap {
	out := make(BalanceMap, len(b))
	for addr, amount := range b {
		out[addr] = new(big.Int).Set(amount)
	}
	return out
}

// ApplyTransferLog decodes a standard ERC-20 Transfer(address,address,uint256)
// log — topics[1]=from, topics[2]=to, data=value — and updates the map in
// place.
func (b BalanceMap) ApplyTransferLog(l types.Log) error {
	if len(l.Topics) < 3 {
		return errShortTopics
	}
	from := common.BytesToAddress(l.Topics[1].Bytes())
	to := common.BytesToAddress(l.Topics[2].Bytes())
	value := new(big.Int).SetBytes(l.Data)

	if from != zeroAddress {
		current, ok := b[from]
		if !ok {
			current = new(big.Int)
			b[from] = current
		}
		current.Sub(current, value)
	}
	if to != zeroAddress {
		current, ok := b[to]
		if !ok {
			current = new(big.Int)
			b[to] = current
		}
		current.Add(current, value)
	}
	return nil
}
