// Package merkle builds the Keccak-256 Merkle commitment over
// (address, amount, decimals) holder leaves used by the snapshot engine,
// and generates/verifies inclusion proofs against it.
package merkle

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrIndexOutOfRange is returned when a leaf index falls outside the tree.
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
	// ErrInvalidSibling is returned when a proof element isn't 32 bytes.
	ErrInvalidSibling = errors.New("merkle: sibling hash must be 32 bytes")
)

const hashSize = 32

// Leaf is a single holder entry committed to the tree.
type Leaf struct {
	Account  [20]byte
	Amount   uint64
	Decimals uint8
}

// Encode returns the canonical encoding account || amount_be || decimals_be.
func (l Leaf) Encode() []byte {
	buf := make([]byte, 0, 20+8+1)
	buf = append(buf, l.Account[:]...)
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], l.Amount)
	buf = append(buf, amt[:]...)
	buf = append(buf, l.Decimals)
	return buf
}

// Hash returns Keccak256 of the leaf's canonical encoding.
func (l Leaf) Hash() [32]byte {
	return keccak256(l.Encode())
}

// Tree is a full binary Merkle tree over Keccak-256 leaf hashes, padded by
// repeating the last leaf hash up to the next power of two.
type Tree struct {
	levels [][][32]byte // levels[0] is the padded leaf level
}

// Build constructs a Tree from the given leaves. An empty slice produces the
// canonical empty tree: a single level whose root is 32 zero bytes.
func Build(leaves []Leaf) *Tree {
	if len(leaves) == 0 {
		var zero [32]byte
		return &Tree{levels: [][][32]byte{{zero}}}
	}

	hashes := make([][32]byte, len(leaves))
	for i, l := range leaves {
		hashes[i] = l.Hash()
	}

	padded := padToPowerOfTwo(hashes)

	tree := &Tree{levels: [][][32]byte{padded}}

	current := padded
	for len(current) > 1 {
		next := make([][32]byte, len(current)/2)
		for i := 0; i < len(current); i += 2 {
			next[i/2] = hashPair(current[i], current[i+1])
		}
		tree.levels = append(tree.levels, next)
		current = next
	}

	return tree
}

// padToPowerOfTwo repeats the last hash until the length is a power of two.
// A single-leaf input is left as-is: its level IS the root level.
func padToPowerOfTwo(hashes [][32]byte) [][32]byte {
	n := nextPowerOfTwo(len(hashes))
	if n == len(hashes) {
		return hashes
	}
	padded := make([][32]byte, n)
	copy(padded, hashes)
	last := hashes[len(hashes)-1]
	for i := len(hashes); i < n; i++ {
		padded[i] = last
	}
	return padded
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Root returns the 32-byte Merkle root.
func (t *Tree) Root() [32]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Levels returns the number of levels in the tree, including the leaf level.
func (t *Tree) Levels() int {
	return len(t.levels)
}

// LeafCount returns the number of (padded) leaves at level 0.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Prove returns the sibling hashes from the leaf level up to (but not
// including) the root level, for the leaf at the given original index.
func (t *Tree) Prove(index int) ([][32]byte, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	var proof [][32]byte
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		siblingIdx := idx ^ 1
		nodes := t.levels[level]
		if siblingIdx < len(nodes) {
			proof = append(proof, nodes[siblingIdx])
		}
		idx /= 2
	}
	return proof, nil
}

// Verify walks a proof from a leaf hash up to the root, returning whether the
// reconstructed root matches. At each step, the current hash combines with
// the sibling on the left if the current index is odd, else on the right.
func Verify(leafHash [32]byte, proof [][32]byte, root [32]byte, index int) bool {
	current := leafHash
	idx := index
	for _, sibling := range proof {
		if idx%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		idx /= 2
	}
	return subtle.ConstantTimeCompare(current[:], root[:]) == 1
}

func hashPair(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return keccak256(buf)
}

func keccak256(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data))
	return out
}

// Equal reports whether two hashes are byte-identical. Provided for callers
// that compare roots after a serialize/deserialize round trip.
func Equal(a, b [32]byte) bool {
	return bytes.Equal(a[:], b[:])
}
