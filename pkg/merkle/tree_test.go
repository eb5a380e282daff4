package merkle

import (
	"testing"
)

func leafFor(i int) Leaf {
	var account [20]byte
	account[19] = byte(i)
	return Leaf{Account: account, Amount: uint64(100 * i), Decimals: 9}
}

func TestBuild_Empty(t *testing.T) {
	tree := Build(nil)
	var zero [32]byte
	if tree.Root() != zero {
		t.Fatalf("empty tree root = %x, want zero", tree.Root())
	}
	if tree.Levels() != 1 {
		t.Fatalf("empty tree levels = %d, want 1", tree.Levels())
	}
}

func TestBuild_SingleLeaf(t *testing.T) {
	leaf := leafFor(1)
	tree := Build([]Leaf{leaf})

	if tree.Root() != leaf.Hash() {
		t.Fatalf("single leaf root mismatch: got %x, want %x", tree.Root(), leaf.Hash())
	}

	proof, err := tree.Prove(0)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proof) != 0 {
		t.Fatalf("single leaf proof length = %d, want 0", len(proof))
	}
	if !Verify(leaf.Hash(), proof, tree.Root(), 0) {
		t.Fatal("verify failed for single leaf tree")
	}
}

func TestBuild_ThreeLeaves(t *testing.T) {
	leaves := []Leaf{leafFor(1), leafFor(2), leafFor(3)}
	tree := Build(leaves)

	if tree.LeafCount() != 4 {
		t.Fatalf("leaf count after padding = %d, want 4", tree.LeafCount())
	}
	if tree.Levels() != 3 {
		t.Fatalf("levels = %d, want 3", tree.Levels())
	}

	proof, err := tree.Prove(1)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proof) != 2 {
		t.Fatalf("proof length = %d, want 2", len(proof))
	}

	if !Verify(leaves[1].Hash(), proof, tree.Root(), 1) {
		t.Fatal("verify failed for correct leaf")
	}

	tampered := leaves[1]
	tampered.Amount = 10
	if Verify(tampered.Hash(), proof, tree.Root(), 1) {
		t.Fatal("verify succeeded for tampered leaf, want failure")
	}
}

func TestProve_Deterministic(t *testing.T) {
	leaves := []Leaf{leafFor(1), leafFor(2), leafFor(3), leafFor(4), leafFor(5)}
	tree := Build(leaves)

	p1, err := tree.Prove(2)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	p2, err := tree.Prove(2)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(p1) != len(p2) {
		t.Fatalf("proof lengths differ: %d vs %d", len(p1), len(p2))
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("proof element %d differs across calls", i)
		}
	}
}

func TestBuild_RoundTripRoot(t *testing.T) {
	leaves := []Leaf{leafFor(1), leafFor(2), leafFor(3), leafFor(4)}
	tree1 := Build(leaves)
	tree2 := Build(leaves)

	if !Equal(tree1.Root(), tree2.Root()) {
		t.Fatal("rebuilding from the same leaves produced different roots")
	}
}

func TestProve_AllIndices(t *testing.T) {
	leaves := []Leaf{leafFor(1), leafFor(2), leafFor(3), leafFor(4), leafFor(5), leafFor(6), leafFor(7)}
	tree := Build(leaves)

	for i, leaf := range leaves {
		proof, err := tree.Prove(i)
		if err != nil {
			t.Fatalf("Prove(%d): %v", i, err)
		}
		if !Verify(leaf.Hash(), proof, tree.Root(), i) {
			t.Fatalf("verify failed for index %d", i)
		}
	}
}

func TestProve_OutOfRange(t *testing.T) {
	tree := Build([]Leaf{leafFor(1)})
	if _, err := tree.Prove(5); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}
