package signing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestBalanceHash_Deterministic(t *testing.T) {
	addr := common.HexToAddress("0x589A1b1C6d1E2F3A4B5C6D7E8F90A1B2C3D4E5F6")
	var intentID [32]byte
	intentID[0] = 0x11
	intentID[31] = 0x11

	h1 := BalanceHash(addr, 1_000_000_000, intentID)
	h2 := BalanceHash(addr, 1_000_000_000, intentID)
	if h1 != h2 {
		t.Fatal("BalanceHash is not deterministic for identical inputs")
	}
}

func TestBalanceHash_SensitiveToEachField(t *testing.T) {
	addrA := common.HexToAddress("0x589A1b1C6d1E2F3A4B5C6D7E8F90A1B2C3D4E5F6")
	addrB := common.HexToAddress("0x000000000000000000000000000000000000FF")
	var id1, id2 [32]byte
	id1[0] = 0x11
	id2[0] = 0x22

	base := BalanceHash(addrA, 1_000_000_000, id1)

	if h := BalanceHash(addrB, 1_000_000_000, id1); h == base {
		t.Fatal("BalanceHash ignores the address")
	}
	if h := BalanceHash(addrA, 999_999_999, id1); h == base {
		t.Fatal("BalanceHash ignores the amount")
	}
	if h := BalanceHash(addrA, 1_000_000_000, id2); h == base {
		t.Fatal("BalanceHash ignores the intent id")
	}
}

// TestBalanceHash_MatchesKnownVector pins BalanceHash against a digest
// computed independently of this codebase, so a change to the byte layout
// or hash function shows up even if the self-consistency checks above
// still pass.
func TestBalanceHash_MatchesKnownVector(t *testing.T) {
	addr := common.HexToAddress("0x589A698b7b7dA0Bec545177D3963A2741105C7C9")
	var intentID [32]byte
	for i := range intentID {
		intentID[i] = 0x11
	}

	got := BalanceHash(addr, 1_000_000_000, intentID)
	want := common.HexToHash("0xb5d1cbd3ad4387e4ab714ab1df781378f59886bd455d49a82946a426ffd0618d")
	if got != want {
		t.Fatalf("BalanceHash = %x, want %x", got, want)
	}
}

// TestBalanceHash_LayoutMatchesManualConcat pins the exact byte layout
// (20-byte address || 8-byte little-endian amount || 32-byte intent id)
// against a digest computed by hand from the same bytes, independently of
// the known vector above.
func TestBalanceHash_LayoutMatchesManualConcat(t *testing.T) {
	addr := common.HexToAddress("0x589A1b1C6d1E2F3A4B5C6D7E8F90A1B2C3D4E5F6")
	var intentID [32]byte
	intentID[0] = 0x11
	intentID[31] = 0x11
	amount := uint64(1_000_000_000)

	buf := make([]byte, 0, 60)
	buf = append(buf, addr.Bytes()...)
	amtLE := []byte{
		byte(amount), byte(amount >> 8), byte(amount >> 16), byte(amount >> 24),
		byte(amount >> 32), byte(amount >> 40), byte(amount >> 48), byte(amount >> 56),
	}
	buf = append(buf, amtLE...)
	buf = append(buf, intentID[:]...)

	want := crypto.Keccak256Hash(buf)
	got := BalanceHash(addr, amount, intentID)
	if got != want {
		t.Fatalf("BalanceHash layout mismatch: got %x, want %x", got, want)
	}
}
