// Package signing provides the secp256k1/Ethereum-prefixed signature
// primitives shared by the snapshot engine (per-holder leaf signatures) and
// the orchestrator (claim authorizations): sign, recover and verify, all
// byte-for-byte compatible with the "\x19Ethereum Signed Message:\n" scheme.
package signing

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// Signer signs 32-byte digests with a single configured secp256k1 key. It
// is constructed explicitly and passed through the call graph rather than
// used as a package-level global, so tests can supply a throwaway key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner loads a signer from a hex-encoded secp256k1 private key
// (optionally "0x"-prefixed).
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(trim0x(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("signing: parse private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the address corresponding to the signer's public key.
func (s *Signer) Address() common.Address { return s.address }

// Sign returns a 65-byte [R || S || V] signature over the Ethereum-prefixed
// digest of msgHash, where V is 27 or 28.
func (s *Signer) Sign(msgHash [32]byte) ([65]byte, error) {
	prefixed := EthereumSignedMessageHash(msgHash[:])
	sig, err := crypto.Sign(prefixed[:], s.key)
	if err != nil {
		return [65]byte{}, fmt.Errorf("signing: sign: %w", err)
	}
	var out [65]byte
	copy(out[:], sig)
	// crypto.Sign's V is 0/1; the Ethereum convention used downstream
	// (contract verification, wallets) expects 27/28.
	out[64] += 27
	return out, nil
}

// EthereumSignedMessageHash applies the "\x19Ethereum Signed Message:\n32"
// prefix convention and returns the resulting digest.
func EthereumSignedMessageHash(hash []byte) [32]byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(hash))
	return crypto.Keccak256Hash(append([]byte(prefix), hash...))
}

// RecoverAddress recovers the signer address from a 65-byte signature over
// the Ethereum-prefixed digest of msgHash. sig's trailing byte (V) may be
// 0/1 or 27/28; both conventions are accepted.
func RecoverAddress(msgHash [32]byte, sig [65]byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("signing: signature must be %d bytes", signatureLength)
	}
	normalized := sig
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	prefixed := EthereumSignedMessageHash(msgHash[:])
	pub, err := crypto.SigToPub(prefixed[:], normalized[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("signing: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig is a valid signature by expected over msgHash.
func Verify(msgHash [32]byte, sig [65]byte, expected common.Address) (bool, error) {
	recovered, err := RecoverAddress(msgHash, sig)
	if err != nil {
		return false, err
	}
	return recovered == expected, nil
}

// ParseSignature decodes a hex-encoded ("0x"-prefixed or not) 65-byte
// signature as produced by Sign or carried on the wire in a broker envelope.
func ParseSignature(hexSig string) ([65]byte, error) {
	raw := common.FromHex(hexSig)
	if len(raw) != signatureLength {
		return [65]byte{}, fmt.Errorf("signing: signature must be %d bytes, got %d", signatureLength, len(raw))
	}
	var out [65]byte
	copy(out[:], raw)
	return out, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
