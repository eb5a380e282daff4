// Package txbuilder implements snapshot.TransactionBuilder and
// orchestrator.ClaimTxBuilder: the destination-chain instruction encoders
// both components treat the on-chain program as an external interface.
// Lacking that program's real instruction schema, this package signs a
// self-describing envelope destchain.Client can submit unmodified, so the
// rest of the pipeline exercises a real encode/sign/send path rather than
// stopping short at a mocked builder.
package txbuilder

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vamp-labs/control-plane/pkg/destchain"
	"github.com/vamp-labs/control-plane/pkg/orchestrator"
	"github.com/vamp-labs/control-plane/pkg/signing"
	"github.com/vamp-labs/control-plane/pkg/snapshot"
)

// Builder signs the envelopes it encodes with the orchestrator's own
// configured key, so a destination-chain program (were one deployed) could
// recover the signer as the submitting authority.
type Builder struct {
	signer *signing.Signer
}

// New returns a Builder signing with signer.
func New(signer *signing.Signer) *Builder {
	return &Builder{signer: signer}
}

// cloneInstruction is the envelope signed and base64-encoded for a clone
// submission. MintAccount and VampStateAccount are derived deterministically
// from the intent id so repeated encodes of the same clone are idempotent.
type cloneInstruction struct {
	Kind            string                 `json:"kind"`
	IntentID        string                 `json:"intent_id"`
	Token           snapshot.TokenMetadata `json:"token"`
	TotalMinted     uint64                 `json:"total_minted"`
	MerkleRoot      string                 `json:"merkle_root"`
	Pricing         pricingWire            `json:"pricing"`
	SolverPubKey    string                 `json:"solver_pub_key"`
	ValidatorPubKey string                 `json:"validator_pub_key"`
	Blockhash       string                 `json:"blockhash"`
	Signature       string                 `json:"signature"`
}

type pricingWire struct {
	PaidClaimingEnabled bool    `json:"paid_claiming_enabled"`
	UseBondingCurve     bool    `json:"use_bonding_curve"`
	CurveSlope          float64 `json:"curve_slope"`
	BasePrice           float64 `json:"base_price"`
	MaxPrice            float64 `json:"max_price"`
	FlatPricePerToken   float64 `json:"flat_price_per_token"`
}

// BuildCloneTransaction implements snapshot.TransactionBuilder.
func (b *Builder) BuildCloneTransaction(ctx context.Context, params snapshot.CloneTxParams, blockhash destchain.Blockhash) (string, string, string, error) {
	digest := sha256.Sum256(append(append([]byte("clone:"), params.IntentID[:]...), params.MerkleRoot[:]...))
	sig, err := b.signer.Sign(digest)
	if err != nil {
		return "", "", "", fmt.Errorf("txbuilder: sign clone instruction: %w", err)
	}

	instr := cloneInstruction{
		Kind:            "clone",
		IntentID:        fmt.Sprintf("0x%x", params.IntentID),
		Token:           params.Token,
		TotalMinted:     params.TotalMinted,
		MerkleRoot:      fmt.Sprintf("0x%x", params.MerkleRoot),
		Pricing: pricingWire{
			PaidClaimingEnabled: params.Pricing.PaidClaimingEnabled,
			UseBondingCurve:     params.Pricing.UseBondingCurve,
			CurveSlope:          params.Pricing.CurveSlope,
			BasePrice:           params.Pricing.BasePrice,
			MaxPrice:            params.Pricing.MaxPrice,
			FlatPricePerToken:   params.Pricing.FlatPricePerToken,
		},
		SolverPubKey:    params.SolverPubKey,
		ValidatorPubKey: params.ValidatorPubKey,
		Blockhash:       blockhash.Blockhash,
		Signature:       fmt.Sprintf("0x%x", sig),
	}
	body, err := json.Marshal(instr)
	if err != nil {
		return "", "", "", fmt.Errorf("txbuilder: marshal clone instruction: %w", err)
	}

	mintAccount := derivedAccount("mint", params.IntentID)
	vampStateAccount := derivedAccount("vamp-state", params.IntentID)
	return base64.StdEncoding.EncodeToString(body), mintAccount, vampStateAccount, nil
}

// claimInstruction is the envelope signed and base64-encoded for a claim
// submission, carrying both co-signatures the orchestrator's claim route
// already verified/produced.
type claimInstruction struct {
	Kind                      string `json:"kind"`
	IntentID                  string `json:"intent_id"`
	ClaimerAddress            string `json:"claimer_address"`
	Amount                    uint64 `json:"amount"`
	Decimals                  uint8  `json:"decimals"`
	OwnerSig                  string `json:"owner_sig"`
	SolverSig                 string `json:"solver_sig"`
	ValidatorSig              string `json:"validator_sig"`
	ClaimerDestinationAddress string `json:"claimer_destination_address"`
	Blockhash                 string `json:"blockhash"`
}

// BuildClaimTransaction implements orchestrator.ClaimTxBuilder.
func (b *Builder) BuildClaimTransaction(ctx context.Context, auth orchestrator.ClaimAuthorization, blockhash destchain.Blockhash) (string, error) {
	instr := claimInstruction{
		Kind:                      "claim",
		IntentID:                  fmt.Sprintf("0x%x", auth.IntentID),
		ClaimerAddress:            auth.ClaimerAddress.Hex(),
		Amount:                    auth.Amount,
		Decimals:                  auth.Decimals,
		OwnerSig:                  fmt.Sprintf("0x%x", auth.OwnerSig),
		SolverSig:                 fmt.Sprintf("0x%x", auth.SolverSig),
		ValidatorSig:              fmt.Sprintf("0x%x", auth.ValidatorSig),
		ClaimerDestinationAddress: auth.ClaimerDestinationAddress,
		Blockhash:                 blockhash.Blockhash,
	}
	body, err := json.Marshal(instr)
	if err != nil {
		return "", fmt.Errorf("txbuilder: marshal claim instruction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// derivedAccount deterministically names an account for intentID so the
// same clone always addresses the same mint/state accounts, the way a real
// program would derive a PDA from the intent id.
func derivedAccount(label string, intentID [32]byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(label+":"), intentID[:]...)).String()
}

var (
	_ snapshot.TransactionBuilder  = (*Builder)(nil)
	_ orchestrator.ClaimTxBuilder = (*Builder)(nil)
)
