package broker

import (
	"encoding/json"
	"testing"
)

func TestEnvelope_MarshalCloneOmitsClaim(t *testing.T) {
	env := Envelope{
		RoutingKey: RoutingKeyClone,
		Clone: &CloneRequested{
			ChainID:         1,
			BlockNumber:     100,
			TxHash:          "0xabc",
			ContractAddress: "0xdef",
			Erc20Address:    "0x111",
			RequestedBy:     "0x222",
		},
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, present := decoded["claim"]; present {
		t.Fatal("claim field present for a clone envelope")
	}
	if _, present := decoded["clone"]; !present {
		t.Fatal("clone field missing")
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	want := Envelope{
		RoutingKey: RoutingKeyClaim,
		Claim: &ClaimRequested{
			ChainID:         5,
			BlockNumber:     42,
			TxHash:          "0xaaa",
			LogIndex:        3,
			ContractAddress: "0xbbb",
			ClaimerAddress:  "0xccc",
			Amount:          123456,
			Decimals:        18,
		},
	}
	raw, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Envelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.RoutingKey != want.RoutingKey {
		t.Fatalf("routing key = %s, want %s", got.RoutingKey, want.RoutingKey)
	}
	if got.Claim == nil || *got.Claim != *want.Claim {
		t.Fatalf("claim round-trip mismatch: got %+v, want %+v", got.Claim, want.Claim)
	}
}
