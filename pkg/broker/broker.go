// Package broker defines the message envelope and publish/subscribe surface
// the indexer and orchestrator use to hand off clone/claim requests, kept
// transport-agnostic so pkg/broker/amqp is the only package that knows about
// AMQP routing keys and exchanges.
package broker

import (
	"context"
	"encoding/json"
)

// RoutingKey names the two routes the orchestrator exposes.
type RoutingKey string

const (
	RoutingKeyClone RoutingKey = "vamp.clone"
	RoutingKeyClaim RoutingKey = "vamp.claim"
)

// CloneRequested mirrors the indexer's decoded CloneRequested log, carrying
// the common indexed-event envelope fields plus the clone-specific payload.
// JobID is the XOR-folded correlation id the orchestrator uses to resolve
// the event back to the intent that was registered for it, via
// RequestStore.GetBySequenceID.
type CloneRequested struct {
	ChainID         int64  `json:"chain_id"`
	BlockNumber     uint64 `json:"block_number"`
	TxHash          string `json:"tx_hash"`
	LogIndex        uint   `json:"log_index"`
	ContractAddress string `json:"contract_address"`
	JobID           uint64 `json:"job_id"`
	Erc20Address    string `json:"erc20_address"`
	RequestedBy     string `json:"requested_by"`
}

// ClaimRequested mirrors the indexer's decoded ClaimRequested log.
// OwnerSignature is the claimer's 65-byte Ethereum-prefixed signature over
// the balance hash, hex-encoded with a "0x" prefix; the orchestrator's claim
// route verifies it before building a destination-chain claim instruction.
type ClaimRequested struct {
	ChainID                   int64  `json:"chain_id"`
	BlockNumber               uint64 `json:"block_number"`
	TxHash                    string `json:"tx_hash"`
	LogIndex                  uint   `json:"log_index"`
	ContractAddress           string `json:"contract_address"`
	JobID                     uint64 `json:"job_id"`
	ClaimerAddress            string `json:"claimer_address"`
	Amount                    uint64 `json:"amount"`
	Decimals                  uint8  `json:"decimals"`
	OwnerSignature            string `json:"owner_signature"`
	ClaimerDestinationAddress string `json:"claimer_destination_address"`
}

// Envelope is the wire message published onto a routing key. Exactly one of
// Clone/Claim is populated, matching RoutingKey.
type Envelope struct {
	RoutingKey RoutingKey      `json:"routing_key"`
	Clone      *CloneRequested `json:"clone,omitempty"`
	Claim      *ClaimRequested `json:"claim,omitempty"`
}

// Marshal serializes the envelope for transport.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Delivery is a single received message; Ack/Nack control broker
// acknowledgement. Consumers must only Ack after the state CAS the message
// triggers has either succeeded or been classified as a non-retryable
// logical denial — never ack before durable state has settled.
type Delivery struct {
	Envelope Envelope
	Ack      func() error
	Nack     func(requeue bool) error
}

// Publisher sends envelopes onto a routing key.
type Publisher interface {
	Publish(ctx context.Context, key RoutingKey, env Envelope) error
	Close() error
}

// Subscriber delivers envelopes for a routing key to handler until ctx is
// canceled or handler returns a fatal error.
type Subscriber interface {
	Subscribe(ctx context.Context, key RoutingKey, handler func(context.Context, Delivery) error) error
	Close() error
}
