// Package intent defines the durable request record that flows through the
// vamp control plane: its identity, lifecycle states and the legal
// transitions between them.
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// State is a lifecycle stage in the intent state machine.
type State string

const (
	StateNew             State = "New"
	StateValidated       State = "Validated"
	StateUnderExecution  State = "UnderExecution"
	StateExecuted        State = "Executed"
)

// ErrIllegalTransition is returned when a caller asks for a transition not
// present in the state DAG.
var ErrIllegalTransition = errors.New("intent: illegal state transition")

// legalEdges enumerates the state DAG: New -> Validated -> UnderExecution ->
// Executed, plus the New -> UnderExecution skip the orchestrator uses when
// the validated step is optional for a route.
var legalEdges = map[State]map[State]bool{
	StateNew: {
		StateValidated:      true,
		StateUnderExecution: true,
	},
	StateValidated: {
		StateUnderExecution: true,
	},
	StateUnderExecution: {
		StateExecuted: true,
	},
	StateExecuted: {},
}

// CanTransition reports whether from -> to is a legal edge in the DAG.
func CanTransition(from, to State) bool {
	edges, ok := legalEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ID is the 32-byte immutable intent identifier.
type ID [32]byte

// SequenceID is the densely-allocated, globally monotonic 64-bit identifier
// assigned by the store at registration.
type SequenceID uint64

// Intent is the durable request record. Identity (ID, SequenceID) is
// immutable once assigned; State, SchemaVersion, Data and ProtoData are
// mutated only by the orchestrator.
type Intent struct {
	ID           ID              `json:"intent_id"`
	SequenceID   SequenceID      `json:"sequence_id"`
	State        State           `json:"state"`
	SchemaVersion uint32         `json:"schema_version"`
	Data         json.RawMessage `json:"data"`
	ProtoData    []byte          `json:"proto_data"` // hex-encoded on the wire, raw here
}

// Transition validates and applies from -> New state on a copy of the
// intent, leaving the receiver untouched. Callers persisting the result are
// expected to go through the store's CAS, not this helper directly; it
// exists so the state machine's legality check has one place to live.
func (i Intent) Transition(to State) (Intent, error) {
	if !CanTransition(i.State, to) {
		return Intent{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, i.State, to)
	}
	next := i
	next.State = to
	return next, nil
}
