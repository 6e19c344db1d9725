// Package utxo manages the UTXO set and its per-outpoint state machine.
package utxo

import (
	"errors"
	"fmt"

	"github.com/time-coin/timecoin-node/pkg/types"
)

// State is a variant in the per-outpoint tagged union.
//
//	Unspent -> Locked -> SpentPending -> SpentFinalized -> Confirmed
//
// Locked and SpentPending may roll back to Unspent; SpentFinalized and
// Confirmed are terminal with respect to rollback.
type State uint8

const (
	StateUnspent State = iota
	StateLocked
	StateSpentPending
	StateSpentFinalized
	StateConfirmed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnspent:
		return "unspent"
	case StateLocked:
		return "locked"
	case StateSpentPending:
		return "spent_pending"
	case StateSpentFinalized:
		return "spent_finalized"
	case StateConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// ErrBadStateTransition is returned when a transition is not legal from
// the outpoint's current state.
var ErrBadStateTransition = errors.New("bad state transition")

// UTXO represents an unspent transaction output together with its current
// position in the state machine.
type UTXO struct {
	Outpoint    types.Outpoint `json:"outpoint"`
	Value       uint64         `json:"value"`
	Script      types.Script   `json:"script"`
	Height      uint64         `json:"height"`
	Coinbase    bool           `json:"coinbase"`
	LockedUntil uint64         `json:"locked_until,omitempty"`

	State     State      `json:"state"`
	LockTxID  types.Hash `json:"lock_txid,omitempty"`
	Votes     uint32     `json:"votes,omitempty"`
	Confirmed uint64     `json:"confirmed_height,omitempty"`
}

// StateChange describes a single state-machine transition, delivered to
// subscribers keyed by outpoint or by address.
type StateChange struct {
	Outpoint  types.Outpoint
	OldState  State
	NewState  State
	Address   types.Address
	Amount    uint64
	Timestamp int64
}

// Set is the interface for UTXO storage and its state machine.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(utxo *UTXO) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)

	MarkLocked(outpoint types.Outpoint, txid types.Hash) error
	MarkSpentPending(outpoint types.Outpoint) error
	MarkSpentFinalized(outpoint types.Outpoint) error
	MarkConfirmed(outpoint types.Outpoint, blockHeight uint64) error
	Rollback(outpoint types.Outpoint) error
	IncrementVotes(outpoint types.Outpoint, delta uint32) (uint32, error)

	Subscribe(outpoint types.Outpoint) <-chan StateChange
	SubscribeAddress(addr types.Address) <-chan StateChange
	Unsubscribe(ch <-chan StateChange)
}

// legalTransitions enumerates the state machine's allowed edges.
var legalTransitions = map[State][]State{
	StateUnspent:        {StateLocked},
	StateLocked:         {StateSpentPending, StateUnspent},
	StateSpentPending:   {StateSpentFinalized, StateUnspent},
	StateSpentFinalized: {StateConfirmed},
	StateConfirmed:      {},
}

// checkTransition returns ErrBadStateTransition if to is not reachable from.
func checkTransition(from, to State) error {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadStateTransition, from, to)
}
