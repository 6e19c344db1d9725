// Package instantfinality implements the per-transaction fast path from
// wallet submission to finality: lock inputs, tally votes, and finalize
// or reject without waiting for block inclusion.
package instantfinality

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/internal/vote"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// Status is a submitted transaction's lifecycle stage.
type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

var (
	// ErrDoubleSpend is returned by Submit when an input is already
	// locked by a different transaction.
	ErrDoubleSpend = errors.New("double spend: input already locked")
	// ErrNotFound is returned when the txid is unknown to the manager.
	ErrNotFound = errors.New("transaction not found")
	// ErrWrongStatus is returned when an operation requires a status the
	// entry is not currently in.
	ErrWrongStatus = errors.New("transaction is not in the required status")
)

// Entry tracks one submitted transaction through its lifecycle.
type Entry struct {
	Transaction   *tx.Transaction
	Status        Status
	Approvals     int
	TotalVoters   int
	RejectReason  string
	BlockHeight   uint64
}

// Manager is the instant-finality pipeline (spec §4.4). It is safe for
// concurrent use.
type Manager struct {
	mu      sync.RWMutex
	utxos   utxo.Set
	votes   *vote.Collector
	entries map[types.Hash]*Entry
	height  func() uint64
}

// New creates an instant-finality manager backed by set for UTXO state
// transitions. height reports the current chain height, used to stamp
// vote-collector entries for the retention sweep.
func New(set utxo.Set, height func() uint64) *Manager {
	return &Manager{
		utxos:   set,
		votes:   vote.New(),
		entries: make(map[types.Hash]*Entry),
		height:  height,
	}
}

// Submit locks every input of t and registers it as pending. If any
// input is already locked by a different transaction, the whole
// submission fails and no state changes are made.
func (m *Manager) Submit(t *tx.Transaction) (types.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txid := t.Hash()
	if _, ok := m.entries[txid]; ok {
		return txid, nil // already submitted, idempotent
	}

	locked := make([]types.Outpoint, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		existing, err := m.utxos.Get(in.PrevOut)
		if err != nil {
			m.rollbackLocks(locked)
			return types.Hash{}, fmt.Errorf("submit: input %s: %w", in.PrevOut, err)
		}
		if existing.State != utxo.StateUnspent {
			m.rollbackLocks(locked)
			log.InstantFinality.Warn().Str("txid", txid.String()).Str("outpoint", in.PrevOut.String()).Msg("double spend attempt rejected")
			return types.Hash{}, ErrDoubleSpend
		}
		if err := m.utxos.MarkLocked(in.PrevOut, txid); err != nil {
			m.rollbackLocks(locked)
			return types.Hash{}, fmt.Errorf("submit: lock %s: %w", in.PrevOut, err)
		}
		locked = append(locked, in.PrevOut)
	}

	m.entries[txid] = &Entry{Transaction: t, Status: StatusPending}
	log.InstantFinality.Debug().Str("txid", txid.String()).Int("inputs", len(locked)).Msg("transaction submitted")
	return txid, nil
}

// rollbackLocks unwinds outpoints that were locked before a later input
// in the same submission failed.
func (m *Manager) rollbackLocks(outpoints []types.Outpoint) {
	for _, op := range outpoints {
		if err := m.utxos.Rollback(op); err != nil {
			log.InstantFinality.Error().Err(err).Str("outpoint", op.String()).Msg("failed to roll back partial lock")
		}
	}
}

// RecordVote tallies voter's ballot for txid and advances the entry's
// status if quorum (for approval) or rejection-quorum (for impossible
// approval) has been reached.
func (m *Manager) RecordVote(txid types.Hash, voter string, approve bool, totalVoters int) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[txid]
	if !ok {
		return StatusRejected, ErrNotFound
	}
	if entry.Status != StatusPending {
		return entry.Status, nil
	}

	subject := txid.String()
	m.votes.Record(subject, voter, approve, m.height())
	entry.TotalVoters = totalVoters

	required := vote.Required(totalVoters)
	approvals := len(m.votes.Approvers(subject))
	rejections := len(m.votes.Rejectors(subject))
	entry.Approvals = approvals

	if totalVoters < 3 || approvals >= required {
		m.finalizeApproved(txid, entry)
		return entry.Status, nil
	}

	remaining := totalVoters - approvals - rejections
	if approvals+remaining < required {
		m.finalizeRejected(txid, entry, "rejection quorum reached")
		return entry.Status, nil
	}
	return entry.Status, nil
}

// finalizeApproved transitions every locked input to SpentFinalized and
// marks the entry Approved. Caller must hold m.mu.
func (m *Manager) finalizeApproved(txid types.Hash, entry *Entry) {
	for _, in := range entry.Transaction.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if err := m.utxos.MarkSpentPending(in.PrevOut); err != nil {
			log.InstantFinality.Error().Err(err).Str("outpoint", in.PrevOut.String()).Msg("mark spent pending failed during approval")
			continue
		}
		if err := m.utxos.MarkSpentFinalized(in.PrevOut); err != nil {
			log.InstantFinality.Error().Err(err).Str("outpoint", in.PrevOut.String()).Msg("mark spent finalized failed during approval")
		}
	}
	entry.Status = StatusApproved
	log.InstantFinality.Info().Str("txid", txid.String()).Int("approvals", entry.Approvals).Msg("transaction approved")
}

// finalizeRejected unlocks every input and marks the entry Rejected.
// Caller must hold m.mu.
func (m *Manager) finalizeRejected(txid types.Hash, entry *Entry, reason string) {
	for _, in := range entry.Transaction.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if err := m.utxos.Rollback(in.PrevOut); err != nil {
			log.InstantFinality.Error().Err(err).Str("outpoint", in.PrevOut.String()).Msg("rollback failed during rejection")
		}
	}
	entry.Status = StatusRejected
	entry.RejectReason = reason
	log.InstantFinality.Info().Str("txid", txid.String()).Str("reason", reason).Msg("transaction rejected")
}

// MarkConfirmed requires the entry's current status to be Approved, and
// transitions its inputs SpentFinalized -> Confirmed at blockHeight.
func (m *Manager) MarkConfirmed(txid types.Hash, blockHeight uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[txid]
	if !ok {
		return ErrNotFound
	}
	if entry.Status != StatusApproved {
		return fmt.Errorf("%w: status is %s", ErrWrongStatus, entry.Status)
	}
	for _, in := range entry.Transaction.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if err := m.utxos.MarkConfirmed(in.PrevOut, blockHeight); err != nil {
			return fmt.Errorf("mark confirmed %s: %w", in.PrevOut, err)
		}
	}
	entry.Status = StatusConfirmed
	entry.BlockHeight = blockHeight
	return nil
}

// Reverse is the escape hatch invoked by chain reorganizations
// (internal/chain.Reverser): the entry is marked Rejected and its
// inputs unlocked, regardless of current status.
func (m *Manager) Reverse(txid types.Hash, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[txid]
	if !ok {
		return nil // nothing to reverse; tolerate unknown txids from reorg
	}
	m.finalizeRejected(txid, entry, reason)
	return nil
}

// Status returns the current lifecycle status for txid.
func (m *Manager) Status(txid types.Hash) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[txid]
	if !ok {
		return StatusRejected, false
	}
	return entry.Status, true
}

// GetApprovedTransactions returns every Approved transaction, sorted by
// txid, for consumption by block construction (spec §4.7 phase 3).
func (m *Manager) GetApprovedTransactions() []*tx.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type keyed struct {
		id types.Hash
		t  *tx.Transaction
	}
	out := make([]keyed, 0)
	for id, entry := range m.entries {
		if entry.Status == StatusApproved {
			out = append(out, keyed{id, entry.Transaction})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })

	result := make([]*tx.Transaction, len(out))
	for i, k := range out {
		result[i] = k.t
	}
	return result
}

// Sweep evicts vote-collector history older than 10 blocks.
func (m *Manager) Sweep(currentHeight uint64) {
	m.votes.Sweep(currentHeight)
}
