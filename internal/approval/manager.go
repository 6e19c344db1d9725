// Package approval implements the block-producer's last-mile decision
// filter: a parallel track to internal/instantfinality that operates on
// explicit Approved/Declined decisions rather than boolean votes, and
// persists finalized decisions in a time-bounded cache.
package approval

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// decisionTTL is how long a finalized decision is retained: 1 hour, per
// spec.md §4.5.
const decisionTTL = time.Hour

// Decision is the outcome for one transaction.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionApproved
	DecisionDeclined
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionApproved:
		return "approved"
	case DecisionDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// Verdict is the finalized decision for a transaction, including the
// aggregated reasons behind any decline.
type Verdict struct {
	Decision Decision
	Reasons  []string
}

// Manager tracks per-masternode decisions for transactions awaiting
// block inclusion. A single Declined decision from any masternode
// finalizes the transaction as rejected — stricter than the
// rejection-quorum rule in internal/instantfinality, because this is
// the last filter before a transaction is permanently sealed in a
// block.
type Manager struct {
	mu       sync.Mutex
	pending  map[types.Hash]map[string]Decision // txid -> voter -> decision
	final    *lru.LRU[types.Hash, *Verdict]
}

// New creates an approval manager whose finalized-decision cache holds
// up to capacity entries, each expiring after one hour.
func New(capacity int) *Manager {
	return &Manager{
		pending: make(map[types.Hash]map[string]Decision),
		final:   lru.NewLRU[types.Hash, *Verdict](capacity, nil, decisionTTL),
	}
}

// Decide records voter's decision for txid. If this is the first
// Declined decision seen for txid, the transaction is immediately
// finalized as Declined. A transaction is also finalized Approved once
// every one of requiredVoters has approved it.
func (m *Manager) Decide(txid types.Hash, voter string, decision Decision, reason string, requiredVoters []string) *Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.final.Get(txid); ok {
		return v
	}

	if decision == DecisionDeclined {
		verdict := &Verdict{Decision: DecisionDeclined, Reasons: []string{reason}}
		m.final.Add(txid, verdict)
		delete(m.pending, txid)
		log.InstantFinality.Info().Str("txid", txid.String()).Str("voter", voter).Str("reason", reason).Msg("transaction declined by approval manager")
		return verdict
	}

	votes, ok := m.pending[txid]
	if !ok {
		votes = make(map[string]Decision)
		m.pending[txid] = votes
	}
	votes[voter] = decision

	if allApproved(votes, requiredVoters) {
		verdict := &Verdict{Decision: DecisionApproved}
		m.final.Add(txid, verdict)
		delete(m.pending, txid)
		return verdict
	}
	return &Verdict{Decision: DecisionPending}
}

// allApproved reports whether every voter in requiredVoters has an
// Approved decision recorded.
func allApproved(votes map[string]Decision, requiredVoters []string) bool {
	if len(requiredVoters) == 0 {
		return false
	}
	for _, voter := range requiredVoters {
		if votes[voter] != DecisionApproved {
			return false
		}
	}
	return true
}

// Lookup returns the finalized verdict for txid, if one exists.
func (m *Manager) Lookup(txid types.Hash) (*Verdict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.final.Get(txid)
}

// Forget discards any pending (not yet finalized) decisions for txid,
// used when a transaction is withdrawn or superseded.
func (m *Manager) Forget(txid types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, txid)
}

// String implements fmt.Stringer for Verdict, useful in log lines.
func (v *Verdict) String() string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%s%v", v.Decision, v.Reasons)
}
