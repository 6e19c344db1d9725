// Package treasury implements weighted proposal voting for spending or
// parameter-change proposals, parallel to block consensus but scoped to
// governance rather than the chain itself.
package treasury

import (
	"errors"
	"sync"

	"github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/masternode"
)

// Status is a proposal's lifecycle stage.
type Status int

const (
	StatusVoting Status = iota
	StatusApproved
	StatusRejected
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusVoting:
		return "voting"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Ballot is Yes, No, or Abstain. Abstain counts toward participation but
// not the approval numerator.
type Ballot int

const (
	BallotYes Ballot = iota
	BallotNo
	BallotAbstain
)

// approvalFraction is the fraction of votes-cast (not registered power)
// required for approval: 67%, per spec.md §4.11.
const approvalFraction = 0.67

// ErrNotFound is returned when a proposal ID is unknown.
var ErrNotFound = errors.New("proposal not found")

// ErrAlreadyDecided is returned when voting on a proposal that has
// already left the Voting status.
var ErrAlreadyDecided = errors.New("proposal voting has already closed")

// Proposal is a treasury governance item.
type Proposal struct {
	ID                string
	Description       string
	VotingDeadline    int64
	ExecutionDeadline int64
	Status            Status
	Executed          bool

	ballots map[string]Ballot // voter ID -> ballot
}

// Manager tracks proposals and their weighted votes.
type Manager struct {
	mu        sync.Mutex
	registry  *masternode.Registry
	proposals map[string]*Proposal
}

// New creates a treasury manager backed by registry for tier-derived
// voting power lookups.
func New(registry *masternode.Registry) *Manager {
	return &Manager{
		registry:  registry,
		proposals: make(map[string]*Proposal),
	}
}

// Propose registers a new proposal in the Voting status.
func (m *Manager) Propose(id, description string, votingDeadline, executionDeadline int64) *Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &Proposal{
		ID:                id,
		Description:       description,
		VotingDeadline:    votingDeadline,
		ExecutionDeadline: executionDeadline,
		Status:            StatusVoting,
		ballots:           make(map[string]Ballot),
	}
	m.proposals[id] = p
	return p
}

// Vote records voter's ballot for proposal id. A duplicate vote from the
// same voter overwrites their prior ballot (a masternode may change its
// mind before the voting deadline closes).
func (m *Manager) Vote(id, voter string, ballot Ballot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusVoting {
		return ErrAlreadyDecided
	}
	p.ballots[voter] = ballot
	return nil
}

// Tally returns the current weighted yes/no/abstain totals for a
// proposal, using each voter's tier-derived voting power.
func (m *Manager) Tally(id string) (yes, no, abstain uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return 0, 0, 0, ErrNotFound
	}
	for voter, ballot := range p.ballots {
		rec, ok := m.registry.Get(voter)
		var power uint32 = 1
		if ok {
			power = rec.VotingPower()
		}
		switch ballot {
		case BallotYes:
			yes += power
		case BallotNo:
			no += power
		case BallotAbstain:
			abstain += power
		}
	}
	return yes, no, abstain, nil
}

// Finalize evaluates a proposal once currentTime has passed its voting
// deadline: Approved if yes votes are >= 67% of all votes cast
// (yes+no+abstain — abstentions count toward participation but not the
// approval numerator), otherwise Rejected. If currentTime has also
// passed the execution deadline and the proposal was approved but
// never executed, it instead transitions to Expired. Calling Finalize
// before the voting deadline, or on a proposal not in Voting status,
// is a no-op.
func (m *Manager) Finalize(id string, currentTime int64) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return StatusVoting, ErrNotFound
	}

	if p.Status == StatusApproved && !p.Executed && currentTime > p.ExecutionDeadline {
		p.Status = StatusExpired
		log.Treasury.Info().Str("proposal", id).Msg("approved proposal expired unexecuted")
		return p.Status, nil
	}

	if p.Status != StatusVoting || currentTime < p.VotingDeadline {
		return p.Status, nil
	}

	yes, no, abstain, _ := m.tallyLocked(p)
	castForDecision := yes + no + abstain
	if castForDecision > 0 && float64(yes)/float64(castForDecision) >= approvalFraction {
		p.Status = StatusApproved
		log.Treasury.Info().Str("proposal", id).Uint32("yes", yes).Uint32("no", no).Msg("proposal approved")
	} else {
		p.Status = StatusRejected
		log.Treasury.Info().Str("proposal", id).Uint32("yes", yes).Uint32("no", no).Msg("proposal rejected")
	}
	return p.Status, nil
}

func (m *Manager) tallyLocked(p *Proposal) (yes, no, abstain uint32, err error) {
	for voter, ballot := range p.ballots {
		rec, ok := m.registry.Get(voter)
		var power uint32 = 1
		if ok {
			power = rec.VotingPower()
		}
		switch ballot {
		case BallotYes:
			yes += power
		case BallotNo:
			no += power
		case BallotAbstain:
			abstain += power
		}
	}
	return yes, no, abstain, nil
}

// MarkExecuted records that an approved proposal has been carried out,
// preventing it from later expiring.
func (m *Manager) MarkExecuted(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return ErrNotFound
	}
	p.Executed = true
	return nil
}

// Get returns the proposal for id, if known.
func (m *Manager) Get(id string) (*Proposal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	return p, ok
}
