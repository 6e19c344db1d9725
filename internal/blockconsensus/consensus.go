// Package blockconsensus tallies votes on proposed blocks, one round per
// height, with first-proposal-wins intake and validation against the
// current chain tip.
package blockconsensus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/masternode"
	"github.com/time-coin/timecoin-node/internal/vote"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// ErrInvalidProposal is returned when a proposal fails the tip-linkage
// check in Validate.
var ErrInvalidProposal = errors.New("proposal does not extend the current tip")

// Manager is the block consensus tally for the current in-flight
// height(s). It retains history for the sweep window so stragglers
// voting late on a just-finalized height are still answered correctly.
type Manager struct {
	mu        sync.Mutex
	proposals map[uint64]*block.Block // height -> first-accepted proposal
	votes     *vote.Collector
	registry  *masternode.Registry
}

// New creates a block consensus manager backed by registry for active-set
// lookups.
func New(registry *masternode.Registry) *Manager {
	return &Manager{
		proposals: make(map[uint64]*block.Block),
		votes:     vote.New(),
		registry:  registry,
	}
}

// Propose registers proposal as the canonical candidate for its height,
// if none has been accepted yet. Returns false if a proposal for that
// height already exists — first proposer wins.
func (m *Manager) Propose(proposal *block.Block) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	height := proposal.Header.Height
	if _, exists := m.proposals[height]; exists {
		return false
	}
	m.proposals[height] = proposal
	log.Consensus.Debug().Uint64("height", height).Str("hash", proposal.Hash().String()).Msg("proposal accepted")
	return true
}

// Validate checks that proposal legally extends the chain described by
// tipHash/tipHeight.
func Validate(proposal *block.Block, tipHash types.Hash, tipHeight uint64) error {
	if proposal.Header.PrevHash != tipHash {
		return fmt.Errorf("%w: prev_hash=%s tip=%s", ErrInvalidProposal, proposal.Header.PrevHash, tipHash)
	}
	if proposal.Header.Height != tipHeight+1 {
		return fmt.Errorf("%w: height=%d want=%d", ErrInvalidProposal, proposal.Header.Height, tipHeight+1)
	}
	return nil
}

// Vote records voter's ballot for the block at height with the given
// hash. Duplicate (height, hash, voter) ballots are silently dropped by
// the underlying collector. Unknown voters are auto-registered as
// Active to handle a masternode appearing mid-round.
func (m *Manager) Vote(height uint64, blockHash types.Hash, voter string, approve bool) {
	if _, ok := m.registry.Get(voter); !ok {
		m.registry.Register(&masternode.Record{ID: voter, Status: masternode.StatusActive})
		log.Consensus.Info().Str("voter", voter).Msg("auto-registered unknown voter mid-round")
	}
	m.votes.Record(subject(height, blockHash), voter, approve, height)
}

// HasConsensus reports whether the block at height/blockHash has
// reached 2/3 of the current active masternode set.
func (m *Manager) HasConsensus(height uint64, blockHash types.Hash) (reached bool, approvals int, totalActive int) {
	totalActive = len(m.registry.Active())
	return m.votes.CheckConsensus(subject(height, blockHash), totalActive, vote.ModeBFT)
}

// Approvers returns the voters who approved the block at height/hash.
func (m *Manager) Approvers(height uint64, blockHash types.Hash) []string {
	return m.votes.Approvers(subject(height, blockHash))
}

// Proposal returns the accepted proposal for height, if any.
func (m *Manager) Proposal(height uint64) (*block.Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.proposals[height]
	return b, ok
}

// Purge discards the proposal for height and sweeps vote tallies recorded
// more than 10 heights below it; tallies recorded at height itself are
// kept. Called after finalization and after a failed ladder strategy.
func (m *Manager) Purge(height uint64) {
	m.mu.Lock()
	delete(m.proposals, height)
	m.mu.Unlock()
	m.votes.Sweep(height)
}

func subject(height uint64, blockHash types.Hash) string {
	return fmt.Sprintf("%d:%s", height, blockHash)
}
