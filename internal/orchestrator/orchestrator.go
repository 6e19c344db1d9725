// Package orchestrator coordinates one block round across the seven
// phases in spec.md §4.7: synchronization, leader election, block
// construction, proposal distribution, voting, consensus collection,
// and finalization-or-fallback through a progressive ladder.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/time-coin/timecoin-node/internal/approval"
	"github.com/time-coin/timecoin-node/internal/blockconsensus"
	"github.com/time-coin/timecoin-node/internal/heartbeat"
	"github.com/time-coin/timecoin-node/internal/instantfinality"
	"github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/masternode"
	"github.com/time-coin/timecoin-node/internal/metrics"
	"github.com/time-coin/timecoin-node/internal/vrf"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// Chain is the subset of internal/chain.Chain the orchestrator needs.
type Chain interface {
	TipHeight() uint64
	TipHash() types.Hash
	AddBlock(blk *block.Block) error
}

// Mempool supplies candidate transactions for block construction.
type Mempool interface {
	SelectForBlock(maxBytes int) []*tx.Transaction
}

// Broadcaster distributes proposals/votes/finalized blocks to peers and
// collects heartbeats. Satisfied by a P2P adapter in the final wiring.
type Broadcaster interface {
	CollectHeartbeats(ctx context.Context, timeout time.Duration) []heartbeat.Heartbeat
	BroadcastProposal(ctx context.Context, proposal *block.Block) error
	BroadcastVote(ctx context.Context, height uint64, blockHash types.Hash, approve bool) error
	BroadcastFinalized(ctx context.Context, blk *block.Block) error
}

// Result describes the outcome of one completed round.
type Result struct {
	Height    uint64
	Strategy  string
	Round     int // zero-based refinement round within NormalBFT (0, 1 or 2); always 0 for other strategies
	Block     *block.Block
	IsLeader  bool
	Approvers []string // voters who approved the finalized block, feeds next round's coinbase
}

// Orchestrator runs rounds for a single node, identified by selfID.
type Orchestrator struct {
	selfID         string
	registry       *masternode.Registry
	consensus      *blockconsensus.Manager
	finality       *instantfinality.Manager
	mempool        Mempool
	chain          Chain
	broadcaster    Broadcaster
	schedule       RewardSchedule
	treasuryAddr   types.Address
	maxBlockBytes  int

	// approvals is the optional last-mile decision filter (spec.md
	// §4.5). Nil unless SetApprovalManager is called, in which case
	// buildProposal drops any transaction a masternode operator has
	// explicitly declined before it is ever sealed in a proposal.
	approvals *approval.Manager

	// lastApprovers holds the previous round's approver set, threaded
	// into the next round's coinbase so reward splits follow who
	// actually voted for the last finalized block.
	lastApprovers []string

	// enableEmergencyRound3 opts into the spec's Round 3 "treat the
	// round as successful regardless of vote count" auto-finalize
	// inside NormalBFT. Left off by default: enabling it unconditionally
	// would make the rest of the fallback ladder unreachable, since
	// NormalBFT would then always succeed on its own third attempt.
	// Operators who want it can flip this on for small/trusted
	// deployments.
	enableEmergencyRound3 bool

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates an orchestrator for selfID.
func New(
	selfID string,
	registry *masternode.Registry,
	consensus *blockconsensus.Manager,
	finality *instantfinality.Manager,
	mempool Mempool,
	chain Chain,
	broadcaster Broadcaster,
	schedule RewardSchedule,
	treasuryAddr types.Address,
) *Orchestrator {
	return &Orchestrator{
		selfID:        selfID,
		registry:      registry,
		consensus:     consensus,
		finality:      finality,
		mempool:       mempool,
		chain:         chain,
		broadcaster:   broadcaster,
		schedule:      schedule,
		treasuryAddr:  treasuryAddr,
		maxBlockBytes: 2 << 20,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// SetEmergencyRound3 toggles the optional Round-3 auto-finalize
// behavior described on the enableEmergencyRound3 field.
func (o *Orchestrator) SetEmergencyRound3(enabled bool) {
	o.enableEmergencyRound3 = enabled
}

// SetApprovalManager attaches the last-mile decision filter. Without
// it, buildProposal includes every mempool/instant-finality transaction
// unconditionally.
func (o *Orchestrator) SetApprovalManager(m *approval.Manager) {
	o.approvals = m
}

// SeedApprovers primes the approver set used for the next round's
// coinbase, e.g. with the approvers recorded for the chain's current
// tip. internal/node does not call it, so after a restart the first
// round's coinbase is built with an empty approver set.
func (o *Orchestrator) SeedApprovers(approvers []string) {
	o.lastApprovers = approvers
}

// electLeader runs VRF leader selection (phase 2) over the current
// active set, at the given fallback attempt.
func (o *Orchestrator) electLeader(height uint64, attempt uint64) string {
	active := masternode.IDs(o.registry.Active())
	if len(active) == 0 {
		return ""
	}
	return vrf.Select(active, height, o.chain.TipHash(), attempt)
}

// buildProposal runs block construction (phase 3): gather transactions,
// sort by txid, prepend the coinbase, compute merkle root and header.
func (o *Orchestrator) buildProposal(height uint64, strategy Strategy, previousApprovers []string) *block.Block {
	var txs []*tx.Transaction
	if strategy.MempoolTxs {
		txs = append(txs, o.finality.GetApprovedTransactions()...)
		txs = append(txs, o.mempool.SelectForBlock(o.maxBlockBytes)...)
	}
	txs = o.filterDeclined(txs)

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Hash().String() < txs[j].Hash().String()
	})

	coinbase := BuildCoinbase(height, o.treasuryAddr, previousApprovers, o.registry, o.schedule)
	all := append([]*tx.Transaction{coinbase}, txs...)

	hashes := make([]types.Hash, len(all))
	for i, t := range all {
		hashes[i] = t.Hash()
	}

	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   o.chain.TipHash(),
		MerkleRoot: block.ComputeMerkleRoot(hashes),
		Timestamp:  uint64(o.now().Unix()),
		Height:     height,
	}
	return block.NewBlock(header, all)
}

// filterDeclined drops any transaction the approval manager has
// finalized as Declined. Pending or Approved transactions, and every
// transaction when no approval manager is attached, pass through
// unchanged.
func (o *Orchestrator) filterDeclined(txs []*tx.Transaction) []*tx.Transaction {
	if o.approvals == nil {
		return txs
	}
	out := txs[:0]
	for _, t := range txs {
		if v, ok := o.approvals.Lookup(t.Hash()); ok && v.Decision == approval.DecisionDeclined {
			log.Orchestrator.Warn().Str("txid", t.Hash().String()).Msg("dropping declined transaction from proposal")
			continue
		}
		out = append(out, t)
	}
	return out
}

// RunRound executes one complete round for the chain's next height,
// advancing the fallback ladder until consensus is reached or the
// overall round time budget is exhausted. The approver set from the
// previous successful round (if any) is threaded automatically into
// this round's coinbase.
func (o *Orchestrator) RunRound(ctx context.Context) (*Result, error) {
	height := o.chain.TipHeight() + 1
	deadline := o.now().Add(maxTotalRoundTime)
	previousApprovers := o.lastApprovers

	hbs := o.broadcaster.CollectHeartbeats(ctx, 30*time.Second)
	responded := len(hbs)
	metrics.HeartbeatsReceivedTotal.Add(float64(responded))
	expected := len(o.registry.Active())
	metrics.ActiveMasternodes.Set(float64(expected))
	if ok, _ := heartbeat.ResponseRate(expected, responded); !ok {
		log.Orchestrator.Warn().Uint64("height", height).Msg("phase 1 timeout: insufficient heartbeat responses")
	}
	agreement := heartbeat.Evaluate(hbs)
	if !agreement.Reached {
		log.Orchestrator.Warn().Uint64("height", height).Msg("phase 1: no chain agreement, proceeding under emergency rules")
	}

	for attempt, strategy := range Ladder {
		if o.now().After(deadline) {
			return nil, fmt.Errorf("round for height %d exceeded max total time", height)
		}

		result, reached, round := o.runStrategy(ctx, height, uint64(attempt), strategy, previousApprovers)
		if reached {
			o.lastApprovers = result.Approvers
			metrics.RoundsTotal.WithLabelValues(result.Strategy).Inc()
			return result, nil
		}
		metrics.FallbackAttemptsTotal.Inc()
		log.Orchestrator.Warn().Uint64("height", height).Str("strategy", strategy.Name).Int("round", round).Msg("strategy failed to reach consensus, advancing ladder")
	}

	metrics.RoundsExhaustedTotal.Inc()
	return nil, fmt.Errorf("round for height %d exhausted the fallback ladder", height)
}

// runStrategy executes phases 2-7 for a single ladder rung.
func (o *Orchestrator) runStrategy(ctx context.Context, height, attempt uint64, strategy Strategy, previousApprovers []string) (*Result, bool, int) {
	leader := o.electLeader(height, attempt)
	isLeader := leader == o.selfID

	var proposal *block.Block
	if isLeader {
		proposal = o.buildProposal(height, strategy, previousApprovers)
		o.consensus.Propose(proposal)
		o.consensus.Vote(height, proposal.Hash(), o.selfID, true)
		metrics.VotesReceivedTotal.WithLabelValues("true").Inc()
		if err := o.broadcaster.BroadcastProposal(ctx, proposal); err != nil {
			log.Orchestrator.Error().Err(err).Msg("failed to broadcast proposal")
		}
	} else if existing, ok := o.consensus.Proposal(height); ok {
		proposal = existing
		err := blockconsensus.Validate(proposal, o.chain.TipHash(), o.chain.TipHeight())
		approve := err == nil
		o.consensus.Vote(height, proposal.Hash(), o.selfID, approve)
		metrics.VotesReceivedTotal.WithLabelValues(fmt.Sprint(approve)).Inc()
		o.broadcaster.BroadcastVote(ctx, height, proposal.Hash(), approve)
	}

	if proposal == nil {
		return nil, false, 0
	}

	round := 0
	reached := o.awaitConsensus(strategy, height, proposal.Hash())
	if !reached && strategy.Name == "NormalBFT" {
		round = 1
		reached = o.refineMostRecentVersion(height, proposal.Hash())
		if !reached && o.enableEmergencyRound3 {
			round = 2
			reached = true
			metrics.EmergencyRoundsTotal.Inc()
			log.Orchestrator.Warn().Uint64("height", height).Msg("NormalBFT round 3: emergency auto-success")
		}
	}

	if !reached {
		o.consensus.Purge(height)
		return nil, false, round
	}

	approvers := o.consensus.Approvers(height, proposal.Hash())
	_, approvals, total := o.consensus.HasConsensus(height, proposal.Hash())
	metrics.ApprovalPercentage.Set(metrics.ApprovalPct(approvals, total))
	if err := o.chain.AddBlock(proposal); err != nil {
		log.Orchestrator.Error().Err(err).Uint64("height", height).Msg("failed to append finalized block")
		return nil, false, round
	}
	metrics.ChainHeight.Set(float64(height))
	o.broadcaster.BroadcastFinalized(ctx, proposal)
	o.consensus.Purge(height)

	return &Result{Height: height, Strategy: strategy.Name, Round: round, Block: proposal, IsLeader: isLeader, Approvers: approvers}, true, round
}

// awaitConsensus polls HasConsensus until strategy's threshold is met
// or its timeout elapses. A zero Timeout (Emergency) is checked once,
// without waiting for further votes.
func (o *Orchestrator) awaitConsensus(strategy Strategy, height uint64, blockHash types.Hash) bool {
	deadline := o.now().Add(strategy.Timeout)
	for {
		if o.strategyReached(strategy, height, blockHash) {
			return true
		}
		if strategy.Timeout <= 0 { // Emergency: single check, no polling
			return false
		}
		if o.now().After(deadline) {
			return false
		}
		o.sleep(10 * time.Millisecond)
	}
}

// strategyReached evaluates the ladder rung's own threshold fraction
// (not blockconsensus.Manager's fixed 2/3 BFT rule, which only backs
// NormalBFT/LeaderRotation) against the current approvals/total.
func (o *Orchestrator) strategyReached(strategy Strategy, height uint64, blockHash types.Hash) bool {
	_, approvals, total := o.consensus.HasConsensus(height, blockHash)
	return approvals >= RequiredVotes(strategy, total)
}

// refineMostRecentVersion is Round 2 of NormalBFT refinement: restrict
// the vote pool to masternodes on the most recent observed
// (commit_count, build_timestamp) version and re-evaluate. Lacking a
// live version feed here, callers that care about this refinement
// should have already excluded stale-version voters from the active
// set before RunRound; this hook re-checks consensus against the
// current (possibly now-reduced) approvers/active set.
func (o *Orchestrator) refineMostRecentVersion(height uint64, blockHash types.Hash) bool {
	return o.strategyReached(Ladder[0], height, blockHash)
}
