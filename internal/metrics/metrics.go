// Package metrics exposes the node's consensus and chain-health counters
// and gauges over Prometheus, the same event surface as
// original_source/consensus/src/monitoring.rs's ConsensusMonitor but
// scraped rather than logged: round outcomes, heartbeat/vote volume,
// fallback-ladder advances, and the chain/mempool/masternode gauges the
// health loop already tracks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundsTotal counts completed rounds by the ladder rung that
	// finalized them ("NormalBFT", "LeaderRotation", "Emergency", ...).
	RoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timecoin_consensus_rounds_total",
		Help: "Completed consensus rounds, labeled by the strategy that finalized them.",
	}, []string{"strategy"})

	// RoundsExhaustedTotal counts rounds that ran out the entire
	// fallback ladder without reaching consensus (ConsensusFailed in
	// the original's event model).
	RoundsExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timecoin_consensus_rounds_exhausted_total",
		Help: "Rounds that exhausted the fallback ladder without reaching consensus.",
	})

	// FallbackAttemptsTotal counts ladder advances: a strategy's
	// timeout expired without reaching its required vote threshold.
	FallbackAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timecoin_consensus_fallback_attempts_total",
		Help: "Ladder advances after a strategy failed to reach consensus within its timeout.",
	})

	// EmergencyRoundsTotal counts NormalBFT rounds finalized via the
	// optional Round 3 auto-success path.
	EmergencyRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timecoin_consensus_emergency_rounds_total",
		Help: "Rounds finalized via Round 3 emergency auto-success.",
	})

	// HeartbeatsReceivedTotal counts phase-1 heartbeat responses
	// collected across all rounds.
	HeartbeatsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timecoin_heartbeats_received_total",
		Help: "Heartbeat responses collected during phase 1 of all rounds.",
	})

	// VotesReceivedTotal counts block-consensus ballots recorded,
	// whether cast locally (leader self-vote, follower validation) or
	// received over p2p gossip.
	VotesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timecoin_consensus_votes_received_total",
		Help: "Block-consensus votes recorded, labeled by approve/reject.",
	}, []string{"approve"})

	// ApprovalPercentage is the number of approving votes as a percentage
	// of the active-set size in the most recently finalized round; every
	// vote counts once, regardless of tier.
	ApprovalPercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timecoin_consensus_approval_percentage",
		Help: "Approving votes as a percentage of the active-set size in the most recently finalized round.",
	})

	// ChainHeight is the current local chain tip height.
	ChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timecoin_chain_height",
		Help: "Current chain tip height.",
	})

	// ActiveMasternodes is the number of masternodes currently in
	// Active or Degraded status (the consensus active set).
	ActiveMasternodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timecoin_active_masternodes",
		Help: "Masternodes currently in Active or Degraded status.",
	})

	// ExpiredMasternodesTotal counts masternodes the health loop has
	// downgraded because their quarantine expired with misses persisting.
	ExpiredMasternodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timecoin_masternode_expirations_total",
		Help: "Masternodes marked inactive by the health loop for missed heartbeats.",
	})

	// MempoolSize is the current number of transactions held in the
	// mempool.
	MempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timecoin_mempool_size",
		Help: "Transactions currently held in the mempool.",
	})
)

// ApprovalPct computes approvals/total as a percentage for ApprovalPercentage,
// returning 0 when total is 0 rather than dividing by zero.
func ApprovalPct(approvals, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(approvals) / float64(total) * 100
}
