// Package health implements the per-masternode rolling health state
// machine: response-time EWMA, consecutive-miss counting, and the
// Active/Degraded/Quarantined/Downgraded/Offline transitions.
package health

import (
	"sync"
	"time"

	"github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/masternode"
	"github.com/time-coin/timecoin-node/internal/metrics"
)

const (
	// responseAlpha is the EWMA smoothing factor for response time.
	responseAlpha = 0.3
	// degradedThresholdMS marks a node Degraded above this response time.
	degradedThresholdMS = 2000.0
	// recoveryThresholdMS is how fast a Degraded node must respond,
	// sustained, to return to Active.
	recoveryThresholdMS = 1000.0
	// missLimit is the consecutive-miss count that triggers quarantine.
	missLimit = 3
	// quarantineDuration is how long a node is excluded before becoming
	// eligible to return to Active (or Downgraded if misses persisted).
	quarantineDuration = 3600 * time.Second
	// sustainedRecoverySamples is how many consecutive sub-threshold
	// responses are required before a Degraded node recovers.
	sustainedRecoverySamples = 3
)

// peerState is the tracker's private bookkeeping for one masternode.
type peerState struct {
	avgResponseMS     float64
	consecutiveMisses int
	recoveryStreak    int
	quarantinedAt     time.Time
	votesCast         uint32
	votesExpected     uint32
}

// Tracker drives masternode.Registry status transitions from observed
// heartbeat/response data.
type Tracker struct {
	mu       sync.Mutex
	registry *masternode.Registry
	peers    map[string]*peerState
	now      func() time.Time
}

// New creates a health tracker over registry. now defaults to
// time.Now when nil; tests may override it for deterministic
// quarantine-expiry checks.
func New(registry *masternode.Registry, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		registry: registry,
		peers:    make(map[string]*peerState),
		now:      now,
	}
}

func (t *Tracker) state(id string) *peerState {
	s, ok := t.peers[id]
	if !ok {
		s = &peerState{}
		t.peers[id] = s
	}
	return s
}

// RecordResponse records a successful response of responseMS latency
// for id, updates its EWMA, clears its miss streak, and applies the
// Active/Degraded/recovery transitions.
func (t *Tracker) RecordResponse(id string, responseMS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(id)
	if s.avgResponseMS == 0 {
		s.avgResponseMS = responseMS
	} else {
		s.avgResponseMS = 0.7*s.avgResponseMS + responseAlpha*responseMS
	}
	s.consecutiveMisses = 0

	rec, ok := t.registry.Get(id)
	if !ok {
		return
	}

	switch rec.Status {
	case masternode.StatusQuarantined, masternode.StatusDowngraded:
		// Quarantine clears only through CheckExpirations; Downgraded is permanent.
		return
	case masternode.StatusDegraded:
		if responseMS < recoveryThresholdMS {
			s.recoveryStreak++
			if s.recoveryStreak >= sustainedRecoverySamples {
				t.registry.SetStatus(id, masternode.StatusActive)
				s.recoveryStreak = 0
				log.Health.Info().Str("node", id).Msg("recovered to active")
			}
		} else {
			s.recoveryStreak = 0
		}
	default:
		if s.avgResponseMS > degradedThresholdMS {
			t.registry.SetStatus(id, masternode.StatusDegraded)
			log.Health.Warn().Str("node", id).Float64("avg_ms", s.avgResponseMS).Msg("degraded: response time above threshold")
		} else {
			t.registry.SetStatus(id, masternode.StatusActive)
		}
	}
}

// RecordMiss records a missed heartbeat/response for id. Three
// consecutive misses quarantine the node for one hour.
func (t *Tracker) RecordMiss(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(id)
	s.consecutiveMisses++
	s.recoveryStreak = 0

	if s.consecutiveMisses >= missLimit {
		rec, ok := t.registry.Get(id)
		if ok && rec.Status != masternode.StatusQuarantined && rec.Status != masternode.StatusDowngraded {
			t.registry.SetStatus(id, masternode.StatusQuarantined)
			s.quarantinedAt = t.now()
			log.Health.Warn().Str("node", id).Int("misses", s.consecutiveMisses).Msg("quarantined after consecutive misses")
		}
	}
}

// RecordVoteExpected increments the expected-vote counter for a round,
// and RecordVoteCast increments the cast counter; ParticipationRate
// reports votesCast/votesExpected.
func (t *Tracker) RecordVoteExpected(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(id).votesExpected++
}

func (t *Tracker) RecordVoteCast(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(id).votesCast++
}

// ParticipationRate returns votes_cast / votes_expected for id.
func (t *Tracker) ParticipationRate(id string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(id)
	if s.votesExpected == 0 {
		return 0
	}
	return float64(s.votesCast) / float64(s.votesExpected)
}

// CheckExpirations walks every tracked peer and applies the lazy
// quarantine-expiry transition: a Quarantined node whose misses have
// cleared becomes Active once the quarantine window elapses; one whose
// misses persisted becomes permanently Downgraded.
func (t *Tracker) CheckExpirations() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, s := range t.peers {
		rec, ok := t.registry.Get(id)
		if !ok || rec.Status != masternode.StatusQuarantined {
			continue
		}
		if t.now().Sub(s.quarantinedAt) < quarantineDuration {
			continue
		}
		if s.consecutiveMisses >= missLimit {
			t.registry.SetStatus(id, masternode.StatusDowngraded)
			metrics.ExpiredMasternodesTotal.Inc()
			log.Health.Warn().Str("node", id).Msg("downgraded: quarantine expired with misses persisting")
		} else {
			t.registry.SetStatus(id, masternode.StatusActive)
			log.Health.Info().Str("node", id).Msg("quarantine expired, returned to active")
		}
	}
}

// AverageResponseMS exposes the current EWMA for id, for diagnostics.
func (t *Tracker) AverageResponseMS(id string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(id).avgResponseMS
}
