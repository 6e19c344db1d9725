// Package masternode holds the registry of nodes participating in
// consensus: identity, tier, reputation, and voting weight.
package masternode

import (
	"sort"
	"sync"

	"github.com/time-coin/timecoin-node/pkg/types"
)

// Tier is a masternode's stake tier. Tier drives reward share and, with
// reputation and days-active, vote weight.
type Tier string

const (
	TierFree   Tier = "free"
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// weight is the relative voting power contributed by each tier.
var weight = map[Tier]uint32{
	TierFree:   1,
	TierBronze: 2,
	TierSilver: 4,
	TierGold:   8,
}

// Weight returns the tier's relative voting power. Unknown tiers weigh
// the same as Free.
func (t Tier) Weight() uint32 {
	if w, ok := weight[t]; ok {
		return w
	}
	return weight[TierFree]
}

// Status is a masternode's health-tracker state (internal/health owns
// the transition logic; this is just the label carried on the record).
type Status string

const (
	StatusActive      Status = "active"
	StatusDegraded    Status = "degraded"
	StatusQuarantined Status = "quarantined"
	StatusDowngraded  Status = "downgraded"
	StatusOffline     Status = "offline"
)

// Record is a registered masternode.
type Record struct {
	ID              string
	WalletAddress   types.Address
	Tier            Tier
	RegisteredAt    int64
	ReputationScore float64
	LastHeartbeat   int64
	Status          Status
	DaysActive      uint32
	// VotingPowerOverride, when non-nil, replaces the tier-derived
	// weight. Used for treasury proposals where voting power is
	// assigned directly rather than derived from stake tier.
	VotingPowerOverride *uint32
}

// Registry is the concurrent-safe set of known masternodes.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Register adds or replaces a masternode record.
func (r *Registry) Register(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
}

// Get returns the record for id, if known.
func (r *Registry) Get(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// All returns every known record, sorted by ID for determinism.
func (r *Registry) All() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns every record currently in Active or Degraded status —
// the set counted in consensus denominators (spec glossary: "Active
// set"). Degraded nodes are still counted per §4.10.
func (r *Registry) Active() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		if rec.Status == StatusActive || rec.Status == StatusDegraded {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs extracts the ID field from a slice of records, in the same order.
func IDs(records []*Record) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}

// SetStatus updates a masternode's health status in place.
func (r *Registry) SetStatus(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.Status = status
	}
}

// VotingPower returns a masternode's treasury voting power, derived from
// tier (§4.11: "voting power (tier-derived)") unless VotingPowerOverride
// is set.
func (rec *Record) VotingPower() uint32 {
	if rec.VotingPowerOverride != nil {
		return *rec.VotingPowerOverride
	}
	return rec.Tier.Weight()
}
