// Package heartbeat implements pre-round chain-agreement sanity: every
// masternode reports its (height, tip_hash), and the pair with at least
// two-thirds agreement is canonical.
package heartbeat

import (
	"github.com/time-coin/timecoin-node/pkg/types"
)

// Heartbeat is one masternode's self-reported position and identity,
// broadcast at the start of each orchestrator round (spec §4.7 phase 1).
type Heartbeat struct {
	NodeID         string
	Timestamp      int64
	BlockHeight    uint64
	ChainTipHash   types.Hash
	Tier           string
	Version        string
	Reputation     float64
	DaysActive     uint32
}

type tip struct {
	height uint64
	hash   types.Hash
}

// Agreement is the outcome of evaluating a batch of heartbeats.
type Agreement struct {
	// Canonical is the (height, hash) pair with >= 2/3 agreement, if one
	// exists.
	CanonicalHeight uint64
	CanonicalHash   types.Hash
	Reached         bool
	// InAgreement holds the node IDs whose tip matches the canonical
	// pair; Desynced holds everyone else.
	InAgreement []string
	Desynced    []string
}

// Evaluate finds the most common (height, tip_hash) pair among
// heartbeats and reports whether it is held by at least two-thirds of
// them.
func Evaluate(heartbeats []Heartbeat) Agreement {
	if len(heartbeats) == 0 {
		return Agreement{}
	}

	counts := make(map[tip]int)
	byTip := make(map[tip][]string)
	for _, hb := range heartbeats {
		k := tip{hb.BlockHeight, hb.ChainTipHash}
		counts[k]++
		byTip[k] = append(byTip[k], hb.NodeID)
	}

	var best tip
	bestCount := 0
	for k, c := range counts {
		if c > bestCount {
			best = k
			bestCount = c
		}
	}

	required := Required(len(heartbeats))
	reached := bestCount >= required

	agreement := Agreement{
		CanonicalHeight: best.height,
		CanonicalHash:   best.hash,
		Reached:         reached,
	}
	if !reached {
		for _, hb := range heartbeats {
			agreement.Desynced = append(agreement.Desynced, hb.NodeID)
		}
		return agreement
	}

	for k, ids := range byTip {
		if k == best {
			agreement.InAgreement = append(agreement.InAgreement, ids...)
		} else {
			agreement.Desynced = append(agreement.Desynced, ids...)
		}
	}
	return agreement
}

// Required computes ceil(2*n/3), the same BFT fraction used elsewhere
// in the consensus stack.
func Required(n int) int {
	return (2*n + 2) / 3
}

// ResponseRate reports expected vs. responded nodes, used by Phase 1 to
// decide whether to proceed at all (>= 2/3 of expected nodes must
// respond before agreement is even evaluated).
func ResponseRate(expected, responded int) (ok bool, required int) {
	required = Required(expected)
	return responded >= required, required
}
