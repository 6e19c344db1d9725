// Package vrf implements deterministic, verifiable pseudo-random leader
// election from block height.
package vrf

import (
	"encoding/binary"
	"sort"

	"github.com/time-coin/timecoin-node/pkg/crypto"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// seedDomain tags the hash input so it can never collide with another
// protocol's use of the same hash function.
const seedDomain = "time-vrf-v1"

// Seed computes the canonical leader-election seed for a block height.
// previousHash is accepted for API symmetry with the source protocol but
// is never mixed into the seed: nodes at different sync heights would
// otherwise disagree on the elected leader for the same round.
func Seed(blockHeight uint64, previousHash types.Hash) types.Hash {
	_ = previousHash // intentionally unused — see the doc comment above.
	buf := make([]byte, len(seedDomain)+8)
	copy(buf, seedDomain)
	binary.BigEndian.PutUint64(buf[len(seedDomain):], blockHeight)
	return crypto.Hash(buf)
}

// Select deterministically picks a leader from masternodes for
// blockHeight, at the given retry attempt (0 on the first try). The
// list is sorted lexicographically before selection so that every node
// computes the same index regardless of input ordering (P1, P2).
func Select(masternodes []string, blockHeight uint64, previousHash types.Hash, attempt uint64) string {
	if len(masternodes) == 0 {
		return ""
	}
	sorted := append([]string(nil), masternodes...)
	sort.Strings(sorted)

	seed := Seed(blockHeight, previousHash)
	seedUint := binary.BigEndian.Uint64(seed[:8])
	index := (seedUint + attempt) % uint64(len(sorted))
	return sorted[index]
}

// Proof computes the commitment proof for a selection: H(seed || leader_id).
// This is a commitment, not an IND-CPA VRF, but is sufficient because the
// seed is public and deterministic (see spec discussion).
func Proof(blockHeight uint64, previousHash types.Hash, leaderID string) types.Hash {
	seed := Seed(blockHeight, previousHash)
	buf := make([]byte, types.HashSize+len(leaderID))
	copy(buf, seed[:])
	copy(buf[types.HashSize:], leaderID)
	return crypto.Hash(buf)
}

// VerifyProof recomputes the proof and compares byte-wise.
func VerifyProof(blockHeight uint64, previousHash types.Hash, leaderID string, proof types.Hash) bool {
	return Proof(blockHeight, previousHash, leaderID) == proof
}
