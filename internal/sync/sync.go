// Package sync implements three-tier chain synchronization: a cheap
// height probe, parallel block-batch fetching for small-to-large gaps,
// and full UTXO-snapshot bootstrapping for very large gaps or forks.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// GapClass buckets the height difference between us and the network's
// consensus height.
type GapClass int

const (
	InSync GapClass = iota
	SmallGap
	MediumGap
	LargeGap
	Critical
)

func (g GapClass) String() string {
	switch g {
	case InSync:
		return "in_sync"
	case SmallGap:
		return "small_gap"
	case MediumGap:
		return "medium_gap"
	case LargeGap:
		return "large_gap"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// ClassifyGap buckets a height gap per spec.md §4.9.
func ClassifyGap(gap uint64, fork bool) GapClass {
	switch {
	case fork || gap > 1000:
		return Critical
	case gap == 0:
		return InSync
	case gap <= 5:
		return SmallGap
	case gap <= 100:
		return MediumGap
	default:
		return LargeGap
	}
}

const (
	batchSize          = 50
	perBlockTimeout    = 5 * time.Second
	perBatchTimeout    = 30 * time.Second
	trustedPeerMinAge  = 5 * time.Hour
	snapshotTailBlocks = 10
	modeSupportFraction = 0.67
)

// ErrNoQuorumHeight is returned when no height value has the required
// support among peer reports.
var ErrNoQuorumHeight = errors.New("no height reached 67% peer support")

// PeerHeight is one peer's self-reported height, used by Tier 1.
type PeerHeight struct {
	PeerID string
	Height uint64
}

// PollHeights finds the modal height among reports and reports whether
// it has at least 67% support (Tier 1, spec §4.9).
func PollHeights(reports []PeerHeight) (height uint64, ok bool) {
	if len(reports) == 0 {
		return 0, false
	}
	counts := make(map[uint64]int)
	for _, r := range reports {
		counts[r.Height]++
	}
	var best uint64
	bestCount := 0
	for h, c := range counts {
		if c > bestCount {
			best, bestCount = h, c
		}
	}
	required := int(float64(len(reports))*modeSupportFraction + 0.999999) // ceil
	return best, bestCount >= required
}

// BlockFetcher downloads blocks from a specific peer. Implemented by
// the P2P layer's syncer; kept as a narrow interface here so this
// package has no dependency on libp2p.
type BlockFetcher interface {
	RequestBlocks(ctx context.Context, peerID string, fromHeight uint64, maxBlocks uint32) ([]*block.Block, error)
	RequestBlockHash(ctx context.Context, peerID string, height uint64) (types.Hash, error)
}

// ChainApplier is the subset of internal/chain.Chain that Tier 2/3 need.
type ChainApplier interface {
	TipHeight() uint64
	TipHash() types.Hash
	AddBlock(blk *block.Block) error
	GetBlock(height uint64) (*block.Block, error)
}

// Progress reports sync completion percentage to callers (UI, logs).
type Progress struct {
	Tier      int
	Completed uint64
	Total     uint64
}

func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return 100 * float64(p.Completed) / float64(p.Total)
}

// Syncer coordinates the three tiers against a ChainApplier and a
// BlockFetcher.
type Syncer struct {
	chain   ChainApplier
	fetcher BlockFetcher
}

// New creates a Syncer over chain and fetcher.
func New(chain ChainApplier, fetcher BlockFetcher) *Syncer {
	return &Syncer{chain: chain, fetcher: fetcher}
}

// TierTwoFetch downloads and imports height..targetHeight (inclusive)
// from peerID in batches of 50, sequentially validated and applied in
// height order. A batch's per-block failures are retried once
// sequentially before the caller is told to escalate to Tier 3.
func (s *Syncer) TierTwoFetch(ctx context.Context, peerID string, targetHeight uint64, onProgress func(Progress)) error {
	start := s.chain.TipHeight() + 1
	total := uint64(0)
	if targetHeight >= start {
		total = targetHeight - start + 1
	}

	for from := start; from <= targetHeight; from += batchSize {
		max := from + batchSize - 1
		if max > targetHeight {
			max = targetHeight
		}
		if err := s.fetchBatch(ctx, peerID, from, uint32(max-from+1)); err != nil {
			return fmt.Errorf("tier2 batch [%d,%d]: %w", from, max, err)
		}
		if onProgress != nil {
			onProgress(Progress{Tier: 2, Completed: max - start + 1, Total: total})
		}
	}
	return nil
}

func (s *Syncer) fetchBatch(ctx context.Context, peerID string, from uint64, count uint32) error {
	batchCtx, cancel := context.WithTimeout(ctx, perBatchTimeout)
	defer cancel()

	blocks, err := s.fetcher.RequestBlocks(batchCtx, peerID, from, count)
	if err != nil {
		return s.retrySequential(ctx, peerID, from, count)
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Header.Height < blocks[j].Header.Height })
	for _, blk := range blocks {
		if err := s.chain.AddBlock(blk); err != nil {
			return fmt.Errorf("apply block %d: %w", blk.Header.Height, err)
		}
	}
	return nil
}

// retrySequential fetches each height in [from, from+count) one at a
// time with a per-block timeout, used when a batch request fails
// outright.
func (s *Syncer) retrySequential(ctx context.Context, peerID string, from uint64, count uint32) error {
	for h := from; h < from+uint64(count); h++ {
		blockCtx, cancel := context.WithTimeout(ctx, perBlockTimeout)
		blocks, err := s.fetcher.RequestBlocks(blockCtx, peerID, h, 1)
		cancel()
		if err != nil || len(blocks) == 0 {
			return fmt.Errorf("retry height %d: %w", h, err)
		}
		if err := s.chain.AddBlock(blocks[0]); err != nil {
			return fmt.Errorf("apply retried block %d: %w", h, err)
		}
	}
	return nil
}

// Snapshot is the Tier 3 bootstrap payload: a UTXO set as of height,
// committed to by utxoMerkleRoot.
type Snapshot struct {
	Height         uint64
	UTXOMerkleRoot types.Hash
	CompressedUTXO []byte
}

// SnapshotSource fetches a trusted snapshot and decompresses/applies it.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, peerID string) (Snapshot, error)
	VerifyAndApply(snap Snapshot) error
}

// TierThreeSync bootstraps from a snapshot at a trusted peer (connected
// >= 5h), then runs Tier 2 for the trailing window to pick up recent
// transactions (spec §4.9).
func (s *Syncer) TierThreeSync(ctx context.Context, peerID string, peerConnectedFor time.Duration, source SnapshotSource, onProgress func(Progress)) error {
	if peerConnectedFor < trustedPeerMinAge {
		return fmt.Errorf("peer %s is not yet trusted for snapshot sync (connected %s, need %s)", peerID, peerConnectedFor, trustedPeerMinAge)
	}

	snap, err := source.FetchSnapshot(ctx, peerID)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	if err := source.VerifyAndApply(snap); err != nil {
		return fmt.Errorf("verify/apply snapshot: %w", err)
	}
	log.Sync.Info().Uint64("height", snap.Height).Msg("snapshot applied")
	if onProgress != nil {
		onProgress(Progress{Tier: 3, Completed: 1, Total: 1})
	}

	// The snapshot already replaces local UTXO state up to snap.Height,
	// so there is nothing to gain from re-fetching the blocks below it:
	// TierTwoFetch starts at chain.TipHeight()+1 (== snap.Height+1 once
	// VerifyAndApply has run) and only ever walks forward. What spec
	// §4.9 calls "the last 10 blocks to pick up recent transactions" is
	// the peer's own chain having advanced past the snapshotted height
	// while it was being transferred; snapshotTailBlocks is the forward
	// catch-up window for that gap, not a backward replay.
	return s.TierTwoFetch(ctx, peerID, snap.Height+snapshotTailBlocks, onProgress)
}

// FindCommonAncestor binary-searches for the highest height at which
// our local hash and the peer's hash agree, given a function to fetch
// the peer's hash at a height. lowHeight is assumed to already agree
// (typically 0, the genesis height).
func FindCommonAncestor(ctx context.Context, lowHeight, highHeight uint64, localHash func(uint64) (types.Hash, error), peerHash func(context.Context, uint64) (types.Hash, error)) (uint64, error) {
	for lowHeight < highHeight {
		mid := lowHeight + (highHeight-lowHeight+1)/2
		lh, err := localHash(mid)
		if err != nil {
			highHeight = mid - 1
			continue
		}
		ph, err := peerHash(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("peer hash at %d: %w", mid, err)
		}
		if lh == ph {
			lowHeight = mid
		} else {
			highHeight = mid - 1
		}
	}
	return lowHeight, nil
}
