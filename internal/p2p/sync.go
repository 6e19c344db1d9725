package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/types"
)

const (
	// SyncProtocol is the protocol ID for chain synchronization.
	SyncProtocol = protocol.ID("/timecoin/sync/1.0.0")

	// BlockHashProtocol is the protocol ID for querying the block hash at
	// a given height, used by internal/sync.FindCommonAncestor.
	BlockHashProtocol = protocol.ID("/timecoin/blockhash/1.0.0")

	// syncReadTimeout is the max time to read a sync response.
	syncReadTimeout = 30 * time.Second

	// maxSyncResponseBytes limits sync response size (10 MB).
	maxSyncResponseBytes = 10 * 1024 * 1024
)

// SyncRequest asks a peer for blocks starting at a given height.
type SyncRequest struct {
	FromHeight uint64 `json:"from_height"`
	MaxBlocks  uint32 `json:"max_blocks"`
}

// SyncResponse contains blocks returned by a peer.
type SyncResponse struct {
	Blocks []*block.Block `json:"blocks"`
}

// BlockHashRequest asks a peer for the block hash at a specific height.
type BlockHashRequest struct {
	Height uint64 `json:"height"`
}

// BlockHashResponse carries the requested block hash, or a zero hash if
// the peer does not have a block at that height.
type BlockHashResponse struct {
	Hash types.Hash `json:"hash"`
}

// Syncer handles chain synchronization with peers. It implements
// internal/sync.BlockFetcher so the sync package can drive Tier 2/3
// recovery without depending on libp2p directly.
type Syncer struct {
	node *Node
	host host.Host

	// BlockHandler processes blocks received during sync.
	BlockHandler func(*block.Block) error
}

// NewSyncer creates a new chain syncer attached to the given node.
func NewSyncer(node *Node) *Syncer {
	return &Syncer{
		node: node,
		host: node.host,
	}
}

// RegisterHandler registers the sync stream handler on the host.
// The provider function returns blocks for a given height range.
func (s *Syncer) RegisterHandler(provider func(fromHeight uint64, max uint32) []*block.Block) {
	s.host.SetStreamHandler(SyncProtocol, func(stream network.Stream) {
		defer stream.Close()

		var req SyncRequest
		if err := json.NewDecoder(io.LimitReader(stream, maxSyncResponseBytes)).Decode(&req); err != nil {
			return
		}

		if req.MaxBlocks == 0 || req.MaxBlocks > 500 {
			req.MaxBlocks = 500
		}

		blocks := provider(req.FromHeight, req.MaxBlocks)
		resp := SyncResponse{Blocks: blocks}
		json.NewEncoder(stream).Encode(&resp)
	})
}

// RegisterBlockHashHandler registers the block-hash-at-height handler used
// by peers running FindCommonAncestor against this node.
func (s *Syncer) RegisterBlockHashHandler(hashAt func(height uint64) (types.Hash, bool)) {
	s.host.SetStreamHandler(BlockHashProtocol, func(stream network.Stream) {
		defer stream.Close()

		var req BlockHashRequest
		if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&req); err != nil {
			return
		}

		hash, _ := hashAt(req.Height)
		json.NewEncoder(stream).Encode(&BlockHashResponse{Hash: hash})
	})
}

// RequestBlocks asks a specific peer for blocks starting at fromHeight.
// Satisfies internal/sync.BlockFetcher.
func (s *Syncer) RequestBlocks(ctx context.Context, peerID string, fromHeight uint64, maxBlocks uint32) ([]*block.Block, error) {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return nil, fmt.Errorf("decode peer id: %w", err)
	}
	return s.requestBlocks(ctx, pid, SyncProtocol, fromHeight, maxBlocks)
}

// RequestBlockHash asks a peer for its block hash at height. Satisfies
// internal/sync.BlockFetcher.
func (s *Syncer) RequestBlockHash(ctx context.Context, peerID string, height uint64) (types.Hash, error) {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return types.Hash{}, fmt.Errorf("decode peer id: %w", err)
	}

	stream, err := s.host.NewStream(ctx, pid, BlockHashProtocol)
	if err != nil {
		return types.Hash{}, fmt.Errorf("open blockhash stream: %w", err)
	}
	defer stream.Close()

	if err := json.NewEncoder(stream).Encode(&BlockHashRequest{Height: height}); err != nil {
		return types.Hash{}, fmt.Errorf("send blockhash request: %w", err)
	}
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(heightReadTimeout))

	var resp BlockHashResponse
	if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&resp); err != nil {
		return types.Hash{}, fmt.Errorf("read blockhash response: %w", err)
	}
	return resp.Hash, nil
}

// requestBlocks is the shared implementation for block requests.
func (s *Syncer) requestBlocks(ctx context.Context, peerID peer.ID, proto protocol.ID, fromHeight uint64, maxBlocks uint32) ([]*block.Block, error) {
	stream, err := s.host.NewStream(ctx, peerID, proto)
	if err != nil {
		return nil, fmt.Errorf("open sync stream: %w", err)
	}
	defer stream.Close()

	req := SyncRequest{FromHeight: fromHeight, MaxBlocks: maxBlocks}
	if err := json.NewEncoder(stream).Encode(&req); err != nil {
		return nil, fmt.Errorf("send sync request: %w", err)
	}

	// Signal we're done writing.
	stream.CloseWrite()

	// Read response with timeout.
	_ = stream.SetReadDeadline(time.Now().Add(syncReadTimeout))

	var resp SyncResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxSyncResponseBytes)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read sync response: %w", err)
	}

	return resp.Blocks, nil
}
