package node

import (
	"context"
	"sync"
	"time"

	"github.com/time-coin/timecoin-node/internal/heartbeat"
	"github.com/time-coin/timecoin-node/internal/p2p"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// p2pBroadcaster adapts a *p2p.Node into internal/orchestrator.Broadcaster,
// keeping the orchestrator package itself free of any libp2p dependency
// (the same narrow-interface convention the teacher uses between
// internal/miner and internal/node).
type p2pBroadcaster struct {
	p2pNode *p2p.Node

	mu         sync.Mutex
	heartbeats map[string]heartbeat.Heartbeat

	onHeartbeat func(*p2p.HeartbeatMessage)
}

func newP2PBroadcaster(p2pNode *p2p.Node) *p2pBroadcaster {
	b := &p2pBroadcaster{
		p2pNode:    p2pNode,
		heartbeats: make(map[string]heartbeat.Heartbeat),
	}
	p2pNode.SetHeartbeatHandler(func(msg *p2p.HeartbeatMessage) {
		b.mu.Lock()
		b.heartbeats[msg.NodeID] = msg.ToHeartbeat()
		onHeartbeat := b.onHeartbeat
		b.mu.Unlock()
		if onHeartbeat != nil {
			onHeartbeat(msg)
		}
	})
	return b
}

// SetOnHeartbeat registers an additional callback invoked for every
// heartbeat alongside the round-collection buffering above, so the node's
// health tracker sees every heartbeat rather than only the ones still
// buffered at the moment a round samples them.
func (b *p2pBroadcaster) SetOnHeartbeat(fn func(*p2p.HeartbeatMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onHeartbeat = fn
}

// CollectHeartbeats waits up to timeout for heartbeats to arrive on the
// gossip topic and returns whatever was received. The buffer is cleared at
// the start of every round so stale heartbeats from a prior round never
// leak into the next one's agreement check.
func (b *p2pBroadcaster) CollectHeartbeats(ctx context.Context, timeout time.Duration) []heartbeat.Heartbeat {
	b.mu.Lock()
	b.heartbeats = make(map[string]heartbeat.Heartbeat)
	b.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]heartbeat.Heartbeat, 0, len(b.heartbeats))
	for _, hb := range b.heartbeats {
		out = append(out, hb)
	}
	return out
}

// BroadcastProposal publishes a candidate block on the proposal topic.
func (b *p2pBroadcaster) BroadcastProposal(ctx context.Context, proposal *block.Block) error {
	return b.p2pNode.BroadcastProposal(proposal)
}

// BroadcastVote publishes this node's ballot on the vote topic.
func (b *p2pBroadcaster) BroadcastVote(ctx context.Context, height uint64, blockHash types.Hash, approve bool) error {
	return b.p2pNode.BroadcastVote(&p2p.VoteMessage{
		Height:    height,
		BlockHash: blockHash,
		Voter:     b.p2pNode.ID().String(),
		Approve:   approve,
	})
}

// BroadcastFinalized announces a finalized block on its own topic, and also
// on the ordinary block topic so non-masternode light clients that only
// track TopicBlocks still see it.
func (b *p2pBroadcaster) BroadcastFinalized(ctx context.Context, blk *block.Block) error {
	if err := b.p2pNode.BroadcastFinalized(blk); err != nil {
		return err
	}
	return b.p2pNode.BroadcastBlock(blk)
}
