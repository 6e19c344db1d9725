package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// VoteMessage is a single masternode's ballot on a height/block-hash pair,
// broadcast during orchestrator phase 5 (voting).
type VoteMessage struct {
	Height    uint64     `json:"height"`
	BlockHash types.Hash `json:"block_hash"`
	Voter     string     `json:"voter"`
	Approve   bool       `json:"approve"`
}

// JoinProposal joins the block-proposal GossipSub topic and starts reading.
func (n *Node) JoinProposal() error {
	if n.pubsub == nil {
		return fmt.Errorf("p2p node not started")
	}
	if n.topicProposal != nil {
		return nil
	}

	topic, err := n.pubsub.Join(TopicProposal)
	if err != nil {
		return fmt.Errorf("join proposal topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return fmt.Errorf("subscribe proposal topic: %w", err)
	}
	n.topicProposal = topic
	n.subProposal = sub

	go n.proposalReadLoop()
	return nil
}

// SetProposalHandler registers a callback for incoming block proposals.
func (n *Node) SetProposalHandler(fn func(*block.Block)) {
	n.proposalHandler = fn
}

// BroadcastProposal publishes a candidate block to the proposal topic.
func (n *Node) BroadcastProposal(blk *block.Block) error {
	if n.topicProposal == nil {
		return fmt.Errorf("proposal topic not joined")
	}
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	return n.topicProposal.Publish(n.ctx, data)
}

func (n *Node) proposalReadLoop() {
	for {
		msg, err := n.subProposal.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		var blk block.Block
		if err := json.Unmarshal(msg.Data, &blk); err != nil {
			continue
		}
		if n.proposalHandler != nil {
			func() {
				defer func() { recover() }()
				n.proposalHandler(&blk)
			}()
		}
	}
}

// JoinVote joins the vote GossipSub topic and starts reading.
func (n *Node) JoinVote() error {
	if n.pubsub == nil {
		return fmt.Errorf("p2p node not started")
	}
	if n.topicVote != nil {
		return nil
	}

	topic, err := n.pubsub.Join(TopicVote)
	if err != nil {
		return fmt.Errorf("join vote topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return fmt.Errorf("subscribe vote topic: %w", err)
	}
	n.topicVote = topic
	n.subVote = sub

	go n.voteReadLoop()
	return nil
}

// SetVoteHandler registers a callback for incoming votes.
func (n *Node) SetVoteHandler(fn func(*VoteMessage)) {
	n.voteHandler = fn
}

// BroadcastVote publishes a ballot to the vote topic.
func (n *Node) BroadcastVote(msg *VoteMessage) error {
	if n.topicVote == nil {
		return fmt.Errorf("vote topic not joined")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal vote: %w", err)
	}
	return n.topicVote.Publish(n.ctx, data)
}

func (n *Node) voteReadLoop() {
	for {
		msg, err := n.subVote.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		var vote VoteMessage
		if err := json.Unmarshal(msg.Data, &vote); err != nil {
			continue
		}
		if n.voteHandler != nil {
			func() {
				defer func() { recover() }()
				n.voteHandler(&vote)
			}()
		}
	}
}

// JoinFinalized joins the finalized-block GossipSub topic and starts reading.
// Kept distinct from TopicBlocks: a block can reach finalization through the
// fallback ladder (RewardOnly, Emergency) without ever having propagated as
// an ordinary gossiped block, so finalization is announced on its own topic.
func (n *Node) JoinFinalized() error {
	if n.pubsub == nil {
		return fmt.Errorf("p2p node not started")
	}
	if n.topicFinalized != nil {
		return nil
	}

	topic, err := n.pubsub.Join(TopicFinalized)
	if err != nil {
		return fmt.Errorf("join finalized topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return fmt.Errorf("subscribe finalized topic: %w", err)
	}
	n.topicFinalized = topic
	n.subFinalized = sub

	go n.finalizedReadLoop()
	return nil
}

// SetFinalizedHandler registers a callback for finalized-block announcements.
func (n *Node) SetFinalizedHandler(fn func(*block.Block)) {
	n.finalizedHandler = fn
}

// BroadcastFinalized publishes a finalized block to the finalized topic.
func (n *Node) BroadcastFinalized(blk *block.Block) error {
	if n.topicFinalized == nil {
		return fmt.Errorf("finalized topic not joined")
	}
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("marshal finalized block: %w", err)
	}
	return n.topicFinalized.Publish(n.ctx, data)
}

func (n *Node) finalizedReadLoop() {
	for {
		msg, err := n.subFinalized.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		var blk block.Block
		if err := json.Unmarshal(msg.Data, &blk); err != nil {
			continue
		}
		if n.finalizedHandler != nil {
			func() {
				defer func() { recover() }()
				n.finalizedHandler(&blk)
			}()
		}
	}
}
