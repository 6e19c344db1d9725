package chain

import (
	"fmt"

	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// Reverser is the escape hatch a chain reorganization uses to unwind
// transactions that were finalized under a block being rolled back. It
// is satisfied by internal/instantfinality.Manager; kept as a narrow
// local interface so this package does not import the consensus layer.
type Reverser interface {
	Reverse(txid types.Hash, reason string) error
}

// Reorg rolls the chain back to forkHeight (exclusive of forkHeight+1
// onward), invoking reverser.Reverse for every non-coinbase transaction
// in each discarded block — the invariant spec.md §4.4 flags, so that
// every input those transactions locked returns to Unspent — and then
// appends newBlocks as the replacement chain from forkHeight+1.
//
// Rolling back the outputs a discarded block created is a direct delete
// (they were never valid on the winning fork); rolling back the inputs
// those transactions spent relies entirely on Reverser.Reverse, since
// the chain store keeps no historical UTXO snapshot to replay from.
func (c *Chain) Reorg(forkHeight uint64, newBlocks []*block.Block, reverser Reverser) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if forkHeight > c.tipHeight {
		return fmt.Errorf("reorg fork height %d is above current tip %d", forkHeight, c.tipHeight)
	}

	for h := c.tipHeight; h > forkHeight; h-- {
		blk, err := c.getBlockLocked(h)
		if err != nil {
			return fmt.Errorf("load block %d for rollback: %w", h, err)
		}
		if err := c.unwindBlockLocked(blk, reverser); err != nil {
			return fmt.Errorf("unwind block %d: %w", h, err)
		}
	}

	forkBlock, err := c.getBlockLocked(forkHeight)
	if err != nil {
		return fmt.Errorf("load fork-point block %d: %w", forkHeight, err)
	}
	c.tipHeight = forkHeight
	c.tipHash = forkBlock.Hash()
	if err := c.setTipLocked(forkHeight); err != nil {
		return err
	}

	for _, blk := range newBlocks {
		if blk.Header.Height != c.tipHeight+1 {
			return fmt.Errorf("%w: have tip %d, got replacement block at %d", ErrHeightGap, c.tipHeight, blk.Header.Height)
		}
		if blk.Header.PrevHash != c.tipHash {
			return fmt.Errorf("%w: tip=%s block.prev=%s", ErrPrevHashMismatch, c.tipHash, blk.Header.PrevHash)
		}
		if err := c.storeBlockLocked(blk); err != nil {
			return err
		}
		if err := applyBlock(c.set, blk); err != nil {
			return fmt.Errorf("apply replacement block %d: %w", blk.Header.Height, err)
		}
		c.tipHeight = blk.Header.Height
		c.tipHash = blk.Hash()
		if err := c.setTipLocked(blk.Header.Height); err != nil {
			return err
		}
	}
	return nil
}

// unwindBlockLocked reverses a single discarded block: every non-coinbase
// transaction is handed to reverser.Reverse (unlocking its inputs back
// to Unspent), and every output the block created is deleted from the
// UTXO set.
func (c *Chain) unwindBlockLocked(blk *block.Block, reverser Reverser) error {
	for _, t := range blk.Transactions {
		coinbase := len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsZero()
		txHash := t.Hash()

		if !coinbase && reverser != nil {
			if err := reverser.Reverse(txHash, "chain reorganization"); err != nil {
				return fmt.Errorf("reverse tx %s: %w", txHash, err)
			}
		}

		for i := range t.Outputs {
			op := types.Outpoint{TxID: txHash, Index: uint32(i)}
			if err := c.set.Delete(op); err != nil {
				return fmt.Errorf("delete orphaned output %s: %w", op, err)
			}
		}
	}
	return nil
}
