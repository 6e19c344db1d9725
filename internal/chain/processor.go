package chain

import (
	"fmt"

	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// applyBlock updates the UTXO set for every transaction in blk: inputs
// already tracked through the instant-finality pipeline move
// SpentFinalized -> Confirmed; any input not in that state (e.g. a
// coinbase spend path that bypassed §4.4) is removed directly. New
// outputs are inserted as fresh Unspent UTXOs at the block's height.
func applyBlock(set utxo.Set, blk *block.Block) error {
	for _, t := range blk.Transactions {
		if err := applyTransaction(set, t, blk.Header.Height); err != nil {
			return err
		}
	}
	return nil
}

func applyTransaction(set utxo.Set, t *tx.Transaction, height uint64) error {
	txHash := t.Hash()
	coinbase := len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsZero()

	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if err := set.MarkConfirmed(in.PrevOut, height); err != nil {
			// Input never went through the instant-finality pipeline
			// (e.g. block assembled directly from a trusted source
			// during sync) — remove it outright.
			if delErr := set.Delete(in.PrevOut); delErr != nil {
				return fmt.Errorf("spend input %s: %w", in.PrevOut, delErr)
			}
		}
	}

	for i, out := range t.Outputs {
		op := types.Outpoint{TxID: txHash, Index: uint32(i)}
		u := &utxo.UTXO{
			Outpoint: op,
			Value:    out.Value,
			Script:   out.Script,
			Height:   height,
			Coinbase: coinbase,
			State:    utxo.StateUnspent,
		}
		if err := set.Put(u); err != nil {
			return fmt.Errorf("insert output %s: %w", op, err)
		}
	}
	return nil
}

// applyCoinbase applies only the genesis coinbase transaction — used by
// Chain.New before any block-level machinery exists.
func applyCoinbase(set utxo.Set, coinbase *tx.Transaction, height uint64) error {
	return applyTransaction(set, coinbase, height)
}
