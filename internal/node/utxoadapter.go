package node

import (
	"fmt"

	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// utxoAdapter narrows an internal/utxo.Set down to pkg/tx.UTXOProvider, the
// read-only view the mempool and transaction validation need. Only outputs
// still in the base Unspent state are spendable: once an output enters the
// instant-finality pipeline (Locked onward) it must not be picked up as an
// input for a second, competing transaction.
type utxoAdapter struct {
	set utxo.Set
}

func newUTXOAdapter(set utxo.Set) *utxoAdapter {
	return &utxoAdapter{set: set}
}

func (a *utxoAdapter) GetUTXO(outpoint types.Outpoint) (uint64, types.Script, error) {
	u, err := a.set.Get(outpoint)
	if err != nil {
		return 0, types.Script{}, fmt.Errorf("lookup utxo %s: %w", outpoint, err)
	}
	if u.State != utxo.StateUnspent {
		return 0, types.Script{}, fmt.Errorf("utxo %s not spendable (state=%s)", outpoint, u.State)
	}
	return u.Value, u.Script, nil
}

func (a *utxoAdapter) HasUTXO(outpoint types.Outpoint) bool {
	u, err := a.set.Get(outpoint)
	if err != nil {
		return false
	}
	return u.State == utxo.StateUnspent
}
