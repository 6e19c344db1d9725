package orchestrator

import (
	"sort"

	"github.com/time-coin/timecoin-node/internal/masternode"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// RewardSchedule supplies the economic parameters for block construction
// — an external input, not part of consensus itself (spec.md Non-goals:
// "the economic-reward schedule ... is an input parameter to block
// construction").
type RewardSchedule interface {
	// TreasuryShare returns the fixed treasury payout for height.
	TreasuryShare(height uint64) uint64
	// TierRewardPool returns the total pool split among approvers for
	// height, before per-masternode tier weighting.
	TierRewardPool(height uint64) uint64
}

// BuildCoinbase constructs the height's coinbase transaction: a fixed
// treasury share plus a per-tier reward pool split only among the
// masternodes that voted in the previous round's consensus (approvers).
// Every output is ordered by wallet address so that every node — given
// the same approver set and registry — produces a bit-identical
// transaction (spec §9 "Coinbase determinism across nodes").
func BuildCoinbase(height uint64, treasuryAddr types.Address, approvers []string, registry *masternode.Registry, schedule RewardSchedule) *tx.Transaction {
	outputs := make([]tx.Output, 0, len(approvers)+1)

	if treasury := schedule.TreasuryShare(height); treasury > 0 {
		outputs = append(outputs, tx.Output{
			Value:  treasury,
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: treasuryAddr.Bytes()},
		})
	}

	pool := schedule.TierRewardPool(height)
	if pool > 0 && len(approvers) > 0 {
		outputs = append(outputs, tierRewardOutputs(pool, approvers, registry)...)
	}

	sort.Slice(outputs, func(i, j int) bool {
		return string(outputs[i].Script.Data) < string(outputs[j].Script.Data)
	})

	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{}}},
		Outputs: outputs,
		LockTime: height,
	}
}

// tierRewardOutputs splits pool among approvers proportionally to tier
// weight. Sorted by voter ID first so that remainder distribution
// (below) is itself deterministic.
func tierRewardOutputs(pool uint64, approvers []string, registry *masternode.Registry) []tx.Output {
	sorted := append([]string(nil), approvers...)
	sort.Strings(sorted)

	totalWeight := uint64(0)
	weights := make(map[string]uint64, len(sorted))
	for _, id := range sorted {
		w := uint64(1)
		if rec, ok := registry.Get(id); ok {
			w = uint64(rec.Tier.Weight())
		}
		weights[id] = w
		totalWeight += w
	}
	if totalWeight == 0 {
		return nil
	}

	outputs := make([]tx.Output, 0, len(sorted))
	distributed := uint64(0)
	for i, id := range sorted {
		var share uint64
		if i == len(sorted)-1 {
			share = pool - distributed // remainder goes to the last (sorted) voter
		} else {
			share = pool * weights[id] / totalWeight
			distributed += share
		}
		if share == 0 {
			continue
		}
		var addr types.Address
		if rec, ok := registry.Get(id); ok {
			addr = rec.WalletAddress
		}
		outputs = append(outputs, tx.Output{
			Value:  share,
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: addr.Bytes()},
		})
	}
	return outputs
}
