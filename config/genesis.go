package config

import (
	"time"

	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, hardcoded — changes require a hard fork)
// =============================================================================

// Denomination constants.
// 1 coin = 10^8 base units. All on-chain values are in base units.
const (
	Decimals  = 8
	Coin      = 100_000_000 // 10^8 base units per coin
	MilliCoin = 100_000     // 10^5
)

// CoinbaseMaturity is the number of blocks a coinbase output must wait
// before it can be spent. Prevents issues during reorgs.
const CoinbaseMaturity uint64 = 20

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs   = 50_000    // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
	MaxScriptData = 65_536    // 64 KB max script data per output
)

// Block production timing: one block per day.
const BlockInterval = 24 * time.Hour

// =============================================================================
// Genesis addresses
//
// These are raw 20-byte addresses (not derived from any real key — the
// genesis coinbase outputs are unspendable bootstrap allocations held by the
// protocol itself until disbursed by treasury consensus, see §4.11).
// =============================================================================

var (
	genesisTreasuryAddr    = rawGenesisAddr("treasury")
	genesisDevelopmentAddr = rawGenesisAddr("development")
	genesisOperationsAddr  = rawGenesisAddr("operations")
	genesisRewardsAddr     = rawGenesisAddr("rewards")
)

// rawGenesisAddr derives a fixed 20-byte address from a short ASCII label:
// the label fills the leading bytes and the remaining bytes are zero. Used
// only for the four genesis allocations.
func rawGenesisAddr(label string) types.Address {
	var a types.Address
	copy(a[:], label)
	return a
}

// genesisTime is the canonical genesis block timestamp: 2025-10-24T00:00:00Z.
var genesisTime = time.Date(2025, time.October, 24, 0, 0, 0, 0, time.UTC)

// GenesisAllocation in base units, matching the four coinbase outputs.
const (
	GenesisTreasuryAmount   = 50_000_000_000_000
	GenesisDevelopmentAmount = 10_000_000_000_000
	GenesisOperationsAmount  = 10_000_000_000_000
	GenesisRewardsAmount     = 30_000_000_000_000
)

// GenesisTotalSupply is the sum of all genesis allocations.
const GenesisTotalSupply = GenesisTreasuryAmount + GenesisDevelopmentAmount + GenesisOperationsAmount + GenesisRewardsAmount

// GenesisBlock returns the literal embedded genesis block (height 0).
// It is identical across mainnet and testnet: block_number = 0,
// previous_hash and merkle_root are the all-zero hash, and the sole
// coinbase transaction disburses the genesis allocation to the treasury,
// development, operations, and rewards addresses.
func GenesisBlock() *block.Block {
	coinbase := &tx.Transaction{
		Version: 1,
		Inputs: []tx.Input{
			{PrevOut: types.Outpoint{}}, // zero outpoint marks coinbase
		},
		Outputs: []tx.Output{
			{Value: GenesisTreasuryAmount, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: genesisTreasuryAddr.Bytes()}},
			{Value: GenesisDevelopmentAmount, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: genesisDevelopmentAddr.Bytes()}},
			{Value: GenesisOperationsAmount, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: genesisOperationsAddr.Bytes()}},
			{Value: GenesisRewardsAmount, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: genesisRewardsAddr.Bytes()}},
		},
		LockTime: 0,
	}

	txHashes := []types.Hash{coinbase.Hash()}
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   types.Hash{},
		MerkleRoot: block.ComputeMerkleRoot(txHashes),
		Timestamp:  uint64(genesisTime.Unix()),
		Height:     0,
	}

	return block.NewBlock(header, []*tx.Transaction{coinbase})
}

// GenesisHash returns the hash of the literal genesis block header.
func GenesisHash() types.Hash {
	return GenesisBlock().Hash()
}

// TreasuryAddress returns the address that receives each round's fixed
// treasury share (orchestrator.BuildCoinbase's treasuryAddr parameter).
func TreasuryAddress() types.Address {
	return genesisTreasuryAddr
}

// =============================================================================
// Reward schedule (operational input, not a consensus rule — spec.md
// Non-goals: the economic-reward schedule is an input parameter to block
// construction, not part of consensus itself).
// =============================================================================

// DailyTreasuryShare is the fixed treasury payout included in every
// block's coinbase, drawn from the rewards allocation.
const DailyTreasuryShare uint64 = 1_000 * Coin

// DailyTierRewardPool is the total pool split among the masternodes that
// voted for the previous round's finalized block, weighted by tier.
const DailyTierRewardPool uint64 = 9_000 * Coin

// FixedRewardSchedule is the default reward schedule: flat daily amounts
// regardless of height. Satisfies internal/orchestrator.RewardSchedule by
// duck typing (orchestrator has no dependency on config, so there is
// nothing to import here).
type FixedRewardSchedule struct{}

// TreasuryShare returns the fixed per-block treasury payout.
func (FixedRewardSchedule) TreasuryShare(height uint64) uint64 {
	return DailyTreasuryShare
}

// TierRewardPool returns the fixed per-block tier-weighted reward pool.
func (FixedRewardSchedule) TierRewardPool(height uint64) uint64 {
	return DailyTierRewardPool
}
