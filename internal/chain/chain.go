// Package chain stores the canonical sequence of daily consensus blocks
// and applies their transactions to the UTXO set.
package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/time-coin/timecoin-node/internal/storage"
	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// Chain errors.
var (
	ErrBlockNotFound   = errors.New("block not found")
	ErrHeightGap       = errors.New("block height is not the next expected height")
	ErrPrevHashMismatch = errors.New("block previous_hash does not match current tip")
	ErrAlreadyHaveTip  = errors.New("block already present at this height")
)

// Key prefixes for the block store.
var (
	prefixBlockByHeight = []byte("b/") // b/<height be64> -> block JSON
	prefixHashToHeight  = []byte("h/") // h/<hash> -> height be64
	keyTipHeight        = []byte("m/tip_height")
)

// Chain holds the canonical block sequence, guarded by a single
// read-write mutex (single-writer/many-reader), matching the teacher's
// original chain-store concurrency pattern.
type Chain struct {
	mu  sync.RWMutex
	db  storage.DB
	set utxo.Set

	tipHeight uint64
	tipHash   types.Hash
	hasTip    bool
}

// New creates a Chain backed by db, applying the genesis block if the
// store is empty.
func New(db storage.DB, set utxo.Set, genesis *block.Block) (*Chain, error) {
	c := &Chain{db: db, set: set}

	if err := c.loadTip(); err != nil {
		return nil, err
	}
	if !c.hasTip {
		if err := c.appendGenesis(genesis); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
	}
	return c, nil
}

func (c *Chain) loadTip() error {
	data, err := c.db.Get(keyTipHeight)
	if err != nil {
		// No tip recorded yet — fresh store.
		return nil
	}
	if len(data) != 8 {
		return fmt.Errorf("corrupt tip height record")
	}
	height := binary.BigEndian.Uint64(data)
	blk, err := c.getBlockLocked(height)
	if err != nil {
		return fmt.Errorf("load tip block at height %d: %w", height, err)
	}
	c.tipHeight = height
	c.tipHash = blk.Hash()
	c.hasTip = true
	return nil
}

func (c *Chain) appendGenesis(genesis *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storeBlockLocked(genesis); err != nil {
		return err
	}
	for _, coinbase := range genesis.Transactions {
		if err := applyCoinbase(c.set, coinbase, genesis.Header.Height); err != nil {
			return err
		}
	}
	c.tipHeight = genesis.Header.Height
	c.tipHash = genesis.Hash()
	c.hasTip = true
	return c.setTipLocked(genesis.Header.Height)
}

// TipHeight returns the current chain height.
func (c *Chain) TipHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipHeight
}

// TipHash returns the hash of the current tip block.
func (c *Chain) TipHash() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipHash
}

// GetBlock returns the block at the given height.
func (c *Chain) GetBlock(height uint64) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getBlockLocked(height)
}

func (c *Chain) getBlockLocked(height uint64) (*block.Block, error) {
	data, err := c.db.Get(blockKey(height))
	if err != nil {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("unmarshal block %d: %w", height, err)
	}
	return &blk, nil
}

// GetBlockByHash returns the block with the given header hash.
func (c *Chain) GetBlockByHash(hash types.Hash) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.db.Get(hashKey(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: hash %s", ErrBlockNotFound, hash)
	}
	if len(data) != 8 {
		return nil, fmt.Errorf("corrupt hash index entry for %s", hash)
	}
	return c.getBlockLocked(binary.BigEndian.Uint64(data))
}

// AddBlock appends a new block as the next height, applying its
// transactions against the UTXO set. The block must already be
// consensus-validated by the caller (orchestrator/blockconsensus); this
// layer only enforces height contiguity and prev-hash linkage, and
// performs the UTXO state transitions.
func (c *Chain) AddBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk.Header.Height != c.tipHeight+1 {
		return fmt.Errorf("%w: have tip %d, got block at %d", ErrHeightGap, c.tipHeight, blk.Header.Height)
	}
	if blk.Header.PrevHash != c.tipHash {
		return fmt.Errorf("%w: tip=%s block.prev=%s", ErrPrevHashMismatch, c.tipHash, blk.Header.PrevHash)
	}

	if err := c.storeBlockLocked(blk); err != nil {
		return err
	}
	if err := applyBlock(c.set, blk); err != nil {
		return fmt.Errorf("apply block %d: %w", blk.Header.Height, err)
	}

	c.tipHeight = blk.Header.Height
	c.tipHash = blk.Hash()
	return c.setTipLocked(blk.Header.Height)
}

func (c *Chain) storeBlockLocked(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	if err := c.db.Put(blockKey(blk.Header.Height), data); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	heightBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBuf, blk.Header.Height)
	if err := c.db.Put(hashKey(blk.Hash()), heightBuf); err != nil {
		return fmt.Errorf("store hash index: %w", err)
	}
	return nil
}

func (c *Chain) setTipLocked(height uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return c.db.Put(keyTipHeight, buf)
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(prefixBlockByHeight)+8)
	copy(key, prefixBlockByHeight)
	binary.BigEndian.PutUint64(key[len(prefixBlockByHeight):], height)
	return key
}

func hashKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixHashToHeight)+types.HashSize)
	copy(key, prefixHashToHeight)
	copy(key[len(prefixHashToHeight):], hash[:])
	return key
}
