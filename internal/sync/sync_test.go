package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

func TestClassifyGap(t *testing.T) {
	cases := []struct {
		gap  uint64
		fork bool
		want GapClass
	}{
		{0, false, InSync},
		{1, false, SmallGap},
		{5, false, SmallGap},
		{6, false, MediumGap},
		{100, false, MediumGap},
		{101, false, LargeGap},
		{1000, false, LargeGap},
		{1001, false, Critical},
		{3, true, Critical},
	}
	for _, c := range cases {
		if got := ClassifyGap(c.gap, c.fork); got != c.want {
			t.Errorf("ClassifyGap(%d, %v) = %s, want %s", c.gap, c.fork, got, c.want)
		}
	}
}

func TestPollHeights_ModeWithSupport(t *testing.T) {
	reports := []PeerHeight{
		{"n1", 100}, {"n2", 100}, {"n3", 100}, {"n4", 90},
	}
	h, ok := PollHeights(reports)
	if !ok || h != 100 {
		t.Fatalf("PollHeights = (%d, %v), want (100, true)", h, ok)
	}
}

func TestPollHeights_NoQuorum(t *testing.T) {
	reports := []PeerHeight{{"n1", 100}, {"n2", 90}, {"n3", 80}}
	_, ok := PollHeights(reports)
	if ok {
		t.Error("a 3-way split should not reach 67% support")
	}
}

type stubChain struct {
	tipHeight uint64
	tipHash   types.Hash
	blocks    map[uint64]*block.Block
}

func newStubChain() *stubChain {
	return &stubChain{blocks: make(map[uint64]*block.Block)}
}

func (c *stubChain) TipHeight() uint64     { return c.tipHeight }
func (c *stubChain) TipHash() types.Hash   { return c.tipHash }
func (c *stubChain) GetBlock(h uint64) (*block.Block, error) {
	b, ok := c.blocks[h]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}
func (c *stubChain) AddBlock(blk *block.Block) error {
	if blk.Header.Height != c.tipHeight+1 {
		return errors.New("height gap")
	}
	c.blocks[blk.Header.Height] = blk
	c.tipHeight = blk.Header.Height
	c.tipHash = blk.Hash()
	return nil
}

func makeBlockAt(height uint64) *block.Block {
	coinbase := &tx.Transaction{Version: 1, Inputs: []tx.Input{{PrevOut: types.Outpoint{}}}, LockTime: height}
	header := &block.Header{
		Version:    block.CurrentVersion,
		MerkleRoot: block.ComputeMerkleRoot([]types.Hash{coinbase.Hash()}),
		Timestamp:  height + 1,
		Height:     height,
	}
	return block.NewBlock(header, []*tx.Transaction{coinbase})
}

type stubFetcher struct {
	blocksByHeight map[uint64]*block.Block
	failOnce       map[uint64]bool
}

func (f *stubFetcher) RequestBlocks(ctx context.Context, peerID string, from uint64, max uint32) ([]*block.Block, error) {
	if f.failOnce[from] {
		delete(f.failOnce, from)
		return nil, errors.New("simulated batch failure")
	}
	out := make([]*block.Block, 0, max)
	for h := from; h < from+uint64(max); h++ {
		if b, ok := f.blocksByHeight[h]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *stubFetcher) RequestBlockHash(ctx context.Context, peerID string, height uint64) (types.Hash, error) {
	b, ok := f.blocksByHeight[height]
	if !ok {
		return types.Hash{}, errors.New("not found")
	}
	return b.Hash(), nil
}

func TestTierTwoFetch_ImportsSequentially(t *testing.T) {
	chain := newStubChain()
	fetcher := &stubFetcher{blocksByHeight: make(map[uint64]*block.Block), failOnce: make(map[uint64]bool)}
	for h := uint64(1); h <= 10; h++ {
		fetcher.blocksByHeight[h] = makeBlockAt(h)
	}

	s := New(chain, fetcher)
	var progressCalls int
	if err := s.TierTwoFetch(context.Background(), "peer1", 10, func(p Progress) { progressCalls++ }); err != nil {
		t.Fatalf("TierTwoFetch: %v", err)
	}
	if chain.TipHeight() != 10 {
		t.Errorf("tip height = %d, want 10", chain.TipHeight())
	}
	if progressCalls == 0 {
		t.Error("expected progress callbacks")
	}
}

func TestFindCommonAncestor(t *testing.T) {
	local := map[uint64]types.Hash{}
	peer := map[uint64]types.Hash{}
	for h := uint64(0); h <= 100; h++ {
		var hash types.Hash
		hash[0] = byte(h)
		local[h] = hash
		if h <= 97 {
			peer[h] = hash
		} else {
			var divergent types.Hash
			divergent[0] = byte(h)
			divergent[1] = 0xff
			peer[h] = divergent
		}
	}

	ancestor, err := FindCommonAncestor(context.Background(), 0, 100,
		func(h uint64) (types.Hash, error) { return local[h], nil },
		func(ctx context.Context, h uint64) (types.Hash, error) { return peer[h], nil },
	)
	if err != nil {
		t.Fatalf("FindCommonAncestor: %v", err)
	}
	if ancestor != 97 {
		t.Errorf("common ancestor = %d, want 97", ancestor)
	}
}
