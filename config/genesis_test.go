package config

import "testing"

func TestGenesisBlock_HeightZero(t *testing.T) {
	g := GenesisBlock()
	if g.Header.Height != 0 {
		t.Errorf("genesis height = %d, want 0", g.Header.Height)
	}
	if !g.Header.PrevHash.IsZero() {
		t.Error("genesis previous_hash should be all-zero")
	}
}

func TestGenesisBlock_SingleCoinbase(t *testing.T) {
	g := GenesisBlock()
	if len(g.Transactions) != 1 {
		t.Fatalf("genesis should have exactly 1 transaction, got %d", len(g.Transactions))
	}
	coinbase := g.Transactions[0]
	if len(coinbase.Outputs) != 4 {
		t.Fatalf("genesis coinbase should have 4 outputs, got %d", len(coinbase.Outputs))
	}
}

func TestGenesisBlock_TotalSupply(t *testing.T) {
	g := GenesisBlock()
	var total uint64
	for _, out := range g.Transactions[0].Outputs {
		total += out.Value
	}
	if total != GenesisTotalSupply {
		t.Errorf("genesis total = %d, want %d", total, GenesisTotalSupply)
	}
	if total != 100_000_000_000_000 {
		t.Errorf("genesis total = %d, want 100_000_000_000_000", total)
	}
}

func TestGenesisBlock_MerkleRoot(t *testing.T) {
	g := GenesisBlock()
	expected := g.Transactions[0].Hash()
	if g.Header.MerkleRoot != expected {
		t.Errorf("single-tx merkle root should equal the coinbase hash")
	}
}

func TestGenesisHash_Deterministic(t *testing.T) {
	h1 := GenesisHash()
	h2 := GenesisHash()
	if h1 != h2 {
		t.Error("genesis hash should be deterministic across calls")
	}
}
