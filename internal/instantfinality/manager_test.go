package instantfinality

import (
	"testing"

	"github.com/time-coin/timecoin-node/internal/storage"
	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, utxo.Set) {
	t.Helper()
	set := utxo.NewStore(storage.NewMemory())
	m := New(set, func() uint64 { return 1 })
	return m, set
}

func seedUTXO(t *testing.T, set utxo.Set, seed byte) types.Outpoint {
	t.Helper()
	var txid types.Hash
	txid[0] = seed
	op := types.Outpoint{TxID: txid, Index: 0}
	u := &utxo.UTXO{Outpoint: op, Value: 1000, State: utxo.StateUnspent}
	if err := set.Put(u); err != nil {
		t.Fatalf("seed utxo: %v", err)
	}
	return op
}

func makeSpendingTx(inputs ...types.Outpoint) *tx.Transaction {
	ins := make([]tx.Input, len(inputs))
	for i, op := range inputs {
		ins[i] = tx.Input{PrevOut: op}
	}
	return &tx.Transaction{
		Version: 1,
		Inputs:  ins,
		Outputs: []tx.Output{{Value: 900}},
	}
}

func TestSubmit_LocksInputs(t *testing.T) {
	m, set := newTestManager(t)
	op := seedUTXO(t, set, 1)
	transaction := makeSpendingTx(op)

	txid, err := m.Submit(transaction)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if txid != transaction.Hash() {
		t.Error("returned txid should match transaction hash")
	}

	u, err := set.Get(op)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.State != utxo.StateLocked {
		t.Errorf("state = %s, want locked", u.State)
	}
}

func TestSubmit_DoubleSpendRejected(t *testing.T) {
	m, set := newTestManager(t)
	op := seedUTXO(t, set, 1)

	first := makeSpendingTx(op)
	if _, err := m.Submit(first); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second := makeSpendingTx(op)
	second.LockTime = 99 // make it hash differently from first
	if _, err := m.Submit(second); err != ErrDoubleSpend {
		t.Fatalf("second submit err = %v, want ErrDoubleSpend", err)
	}
}

func TestRecordVote_ReachesApprovalQuorum(t *testing.T) {
	m, set := newTestManager(t)
	op := seedUTXO(t, set, 1)
	transaction := makeSpendingTx(op)
	txid, _ := m.Submit(transaction)

	status, err := m.RecordVote(txid, "n1", true, 4)
	if err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("status after 1/4 votes = %s, want pending", status)
	}

	status, err = m.RecordVote(txid, "n2", true, 4)
	if err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("status after 2/4 votes = %s, want pending (need 3)", status)
	}

	status, err = m.RecordVote(txid, "n3", true, 4)
	if err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	if status != StatusApproved {
		t.Fatalf("status after 3/4 votes = %s, want approved", status)
	}

	u, _ := set.Get(op)
	if u.State != utxo.StateSpentFinalized {
		t.Errorf("input state = %s, want spent_finalized", u.State)
	}
}

func TestRecordVote_RejectionQuorumUnlocksInputs(t *testing.T) {
	m, set := newTestManager(t)
	op := seedUTXO(t, set, 1)
	transaction := makeSpendingTx(op)
	txid, _ := m.Submit(transaction)

	// 5 voters, required = ceil(10/3) = 4. Two rejections with 3
	// remaining: 0 approvals + 3 remaining < 4 -> impossible, reject now.
	m.RecordVote(txid, "n1", false, 5)
	status, err := m.RecordVote(txid, "n2", false, 5)
	if err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	if status != StatusRejected {
		t.Fatalf("status = %s, want rejected (rejection quorum)", status)
	}

	u, _ := set.Get(op)
	if u.State != utxo.StateUnspent {
		t.Errorf("input state after rejection = %s, want unspent", u.State)
	}
}

func TestMarkConfirmed_RequiresApproved(t *testing.T) {
	m, set := newTestManager(t)
	op := seedUTXO(t, set, 1)
	transaction := makeSpendingTx(op)
	txid, _ := m.Submit(transaction)

	if err := m.MarkConfirmed(txid, 5); err == nil {
		t.Fatal("expected error confirming a pending transaction")
	}

	m.RecordVote(txid, "n1", true, 1) // bootstrap mode, single voter auto-approves
	if err := m.MarkConfirmed(txid, 5); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}

	status, _ := m.Status(txid)
	if status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", status)
	}
}

func TestReverse_UnlocksAndRejects(t *testing.T) {
	m, set := newTestManager(t)
	op := seedUTXO(t, set, 1)
	transaction := makeSpendingTx(op)
	txid, _ := m.Submit(transaction)

	if err := m.Reverse(txid, "chain reorganization"); err != nil {
		t.Fatalf("Reverse: %v", err)
	}

	status, _ := m.Status(txid)
	if status != StatusRejected {
		t.Errorf("status = %s, want rejected", status)
	}
	u, _ := set.Get(op)
	if u.State != utxo.StateUnspent {
		t.Errorf("input state = %s, want unspent", u.State)
	}
}

func TestGetApprovedTransactions_SortedByTxid(t *testing.T) {
	m, set := newTestManager(t)
	opA := seedUTXO(t, set, 1)
	opB := seedUTXO(t, set, 2)

	txA := makeSpendingTx(opA)
	txB := makeSpendingTx(opB)

	idA, _ := m.Submit(txA)
	idB, _ := m.Submit(txB)
	m.RecordVote(idA, "n1", true, 1)
	m.RecordVote(idB, "n1", true, 1)

	approved := m.GetApprovedTransactions()
	if len(approved) != 2 {
		t.Fatalf("approved count = %d, want 2", len(approved))
	}
	if !(approved[0].Hash().String() < approved[1].Hash().String()) {
		t.Error("approved transactions should be sorted by txid")
	}
}
