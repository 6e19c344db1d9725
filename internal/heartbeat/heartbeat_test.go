package heartbeat

import (
	"testing"

	"github.com/time-coin/timecoin-node/pkg/types"
)

func TestEvaluate_CanonicalWithTwoThirdsAgreement(t *testing.T) {
	var hashA, hashB types.Hash
	hashA[0] = 0xaa
	hashB[0] = 0xbb

	hbs := []Heartbeat{
		{NodeID: "n1", BlockHeight: 100, ChainTipHash: hashA},
		{NodeID: "n2", BlockHeight: 100, ChainTipHash: hashA},
		{NodeID: "n3", BlockHeight: 100, ChainTipHash: hashA},
		{NodeID: "n4", BlockHeight: 99, ChainTipHash: hashB},
	}

	agreement := Evaluate(hbs)
	if !agreement.Reached {
		t.Fatal("3/4 agreement should reach the 2/3 threshold")
	}
	if agreement.CanonicalHeight != 100 || agreement.CanonicalHash != hashA {
		t.Errorf("canonical = (%d, %s), want (100, %s)", agreement.CanonicalHeight, agreement.CanonicalHash, hashA)
	}
	if len(agreement.InAgreement) != 3 {
		t.Errorf("in-agreement = %v, want 3 nodes", agreement.InAgreement)
	}
	if len(agreement.Desynced) != 1 || agreement.Desynced[0] != "n4" {
		t.Errorf("desynced = %v, want [n4]", agreement.Desynced)
	}
}

func TestEvaluate_NoAgreementWhenSplit(t *testing.T) {
	var hashA, hashB, hashC types.Hash
	hashA[0], hashB[0], hashC[0] = 1, 2, 3

	hbs := []Heartbeat{
		{NodeID: "n1", BlockHeight: 10, ChainTipHash: hashA},
		{NodeID: "n2", BlockHeight: 10, ChainTipHash: hashB},
		{NodeID: "n3", BlockHeight: 10, ChainTipHash: hashC},
	}

	agreement := Evaluate(hbs)
	if agreement.Reached {
		t.Error("an even 3-way split should not reach 2/3 agreement")
	}
	if len(agreement.Desynced) != 3 {
		t.Errorf("all nodes should be considered desynced, got %v", agreement.Desynced)
	}
}

func TestEvaluate_Empty(t *testing.T) {
	agreement := Evaluate(nil)
	if agreement.Reached {
		t.Error("no heartbeats should never reach agreement")
	}
}

func TestResponseRate(t *testing.T) {
	ok, required := ResponseRate(9, 6)
	if required != 6 {
		t.Errorf("required = %d, want 6", required)
	}
	if !ok {
		t.Error("6/9 responses should meet the 2/3 response-rate requirement")
	}

	ok, _ = ResponseRate(9, 5)
	if ok {
		t.Error("5/9 responses should not meet the 2/3 response-rate requirement")
	}
}
