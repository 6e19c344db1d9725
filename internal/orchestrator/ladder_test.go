package orchestrator

import "testing"

// TestRequiredVotes_LiteralS5Scenario matches spec.md's literal fallback
// ladder scenario: 5 nodes, required votes per rung are 4, 4, 3, 2.
func TestRequiredVotes_LiteralS5Scenario(t *testing.T) {
	const activeTotal = 5
	want := map[string]int{
		"NormalBFT":        4,
		"LeaderRotation":    4,
		"ReducedThreshold":  3,
		"RewardOnly":        2,
	}
	for _, s := range Ladder {
		if s.Name == "Emergency" {
			continue
		}
		if got := RequiredVotes(s, activeTotal); got != want[s.Name] {
			t.Errorf("%s: RequiredVotes = %d, want %d", s.Name, got, want[s.Name])
		}
	}
}

func TestRequiredVotes_TwoApprovalsSatisfyRewardOnlyAtFive(t *testing.T) {
	rewardOnly := Ladder[3]
	if rewardOnly.Name != "RewardOnly" {
		t.Fatalf("Ladder[3] = %s, want RewardOnly", rewardOnly.Name)
	}
	if RequiredVotes(rewardOnly, 5) != 2 {
		t.Errorf("2 approvals should satisfy RewardOnly's 1/3 threshold at 5 active nodes")
	}
}

func TestRequiredVotes_NeverZeroWithActiveNodes(t *testing.T) {
	emergency := Ladder[4]
	if got := RequiredVotes(emergency, 5); got < 1 {
		t.Errorf("RequiredVotes = %d, want >= 1", got)
	}
}

func TestLadder_Ordering(t *testing.T) {
	names := []string{"NormalBFT", "LeaderRotation", "ReducedThreshold", "RewardOnly", "Emergency"}
	for i, name := range names {
		if Ladder[i].Name != name {
			t.Errorf("Ladder[%d] = %s, want %s", i, Ladder[i].Name, name)
		}
	}
	if !Ladder[1].LeaderRotates {
		t.Error("LeaderRotation should flag LeaderRotates")
	}
	if Ladder[3].MempoolTxs {
		t.Error("RewardOnly should exclude mempool transactions (coinbase only)")
	}
}
