package orchestrator

import "time"

// Strategy is one rung of the fallback ladder (spec.md §4.7).
type Strategy struct {
	Name           string
	ThresholdNum   int
	ThresholdDen   int
	MempoolTxs     bool
	Timeout        time.Duration
	LeaderRotates  bool
}

// Ladder is the fixed progression of fallback strategies, in order.
var Ladder = []Strategy{
	{Name: "NormalBFT", ThresholdNum: 2, ThresholdDen: 3, MempoolTxs: true, Timeout: 60 * time.Second},
	{Name: "LeaderRotation", ThresholdNum: 2, ThresholdDen: 3, MempoolTxs: true, Timeout: 45 * time.Second, LeaderRotates: true},
	{Name: "ReducedThreshold", ThresholdNum: 1, ThresholdDen: 2, MempoolTxs: true, Timeout: 30 * time.Second},
	{Name: "RewardOnly", ThresholdNum: 1, ThresholdDen: 3, MempoolTxs: false, Timeout: 30 * time.Second},
	{Name: "Emergency", ThresholdNum: 1, ThresholdDen: 10, MempoolTxs: false, Timeout: 0},
}

// RequiredVotes computes ceil(strategy.ThresholdNum * activeTotal /
// strategy.ThresholdDen), with a floor of 1 so a strategy over a
// non-empty active set is never satisfied by zero votes. An empty
// active set (activeTotal <= 0) returns 0.
func RequiredVotes(s Strategy, activeTotal int) int {
	if activeTotal <= 0 {
		return 0
	}
	required := (s.ThresholdNum*activeTotal + s.ThresholdDen - 1) / s.ThresholdDen
	if required < 1 {
		required = 1
	}
	return required
}

// maxTotalRoundTime bounds the whole round, including every rung of the
// ladder; on expiry the round is marked failed and the next cycle picks
// up (spec §4.7 "Advancement").
const maxTotalRoundTime = 300 * time.Second
