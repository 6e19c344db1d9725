package health

import (
	"testing"
	"time"

	"github.com/time-coin/timecoin-node/internal/masternode"
)

func newTestTracker(reg *masternode.Registry, clock *time.Time) *Tracker {
	return New(reg, func() time.Time { return *clock })
}

func TestRecordResponse_DegradesAboveThreshold(t *testing.T) {
	reg := masternode.NewRegistry()
	reg.Register(&masternode.Record{ID: "n1", Status: masternode.StatusActive})
	now := time.Unix(0, 0)
	tr := newTestTracker(reg, &now)

	tr.RecordResponse("n1", 3000)

	rec, _ := reg.Get("n1")
	if rec.Status != masternode.StatusDegraded {
		t.Errorf("status = %s, want degraded", rec.Status)
	}
}

func TestRecordResponse_RecoversAfterSustainedFastResponses(t *testing.T) {
	reg := masternode.NewRegistry()
	reg.Register(&masternode.Record{ID: "n1", Status: masternode.StatusDegraded})
	now := time.Unix(0, 0)
	tr := newTestTracker(reg, &now)

	for i := 0; i < 3; i++ {
		tr.RecordResponse("n1", 500)
	}

	rec, _ := reg.Get("n1")
	if rec.Status != masternode.StatusActive {
		t.Errorf("status = %s, want active after 3 fast responses", rec.Status)
	}
}

func TestRecordMiss_QuarantinesAfterThreeMisses(t *testing.T) {
	reg := masternode.NewRegistry()
	reg.Register(&masternode.Record{ID: "n1", Status: masternode.StatusActive})
	now := time.Unix(0, 0)
	tr := newTestTracker(reg, &now)

	tr.RecordMiss("n1")
	tr.RecordMiss("n1")
	rec, _ := reg.Get("n1")
	if rec.Status != masternode.StatusActive {
		t.Fatalf("status after 2 misses = %s, want still active", rec.Status)
	}

	tr.RecordMiss("n1")
	rec, _ = reg.Get("n1")
	if rec.Status != masternode.StatusQuarantined {
		t.Errorf("status after 3 misses = %s, want quarantined", rec.Status)
	}
}

func TestCheckExpirations_ReturnsToActiveWhenMissesCleared(t *testing.T) {
	reg := masternode.NewRegistry()
	reg.Register(&masternode.Record{ID: "n1", Status: masternode.StatusActive})
	now := time.Unix(0, 0)
	tr := newTestTracker(reg, &now)

	tr.RecordMiss("n1")
	tr.RecordMiss("n1")
	tr.RecordMiss("n1")
	tr.RecordResponse("n1", 100) // misses clear

	now = now.Add(quarantineDuration + time.Second)
	tr.CheckExpirations()

	rec, _ := reg.Get("n1")
	if rec.Status != masternode.StatusActive {
		t.Errorf("status = %s, want active after quarantine expiry with cleared misses", rec.Status)
	}
}

func TestCheckExpirations_DowngradesWhenMissesPersist(t *testing.T) {
	reg := masternode.NewRegistry()
	reg.Register(&masternode.Record{ID: "n1", Status: masternode.StatusActive})
	now := time.Unix(0, 0)
	tr := newTestTracker(reg, &now)

	tr.RecordMiss("n1")
	tr.RecordMiss("n1")
	tr.RecordMiss("n1")

	now = now.Add(quarantineDuration + time.Second)
	tr.CheckExpirations()

	rec, _ := reg.Get("n1")
	if rec.Status != masternode.StatusDowngraded {
		t.Errorf("status = %s, want downgraded when misses persisted through quarantine", rec.Status)
	}
}

func TestParticipationRate(t *testing.T) {
	reg := masternode.NewRegistry()
	now := time.Unix(0, 0)
	tr := newTestTracker(reg, &now)

	tr.RecordVoteExpected("n1")
	tr.RecordVoteExpected("n1")
	tr.RecordVoteExpected("n1")
	tr.RecordVoteCast("n1")
	tr.RecordVoteCast("n1")

	rate := tr.ParticipationRate("n1")
	if rate < 0.66 || rate > 0.67 {
		t.Errorf("participation rate = %f, want ~0.666", rate)
	}
}
