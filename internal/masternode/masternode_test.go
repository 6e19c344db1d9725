package masternode

import "testing"

func TestTier_Weight(t *testing.T) {
	if TierGold.Weight() <= TierSilver.Weight() {
		t.Error("gold should outweigh silver")
	}
	if TierSilver.Weight() <= TierBronze.Weight() {
		t.Error("silver should outweigh bronze")
	}
	if TierBronze.Weight() <= TierFree.Weight() {
		t.Error("bronze should outweigh free")
	}
	if Tier("unknown").Weight() != TierFree.Weight() {
		t.Error("unknown tier should weigh the same as free")
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&Record{ID: "n1", Tier: TierGold, Status: StatusActive})

	rec, ok := r.Get("n1")
	if !ok {
		t.Fatal("expected n1 to be registered")
	}
	if rec.Tier != TierGold {
		t.Errorf("tier = %s, want gold", rec.Tier)
	}
}

func TestRegistry_Active_ExcludesQuarantined(t *testing.T) {
	r := NewRegistry()
	r.Register(&Record{ID: "a", Status: StatusActive})
	r.Register(&Record{ID: "b", Status: StatusDegraded})
	r.Register(&Record{ID: "c", Status: StatusQuarantined})
	r.Register(&Record{ID: "d", Status: StatusOffline})

	active := r.Active()
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	ids := IDs(active)
	if ids[0] != "a" || ids[1] != "b" {
		t.Errorf("active IDs = %v, want [a b]", ids)
	}
}

func TestRegistry_All_SortedByID(t *testing.T) {
	r := NewRegistry()
	r.Register(&Record{ID: "zzz"})
	r.Register(&Record{ID: "aaa"})

	all := r.All()
	if all[0].ID != "aaa" || all[1].ID != "zzz" {
		t.Errorf("All() not sorted: %v", IDs(all))
	}
}

func TestRegistry_SetStatus(t *testing.T) {
	r := NewRegistry()
	r.Register(&Record{ID: "n1", Status: StatusActive})
	r.SetStatus("n1", StatusQuarantined)

	rec, _ := r.Get("n1")
	if rec.Status != StatusQuarantined {
		t.Errorf("status = %s, want quarantined", rec.Status)
	}
}
