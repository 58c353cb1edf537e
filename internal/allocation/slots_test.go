package allocation_test

import (
	"errors"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"

	"jobmate/allocation-service/internal/allocation"
)

func testPool() *allocation.Pool {
	return allocation.NewPool([]allocation.Position{
		{ID: "icu", Category: "nurse", InitialSlots: 2},
		{ID: "er", Category: "nurse", InitialSlots: 1},
		{ID: "surgery", Category: "doctor", InitialSlots: 0},
	})
}

func TestNewPool_MaterializesSlots(t *testing.T) {
	p := testPool()
	slots := p.Slots()
	if len(slots) != 3 {
		t.Fatalf("len(Slots()) = %d, want 3", len(slots))
	}
	wantIDs := []string{"icu-1", "icu-2", "er-1"}
	for i, s := range slots {
		if s.ID != wantIDs[i] {
			t.Errorf("slot %d id = %q, want %q", i, s.ID, wantIDs[i])
		}
		if s.State != allocation.SlotFree {
			t.Errorf("slot %s state = %s, want free", s.ID, s.State)
		}
	}
	if c := p.Counts("surgery"); c.Total != 0 {
		t.Errorf("surgery has %d slots, want 0", c.Total)
	}
}

func TestFindFree_LowestIndexMatchingCategory(t *testing.T) {
	p := testPool()

	s, ok := p.FindFree("icu", "nurse")
	if !ok || s.ID != "icu-1" {
		t.Fatalf("FindFree(icu) = %q, %v; want icu-1", s.ID, ok)
	}
	if _, ok := p.FindFree("icu", "doctor"); ok {
		t.Error("FindFree must not match a slot of another category")
	}
	if _, ok := p.FindFree("unknown", "nurse"); ok {
		t.Error("FindFree must not match an unknown position")
	}

	if err := p.MarkPending("icu-1", "c1", "o1"); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	s, ok = p.FindFree("icu", "nurse")
	if !ok || s.ID != "icu-2" {
		t.Fatalf("after reserving icu-1, FindFree = %q, %v; want icu-2", s.ID, ok)
	}
}

func TestFindPendingWithinGroup(t *testing.T) {
	p := testPool()
	if err := p.MarkPending("er-1", "c1", "o1"); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}

	own := mapset.NewSet("o1")
	if s, ok := p.FindPendingWithinGroup("er", own); !ok || s.ID != "er-1" {
		t.Errorf("FindPendingWithinGroup(own) = %q, %v; want er-1", s.ID, ok)
	}
	other := mapset.NewSet("o2")
	if _, ok := p.FindPendingWithinGroup("er", other); ok {
		t.Error("a slot pending under another group's offer must not match")
	}
}

func TestSlotLifecycle_AcceptPath(t *testing.T) {
	p := testPool()
	if err := p.MarkPending("er-1", "c1", "o1"); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if err := p.MarkOccupied("er-1"); err != nil {
		t.Fatalf("MarkOccupied: %v", err)
	}
	s, _ := p.Get("er-1")
	if s.State != allocation.SlotOccupied || s.CandidateID != "c1" || s.OfferID != "o1" {
		t.Errorf("slot after accept = %+v", s)
	}
	if err := p.MarkFree("er-1"); !errors.Is(err, allocation.ErrInvalidTransition) {
		t.Errorf("MarkFree on occupied slot: got %v, want ErrInvalidTransition", err)
	}
}

func TestSlotLifecycle_RejectPath(t *testing.T) {
	p := testPool()
	if err := p.MarkPending("er-1", "c1", "o1"); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if err := p.MarkFree("er-1"); err != nil {
		t.Fatalf("MarkFree: %v", err)
	}
	s, _ := p.Get("er-1")
	if s.State != allocation.SlotFree || s.CandidateID != "" || s.OfferID != "" {
		t.Errorf("slot after reject = %+v, want free and unassigned", s)
	}
}

func TestSlotTransitions_Guarded(t *testing.T) {
	p := testPool()
	if err := p.MarkOccupied("icu-1"); !errors.Is(err, allocation.ErrInvalidTransition) {
		t.Errorf("MarkOccupied on free slot: got %v, want ErrInvalidTransition", err)
	}
	if err := p.MarkPending("icu-1", "c1", "o1"); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if err := p.MarkPending("icu-1", "c2", "o2"); !errors.Is(err, allocation.ErrInvalidTransition) {
		t.Errorf("double MarkPending: got %v, want ErrInvalidTransition", err)
	}
	s, _ := p.Get("icu-1")
	if s.CandidateID != "c1" {
		t.Errorf("refused transition changed the slot: %+v", s)
	}
	if err := p.MarkPending("nope-1", "c1", "o1"); !errors.Is(err, allocation.ErrNotFound) {
		t.Errorf("unknown slot: got %v, want ErrNotFound", err)
	}
}

func TestCounts(t *testing.T) {
	p := testPool()
	_ = p.MarkPending("icu-1", "c1", "o1")
	_ = p.MarkPending("icu-2", "c2", "o2")
	_ = p.MarkOccupied("icu-2")

	got := p.Counts("icu")
	want := allocation.SlotCounts{Total: 2, Free: 0, Pending: 1, Occupied: 1}
	if got != want {
		t.Errorf("Counts(icu) = %+v, want %+v", got, want)
	}
}
