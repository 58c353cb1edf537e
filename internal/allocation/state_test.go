package allocation_test

import (
	"testing"

	"jobmate/allocation-service/internal/allocation"
)

// ── Parse* ─────────────────────────────────────────────────────────────────

func TestParseCandidateState_ValidValues(t *testing.T) {
	valid := []string{"pending", "responded", "disqualified", "offered", "hired", "rejected"}
	for _, s := range valid {
		got, err := allocation.ParseCandidateState(s)
		if err != nil {
			t.Errorf("ParseCandidateState(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseCandidateState(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseStates_InvalidValues(t *testing.T) {
	for _, s := range []string{"", "PENDING", " pending", "accepted"} {
		if _, err := allocation.ParseCandidateState(s); err == nil {
			t.Errorf("ParseCandidateState(%q) expected error, got nil", s)
		}
	}
	for _, s := range []string{"", "FREE", "reserved"} {
		if _, err := allocation.ParseSlotState(s); err == nil {
			t.Errorf("ParseSlotState(%q) expected error, got nil", s)
		}
	}
	for _, s := range []string{"", "ACCEPTED", "hired"} {
		if _, err := allocation.ParseOfferState(s); err == nil {
			t.Errorf("ParseOfferState(%q) expected error, got nil", s)
		}
	}
	for _, s := range []string{"", "processing", "awaiting"} {
		if _, err := allocation.ParseRoundState(s); err == nil {
			t.Errorf("ParseRoundState(%q) expected error, got nil", s)
		}
	}
}

func TestParseStates_AllConstantsRoundTrip(t *testing.T) {
	for _, s := range []allocation.SlotState{allocation.SlotFree, allocation.SlotPending, allocation.SlotOccupied} {
		if got, err := allocation.ParseSlotState(string(s)); err != nil || got != s {
			t.Errorf("ParseSlotState(%q) = %q, %v", s, got, err)
		}
	}
	for _, s := range []allocation.OfferState{allocation.OfferPending, allocation.OfferAccepted, allocation.OfferRejected} {
		if got, err := allocation.ParseOfferState(string(s)); err != nil || got != s {
			t.Errorf("ParseOfferState(%q) = %q, %v", s, got, err)
		}
	}
	for _, s := range []allocation.RoundState{
		allocation.RoundPreparing, allocation.RoundRunning, allocation.RoundAwaiting, allocation.RoundFinished,
	} {
		if got, err := allocation.ParseRoundState(string(s)); err != nil || got != s {
			t.Errorf("ParseRoundState(%q) = %q, %v", s, got, err)
		}
	}
}

// ── Candidate transitions ──────────────────────────────────────────────────

func TestCandidateTransitions_Valid(t *testing.T) {
	cases := []struct {
		from allocation.CandidateState
		to   allocation.CandidateState
	}{
		{allocation.CandidatePending, allocation.CandidateResponded},
		{allocation.CandidatePending, allocation.CandidateDisqualified},
		{allocation.CandidateResponded, allocation.CandidateOffered},
		{allocation.CandidateResponded, allocation.CandidateRejected},
		{allocation.CandidateOffered, allocation.CandidateHired},
		{allocation.CandidateOffered, allocation.CandidateRejected},
	}
	for _, c := range cases {
		if !c.from.CanTransition(c.to) {
			t.Errorf("CanTransition(%s → %s) should be true", c.from, c.to)
		}
	}
}

func TestCandidateTransitions_TerminalStatesHaveNoOutgoing(t *testing.T) {
	all := []allocation.CandidateState{
		allocation.CandidatePending, allocation.CandidateResponded, allocation.CandidateDisqualified,
		allocation.CandidateOffered, allocation.CandidateHired, allocation.CandidateRejected,
	}
	terminals := []allocation.CandidateState{
		allocation.CandidateDisqualified, allocation.CandidateHired, allocation.CandidateRejected,
	}
	for _, from := range terminals {
		if !from.Terminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range all {
			if from.CanTransition(to) {
				t.Errorf("CanTransition(%s → %s) must be false: %s is terminal", from, to, from)
			}
		}
	}
}

func TestCandidateTransitions_SkipLevel(t *testing.T) {
	cases := []struct {
		from allocation.CandidateState
		to   allocation.CandidateState
	}{
		{allocation.CandidatePending, allocation.CandidateOffered},   // never responded
		{allocation.CandidatePending, allocation.CandidateHired},     // skip all
		{allocation.CandidateResponded, allocation.CandidateHired},   // no offer
		{allocation.CandidateOffered, allocation.CandidateResponded}, // backwards
	}
	for _, c := range cases {
		if c.from.CanTransition(c.to) {
			t.Errorf("CanTransition(%s → %s) should be false", c.from, c.to)
		}
	}
}

// ── Slot transitions ───────────────────────────────────────────────────────

func TestSlotTransitions(t *testing.T) {
	cases := []struct {
		from allocation.SlotState
		to   allocation.SlotState
		want bool
	}{
		{allocation.SlotFree, allocation.SlotPending, true},
		{allocation.SlotPending, allocation.SlotOccupied, true},
		{allocation.SlotPending, allocation.SlotFree, true},
		{allocation.SlotFree, allocation.SlotOccupied, false}, // never skips pending
		{allocation.SlotOccupied, allocation.SlotFree, false},
		{allocation.SlotOccupied, allocation.SlotPending, false},
		{allocation.SlotFree, allocation.SlotFree, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("CanTransition(%s → %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

// ── Offer transitions ──────────────────────────────────────────────────────

func TestOfferTransitions_OnlyFromPending(t *testing.T) {
	all := []allocation.OfferState{allocation.OfferPending, allocation.OfferAccepted, allocation.OfferRejected}
	for _, from := range all {
		for _, to := range all {
			want := from == allocation.OfferPending && to != allocation.OfferPending
			if got := from.CanTransition(to); got != want {
				t.Errorf("CanTransition(%s → %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

// ── Round transitions ──────────────────────────────────────────────────────

func TestRoundTransitions(t *testing.T) {
	cases := []struct {
		from allocation.RoundState
		to   allocation.RoundState
		want bool
	}{
		{allocation.RoundPreparing, allocation.RoundRunning, true},
		{allocation.RoundPreparing, allocation.RoundFinished, true},
		{allocation.RoundRunning, allocation.RoundAwaiting, true},
		{allocation.RoundAwaiting, allocation.RoundRunning, true},
		{allocation.RoundRunning, allocation.RoundFinished, true},
		{allocation.RoundAwaiting, allocation.RoundFinished, true},
		{allocation.RoundPreparing, allocation.RoundAwaiting, false},
		{allocation.RoundFinished, allocation.RoundRunning, false},
		{allocation.RoundFinished, allocation.RoundPreparing, false},
		{allocation.RoundRunning, allocation.RoundPreparing, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("CanTransition(%s → %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
