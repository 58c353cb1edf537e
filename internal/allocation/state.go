// Package allocation implements the round-based, multi-category allocation
// engine: slots, offers, groups and the accept/reject protocol.
//
// Candidate state graph:
//
//	pending ──► responded ──► offered ──► hired
//	   │            │            │
//	   ▼            └────────────┴──► rejected
//	disqualified
//
// Slot state graph:
//
//	free ──► pending ──► occupied
//	  ▲         │
//	  └─────────┘
//
// Offer state graph:
//
//	pending ──► accepted
//	   └──────► rejected
//
// Group round state graph:
//
//	preparing ──► running ◄──► awaiting_confirmations
//	    │            │                  │
//	    └────────────┴──────────────────┴──► finished
//
// hired, rejected, disqualified, occupied, accepted and finished have no
// outgoing transitions.
package allocation

import (
	"fmt"
	"slices"
)

// CandidateState is the lifecycle state of a candidate.
type CandidateState string

const (
	CandidatePending      CandidateState = "pending"
	CandidateResponded    CandidateState = "responded"
	CandidateDisqualified CandidateState = "disqualified"
	CandidateOffered      CandidateState = "offered"
	CandidateHired        CandidateState = "hired"
	CandidateRejected     CandidateState = "rejected"
)

// SlotState is the availability of a single vacancy unit.
type SlotState string

const (
	SlotFree     SlotState = "free"
	SlotPending  SlotState = "pending"
	SlotOccupied SlotState = "occupied"
)

// OfferState is the confirmation state of an offer.
type OfferState string

const (
	OfferPending  OfferState = "pending"
	OfferAccepted OfferState = "accepted"
	OfferRejected OfferState = "rejected"
)

// RoundState is the progress of an allocation group.
type RoundState string

const (
	RoundPreparing RoundState = "preparing"
	RoundRunning   RoundState = "running"
	RoundAwaiting  RoundState = "awaiting_confirmations"
	RoundFinished  RoundState = "finished"
)

var candidateTransitions = map[CandidateState][]CandidateState{
	CandidatePending:   {CandidateResponded, CandidateDisqualified},
	CandidateResponded: {CandidateOffered, CandidateRejected},
	CandidateOffered:   {CandidateHired, CandidateRejected},
}

var slotTransitions = map[SlotState][]SlotState{
	SlotFree:    {SlotPending},
	SlotPending: {SlotOccupied, SlotFree},
}

var offerTransitions = map[OfferState][]OfferState{
	OfferPending: {OfferAccepted, OfferRejected},
}

// preparing → finished covers a category whose candidates all failed to respond.
var roundTransitions = map[RoundState][]RoundState{
	RoundPreparing: {RoundRunning, RoundFinished},
	RoundRunning:   {RoundAwaiting, RoundFinished},
	RoundAwaiting:  {RoundRunning, RoundFinished},
}

func transitionAllowed[S comparable](table map[S][]S, from, to S) bool {
	allowed, ok := table[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// CanTransition reports whether a candidate may move from s to to.
func (s CandidateState) CanTransition(to CandidateState) bool {
	return transitionAllowed(candidateTransitions, s, to)
}

// Terminal reports whether no further transition is possible.
func (s CandidateState) Terminal() bool {
	_, ok := candidateTransitions[s]
	return !ok
}

func (s SlotState) CanTransition(to SlotState) bool {
	return transitionAllowed(slotTransitions, s, to)
}

func (s OfferState) CanTransition(to OfferState) bool {
	return transitionAllowed(offerTransitions, s, to)
}

func (s RoundState) CanTransition(to RoundState) bool {
	return transitionAllowed(roundTransitions, s, to)
}

// ParseCandidateState converts a raw string to a CandidateState.
func ParseCandidateState(s string) (CandidateState, error) {
	st := CandidateState(s)
	switch st {
	case CandidatePending, CandidateResponded, CandidateDisqualified,
		CandidateOffered, CandidateHired, CandidateRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown candidate state %q", s)
}

// ParseSlotState converts a raw string to a SlotState.
func ParseSlotState(s string) (SlotState, error) {
	st := SlotState(s)
	switch st {
	case SlotFree, SlotPending, SlotOccupied:
		return st, nil
	}
	return "", fmt.Errorf("unknown slot state %q", s)
}

// ParseOfferState converts a raw string to an OfferState.
func ParseOfferState(s string) (OfferState, error) {
	st := OfferState(s)
	switch st {
	case OfferPending, OfferAccepted, OfferRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown offer state %q", s)
}

// ParseRoundState converts a raw string to a RoundState.
func ParseRoundState(s string) (RoundState, error) {
	st := RoundState(s)
	switch st {
	case RoundPreparing, RoundRunning, RoundAwaiting, RoundFinished:
		return st, nil
	}
	return "", fmt.Errorf("unknown round state %q", s)
}
