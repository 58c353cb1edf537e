package allocation

import (
	"fmt"

	"jobmate/allocation-service/internal/events"
	"jobmate/allocation-service/internal/metrics"
)

type evaluation int

const (
	evalExhausted evaluation = iota // no preference can be served
	evalOffered                     // an offer was created
	evalHalted                      // waits on a slot pending within the group
)

// runRound evaluates the group's active candidates once, highest score first.
//
// A candidate whose preference is blocked by a slot pending under an offer of
// the same group halts the whole round, so no lower-ranked candidate can take
// a slot that may still come back. Slots pending under other groups never
// block.
func (e *Engine) runRound(g *Group) {
	g.queued = false
	if g.State != RoundRunning {
		return
	}
	g.blockedOn.Clear()
	metrics.RecordRound(g.Key, g.Round)
	e.logger.Debug("processing round", "group", g.Key, "round", g.Round)

	var assigned, halted bool
	for _, c := range e.roundCandidates(g) {
		switch e.evaluate(g, c) {
		case evalOffered:
			assigned = true
		case evalHalted:
			halted = true
		case evalExhausted:
			e.exhaust(g, c)
		}
		if halted {
			break
		}
	}

	switch {
	case halted || g.pending.Cardinality() > 0:
		e.setGroupState(g, RoundAwaiting)
	case g.active.Cardinality() == 0:
		e.setGroupState(g, RoundFinished)
	case assigned:
		g.Round++
		e.enqueue(g)
	default:
		e.setGroupState(g, RoundFinished)
	}
}

// roundCandidates returns the active candidates that can be evaluated now,
// ranked. Candidates waiting on an offer are skipped.
func (e *Engine) roundCandidates(g *Group) []*Candidate {
	out := make([]*Candidate, 0, g.active.Cardinality())
	for _, id := range g.active.ToSlice() {
		c, ok := e.candidate(id)
		if !ok {
			e.logger.Warn("active candidate missing from registry", "group", g.Key, "candidateId", id)
			g.active.Remove(id)
			continue
		}
		if c.State != CandidateResponded {
			continue
		}
		out = append(out, c)
	}
	rankCandidates(out, e.candidateIdx)
	return out
}

func (e *Engine) evaluate(g *Group, c *Candidate) evaluation {
	for _, pref := range c.RankedPreferences() {
		if slot, ok := e.pool.FindFree(pref.PositionID, g.Category); ok {
			if err := e.createOffer(g, c, pref, slot); err != nil {
				e.logger.Warn("offer creation failed", "candidateId", c.ID, "slotId", slot.ID, "err", err)
				continue
			}
			return evalOffered
		}
		if slot, ok := e.pool.FindPendingWithinGroup(pref.PositionID, g.pending); ok {
			g.blockedOn.Add(pref.PositionID)
			e.logger.Info("candidate waits on pending slot",
				"group", g.Key, "candidateId", c.ID, "slotId", slot.ID, "rank", pref.Rank)
			return evalHalted
		}
	}
	return evalExhausted
}

// exhaust rejects a candidate that has no preference left to try.
func (e *Engine) exhaust(g *Group, c *Candidate) {
	if !e.moveCandidate(c, CandidateRejected) {
		return
	}
	g.active.Remove(c.ID)
	metrics.RecordCandidateExhausted(g.Key)
	e.logger.Info("candidate rejected: no options left", "group", g.Key, "candidateId", c.ID)
	e.emit(events.TypeCandidateRejected, map[string]any{
		"candidateId": c.ID,
		"group":       g.Key,
		"round":       g.Round,
	})
}

// createOffer reserves slot for c and records the offer. The slot is marked
// first so a failed reservation leaves every other entity untouched.
func (e *Engine) createOffer(g *Group, c *Candidate, pref Preference, slot Slot) error {
	if !c.State.CanTransition(CandidateOffered) {
		return fmt.Errorf("candidate %s in state %s: %w", c.ID, c.State, ErrInvalidTransition)
	}
	id := e.newID()
	if _, dup := e.offerIdx[id]; dup {
		return fmt.Errorf("offer id %s already used: %w", id, ErrInvalidTransition)
	}
	if err := e.pool.MarkPending(slot.ID, c.ID, id); err != nil {
		return err
	}

	now := e.clock.Now()
	o := Offer{
		ID:             id,
		CandidateID:    c.ID,
		PositionID:     pref.PositionID,
		SlotID:         slot.ID,
		GroupKey:       g.Key,
		Round:          g.Round,
		PreferenceRank: pref.Rank,
		State:          OfferPending,
		CreatedAt:      now,
		AcceptDeadline: now.Add(e.window),
	}
	e.offerIdx[id] = len(e.offers)
	e.offers = append(e.offers, o)

	c.State = CandidateOffered
	c.AssignedPositionID = pref.PositionID
	g.pending.Add(id)
	e.watchDeadline(id)

	metrics.RecordOfferCreated(g.Key)
	e.logger.Info("offer created",
		"offerId", id, "candidateId", c.ID, "slotId", slot.ID,
		"rank", pref.Rank, "round", g.Round, "group", g.Key)
	e.emit(events.TypeOfferCreated, map[string]any{
		"offerId":        id,
		"candidateId":    c.ID,
		"positionId":     pref.PositionID,
		"slotId":         slot.ID,
		"group":          g.Key,
		"round":          g.Round,
		"preferenceRank": pref.Rank,
		"acceptDeadline": o.AcceptDeadline,
	})
	return nil
}
