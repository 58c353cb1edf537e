package allocation

import (
	"errors"
	"fmt"

	"jobmate/allocation-service/internal/events"
	"jobmate/allocation-service/internal/metrics"
)

// ─── Accept / Reject ─────────────────────────────────────────────────────────

// Accept confirms a pending offer: the candidate is hired and the slot
// occupied. It returns ErrNotFound for an unknown offer and
// ErrInvalidTransition for a resolved one; in both cases nothing changes.
func (e *Engine) Accept(offerID string) error {
	e.mu.Lock()
	err := e.accept(offerID)
	evts := e.takeOutbox()
	e.mu.Unlock()
	e.publish(evts)
	return err
}

// Reject declines a pending offer: the candidate is rejected and the slot
// freed. automatic marks a rejection caused by the acceptance deadline.
// Errors follow Accept.
func (e *Engine) Reject(offerID string, automatic bool) error {
	e.mu.Lock()
	err := e.reject(offerID, automatic)
	evts := e.takeOutbox()
	e.mu.Unlock()
	e.publish(evts)
	return err
}

// ExpireOverdue rejects every pending offer whose deadline has passed and
// returns how many it rejected.
func (e *Engine) ExpireOverdue() int {
	e.mu.Lock()
	now := e.clock.Now()
	var due []string
	for _, o := range e.offers {
		if o.State == OfferPending && !now.Before(o.AcceptDeadline) {
			due = append(due, o.ID)
		}
	}
	n := 0
	for _, id := range due {
		if err := e.reject(id, true); err != nil {
			e.logger.Warn("expire offer failed", "offerId", id, "err", err)
			continue
		}
		n++
	}
	evts := e.takeOutbox()
	e.mu.Unlock()
	e.publish(evts)
	return n
}

// resolution holds the entities touched by resolving one offer.
type resolution struct {
	offer     *Offer
	candidate *Candidate
	group     *Group
}

// resolvable looks up a pending offer and the candidate and group it belongs to.
func (e *Engine) resolvable(offerID string) (resolution, error) {
	o, ok := e.offer(offerID)
	if !ok {
		return resolution{}, fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
	}
	if o.State != OfferPending {
		return resolution{}, fmt.Errorf("offer %s is %s: %w", offerID, o.State, ErrInvalidTransition)
	}
	c, ok := e.candidate(o.CandidateID)
	if !ok {
		e.logger.Warn("offer references unknown candidate", "offerId", offerID, "candidateId", o.CandidateID)
		return resolution{}, fmt.Errorf("candidate %s of offer %s: %w", o.CandidateID, offerID, ErrNotFound)
	}
	g, ok := e.groups[c.Category]
	if !ok {
		e.logger.Warn("offer references unknown group", "offerId", offerID, "category", c.Category)
		return resolution{}, fmt.Errorf("group %s of offer %s: %w", c.Category, offerID, ErrNotFound)
	}
	return resolution{offer: o, candidate: c, group: g}, nil
}

func (e *Engine) accept(offerID string) error {
	r, err := e.resolvable(offerID)
	if err != nil {
		return err
	}
	if !r.candidate.State.CanTransition(CandidateHired) {
		return fmt.Errorf("candidate %s is %s: %w", r.candidate.ID, r.candidate.State, ErrInvalidTransition)
	}
	if err := e.pool.MarkOccupied(r.offer.SlotID); err != nil {
		return err
	}

	now := e.clock.Now()
	r.offer.State = OfferAccepted
	r.offer.ResolvedAt = &now
	r.candidate.State = CandidateHired
	r.group.pending.Remove(r.offer.ID)
	r.group.active.Remove(r.candidate.ID)
	e.stopWatcher(r.offer.ID)

	metrics.RecordOfferResolved(r.group.Key, string(OfferAccepted), false)
	e.logger.Info("offer accepted", "offerId", r.offer.ID, "candidateId", r.candidate.ID, "slotId", r.offer.SlotID)
	e.emit(events.TypeOfferAccepted, map[string]any{
		"offerId":     r.offer.ID,
		"candidateId": r.candidate.ID,
		"positionId":  r.offer.PositionID,
		"slotId":      r.offer.SlotID,
		"group":       r.group.Key,
	})

	e.verifyContinuation(r.group)
	e.drain()
	return nil
}

func (e *Engine) reject(offerID string, automatic bool) error {
	r, err := e.resolvable(offerID)
	if err != nil {
		return err
	}
	if !r.candidate.State.CanTransition(CandidateRejected) {
		return fmt.Errorf("candidate %s is %s: %w", r.candidate.ID, r.candidate.State, ErrInvalidTransition)
	}
	slot, ok := e.pool.Get(r.offer.SlotID)
	if !ok {
		return fmt.Errorf("slot %s of offer %s: %w", r.offer.SlotID, offerID, ErrNotFound)
	}
	if err := e.pool.MarkFree(slot.ID); err != nil {
		return err
	}

	now := e.clock.Now()
	r.offer.State = OfferRejected
	r.offer.ResolvedAt = &now
	r.offer.Automatic = automatic
	r.candidate.State = CandidateRejected
	r.group.pending.Remove(r.offer.ID)
	r.group.active.Remove(r.candidate.ID)
	e.stopWatcher(r.offer.ID)

	metrics.RecordOfferResolved(r.group.Key, string(OfferRejected), automatic)
	e.logger.Info("offer rejected", "offerId", r.offer.ID, "candidateId", r.candidate.ID,
		"slotId", slot.ID, "automatic", automatic)
	e.emit(events.TypeOfferRejected, map[string]any{
		"offerId":     r.offer.ID,
		"candidateId": r.candidate.ID,
		"positionId":  r.offer.PositionID,
		"slotId":      slot.ID,
		"group":       r.group.Key,
		"automatic":   automatic,
	})

	e.notifySlotFreed(slot, r.group)
	e.verifyContinuation(r.group)
	e.drain()
	return nil
}

// ─── Continuation ────────────────────────────────────────────────────────────

// notifySlotFreed re-checks every other group of the slot's category whose
// last round halted on the slot's position.
func (e *Engine) notifySlotFreed(slot Slot, except *Group) {
	for _, category := range e.groupOrder {
		g := e.groups[category]
		if g == except || g.Category != slot.Category {
			continue
		}
		if g.State != RoundAwaiting || !g.blockedOn.Contains(slot.PositionID) {
			continue
		}
		e.logger.Info("slot freed for waiting group", "group", g.Key, "slotId", slot.ID)
		e.verifyContinuation(g)
	}
}

// verifyContinuation decides what a group does once one of its offers is
// resolved: keep waiting, finish, or queue the next round.
func (e *Engine) verifyContinuation(g *Group) {
	switch {
	case g.State == RoundFinished:
		return
	case g.pending.Cardinality() > 0:
		e.setGroupState(g, RoundAwaiting)
		return
	case g.active.Cardinality() == 0:
		e.setGroupState(g, RoundFinished)
		return
	case g.queued:
		return
	}
	g.Round++
	g.blockedOn.Clear()
	e.setGroupState(g, RoundRunning)
	e.logger.Info("group continues", "group", g.Key, "round", g.Round)
	e.enqueue(g)
}

// ─── Deadlines ───────────────────────────────────────────────────────────────

// watchDeadline rejects the offer automatically once the window elapses. The
// timer is created before the goroutine starts so the deadline is registered
// with the clock by the time the creating operation returns.
func (e *Engine) watchDeadline(offerID string) {
	if e.closed {
		return
	}
	stop := make(chan struct{})
	e.watchers[offerID] = stop
	timer := e.clock.NewTimer(e.window)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer timer.Stop()
		select {
		case <-timer.C():
			err := e.Reject(offerID, true)
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				e.logger.Warn("automatic reject failed", "offerId", offerID, "err", err)
			}
		case <-stop:
		}
	}()
}

func (e *Engine) stopWatcher(offerID string) {
	if stop, ok := e.watchers[offerID]; ok {
		close(stop)
		delete(e.watchers, offerID)
	}
}
