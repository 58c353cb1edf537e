package allocation

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// SlotCounts tallies slots by state.
type SlotCounts struct {
	Total    int `json:"total"`
	Free     int `json:"free"`
	Pending  int `json:"pending"`
	Occupied int `json:"occupied"`
}

func (c *SlotCounts) add(s SlotState) {
	c.Total++
	switch s {
	case SlotFree:
		c.Free++
	case SlotPending:
		c.Pending++
	case SlotOccupied:
		c.Occupied++
	}
}

// Pool materializes InitialSlots slots per position and is the single source
// of truth for availability. Slots are never created or destroyed after
// NewPool returns. All mutations are serialized by the pool mutex.
type Pool struct {
	mu         sync.Mutex
	slots      []Slot
	byID       map[string]int
	byPosition map[string][]int
}

// NewPool creates the slots of every position, in position order and
// ascending index, all free.
func NewPool(positions []Position) *Pool {
	p := &Pool{
		byID:       make(map[string]int),
		byPosition: make(map[string][]int),
	}
	for _, pos := range positions {
		for i := 1; i <= pos.InitialSlots; i++ {
			s := Slot{
				ID:         SlotID(pos.ID, i),
				PositionID: pos.ID,
				Index:      i,
				Category:   pos.Category,
				State:      SlotFree,
			}
			p.byID[s.ID] = len(p.slots)
			p.byPosition[pos.ID] = append(p.byPosition[pos.ID], len(p.slots))
			p.slots = append(p.slots, s)
		}
	}
	return p
}

// FindFree returns the lowest-index free slot of positionID whose category
// matches.
func (p *Pool) FindFree(positionID, category string) (Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, i := range p.byPosition[positionID] {
		s := p.slots[i]
		if s.Category == category && s.State == SlotFree {
			return s, true
		}
	}
	return Slot{}, false
}

// FindPendingWithinGroup returns a pending slot of positionID held by one of
// the offers in pendingOffers.
func (p *Pool) FindPendingWithinGroup(positionID string, pendingOffers mapset.Set[string]) (Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, i := range p.byPosition[positionID] {
		s := p.slots[i]
		if s.State == SlotPending && pendingOffers.Contains(s.OfferID) {
			return s, true
		}
	}
	return Slot{}, false
}

// MarkPending reserves a free slot for an offer.
func (p *Pool) MarkPending(slotID, candidateID, offerID string) error {
	return p.transition(slotID, SlotPending, func(s *Slot) {
		s.CandidateID = candidateID
		s.OfferID = offerID
	})
}

// MarkOccupied confirms a pending slot.
func (p *Pool) MarkOccupied(slotID string) error {
	return p.transition(slotID, SlotOccupied, func(*Slot) {})
}

// MarkFree releases a pending slot.
func (p *Pool) MarkFree(slotID string) error {
	return p.transition(slotID, SlotFree, func(s *Slot) {
		s.CandidateID = ""
		s.OfferID = ""
	})
}

func (p *Pool) transition(slotID string, to SlotState, apply func(*Slot)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.byID[slotID]
	if !ok {
		return fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	s := &p.slots[i]
	if !s.State.CanTransition(to) {
		return fmt.Errorf("slot %s %s → %s: %w", slotID, s.State, to, ErrInvalidTransition)
	}
	s.State = to
	apply(s)
	return nil
}

// Get returns the slot with the given id.
func (p *Pool) Get(slotID string) (Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.byID[slotID]
	if !ok {
		return Slot{}, false
	}
	return p.slots[i], true
}

// Counts tallies the slots of one position.
func (p *Pool) Counts(positionID string) SlotCounts {
	p.mu.Lock()
	defer p.mu.Unlock()
	var c SlotCounts
	for _, i := range p.byPosition[positionID] {
		c.add(p.slots[i].State)
	}
	return c
}

// Slots returns a copy of every slot in creation order.
func (p *Pool) Slots() []Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Slot, len(p.slots))
	copy(out, p.slots)
	return out
}
