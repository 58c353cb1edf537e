package allocation

import "math"

// CandidateCounts tallies candidates by state. Answered counts every
// candidate that submitted preferences (responded, offered, hired, rejected).
type CandidateCounts struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Responded    int `json:"responded"`
	Disqualified int `json:"disqualified"`
	Offered      int `json:"offered"`
	Hired        int `json:"hired"`
	Rejected     int `json:"rejected"`
	Answered     int `json:"answered"`
}

// OfferCounts tallies offers by state. Automatic counts deadline rejections.
type OfferCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Automatic int `json:"automatic"`
}

// PositionDetail is the live view of one position.
type PositionDetail struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Department           string     `json:"department"`
	Category             string     `json:"category"`
	InitialSlots         int        `json:"initialSlots"`
	Slots                SlotCounts `json:"slots"`
	Available            int        `json:"available"`
	InterestedCandidates int        `json:"interestedCandidates"`
	PendingOffers        int        `json:"pendingOffers"`
}

// Statistics is the global aggregate view.
type Statistics struct {
	Candidates     CandidateCounts  `json:"candidates"`
	Slots          SlotCounts       `json:"slots"`
	Offers         OfferCounts      `json:"offers"`
	AcceptanceRate int              `json:"acceptanceRate"`
	ActiveGroups   int              `json:"activeGroups"`
	FinishedGroups int              `json:"finishedGroups"`
	TotalGroups    int              `json:"totalGroups"`
	Active         bool             `json:"active"`
	Positions      []PositionDetail `json:"positions"`
}

// GroupStatistics is the aggregate view of one group. Slot counts cover the
// slots of the group's category.
type GroupStatistics struct {
	Key              string     `json:"key"`
	Category         string     `json:"category"`
	Round            int        `json:"round"`
	State            RoundState `json:"state"`
	ActiveCandidates int        `json:"activeCandidates"`
	PendingOffers    int        `json:"pendingOffers"`
	AcceptedOffers   int        `json:"acceptedOffers"`
	RejectedOffers   int        `json:"rejectedOffers"`
	Slots            SlotCounts `json:"slots"`
}

// AcceptanceRate is accepted/total as a rounded percentage, 0 without offers.
func AcceptanceRate(accepted, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(accepted) / float64(total) * 100))
}

// ComputeStatistics aggregates a snapshot. It has no side effects.
func ComputeStatistics(s Snapshot) Statistics {
	var st Statistics

	for _, c := range s.Candidates {
		st.Candidates.Total++
		switch c.State {
		case CandidatePending:
			st.Candidates.Pending++
		case CandidateResponded:
			st.Candidates.Responded++
		case CandidateDisqualified:
			st.Candidates.Disqualified++
		case CandidateOffered:
			st.Candidates.Offered++
		case CandidateHired:
			st.Candidates.Hired++
		case CandidateRejected:
			st.Candidates.Rejected++
		}
	}
	st.Candidates.Answered = st.Candidates.Responded + st.Candidates.Offered +
		st.Candidates.Hired + st.Candidates.Rejected

	slotsByPosition := make(map[string]SlotCounts)
	for _, sl := range s.Slots {
		st.Slots.add(sl.State)
		c := slotsByPosition[sl.PositionID]
		c.add(sl.State)
		slotsByPosition[sl.PositionID] = c
	}

	pendingByPosition := make(map[string]int)
	for _, o := range s.Offers {
		st.Offers.Total++
		switch o.State {
		case OfferPending:
			st.Offers.Pending++
			pendingByPosition[o.PositionID]++
		case OfferAccepted:
			st.Offers.Accepted++
		case OfferRejected:
			st.Offers.Rejected++
			if o.Automatic {
				st.Offers.Automatic++
			}
		}
	}
	st.AcceptanceRate = AcceptanceRate(st.Offers.Accepted, st.Offers.Total)

	for _, g := range s.Groups {
		st.TotalGroups++
		switch g.State {
		case RoundFinished:
			st.FinishedGroups++
		case RoundRunning, RoundAwaiting:
			st.Active = true
			st.ActiveGroups++
		default:
			st.ActiveGroups++
		}
	}

	st.Positions = make([]PositionDetail, 0, len(s.Positions))
	for _, p := range s.Positions {
		counts := slotsByPosition[p.ID]
		interested := 0
		for i := range s.Candidates {
			if s.Candidates[i].Interested(p.ID) {
				interested++
			}
		}
		st.Positions = append(st.Positions, PositionDetail{
			ID:                   p.ID,
			Title:                p.Title,
			Department:           p.Department,
			Category:             p.Category,
			InitialSlots:         p.InitialSlots,
			Slots:                counts,
			Available:            counts.Free,
			InterestedCandidates: interested,
			PendingOffers:        pendingByPosition[p.ID],
		})
	}
	return st
}

// ComputeGroupStatistics aggregates a snapshot per group, in group order.
func ComputeGroupStatistics(s Snapshot) []GroupStatistics {
	out := make([]GroupStatistics, 0, len(s.Groups))
	for _, g := range s.Groups {
		gs := GroupStatistics{
			Key:              g.Key,
			Category:         g.Category,
			Round:            g.Round,
			State:            g.State,
			ActiveCandidates: len(g.ActiveCandidateIDs),
			PendingOffers:    len(g.PendingOfferIDs),
		}
		for _, o := range s.Offers {
			if o.GroupKey != g.Key {
				continue
			}
			switch o.State {
			case OfferAccepted:
				gs.AcceptedOffers++
			case OfferRejected:
				gs.RejectedOffers++
			}
		}
		for _, sl := range s.Slots {
			if sl.Category == g.Category {
				gs.Slots.add(sl.State)
			}
		}
		out = append(out, gs)
	}
	return out
}
