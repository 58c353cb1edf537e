package allocation

import (
	"cmp"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Group is the round-based matcher of one category. It references candidates
// and offers by id only; the engine resolves them through its indices.
type Group struct {
	Key            string
	Category       string
	Round          int
	State          RoundState
	PhaseStartedAt time.Time

	active    mapset.Set[string] // candidate ids still eligible
	pending   mapset.Set[string] // offer ids awaiting confirmation
	blockedOn mapset.Set[string] // position ids the last halt waited on
	queued    bool               // a round is already on the task queue
}

// GroupView is a read-only copy of a group.
type GroupView struct {
	Key                string     `json:"key"`
	Category           string     `json:"category"`
	Round              int        `json:"round"`
	State              RoundState `json:"state"`
	PhaseStartedAt     time.Time  `json:"phaseStartedAt"`
	ActiveCandidateIDs []string   `json:"activeCandidateIds"`
	PendingOfferIDs    []string   `json:"pendingOfferIds"`
	BlockedOn          []string   `json:"blockedOn,omitempty"`
}

// GroupKey names the group of a category.
func GroupKey(category string) string {
	return category + "-1"
}

func newGroup(category string) *Group {
	return &Group{
		Key:       GroupKey(category),
		Category:  category,
		Round:     1,
		State:     RoundPreparing,
		active:    mapset.NewThreadUnsafeSet[string](),
		pending:   mapset.NewThreadUnsafeSet[string](),
		blockedOn: mapset.NewThreadUnsafeSet[string](),
	}
}

func (g *Group) view() GroupView {
	return GroupView{
		Key:                g.Key,
		Category:           g.Category,
		Round:              g.Round,
		State:              g.State,
		PhaseStartedAt:     g.PhaseStartedAt,
		ActiveCandidateIDs: sortedIDs(g.active),
		PendingOfferIDs:    sortedIDs(g.pending),
		BlockedOn:          sortedIDs(g.blockedOn),
	}
}

func sortedIDs(s mapset.Set[string]) []string {
	ids := s.ToSlice()
	slices.Sort(ids)
	return ids
}

// formGroups creates one group per category in order of first appearance and
// seeds it with the candidates that responded.
func formGroups(candidates []Candidate) (map[string]*Group, []string) {
	groups := make(map[string]*Group)
	var order []string
	for _, c := range candidates {
		g, ok := groups[c.Category]
		if !ok {
			g = newGroup(c.Category)
			groups[c.Category] = g
			order = append(order, c.Category)
		}
		if c.State == CandidateResponded {
			g.active.Add(c.ID)
		}
	}
	return groups, order
}

// rankCandidates orders candidates by score descending. Equal scores keep
// registry order, so the ranking is reproducible.
func rankCandidates(candidates []*Candidate, registryIndex map[string]int) {
	slices.SortFunc(candidates, func(a, b *Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(registryIndex[a.ID], registryIndex[b.ID])
	})
}
