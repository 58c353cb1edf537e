package allocation

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// MaxPreferences is the longest preference list a candidate may submit.
const MaxPreferences = 5

// Preference is one ranked choice of a candidate. Rank 1 is the favourite.
type Preference struct {
	PositionID string `json:"positionId"`
	Rank       int    `json:"rank"`
}

// Candidate is a ranked applicant. The engine mutates State and
// AssignedPositionID only.
type Candidate struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Category           string         `json:"category"`
	Specialty          string         `json:"specialty"`
	Score              float64        `json:"score"`
	Experience         float64        `json:"experience"`
	Degrees            []string       `json:"degrees"`
	State              CandidateState `json:"state"`
	Preferences        []Preference   `json:"preferences"`
	AssignedPositionID string         `json:"assignedPositionId,omitempty"`
}

// Position is a job opening with a fixed number of slots.
type Position struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Department     string   `json:"department"`
	Category       string   `json:"category"`
	Specialty      string   `json:"specialty"`
	Shift          string   `json:"shift"`
	ContractType   string   `json:"contractType"`
	Salary         string   `json:"salary"`
	Requirements   []string `json:"requirements"`
	InitialSlots   int      `json:"initialSlots"`
	AvailableSlots int      `json:"availableSlots"`
}

// Slot is one concrete vacancy unit of a position.
type Slot struct {
	ID          string    `json:"id"`
	PositionID  string    `json:"positionId"`
	Index       int       `json:"index"`
	Category    string    `json:"category"`
	State       SlotState `json:"state"`
	CandidateID string    `json:"candidateId,omitempty"`
	OfferID     string    `json:"offerId,omitempty"`
}

// Offer is a tentative match between a candidate and a slot.
type Offer struct {
	ID             string     `json:"id"`
	CandidateID    string     `json:"candidateId"`
	PositionID     string     `json:"positionId"`
	SlotID         string     `json:"slotId"`
	GroupKey       string     `json:"groupKey"`
	Round          int        `json:"round"`
	PreferenceRank int        `json:"preferenceRank"`
	State          OfferState `json:"state"`
	CreatedAt      time.Time  `json:"createdAt"`
	AcceptDeadline time.Time  `json:"acceptDeadline"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	Automatic      bool       `json:"automatic"`
}

// SlotID returns the id of the index-th slot (1-based) of a position.
func SlotID(positionID string, index int) string {
	return fmt.Sprintf("%s-%d", positionID, index)
}

// RankedPreferences returns the preferences ordered by ascending rank.
func (c *Candidate) RankedPreferences() []Preference {
	prefs := slices.Clone(c.Preferences)
	slices.SortStableFunc(prefs, func(a, b Preference) int { return a.Rank - b.Rank })
	return prefs
}

// Interested reports whether positionID appears in the preference list.
func (c *Candidate) Interested(positionID string) bool {
	return slices.ContainsFunc(c.Preferences, func(p Preference) bool { return p.PositionID == positionID })
}

// Validate checks required fields and the preference list shape: at most
// MaxPreferences entries, unique positions, ranks contiguous from 1.
func (c *Candidate) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &ValidationError{Record: "candidate", Msg: "id is required"}
	}
	if strings.TrimSpace(c.Category) == "" {
		return &ValidationError{Record: "candidate " + c.ID, Msg: "category is required"}
	}
	if len(c.Preferences) > MaxPreferences {
		return &ValidationError{
			Record: "candidate " + c.ID,
			Msg:    fmt.Sprintf("%d preferences exceed the limit of %d", len(c.Preferences), MaxPreferences),
		}
	}
	seen := make(map[string]bool, len(c.Preferences))
	for i, p := range c.RankedPreferences() {
		if p.PositionID == "" {
			return &ValidationError{Record: "candidate " + c.ID, Msg: "preference without position"}
		}
		if seen[p.PositionID] {
			return &ValidationError{Record: "candidate " + c.ID, Msg: fmt.Sprintf("position %s listed twice", p.PositionID)}
		}
		seen[p.PositionID] = true
		if p.Rank != i+1 {
			return &ValidationError{Record: "candidate " + c.ID, Msg: fmt.Sprintf("ranks must be contiguous from 1, got %d at %d", p.Rank, i+1)}
		}
	}
	return nil
}

// Validate checks required fields of a position.
func (p *Position) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{Record: "position", Msg: "id is required"}
	}
	if strings.TrimSpace(p.Category) == "" {
		return &ValidationError{Record: "position " + p.ID, Msg: "category is required"}
	}
	if p.InitialSlots < 0 {
		return &ValidationError{Record: "position " + p.ID, Msg: fmt.Sprintf("negative slot count %d", p.InitialSlots)}
	}
	return nil
}

func cloneCandidate(c Candidate) Candidate {
	c.Degrees = slices.Clone(c.Degrees)
	c.Preferences = slices.Clone(c.Preferences)
	return c
}

func clonePosition(p Position) Position {
	p.Requirements = slices.Clone(p.Requirements)
	return p
}

func cloneOffer(o Offer) Offer {
	if o.ResolvedAt != nil {
		t := *o.ResolvedAt
		o.ResolvedAt = &t
	}
	return o
}
