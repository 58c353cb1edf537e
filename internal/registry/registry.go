// Package registry holds the candidate and position records the allocation
// engine is seeded from, and the preference editing candidates do before
// allocation starts.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"jobmate/allocation-service/internal/allocation"
)

// ─── Registry ────────────────────────────────────────────────────────────────

// Registry is the loaded record set. It is safe for concurrent use. Once
// frozen, preference edits are refused.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	candidates   []allocation.Candidate
	candidateIdx map[string]int
	positions    []allocation.Position
	positionIdx  map[string]int

	version uint64
	frozen  bool
}

// New copies the records into a registry. Records without an id or category
// and duplicate ids are logged and skipped. A missing candidate state
// defaults to pending; a pending candidate with preferences is responded.
func New(candidates []allocation.Candidate, positions []allocation.Position, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:       logger,
		candidateIdx: make(map[string]int),
		positionIdx:  make(map[string]int),
	}

	for _, p := range positions {
		if err := p.Validate(); err != nil {
			logger.Warn("registry: position skipped", "err", err)
			continue
		}
		if _, dup := r.positionIdx[p.ID]; dup {
			logger.Warn("registry: duplicate position skipped", "positionId", p.ID)
			continue
		}
		p.Requirements = slices.Clone(p.Requirements)
		r.positionIdx[p.ID] = len(r.positions)
		r.positions = append(r.positions, p)
	}

	for _, c := range candidates {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Category) == "" {
			logger.Warn("registry: candidate skipped", "err",
				&allocation.ValidationError{Record: "candidate " + c.ID, Msg: "id and category are required"})
			continue
		}
		if _, dup := r.candidateIdx[c.ID]; dup {
			logger.Warn("registry: duplicate candidate skipped", "candidateId", c.ID)
			continue
		}
		c.Degrees = slices.Clone(c.Degrees)
		c.Preferences = slices.Clone(c.Preferences)
		if c.State == "" {
			c.State = allocation.CandidatePending
		}
		if c.State == allocation.CandidatePending && len(c.Preferences) > 0 {
			c.State = allocation.CandidateResponded
		}
		r.candidateIdx[c.ID] = len(r.candidates)
		r.candidates = append(r.candidates, c)
	}
	return r
}

// Candidates returns a copy of every candidate in load order.
func (r *Registry) Candidates() []allocation.Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]allocation.Candidate, 0, len(r.candidates))
	for _, c := range r.candidates {
		out = append(out, copyCandidate(c))
	}
	return out
}

// Positions returns a copy of every position in load order.
func (r *Registry) Positions() []allocation.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]allocation.Position, 0, len(r.positions))
	for _, p := range r.positions {
		p.Requirements = slices.Clone(p.Requirements)
		out = append(out, p)
	}
	return out
}

// Candidate returns a copy of one candidate.
func (r *Registry) Candidate(id string) (allocation.Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.candidateIdx[id]
	if !ok {
		return allocation.Candidate{}, fmt.Errorf("candidate %s: %w", id, allocation.ErrNotFound)
	}
	return copyCandidate(r.candidates[i]), nil
}

// Version increases on every successful edit.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Freeze refuses any further edit.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// ─── Preference editing ──────────────────────────────────────────────────────

// TogglePreference removes positionID from the candidate's list if present,
// re-numbering the ranks that follow, or appends it at the lowest rank. The
// list holds at most allocation.MaxPreferences entries and only positions of
// the candidate's category. A non-empty list marks the candidate responded,
// an empty one pending.
func (r *Registry) TogglePreference(candidateID, positionID string) (allocation.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.editable(candidateID)
	if err != nil {
		return allocation.Candidate{}, err
	}
	pi, ok := r.positionIdx[positionID]
	if !ok {
		return allocation.Candidate{}, fmt.Errorf("position %s: %w", positionID, allocation.ErrNotFound)
	}
	pos := r.positions[pi]

	prefs := c.RankedPreferences()
	if i := slices.IndexFunc(prefs, func(p allocation.Preference) bool { return p.PositionID == positionID }); i >= 0 {
		prefs = slices.Delete(prefs, i, i+1)
	} else {
		if pos.Category != c.Category {
			return allocation.Candidate{}, &allocation.ValidationError{
				Record: "candidate " + c.ID,
				Msg:    fmt.Sprintf("position %s belongs to category %s", pos.ID, pos.Category),
			}
		}
		if len(prefs) >= allocation.MaxPreferences {
			return allocation.Candidate{}, &allocation.ValidationError{
				Record: "candidate " + c.ID,
				Msg:    fmt.Sprintf("at most %d preferences", allocation.MaxPreferences),
			}
		}
		prefs = append(prefs, allocation.Preference{PositionID: positionID})
	}
	r.setPreferences(c, prefs)
	return copyCandidate(*c), nil
}

// ReorderPreferences replaces the order of the candidate's preferences.
// positionIDs must list exactly the positions already chosen.
func (r *Registry) ReorderPreferences(candidateID string, positionIDs []string) (allocation.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.editable(candidateID)
	if err != nil {
		return allocation.Candidate{}, err
	}
	current := make([]string, 0, len(c.Preferences))
	for _, p := range c.Preferences {
		current = append(current, p.PositionID)
	}
	want := slices.Clone(positionIDs)
	slices.Sort(current)
	slices.Sort(want)
	if !slices.Equal(current, want) {
		return allocation.Candidate{}, &allocation.ValidationError{
			Record: "candidate " + c.ID,
			Msg:    "reorder must list exactly the chosen positions",
		}
	}

	prefs := make([]allocation.Preference, 0, len(positionIDs))
	for _, id := range positionIDs {
		prefs = append(prefs, allocation.Preference{PositionID: id})
	}
	r.setPreferences(c, prefs)
	return copyCandidate(*c), nil
}

// EligiblePositions lists the positions a candidate may choose: same
// category and specialty, with at least one available slot.
func (r *Registry) EligiblePositions(candidateID string) ([]allocation.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.candidateIdx[candidateID]
	if !ok {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, allocation.ErrNotFound)
	}
	c := r.candidates[i]
	out := make([]allocation.Position, 0)
	for _, p := range r.positions {
		if p.Category == c.Category && p.Specialty == c.Specialty && p.AvailableSlots > 0 {
			p.Requirements = slices.Clone(p.Requirements)
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Registry) editable(candidateID string) (*allocation.Candidate, error) {
	if r.frozen {
		return nil, fmt.Errorf("allocation started, preferences are locked: %w", allocation.ErrInvalidTransition)
	}
	i, ok := r.candidateIdx[candidateID]
	if !ok {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, allocation.ErrNotFound)
	}
	c := &r.candidates[i]
	if c.State != allocation.CandidatePending && c.State != allocation.CandidateResponded {
		return nil, fmt.Errorf("candidate %s is %s: %w", c.ID, c.State, allocation.ErrInvalidTransition)
	}
	return c, nil
}

// setPreferences stores prefs in order with ranks 1..n.
func (r *Registry) setPreferences(c *allocation.Candidate, prefs []allocation.Preference) {
	for i := range prefs {
		prefs[i].Rank = i + 1
	}
	c.Preferences = prefs
	if len(prefs) > 0 {
		c.State = allocation.CandidateResponded
	} else {
		c.State = allocation.CandidatePending
	}
	r.version++
	r.logger.Info("registry: preferences updated", "candidateId", c.ID, "count", len(prefs))
}

func copyCandidate(c allocation.Candidate) allocation.Candidate {
	c.Degrees = slices.Clone(c.Degrees)
	c.Preferences = slices.Clone(c.Preferences)
	return c
}

// SplitList parses a ';'-delimited cell into trimmed, non-empty items.
func SplitList(s string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(s, ";") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
