package registry

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"jobmate/allocation-service/internal/allocation"
)

// Fixture is the YAML layout of a registry file. List cells (degrees,
// requirements) keep the ';'-delimited form of the spreadsheets they are
// exported from; preferences list position ids from rank 1 down.
type Fixture struct {
	Candidates []CandidateRecord `yaml:"candidates"`
	Positions  []PositionRecord  `yaml:"positions"`
}

type CandidateRecord struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Email       string   `yaml:"email"`
	Phone       string   `yaml:"phone"`
	Category    string   `yaml:"category"`
	Specialty   string   `yaml:"specialty"`
	Score       float64  `yaml:"score"`
	Experience  float64  `yaml:"experience"`
	Degrees     string   `yaml:"degrees"`
	State       string   `yaml:"state"`
	Preferences []string `yaml:"preferences"`
}

type PositionRecord struct {
	ID             string `yaml:"id"`
	Title          string `yaml:"title"`
	Department     string `yaml:"department"`
	Category       string `yaml:"category"`
	Specialty      string `yaml:"specialty"`
	Shift          string `yaml:"shift"`
	ContractType   string `yaml:"contract_type"`
	Salary         string `yaml:"salary"`
	Requirements   string `yaml:"requirements"`
	InitialSlots   int    `yaml:"initial_slots"`
	AvailableSlots *int   `yaml:"available_slots"`
}

// LoadYAML reads a fixture file and builds a registry from it.
func LoadYAML(path string, logger *slog.Logger) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f.Registry(logger), nil
}

// Registry converts the fixture records.
func (f Fixture) Registry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	candidates := make([]allocation.Candidate, 0, len(f.Candidates))
	for _, rec := range f.Candidates {
		candidates = append(candidates, rec.candidate(logger))
	}
	positions := make([]allocation.Position, 0, len(f.Positions))
	for _, rec := range f.Positions {
		positions = append(positions, rec.position())
	}
	return New(candidates, positions, logger)
}

func (rec CandidateRecord) candidate(logger *slog.Logger) allocation.Candidate {
	c := allocation.Candidate{
		ID:         rec.ID,
		Name:       rec.Name,
		Email:      rec.Email,
		Phone:      rec.Phone,
		Category:   rec.Category,
		Specialty:  rec.Specialty,
		Score:      rec.Score,
		Experience: rec.Experience,
		Degrees:    SplitList(rec.Degrees),
		State:      allocation.CandidatePending,
	}
	if rec.State != "" {
		st, err := allocation.ParseCandidateState(rec.State)
		if err != nil {
			logger.Warn("registry: unknown candidate state, using pending", "candidateId", rec.ID, "err", err)
		} else {
			c.State = st
		}
	}
	for i, posID := range rec.Preferences {
		c.Preferences = append(c.Preferences, allocation.Preference{PositionID: posID, Rank: i + 1})
	}
	return c
}

// position defaults the available count to the initial count when absent.
func (rec PositionRecord) position() allocation.Position {
	available := rec.InitialSlots
	if rec.AvailableSlots != nil {
		available = *rec.AvailableSlots
	}
	return allocation.Position{
		ID:             rec.ID,
		Title:          rec.Title,
		Department:     rec.Department,
		Category:       rec.Category,
		Specialty:      rec.Specialty,
		Shift:          rec.Shift,
		ContractType:   rec.ContractType,
		Salary:         rec.Salary,
		Requirements:   SplitList(rec.Requirements),
		InitialSlots:   rec.InitialSlots,
		AvailableSlots: available,
	}
}
