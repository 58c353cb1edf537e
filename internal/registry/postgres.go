package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LoadPostgres reads positions, candidates and their ranked preferences and
// builds a registry from them. Rows go through the same conversion as YAML
// fixtures.
func LoadPostgres(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Registry, error) {
	positions, err := loadPositions(ctx, pool)
	if err != nil {
		return nil, err
	}
	candidates, err := loadCandidates(ctx, pool)
	if err != nil {
		return nil, err
	}
	prefs, err := loadPreferences(ctx, pool)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].Preferences = prefs[candidates[i].ID]
	}
	return Fixture{Candidates: candidates, Positions: positions}.Registry(logger), nil
}

func loadPositions(ctx context.Context, pool *pgxpool.Pool) ([]PositionRecord, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, COALESCE(title, ''), COALESCE(department, ''), category,
		        COALESCE(specialty, ''), COALESCE(shift, ''), COALESCE(contract_type, ''),
		        COALESCE(salary, ''), COALESCE(requirements, ''),
		        initial_slots, available_slots
		 FROM positions
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Department, &p.Category,
			&p.Specialty, &p.Shift, &p.ContractType,
			&p.Salary, &p.Requirements,
			&p.InitialSlots, &p.AvailableSlots,
		); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func loadCandidates(ctx context.Context, pool *pgxpool.Pool) ([]CandidateRecord, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''),
		        category, COALESCE(specialty, ''), score, experience,
		        COALESCE(degrees, ''), COALESCE(state, '')
		 FROM candidates
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []CandidateRecord
	for rows.Next() {
		var c CandidateRecord
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Email, &c.Phone,
			&c.Category, &c.Specialty, &c.Score, &c.Experience,
			&c.Degrees, &c.State,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// loadPreferences returns each candidate's position ids ordered by rank.
func loadPreferences(ctx context.Context, pool *pgxpool.Pool) (map[string][]string, error) {
	rows, err := pool.Query(ctx,
		`SELECT candidate_id, position_id
		 FROM candidate_preferences
		 ORDER BY candidate_id, rank`,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidate_preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var candidateID, positionID string
		if err := rows.Scan(&candidateID, &positionID); err != nil {
			return nil, fmt.Errorf("scan candidate_preference: %w", err)
		}
		out[candidateID] = append(out[candidateID], positionID)
	}
	return out, rows.Err()
}
