package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertPathway creates a pathway by name or updates its description and
// active flag if it already exists.
func (db *DB) UpsertPathway(ctx context.Context, name, description string, isActive bool) (*Pathway, error) {
	var p Pathway
	err := db.pool.QueryRow(ctx,
		`INSERT INTO pathways (name, description, is_active)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET description = $2, is_active = $3
		 RETURNING id, name, description, is_active, created_at`,
		name, description, isActive,
	).Scan(&p.ID, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pathway: %w", err)
	}
	return &p, nil
}

// GetPathway retrieves a pathway by ID. Returns nil if not found.
func (db *DB) GetPathway(ctx context.Context, id uuid.UUID) (*Pathway, error) {
	var p Pathway
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, description, is_active, created_at FROM pathways WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pathway: %w", err)
	}
	return &p, nil
}

// ListPathways returns pathways, optionally filtered to active ones.
func (db *DB) ListPathways(ctx context.Context, activeOnly bool) ([]Pathway, error) {
	query := `SELECT id, name, description, is_active, created_at FROM pathways`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pathways: %w", err)
	}
	defer rows.Close()

	var out []Pathway
	for rows.Next() {
		var p Pathway
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pathway: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindOrCreateSkill resolves a skill by case-insensitive name, creating it
// if missing. Names are stored lowercased.
func (db *DB) FindOrCreateSkill(ctx context.Context, name string) (*Skill, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil, fmt.Errorf("skill name is empty")
	}

	var s Skill
	err := db.pool.QueryRow(ctx,
		`INSERT INTO skills (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name, description, created_at`,
		normalized,
	).Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create skill: %w", err)
	}
	return &s, nil
}

// ListSkills returns all skills ordered by name.
func (db *DB) ListSkills(ctx context.Context) ([]Skill, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, description, created_at FROM skills ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		var s Skill
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetUserPathway assigns or replaces the user's selected pathway.
func (db *DB) SetUserPathway(ctx context.Context, userID, pathwayID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_pathways (user_id, pathway_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET pathway_id = $2, created_at = NOW()`,
		userID, pathwayID,
	)
	if err != nil {
		return fmt.Errorf("failed to set user pathway: %w", err)
	}
	return nil
}

// GetUserPathway returns the user's selected pathway ID. Returns uuid.Nil
// if the user has not picked one.
func (db *DB) GetUserPathway(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var pathwayID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT pathway_id FROM user_pathways WHERE user_id = $1`,
		userID,
	).Scan(&pathwayID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to get user pathway: %w", err)
	}
	return pathwayID, nil
}
