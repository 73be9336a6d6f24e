package db

import (
	"time"

	"github.com/google/uuid"
)

// Pathway represents a career pathway that checklists and market signals
// attach to.
type Pathway struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Skill represents a normalized skill name referenced by checklist items.
type Skill struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserPathway records which pathway a user is working toward.
type UserPathway struct {
	UserID    uuid.UUID `json:"user_id"`
	PathwayID uuid.UUID `json:"pathway_id"`
	CreatedAt time.Time `json:"created_at"`
}
