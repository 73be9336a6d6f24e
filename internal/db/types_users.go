package db

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User represents an account.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// AIAuditLog records one AI provider invocation or admin override.
type AIAuditLog struct {
	ID          uuid.UUID  `json:"id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Feature     string     `json:"feature"`
	Model       string     `json:"model,omitempty"`
	PromptInput string     `json:"prompt_input,omitempty"`
	ContextIDs  []string   `json:"context_ids,omitempty"`
	Output      string     `json:"output,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
