package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, email, password_hash, role, created_at, last_login_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new account. The unique constraints on username and
// email surface as errors the caller maps to a conflict.
func (db *DB) CreateUser(ctx context.Context, username, email, passwordHash, role string) (*User, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		username, email, passwordHash, role,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username. Returns nil if not found.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by ID. Returns nil if not found.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// TouchLastLogin records a successful login.
func (db *DB) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE users SET last_login_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch last login: %w", err)
	}
	return nil
}

// InsertAuditLog records one AI invocation or admin override.
func (db *DB) InsertAuditLog(ctx context.Context, log *AIAuditLog) error {
	contextIDs, err := json.Marshal(log.ContextIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal context IDs: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO ai_audit_logs (user_id, feature, model, prompt_input, context_ids, output)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.UserID, log.Feature, log.Model, log.PromptInput, contextIDs, log.Output,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns recent AI audit rows, newest first. An empty
// feature matches all features.
func (db *DB) ListAuditLogs(ctx context.Context, feature string, limit int) ([]AIAuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, feature, model, prompt_input, context_ids, output, created_at
		 FROM ai_audit_logs`
	args := []interface{}{}
	if feature != "" {
		query += ` WHERE feature = $1`
		args = append(args, feature)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var out []AIAuditLog
	for rows.Next() {
		var l AIAuditLog
		var rawContext []byte
		if err := rows.Scan(&l.ID, &l.UserID, &l.Feature, &l.Model, &l.PromptInput, &rawContext, &l.Output, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(rawContext) > 0 {
			if err := json.Unmarshal(rawContext, &l.ContextIDs); err != nil {
				return nil, fmt.Errorf("failed to decode context IDs: %w", err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
