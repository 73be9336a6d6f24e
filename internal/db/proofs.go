package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const proofColumns = `id, user_id, item_id, proof_type, url, storage_key, proficiency_level,
	status, verdict, metadata, submitted_at, adjudicated_at, created_at`

func scanProof(row pgx.Row) (*Proof, error) {
	var p Proof
	err := row.Scan(&p.ID, &p.UserID, &p.ItemID, &p.ProofType, &p.URL, &p.StorageKey,
		&p.ProficiencyLevel, &p.Status, &p.Verdict, &p.Metadata, &p.SubmittedAt,
		&p.AdjudicatedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertProof stores a new proof with the given initial status.
func (db *DB) InsertProof(ctx context.Context, in *ProofInput, status string) (*Proof, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO proofs (user_id, item_id, proof_type, url, storage_key, proficiency_level, status, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+proofColumns,
		in.UserID, in.ItemID, in.ProofType, in.URL, in.StorageKey, in.ProficiencyLevel, status, in.Metadata,
	)
	p, err := scanProof(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert proof: %w", err)
	}
	return p, nil
}

// GetProof retrieves a proof by ID. Returns nil if not found.
func (db *DB) GetProof(ctx context.Context, id uuid.UUID) (*Proof, error) {
	p, err := scanProof(db.pool.QueryRow(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get proof: %w", err)
	}
	return p, nil
}

// SetProofOutcome records an adjudication outcome. The caller is expected
// to have checked for a terminal status first; the WHERE clause makes the
// write idempotent regardless.
func (db *DB) SetProofOutcome(ctx context.Context, id uuid.UUID, status string, verdict *Verdict, metadata JSONMap) (*Proof, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE proofs SET
			status = $2,
			verdict = $3,
			metadata = metadata || $4,
			adjudicated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('verified', 'rejected')
		 RETURNING `+proofColumns,
		id, status, verdict, metadata,
	)
	p, err := scanProof(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Either missing or already terminal; let the caller decide.
			return db.GetProof(ctx, id)
		}
		return nil, fmt.Errorf("failed to set proof outcome: %w", err)
	}
	return p, nil
}

// OverrideProofStatus force-sets a proof's status regardless of its current
// state. Used by admin overrides only.
func (db *DB) OverrideProofStatus(ctx context.Context, id uuid.UUID, status string, verdict *Verdict) (*Proof, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE proofs SET status = $2, verdict = $3, adjudicated_at = NOW()
		 WHERE id = $1
		 RETURNING `+proofColumns,
		id, status, verdict,
	)
	p, err := scanProof(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to override proof status: %w", err)
	}
	return p, nil
}

// ResubmitProof replaces the evidence on a needs_more_evidence proof and
// returns it to submitted.
func (db *DB) ResubmitProof(ctx context.Context, id uuid.UUID, url, storageKey string) (*Proof, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE proofs SET url = $2, storage_key = $3, status = 'submitted', verdict = NULL, submitted_at = NOW()
		 WHERE id = $1 AND status = 'needs_more_evidence'
		 RETURNING `+proofColumns,
		id, url, storageKey,
	)
	p, err := scanProof(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resubmit proof: %w", err)
	}
	return p, nil
}

// ListProofsByUser returns a user's proofs, newest first.
func (db *DB) ListProofsByUser(ctx context.Context, userID uuid.UUID) ([]Proof, error) {
	return db.listProofs(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListProofsByStatus returns proofs in a status across all users, oldest
// first so review queues drain in order.
func (db *DB) ListProofsByStatus(ctx context.Context, status string) ([]Proof, error) {
	return db.listProofs(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE status = $1 ORDER BY submitted_at`, status)
}

// ListProofsForItems returns a user's proofs for the given item IDs.
func (db *DB) ListProofsForItems(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) ([]Proof, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	return db.listProofs(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE user_id = $1 AND item_id = ANY($2) ORDER BY created_at`,
		userID, itemIDs)
}

func (db *DB) listProofs(ctx context.Context, query string, args ...interface{}) ([]Proof, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proofs: %w", err)
	}
	defer rows.Close()

	var out []Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proof: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
