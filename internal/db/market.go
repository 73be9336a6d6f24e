package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
)

// InsertSignals stores a batch of market signals for a pathway.
func (db *DB) InsertSignals(ctx context.Context, pathwayID uuid.UUID, signals []MarketSignalInput) (int, error) {
	inserted := 0
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		for _, s := range signals {
			_, err := tx.Exec(ctx,
				`INSERT INTO market_signals (pathway_id, skill, role_family, source, frequency, observed_at, window_start, window_end, source_count)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				pathwayID, s.Skill, s.RoleFamily, s.Source, s.Frequency, s.ObservedAt,
				s.WindowStart, s.WindowEnd, s.SourceCount,
			)
			if err != nil {
				return fmt.Errorf("failed to insert signal %q: %w", s.Skill, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListSignals returns a pathway's signals observed since the cutoff,
// newest first.
func (db *DB) ListSignals(ctx context.Context, pathwayID uuid.UUID, since time.Time) ([]MarketSignal, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, pathway_id, skill, role_family, source, frequency, observed_at, window_start, window_end, source_count, created_at
		 FROM market_signals
		 WHERE pathway_id = $1 AND observed_at >= $2
		 ORDER BY observed_at DESC`,
		pathwayID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var out []MarketSignal
	for rows.Next() {
		var s MarketSignal
		if err := rows.Scan(&s.ID, &s.PathwayID, &s.Skill, &s.RoleFamily, &s.Source, &s.Frequency,
			&s.ObservedAt, &s.WindowStart, &s.WindowEnd, &s.SourceCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordRawIngestion writes the audit row for one external fetch batch.
func (db *DB) RecordRawIngestion(ctx context.Context, source, storageKey string, metadata JSONMap) (*MarketRawIngestion, error) {
	var r MarketRawIngestion
	err := db.pool.QueryRow(ctx,
		`INSERT INTO market_raw_ingestions (source, storage_key, metadata)
		 VALUES ($1, $2, $3)
		 RETURNING id, source, fetched_at, storage_key, metadata`,
		source, storageKey, metadata,
	).Scan(&r.ID, &r.Source, &r.FetchedAt, &r.StorageKey, &r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to record raw ingestion: %w", err)
	}
	return &r, nil
}

// ListRawIngestions returns recent ingestion audit rows, newest first.
func (db *DB) ListRawIngestions(ctx context.Context, limit int) ([]MarketRawIngestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, source, fetched_at, storage_key, metadata
		 FROM market_raw_ingestions ORDER BY fetched_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw ingestions: %w", err)
	}
	defer rows.Close()

	var out []MarketRawIngestion
	for rows.Next() {
		var r MarketRawIngestion
		if err := rows.Scan(&r.ID, &r.Source, &r.FetchedAt, &r.StorageKey, &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan raw ingestion: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastAutomationRun returns when the automation pipeline last ran for a
// pathway, read from the ingestion audit trail so cooldowns survive
// restarts. Returns nil when it has never run.
func (db *DB) LastAutomationRun(ctx context.Context, pathwayID uuid.UUID) (*time.Time, error) {
	var t time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT fetched_at FROM market_raw_ingestions
		 WHERE source = 'automation' AND metadata->>'pathway_id' = $1
		 ORDER BY fetched_at DESC LIMIT 1`,
		pathwayID.String(),
	).Scan(&t)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last automation run: %w", err)
	}
	return &t, nil
}

const proposalColumns = `id, pathway_id, status, summary, rationale, diff, proposed_version_number,
	created_by, created_at, approved_at, approved_by, published_at, published_by`

func scanProposal(row pgx.Row) (*MarketProposal, error) {
	var p MarketProposal
	err := row.Scan(&p.ID, &p.PathwayID, &p.Status, &p.Summary, &p.Rationale, &p.Diff,
		&p.ProposedVersionNumber, &p.CreatedBy, &p.CreatedAt, &p.ApprovedAt, &p.ApprovedBy,
		&p.PublishedAt, &p.PublishedBy)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertProposal stores a new draft proposal.
func (db *DB) InsertProposal(ctx context.Context, pathwayID uuid.UUID, summary, rationale string, diff ProposalDiff, createdBy string) (*MarketProposal, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO market_proposals (pathway_id, summary, rationale, diff, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+proposalColumns,
		pathwayID, summary, rationale, diff, createdBy,
	)
	p, err := scanProposal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert proposal: %w", err)
	}
	return p, nil
}

// GetProposal retrieves a proposal by ID. Returns nil if not found.
func (db *DB) GetProposal(ctx context.Context, id uuid.UUID) (*MarketProposal, error) {
	p, err := scanProposal(db.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM market_proposals WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return p, nil
}

// ListProposals returns a pathway's proposals, newest first. An empty
// status matches all statuses.
func (db *DB) ListProposals(ctx context.Context, pathwayID uuid.UUID, status string) ([]MarketProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM market_proposals WHERE pathway_id = $1`
	args := []interface{}{pathwayID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var out []MarketProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// TransitionProposal moves a proposal from one status to another,
// recording the actor and timestamp for the transition. Returns
// ErrInvalidState if the proposal is not in the expected status.
func (db *DB) TransitionProposal(ctx context.Context, id uuid.UUID, from, to, actor string) (*MarketProposal, error) {
	var set string
	switch to {
	case ProposalApproved:
		set = `status = $3, approved_at = NOW(), approved_by = $4`
	case ProposalPublished:
		set = `status = $3, published_at = NOW(), published_by = $4`
	case ProposalRejected, ProposalDraft:
		set = `status = $3, approved_by = $4`
	default:
		return nil, fmt.Errorf("unknown proposal status %q: %w", to, apperrors.ErrValidation)
	}

	row := db.pool.QueryRow(ctx,
		`UPDATE market_proposals SET `+set+`
		 WHERE id = $1 AND status = $2
		 RETURNING `+proposalColumns,
		id, from, to, actor,
	)
	p, err := scanProposal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			current, gerr := db.GetProposal(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			if current == nil {
				return nil, notFound("proposal")
			}
			return nil, fmt.Errorf("proposal is %s, expected %s: %w", current.Status, from, apperrors.ErrInvalidState)
		}
		return nil, fmt.Errorf("failed to transition proposal: %w", err)
	}
	return p, nil
}

// SetProposalVersion records which draft version a published proposal
// produced.
func (db *DB) SetProposalVersion(ctx context.Context, id uuid.UUID, versionNumber int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE market_proposals SET proposed_version_number = $2 WHERE id = $1`,
		id, versionNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to set proposal version: %w", err)
	}
	return nil
}
