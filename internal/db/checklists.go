package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
)

const itemColumns = `id, version_id, skill_id, label, description, rationale, tier, weight, position,
	allowed_proof_types, is_critical, created_at`

func itemDest(it *ChecklistItem) []interface{} {
	return []interface{}{&it.ID, &it.VersionID, &it.SkillID, &it.Label, &it.Description,
		&it.Rationale, &it.Tier, &it.Weight, &it.Position, &it.AllowedProofTypes,
		&it.IsCritical, &it.CreatedAt}
}

// CreateDraft opens a new draft version for a pathway. When items is nil
// the current published version's items are cloned; otherwise the given
// items become the draft's contents. A pathway can hold at most one open
// draft.
func (db *DB) CreateDraft(ctx context.Context, pathwayID uuid.UUID, items []ChecklistItemInput, notes, actor string) (*ChecklistVersion, error) {
	for _, it := range items {
		if it.Label == "" {
			return nil, fmt.Errorf("item label is required: %w", apperrors.ErrValidation)
		}
		if !ValidTier(it.Tier) {
			return nil, fmt.Errorf("unknown tier %q: %w", it.Tier, apperrors.ErrValidation)
		}
		if it.Weight <= 0 {
			return nil, fmt.Errorf("item weight must be positive: %w", apperrors.ErrValidation)
		}
	}

	var version ChecklistVersion
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockPathway(ctx, tx, pathwayID); err != nil {
			return err
		}

		var existing int
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM checklist_versions WHERE pathway_id = $1 AND status = 'draft'`,
			pathwayID,
		).Scan(&existing)
		if err != nil {
			return fmt.Errorf("failed to check for open draft: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("pathway already has an open draft: %w", apperrors.ErrConflict)
		}

		var next int
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version_number), 0) + 1 FROM checklist_versions WHERE pathway_id = $1`,
			pathwayID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute next version number: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO checklist_versions (pathway_id, version_number, status, notes, created_by)
			 VALUES ($1, $2, 'draft', $3, $4)
			 RETURNING id, pathway_id, version_number, status, notes, created_by, created_at, published_at`,
			pathwayID, next, notes, actor,
		).Scan(&version.ID, &version.PathwayID, &version.VersionNumber, &version.Status,
			&version.Notes, &version.CreatedBy, &version.CreatedAt, &version.PublishedAt)
		if err != nil {
			return fmt.Errorf("failed to insert draft version: %w", err)
		}

		if items == nil {
			_, err = tx.Exec(ctx,
				`INSERT INTO checklist_items (version_id, skill_id, label, description, rationale, tier, weight, position, allowed_proof_types, is_critical)
				 SELECT $1, skill_id, label, description, rationale, tier, weight, position, allowed_proof_types, is_critical
				 FROM checklist_items
				 WHERE version_id = (SELECT id FROM checklist_versions WHERE pathway_id = $2 AND status = 'published')`,
				version.ID, pathwayID,
			)
			if err != nil {
				return fmt.Errorf("failed to clone published items: %w", err)
			}
		} else {
			for _, it := range items {
				critical := true
				if it.IsCritical != nil {
					critical = *it.IsCritical
				}
				_, err = tx.Exec(ctx,
					`INSERT INTO checklist_items (version_id, skill_id, label, description, rationale, tier, weight, position, allowed_proof_types, is_critical)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
					version.ID, it.SkillID, it.Label, it.Description, it.Rationale, it.Tier, it.Weight, it.Position,
					it.AllowedProofTypes, critical,
				)
				if err != nil {
					return fmt.Errorf("failed to insert draft item: %w", err)
				}
			}
		}

		return appendChange(ctx, tx, pathwayID, &version.ID, ChangeDraftCreated,
			fmt.Sprintf("draft v%d created", version.VersionNumber), actor)
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// Publish promotes a draft version to published. The previously published
// version, if any, is demoted to archived in the same transaction.
func (db *DB) Publish(ctx context.Context, versionID uuid.UUID, actor string) (*ChecklistVersion, error) {
	var version ChecklistVersion
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		pathwayID, status, number, err := versionForUpdate(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if status != VersionDraft {
			return fmt.Errorf("cannot publish version in status %q: %w", status, apperrors.ErrInvalidState)
		}

		_, err = tx.Exec(ctx,
			`UPDATE checklist_versions SET status = 'archived' WHERE pathway_id = $1 AND status = 'published'`,
			pathwayID,
		)
		if err != nil {
			return fmt.Errorf("failed to archive published version: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE checklist_versions SET status = 'published', published_at = NOW()
			 WHERE id = $1
			 RETURNING id, pathway_id, version_number, status, notes, created_by, created_at, published_at`,
			versionID,
		).Scan(&version.ID, &version.PathwayID, &version.VersionNumber, &version.Status,
			&version.Notes, &version.CreatedBy, &version.CreatedAt, &version.PublishedAt)
		if err != nil {
			return fmt.Errorf("failed to publish version: %w", err)
		}

		return appendChange(ctx, tx, pathwayID, &versionID, ChangePublished,
			fmt.Sprintf("published v%d", number), actor)
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// Rollback retires the currently published version and restores the most
// recent archived predecessor, including its full item set.
func (db *DB) Rollback(ctx context.Context, pathwayID uuid.UUID, actor string) (*ChecklistVersion, error) {
	var version ChecklistVersion
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockPathway(ctx, tx, pathwayID); err != nil {
			return err
		}

		var currentID uuid.UUID
		var currentNumber int
		err := tx.QueryRow(ctx,
			`SELECT id, version_number FROM checklist_versions WHERE pathway_id = $1 AND status = 'published'`,
			pathwayID,
		).Scan(&currentID, &currentNumber)
		if err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("pathway has no published version: %w", apperrors.ErrInvalidState)
			}
			return fmt.Errorf("failed to find published version: %w", err)
		}

		var previousID uuid.UUID
		var previousNumber int
		err = tx.QueryRow(ctx,
			`SELECT id, version_number FROM checklist_versions
			 WHERE pathway_id = $1 AND status = 'archived'
			 ORDER BY version_number DESC LIMIT 1`,
			pathwayID,
		).Scan(&previousID, &previousNumber)
		if err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("no archived version to roll back to: %w", apperrors.ErrInvalidState)
			}
			return fmt.Errorf("failed to find rollback target: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE checklist_versions SET status = 'rolled_back' WHERE id = $1`, currentID)
		if err != nil {
			return fmt.Errorf("failed to retire published version: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE checklist_versions SET status = 'published', published_at = NOW()
			 WHERE id = $1
			 RETURNING id, pathway_id, version_number, status, notes, created_by, created_at, published_at`,
			previousID,
		).Scan(&version.ID, &version.PathwayID, &version.VersionNumber, &version.Status,
			&version.Notes, &version.CreatedBy, &version.CreatedAt, &version.PublishedAt)
		if err != nil {
			return fmt.Errorf("failed to restore archived version: %w", err)
		}

		return appendChange(ctx, tx, pathwayID, &previousID, ChangeRolledBack,
			fmt.Sprintf("rolled back from v%d to v%d", currentNumber, previousNumber), actor)
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// UpdateItem modifies a draft item. Items on published or retired versions
// are immutable.
func (db *DB) UpdateItem(ctx context.Context, itemID uuid.UUID, update ChecklistItemUpdate, actor string) (*ChecklistItem, error) {
	if update.Tier != nil && !ValidTier(*update.Tier) {
		return nil, fmt.Errorf("unknown tier %q: %w", *update.Tier, apperrors.ErrValidation)
	}
	if update.Weight != nil && *update.Weight <= 0 {
		return nil, fmt.Errorf("item weight must be positive: %w", apperrors.ErrValidation)
	}

	var item ChecklistItem
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		pathwayID, versionID, err := draftItemForUpdate(ctx, tx, itemID)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`UPDATE checklist_items SET
				label = COALESCE($2, label),
				description = COALESCE($3, description),
				rationale = COALESCE($4, rationale),
				tier = COALESCE($5, tier),
				weight = COALESCE($6, weight),
				position = COALESCE($7, position),
				allowed_proof_types = COALESCE($8, allowed_proof_types),
				is_critical = COALESCE($9, is_critical)
			 WHERE id = $1
			 RETURNING `+itemColumns,
			itemID, update.Label, update.Description, update.Rationale, update.Tier, update.Weight, update.Position,
			update.AllowedProofTypes, update.IsCritical,
		).Scan(itemDest(&item)...)
		if err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}

		return appendChange(ctx, tx, pathwayID, &versionID, ChangeItemUpdated,
			fmt.Sprintf("item %q updated", item.Label), actor)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes a draft item.
func (db *DB) DeleteItem(ctx context.Context, itemID uuid.UUID, actor string) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		pathwayID, versionID, err := draftItemForUpdate(ctx, tx, itemID)
		if err != nil {
			return err
		}

		var label string
		err = tx.QueryRow(ctx,
			`DELETE FROM checklist_items WHERE id = $1 RETURNING label`, itemID,
		).Scan(&label)
		if err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}

		return appendChange(ctx, tx, pathwayID, &versionID, ChangeItemDeleted,
			fmt.Sprintf("item %q deleted", label), actor)
	})
}

// PublishedVersion returns the pathway's current published version, or nil
// when none has been published yet.
func (db *DB) PublishedVersion(ctx context.Context, pathwayID uuid.UUID) (*ChecklistVersion, error) {
	var v ChecklistVersion
	err := db.pool.QueryRow(ctx,
		`SELECT id, pathway_id, version_number, status, notes, created_by, created_at, published_at
		 FROM checklist_versions WHERE pathway_id = $1 AND status = 'published'`,
		pathwayID,
	).Scan(&v.ID, &v.PathwayID, &v.VersionNumber, &v.Status, &v.Notes, &v.CreatedBy, &v.CreatedAt, &v.PublishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get published version: %w", err)
	}
	return &v, nil
}

// DraftVersion returns the pathway's open draft, or nil when none is
// open.
func (db *DB) DraftVersion(ctx context.Context, pathwayID uuid.UUID) (*ChecklistVersion, error) {
	var v ChecklistVersion
	err := db.pool.QueryRow(ctx,
		`SELECT id, pathway_id, version_number, status, notes, created_by, created_at, published_at
		 FROM checklist_versions WHERE pathway_id = $1 AND status = 'draft'`,
		pathwayID,
	).Scan(&v.ID, &v.PathwayID, &v.VersionNumber, &v.Status, &v.Notes, &v.CreatedBy, &v.CreatedAt, &v.PublishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get draft version: %w", err)
	}
	return &v, nil
}

// GetVersion retrieves a version by ID. Returns nil if not found.
func (db *DB) GetVersion(ctx context.Context, versionID uuid.UUID) (*ChecklistVersion, error) {
	var v ChecklistVersion
	err := db.pool.QueryRow(ctx,
		`SELECT id, pathway_id, version_number, status, notes, created_by, created_at, published_at
		 FROM checklist_versions WHERE id = $1`,
		versionID,
	).Scan(&v.ID, &v.PathwayID, &v.VersionNumber, &v.Status, &v.Notes, &v.CreatedBy, &v.CreatedAt, &v.PublishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &v, nil
}

// ListVersions returns all versions for a pathway, newest first.
func (db *DB) ListVersions(ctx context.Context, pathwayID uuid.UUID) ([]ChecklistVersion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, pathway_id, version_number, status, notes, created_by, created_at, published_at
		 FROM checklist_versions WHERE pathway_id = $1 ORDER BY version_number DESC`,
		pathwayID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []ChecklistVersion
	for rows.Next() {
		var v ChecklistVersion
		if err := rows.Scan(&v.ID, &v.PathwayID, &v.VersionNumber, &v.Status, &v.Notes,
			&v.CreatedBy, &v.CreatedAt, &v.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListItems returns a version's items ordered by position.
func (db *DB) ListItems(ctx context.Context, versionID uuid.UUID) ([]ChecklistItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE version_id = $1 ORDER BY position, created_at`,
		versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var out []ChecklistItem
	for rows.Next() {
		var it ChecklistItem
		if err := rows.Scan(itemDest(&it)...); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetItem retrieves a checklist item by ID. Returns nil if not found.
func (db *DB) GetItem(ctx context.Context, itemID uuid.UUID) (*ChecklistItem, error) {
	var it ChecklistItem
	err := db.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE id = $1`,
		itemID,
	).Scan(itemDest(&it)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &it, nil
}

// ListChanges returns a pathway's change log, newest first.
func (db *DB) ListChanges(ctx context.Context, pathwayID uuid.UUID, limit int) ([]ChecklistChange, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, pathway_id, version_id, action, detail, actor, created_at
		 FROM checklist_changes WHERE pathway_id = $1 ORDER BY created_at DESC LIMIT $2`,
		pathwayID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var out []ChecklistChange
	for rows.Next() {
		var c ChecklistChange
		if err := rows.Scan(&c.ID, &c.PathwayID, &c.VersionID, &c.Action, &c.Detail, &c.Actor, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// versionForUpdate locks a version's pathway and returns the version's
// pathway, status, and number.
func versionForUpdate(ctx context.Context, tx pgx.Tx, versionID uuid.UUID) (uuid.UUID, string, int, error) {
	var pathwayID uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT pathway_id FROM checklist_versions WHERE id = $1`, versionID,
	).Scan(&pathwayID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, "", 0, notFound("checklist version")
		}
		return uuid.Nil, "", 0, fmt.Errorf("failed to find version: %w", err)
	}

	if err := lockPathway(ctx, tx, pathwayID); err != nil {
		return uuid.Nil, "", 0, err
	}

	// Re-read after taking the lock; status may have changed.
	var status string
	var number int
	err = tx.QueryRow(ctx,
		`SELECT status, version_number FROM checklist_versions WHERE id = $1`, versionID,
	).Scan(&status, &number)
	if err != nil {
		return uuid.Nil, "", 0, fmt.Errorf("failed to read version: %w", err)
	}
	return pathwayID, status, number, nil
}

// draftItemForUpdate locks the owning pathway and verifies the item
// belongs to an open draft.
func draftItemForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (pathwayID, versionID uuid.UUID, err error) {
	err = tx.QueryRow(ctx,
		`SELECT v.pathway_id, v.id FROM checklist_items i
		 JOIN checklist_versions v ON v.id = i.version_id
		 WHERE i.id = $1`,
		itemID,
	).Scan(&pathwayID, &versionID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, uuid.Nil, notFound("checklist item")
		}
		return uuid.Nil, uuid.Nil, fmt.Errorf("failed to find item: %w", err)
	}

	if err = lockPathway(ctx, tx, pathwayID); err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM checklist_versions WHERE id = $1`, versionID,
	).Scan(&status)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("failed to read version status: %w", err)
	}
	if status != VersionDraft {
		return uuid.Nil, uuid.Nil, fmt.Errorf("items of a %s version are immutable: %w", status, apperrors.ErrInvalidState)
	}
	return pathwayID, versionID, nil
}

func appendChange(ctx context.Context, tx pgx.Tx, pathwayID uuid.UUID, versionID *uuid.UUID, action, detail, actor string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO checklist_changes (pathway_id, version_id, action, detail, actor)
		 VALUES ($1, $2, $3, $4, $5)`,
		pathwayID, versionID, action, detail, actor,
	)
	if err != nil {
		return fmt.Errorf("failed to append change log: %w", err)
	}
	return nil
}
