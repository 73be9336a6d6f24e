package db

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. Statements use IF NOT EXISTS
// so repeated boots are safe; column changes still require a manual
// migration.
const schema = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'student',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS pathways (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_pathways (
    user_id    UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    pathway_id UUID NOT NULL REFERENCES pathways(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS skills (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS checklist_versions (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    pathway_id     UUID NOT NULL REFERENCES pathways(id),
    version_number INT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'draft',
    notes          TEXT NOT NULL DEFAULT '',
    created_by     TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    published_at   TIMESTAMPTZ,
    UNIQUE (pathway_id, version_number)
);

CREATE UNIQUE INDEX IF NOT EXISTS one_published_version_per_pathway
    ON checklist_versions (pathway_id) WHERE status = 'published';
CREATE UNIQUE INDEX IF NOT EXISTS one_draft_version_per_pathway
    ON checklist_versions (pathway_id) WHERE status = 'draft';

CREATE TABLE IF NOT EXISTS checklist_items (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    version_id          UUID NOT NULL REFERENCES checklist_versions(id) ON DELETE CASCADE,
    skill_id            UUID REFERENCES skills(id),
    label               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    rationale           TEXT NOT NULL DEFAULT '',
    tier                TEXT NOT NULL DEFAULT 'strong_signal',
    weight              DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    position            INT NOT NULL DEFAULT 0,
    allowed_proof_types JSONB NOT NULL DEFAULT '[]',
    is_critical         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS checklist_changes (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    pathway_id UUID NOT NULL REFERENCES pathways(id),
    version_id UUID REFERENCES checklist_versions(id),
    action     TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    actor      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS proofs (
    id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id           UUID NOT NULL REFERENCES users(id),
    item_id           UUID NOT NULL REFERENCES checklist_items(id),
    proof_type        TEXT NOT NULL,
    url               TEXT NOT NULL DEFAULT '',
    storage_key       TEXT NOT NULL DEFAULT '',
    proficiency_level TEXT NOT NULL DEFAULT 'intermediate',
    status            TEXT NOT NULL DEFAULT 'submitted',
    verdict           JSONB,
    metadata          JSONB NOT NULL DEFAULT '{}',
    submitted_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    adjudicated_at    TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS proofs_user_item ON proofs (user_id, item_id);

CREATE TABLE IF NOT EXISTS market_signals (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    pathway_id   UUID NOT NULL REFERENCES pathways(id),
    skill        TEXT NOT NULL DEFAULT '',
    role_family  TEXT NOT NULL DEFAULT '',
    source       TEXT NOT NULL,
    frequency    DOUBLE PRECISION NOT NULL,
    observed_at  TIMESTAMPTZ NOT NULL,
    window_start TIMESTAMPTZ,
    window_end   TIMESTAMPTZ,
    source_count INT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS market_signals_pathway ON market_signals (pathway_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS market_raw_ingestions (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    source      TEXT NOT NULL,
    fetched_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    storage_key TEXT NOT NULL DEFAULT '',
    metadata    JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS market_proposals (
    id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    pathway_id              UUID NOT NULL REFERENCES pathways(id),
    status                  TEXT NOT NULL DEFAULT 'draft',
    summary                 TEXT NOT NULL DEFAULT '',
    rationale               TEXT NOT NULL DEFAULT '',
    diff                    JSONB NOT NULL DEFAULT '{}',
    proposed_version_number INT,
    created_by              TEXT NOT NULL DEFAULT '',
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    approved_at             TIMESTAMPTZ,
    approved_by             TEXT,
    published_at            TIMESTAMPTZ,
    published_by            TEXT
);

CREATE TABLE IF NOT EXISTS ai_audit_logs (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id      UUID,
    feature      TEXT NOT NULL,
    model        TEXT NOT NULL DEFAULT '',
    prompt_input TEXT NOT NULL DEFAULT '',
    context_ids  JSONB NOT NULL DEFAULT '[]',
    output       TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
