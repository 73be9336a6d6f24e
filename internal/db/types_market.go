package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MarketSignal is one observation of demand within a pathway, keyed by a
// skill, a role family, or both. Frequency is the share of sampled
// postings mentioning it (0..1). WindowStart/WindowEnd bound the sampling
// window and SourceCount is the number of postings sampled; all three are
// optional.
type MarketSignal struct {
	ID          uuid.UUID  `json:"id"`
	PathwayID   uuid.UUID  `json:"pathway_id"`
	Skill       string     `json:"skill,omitempty"`
	RoleFamily  string     `json:"role_family,omitempty"`
	Source      string     `json:"source"`
	Frequency   float64    `json:"frequency"`
	ObservedAt  time.Time  `json:"observed_at"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	SourceCount *int       `json:"source_count,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MarketSignalInput is the caller-supplied shape for a signal. At least
// one of Skill and RoleFamily must be set.
type MarketSignalInput struct {
	Skill       string     `json:"skill,omitempty"`
	RoleFamily  string     `json:"role_family,omitempty"`
	Source      string     `json:"source"`
	Frequency   float64    `json:"frequency"`
	ObservedAt  time.Time  `json:"observed_at"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	SourceCount *int       `json:"source_count,omitempty"`
}

// MarketRawIngestion is an audit row for one external fetch batch.
type MarketRawIngestion struct {
	ID         uuid.UUID `json:"id"`
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	StorageKey string    `json:"storage_key,omitempty"`
	Metadata   JSONMap   `json:"metadata,omitempty"`
}

// Proposal statuses.
const (
	ProposalDraft     = "draft"
	ProposalApproved  = "approved"
	ProposalPublished = "published"
	ProposalRejected  = "rejected"
)

// ProposalDiff describes the checklist edits a proposal would apply.
type ProposalDiff struct {
	Add    []ChecklistItemInput `json:"add,omitempty"`
	Remove []string             `json:"remove,omitempty"` // item labels
	Retier []TierChange         `json:"retier,omitempty"`
}

// TierChange moves an existing item to a different tier.
type TierChange struct {
	Label string `json:"label"`
	Tier  string `json:"tier"`
}

// Scan implements the Scanner interface for ProposalDiff JSONB columns.
func (d *ProposalDiff) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("failed to scan ProposalDiff")
	}
	return json.Unmarshal(b, d)
}

// Value implements the Valuer interface for ProposalDiff.
func (d ProposalDiff) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Empty reports whether the diff changes nothing.
func (d ProposalDiff) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0 && len(d.Retier) == 0
}

// MarketProposal is a suggested checklist revision derived from signals.
type MarketProposal struct {
	ID                    uuid.UUID    `json:"id"`
	PathwayID             uuid.UUID    `json:"pathway_id"`
	Status                string       `json:"status"`
	Summary               string       `json:"summary,omitempty"`
	Rationale             string       `json:"rationale,omitempty"`
	Diff                  ProposalDiff `json:"diff"`
	ProposedVersionNumber *int         `json:"proposed_version_number,omitempty"`
	CreatedBy             string       `json:"created_by,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
	ApprovedAt            *time.Time   `json:"approved_at,omitempty"`
	ApprovedBy            *string      `json:"approved_by,omitempty"`
	PublishedAt           *time.Time   `json:"published_at,omitempty"`
	PublishedBy           *string      `json:"published_by,omitempty"`
}
