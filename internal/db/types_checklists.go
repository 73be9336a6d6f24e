package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Checklist version statuses.
const (
	VersionDraft      = "draft"
	VersionPublished  = "published"
	VersionArchived   = "archived"
	VersionRolledBack = "rolled_back"
)

// Checklist item tiers.
const (
	TierNonNegotiable = "non_negotiable"
	TierStrongSignal  = "strong_signal"
	TierNiceToHave    = "nice_to_have"
)

// Change log actions.
const (
	ChangeDraftCreated = "draft_created"
	ChangePublished    = "published"
	ChangeRolledBack   = "rolled_back"
	ChangeItemUpdated  = "item_updated"
	ChangeItemDeleted  = "item_deleted"
)

// ChecklistVersion is one immutable-once-published revision of a pathway's
// checklist.
type ChecklistVersion struct {
	ID            uuid.UUID  `json:"id"`
	PathwayID     uuid.UUID  `json:"pathway_id"`
	VersionNumber int        `json:"version_number"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
}

// ChecklistItem is a single requirement within a version.
type ChecklistItem struct {
	ID                uuid.UUID  `json:"id"`
	VersionID         uuid.UUID  `json:"version_id"`
	SkillID           *uuid.UUID `json:"skill_id,omitempty"`
	Label             string     `json:"label"`
	Description       string     `json:"description,omitempty"`
	Rationale         string     `json:"rationale,omitempty"`
	Tier              string     `json:"tier"`
	Weight            float64    `json:"weight"`
	Position          int        `json:"position"`
	AllowedProofTypes StringList `json:"allowed_proof_types,omitempty"`
	IsCritical        bool       `json:"is_critical"`
	CreatedAt         time.Time  `json:"created_at"`
}

// AllowsProofType reports whether the item accepts the given proof type.
// An empty list accepts any type.
func (i ChecklistItem) AllowsProofType(proofType string) bool {
	if len(i.AllowedProofTypes) == 0 {
		return true
	}
	for _, t := range i.AllowedProofTypes {
		if strings.EqualFold(t, proofType) {
			return true
		}
	}
	return false
}

// ChecklistItemInput is the caller-supplied shape for draft items.
// IsCritical defaults to true when omitted.
type ChecklistItemInput struct {
	SkillID           *uuid.UUID `json:"skill_id,omitempty"`
	Label             string     `json:"label"`
	Description       string     `json:"description,omitempty"`
	Rationale         string     `json:"rationale,omitempty"`
	Tier              string     `json:"tier"`
	Weight            float64    `json:"weight"`
	Position          int        `json:"position"`
	AllowedProofTypes StringList `json:"allowed_proof_types,omitempty"`
	IsCritical        *bool      `json:"is_critical,omitempty"`
}

// ChecklistItemUpdate carries the mutable fields of a draft item. Nil
// fields are left unchanged.
type ChecklistItemUpdate struct {
	Label             *string     `json:"label,omitempty"`
	Description       *string     `json:"description,omitempty"`
	Rationale         *string     `json:"rationale,omitempty"`
	Tier              *string     `json:"tier,omitempty"`
	Weight            *float64    `json:"weight,omitempty"`
	Position          *int        `json:"position,omitempty"`
	AllowedProofTypes *StringList `json:"allowed_proof_types,omitempty"`
	IsCritical        *bool       `json:"is_critical,omitempty"`
}

// StringList handles JSONB string-array columns.
type StringList []string

// Scan implements the Scanner interface for StringList.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("failed to scan StringList")
	}
	return json.Unmarshal(b, l)
}

// Value implements the Valuer interface for StringList.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// ChecklistChange is one audit row in a pathway's change log.
type ChecklistChange struct {
	ID        uuid.UUID  `json:"id"`
	PathwayID uuid.UUID  `json:"pathway_id"`
	VersionID *uuid.UUID `json:"version_id,omitempty"`
	Action    string     `json:"action"`
	Detail    string     `json:"detail,omitempty"`
	Actor     string     `json:"actor,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ValidTier reports whether tier is one of the known item tiers.
func ValidTier(tier string) bool {
	switch tier {
	case TierNonNegotiable, TierStrongSignal, TierNiceToHave:
		return true
	}
	return false
}
