package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Proof statuses.
const (
	ProofSubmitted         = "submitted"
	ProofVerified          = "verified"
	ProofRejected          = "rejected"
	ProofNeedsMoreEvidence = "needs_more_evidence"
)

// SelfAttestedURL marks a proof that was accepted on the user's word alone.
const SelfAttestedURL = "self_attested://yes"

// Proficiency levels accepted on proofs.
const (
	ProficiencyBeginner     = "beginner"
	ProficiencyIntermediate = "intermediate"
	ProficiencyProfessional = "professional"
)

// Proof is evidence a user attached to a checklist item.
type Proof struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	ItemID           uuid.UUID  `json:"item_id"`
	ProofType        string     `json:"proof_type"`
	URL              string     `json:"url,omitempty"`
	StorageKey       string     `json:"storage_key,omitempty"`
	ProficiencyLevel string     `json:"proficiency_level"`
	Status           string     `json:"status"`
	Verdict          *Verdict   `json:"verdict,omitempty"`
	Metadata         JSONMap    `json:"metadata,omitempty"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	AdjudicatedAt    *time.Time `json:"adjudicated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Verdict is the structured outcome of an adjudication.
type Verdict struct {
	MeetsRequirement bool     `json:"meets_requirement"`
	Confidence       float64  `json:"confidence"`
	Issues           []string `json:"issues"`
	Decision         string   `json:"decision"`
	Note             string   `json:"note,omitempty"`
}

// Scan implements the Scanner interface for Verdict JSONB columns.
func (v *Verdict) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("failed to scan Verdict")
	}
	return json.Unmarshal(b, v)
}

// Value implements the Valuer interface for Verdict.
func (v *Verdict) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// JSONMap handles JSONB object columns.
type JSONMap map[string]interface{}

// Scan implements the Scanner interface for JSONMap.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("failed to scan JSONMap")
	}
	return json.Unmarshal(b, m)
}

// Value implements the Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// ProofInput is the caller-supplied shape for a new proof.
type ProofInput struct {
	UserID           uuid.UUID
	ItemID           uuid.UUID
	ProofType        string
	URL              string
	StorageKey       string
	ProficiencyLevel string
	Metadata         JSONMap
}

// TerminalProofStatus reports whether a status admits no further
// adjudication.
func TerminalProofStatus(status string) bool {
	return status == ProofVerified || status == ProofRejected
}

// ValidProficiency reports whether level is a known proficiency level.
func ValidProficiency(level string) bool {
	switch level {
	case ProficiencyBeginner, ProficiencyIntermediate, ProficiencyProfessional:
		return true
	}
	return false
}
