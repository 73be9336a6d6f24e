// Package verification implements the proof lifecycle: submission,
// AI adjudication, resubmission, and admin override.
package verification

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/gitscan"
	"github.com/ashirimi1019/market-ready/internal/logger"
)

// ConfidenceThreshold is the minimum adjudicator confidence for a verdict
// to land a proof in a terminal state. Below it the proof asks for more
// evidence instead.
const ConfidenceThreshold = 0.66

// RepoConfidenceThreshold is the minimum share of required skills a
// repository scan must match for a repo proof to verify.
const RepoConfidenceThreshold = 50.0

// Store is the persistence surface the verifier needs.
type Store interface {
	GetItem(ctx context.Context, itemID uuid.UUID) (*db.ChecklistItem, error)
	InsertProof(ctx context.Context, in *db.ProofInput, status string) (*db.Proof, error)
	GetProof(ctx context.Context, id uuid.UUID) (*db.Proof, error)
	SetProofOutcome(ctx context.Context, id uuid.UUID, status string, verdict *db.Verdict, metadata db.JSONMap) (*db.Proof, error)
	OverrideProofStatus(ctx context.Context, id uuid.UUID, status string, verdict *db.Verdict) (*db.Proof, error)
	ResubmitProof(ctx context.Context, id uuid.UUID, url, storageKey string) (*db.Proof, error)
	InsertAuditLog(ctx context.Context, log *db.AIAuditLog) error
}

// DocumentVerifier adjudicates document and URL evidence.
type DocumentVerifier interface {
	VerifyDocument(ctx context.Context, req DocumentRequest) (*db.Verdict, error)
}

// DocumentRequest carries what the adjudicator reads.
type DocumentRequest struct {
	Requirement string // item label plus description
	Rationale   string
	ProofType   string
	URL         string
	Excerpt     string // extracted evidence text, may be empty
}

// RepoScanner inspects a repository for required skills.
type RepoScanner interface {
	ScanRepository(ctx context.Context, repoURL string, required []string) (*gitscan.Scan, error)
}

// BlobStore reads uploaded evidence files by storage key.
type BlobStore interface {
	Get(key string) (io.ReadCloser, error)
}

// maxEvidenceExcerpt bounds how much of an uploaded file is handed to the
// adjudicator.
const maxEvidenceExcerpt = 20000

// Verifier drives the proof state machine.
type Verifier struct {
	store   Store
	docs    DocumentVerifier
	repos   RepoScanner
	blobs   BlobStore
	log     *logger.Logger
	timeout time.Duration
}

// New builds a Verifier. docs, repos, and blobs may be nil; adjudication
// of the corresponding proof kinds then reports the provider unavailable.
func New(store Store, docs DocumentVerifier, repos RepoScanner, blobs BlobStore, log *logger.Logger, timeout time.Duration) *Verifier {
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Verifier{store: store, docs: docs, repos: repos, blobs: blobs, log: log, timeout: timeout}
}

// SubmitInput is the user-facing proof submission.
type SubmitInput struct {
	UserID           uuid.UUID
	ItemID           uuid.UUID
	ProofType        string
	URL              string
	StorageKey       string
	ProficiencyLevel string
	SelfAttested     bool
}

// Submit records a new proof. Self-attestations verify immediately on the
// user's word; everything else waits in submitted for adjudication.
func (v *Verifier) Submit(ctx context.Context, in SubmitInput) (*db.Proof, error) {
	if in.ProofType == "" {
		return nil, fmt.Errorf("proof_type is required: %w", apperrors.ErrValidation)
	}
	if in.ProficiencyLevel == "" {
		in.ProficiencyLevel = db.ProficiencyIntermediate
	}
	if !db.ValidProficiency(in.ProficiencyLevel) {
		return nil, fmt.Errorf("unknown proficiency level %q: %w", in.ProficiencyLevel, apperrors.ErrValidation)
	}

	item, err := v.store.GetItem(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("checklist item %s: %w", in.ItemID, apperrors.ErrNotFound)
	}
	if !item.AllowsProofType(in.ProofType) {
		return nil, fmt.Errorf("item %q does not accept %q proofs (allowed: %s): %w",
			item.Label, in.ProofType, strings.Join(item.AllowedProofTypes, ", "), apperrors.ErrValidation)
	}
	// Certificates are verifiable documents. They must arrive as an
	// upload and are never taken on the user's word.
	if isCertProofType(in.ProofType) {
		if in.SelfAttested {
			return nil, fmt.Errorf("certificate proofs cannot be self-attested: %w", apperrors.ErrValidation)
		}
		if in.StorageKey == "" {
			return nil, fmt.Errorf("certificate proofs require an uploaded file: %w", apperrors.ErrValidation)
		}
	}

	input := &db.ProofInput{
		UserID:           in.UserID,
		ItemID:           in.ItemID,
		ProofType:        in.ProofType,
		URL:              in.URL,
		StorageKey:       in.StorageKey,
		ProficiencyLevel: in.ProficiencyLevel,
		Metadata:         db.JSONMap{},
	}

	if in.SelfAttested {
		input.URL = db.SelfAttestedURL
		return v.store.InsertProof(ctx, input, db.ProofVerified)
	}
	if in.URL == "" && in.StorageKey == "" {
		return nil, fmt.Errorf("evidence URL or upload is required unless self-attesting: %w", apperrors.ErrValidation)
	}
	return v.store.InsertProof(ctx, input, db.ProofSubmitted)
}

// Adjudicate runs the AI adjudication for one proof. Terminal proofs are
// returned unchanged. A provider failure leaves the proof in submitted and
// returns ErrExternalUnavailable; the caller may retry later.
func (v *Verifier) Adjudicate(ctx context.Context, proofID uuid.UUID, actorID *uuid.UUID) (*db.Proof, error) {
	proof, err := v.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, fmt.Errorf("proof %s: %w", proofID, apperrors.ErrNotFound)
	}
	if db.TerminalProofStatus(proof.Status) {
		return proof, nil
	}

	item, err := v.store.GetItem(ctx, proof.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("checklist item %s: %w", proof.ItemID, apperrors.ErrNotFound)
	}

	// The adjudication outlives the request: a client disconnect must not
	// lose a verdict that the provider already produced.
	adjCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	var verdict *db.Verdict
	var metadata db.JSONMap
	if isRepoProof(proof) {
		verdict, metadata, err = v.adjudicateRepo(adjCtx, proof, item)
	} else {
		verdict, metadata, err = v.adjudicateDocument(adjCtx, proof, item)
	}
	if err != nil {
		v.log.Warn("adjudication provider failed", "proof_id", proofID, "error", err)
		return proof, fmt.Errorf("adjudication failed, proof remains %s: %w: %w",
			proof.Status, err, apperrors.ErrExternalUnavailable)
	}

	status := statusForVerdict(verdict)
	updated, err := v.store.SetProofOutcome(ctx, proofID, status, verdict, metadata)
	if err != nil {
		return nil, err
	}

	v.audit(ctx, actorID, "proof_adjudication", proof, verdict.Note,
		fmt.Sprintf("decision=%s confidence=%.2f", verdict.Decision, verdict.Confidence))
	return updated, nil
}

func (v *Verifier) adjudicateDocument(ctx context.Context, proof *db.Proof, item *db.ChecklistItem) (*db.Verdict, db.JSONMap, error) {
	if v.docs == nil {
		return nil, nil, fmt.Errorf("no document adjudicator configured")
	}
	excerpt, err := v.readUpload(proof.StorageKey)
	if err != nil {
		// An unreadable upload is a transient failure, not weak evidence.
		// Leave the proof in the queue rather than judging it blind.
		return nil, nil, fmt.Errorf("failed to read uploaded evidence %q: %w", proof.StorageKey, err)
	}
	verdict, err := v.docs.VerifyDocument(ctx, DocumentRequest{
		Requirement: item.Label + ": " + item.Description,
		Rationale:   item.Rationale,
		ProofType:   proof.ProofType,
		URL:         proof.URL,
		Excerpt:     excerpt,
	})
	if err != nil {
		return nil, nil, err
	}
	return verdict, db.JSONMap{}, nil
}

// readUpload returns the leading excerpt of an uploaded evidence file, or
// an empty string when the proof has no upload or no blob store is
// configured.
func (v *Verifier) readUpload(storageKey string) (string, error) {
	if storageKey == "" || v.blobs == nil {
		return "", nil
	}
	rc, err := v.blobs.Get(storageKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEvidenceExcerpt))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (v *Verifier) adjudicateRepo(ctx context.Context, proof *db.Proof, item *db.ChecklistItem) (*db.Verdict, db.JSONMap, error) {
	if v.repos == nil {
		return nil, nil, fmt.Errorf("no repository scanner configured")
	}
	scan, err := v.repos.ScanRepository(ctx, proof.URL, []string{item.Label})
	if err != nil {
		return nil, nil, err
	}

	meets := scan.Confidence >= RepoConfidenceThreshold
	confidence := scan.Confidence / 100
	if meets && confidence < ConfidenceThreshold {
		// A scan that cleared the match threshold is a confident verdict
		// even when only half the required skills were found.
		confidence = ConfidenceThreshold
	}
	verdict := &db.Verdict{
		MeetsRequirement: meets,
		Confidence:       confidence,
		Decision:         "verified",
		Note:             fmt.Sprintf("repository %s/%s matched %d skill(s)", scan.Owner, scan.Repo, len(scan.MatchedSkills)),
	}
	if !meets {
		verdict.Issues = []string{"required skills not evident in repository"}
		// Low-signal scans ask for more evidence rather than rejecting.
		verdict.Decision = "needs_more_evidence"
		verdict.Confidence = 0.5
	}
	metadata := db.JSONMap{
		"repo_verified":       meets,
		"repo_matched_skills": scan.MatchedSkills,
		"repo_confidence":     scan.Confidence,
		"repo_languages":      scan.Languages,
	}
	return verdict, metadata, nil
}

// Resubmit attaches fresh evidence to a needs_more_evidence proof and
// returns it to the adjudication queue.
func (v *Verifier) Resubmit(ctx context.Context, proofID uuid.UUID, url, storageKey string) (*db.Proof, error) {
	if url == "" && storageKey == "" {
		return nil, fmt.Errorf("new evidence URL or upload is required: %w", apperrors.ErrValidation)
	}
	proof, err := v.store.ResubmitProof(ctx, proofID, url, storageKey)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		current, gerr := v.store.GetProof(ctx, proofID)
		if gerr != nil {
			return nil, gerr
		}
		if current == nil {
			return nil, fmt.Errorf("proof %s: %w", proofID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("proof is %s, only needs_more_evidence can be resubmitted: %w",
			current.Status, apperrors.ErrInvalidState)
	}
	return proof, nil
}

// AdminOverride force-sets a proof's status. Every override is audited.
func (v *Verifier) AdminOverride(ctx context.Context, proofID uuid.UUID, status, note string, actorID *uuid.UUID) (*db.Proof, error) {
	switch status {
	case db.ProofVerified, db.ProofRejected, db.ProofNeedsMoreEvidence:
	default:
		return nil, fmt.Errorf("cannot override to status %q: %w", status, apperrors.ErrValidation)
	}

	verdict := &db.Verdict{
		MeetsRequirement: status == db.ProofVerified,
		Confidence:       1.0,
		Decision:         "admin_override",
		Note:             note,
	}
	proof, err := v.store.OverrideProofStatus(ctx, proofID, status, verdict)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, fmt.Errorf("proof %s: %w", proofID, apperrors.ErrNotFound)
	}

	v.audit(ctx, actorID, "proof_admin_override", proof, note, "status="+status)
	return proof, nil
}

func (v *Verifier) audit(ctx context.Context, actorID *uuid.UUID, feature string, proof *db.Proof, input, output string) {
	err := v.store.InsertAuditLog(ctx, &db.AIAuditLog{
		UserID:      actorID,
		Feature:     feature,
		PromptInput: input,
		ContextIDs:  []string{proof.ID.String(), proof.ItemID.String()},
		Output:      output,
	})
	if err != nil {
		v.log.Warn("failed to write audit log", "feature", feature, "error", err)
	}
}

// statusForVerdict maps a verdict to the proof status: confident verdicts
// land terminally, unconfident ones ask for more evidence.
func statusForVerdict(v *db.Verdict) string {
	if v.Confidence < ConfidenceThreshold {
		return db.ProofNeedsMoreEvidence
	}
	if v.MeetsRequirement {
		return db.ProofVerified
	}
	return db.ProofRejected
}

func isRepoProof(p *db.Proof) bool {
	return strings.Contains(strings.ToLower(p.ProofType), "repo") ||
		strings.Contains(p.URL, "github.com/")
}

// isCertProofType covers certificate-class proof types such as
// "certification" and "cert_upload".
func isCertProofType(proofType string) bool {
	return strings.Contains(strings.ToLower(proofType), "cert")
}
