package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/server/middleware"
	"github.com/ashirimi1019/market-ready/internal/verification"
)

// maxUploadBytes bounds evidence uploads.
const maxUploadBytes = 10 << 20 // 10 MiB

type submitProofRequest struct {
	ItemID           uuid.UUID `json:"item_id" validate:"required"`
	ProofType        string    `json:"proof_type" validate:"required,max=60"`
	URL              string    `json:"url"`
	StorageKey       string    `json:"storage_key"`
	ProficiencyLevel string    `json:"proficiency_level" validate:"required,oneof=beginner intermediate professional"`
	SelfAttested     bool      `json:"self_attested"`
}

// handleSubmitProof records evidence against a checklist item. When AI
// adjudication is configured and the proof is not self-attested, it is
// adjudicated immediately; adjudication failure still leaves the proof
// submitted for a later retry.
func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	proof, err := s.verifier.Submit(r.Context(), verification.SubmitInput{
		UserID:           userID,
		ItemID:           req.ItemID,
		ProofType:        req.ProofType,
		URL:              req.URL,
		StorageKey:       req.StorageKey,
		ProficiencyLevel: req.ProficiencyLevel,
		SelfAttested:     req.SelfAttested,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}

	if proof.Status == db.ProofSubmitted {
		if adjudicated, aerr := s.verifier.Adjudicate(r.Context(), proof.ID, nil); aerr == nil {
			proof = adjudicated
		} else {
			s.log.Warn("immediate adjudication failed", "proof_id", proof.ID, "error", aerr)
		}
	}
	s.jsonResponse(w, http.StatusCreated, proof)
}

// handleUploadProof stores an evidence file and returns its storage key
// for a follow-up submission.
func (s *Server) handleUploadProof(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	key, err := s.uploads.Put("proofs/"+userID.String(), header.Filename, file)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]string{"storage_key": key})
}

func (s *Server) handleListUserProofs(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	proofs, err := s.db.ListProofsByUser(r.Context(), userID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"proofs": proofs})
}

type resubmitProofRequest struct {
	URL        string `json:"url"`
	StorageKey string `json:"storage_key"`
}

// handleResubmitProof moves a needs_more_evidence proof back to submitted
// with fresh evidence and re-adjudicates when possible.
func (s *Server) handleResubmitProof(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	proofID, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	existing, err := s.db.GetProof(r.Context(), proofID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if existing == nil || existing.UserID != userID {
		s.errorResponse(w, http.StatusNotFound, "proof not found")
		return
	}

	var req resubmitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	proof, err := s.verifier.Resubmit(r.Context(), proofID, req.URL, req.StorageKey)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if adjudicated, aerr := s.verifier.Adjudicate(r.Context(), proof.ID, nil); aerr == nil {
		proof = adjudicated
	} else {
		s.log.Warn("immediate adjudication failed", "proof_id", proof.ID, "error", aerr)
	}
	s.jsonResponse(w, http.StatusOK, proof)
}

// --- Admin proof surface ---

// handleListProofsByStatus lists proofs in a status, default submitted.
func (s *Server) handleListProofsByStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = db.ProofSubmitted
	}
	proofs, err := s.db.ListProofsByStatus(r.Context(), status)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"proofs": proofs})
}

// handleAdjudicate runs AI adjudication on a submitted proof. Provider
// failure returns 503 and leaves the proof submitted.
func (s *Server) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	proofID, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	adminID, _ := middleware.GetUserID(r)
	proof, err := s.verifier.Adjudicate(r.Context(), proofID, &adminID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, proof)
}

type overrideProofRequest struct {
	Status string `json:"status" validate:"required,oneof=verified rejected needs_more_evidence"`
	Note   string `json:"note" validate:"required,min=3"`
}

// handleOverrideProof sets a proof's status by admin decision.
func (s *Server) handleOverrideProof(w http.ResponseWriter, r *http.Request) {
	proofID, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	var req overrideProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	adminID, _ := middleware.GetUserID(r)
	proof, err := s.verifier.AdminOverride(r.Context(), proofID, req.Status, req.Note, &adminID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, proof)
}
