package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/mission"
	"github.com/ashirimi1019/market-ready/internal/server/middleware"
)

type missionPlanRequest struct {
	PivotMode bool `json:"pivot_mode"`
}

// handleMissionPlan builds the user's 90-day mission plan.
func (s *Server) handleMissionPlan(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req missionPlanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	plan, err := s.mission.BuildPlan(r.Context(), mission.PlanRequest{
		UserID:    userID,
		PivotMode: req.PivotMode,
		Now:       time.Now(),
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, plan)
}

type proofCheckerRequest struct {
	ProofID uuid.UUID `json:"proof_id" validate:"required"`
}

// handleProofChecker re-runs adjudication on one of the user's repository
// proofs, refreshing its matched-skill metadata.
func (s *Server) handleProofChecker(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req proofCheckerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	proof, err := s.db.GetProof(r.Context(), req.ProofID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if proof == nil || proof.UserID != userID {
		s.errorResponse(w, http.StatusNotFound, "proof not found")
		return
	}
	if db.TerminalProofStatus(proof.Status) {
		s.jsonResponse(w, http.StatusOK, proof)
		return
	}
	updated, err := s.verifier.Adjudicate(r.Context(), proof.ID, nil)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

// handleStressTest projects the user's readiness into a tighter 2027
// market.
func (s *Server) handleStressTest(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := s.mission.StressTest(r.Context(), userID, time.Now())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleListAuditLogs returns recent AI invocation audit rows. Filters:
// ?feature, ?limit.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.db.ListAuditLogs(r.Context(), r.URL.Query().Get("feature"), limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
