package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/readiness"
	"github.com/ashirimi1019/market-ready/internal/server/middleware"
)

type selectPathwayRequest struct {
	PathwayID uuid.UUID `json:"pathway_id" validate:"required"`
}

// handleSelectPathway sets the user's active pathway.
func (s *Server) handleSelectPathway(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req selectPathwayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	pathway, err := s.db.GetPathway(r.Context(), req.PathwayID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if pathway == nil {
		s.errorResponse(w, http.StatusNotFound, "pathway not found")
		return
	}
	if err := s.db.SetUserPathway(r.Context(), userID, req.PathwayID); err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pathway)
}

func (s *Server) handleGetUserPathway(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	pathwayID, err := s.db.GetUserPathway(r.Context(), userID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if pathwayID == uuid.Nil {
		s.errorResponse(w, http.StatusNotFound, "no pathway selected")
		return
	}
	pathway, err := s.db.GetPathway(r.Context(), pathwayID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pathway)
}

// scoreSnapshot loads the published checklist, the user's proofs against
// it, and recent market signals.
func (s *Server) scoreSnapshot(r *http.Request, userID uuid.UUID, now time.Time) ([]db.ChecklistItem, []db.Proof, []db.MarketSignal, error) {
	pathwayID, err := s.db.GetUserPathway(r.Context(), userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if pathwayID == uuid.Nil {
		return nil, nil, nil, fmt.Errorf("user has no pathway selected: %w", apperrors.ErrInvalidState)
	}
	version, err := s.db.PublishedVersion(r.Context(), pathwayID)
	if err != nil {
		return nil, nil, nil, err
	}
	if version == nil {
		return nil, nil, nil, fmt.Errorf("pathway has no published checklist: %w", apperrors.ErrInvalidState)
	}
	items, err := s.db.ListItems(r.Context(), version.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	itemIDs := make([]uuid.UUID, len(items))
	for i, item := range items {
		itemIDs[i] = item.ID
	}
	proofs, err := s.db.ListProofsForItems(r.Context(), userID, itemIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	signals, err := s.db.ListSignals(r.Context(), pathwayID, now.Add(-180*24*time.Hour))
	if err != nil {
		return nil, nil, nil, err
	}
	return items, proofs, signals, nil
}

// handleLegacyReadiness serves the pre-MRI completion score.
func (s *Server) handleLegacyReadiness(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	now := time.Now()
	items, proofs, _, err := s.scoreSnapshot(r, userID, now)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, readiness.LegacyScore(items, proofs, now))
}

// handleMRIScore serves the Market Readiness Index.
func (s *Server) handleMRIScore(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	now := time.Now()
	items, proofs, signals, err := s.scoreSnapshot(r, userID, now)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	result := readiness.Score(readiness.ScoreInput{
		Items:   items,
		Proofs:  proofs,
		Signals: signals,
		Config:  s.cfg.Scoring,
		Now:     now,
	})
	s.jsonResponse(w, http.StatusOK, result)
}
