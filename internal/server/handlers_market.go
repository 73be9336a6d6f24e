package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/market"
)

type recordSignalsRequest struct {
	Signals []db.MarketSignalInput `json:"signals" validate:"required,min=1,dive"`
}

// handleRecordSignals stores manually observed signals for a pathway.
func (s *Server) handleRecordSignals(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "pathway_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	var req recordSignalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inserted, err := s.market.RecordSignals(r.Context(), pathwayID, req.Signals)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]int{"signals_inserted": inserted})
}

// handleListSignals returns recent signals for a pathway. ?days bounds
// the lookback window (default 90).
func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "pathway_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 90
	}
	signals, err := s.db.ListSignals(r.Context(), pathwayID, daysAgo(days))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"signals": signals})
}

type ingestExternalRequest struct {
	PathwayID uuid.UUID `json:"pathway_id" validate:"required"`
	Providers []string  `json:"providers"`
}

// handleIngestExternal pulls postings from external providers. Partial
// provider failure returns 200 with a degraded list; only a total failure
// is a 503.
func (s *Server) handleIngestExternal(w http.ResponseWriter, r *http.Request) {
	var req ingestExternalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	result, err := s.market.IngestExternal(r.Context(), req.PathwayID, req.Providers)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleListIngestions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ingestions, err := s.db.ListRawIngestions(r.Context(), limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"ingestions": ingestions})
}

// --- Proposals ---

type createProposalRequest struct {
	PathwayID uuid.UUID       `json:"pathway_id" validate:"required"`
	Summary   string          `json:"summary" validate:"required,min=3"`
	Rationale string          `json:"rationale"`
	Diff      db.ProposalDiff `json:"diff"`
}

// handleCreateProposal records a manually drafted checklist revision.
func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	proposal, err := s.market.CreateProposal(r.Context(), req.PathwayID, req.Summary, req.Rationale, req.Diff, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, proposal)
}

type copilotProposalRequest struct {
	PathwayID uuid.UUID `json:"pathway_id" validate:"required"`
}

// handleCopilotProposal synthesizes a proposal from recent signals, via
// the LLM copilot when configured and demand rules otherwise. A nil
// proposal means the signals suggested no change.
func (s *Server) handleCopilotProposal(w http.ResponseWriter, r *http.Request) {
	var req copilotProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	proposal, err := s.market.GenerateProposal(r.Context(), req.PathwayID, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if proposal == nil {
		s.jsonResponse(w, http.StatusOK, map[string]any{"proposal": nil, "message": "no checklist change warranted by current signals"})
		return
	}
	s.jsonResponse(w, http.StatusCreated, proposal)
}

// handleListProposals filters by ?pathway_id and ?status.
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	var pathwayID uuid.UUID
	if raw := r.URL.Query().Get("pathway_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid pathway_id")
			return
		}
		pathwayID = id
	}
	proposals, err := s.db.ListProposals(r.Context(), pathwayID, r.URL.Query().Get("status"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (s *Server) handleApproveProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	proposal, err := s.market.Approve(r.Context(), id, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, proposal)
}

func (s *Server) handleRejectProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	proposal, err := s.market.Reject(r.Context(), id, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, proposal)
}

// handlePublishProposal applies an approved proposal to a new checklist
// draft. The draft still goes through the normal publish step.
func (s *Server) handlePublishProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	proposal, draft, err := s.market.Publish(r.Context(), id, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"proposal": proposal, "draft": draft})
}

// --- Automation ---

// handleAutomationRun triggers one ingestion and proposal cycle over all
// active pathways.
func (s *Server) handleAutomationRun(w http.ResponseWriter, r *http.Request) {
	var opts market.AutomationOptions
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	report, err := s.market.RunAutomation(r.Context(), opts)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

func (s *Server) handleAutomationStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.market.Status())
}

func daysAgo(n int) time.Time {
	return time.Now().Add(-time.Duration(n) * 24 * time.Hour)
}
