package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/server/middleware"
)

// pathValue parses a UUID path segment.
func pathValue(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, apperrors.ErrValidation)
	}
	return id, nil
}

// actor returns the acting admin's ID as a change-log actor string.
func actor(r *http.Request) string {
	if id, err := middleware.GetUserID(r); err == nil {
		return id.String()
	}
	return "unknown"
}

// --- Pathways and skills ---

type upsertPathwayRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

// handleUpsertPathway creates or updates a pathway by name.
func (s *Server) handleUpsertPathway(w http.ResponseWriter, r *http.Request) {
	var req upsertPathwayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	pathway, err := s.db.UpsertPathway(r.Context(), req.Name, req.Description, active)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pathway)
}

// handleListPathways lists pathways. ?active=true filters to active ones.
func (s *Server) handleListPathways(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	pathways, err := s.db.ListPathways(r.Context(), activeOnly)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"pathways": pathways})
}

func (s *Server) handleGetPathway(w http.ResponseWriter, r *http.Request) {
	id, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	pathway, err := s.db.GetPathway(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if pathway == nil {
		s.errorResponse(w, http.StatusNotFound, "pathway not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, pathway)
}

type upsertSkillRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

func (s *Server) handleUpsertSkill(w http.ResponseWriter, r *http.Request) {
	var req upsertSkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	skill, err := s.db.FindOrCreateSkill(r.Context(), req.Name)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, skill)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.db.ListSkills(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"skills": skills})
}

// --- Checklist versioning ---

type createDraftRequest struct {
	// Items may be omitted to clone the current published version.
	Items []db.ChecklistItemInput `json:"items"`
	Notes string                  `json:"notes"`
}

// handleCreateDraft opens a new draft version for a pathway.
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "pathway_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	version, err := s.db.CreateDraft(r.Context(), pathwayID, req.Items, req.Notes, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, version)
}

type publishRequest struct {
	VersionID uuid.UUID `json:"version_id"`
}

// handlePublish promotes a draft to the pathway's published version. When
// the body omits version_id, the pathway's open draft is published; a
// pathway can hold at most one.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "pathway_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	var req publishRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.VersionID == uuid.Nil {
		draft, derr := s.db.DraftVersion(r.Context(), pathwayID)
		if derr != nil {
			s.serviceError(w, derr)
			return
		}
		if draft == nil {
			s.errorResponse(w, http.StatusNotFound, "pathway has no open draft")
			return
		}
		req.VersionID = draft.ID
	}
	version, err := s.db.Publish(r.Context(), req.VersionID, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, version)
}

// handleRollback restores the previous published version.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "pathway_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	version, err := s.db.Rollback(r.Context(), pathwayID, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, version)
}

// handlePublishedChecklist returns the published version with its items.
func (s *Server) handlePublishedChecklist(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	version, err := s.db.PublishedVersion(r.Context(), pathwayID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if version == nil {
		s.errorResponse(w, http.StatusNotFound, "no published checklist for pathway")
		return
	}
	items, err := s.db.ListItems(r.Context(), version.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"version": version, "items": items})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	versions, err := s.db.ListVersions(r.Context(), pathwayID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathValue(r, "version_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	version, err := s.db.GetVersion(r.Context(), versionID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if version == nil {
		s.errorResponse(w, http.StatusNotFound, "version not found")
		return
	}
	items, err := s.db.ListItems(r.Context(), version.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"version": version, "items": items})
}

func (s *Server) handleListVersionItems(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathValue(r, "version_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	items, err := s.db.ListItems(r.Context(), versionID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"items": items})
}

// handleUpdateItem mutates a draft item. Published items are immutable.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathValue(r, "item_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	var update db.ChecklistItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := s.db.UpdateItem(r.Context(), itemID, update, actor(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathValue(r, "item_id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if err := s.db.DeleteItem(r.Context(), itemID, actor(r)); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListChanges returns a pathway's change log, newest first.
func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	pathwayID, err := pathValue(r, "id")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	changes, err := s.db.ListChanges(r.Context(), pathwayID, limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"changes": changes})
}
