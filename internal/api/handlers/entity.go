package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/go-chi/chi/v5"
)

type EntityHandler struct {
	profile   *service.ProfileService
	conflicts *service.ConflictService
}

func NewEntityHandler(profile *service.ProfileService, conflicts *service.ConflictService) *EntityHandler {
	return &EntityHandler{profile: profile, conflicts: conflicts}
}

// List returns the visible memory items, highest belief first.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.profile.Items(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type entityResponse struct {
	*domain.CanonicalEntity
	Item      domain.MemoryItem      `json:"item"`
	Visible   bool                   `json:"visible"`
	Decisions []domain.MergeDecision `json:"decisions"`
}

func (h *EntityHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	e, err := h.profile.Entity(r.Context(), id)
	if err != nil {
		writeEntityError(w, err, "failed to get entity")
		return
	}

	decisions, err := h.profile.Decisions(r.Context(), e.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list merge decisions")
		return
	}
	if decisions == nil {
		decisions = []domain.MergeDecision{}
	}

	writeJSON(w, http.StatusOK, entityResponse{
		CanonicalEntity: e,
		Item:            domain.ProjectMemoryItem(e),
		Visible:         !e.IsPlaceholder && e.Belief.CurrentScore >= h.profile.Threshold,
		Decisions:       decisions,
	})
}

type membershipRequest struct {
	Status string `json:"status"`
	Lock   bool   `json:"lock"`
}

func (h *EntityHandler) SetMembership(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	var req membershipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.profile.SetMembership(r.Context(), id, chi.URLParam(r, "space"), domain.MembershipStatus(req.Status), req.Lock)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSpace), errors.Is(err, service.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrMembershipLocked):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeEntityError(w, err, "failed to update membership")
		}
		return
	}

	writeJSON(w, http.StatusOK, e)
}

func (h *EntityHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	entities, err := h.conflicts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conflicts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

func (h *EntityHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	e, err := h.conflicts.Resolve(r.Context(), id)
	if err != nil {
		writeEntityError(w, err, "failed to resolve conflict")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func writeEntityError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, service.ErrEntityNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, fallback)
}
