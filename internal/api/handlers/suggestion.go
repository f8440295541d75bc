package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/google/uuid"
)

type SuggestionHandler struct {
	svc *service.SuggestionService
}

func NewSuggestionHandler(svc *service.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{svc: svc}
}

// List returns every pending suggestion without surfacing it.
func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list suggestions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": views, "count": len(views)})
}

// Surface shows at most the daily limit of suggestions to the user.
func (h *SuggestionHandler) Surface(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Surface(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to surface suggestions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": views, "count": len(views)})
}

func (h *SuggestionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pairParams(w, r)
	if !ok {
		return
	}
	survivor, err := h.svc.Accept(r.Context(), a, b)
	if err != nil {
		writeSuggestionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, survivor)
}

func (h *SuggestionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pairParams(w, r)
	if !ok {
		return
	}
	decision, err := h.svc.Reject(r.Context(), a, b)
	if err != nil {
		writeSuggestionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *SuggestionHandler) Skip(w http.ResponseWriter, r *http.Request) {
	a, b, ok := pairParams(w, r)
	if !ok {
		return
	}
	sg, err := h.svc.Skip(r.Context(), a, b)
	if err != nil {
		writeSuggestionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func pairParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	a, err := uuidParam(r, "a")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return uuid.Nil, uuid.Nil, false
	}
	b, err := uuidParam(r, "b")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return uuid.Nil, uuid.Nil, false
	}
	return a, b, true
}

func writeSuggestionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSuggestionNotFound), errors.Is(err, service.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSuggestionStale), errors.Is(err, service.ErrMergeRefused):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "failed to update suggestion")
	}
}
