package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/go-chi/chi/v5"
)

type ProfileHandler struct {
	svc *service.ProfileService
}

func NewProfileHandler(svc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

func (h *ProfileHandler) Facets(w http.ResponseWriter, r *http.Request) {
	facets, err := h.svc.Facets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build facets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facets": facets})
}

func (h *ProfileHandler) Personas(w http.ResponseWriter, r *http.Request) {
	personas, err := h.svc.Personas(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to evaluate personas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"personas": personas})
}

func (h *ProfileHandler) Promote(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Promote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPersonaNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrPersonaNotStable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to promote persona")
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}
