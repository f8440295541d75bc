package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/google/uuid"
)

// FeedbackHandler turns user interactions into belief adjustments and
// triggers decay sweeps.
type FeedbackHandler struct {
	svc *service.BeliefService
}

func NewFeedbackHandler(svc *service.BeliefService) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

type entityFeedbackRequest struct {
	SignalType string `json:"signal_type"`
}

func (h *FeedbackHandler) Entity(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	var req entityFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.svc.ApplyFeedback(r.Context(), id, domain.FeedbackSignal(req.SignalType))
	if err != nil {
		writeFeedbackError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, e)
}

type cardFeedbackRequest struct {
	EntityIDs  []string `json:"entity_ids"`
	SignalType string   `json:"signal_type"`
}

func (h *FeedbackHandler) Card(w http.ResponseWriter, r *http.Request) {
	var req cardFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.EntityIDs))
	for _, raw := range req.EntityIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid entity id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	entities, err := h.svc.ApplyCardFeedback(r.Context(), ids, domain.FeedbackSignal(req.SignalType))
	if err != nil {
		writeFeedbackError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

func (h *FeedbackHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeFeedbackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrFeedbackInvalidSignal),
		errors.Is(err, service.ErrFeedbackNotCardSignal),
		errors.Is(err, service.ErrFeedbackNoEntities):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "failed to apply feedback")
	}
}
