package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/selfgraph/internal/service"
)

type ImportHandler struct {
	svc *service.ResolverService
}

func NewImportHandler(svc *service.ResolverService) *ImportHandler {
	return &ImportHandler{svc: svc}
}

type importErrorResponse struct {
	Error  string                   `json:"error"`
	Result *service.ReconcileResult `json:"result,omitempty"`
}

// Create reconciles one import. Malformed fragments are counted and skipped,
// never rejected. A failed batch commit answers 500 with the counts of the
// batches that did commit; retrying with the same import_id resumes.
func (h *ImportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.ImportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Reconcile(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrImportEmpty) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusInternalServerError, importErrorResponse{
			Error:  "import failed: " + err.Error(),
			Result: result,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
