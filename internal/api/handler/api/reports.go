package api

import (
	"net/http"

	"github.com/newthinker/tpsl/internal/api/response"
	"github.com/newthinker/tpsl/internal/storage/archive"
)

// ReportsHandler serves archived backtest reports.
type ReportsHandler struct {
	store *archive.ReportStore
}

func NewReportsHandler(store *archive.ReportStore) *ReportsHandler {
	return &ReportsHandler{store: store}
}

// List accepts optional strategy and symbol query filters.
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paths, err := h.store.List(r.Context(), q.Get("strategy"), q.Get("symbol"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, paths)
}

func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, report)
}
