package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/dashboard-management/internal/transport"
)

// Handler exposes the read-only operator query surface over the trail.
type Handler struct {
	*transport.BaseHandler
	recorder *Recorder
}

func NewHandler(recorder *Recorder) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		recorder:    recorder,
	}
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := Filter{
		Subject:   q.Get("subject"),
		RecordID:  q.Get("record_id"),
		Operation: q.Get("operation"),
		Actor:     q.Get("actor"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		filter.Until = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	entries, err := h.recorder.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("audit query failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
