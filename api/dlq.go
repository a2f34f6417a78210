package api

import (
	"errors"
	"net/http"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/dlq"
)

func (h *Handler) listDLQ(w http.ResponseWriter, r *http.Request) {
	opts := dlq.ListOpts{
		Limit:     queryInt(r, "limit", 50),
		WebhookID: queryParam(r, "webhook_id"),
		From:      queryTime(r, "from"),
		To:        queryTime(r, "to"),
	}

	entries, err := h.engine.DLQ().List(r.Context(), opts)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "listing failed", nil)
		return
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) getDLQ(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.DLQ().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDLQError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) replayDLQ(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DLQ().Replay(r.Context(), r.PathValue("id")); err != nil {
		h.writeDLQError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "replay enqueued"})
}

func (h *Handler) dlqStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.DLQ().Count(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "stats failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) writeDLQError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, triggerbox.ErrDLQNotFound) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "dead-letter entry not found", nil)
		return
	}
	h.logger.ErrorContext(r.Context(), "dlq operation failed", "error", err)
	writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error", nil)
}
