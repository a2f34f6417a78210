package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/cursor"
	"github.com/triggerbox/triggerbox/event"
)

type createEventRequest struct {
	Source   string          `json:"source"`
	Type     string          `json:"event_type"`
	Payload  json.RawMessage `json:"payload"`
	Metadata *event.Metadata `json:"metadata,omitempty"`
}

type createEventResponse struct {
	EventID   string `json:"event_id"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid request body", nil)
		return
	}

	p := principalFrom(r.Context())
	evt, err := h.engine.Ingest(r.Context(), p.ID, event.CreateInput{
		Source:   req.Source,
		Type:     req.Type,
		Payload:  req.Payload,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createEventResponse{
		EventID:   evt.ID,
		CreatedAt: evt.CreatedAt.Format(timeFormat),
		Status:    string(evt.Status),
		Message:   "event created",
	})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evt, err := h.engine.Events().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) acknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	evt, err := h.engine.Acknowledge(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Events().Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "event deleted"})
}

type inboxResponse struct {
	Events     []*event.Event  `json:"events"`
	Pagination inboxPagination `json:"pagination"`
}

type inboxPagination struct {
	Limit      int    `json:"limit"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func (h *Handler) listInbox(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	// A cursor that fails to decode restarts the listing from page one.
	startKey, err := cursor.Decode(queryParam(r, "cursor"))
	if err != nil {
		startKey = nil
	}

	opts := event.ListOpts{
		Limit:         limit,
		StartKey:      startKey,
		Source:        queryParam(r, "source"),
		Type:          queryParam(r, "event_type"),
		Priority:      event.Priority(queryParam(r, "priority")),
		CreatedAfter:  queryTime(r, "created_after"),
		CreatedBefore: queryTime(r, "created_before"),
	}

	page, err := h.engine.Events().ListPending(r.Context(), opts)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "listing failed", nil)
		return
	}

	next := cursor.Encode(page.NextKey)

	if page.Events == nil {
		page.Events = []*event.Event{}
	}
	writeJSON(w, http.StatusOK, inboxResponse{
		Events: page.Events,
		Pagination: inboxPagination{
			Limit:      limit,
			NextCursor: next,
		},
	})
}

// writeEventError maps event lifecycle errors onto the response taxonomy.
func (h *Handler) writeEventError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *event.ValidationError
	var pe *event.PayloadTooLargeError

	switch {
	case errors.As(err, &ve):
		writeError(w, r, http.StatusBadRequest, codeValidation, ve.Message, map[string]any{"field": ve.Field})
	case errors.As(err, &pe):
		writeError(w, r, http.StatusRequestEntityTooLarge, codePayloadTooLarge, pe.Error(), map[string]any{
			"size": pe.Size,
			"max":  pe.Max,
		})
	case errors.Is(err, triggerbox.ErrEventNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "event not found", nil)
	case errors.Is(err, triggerbox.ErrEventConflict):
		writeError(w, r, http.StatusConflict, codeConflict, "event already acknowledged", nil)
	default:
		h.logger.ErrorContext(r.Context(), "event operation failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error", nil)
	}
}
