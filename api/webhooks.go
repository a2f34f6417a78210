package api

import (
	"errors"
	"net/http"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/webhook"
)

type createWebhookRequest struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"events"`
	Secret     string   `json:"secret,omitempty"`
	IsActive   *bool    `json:"is_active,omitempty"`
}

// webhookWithSecret is the creation response: the secret is returned exactly
// once, at registration time.
type webhookWithSecret struct {
	*webhook.Webhook
	Secret string `json:"secret"`
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid request body", nil)
		return
	}

	p := principalFrom(r.Context())
	wh, err := h.engine.Webhooks().Create(r.Context(), p.ID, webhook.Input{
		URL:        req.URL,
		EventTypes: req.EventTypes,
		Secret:     req.Secret,
		IsActive:   req.IsActive,
	})
	if err != nil {
		h.writeWebhookError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, webhookWithSecret{Webhook: wh, Secret: wh.Secret})
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	opts := webhook.ListOpts{Limit: queryInt(r, "limit", 50)}
	if v := queryParam(r, "is_active"); v != "" {
		active := v == "true"
		opts.IsActive = &active
	}

	hooks, err := h.engine.Webhooks().List(r.Context(), p.ID, opts)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "listing failed", nil)
		return
	}
	if hooks == nil {
		hooks = []*webhook.Webhook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	wh, err := h.ownedWebhook(r)
	if err != nil {
		h.writeWebhookError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

type updateWebhookRequest struct {
	URL        string   `json:"url,omitempty"`
	EventTypes []string `json:"events,omitempty"`
	IsActive   *bool    `json:"is_active,omitempty"`
}

func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ownedWebhook(r); err != nil {
		h.writeWebhookError(w, r, err)
		return
	}

	var req updateWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid request body", nil)
		return
	}

	wh, err := h.engine.Webhooks().Update(r.Context(), r.PathValue("id"), webhook.Input{
		URL:        req.URL,
		EventTypes: req.EventTypes,
		IsActive:   req.IsActive,
	})
	if err != nil {
		h.writeWebhookError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ownedWebhook(r); err != nil {
		h.writeWebhookError(w, r, err)
		return
	}

	if err := h.engine.Webhooks().Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeWebhookError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type testWebhookResponse struct {
	StatusCode int    `json:"status_code"`
	LatencyMs  int    `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) testWebhook(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ownedWebhook(r); err != nil {
		h.writeWebhookError(w, r, err)
		return
	}

	res, err := h.engine.TestWebhook(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeWebhookError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testWebhookResponse{
		StatusCode: res.StatusCode,
		LatencyMs:  res.LatencyMs,
		Error:      res.Error,
	})
}

// ownedWebhook loads the webhook from the path and verifies it belongs to
// the caller. Foreign webhooks read as not found.
func (h *Handler) ownedWebhook(r *http.Request) (*webhook.Webhook, error) {
	wh, err := h.engine.Webhooks().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	p := principalFrom(r.Context())
	if wh.Owner != p.ID {
		return nil, triggerbox.ErrWebhookNotFound
	}
	return wh, nil
}

// writeWebhookError maps webhook errors onto the response taxonomy.
func (h *Handler) writeWebhookError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *webhook.ValidationError

	switch {
	case errors.As(err, &ve):
		writeError(w, r, http.StatusBadRequest, codeValidation, ve.Message, map[string]any{"field": ve.Field})
	case errors.Is(err, triggerbox.ErrWebhookNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "webhook not found", nil)
	default:
		h.logger.ErrorContext(r.Context(), "webhook operation failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error", nil)
	}
}
