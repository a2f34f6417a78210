// Package api provides the HTTP surface for Triggerbox: event ingestion and
// lifecycle, inbox listing, webhook management and DLQ inspection.
//
// Every route except /health requires an API key in the X-API-Key header and
// passes through the fixed-window rate limiter. Responses carry
// X-RateLimit-* headers and an X-Request-ID correlation header.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/id"
)

// headerAPIKey carries the opaque caller-identity token.
const headerAPIKey = "X-API-Key"

// Handler is the root HTTP handler for the Triggerbox API.
type Handler struct {
	engine *triggerbox.Engine
	auth   Authenticator
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates the API handler.
func NewHandler(engine *triggerbox.Engine, auth Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		engine: engine,
		auth:   auth,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Events
	h.mux.HandleFunc("POST /events", h.createEvent)
	h.mux.HandleFunc("GET /events/{id}", h.getEvent)
	h.mux.HandleFunc("POST /events/{id}/ack", h.acknowledgeEvent)
	h.mux.HandleFunc("DELETE /events/{id}", h.deleteEvent)
	h.mux.HandleFunc("GET /inbox", h.listInbox)

	// Webhooks
	h.mux.HandleFunc("POST /webhooks", h.createWebhook)
	h.mux.HandleFunc("GET /webhooks", h.listWebhooks)
	h.mux.HandleFunc("GET /webhooks/{id}", h.getWebhook)
	h.mux.HandleFunc("PUT /webhooks/{id}", h.updateWebhook)
	h.mux.HandleFunc("DELETE /webhooks/{id}", h.deleteWebhook)
	h.mux.HandleFunc("POST /webhooks/{id}/test", h.testWebhook)

	// DLQ
	h.mux.HandleFunc("GET /dlq", h.listDLQ)
	h.mux.HandleFunc("GET /dlq/stats", h.dlqStats)
	h.mux.HandleFunc("GET /dlq/{id}", h.getDLQ)
	h.mux.HandleFunc("POST /dlq/{id}/replay", h.replayDLQ)

	// Health
	h.mux.HandleFunc("GET /health", h.health)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.requestID(h.logging(h.authenticate(h.rateLimit(next)))))
}

// requestID attaches a correlation ID to the request, honoring one supplied
// by the caller.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = id.NewRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), reqID)))
	})
}

// authenticate resolves the caller's API key. Health checks pass through.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(headerAPIKey)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing API key", nil)
			return
		}

		p, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// rateLimit consumes one unit of the principal's window budget and exposes
// the quota headers on every response.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if p == nil {
			next.ServeHTTP(w, r)
			return
		}

		limit := p.RateLimit
		if limit <= 0 {
			limit = h.engine.Config().DefaultRateLimit
		}

		res := h.engine.Limiter().Allow(r.Context(), p.ID, limit)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))

		if !res.Allowed {
			if m := h.engine.Metrics(); m != nil {
				m.RateLimitRejectedTotal.Inc()
			}
			w.Header().Set("Retry-After", strconv.FormatInt(res.RetryAfter(time.Now()), 10))
			writeError(w, r, http.StatusTooManyRequests, codeRateLimitExceeded, "rate limit exceeded", map[string]any{
				"limit":    res.Limit,
				"reset_at": res.ResetAt,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"request_id", requestIDFrom(r),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, reqID)
}

func requestIDFrom(r *http.Request) string {
	reqID, _ := r.Context().Value(requestIDKey{}).(string)
	return reqID
}
