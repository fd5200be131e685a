// Package web provides the operational HTTP API: quota status, health
// probes and Prometheus metrics. It exposes read-only introspection only;
// admission decisions are made in-process through the app layer.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/akhilsayshi/databot/app"
	"github.com/akhilsayshi/databot/ports"
)

// Handler provides the operational endpoints.
type Handler struct {
	admission *app.AdmissionService
	store     ports.WindowStore
	logger    zerolog.Logger

	metricsEnabled bool
	metricsPath    string
}

// Options configures optional endpoints.
type Options struct {
	MetricsEnabled bool
	MetricsPath    string
}

// NewHandler creates the operational API handler.
func NewHandler(admission *app.AdmissionService, store ports.WindowStore, logger zerolog.Logger, opts Options) *Handler {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Handler{
		admission:      admission,
		store:          store,
		logger:         logger,
		metricsEnabled: opts.MetricsEnabled,
		metricsPath:    opts.MetricsPath,
	}
}

// Router returns the chi router with all routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Get("/status", h.handleStatus)

	if h.metricsEnabled {
		r.Handle(h.metricsPath, promhttp.Handler())
	}

	return r
}

// handleHealthz reports process liveness.
func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz pings the window store: without it the controller fails
// closed and permits no calls, so readiness means the store is reachable.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":       "unavailable",
			"window_store": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"window_store": "ok",
	})
}

// handleStatus returns current daily/hourly usage and burst counters.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.admission.Status(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("status read failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "window store unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// requestLogger logs each request with zerolog.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
