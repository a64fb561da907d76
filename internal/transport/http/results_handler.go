// Package http exposes the resultsd HTTP surface: the latest study
// summary, health checks, and Prometheus metrics.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "psmcli/internal/errors"
	"psmcli/internal/report"
)

var requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "psmcli_http_requests_total",
	Help: "HTTP requests served by resultsd.",
}, []string{"path", "code"})

// ResultsHandler serves the latest study summary from the reports directory.
type ResultsHandler struct {
	reportsDir string
	logger     *slog.Logger
}

// NewResultsHandler creates a results handler.
func NewResultsHandler(reportsDir string, logger *slog.Logger) *ResultsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsHandler{
		reportsDir: reportsDir,
		logger:     logger.With(slog.String("handler", "results")),
	}
}

// Router builds the resultsd router.
func (h *ResultsHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/results", h.GetResults)
	})
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// GetResults handles GET /api/results.
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.reportsDir, report.SummaryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			render.Render(w, r, apierrors.ErrResultsNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "read summary failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}

	var summary report.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		h.logger.ErrorContext(r.Context(), "summary corrupt",
			slog.String("path", path),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer.WithDetails("summary file is corrupt"))
		return
	}
	render.JSON(w, r, summary)
}

// Health handles GET /healthz.
func (h *ResultsHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// countRequests records per-path request counts.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		requestCount.WithLabelValues(r.URL.Path, http.StatusText(ww.Status())).Inc()
	})
}
