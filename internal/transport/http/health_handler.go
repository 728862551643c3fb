package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "banketl/internal/errors"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	service PipelineService
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(service PipelineService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Routes returns the router for the health endpoints.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
	return r
}

// Liveness reports that the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Readiness reports whether the warehouse is reachable with the expected
// schema in place.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewWithDetails(
			http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"Warehouse is not ready", err.Error()))
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}
