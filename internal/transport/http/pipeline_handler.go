// Package http provides the control-plane HTTP handlers: triggering
// pipeline runs and querying execution history and quality metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "banketl/internal/errors"
	"banketl/internal/ledger"
	"banketl/internal/pipeline"
	"banketl/internal/quality"
	"banketl/internal/services"
)

// PipelineService is the service surface the handlers need.
// *services.PipelineService implements it.
type PipelineService interface {
	Run(ctx context.Context, req services.RunRequest) (*pipeline.RunState, error)
	Active() *pipeline.RunSnapshot
	Executions(ctx context.Context, batchID string) ([]ledger.Entry, error)
	RecentExecutions(ctx context.Context, limit int) ([]ledger.Entry, error)
	QualityMetrics(ctx context.Context, batchID string) ([]quality.Metric, error)
	Ready(ctx context.Context) error
}

// PipelineHandler serves the pipeline control endpoints.
type PipelineHandler struct {
	service  PipelineService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPipelineHandler creates a pipeline handler.
func NewPipelineHandler(service PipelineService, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "pipeline")),
	}
}

// Routes returns the router for the pipeline endpoints.
func (h *PipelineHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/pipeline/{stage}", h.RunStage)
	r.Get("/pipeline/status", h.Status)
	r.Get("/executions", h.RecentExecutions)
	r.Get("/executions/{batchID}", h.Executions)
	r.Get("/quality/{batchID}", h.QualityMetrics)
	return r
}

// runPayload is the optional request body for triggering a run.
type runPayload struct {
	BatchID   string `json:"batch_id,omitempty" validate:"omitempty,max=64"`
	InputPath string `json:"input_path,omitempty" validate:"omitempty,max=1024"`
}

// runResponse wraps a finished or failed run.
type runResponse struct {
	Success bool                 `json:"success"`
	Run     pipeline.RunSnapshot `json:"run"`
}

// RunStage executes one stage, or the full pipeline for "all", synchronously.
func (h *PipelineHandler) RunStage(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")
	if !services.ValidStage(stage) {
		render.Render(w, r, apierrors.ErrValidation("stage", "must be one of extract, transform, load, quality, all"))
		return
	}

	var payload runPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	state, err := h.service.Run(r.Context(), services.RunRequest{
		Stage:     stage,
		BatchID:   payload.BatchID,
		InputPath: payload.InputPath,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRunInProgress):
			render.Render(w, r, apierrors.ErrRunInProgress)
		case state != nil:
			h.logger.ErrorContext(r.Context(), "pipeline run failed",
				slog.String("stage", stage),
				slog.String("batch_id", state.BatchID),
				slog.String("error", err.Error()))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, runResponse{Success: false, Run: state.Snapshot()})
		default:
			render.Render(w, r, apierrors.InvalidRequestWithError(err))
		}
		return
	}

	render.JSON(w, r, runResponse{Success: true, Run: state.Snapshot()})
}

// Status returns the most recent run state.
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := h.service.Active()
	if state == nil {
		render.Render(w, r, apierrors.NotFoundError("pipeline run"))
		return
	}
	render.JSON(w, r, runResponse{Success: state.Status == pipeline.StatusCompleted, Run: *state})
}

// Executions returns the ledger entries for one batch.
func (h *PipelineHandler) Executions(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	entries, err := h.service.Executions(r.Context(), batchID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to fetch executions",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	if len(entries) == 0 {
		render.Render(w, r, apierrors.ErrBatchNotFound)
		return
	}

	render.JSON(w, r, map[string]any{
		"batch_id":   batchID,
		"executions": entries,
	})
}

// RecentExecutions returns the latest ledger entries across batches. The
// limit query parameter defaults to 20, capped at 100.
func (h *PipelineHandler) RecentExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			render.Render(w, r, apierrors.ErrValidation("limit", "must be a positive integer"))
			return
		}
		limit = min(parsed, 100)
	}

	entries, err := h.service.RecentExecutions(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to fetch recent executions",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}

	render.JSON(w, r, map[string]any{"executions": entries})
}

// QualityMetrics returns the quality metrics recorded for one batch.
func (h *PipelineHandler) QualityMetrics(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	metrics, err := h.service.QualityMetrics(r.Context(), batchID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to fetch quality metrics",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	if len(metrics) == 0 {
		render.Render(w, r, apierrors.ErrBatchNotFound)
		return
	}

	render.JSON(w, r, map[string]any{
		"batch_id": batchID,
		"metrics":  metrics,
	})
}
