package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banketl/internal/ledger"
	"banketl/internal/pipeline"
	"banketl/internal/quality"
	"banketl/internal/services"
)

// fakePipelineService returns canned results for handler tests.
type fakePipelineService struct {
	runState   *pipeline.RunState
	runErr     error
	lastReq    services.RunRequest
	active     *pipeline.RunSnapshot
	entries    []ledger.Entry
	entriesErr error
	metrics    []quality.Metric
	readyErr   error
}

func (f *fakePipelineService) Run(_ context.Context, req services.RunRequest) (*pipeline.RunState, error) {
	f.lastReq = req
	return f.runState, f.runErr
}

func (f *fakePipelineService) Active() *pipeline.RunSnapshot { return f.active }

func (f *fakePipelineService) Executions(_ context.Context, _ string) ([]ledger.Entry, error) {
	return f.entries, f.entriesErr
}

func (f *fakePipelineService) RecentExecutions(_ context.Context, _ int) ([]ledger.Entry, error) {
	return f.entries, f.entriesErr
}

func (f *fakePipelineService) QualityMetrics(_ context.Context, _ string) ([]quality.Metric, error) {
	return f.metrics, f.entriesErr
}

func (f *fakePipelineService) Ready(_ context.Context) error { return f.readyErr }

func newTestRouter(service PipelineService) chi.Router {
	r := chi.NewRouter()
	r.Mount("/api", NewPipelineHandler(service, slog.Default()).Routes())
	r.Mount("/", NewHealthHandler(service, slog.Default()).Routes())
	return r
}

func completedRun(batchID string) *pipeline.RunState {
	state := pipeline.NewRunState(batchID)
	state.Start()
	state.AddCounts(ledger.Counts{Extracted: 10, Transformed: 9, Loaded: 9, Rejected: 1})
	state.SetQualityPassed(true)
	state.Complete()
	return state
}

func TestRunStage(t *testing.T) {
	service := &fakePipelineService{runState: completedRun("20260829_120000_000")}
	router := newTestRouter(service)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pipeline/all", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Run     pipeline.RunSnapshot `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "20260829_120000_000", resp.Run.BatchID)
	assert.Equal(t, int64(9), resp.Run.Counts.Loaded)
	assert.Equal(t, "all", service.lastReq.Stage)

	// counts serialize snake_case like the rest of the response
	assert.Contains(t, w.Body.String(), `"rows_loaded":9`)
	assert.Contains(t, w.Body.String(), `"rows_rejected":1`)
}

func TestRunStageWithPayload(t *testing.T) {
	service := &fakePipelineService{runState: completedRun("custom_batch")}
	router := newTestRouter(service)

	body := strings.NewReader(`{"batch_id":"custom_batch","input_path":"data/august.xlsx"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pipeline/extract", body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "custom_batch", service.lastReq.BatchID)
	assert.Equal(t, "data/august.xlsx", service.lastReq.InputPath)
}

func TestRunStageUnknownStage(t *testing.T) {
	router := newTestRouter(&fakePipelineService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pipeline/cleanup", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
}

func TestRunStageConflict(t *testing.T) {
	router := newTestRouter(&fakePipelineService{runErr: services.ErrRunInProgress})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pipeline/load", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "RUN_IN_PROGRESS")
}

func TestRunStageFailure(t *testing.T) {
	failed := pipeline.NewRunState("batch")
	failed.Start()
	failed.Fail()

	service := &fakePipelineService{
		runState: failed,
		runErr:   &pipeline.ExecutionError{Stage: "load", Err: errors.New("connection refused")},
	}
	router := newTestRouter(service)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pipeline/all", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestStatusBeforeFirstRun(t *testing.T) {
	router := newTestRouter(&fakePipelineService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pipeline/status", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecutions(t *testing.T) {
	service := &fakePipelineService{
		entries: []ledger.Entry{
			{BatchID: "b1", TaskName: "extract", Status: ledger.StatusSuccess, RowsExtracted: 100},
			{BatchID: "b1", TaskName: "transform", Status: ledger.StatusSuccess, RowsTransformed: 95},
		},
	}
	router := newTestRouter(service)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/executions/b1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rows_extracted":100`)
}

func TestExecutionsNotFound(t *testing.T) {
	router := newTestRouter(&fakePipelineService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/executions/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "BATCH_NOT_FOUND")
}

func TestRecentExecutionsInvalidLimit(t *testing.T) {
	router := newTestRouter(&fakePipelineService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/executions?limit=abc", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQualityMetrics(t *testing.T) {
	service := &fakePipelineService{
		metrics: []quality.Metric{
			{Table: "fact_transactions", Name: quality.MetricCompleteness, Percentage: 98.5, Status: quality.StatusPass},
		},
	}
	router := newTestRouter(service)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/quality/b1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "COMPLETENESS_PCT")
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(&fakePipelineService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessFailure(t *testing.T) {
	router := newTestRouter(&fakePipelineService{readyErr: errors.New("missing table staging.raw_banking_data")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "missing table")
}
