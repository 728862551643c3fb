package errors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorError(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "bad payload")
	assert.Equal(t, "bad payload", err.Error())
}

func TestAPIErrorRender(t *testing.T) {
	apiErr := NewWithDetails(http.StatusConflict, "RUN_IN_PROGRESS", "busy", "batch 20260829_120000_000")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/pipeline/all", nil)

	require.NoError(t, render.Render(w, r, apiErr))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "RUN_IN_PROGRESS")
	assert.Contains(t, w.Body.String(), "batch 20260829_120000_000")
}

func TestErrValidation(t *testing.T) {
	err := ErrValidation("stage", "must be one of extract, transform, load, quality, all")
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", err.ErrorCode)

	detail, ok := err.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "stage", detail.Field)
}

func TestErrPipelineExecution(t *testing.T) {
	err := ErrPipelineExecution(errors.New("stage load failed: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, "PIPELINE_FAILED", err.ErrorCode)
	assert.Equal(t, "stage load failed: connection refused", err.Details)
}

func TestErrorResponseRender(t *testing.T) {
	resp := NewErrorResponse(ErrBatchNotFound)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/executions/nope", nil)

	require.NoError(t, render.Render(w, r, resp))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}
