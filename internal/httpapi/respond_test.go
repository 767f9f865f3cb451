package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procat/backend/internal/apperr"
)

func TestWriteErrorRendersEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithCorrelationID(req.Context(), "corr-1"))

	err := apperr.New(apperr.KindValidation, "name is required").
		WithDetails(map[string]interface{}{"field": "name"})
	WriteError(rec, req, err)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "name is required", resp.Error.Message)
	assert.Equal(t, "corr-1", resp.Error.CorrelationID)
	assert.Equal(t, "name", resp.Error.Details["field"])
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.KindValidation, http.StatusUnprocessableEntity},
		{apperr.KindLifecycle, http.StatusBadRequest},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindLocked, http.StatusLocked},
		{apperr.KindUnauthorized, http.StatusUnauthorized},
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindServiceUnavailable, http.StatusServiceUnavailable},
		{apperr.KindGatewayTimeout, http.StatusGatewayTimeout},
		{apperr.KindBadGateway, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(rec, req, apperr.New(tc.kind, "boom"))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWriteErrorUnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, req, errors.New("plain failure"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCorrelationMiddlewareGeneratesID(t *testing.T) {
	var inCtx string
	handler := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inCtx = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	echoed := rec.Header().Get(CorrelationHeader)
	assert.NotEmpty(t, echoed)
	assert.Equal(t, echoed, inCtx)
}

func TestCorrelationMiddlewareForwardsExistingID(t *testing.T) {
	handler := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "corr-7", CorrelationID(r.Context()))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "corr-7")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "corr-7", rec.Header().Get(CorrelationHeader))
}

func TestDependenciesHealthReportsProbeOutcomes(t *testing.T) {
	handler := DependenciesHealth("pricing-service",
		DependencyCheck{Name: "postgres", Probe: func(context.Context) error { return nil }},
		DependencyCheck{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/dependencies", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string `json:"status"`
		Service      string `json:"service"`
		Dependencies []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "pricing-service", body.Service)
	require.Len(t, body.Dependencies, 2)
	assert.Equal(t, "healthy", body.Dependencies[0].Status)
	assert.Equal(t, "unhealthy", body.Dependencies[1].Status)
	assert.Equal(t, "connection refused", body.Dependencies[1].Error)
}

func TestDependenciesHealthAllHealthy(t *testing.T) {
	handler := DependenciesHealth("store-service",
		DependencyCheck{Name: "mongodb", Probe: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/dependencies", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}
