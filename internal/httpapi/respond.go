// Package httpapi provides the shared HTTP plumbing for all services:
// JSON responses, the standard error envelope, and correlation-id handling.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/procat/backend/internal/apperr"
)

// CorrelationHeader is propagated end-to-end and reflected on every response.
const CorrelationHeader = "X-Correlation-ID"

type ctxKey int

const correlationKey ctxKey = iota

// ErrorDetail is the body of the standard error envelope.
type ErrorDetail struct {
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// ErrorResponse wraps ErrorDetail per the platform error contract.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// CorrelationID returns the correlation id stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// WithCorrelationID stores a correlation id in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// timingWriter stamps X-Process-Time just before the headers flush, since
// setting it after the handler has written would be too late.
type timingWriter struct {
	http.ResponseWriter
	start time.Time
	wrote bool
}

func (w *timingWriter) WriteHeader(status int) {
	if !w.wrote {
		w.wrote = true
		w.Header().Set("X-Process-Time", time.Since(w.start).String())
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *timingWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

// CorrelationMiddleware generates or forwards X-Correlation-ID, stores it in
// the request context, and reflects it on the response together with the
// processing time.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)

		tw := &timingWriter{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(tw, r.WithContext(WithCorrelationID(r.Context(), id)))
	})
}

// WriteJSON renders v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("encode response failed", "error", err)
		}
	}
}

// WriteError renders err using the standard envelope, mapping its kind to a
// status code and attaching the request's correlation id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	WriteJSON(w, apperr.HTTPStatus(kind), ErrorResponse{Error: ErrorDetail{
		Code:          string(kind),
		Message:       apperr.MessageOf(err),
		Details:       apperr.DetailsOf(err),
		CorrelationID: CorrelationID(r.Context()),
	}})
}

// Health returns a handler reporting service liveness.
func Health(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": serviceName,
		})
	}
}

// DependencyCheck probes one backing system, such as the database or the
// search index.
type DependencyCheck struct {
	Name  string
	Probe func(context.Context) error
}

type dependencyReport struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// DependenciesHealth returns a handler running each probe with a short
// timeout. Any failing probe degrades the overall status.
func DependenciesHealth(serviceName string, checks ...DependencyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		overall := "healthy"
		reports := make([]dependencyReport, 0, len(checks))
		for _, check := range checks {
			report := dependencyReport{Name: check.Name, Status: "healthy"}
			if err := check.Probe(ctx); err != nil {
				report.Status = "unhealthy"
				report.Error = err.Error()
				overall = "degraded"
			}
			reports = append(reports, report)
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":       overall,
			"service":      serviceName,
			"dependencies": reports,
		})
	}
}
