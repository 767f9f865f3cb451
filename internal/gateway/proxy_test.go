package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/procat/backend/internal/httpapi"
)

func testConfig(upstream string) *Config {
	return &Config{
		Routes: []Route{
			{Name: "offerings", Prefix: "/api/v1/offerings", Upstream: upstream},
			{Name: "store", Prefix: "/api/v1/store", Upstream: upstream},
		},
		Breaker:        BreakerConfig{FailMax: 3, ResetTimeout: 20 * time.Second},
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpapi.ErrorResponse {
	t.Helper()
	var envelope httpapi.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope
}

func TestProxyForwardsToUpstream(t *testing.T) {
	var gotPath, gotCorrelation string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCorrelation = r.Header.Get(httpapi.CorrelationHeader)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	proxy := NewProxy(testConfig(upstream.URL), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/offerings/42?full=1", nil)
	req = req.WithContext(httpapi.WithCorrelationID(req.Context(), "corr-1"))
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/v1/offerings/42", gotPath)
	assert.Equal(t, "corr-1", gotCorrelation)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestProxyUnknownRouteIs404(t *testing.T) {
	proxy := NewProxy(testConfig("http://127.0.0.1:1"), nil)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, rec).Error.Code)
}

func TestProxyShortCircuitsWhenOpen(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	proxy := NewProxy(testConfig(upstream.URL), nil)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offerings", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	require.Equal(t, 3, calls)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offerings", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeEnvelope(t, rec).Error.Code)
	assert.Equal(t, 3, calls, "open breaker must not contact the upstream")
}

func TestProxyUpstream4xxDoesNotTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	proxy := NewProxy(testConfig(upstream.URL), nil)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offerings", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, StateClosed.String(), proxy.BreakerStates()["offerings"])
}

func TestProxyTimeoutMapsTo504(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.ReadTimeout = 50 * time.Millisecond
	proxy := NewProxy(cfg, nil)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offerings", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "GATEWAY_TIMEOUT", decodeEnvelope(t, rec).Error.Code)
}

func TestProxyUnreachableMapsTo502(t *testing.T) {
	proxy := NewProxy(testConfig("http://127.0.0.1:1"), nil)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/offerings", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "BAD_GATEWAY", decodeEnvelope(t, rec).Error.Code)
}

func TestRouteMatchingLongestPrefixWins(t *testing.T) {
	cfg := &Config{Routes: []Route{
		{Name: "store", Prefix: "/api/v1/store", Upstream: "http://store"},
		{Name: "store-search", Prefix: "/api/v1/store/search", Upstream: "http://search"},
	}}
	// LoadConfig sorts by prefix length; emulate it for an in-memory config.
	cfg.Routes[0], cfg.Routes[1] = cfg.Routes[1], cfg.Routes[0]

	match := cfg.Match("/api/v1/store/search?q=x")
	require.NotNil(t, match)
	assert.Equal(t, "store-search", match.Name)

	match = cfg.Match("/api/v1/store/offerings/1")
	require.NotNil(t, match)
	assert.Equal(t, "store", match.Name)

	assert.Nil(t, cfg.Match("/api/v1/other"))
}

func TestProxyRecordsUpstreamFailureOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	// Nothing listens here, so the forward fails at the transport.
	proxy := NewProxy(testConfig("http://127.0.0.1:1"), nil)

	ctx, span := tracer.Start(context.Background(), "GET /api/v1/offerings")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/offerings", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)
	span.End()

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
