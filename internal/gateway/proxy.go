package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/tracing"
)

// Hop-by-hop headers are stripped in both directions.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Metrics counts proxied requests and exposes breaker states.
type Metrics struct {
	Requests     *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewMetrics registers gateway metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests proxied, by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Breaker state per upstream: 0 closed, 1 open, 2 half-open.",
		}, []string{"upstream"}),
	}
	reg.MustRegister(m.Requests, m.BreakerState)
	return m
}

// Proxy routes requests to upstreams with per-upstream circuit breaking.
type Proxy struct {
	config  *Config
	client  *http.Client
	metrics *Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewProxy builds a proxy from a route table. metrics may be nil.
func NewProxy(config *Config, metrics *Metrics) *Proxy {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: config.ConnectTimeout}).DialContext,
	}
	return &Proxy{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.ReadTimeout,
			// Redirects are passed back to the caller untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		metrics:  metrics,
		logger:   slog.Default().With("component", "gateway_proxy"),
		breakers: make(map[string]*Breaker),
	}
}

func (p *Proxy) breaker(name string) *Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.breakers[name]
	if !ok {
		b = NewBreaker(p.config.Breaker.FailMax, p.config.Breaker.ResetTimeout)
		p.breakers[name] = b
	}
	return b
}

// BreakerStates returns a snapshot of every upstream's breaker state.
func (p *Proxy) BreakerStates() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.breakers))
	for name, b := range p.breakers {
		out[name] = b.State().String()
	}
	return out
}

// ServeHTTP implements the reverse proxy.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := p.config.Match(r.URL.Path)
	if route == nil {
		httpapi.WriteError(w, r, apperr.New(apperr.KindNotFound, "no route for path"))
		return
	}

	span := trace.SpanFromContext(r.Context())

	breaker := p.breaker(route.Name)
	if !breaker.Allow() {
		p.count(route.Name, "short_circuit")
		span.SetStatus(codes.Error, "breaker open for "+route.Name)
		httpapi.WriteError(w, r, apperr.Newf(apperr.KindServiceUnavailable, "upstream %s unavailable", route.Name))
		return
	}

	resp, err := p.forward(r, route)
	if err != nil {
		breaker.Failure()
		p.observeBreaker(route.Name, breaker)
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			p.count(route.Name, "timeout")
			span.SetStatus(codes.Error, "upstream timeout")
			httpapi.WriteError(w, r, apperr.Newf(apperr.KindGatewayTimeout, "upstream %s timed out", route.Name))
			return
		}
		p.count(route.Name, "transport_error")
		span.SetStatus(codes.Error, "upstream unreachable")
		httpapi.WriteError(w, r, apperr.Newf(apperr.KindBadGateway, "upstream %s unreachable", route.Name))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		breaker.Failure()
	} else {
		breaker.Success()
	}
	p.observeBreaker(route.Name, breaker)
	p.count(route.Name, "proxied")

	for _, h := range hopByHopHeaders {
		resp.Header.Del(h)
	}
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (p *Proxy) forward(r *http.Request, route *Route) (*http.Response, error) {
	target := strings.TrimSuffix(route.Upstream, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}

	req.Header = r.Header.Clone()
	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}
	req.Header.Del("Host")
	req.Host = ""

	if id := httpapi.CorrelationID(r.Context()); id != "" {
		req.Header.Set(httpapi.CorrelationHeader, id)
	}
	tracing.Inject(r.Context(), req.Header)

	return p.client.Do(req)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (p *Proxy) count(upstream, outcome string) {
	if p.metrics != nil {
		p.metrics.Requests.WithLabelValues(upstream, outcome).Inc()
	}
}

func (p *Proxy) observeBreaker(upstream string, b *Breaker) {
	if p.metrics != nil {
		p.metrics.BreakerState.WithLabelValues(upstream).Set(float64(b.State()))
	}
}
