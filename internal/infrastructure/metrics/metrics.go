package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcpauth"

// Recorder owns a private registry so several servers can live in one
// process. A nil *Recorder records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	tokensIssued    *prometheus.CounterVec
	oauthErrors     *prometheus.CounterVec
	introspections  *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued, by grant type.",
		}, []string{"grant_type"}),
		oauthErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_errors_total",
			Help:      "OAuth errors returned to callers, by error code.",
		}, []string{"code"}),
		introspections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "introspections_total",
			Help:      "Token introspections, by result.",
		}, []string{"active"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Protected tool calls, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	registry.MustRegister(r.tokensIssued, r.oauthErrors, r.introspections, r.toolCalls, r.requestDuration)
	return r
}

func (r *Recorder) TokenIssued(grantType string) {
	if r == nil {
		return
	}
	r.tokensIssued.WithLabelValues(grantType).Inc()
}

func (r *Recorder) OAuthError(code string) {
	if r == nil {
		return
	}
	r.oauthErrors.WithLabelValues(code).Inc()
}

func (r *Recorder) Introspected(active bool) {
	if r == nil {
		return
	}
	r.introspections.WithLabelValues(strconv.FormatBool(active)).Inc()
}

func (r *Recorder) ToolCalled(tool, outcome string) {
	if r == nil {
		return
	}
	r.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by the matched chi route
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		r.requestDuration.WithLabelValues(route, req.Method, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
	})
}
