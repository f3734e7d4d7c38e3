// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmchat-gateway/internal/models"
)

const namespace = "llmchat"

// LLMBuckets covers inference latencies from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics holds the gateway's collectors. All methods are safe for
// concurrent use.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	fallbacksTotal  prometheus.Counter
	diagnoseTotal   *prometheus.CounterVec
}

// New registers the collectors with a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status class.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   LLMBuckets,
		}, []string{"method", "route"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Calls to the LLM server, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "LLM server call latency.",
			Buckets:   LLMBuckets,
		}, []string{"operation"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the LLM server, by direction.",
		}, []string{"direction"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_list_fallbacks_total",
			Help:      "Model listings answered with the configured default model.",
		}),
		diagnoseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnose_runs_total",
			Help:      "Diagnostic probe runs, by verdict.",
		}, []string{"verdict"}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.upstreamTotal,
		m.upstreamLatency,
		m.tokensTotal,
		m.fallbacksTotal,
		m.diagnoseTotal,
	)
	return m
}

// ObserveUpstream records one call to the LLM server.
func (m *Metrics) ObserveUpstream(op, outcome string, elapsed time.Duration) {
	m.upstreamTotal.WithLabelValues(op, outcome).Inc()
	m.upstreamLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddUsage records the token counts of a completion.
func (m *Metrics) AddUsage(u *models.Usage) {
	if u == nil {
		return
	}
	m.tokensTotal.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	m.tokensTotal.WithLabelValues("completion").Add(float64(u.CompletionTokens))
}

// ModelListFallback counts a model listing served from configuration.
func (m *Metrics) ModelListFallback() {
	m.fallbacksTotal.Inc()
}

// DiagnoseRun counts a diagnostic probe run.
func (m *Metrics) DiagnoseRun(verdict string) {
	m.diagnoseTotal.WithLabelValues(verdict).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Middleware records request count and duration per matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Inc()
			m.requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func statusOf(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
