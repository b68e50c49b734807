package bridge

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure stages reported by Metrics.
const (
	StageTranslate = "translate"
	StageHandler   = "handler"
	StageStream    = "stream"
)

// Metrics collects Prometheus metrics for an Adapter. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	clientClosed  prometheus.Counter
	responseBytes prometheus.Counter
}

// NewMetrics creates the adapter metrics and registers them with reg. If reg
// is nil, prometheus.DefaultRegisterer is used. It panics if registration
// fails, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_bridge_requests_total",
			Help: "Requests whose response was projected, by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetch_bridge_request_duration_seconds",
			Help:    "Time from translation to the end of projection.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_bridge_failures_total",
			Help: "Requests that failed, by stage.",
		}, []string{"stage"}),
		clientClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fetch_bridge_client_closed_total",
			Help: "Requests whose client connection closed before projection finished.",
		}),
		responseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fetch_bridge_response_bytes_total",
			Help: "Response body bytes written to platform sinks.",
		}),
	}

	reg.MustRegister(m.requests, m.duration, m.failures, m.clientClosed, m.responseBytes)
	return m
}

func (m *Metrics) observe(method string, status int, written int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	method = methodLabel(method)
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
	m.responseBytes.Add(float64(written))
}

func (m *Metrics) failed(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) closed() {
	if m == nil {
		return
	}
	m.clientClosed.Inc()
}

// methodLabel bounds label cardinality to the registered methods.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodConnect,
		http.MethodOptions, http.MethodTrace:
		return method
	}
	return "OTHER"
}
