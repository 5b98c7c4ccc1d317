// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg      *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	notify   *prometheus.CounterVec
	llmCalls *prometheus.CounterVec
	byStatus *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquaflow",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aquaflow",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		notify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquaflow",
			Name:      "notifications_total",
			Help:      "Outbound notifications by channel and outcome.",
		}, []string{"channel", "outcome"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquaflow",
			Name:      "llm_calls_total",
			Help:      "Language model calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		byStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "aquaflow",
			Name:      "requests_by_status",
			Help:      "Service requests currently in each status.",
		}, []string{"status"}),
	}
	m.reg.MustRegister(
		m.requests, m.latency, m.notify, m.llmCalls, m.byStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	m.notify.WithLabelValues(channel, outcome(err)).Inc()
}

func (m *Metrics) LLMCall(op string, err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(op, outcome(err)).Inc()
}

// SetStatusCounts replaces the requests_by_status gauge values.
func (m *Metrics) SetStatusCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.byStatus.Reset()
	for status, n := range counts {
		m.byStatus.WithLabelValues(status).Set(float64(n))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
