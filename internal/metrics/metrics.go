// Package metrics exposes span counts and durations to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zoobzio/tracectx"
	"github.com/zoobzio/tracectx/tracehttp"
)

// Metrics holds the span metrics of one service.
type Metrics struct {
	registry *prometheus.Registry

	SpansTotal   *prometheus.CounterVec
	SpanDuration *prometheus.HistogramVec
	Published    *prometheus.CounterVec
}

// New registers span metrics on a fresh registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SpansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spans_total",
				Help:      "Total number of finished spans",
			},
			[]string{"operation", "status", "remote"},
		),
		SpanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "span_duration_seconds",
				Help:      "Span duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_published_total",
				Help:      "Total number of published messages",
			},
			[]string{"topic", "result"},
		),
	}

	m.registry.MustRegister(m.SpansTotal, m.SpanDuration, m.Published)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSpan is a span handler recording one finished span.
func (m *Metrics) ObserveSpan(span tracectx.Span) {
	op := Operation(span)
	m.SpansTotal.WithLabelValues(op, span.Status.String(), strconv.FormatBool(span.Context.Remote)).Inc()
	m.SpanDuration.WithLabelValues(op).Observe(span.Duration.Seconds())
}

// Operation is the label a span is counted under. HTTP spans are keyed by
// method and route pattern (server) or method and host (client), never by
// the raw URL, so query strings and path values cannot add series.
func Operation(span tracectx.Span) string {
	method, _ := span.Attributes[tracehttp.AttrHTTPMethod].(string)
	if route, ok := span.Attributes[tracehttp.AttrHTTPRoute].(string); ok && route != "" {
		return method + " " + route
	}
	if host, ok := span.Attributes[tracehttp.AttrHTTPHost].(string); ok && host != "" {
		return method + " " + host
	}
	return span.Name
}

// ObservePublish records the outcome of one publish call.
func (m *Metrics) ObservePublish(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Published.WithLabelValues(topic, result).Inc()
}
