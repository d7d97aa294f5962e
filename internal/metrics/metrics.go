// Package metrics exposes Prometheus counters for pipeline outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deallinker"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal      *prometheus.CounterVec
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionAttempts *prometheus.HistogramVec
	ConversionsTotal   *prometheus.CounterVec
	ResolutionHops     prometheus.Histogram
	RecordsPublished   prometheus.Counter
}

// New creates the collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages processed by bundle kind",
		}, []string{"kind"}),
		ExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Product extractions by platform and source",
		}, []string{"platform", "source"}),
		ExtractionAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_attempts",
			Help:      "Fetch attempts spent per extraction",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}, []string{"platform"}),
		ConversionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Affiliate conversions by network and result",
		}, []string{"network", "result"}),
		ResolutionHops: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_hops",
			Help:      "Redirect hops followed per resolved link",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		RecordsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Product records handed to the output stream",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, used by tests to gather values
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveMessage(kind string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveExtraction(platform, source string, attempts int) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(platform, source).Inc()
	if attempts > 0 {
		m.ExtractionAttempts.WithLabelValues(platform).Observe(float64(attempts))
	}
}

func (m *Metrics) ObserveConversion(network string, converted bool) {
	if m == nil {
		return
	}
	result := "converted"
	if !converted {
		result = "failed"
	}
	m.ConversionsTotal.WithLabelValues(network, result).Inc()
}

func (m *Metrics) ObserveHops(hops int) {
	if m == nil {
		return
	}
	m.ResolutionHops.Observe(float64(hops))
}

func (m *Metrics) ObservePublished(n int) {
	if m == nil {
		return
	}
	m.RecordsPublished.Add(float64(n))
}
