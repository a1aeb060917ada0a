// Package metrics exposes prometheus metrics of the gateway.
// A nil *Metrics is valid and records nothing, so components may be built without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockgate"

// Provider call results
const (
	ResultOK          = "ok"
	ResultRejected    = "rejected"
	ResultUnavailable = "unavailable"
	ResultCanceled    = "canceled"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	authOutcomes     *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	quoteStreams     prometheus.Gauge
}

// New registers metrics in the given registry
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		authOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication outcomes of inbound requests",
		}, []string{"outcome"}),

		providerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Calls to the identity provider by operation and result",
		}, []string{"operation", "result"}),

		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Identity provider call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		quoteStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quote_streams",
			Help:      "Open websocket quote streams",
		}),
	}
}

func (m *Metrics) AuthOutcome(outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProviderCall(operation string, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(operation, result).Inc()
	m.providerDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.quoteStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.quoteStreams.Dec()
}

// Handler serves metrics in prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
