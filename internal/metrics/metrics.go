// Package metrics exposes Prometheus instrumentation on a private registry
// so tests can create isolated instances.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	deliveriesTotal     *prometheus.CounterVec
	inboxActivities     *prometheus.CounterVec
	eventsExpiredTotal  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern, and status code.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		deliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "federation_deliveries_total",
			Help: "Outbound activity deliveries by type and outcome.",
		}, []string{"activity_type", "outcome"}),
		inboxActivities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "federation_inbox_activities_total",
			Help: "Inbound activities by type and disposition.",
		}, []string{"activity_type", "disposition"}),
		eventsExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "events_expired_total",
			Help: "Events removed by the expiry job.",
		}),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDelivery satisfies the broadcaster's DeliveryRecorder.
func (m *Metrics) RecordDelivery(activityType string, succeeded bool) {
	outcome := "ok"
	if !succeeded {
		outcome = "error"
	}
	m.deliveriesTotal.WithLabelValues(activityType, outcome).Inc()
}

func (m *Metrics) RecordInboxActivity(activityType, disposition string) {
	m.inboxActivities.WithLabelValues(activityType, disposition).Inc()
}

func (m *Metrics) RecordExpiredEvents(count int) {
	m.eventsExpiredTotal.Add(float64(count))
}
