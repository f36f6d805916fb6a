package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	eventTotal    *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	eventInFlight prometheus.Gauge

	turns turnMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutri",
			Subsystem: "worker",
			Name:      "scan_event_total",
			Help:      "Total consumed scan events by status.",
		},
		[]string{"service", "status"},
	)
	eventDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nutri",
			Subsystem: "worker",
			Name:      "scan_event_duration_seconds",
			Help:      "Scan event handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	eventInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nutri",
			Subsystem: "worker",
			Name:      "scan_event_in_flight",
			Help:      "Number of scan events being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	turns := newTurnMetrics()
	registry.MustRegister(eventTotal, eventDuration, eventInFlight)
	turns.register(registry)

	return &WorkerMetrics{
		registry:      registry,
		service:       service,
		eventTotal:    eventTotal,
		eventDuration: eventDuration,
		eventInFlight: eventInFlight,
		turns:         turns,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.eventInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(duration time.Duration, err error) {
	m.eventInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.eventTotal.WithLabelValues(m.service, status).Inc()
	m.eventDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

// ObserveTurn is a no-op; the worker never answers questions.
func (m *WorkerMetrics) ObserveTurn(domain.Path, domain.Outcome, int, time.Duration) {}

func (m *WorkerMetrics) ObserveScan(applied bool, items int) {
	m.turns.observeScan(m.service, applied, items)
}
