package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

type turnMetrics struct {
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	turnEvidence *prometheus.HistogramVec
	scansTotal   *prometheus.CounterVec
	scannedItems *prometheus.HistogramVec
}

func newTurnMetrics() turnMetrics {
	return turnMetrics{
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nutri",
				Subsystem: "turn",
				Name:      "total",
				Help:      "Completed turns by answer path and outcome.",
			},
			[]string{"service", "path", "outcome"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nutri",
				Subsystem: "turn",
				Name:      "duration_seconds",
				Help:      "Turn duration in seconds by answer path.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"service", "path"},
		),
		turnEvidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nutri",
				Subsystem: "turn",
				Name:      "evidence_passages",
				Help:      "Passages that survived reranking per corpus turn.",
				Buckets:   []float64{0, 1, 2, 3, 4, 5},
			},
			[]string{"service"},
		),
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nutri",
				Subsystem: "scan",
				Name:      "events_total",
				Help:      "Scan events by whether they changed session focus.",
			},
			[]string{"service", "applied"},
		),
		scannedItems: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nutri",
				Subsystem: "scan",
				Name:      "items",
				Help:      "Translated item names per applied scan event.",
				Buckets:   []float64{1, 2, 3, 5, 8},
			},
			[]string{"service"},
		),
	}
}

func (t turnMetrics) register(registry *prometheus.Registry) {
	registry.MustRegister(t.turnsTotal, t.turnDuration, t.turnEvidence, t.scansTotal, t.scannedItems)
}

func (t turnMetrics) observeTurn(service string, path domain.Path, outcome domain.Outcome, evidence int, duration time.Duration) {
	if path == "" {
		path = "unknown"
	}
	t.turnsTotal.WithLabelValues(service, string(path), string(outcome)).Inc()
	t.turnDuration.WithLabelValues(service, string(path)).Observe(duration.Seconds())
	if path == domain.PathCorpus && outcome == domain.OutcomeAnswered {
		t.turnEvidence.WithLabelValues(service).Observe(float64(evidence))
	}
}

func (t turnMetrics) observeScan(service string, applied bool, items int) {
	t.scansTotal.WithLabelValues(service, strconv.FormatBool(applied)).Inc()
	if applied {
		t.scannedItems.WithLabelValues(service).Observe(float64(items))
	}
}
