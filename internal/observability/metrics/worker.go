package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers NATS retrieval messages handled by cmd/worker.
type WorkerMetrics struct {
	service   string
	registry  *prometheus.Registry
	retrieval *RetrievalMetrics

	messagesTotal   *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Total handled retrieval messages by status.",
		},
		[]string{"service", "status"},
	)
	messageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "message_duration_seconds",
			Help:      "Retrieval message handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "messages_in_flight",
			Help:      "Number of retrieval messages being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(messagesTotal, messageDuration, inFlight)

	return &WorkerMetrics{
		service:         service,
		registry:        registry,
		retrieval:       NewRetrievalMetrics(service, registry),
		messagesTotal:   messagesTotal,
		messageDuration: messageDuration,
		inFlight:        inFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Retrieval() *RetrievalMetrics {
	return m.retrieval
}

func (m *WorkerMetrics) StartMessage() {
	m.inFlight.Inc()
}

// FinishMessage records one handled message; an empty status means success.
func (m *WorkerMetrics) FinishMessage(status string, duration time.Duration) {
	m.inFlight.Dec()
	if status == "" {
		status = "ok"
	}
	m.messagesTotal.WithLabelValues(m.service, status).Inc()
	m.messageDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
