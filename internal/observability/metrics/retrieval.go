package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

const namespace = "nrs"

// RetrievalMetrics mirrors the engine usage counters and upstream breaker
// state. It implements ports.RetrievalObserver.
type RetrievalMetrics struct {
	service string

	requestsTotal     *prometheus.CounterVec
	hydeUsedTotal     *prometheus.CounterVec
	fallbackTotal     *prometheus.CounterVec
	activationTotal   *prometheus.CounterVec
	analysisTotal     *prometheus.CounterVec
	generationCost    *prometheus.CounterVec
	searchCalls       *prometheus.HistogramVec
	resultCount       *prometheus.HistogramVec
	duration          *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec
	breakerTransition *prometheus.CounterVec
}

func NewRetrievalMetrics(service string, registerer prometheus.Registerer) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Finished retrieval requests by final strategy and outcome.",
		}, []string{"service", "strategy", "outcome"}),
		hydeUsedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "hyde_used_total",
			Help:      "Retrieval requests whose results came from a hypothetical document search.",
		}, []string{"service"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "fallback_total",
			Help:      "Fallback evaluations by result (adopted, rejected).",
		}, []string{"service", "result"}),
		activationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "activation_rule_total",
			Help:      "Matched activation rule per request.",
		}, []string{"service", "rule"}),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "analysis_source_total",
			Help:      "Query analyses by source (llm, heuristic).",
		}, []string{"service", "source"}),
		generationCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "generation_cost_units_total",
			Help:      "Generation cost units spent on decomposition and hypothetical documents.",
		}, []string{"service"}),
		searchCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "search_calls",
			Help:      "Vector index searches per request.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
		}, []string{"service"}),
		resultCount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Distribution of returned results per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		}, []string{"service"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds by strategy.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "strategy"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per upstream operation (0 closed, 1 half-open, 2 open).",
		}, []string{"service", "operation"}),
		breakerTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions per upstream operation.",
		}, []string{"service", "operation", "to"}),
	}

	registerer.MustRegister(
		m.requestsTotal,
		m.hydeUsedTotal,
		m.fallbackTotal,
		m.activationTotal,
		m.analysisTotal,
		m.generationCost,
		m.searchCalls,
		m.resultCount,
		m.duration,
		m.breakerState,
		m.breakerTransition,
	)
	return m
}

func (m *RetrievalMetrics) ObserveRetrieval(obs domain.RetrievalObservation) {
	strategy := string(obs.Strategy)
	if strategy == "" {
		strategy = "unknown"
	}
	outcome := string(obs.Outcome)
	if outcome == "" {
		outcome = "unknown"
	}

	m.requestsTotal.WithLabelValues(m.service, strategy, outcome).Inc()
	m.duration.WithLabelValues(m.service, strategy).Observe(obs.DurationSeconds)
	m.resultCount.WithLabelValues(m.service).Observe(float64(obs.ResultCount))
	m.searchCalls.WithLabelValues(m.service).Observe(float64(obs.Cost.SearchCalls))
	if obs.Cost.GenerationCost > 0 {
		m.generationCost.WithLabelValues(m.service).Add(obs.Cost.GenerationCost)
	}
	if obs.HyDEUsed {
		m.hydeUsedTotal.WithLabelValues(m.service).Inc()
	}
	if obs.FallbackTrigger {
		result := "rejected"
		if obs.FallbackAdopted {
			result = "adopted"
		}
		m.fallbackTotal.WithLabelValues(m.service, result).Inc()
	}
	if obs.ActivationRuleID > 0 {
		m.activationTotal.WithLabelValues(m.service, strconv.Itoa(obs.ActivationRuleID)).Inc()
	}
	if obs.AnalysisSource != "" {
		m.analysisTotal.WithLabelValues(m.service, string(obs.AnalysisSource)).Inc()
	}
}

// ObserveBreakerState matches resilience.StateListener.
func (m *RetrievalMetrics) ObserveBreakerState(operation string, _ gobreaker.State, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(breakerStateValue(to))
	m.breakerTransition.WithLabelValues(m.service, operation, to.String()).Inc()
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
