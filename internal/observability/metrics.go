package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the five core components
// publish to, generalized from the teacher's internal/observability/metrics.go
// (same promauto-registered CounterVec/HistogramVec/Gauge shape) away from
// the teacher's HTTP/WebSocket/NATS/Redis/DB surfaces and onto sagas,
// routing decisions, validation outcomes and ledger postings.
type Metrics struct {
	SagasStartedTotal     *prometheus.CounterVec
	SagasCompletedTotal   *prometheus.CounterVec
	SagaDuration          *prometheus.HistogramVec
	SagaStepDuration      *prometheus.HistogramVec
	SagaStepRetriesTotal  *prometheus.CounterVec
	SagaCompensationTotal *prometheus.CounterVec

	ValidationOutcomesTotal *prometheus.CounterVec
	ValidationDuration      *prometheus.HistogramVec
	ValidationRiskScore     *prometheus.HistogramVec

	RoutingDecisionsTotal    *prometheus.CounterVec
	RoutingDecisionDuration  *prometheus.HistogramVec
	RoutingCacheHitsTotal    prometheus.Counter
	RoutingCacheMissesTotal  prometheus.Counter
	RoutingNoRuleMatcheTotal prometheus.Counter

	LedgerPostingsTotal  *prometheus.CounterVec
	LedgerImbalanceTotal prometheus.Counter

	InFlightPayments *prometheus.GaugeVec

	ServiceHealthy  prometheus.Gauge
	ServiceUptime   prometheus.Gauge
	LastHealthCheck prometheus.Gauge
}

// NewMetrics creates and registers every metric under namespace/subsystem.
func NewMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		SagasStartedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "sagas_started_total",
				Help: "Total number of saga instances started, by template",
			},
			[]string{"template"},
		),
		SagasCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "sagas_completed_total",
				Help: "Total number of saga instances reaching a terminal status",
			},
			[]string{"template", "status"}, // status: COMPLETED, FAILED, COMPENSATED
		),
		SagaDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name:    "saga_duration_seconds",
				Help:    "Wall-clock duration of a saga from start to terminal status",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"template", "status"},
		),
		SagaStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name:    "saga_step_duration_seconds",
				Help:    "Duration of a single saga step execution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"template", "step", "outcome"}, // outcome: success, transient_failure, permanent_failure
		),
		SagaStepRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "saga_step_retries_total",
				Help: "Total number of saga step retry attempts",
			},
			[]string{"template", "step"},
		),
		SagaCompensationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "saga_compensations_total",
				Help: "Total number of saga step compensation actions executed",
			},
			[]string{"template", "step", "outcome"}, // outcome: success, failure
		),

		ValidationOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "validation_outcomes_total",
				Help: "Total number of validation runs, by outcome and risk level",
			},
			[]string{"outcome", "risk_level"}, // outcome: pass, fail
		),
		ValidationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name:    "validation_duration_seconds",
				Help:    "Duration of a validation run across all rule groups",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"outcome"},
		),
		ValidationRiskScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name:    "validation_risk_score",
				Help:    "Distribution of computed fraud/risk scores",
				Buckets: []float64{0, 10, 25, 50, 75, 100, 125, 150},
			},
			[]string{"risk_level"},
		),

		RoutingDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "routing_decisions_total",
				Help: "Total number of routing decisions, by selected action type",
			},
			[]string{"action_type"},
		),
		RoutingDecisionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name:    "routing_decision_duration_seconds",
				Help:    "Duration of a routing decision across all concurrently evaluated rules",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
			},
			[]string{},
		),
		RoutingCacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "routing_decision_cache_hits_total",
				Help: "Total number of routing decisions served from cache",
			},
		),
		RoutingCacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "routing_decision_cache_misses_total",
				Help: "Total number of routing decisions not found in cache",
			},
		),
		RoutingNoRuleMatcheTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "routing_no_rule_matched_total",
				Help: "Total number of routing requests where no rule matched",
			},
		),

		LedgerPostingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "ledger_postings_total",
				Help: "Total number of ledger entries posted, by entry type",
			},
			[]string{"entry_type"}, // DEBIT, CREDIT
		),
		LedgerImbalanceTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "ledger_imbalance_detected_total",
				Help: "Total number of times a non-zero-sum ledger entry set was rejected",
			},
		),

		InFlightPayments: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "in_flight_payments",
				Help: "Current number of in-flight payments, by tenant",
			},
			[]string{"tenant"},
		),

		ServiceHealthy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "service_healthy",
				Help: "Service health status (1 = healthy, 0 = unhealthy)",
			},
		),
		ServiceUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		LastHealthCheck: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "last_health_check_timestamp",
				Help: "Timestamp of last health check",
			},
		),
	}

	m.ServiceHealthy.Set(1)
	m.LastHealthCheck.SetToCurrentTime()

	return m
}

// RecordSagaStarted records a saga instance starting.
func (m *Metrics) RecordSagaStarted(template string) {
	m.SagasStartedTotal.WithLabelValues(template).Inc()
}

// RecordSagaCompleted records a saga reaching a terminal status.
func (m *Metrics) RecordSagaCompleted(template, status string, duration time.Duration) {
	m.SagasCompletedTotal.WithLabelValues(template, status).Inc()
	m.SagaDuration.WithLabelValues(template, status).Observe(duration.Seconds())
}

// RecordSagaStep records one step execution.
func (m *Metrics) RecordSagaStep(template, step, outcome string, duration time.Duration) {
	m.SagaStepDuration.WithLabelValues(template, step, outcome).Observe(duration.Seconds())
}

// RecordSagaStepRetry records one retry attempt of a step.
func (m *Metrics) RecordSagaStepRetry(template, step string) {
	m.SagaStepRetriesTotal.WithLabelValues(template, step).Inc()
}

// RecordCompensation records a compensation action outcome.
func (m *Metrics) RecordCompensation(template, step, outcome string) {
	m.SagaCompensationTotal.WithLabelValues(template, step, outcome).Inc()
}

// RecordValidation records a completed validation run.
func (m *Metrics) RecordValidation(outcome, riskLevel string, score int, duration time.Duration) {
	m.ValidationOutcomesTotal.WithLabelValues(outcome, riskLevel).Inc()
	m.ValidationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.ValidationRiskScore.WithLabelValues(riskLevel).Observe(float64(score))
}

// RecordRoutingDecision records a completed routing decision.
func (m *Metrics) RecordRoutingDecision(actionType string, duration time.Duration, cacheHit, noMatch bool) {
	m.RoutingDecisionsTotal.WithLabelValues(actionType).Inc()
	m.RoutingDecisionDuration.WithLabelValues().Observe(duration.Seconds())
	if cacheHit {
		m.RoutingCacheHitsTotal.Inc()
	} else {
		m.RoutingCacheMissesTotal.Inc()
	}
	if noMatch {
		m.RoutingNoRuleMatcheTotal.Inc()
	}
}

// RecordLedgerPosting records one ledger entry posted.
func (m *Metrics) RecordLedgerPosting(entryType string) {
	m.LedgerPostingsTotal.WithLabelValues(entryType).Inc()
}

// RecordLedgerImbalance records a rejected non-zero-sum entry set.
func (m *Metrics) RecordLedgerImbalance() {
	m.LedgerImbalanceTotal.Inc()
}

// SetInFlightPayments reports the current in-flight count for a tenant.
func (m *Metrics) SetInFlightPayments(tenant string, count int) {
	m.InFlightPayments.WithLabelValues(tenant).Set(float64(count))
}

// UpdateServiceHealth updates the coordinator's health gauge.
func (m *Metrics) UpdateServiceHealth(healthy bool) {
	if healthy {
		m.ServiceHealthy.Set(1)
	} else {
		m.ServiceHealthy.Set(0)
	}
	m.LastHealthCheck.SetToCurrentTime()
}

// StartUptimeTracking updates ServiceUptime every 10 seconds from its own
// goroutine until stop is closed.
func (m *Metrics) StartUptimeTracking(startTime time.Time, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.ServiceUptime.Set(time.Since(startTime).Seconds())
			}
		}
	}()
}
