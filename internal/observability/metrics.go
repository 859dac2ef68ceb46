package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	poolWorkers      *prometheus.GaugeVec
	taskDuration     *prometheus.HistogramVec
	taskOutcomes     *prometheus.CounterVec
	roundsTotal      *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	commandsDropped  prometheus.Counter
	votesCast        *prometheus.GaugeVec
	sessionsClosed   *prometheus.CounterVec
	sideEffectErrors *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			poolWorkers: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "conclave_pool_workers",
					Help: "Worker pool occupancy by state (active, total, pending).",
				},
				[]string{"state"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "conclave_task_duration_seconds",
					Help:    "Agent task duration in seconds by role.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"role"},
			),
			taskOutcomes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conclave_task_outcomes_total",
					Help: "Agent task outcomes (success, error, timeout, superseded, shutdown).",
				},
				[]string{"outcome"},
			),
			roundsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conclave_rounds_total",
					Help: "Deliberation rounds started by session.",
				},
				[]string{"session"},
			),
			decisionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conclave_decisions_total",
					Help: "Agent decisions by action.",
				},
				[]string{"action"},
			),
			commandsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conclave_commands_total",
					Help: "Accepted operator commands by type.",
				},
				[]string{"type"},
			),
			commandsDropped: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conclave_commands_dropped_total",
					Help: "Inbound command frames ignored as malformed or foreign.",
				},
			),
			votesCast: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "conclave_votes_cast",
					Help: "Votes recorded locally by session.",
				},
				[]string{"session"},
			),
			sessionsClosed: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conclave_sessions_closed_total",
					Help: "Sessions closed by verdict.",
				},
				[]string{"verdict"},
			),
			sideEffectErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conclave_side_effect_errors_total",
					Help: "Failed opinion, message, vote and close calls.",
				},
				[]string{"kind"},
			),
		}

		prometheus.MustRegister(
			m.poolWorkers,
			m.taskDuration,
			m.taskOutcomes,
			m.roundsTotal,
			m.decisionsTotal,
			m.commandsTotal,
			m.commandsDropped,
			m.votesCast,
			m.sessionsClosed,
			m.sideEffectErrors,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetPoolWorkers(active, total, pending int) {
	m := getMetrics()
	m.poolWorkers.WithLabelValues("active").Set(float64(active))
	m.poolWorkers.WithLabelValues("total").Set(float64(total))
	m.poolWorkers.WithLabelValues("pending").Set(float64(pending))
}

func RecordTaskOutcome(role, outcome string, duration time.Duration) {
	m := getMetrics()
	m.taskOutcomes.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.taskDuration.WithLabelValues(role).Observe(duration.Seconds())
	}
}

func RecordRound(session string) {
	getMetrics().roundsTotal.WithLabelValues(session).Inc()
}

func RecordDecision(action string) {
	getMetrics().decisionsTotal.WithLabelValues(action).Inc()
}

func RecordCommand(commandType string) {
	getMetrics().commandsTotal.WithLabelValues(commandType).Inc()
}

func RecordCommandDropped() {
	getMetrics().commandsDropped.Inc()
}

func SetVotesCast(session string, count int) {
	getMetrics().votesCast.WithLabelValues(session).Set(float64(count))
}

func RecordSessionClosed(verdict string) {
	getMetrics().sessionsClosed.WithLabelValues(verdict).Inc()
}

func RecordSideEffectError(kind string) {
	getMetrics().sideEffectErrors.WithLabelValues(kind).Inc()
}
