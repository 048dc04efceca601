package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusOK      = "ok"
	statusError   = "error"
	statusTimeout = "timeout"

	killOutcomeKilled      = "killed"
	killOutcomeFailed      = "failed"
	killOutcomeNotFound    = "not_found"
	killOutcomeLookupError = "lookup_error"
)

// Metrics records statement outcomes. A nil *Metrics records nothing.
type Metrics struct {
	executions   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	killAttempts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "playground_sql_executions_total",
			Help: "Number of SQL statements executed, by outcome.",
		}, []string{"status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "playground_sql_execution_duration_seconds",
			Help:    "Wall time of SQL statements, by outcome.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 600},
		}, []string{"status"}),
		killAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "playground_sql_kill_attempts_total",
			Help: "Attempts to cancel statements that exceeded their time budget, by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) killAttempt(outcome string) {
	if m == nil {
		return
	}
	m.killAttempts.WithLabelValues(outcome).Inc()
}
