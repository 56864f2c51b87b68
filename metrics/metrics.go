// Package metrics provides Prometheus metrics for lifecycle operations
package metrics

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// one sample per strategy call
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// one sample per request-level operation
	OperationsTotal *prometheus.CounterVec

	CompensationsTotal *prometheus.CounterVec
}

// New registers all metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_commands_total",
				Help: "Total number of strategy commands by operation, entity type and outcome",
			},
			[]string{"operation", "entity_type", "outcome"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_command_duration_seconds",
				Help:    "Duration of strategy commands in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "entity_type"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_operations_total",
				Help: "Total number of lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		CompensationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_compensations_total",
				Help: "Compensating actions run after a partial failure",
			},
			[]string{"operation", "entity_type", "outcome"},
		),
	}
}

// Outcome is "success" or the lower-cased failure kind.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(utils.KindOf(err)))
}

func (m *Metrics) ObserveCommand(operation string, entityType string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(operation, entityType, Outcome(err)).Inc()
	m.CommandDuration.WithLabelValues(operation, entityType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Metrics) ObserveCompensation(operation string, entityType string, err error) {
	if m == nil {
		return
	}
	m.CompensationsTotal.WithLabelValues(operation, entityType, Outcome(err)).Inc()
}
