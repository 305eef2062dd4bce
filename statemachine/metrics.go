package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions with appropriate labels.
var (
	// transitionTotal tracks committed state changes, including self transitions.
	transitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of committed transitions by machine, from_state and to_state",
	}, []string{"machine", "from_state", "to_state"})

	// operationTotal tracks completed operations by outcome.
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_operations_total",
		Help: "Total number of completed operations by machine, operation and outcome (success or error)",
	}, []string{"machine", "operation", "outcome"})

	// operationDuration tracks how long operation work ran.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_operation_duration_seconds",
		Help:    "Duration of operation work by machine and operation",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"machine", "operation"})

	// flagsRaised counts flags entering the live set, directly or by promotion.
	flagsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_flags_raised_total",
		Help: "Total number of flags raised by machine, flag and source (direct or pending)",
	}, []string{"machine", "flag", "source"})

	// pendingFlags tracks deferred flags waiting for their gates.
	pendingFlags = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statemachine_pending_flags",
		Help: "Number of pending flags waiting to be promoted",
	}, []string{"machine"})

	// paused is 1 while a machine is quiescent.
	paused = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statemachine_paused",
		Help: "Whether the machine is quiescent (1) or working (0)",
	}, []string{"machine"})
)

func sanitizeMachine(name string) string {
	if name == "" {
		return "unknown"
	}

	return name
}
