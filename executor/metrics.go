package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labelled by "subsystem" and "executor" so several machines can share a process.
var (
	aliveExecutors = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "statekeeper_executor_alive",
		Help: "Number of running serial executors",
	}, []string{"subsystem", "executor"})

	executorPanics = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "statekeeper_executor_panics_total",
		Help: "Number of commands that panicked and were recovered",
	}, []string{"subsystem", "executor"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "statekeeper_executor_queue_depth",
		Help: "Number of commands waiting to run",
	}, []string{"subsystem", "executor"})

	processedCommands = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "statekeeper_executor_processed_total",
		Help: "Number of commands run",
	}, []string{"subsystem", "executor"})

	processingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{ //nolint:gochecknoglobals
		Name: "statekeeper_executor_processing_seconds",
		Help: "Time spent running a single command",
		Buckets: []float64{
			0.0001, // 100µs
			0.001,  // 1ms
			0.01,   // 10ms
			0.1,    // 100ms
			1,      // 1s
			10,     // 10s
		},
	}, []string{"subsystem", "executor"})
)
