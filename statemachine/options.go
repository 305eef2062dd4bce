package statemachine

import (
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/statekeeper/signals"
)

type options struct {
	name        string
	logger      *slog.Logger
	eventLogger Logger
	pool        pond.Pool
	signals     []signals.Signal
	opTimeout   time.Duration
}

// Option configures a Machine.
type Option func(*options)

// WithName overrides the definition name used in logs, metrics and spans.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the slog logger for the machine and its executor.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventLogger replaces the default machine event hooks.
func WithEventLogger(logger Logger) Option {
	return func(o *options) {
		o.eventLogger = logger
	}
}

// WithPool runs operation work on a caller-owned pool. The machine never stops it.
func WithPool(pool pond.Pool) Option {
	return func(o *options) {
		o.pool = pool
	}
}

// WithSignals declares the signals pending flag conditions may name.
func WithSignals(sigs ...signals.Signal) Option {
	return func(o *options) {
		o.signals = append(o.signals, sigs...)
	}
}

// WithOperationTimeout bounds the context handed to operation work.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *options) {
		o.opTimeout = d
	}
}
