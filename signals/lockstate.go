package signals

import (
	"context"

	"github.com/amp-labs/statekeeper/logger"
)

// UnlockedSignal is the name of the signal exposed by LockState.
const UnlockedSignal = "unlocked"

// LockProbe reads the current lock state from the platform.
type LockProbe func(ctx context.Context) (locked bool, err error)

// LockState tracks whether the device is locked. Its signal reads true while unlocked.
type LockState struct {
	unlocked *Bool
	probe    LockProbe
}

// LockOption configures a LockState.
type LockOption func(*LockState)

// WithLockProbe makes Recheck re-read the lock state from probe.
func WithLockProbe(probe LockProbe) LockOption {
	return func(l *LockState) {
		l.probe = probe
	}
}

// NewLockState returns a provider with the given initial lock state.
func NewLockState(locked bool, opts ...LockOption) *LockState {
	l := &LockState{
		unlocked: NewBool(UnlockedSignal, !locked),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Unlocked returns the signal that reads true while the device is unlocked.
func (l *LockState) Unlocked() Signal {
	return l.unlocked
}

// Locked reports the last known lock state.
func (l *LockState) Locked() bool {
	return !l.unlocked.Value()
}

// SetLocked records a new lock state and notifies dependants if it changed.
func (l *LockState) SetLocked(locked bool) {
	l.unlocked.Set(!locked)
}

// Recheck re-reads the probe, if any, and always notifies dependants so that
// anything gated on the lock state is re-evaluated.
func (l *LockState) Recheck(ctx context.Context) {
	if l.probe != nil {
		locked, err := l.probe(ctx)
		if err != nil {
			logger.Get(ctx).Warn("lock state probe failed, keeping last known state",
				"locked", l.Locked(), "error", err)
		} else {
			l.unlocked.value.Store(!locked)
		}
	}

	logger.Get(ctx).DebugContext(ctx, "lock state rechecked", "locked", l.Locked())

	l.unlocked.Notify()
}
