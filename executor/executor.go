// Package executor provides a serial executor: a single goroutine that runs
// submitted commands one at a time, in submission order.
//
// Submit never blocks; the mailbox is unbounded. A command that panics is
// recovered, logged with its stack and counted, and the executor keeps going.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/amp-labs/statekeeper/logger"
	"go.uber.org/atomic"
)

var (
	// ErrStopped is returned when submitting to an executor that has been stopped.
	ErrStopped = errors.New("executor is stopped")
	// ErrPanic wraps a panic recovered while running a command.
	ErrPanic = errors.New("panic in executor command")
)

// Serial runs commands on a dedicated goroutine.
type Serial struct {
	name      string
	subsystem string
	ctx       context.Context //nolint:containedctx

	mutex    sync.Mutex
	queue    []func()
	stopping bool

	wake    chan struct{}
	done    chan struct{}
	running *atomic.Bool
}

// New starts an executor. It stops when ctx is canceled or Stop is called.
func New(ctx context.Context, name string) *Serial {
	s := &Serial{
		name:      name,
		subsystem: logger.GetSubsystem(ctx),
		ctx:       ctx,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		running:   atomic.NewBool(false),
	}

	processedCommands.WithLabelValues(s.subsystem, name).Add(0)
	executorPanics.WithLabelValues(s.subsystem, name).Add(0)
	queueDepth.WithLabelValues(s.subsystem, name).Set(0)
	aliveExecutors.WithLabelValues(s.subsystem, name).Inc()

	go s.loop()

	return s
}

// Name returns the executor's name.
func (s *Serial) Name() string {
	return s.name
}

// Submit enqueues fn and returns immediately. It returns false if the
// executor is stopping, in which case fn will never run.
func (s *Serial) Submit(fn func()) bool {
	s.mutex.Lock()

	if s.stopping {
		s.mutex.Unlock()

		return false
	}

	s.queue = append(s.queue, fn)
	depth := len(s.queue)
	s.mutex.Unlock()

	queueDepth.WithLabelValues(s.subsystem, s.name).Set(float64(depth))

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return true
}

// Do runs fn on the executor and waits for it to finish. It must not be
// called from a command running on the same executor.
func (s *Serial) Do(ctx context.Context, fn func()) error {
	finished := make(chan error, 1)

	ok := s.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				finished <- fmt.Errorf("%w %s: %v", ErrPanic, s.name, r)

				panic(r)
			}
		}()

		fn()
		finished <- nil
	})
	if !ok {
		return ErrStopped
	}

	select {
	case err := <-finished:
		return err
	case <-s.done:
		select {
		case err := <-finished:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses further commands and discards the ones still queued. A command
// that is already running completes. Stop may be called from a command.
func (s *Serial) Stop() {
	s.mutex.Lock()
	s.stopping = true
	s.mutex.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stopped reports whether Stop has been called.
func (s *Serial) Stopped() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.stopping
}

// Wait blocks until the executor goroutine has exited.
func (s *Serial) Wait() {
	<-s.done
}

// Done is closed once the executor goroutine has exited.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

// Busy reports whether a command is running right now.
func (s *Serial) Busy() bool {
	return s.running.Load()
}

// Len returns the number of queued commands.
func (s *Serial) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.queue)
}

func (s *Serial) loop() {
	defer close(s.done)
	defer aliveExecutors.WithLabelValues(s.subsystem, s.name).Dec()

	ctxDone := s.ctx.Done()

	for {
		select {
		case <-s.wake:
		case <-ctxDone:
			ctxDone = nil

			s.Stop()
		}

		for {
			s.mutex.Lock()

			if s.stopping {
				s.queue = nil
				s.mutex.Unlock()
				queueDepth.WithLabelValues(s.subsystem, s.name).Set(0)

				return
			}

			if len(s.queue) == 0 {
				s.mutex.Unlock()

				break
			}

			fn := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			depth := len(s.queue)
			s.mutex.Unlock()

			queueDepth.WithLabelValues(s.subsystem, s.name).Set(float64(depth))

			s.run(fn)
		}
	}
}

func (s *Serial) run(fn func()) {
	start := time.Now()

	s.running.Store(true)

	defer func() {
		s.running.Store(false)

		if r := recover(); r != nil {
			executorPanics.WithLabelValues(s.subsystem, s.name).Inc()

			logger.Get(s.ctx).Error("executor recovered from panic",
				"executor", s.name,
				"error", r,
				"stack", string(debug.Stack()))
		}

		processedCommands.WithLabelValues(s.subsystem, s.name).Inc()
		processingTime.WithLabelValues(s.subsystem, s.name).Observe(time.Since(start).Seconds())
	}()

	fn()
}
