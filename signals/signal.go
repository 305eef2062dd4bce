// Package signals provides named boolean conditions with change notification.
//
// Signals gate pending flags: a pending flag that lists signal names is only
// promoted once every one of them reads true at the same moment. Providers such
// as LockState and Reachability own a signal and decide when to notify.
package signals

import (
	"sync"

	"go.uber.org/atomic"
)

// Signal is a named boolean value that notifies subscribers when it may have changed.
type Signal interface {
	// Name identifies the signal inside a machine.
	Name() string

	// Value returns the current value.
	Value() bool

	// Subscribe registers fn to be called after every notification. The
	// returned function removes the subscription and is safe to call twice.
	Subscribe(fn func()) (cancel func())
}

// Bool is a mutable Signal.
type Bool struct {
	name  string
	value *atomic.Bool

	mutex  sync.Mutex
	nextID uint64
	subs   map[uint64]func()
}

var _ Signal = (*Bool)(nil)

// NewBool returns a signal with the given name and initial value.
func NewBool(name string, initial bool) *Bool {
	return &Bool{
		name:  name,
		value: atomic.NewBool(initial),
		subs:  make(map[uint64]func()),
	}
}

func (b *Bool) Name() string {
	return b.name
}

func (b *Bool) Value() bool {
	return b.value.Load()
}

// Set stores the value and notifies subscribers if it changed.
func (b *Bool) Set(value bool) {
	if b.value.Swap(value) != value {
		b.Notify()
	}
}

// Notify calls every subscriber, whether or not the value changed.
func (b *Bool) Notify() {
	b.mutex.Lock()
	subs := make([]func(), 0, len(b.subs))

	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mutex.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (b *Bool) Subscribe(fn func()) func() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()

		delete(b.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bool) Subscribers() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return len(b.subs)
}

// All reports whether every signal currently reads true. It reads each value
// fresh; nothing is remembered between calls.
func All(sigs ...Signal) bool {
	for _, s := range sigs {
		if !s.Value() {
			return false
		}
	}

	return true
}
