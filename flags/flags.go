// Package flags provides the live set of one-shot flags that drive a state machine.
package flags

import (
	"sync"

	"facette.io/natsort"
)

// Flag names a one-shot signal. A raised flag stays in the set until it is
// consumed or removed, and must be raised again to reappear.
type Flag string

// Handle is the view of the flag set handed to decision functions.
type Handle interface {
	// Has reports whether the flag is currently raised.
	Has(flag Flag) bool

	// Consume removes the flag and reports whether it was present.
	Consume(flag Flag) bool

	// Raise adds the flag.
	Raise(flag Flag)
}

// Set is a thread-safe set of raised flags.
type Set struct {
	mutex sync.RWMutex
	flags map[Flag]struct{}
}

var _ Handle = (*Set)(nil)

// NewSet returns a set pre-populated with the given flags.
func NewSet(initial ...Flag) *Set {
	s := &Set{
		flags: make(map[Flag]struct{}, len(initial)),
	}

	for _, f := range initial {
		s.flags[f] = struct{}{}
	}

	return s
}

// Raise inserts the flag. Raising a flag that is already present is a no-op.
func (s *Set) Raise(flag Flag) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.flags[flag] = struct{}{}
}

// Has reports whether the flag is present.
func (s *Set) Has(flag Flag) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.flags[flag]

	return ok
}

// Consume is an atomic test-and-clear.
func (s *Set) Consume(flag Flag) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.flags[flag]; !ok {
		return false
	}

	delete(s.flags, flag)

	return true
}

// ConsumeAny clears the first present flag, in argument order, and returns it.
func (s *Set) ConsumeAny(candidates ...Flag) (Flag, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, f := range candidates {
		if _, ok := s.flags[f]; ok {
			delete(s.flags, f)

			return f, true
		}
	}

	return "", false
}

// Remove deletes the flag if present.
func (s *Set) Remove(flag Flag) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.flags, flag)
}

// Clear removes every flag.
func (s *Set) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.flags = make(map[Flag]struct{})
}

// Len returns the number of raised flags.
func (s *Set) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.flags)
}

// Flags returns a snapshot of the raised flags in natural sort order.
func (s *Set) Flags() []Flag {
	return Sorted(s.snapshot())
}

func (s *Set) snapshot() []Flag {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Flag, 0, len(s.flags))
	for f := range s.flags {
		out = append(out, f)
	}

	return out
}

// Sorted returns the flags in natural sort order ("retry2" before "retry10").
func Sorted(in []Flag) []Flag {
	names := make([]string, len(in))
	for i, f := range in {
		names[i] = string(f)
	}

	natsort.Sort(names)

	out := make([]Flag, len(names))
	for i, n := range names {
		out[i] = Flag(n)
	}

	return out
}
