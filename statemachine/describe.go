package statemachine

import (
	"fmt"
	"strings"

	"github.com/amp-labs/statekeeper/flags"
)

// Snapshot is a point-in-time view of a machine for debugging.
type Snapshot struct {
	Machine  string
	State    State
	Started  bool
	Halted   bool
	Paused   bool
	Flags    []flags.Flag
	Pending  []string
	Watchers int
	Last     Result
	Fault    error
}

// Describe returns a snapshot without waiting for the executor.
func (m *Machine) Describe() Snapshot {
	pend := m.evaluator.Pending()
	gates := make([]string, 0, len(pend))

	for _, p := range pend {
		gates = append(gates, p.String())
	}

	return Snapshot{
		Machine:  m.name,
		State:    m.State(),
		Started:  m.started.Load(),
		Halted:   m.halted.Load(),
		Paused:   m.IsPaused(),
		Flags:    m.Flags(),
		Pending:  gates,
		Watchers: m.watchers.Len(),
		Last:     m.LastResult(),
		Fault:    m.Err(),
	}
}

func (s Snapshot) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "machine %s: state=%s", s.Machine, s.State)

	switch {
	case s.Halted:
		b.WriteString(" halted")
	case !s.Started:
		b.WriteString(" not-started")
	case s.Paused:
		b.WriteString(" paused")
	default:
		b.WriteString(" working")
	}

	if len(s.Flags) > 0 {
		fmt.Fprintf(&b, " flags=%v", s.Flags)
	}

	if len(s.Pending) > 0 {
		fmt.Fprintf(&b, " pending=[%s]", strings.Join(s.Pending, " "))
	}

	if s.Watchers > 0 {
		fmt.Fprintf(&b, " watchers=%d", s.Watchers)
	}

	if s.Last.Seq > 0 {
		fmt.Fprintf(&b, " last=%s#%d", s.Last.Operation, s.Last.Seq)

		if s.Last.Err != nil {
			fmt.Fprintf(&b, "(error: %v)", s.Last.Err)
		}
	}

	if s.Fault != nil {
		fmt.Fprintf(&b, " fault=%v", s.Fault)
	}

	return b.String()
}
