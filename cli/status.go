package cli

import (
	"fmt"
	"strings"

	"github.com/amp-labs/statekeeper/statemachine"
)

// StatusLine renders a one-line summary of a machine snapshot.
func StatusLine(s statemachine.Snapshot) string {
	var b strings.Builder

	b.WriteString(Accent("●") + " " + Bold(string(s.State)))

	switch {
	case s.Fault != nil:
		b.WriteString(" " + ErrorStyle.Render("faulted: "+s.Fault.Error()))
	case s.Halted:
		b.WriteString(" " + WarnStyle.Render("halted"))
	case s.Paused:
		b.WriteString(" " + Muted("idle"))
	default:
		b.WriteString(" " + WarnStyle.Render("working"))
	}

	if len(s.Flags) > 0 {
		names := make([]string, len(s.Flags))
		for i, f := range s.Flags {
			names[i] = string(f)
		}

		b.WriteString("  " + Muted("flags:") + " " + strings.Join(names, ", "))
	}

	if len(s.Pending) > 0 {
		b.WriteString("  " + Muted("pending:") + " " + strings.Join(s.Pending, ", "))
	}

	if s.Last.Seq > 0 {
		last := fmt.Sprintf("%s %s→%s", s.Last.Operation, s.Last.From, s.Last.To)
		if s.Last.Err != nil {
			last = ErrorStyle.Render(last + " failed")
		}

		b.WriteString("  " + Muted("last:") + " " + last)
	}

	return b.String()
}
