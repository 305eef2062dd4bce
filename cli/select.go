package cli

import (
	"os"
	"strings"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/signals"
	"github.com/manifoldco/promptui"
)

// ActionKind says what a menu entry does to the running machine.
type ActionKind int

const (
	ActionRaise ActionKind = iota
	ActionToggle
	ActionDescribe
	ActionQuit
)

// Action is one entry of the interactive menu.
type Action struct {
	Kind  ActionKind
	Name  string
	Label string
}

// Actions lists a raise entry per flag and a toggle entry per signal, followed
// by describe and quit.
func Actions(universe []flags.Flag, sigs []*signals.Bool) []Action {
	out := make([]Action, 0, len(universe)+len(sigs)+2)

	for _, f := range flags.Sorted(universe) {
		out = append(out, Action{Kind: ActionRaise, Name: string(f), Label: "raise " + string(f)})
	}

	for _, s := range sigs {
		next := "on"
		if s.Value() {
			next = "off"
		}

		out = append(out, Action{Kind: ActionToggle, Name: s.Name(), Label: "turn " + s.Name() + " " + next})
	}

	return append(out,
		Action{Kind: ActionDescribe, Label: "describe"},
		Action{Kind: ActionQuit, Label: "quit"},
	)
}

// SelectAction asks the user to pick one of actions. Typing filters by prefix.
func SelectAction(label string, actions []Action) (Action, error) {
	labels := make([]string, len(actions))
	for i, a := range actions {
		labels[i] = a.Label
	}

	sel := &promptui.Select{
		Label: label,
		Items: labels,
		Size:  len(labels),
		Searcher: func(input string, index int) bool {
			return strings.Contains(labels[index], strings.TrimSpace(input))
		},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}

	idx, _, err := sel.Run()
	if err != nil {
		return Action{}, quitOr(err)
	}

	return actions[idx], nil
}
