package cli

import (
	"errors"
	"os"

	"github.com/manifoldco/promptui"
)

// ErrQuit is returned by the prompts when the user interrupts them.
var ErrQuit = errors.New("quit")

func PromptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, quitOr(err)
	}

	return true, nil
}

func quitOr(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return ErrQuit
	}

	return err
}
