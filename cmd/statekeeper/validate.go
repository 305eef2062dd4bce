package main

import (
	"errors"
	"fmt"

	"github.com/amp-labs/statekeeper/cli"
	"github.com/amp-labs/statekeeper/statemachine"
	"github.com/amp-labs/statekeeper/statemachine/validator"
	"github.com/spf13/cobra"
)

var errInvalidConfigs = errors.New("one or more configurations are invalid")

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <config.yaml>...",
		Short: "Check machine configurations for errors and likely mistakes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := false

			for _, path := range args {
				result, err := validateOne(path, strict)
				if err != nil {
					fmt.Fprintln(out, cli.ErrorMsg("%s: %v", path, err))

					failed = true

					continue
				}

				for _, e := range result.Errors {
					fmt.Fprintln(out, cli.ErrorMsg("%s: %s: %s", e.Location, e.Code, e.Message))
				}

				for _, w := range result.Warnings {
					fmt.Fprintln(out, cli.WarnMsg("%s: %s: %s", w.Location, w.Code, w.Message))
				}

				if !result.Valid {
					failed = true

					continue
				}

				fmt.Fprintln(out, cli.SuccessMsg("%s is valid", path))
			}

			if failed {
				return errInvalidConfigs
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func validateOne(path string, strict bool) (validator.ValidationResult, error) {
	if !strict {
		return validator.ValidateFile(path)
	}

	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return validator.ValidationResult{}, err
	}

	result := validator.ValidateStrict(config)
	for i := range result.Errors {
		result.Errors[i].Location.File = path
	}

	return result, nil
}
