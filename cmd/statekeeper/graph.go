package main

import (
	"fmt"
	"os"

	"github.com/amp-labs/statekeeper/statemachine"
	"github.com/amp-labs/statekeeper/statemachine/visualizer"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	var (
		opts      = visualizer.DefaultOptions()
		noFlags   bool
		noOps     bool
		raw       bool
		highlight []string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "graph <config.yaml>",
		Short: "Render a machine configuration as a Mermaid state diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := statemachine.LoadConfig(args[0])
			if err != nil {
				return err
			}

			diagram, err := visualizer.GenerateMermaidWithOptions(config, opts.
				WithShowFlags(!noFlags).
				WithShowOperations(!noOps).
				WithFenced(!raw).
				WithHighlightPath(highlight))
			if err != nil {
				return err
			}

			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), diagram)

				return err
			}

			return os.WriteFile(output, []byte(diagram), 0o600)
		},
	}

	cmd.Flags().BoolVar(&noFlags, "no-flags", false, "Omit flag labels")
	cmd.Flags().BoolVar(&noOps, "no-operations", false, "Omit operation labels")
	cmd.Flags().BoolVar(&raw, "raw", false, "Do not wrap the diagram in a mermaid code fence")
	cmd.Flags().StringSliceVar(&highlight, "highlight", nil, "States to highlight, in path order")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}
