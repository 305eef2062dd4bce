// Command statekeeper validates, draws and interactively runs rule-driven
// state machines declared in YAML.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/amp-labs/statekeeper/logger"
	"github.com/amp-labs/statekeeper/telemetry"
	"github.com/spf13/cobra"
)

const (
	envLogLevel = "STATEKEEPER_LOG_LEVEL"
	serviceName = "statekeeper"
)

type rootFlags struct {
	logLevel     string
	jsonLogs     bool
	otlpEndpoint string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootFlags

	root := &cobra.Command{
		Use:           "statekeeper",
		Short:         "Validate, draw and run flag-driven state machines",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
				return fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
			}

			logger.ConfigureLoggingWithOptions(logger.Options{
				Subsystem:   serviceName,
				JSON:        opts.jsonLogs,
				MinLevel:    level,
				LegacyLevel: slog.LevelDebug,
				Output:      cmd.ErrOrStderr(),
			})

			config, err := telemetry.LoadConfigFromEnv(serviceName)
			if err != nil {
				return err
			}

			if opts.otlpEndpoint != "" {
				config.Endpoint = opts.otlpEndpoint
				config.Enabled = true
			}

			return telemetry.Initialize(cmd.Context(), config)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return telemetry.Shutdown(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr(envLogLevel, "warn"),
		"Minimum log level (debug, info, warn, error); defaults to $"+envLogLevel)
	root.PersistentFlags().BoolVar(&opts.jsonLogs, "json-logs", false, "Log as JSON")
	root.PersistentFlags().StringVar(&opts.otlpEndpoint, "otlp-endpoint", "",
		"OTLP/HTTP traces endpoint; defaults to $"+telemetry.EnvEndpoint)

	root.AddCommand(newValidateCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newRunCmd())

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
