package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/statekeeper/cli"
	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/signals"
	"github.com/amp-labs/statekeeper/statemachine"
	"github.com/spf13/cobra"
)

var (
	errSimulatedFailure = errors.New("simulated failure")
	errUnknownStep      = errors.New("unknown script step")
)

type runOptions struct {
	workDelay time.Duration
	timeout   time.Duration
	settle    time.Duration
	workers   int
	fail      []string
	script    []string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run a machine, raising flags and toggling signals from the terminal",
		Long: `Run starts the machine declared in the configuration. Every operation is
simulated: it sleeps for --work-delay and then succeeds, unless it is listed in --fail.

Without --script the machine is driven from an interactive menu. With --script the
steps run in order, waiting for the machine to settle after each one. A step is
either a flag name or signal=true|false.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			config, err := statemachine.LoadConfig(args[0])
			if err != nil {
				return err
			}

			s, err := newSession(ctx, config, opts)
			if err != nil {
				return err
			}
			defer s.close()

			if len(opts.script) > 0 {
				return s.runScript(ctx, cmd.OutOrStdout(), opts.script)
			}

			return s.interactive(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&opts.workDelay, "work-delay", 200*time.Millisecond, "How long each simulated operation takes")
	cmd.Flags().DurationVar(&opts.timeout, "operation-timeout", 0, "Cancel operations running longer than this")
	cmd.Flags().DurationVar(&opts.settle, "settle", 10*time.Second, "How long to wait for the machine to go idle")
	cmd.Flags().IntVar(&opts.workers, "workers", 1, "Size of the operation worker pool")
	cmd.Flags().StringSliceVar(&opts.fail, "fail", nil, "Operations that fail")
	cmd.Flags().StringSliceVar(&opts.script, "script", nil, "Steps to run instead of prompting")

	return cmd
}

type session struct {
	config  *statemachine.Config
	machine *statemachine.Machine
	signals []*signals.Bool
	pool    pond.Pool
	settle  time.Duration
}

func newSession(ctx context.Context, config *statemachine.Config, opts runOptions) (*session, error) {
	engine, err := statemachine.NewRuleEngine(config)
	if err != nil {
		return nil, err
	}

	failing := make(map[string]bool, len(opts.fail))
	for _, op := range opts.fail {
		failing[op] = true
	}

	for _, rule := range config.Rules {
		if rule.Operation != "" {
			engine.Handle(rule.Operation, simulatedWork(rule.Operation, opts.workDelay, failing[rule.Operation]))
		}
	}

	sigs := engine.Signals()

	machineSignals := make([]signals.Signal, len(sigs))
	for i, sig := range sigs {
		machineSignals[i] = sig
	}

	pool := pond.NewPool(max(opts.workers, 1))

	machine, err := statemachine.New(engine.Definition(), engine,
		statemachine.WithSignals(machineSignals...),
		statemachine.WithPool(pool),
		statemachine.WithOperationTimeout(opts.timeout))
	if err != nil {
		pool.StopAndWait()

		return nil, err
	}

	s := &session{
		config:  config,
		machine: machine,
		signals: sigs,
		pool:    pool,
		settle:  opts.settle,
	}

	if err := machine.Start(ctx); err != nil {
		s.close()

		return nil, err
	}

	return s, nil
}

func simulatedWork(name string, delay time.Duration, fail bool) statemachine.WorkFunc {
	return func(ctx context.Context) error {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if fail {
			return fmt.Errorf("%w: %s", errSimulatedFailure, name)
		}

		return nil
	}
}

func (s *session) close() {
	s.machine.Halt()
	s.machine.Wait()
	s.pool.StopAndWait()
}

// waitIdle waits until everything raised so far has been processed and the machine is idle.
func (s *session) waitIdle(ctx context.Context) error {
	if err := s.machine.Flush(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.settle)
	defer cancel()

	if err := s.machine.Paused().WaitContext(ctx); err != nil {
		if fault := s.machine.Err(); fault != nil {
			return fault
		}

		return err
	}

	return nil
}

func (s *session) signal(name string) (*signals.Bool, bool) {
	for _, sig := range s.signals {
		if sig.Name() == name {
			return sig, true
		}
	}

	return nil, false
}

func (s *session) step(step string) error {
	name, value, isSignal := strings.Cut(step, "=")
	if !isSignal {
		flag := flags.Flag(step)
		if !s.machine.Definition().HasFlag(flag) {
			return fmt.Errorf("%w: no flag %q", errUnknownStep, step)
		}

		s.machine.Raise(flag)

		return nil
	}

	sig, ok := s.signal(name)
	if !ok {
		return fmt.Errorf("%w: no signal %q", errUnknownStep, name)
	}

	on, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", errUnknownStep, step, err)
	}

	sig.Set(on)

	return nil
}

func (s *session) runScript(ctx context.Context, out io.Writer, script []string) error {
	if err := s.waitIdle(ctx); err != nil {
		return err
	}

	for _, step := range script {
		if err := s.step(step); err != nil {
			return err
		}

		if err := s.waitIdle(ctx); err != nil {
			return fmt.Errorf("after %q: %w", step, err)
		}

		fmt.Fprintln(out, cli.Muted(step)+" "+cli.StatusLine(s.machine.Describe()))
	}

	_, err := fmt.Fprintln(out, s.machine.Describe())

	return err
}

func (s *session) interactive(ctx context.Context, out io.Writer) error {
	fmt.Fprint(out, cli.Banner(s.config.Name,
		cli.Muted("initial:")+" "+s.config.InitialState,
		fmt.Sprintf("%s %d  %s %d  %s %d",
			cli.Muted("states:"), len(s.config.States),
			cli.Muted("flags:"), len(s.config.Flags),
			cli.Muted("signals:"), len(s.config.Signals))))

	for ctx.Err() == nil {
		if err := s.waitIdle(ctx); err != nil {
			if s.machine.Err() != nil || ctx.Err() != nil {
				return err
			}

			fmt.Fprintln(out, cli.WarnMsg("still working: %v", err))
		}

		fmt.Fprintln(out, cli.StatusLine(s.machine.Describe()))

		action, err := cli.SelectAction("Next", cli.Actions(s.machine.Definition().Flags, s.signals))
		if errors.Is(err, cli.ErrQuit) {
			return nil
		} else if err != nil {
			return err
		}

		switch action.Kind {
		case cli.ActionRaise:
			s.machine.Raise(flags.Flag(action.Name))
		case cli.ActionToggle:
			if sig, ok := s.signal(action.Name); ok {
				sig.Set(!sig.Value())
			}
		case cli.ActionDescribe:
			fmt.Fprintln(out, cli.InfoMsg("%s", s.machine.Describe()))
		case cli.ActionQuit:
			halt, err := cli.PromptConfirm("Halt " + s.config.Name)
			if err != nil || halt {
				return nil
			}
		}
	}

	return nil
}
