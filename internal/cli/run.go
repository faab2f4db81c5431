package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/switchboard"
	"github.com/roach88/switchboard/internal/config"
	"github.com/roach88/switchboard/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	StoreDir string
	Memory   bool
}

// RunReport is the output of the run command.
type RunReport struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Trace  []harness.TraceEvent `json:"trace"`
	Errors []string             `json:"errors,omitempty"`
}

// String renders the report for text output.
func (r RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", r.Name)
	for _, ev := range r.Trace {
		fmt.Fprintf(&b, "  [%d] %s <- %s", ev.Seq, ev.Inbox, ev.Type)
		if len(ev.Fields) > 0 {
			fields, _ := json.Marshal(ev.Fields)
			fmt.Fprintf(&b, " %s", fields)
		}
		if ev.Reply {
			b.WriteString(" (reply)")
		}
		b.WriteByte('\n')
	}
	if r.Pass {
		b.WriteString("PASS")
		return b.String()
	}
	b.WriteString("FAIL")
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n  - %s", strings.TrimSpace(e))
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against a live bus",
		Long: `Open a bus, execute the scenario's steps, print the delivery trace and
evaluate the scenario's assertions.

Exit codes:
  0 - scenario passed
  1 - a wait timed out or an assertion failed
  2 - command error (missing file, invalid scenario or config)

Examples:
  switchboard run ./scenarios/reply.yaml
  switchboard run ./scenarios/reply.yaml --memory --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StoreDir, "store-dir", "", "directory for the session log database")
	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "keep the session log in memory")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		msg := fmt.Sprintf("scenario file not found: %s", path)
		_ = f.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		code := ErrCodeScenario
		if errors.Is(err, harness.ErrSchema) {
			code = ErrCodeSchema
		}
		_ = f.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	f.VerboseLog("Loaded scenario %s (%d steps)", scenario.Name, len(scenario.Steps))

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	busOpts := []switchboard.Option{switchboard.WithLogger(f.Logger(cfg.Logging.Level))}
	if opts.StoreDir != "" {
		busOpts = append(busOpts, switchboard.WithStoreDir(opts.StoreDir))
	}
	if opts.Memory {
		busOpts = append(busOpts, switchboard.WithMemoryStore())
	}

	result, err := harness.RunConfig(ctx, cfg, scenario, busOpts...)
	if err != nil {
		_ = f.Error(ErrCodeScenarioError, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario did not run", err)
	}

	if err := f.Success(RunReport{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Trace:  result.Trace,
		Errors: result.Errors,
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}
