package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/switchboard/internal/harness"
)

// ValidationResult is the output of the validate command.
type ValidationResult struct {
	Valid  bool                  `json:"valid"`
	Name   string                `json:"name,omitempty"`
	Steps  int                   `json:"steps,omitempty"`
	Errors []harness.SchemaError `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	return fmt.Sprintf("✓ scenario %s is valid (%d steps)", r.Name, r.Steps)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Check a scenario without running it",
		Long: `Check a scenario file against the CUE scenario schema, then decode it
strictly and check that every inbox alias is hooked up before use.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		code, exit := ErrCodeGeneric, ExitCommandError
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		_ = f.Error(code, fmt.Sprintf("cannot read scenario: %v", err), nil)
		return WrapExitError(exit, "cannot read scenario", err)
	}

	if errs := harness.ValidateSchema(data); len(errs) > 0 {
		return outputSchemaErrors(f, errs)
	}

	scenario, err := harness.ParseScenario(data)
	if err != nil {
		_ = f.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid scenario", err)
	}

	return f.Success(ValidationResult{
		Valid: true,
		Name:  scenario.Name,
		Steps: len(scenario.Steps),
	})
}

func outputSchemaErrors(f *OutputFormatter, errs []harness.SchemaError) error {
	if f.Format == "json" {
		_ = f.Error(ErrCodeSchema, "scenario does not match schema", ValidationResult{Errors: errs})
	} else {
		fmt.Fprintf(f.Writer, "✗ %d schema error(s):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(f.Writer, "  [%s] %s\n", ErrCodeSchema, e.Error())
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d schema error(s)", len(errs)))
}
