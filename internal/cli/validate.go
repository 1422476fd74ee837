package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Nodes  int               `json:"nodes"`
	Issues []narrative.Issue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph>",
		Short: "Check a narrative graph without playing it",
		Long: `Load a JSON or YAML narrative graph and check every node reference.

Dangling candidates, missing graph roots and missing layer primaries are
errors. Unknown algorithm names and unresolved constraints are warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	g, err := narrative.Load(path)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "load graph", err), nil)
	}

	issues := narrative.Validate(g)
	result := ValidationResult{Valid: !narrative.HasErrors(issues), Nodes: g.Len(), Issues: issues}

	if f.JSON() {
		if !result.Valid {
			return f.Fail(validationFailed(issues), result)
		}
		return f.Success(result)
	}

	for _, issue := range issues {
		fmt.Fprintln(f.Writer, issue.String())
	}
	if !result.Valid {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		return validationFailed(issues)
	}
	fmt.Fprintf(f.Writer, "✓ %d node(s) valid\n", result.Nodes)
	return nil
}

func validationFailed(issues []narrative.Issue) *ExitError {
	n := 0
	for _, i := range issues {
		if i.Severity == narrative.SeverityError {
			n++
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", n))
}
