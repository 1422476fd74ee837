package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/NarrativeEngine/internal/decision"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
	"github.com/AaronLay10/NarrativeEngine/internal/sequencer"
	"github.com/AaronLay10/NarrativeEngine/internal/storage/sqlite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Root    string
	Seed    int64
	DB      string
	Timeout time.Duration
	Set     []string
}

// RunResult is the JSON form of a finished headless traversal.
type RunResult struct {
	RunID     string         `json:"run_id,omitempty"`
	Seed      int64          `json:"seed"`
	Completed bool           `json:"completed"`
	Entries   []record.Entry `json:"entries"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Play a narrative graph headless and print its sequence log",
		Long: `Play a narrative graph from its root with the silent and clip media
controllers, then print every completed node in completion order.

A fixed --seed makes random decision points reproducible.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "", "start node (defaults to the graph root)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database to append the sequence log to")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "cancel the traversal after this long (0 disables)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "set a variable before playing (name=value, repeatable)")

	return cmd
}

func runRun(ctx context.Context, rootOpts *RootOptions, opts *RunOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if ctx == nil {
		ctx = context.Background()
	}

	g, err := narrative.Load(path)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "load graph", err), nil)
	}
	issues := narrative.Validate(g)
	for _, issue := range issues {
		slog.Debug("graph issue", "severity", issue.Severity, "node", issue.NodeID, "msg", issue.Message)
	}
	if narrative.HasErrors(issues) {
		return f.Fail(validationFailed(issues), ValidationResult{Nodes: g.Len(), Issues: issues})
	}

	root := opts.Root
	if root == "" {
		root = g.Root
	}

	seed := opts.Seed
	if seed == 0 {
		if seed, err = decision.NewSeed(); err != nil {
			return f.Fail(WrapExitError(ExitCommandError, "seed", err), nil)
		}
	}

	rec := record.New()
	if opts.DB != "" {
		store, err := sqlite.Open(opts.DB)
		if err != nil {
			return f.Fail(WrapExitError(ExitCommandError, "open database", err), nil)
		}
		defer store.Close()
		rec.AddSink(store)
	}

	rt, err := sequencer.New(sequencer.Options{
		Graph:  g,
		Record: rec,
		Rand:   decision.NewRand(seed),
	})
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "build runtime", err), nil)
	}
	defer rt.Close()

	for _, kv := range opts.Set {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return f.Fail(NewExitError(ExitCommandError, fmt.Sprintf("invalid --set %q: want name=value", kv)), nil)
		}
		if err := rt.Vars().Set(name, value); err != nil {
			return f.Fail(WrapExitError(ExitCommandError, "set variable", err), nil)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	slog.Debug("playing", "graph", path, "root", root, "seed", seed)
	out, err := rt.Play(ctx, root)
	entries := out.Entries
	if errors.Is(err, sequencer.ErrUnknownNode) {
		return f.Fail(WrapExitError(ExitCommandError, "start traversal", err), nil)
	}

	result := RunResult{RunID: out.RunID, Seed: seed, Completed: err == nil, Entries: entries}
	if result.Entries == nil {
		result.Entries = []record.Entry{}
	}

	if f.JSON() {
		if err != nil {
			return f.Fail(WrapExitError(ExitFailure, "traversal cancelled", err), result)
		}
		return f.Success(result)
	}

	if werr := record.Write(f.Writer, entries, record.FormatText); werr != nil {
		return werr
	}
	if err != nil {
		return f.Fail(WrapExitError(ExitFailure, "traversal cancelled", err), nil)
	}
	slog.Info("traversal completed", "run_id", result.RunID, "entries", len(entries), "seed", seed)
	return nil
}
