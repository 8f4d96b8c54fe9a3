package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fsindex/internal/daemon"
	"github.com/Aman-CERP/fsindex/internal/output"
)

func newAddCmd(opts *options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Register files or directories for indexing",
		Long: `Register files or directories with the daemon. Directories are walked
recursively and watched, so later changes are indexed automatically.`,
		Example: `  fsindex add notes.txt
  fsindex add ~/docs ~/notes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaths(cmd, opts, args, jsonOutput, (*daemon.Client).Register)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "remove <path>...",
		Aliases: []string{"rm"},
		Short:   "Stop indexing files or directories",
		Long: `Unregister files or directories. A path inside a registered directory
is excluded from it; register it again to bring it back.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaths(cmd, opts, args, jsonOutput, (*daemon.Client).Unregister)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type pathsCall func(c *daemon.Client, ctx context.Context, paths ...string) ([]daemon.PathResult, error)

func runPaths(cmd *cobra.Command, opts *options, args []string, jsonOutput bool, call pathsCall) error {
	paths, err := absPaths(args)
	if err != nil {
		return err
	}
	client, err := opts.client()
	if err != nil {
		return err
	}

	results, err := call(client, cmd.Context(), paths...)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd, results)
	}

	out := output.New(cmd.OutOrStdout())
	for _, r := range results {
		out.Outcome(r.Success, r.Message)
	}
	return nil
}

// absPaths resolves args against the working directory; the daemon runs
// elsewhere.
func absPaths(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", a, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
