package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fsindex/internal/daemon"
	"github.com/Aman-CERP/fsindex/internal/output"
	"github.com/Aman-CERP/fsindex/internal/term"
)

func newSearchCmd(opts *options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <word|sentence> <text>...",
		Short: "Find files containing a word or a sentence",
		Long: `Search the index for an exact word or sentence. Results are ordered by
how often the term occurs in each file, most first.

Extra arguments are joined with single spaces, so quoting a sentence is
optional.`,
		Example: `  fsindex search word milk
  fsindex search sentence "Buy milk today."
  fsindex search sentence Buy milk today.`,
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: []string{term.KindWord.String(), term.KindSentence.String()},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := term.ParseKind(args[0])
			if err != nil {
				return err
			}
			t, err := term.New(kind, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			client, err := opts.client()
			if err != nil {
				return err
			}
			paths, err := client.Search(cmd.Context(), t)
			if err != nil {
				return err
			}

			if jsonOutput {
				if paths == nil {
					paths = []string{}
				}
				return writeJSON(cmd, daemon.SearchResult{Paths: paths})
			}
			output.New(cmd.OutOrStdout()).List(paths, "No matches for "+t.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
