package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fsindex/internal/output"
)

func newCancelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <dir>",
		Short: "Cancel indexing of a directory",
		Long: `Cancel the walk indexing a directory. If no walk is running, the next
registration of the directory is cancelled instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			res, err := client.Cancel(cmd.Context(), paths[0])
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Success(res.Message)
			return nil
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every registration and empty the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if !yes {
				out.Warning("This drops all registrations. Re-run with --yes to confirm.")
				return nil
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.Reset(cmd.Context()); err != nil {
				return err
			}
			out.Success("Daemon state reset")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}
