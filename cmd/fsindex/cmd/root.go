// Package cmd provides the CLI commands for fsindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fsindex/internal/config"
	"github.com/Aman-CERP/fsindex/internal/daemon"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/pkg/version"
)

// options carries the persistent flags shared by every subcommand.
type options struct {
	debug      bool
	socketPath string

	loggingCleanup func()
}

// NewRootCmd creates the root command for the fsindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "fsindex",
		Short: "Real-time word and sentence index over local files",
		Long: `fsindex keeps an inverted index of the words and sentences in the files
and directories you register, and updates it as those files change.

A background daemon holds the index. Start it once, then register paths
and search from any shell:

  fsindex daemon start
  fsindex add ~/notes
  fsindex search word milk
  fsindex search sentence "Buy milk today."`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.startLogging()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			opts.stopLogging()
		},
	}
	cmd.SetVersionTemplate("fsindex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.fsindex/logs/")
	cmd.PersistentFlags().StringVar(&opts.socketPath, "socket", "", "Daemon socket path (overrides config)")

	cmd.AddCommand(newDaemonCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newCancelCmd(opts))
	cmd.AddCommand(newResetCmd(opts))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) startLogging() error {
	if !o.debug {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func (o *options) stopLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// loadConfig loads the layered configuration for the working directory.
func (o *options) loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		dir = ""
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if o.socketPath != "" {
		cfg.Daemon.SocketPath = o.socketPath
	}
	return cfg, nil
}

// daemonConfig derives the daemon settings, honouring --socket.
func (o *options) daemonConfig() (daemon.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return daemon.Config{}, err
	}
	return daemon.FromConfig(cfg), nil
}

// client returns a client for the configured daemon.
func (o *options) client() (*daemon.Client, error) {
	cfg, err := o.daemonConfig()
	if err != nil {
		return nil, err
	}
	return daemon.NewClient(cfg), nil
}
