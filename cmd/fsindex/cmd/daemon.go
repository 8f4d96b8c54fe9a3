package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fsindex/internal/daemon"
	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/internal/output"
	"github.com/Aman-CERP/fsindex/internal/profiling"
)

func newDaemonCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background indexing daemon",
		Long: `The daemon owns the index and the file watches. Registrations made
through the CLI live for as long as the daemon runs.`,
		Example: `  fsindex daemon start      # Start in the background
  fsindex daemon start -f   # Run in the foreground
  fsindex daemon status     # Show registrations and index sizes
  fsindex daemon stop       # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd(opts))
	cmd.AddCommand(newDaemonStopCmd(opts))
	cmd.AddCommand(newDaemonStatusCmd(opts))

	return cmd
}

func newDaemonStartCmd(opts *options) *cobra.Command {
	var (
		foreground bool
		profileDir string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if foreground {
				return runDaemonForeground(cmd, opts, profileDir)
			}
			return runDaemonBackground(cmd, opts, profileDir)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground")
	cmd.Flags().StringVar(&profileDir, "profile", "", "Write pprof profiles to this directory on exit")
	return cmd
}

func newDaemonStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd, opts)
		},
	}
}

func newDaemonStatusCmd(opts *options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd, opts, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonForeground(cmd *cobra.Command, opts *options, profileDir string) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	dcfg := daemon.FromConfig(cfg)

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logCfg.WriteToStderr = true
	if opts.debug {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	d, err := daemon.NewDaemon(dcfg, daemon.WithEngineConfig(cfg), daemon.WithLogger(logger))
	if err != nil {
		return err
	}

	out.Status("", "Starting daemon in foreground...")
	out.Field("Socket", dcfg.SocketPath)
	out.Field("Logs", logCfg.FilePath)
	if dcfg.MetricsAddr != "" {
		out.Field("Metrics", "http://"+dcfg.MetricsAddr+"/metrics")
	}
	if profileDir != "" {
		session, err := profiling.Start(profileDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := session.Stop(); err != nil {
				logger.Warn("failed to write profiles", slog.String("error", err.Error()))
				return
			}
			logger.Info("profiles written", slog.String("dir", session.Dir()))
		}()
		out.Field("Profiles", profileDir)
	}
	out.Status("", "Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", fserrors.LogAttrs(err)...)
		return err
	}
	return nil
}

func runDaemonBackground(cmd *cobra.Command, opts *options, profileDir string) error {
	out := output.New(cmd.OutOrStdout())
	dcfg, err := opts.daemonConfig()
	if err != nil {
		return err
	}
	client := daemon.NewClient(dcfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	args := []string{"daemon", "start", "--foreground"}
	if opts.socketPath != "" {
		args = append(args, "--socket", opts.socketPath)
	}
	if opts.debug {
		args = append(args, "--debug")
	}
	if profileDir != "" {
		abs, err := filepath.Abs(profileDir)
		if err != nil {
			return fmt.Errorf("failed to resolve profile directory: %w", err)
		}
		args = append(args, "--profile", abs)
	}
	bg := exec.Command(execPath, args...)
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bg.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice an early exit.
	exited := make(chan error, 1)
	go func() { exited <- bg.Wait() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	err = fserrors.Retry(ctx, fserrors.DefaultRetryConfig(), func() error {
		select {
		case werr := <-exited:
			return fserrors.InternalError("daemon process exited during startup", werr).
				WithSuggestion("Run 'fsindex daemon start -f' to see the error")
		default:
		}
		return client.Ping(ctx)
	})
	if err != nil {
		return err
	}

	out.Successf("Daemon started (pid: %d)", bg.Process.Pid)
	return nil
}

func runDaemonStop(cmd *cobra.Command, opts *options) error {
	out := output.New(cmd.OutOrStdout())
	dcfg, err := opts.daemonConfig()
	if err != nil {
		return err
	}

	pidFile := daemon.NewPIDFile(dcfg.PIDPath)
	pid, _ := pidFile.Read()

	client := daemon.NewClient(dcfg)
	if client.IsRunning() {
		if err := client.Shutdown(cmd.Context()); err != nil {
			slog.Debug("shutdown request failed", slog.String("error", err.Error()))
		}
	} else if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	for range 50 {
		if !client.IsRunning() && !pidFile.IsRunning() {
			out.Successf("Daemon stopped (was pid: %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// The socket did not go away; fall back to signals.
	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	for range 30 {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Successf("Daemon stopped (was pid: %d)", pid)
			return nil
		}
	}

	out.Warning("Daemon not responding, sending SIGKILL")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	out.Success("Daemon killed")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, opts *options, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	dcfg, err := opts.daemonConfig()
	if err != nil {
		return err
	}
	client := daemon.NewClient(dcfg)

	if !client.IsRunning() {
		if jsonOutput {
			return writeJSON(cmd, daemon.StatusResult{Running: false})
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'fsindex daemon start' to start it")
		return nil
	}

	status, err := client.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if jsonOutput {
		return writeJSON(cmd, status)
	}

	eng := status.Engine
	out.Header("Daemon is running")
	out.Field("PID", status.PID)
	out.Field("Uptime", status.Uptime)
	out.Field("Socket", dcfg.SocketPath)
	out.Field("Known files", eng.KnownFiles)
	out.Field("Watched dirs", eng.WatchedDirs)
	out.Field("Pending purge", eng.PendingRemoval)
	for _, idx := range eng.Indices {
		out.Field(idx.Name+" terms", idx.Terms)
	}
	out.Field("Cache entries", fmt.Sprintf("%d in memory, %d on disk", eng.Storage.Memory, eng.Storage.Disk))
	out.Field("Searches", eng.Queries.Total)

	out.Newline()
	out.Header("Roots")
	out.List(eng.Roots, "none")
	if len(eng.FilteredOut) > 0 {
		out.Newline()
		out.Header("Excluded")
		out.List(eng.FilteredOut, "none")
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
