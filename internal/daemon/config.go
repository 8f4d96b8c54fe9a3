// Package daemon runs the indexing engine as a background service. CLI
// commands talk to it over a Unix socket with line-delimited JSON-RPC 2.0,
// so registrations and the index survive between invocations.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/fsindex/internal/config"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.fsindex/daemon.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: ~/.fsindex/daemon.pid
	PIDPath string

	// Timeout bounds client-daemon exchanges that carry no deadline.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is the time to wait for graceful shutdown.
	// Default: 10s
	ShutdownGracePeriod time.Duration

	// MetricsAddr serves Prometheus metrics over HTTP when non-empty.
	MetricsAddr string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}

	dir := filepath.Join(home, ".fsindex")

	return Config{
		SocketPath:          filepath.Join(dir, "daemon.sock"),
		PIDPath:             filepath.Join(dir, "daemon.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// FromConfig derives the daemon settings from the application config.
func FromConfig(cfg *config.Config) Config {
	d := DefaultConfig()
	if cfg == nil {
		return d
	}
	if cfg.Daemon.SocketPath != "" {
		d.SocketPath = cfg.Daemon.SocketPath
	}
	if cfg.Daemon.PIDPath != "" {
		d.PIDPath = cfg.Daemon.PIDPath
	}
	d.Timeout = cfg.DaemonTimeout()
	d.MetricsAddr = cfg.Daemon.MetricsAddr
	return d
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	pidDir := filepath.Dir(c.PIDPath)
	if pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}
	return nil
}
