package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrPIDFileNotFound means no daemon has recorded itself at the path.
var ErrPIDFileNotFound = errors.New("PID file not found")

// PIDFile records which process owns the daemon socket.
type PIDFile struct {
	path string
}

// NewPIDFile returns a PIDFile at path. Nothing is touched on disk.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Write stores the current PID. The file is replaced by rename so a
// concurrent Read never sees a partial number.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Read returns the recorded PID, or ErrPIDFileNotFound.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return 0, ErrPIDFileNotFound
	case err != nil:
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", p.path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %d", p.path, pid)
	}
	return pid, nil
}

// Remove deletes the file; a missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the recorded process is alive.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	return err == nil && alive(pid)
}

// Signal delivers sig to the recorded process.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("failed to signal daemon (pid %d): %w", pid, err)
	}
	return nil
}

// Claim records the current process unless another live daemon already
// owns the file. A file left by a dead process is taken over.
func (p *PIDFile) Claim() error {
	pid, err := p.Read()
	if err == nil && pid != os.Getpid() && alive(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}
	return p.Write()
}

// alive sends signal 0 to pid. EPERM means the process exists under
// another user.
func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
