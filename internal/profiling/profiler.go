// Package profiling captures pprof profiles of a running daemon.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
)

// Profile file names written into the session directory.
const (
	CPUFile       = "cpu.prof"
	HeapFile      = "heap.prof"
	GoroutineFile = "goroutine.prof"
)

// Session records a CPU profile from Start until Stop, then snapshots the
// heap and goroutines.
type Session struct {
	dir     string
	cpuFile *os.File
}

// Start creates dir if needed and begins CPU profiling into it.
// Only one session can run per process.
func Start(dir string) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, CPUFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	return &Session{dir: dir, cpuFile: f}, nil
}

// Dir returns the directory profiles are written to.
func (s *Session) Dir() string { return s.dir }

// Stop flushes the CPU profile and writes the heap and goroutine
// snapshots. It is safe to call more than once.
func (s *Session) Stop() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil

	runtime.GC()
	return errors.Join(err,
		s.writeLookup("heap", HeapFile, 0),
		s.writeLookup("goroutine", GoroutineFile, 1),
	)
}

func (s *Session) writeLookup(name, file string, debug int) error {
	f, err := os.Create(filepath.Join(s.dir, file))
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := pprof.Lookup(name).WriteTo(f, debug); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}
