// Package config loads fsindex configuration from layered YAML files and
// FSINDEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
)

// ProjectConfigFile is the per-directory config file name.
const ProjectConfigFile = ".fsindex.yaml"

// Config represents the complete fsindex configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Indexing IndexingConfig `yaml:"indexing" json:"indexing"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Cleanup  CleanupConfig  `yaml:"cleanup" json:"cleanup"`
	Watcher  WatcherConfig  `yaml:"watcher" json:"watcher"`
	Daemon   DaemonConfig   `yaml:"daemon" json:"daemon"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// IndexingConfig controls which files get indexed and how.
type IndexingConfig struct {
	// MaxFileSize is the largest file, in bytes, that registration accepts.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`

	// SupportedExtensions lists accepted file extensions without the dot.
	SupportedExtensions []string `yaml:"supported_extensions" json:"supported_extensions"`

	// MaxDepth bounds the recursive walk below a registered directory.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// Parallelism is the worker-pool size for file indexing.
	Parallelism int `yaml:"parallelism" json:"parallelism"`

	// ExcludePatterns are doublestar globs skipped by the walk.
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`

	WordIndexEnabled     bool `yaml:"word_index_enabled" json:"word_index_enabled"`
	SentenceIndexEnabled bool `yaml:"sentence_index_enabled" json:"sentence_index_enabled"`
}

// StorageConfig configures the last-indexed content cache.
type StorageConfig struct {
	// Dir holds overflow contents keyed by file id. Removed on shutdown.
	Dir string `yaml:"dir" json:"dir"`

	// MemoryEntries is the capacity of the in-memory tier.
	MemoryEntries int `yaml:"memory_entries" json:"memory_entries"`

	// FilesystemThreshold is the content length at or above which content is
	// written to Dir instead of memory.
	FilesystemThreshold int `yaml:"filesystem_threshold" json:"filesystem_threshold"`

	// CompressionThreshold is the content length at or above which content is
	// gzip-compressed.
	CompressionThreshold int `yaml:"compression_threshold" json:"compression_threshold"`
}

// SearchConfig configures the search pipeline.
type SearchConfig struct {
	// MaxResults caps the number of paths a search returns.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// CleanupConfig configures the sweep that purges cancelled file ids.
type CleanupConfig struct {
	Interval string `yaml:"interval" json:"interval"`
}

// WatcherConfig configures change-event buffering.
type WatcherConfig struct {
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	// MetricsAddr serves Prometheus metrics when non-empty (e.g. "127.0.0.1:9464").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	Timeout     string `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures the daemon log.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	home := homeDir()
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			MaxFileSize: 10 * 1024 * 1024,
			SupportedExtensions: []string{
				"txt", "md", "log", "csv", "json", "yaml", "yml", "xml", "html",
				"go", "kt", "java", "py", "js", "ts",
			},
			MaxDepth:             64,
			Parallelism:          runtime.NumCPU(),
			ExcludePatterns:      []string{"**/.git/**", "**/node_modules/**"},
			WordIndexEnabled:     true,
			SentenceIndexEnabled: true,
		},
		Storage: StorageConfig{
			Dir:                  filepath.Join(os.TempDir(), "fsindex-storage"),
			MemoryEntries:        4096,
			FilesystemThreshold:  64 * 1024,
			CompressionThreshold: 4 * 1024,
		},
		Search:  SearchConfig{MaxResults: 100},
		Cleanup: CleanupConfig{Interval: "10s"},
		Watcher: WatcherConfig{EventBuffer: 1024},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(home, ".fsindex", "daemon.sock"),
			PIDPath:    filepath.Join(home, ".fsindex", "daemon.pid"),
			Timeout:    "30s",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}

// GetUserConfigPath returns the user-level config path, honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fsindex", "config.yaml")
	}
	return filepath.Join(homeDir(), ".config", "fsindex", "config.yaml")
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/fsindex/config.yaml)
//  3. Project config (.fsindex.yaml in dir)
//  4. Environment variables (FSINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		for _, name := range []string{ProjectConfigFile, ".fsindex.yml"} {
			path := filepath.Join(dir, name)
			if !fileExists(path) {
				continue
			}
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path on top of the current values. yaml.v3 only touches
// keys present in the document, so absent keys keep their earlier layer.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FSINDEX_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Indexing.MaxFileSize = n
		}
	}
	if v := os.Getenv("FSINDEX_EXTENSIONS"); v != "" {
		c.Indexing.SupportedExtensions = splitList(v)
	}
	if v := os.Getenv("FSINDEX_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.MaxDepth = n
		}
	}
	if v := os.Getenv("FSINDEX_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Parallelism = n
		}
	}
	if v := os.Getenv("FSINDEX_WORD_INDEX"); v != "" {
		c.Indexing.WordIndexEnabled = parseBool(v)
	}
	if v := os.Getenv("FSINDEX_SENTENCE_INDEX"); v != "" {
		c.Indexing.SentenceIndexEnabled = parseBool(v)
	}
	if v := os.Getenv("FSINDEX_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("FSINDEX_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("FSINDEX_CLEANUP_INTERVAL"); v != "" {
		c.Cleanup.Interval = v
	}
	if v := os.Getenv("FSINDEX_DAEMON_SOCKET"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("FSINDEX_DAEMON_PID"); v != "" {
		c.Daemon.PIDPath = v
	}
	if v := os.Getenv("FSINDEX_METRICS_ADDR"); v != "" {
		c.Daemon.MetricsAddr = v
	}
	if v := os.Getenv("FSINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks value ranges. Errors carry ERR_102_CONFIG_INVALID.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fserrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Indexing.MaxFileSize <= 0 {
		return invalid("indexing.max_file_size must be positive, got %d", c.Indexing.MaxFileSize)
	}
	if len(c.Indexing.SupportedExtensions) == 0 {
		return invalid("indexing.supported_extensions must not be empty")
	}
	if c.Indexing.MaxDepth <= 0 {
		return invalid("indexing.max_depth must be positive, got %d", c.Indexing.MaxDepth)
	}
	if c.Indexing.Parallelism <= 0 {
		return invalid("indexing.parallelism must be positive, got %d", c.Indexing.Parallelism)
	}
	if !c.Indexing.WordIndexEnabled && !c.Indexing.SentenceIndexEnabled {
		return invalid("at least one of word_index_enabled and sentence_index_enabled must be set")
	}
	for _, pattern := range c.Indexing.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return invalid("indexing.exclude_patterns: invalid glob %q", pattern)
		}
	}
	if c.Storage.Dir == "" {
		return invalid("storage.dir must not be empty")
	}
	if c.Storage.MemoryEntries <= 0 {
		return invalid("storage.memory_entries must be positive, got %d", c.Storage.MemoryEntries)
	}
	if c.Storage.FilesystemThreshold < 0 || c.Storage.CompressionThreshold < 0 {
		return invalid("storage thresholds must be non-negative")
	}
	if c.Search.MaxResults <= 0 {
		return invalid("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Watcher.EventBuffer <= 0 {
		return invalid("watcher.event_buffer must be positive, got %d", c.Watcher.EventBuffer)
	}
	if _, err := time.ParseDuration(c.Cleanup.Interval); err != nil {
		return invalid("cleanup.interval: %v", err)
	}
	if _, err := time.ParseDuration(c.Daemon.Timeout); err != nil {
		return invalid("daemon.timeout: %v", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// CleanupInterval returns the parsed sweep interval (10s if unparsable).
func (c *Config) CleanupInterval() time.Duration {
	d, err := time.ParseDuration(c.Cleanup.Interval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// DaemonTimeout returns the parsed client/daemon timeout (30s if unparsable).
func (c *Config) DaemonTimeout() time.Duration {
	d, err := time.ParseDuration(c.Daemon.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
