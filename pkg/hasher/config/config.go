package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/spf13/viper"
)

// VerifyConfig configures verification.
type VerifyConfig struct {
	CountMissing bool `mapstructure:"count_missing"`
	Untracked    bool `mapstructure:"untracked"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Components map[string]string `mapstructure:"components"`
	MaxSize    string            `mapstructure:"max_size"`
	MaxBackups int               `mapstructure:"max_backups"`
}

// Rotation parses the rotation settings. An empty max_size selects the
// default.
func (c LoggingConfig) Rotation() (logging.Rotation, error) {
	size := c.MaxSize
	if size == "" {
		size = DefaultLogMaxSize
	}
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return logging.Rotation{}, fmt.Errorf("logging.max_size: %w", err)
	}
	return logging.Rotation{MaxSize: int64(n), MaxBackups: c.MaxBackups}, nil
}

// Config represents the application configuration.
type Config struct {
	DefaultPath string        `mapstructure:"default_path"`
	Exclude     []string      `mapstructure:"exclude"`
	ExcludeGlob []string      `mapstructure:"exclude_glob"`
	Workers     int           `mapstructure:"workers"`
	Symlinks    string        `mapstructure:"symlinks"`
	Output      string        `mapstructure:"output"`
	Quiet       bool          `mapstructure:"quiet"`
	Verbose     bool          `mapstructure:"verbose"`
	NoProgress  bool          `mapstructure:"no_progress"`
	Verify      VerifyConfig  `mapstructure:"verify"`
	History     HistoryConfig `mapstructure:"history"`
	Watch       WatchConfig   `mapstructure:"watch"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// New returns a viper instance with hasher's defaults, search paths, and
// environment binding. If configFile is set it is read instead of the
// search paths. A missing config file in the search paths is not an error.
//
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/hasher/config.yaml
//   - $HOME/.config/hasher/config.yaml
//
// Environment variables are prefixed with HASHER_ (e.g., HASHER_WORKERS,
// HASHER_HISTORY_ENABLED).
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("default_path", DefaultPath)
	v.SetDefault("exclude", []string{})
	v.SetDefault("exclude_glob", []string{})
	v.SetDefault("workers", 0)
	v.SetDefault("symlinks", DefaultSymlinks)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("quiet", false)
	v.SetDefault("verbose", false)
	v.SetDefault("no_progress", false)

	v.SetDefault("verify.count_missing", false)
	v.SetDefault("verify.untracked", false)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means DefaultHistoryPath
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("watch.debounce", DefaultDebounce)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "") // Empty means DefaultLogPath
	v.SetDefault("logging.components", map[string]string{})
	v.SetDefault("logging.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.max_backups", DefaultLogMaxBackups)
}

// Load unmarshals v into a Config, expands paths, and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath()
	}
	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path == "" {
		cfg.Logging.Path = DefaultLogPath()
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that viper cannot type-check.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	switch strings.ToLower(c.Symlinks) {
	case "error", "skip":
	default:
		return fmt.Errorf("symlinks must be error or skip, got %q", c.Symlinks)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must be >= 0, got %d", c.History.RetentionDays)
	}
	if _, err := c.Logging.Rotation(); err != nil {
		return err
	}
	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging.max_backups must be >= 0, got %d", c.Logging.MaxBackups)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be >= 0, got %s", c.Watch.Debounce)
	}
	return nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "hasher"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "hasher"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/hasher/ for the history database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "hasher")
}

// StateDir returns $XDG_STATE_HOME/hasher/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "hasher")
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return logging.DefaultLogPath()
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# hasher configuration

# Root used when no path is given
default_path: %s

# Regular expressions excluding files (matched against the relative path)
exclude: []

# Glob patterns excluding files (e.g. "**/.git/**")
exclude_glob: []

# Metric workers (0 means one per CPU)
workers: 0

# Symbolic links: error (fail the scan) or skip
symlinks: %s

# Output format: plain, pretty, json, yaml, or template=<go template>
output: %s

verify:
  # Count missing files as invalid
  count_missing: false
  # Report files that are not in the manifest
  untracked: false

# Run history
history:
  enabled: true
  # Empty means use default: $XDG_DATA_HOME/hasher/history
  path: ""
  retention_days: %d

watch:
  debounce: %s

logging:
  # Log level: debug, info, warn, error
  level: %s
  # Log file path (empty means use default: $XDG_STATE_HOME/hasher/hasher.log)
  path: ""
  # Rotate the log file at this size, keeping max_backups old files
  max_size: %s
  max_backups: %d
  # Per-component log levels
  components:
    scanner: info
    metric: info
    history: info
`, DefaultPath, DefaultSymlinks, DefaultOutput, DefaultRetentionDays, DefaultDebounce, DefaultLogLevel,
		DefaultLogMaxSize, DefaultLogMaxBackups)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}
