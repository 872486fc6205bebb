// Package config provides configuration management for hasher.
package config

import "time"

// Default configuration values for hasher.
const (
	// DefaultPath is the root used when none is given on the command line.
	DefaultPath = "."

	// DefaultSymlinks is the symbolic link policy.
	DefaultSymlinks = "error"

	// DefaultOutput is the output format.
	DefaultOutput = "plain"

	// DefaultRetentionDays is the number of days run history is kept.
	DefaultRetentionDays = 90

	// DefaultDebounce is the quiet period before watch mode re-verifies.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultLogLevel is the log file level.
	DefaultLogLevel = "info"

	// DefaultLogMaxSize is the log file size that triggers a rotation.
	DefaultLogMaxSize = "10MB"

	// DefaultLogMaxBackups is the number of rotated log files kept.
	DefaultLogMaxBackups = 3

	// envPrefix prefixes environment overrides, e.g. HASHER_WORKERS.
	envPrefix = "HASHER"
)
