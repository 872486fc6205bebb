package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/hasher/pkg/hasher/config"
	"github.com/jamesainslie/hasher/pkg/hasher/filter"
	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/jamesainslie/hasher/pkg/hasher/scanner"
	"github.com/jamesainslie/hasher/pkg/hasher/tuner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errVerificationFailed is returned after a verification report with
// invalid files has been printed. main exits 1 without printing it.
var errVerificationFailed = errors.New("verification failed")

var (
	cfgFile      string
	excludeFlags []string
	globFlags    []string
	noHistory    bool

	// cfg is the effective configuration, loaded before every command.
	cfg *config.Config

	// settings holds the viper instance cfg was loaded from.
	settings *viper.Viper

	rootCmd = &cobra.Command{
		Use:   "hasher",
		Short: "Record and verify file sizes or fingerprints of a directory tree",
		Long: `Hasher records the size or XXH3 fingerprint of every file under a
directory into a manifest (size.hasher or xxh3.hasher) in that directory,
and later verifies the tree against it.

Examples:
  hasher size                 # Record sizes of the current directory
  hasher xxh3 ~/photos        # Record fingerprints
  hasher check ~/photos       # Verify against the manifest
  hasher xxh3 -e '\.tmp$' .   # Exclude files matching a regex
  hasher watch ~/photos       # Re-verify whenever the tree changes
  hasher history              # View recorded runs`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/hasher/config.yaml)")
	flags.StringArrayVarP(&excludeFlags, "exclude", "e", nil, "exclude files whose relative path matches this regex (repeatable)")
	flags.StringArrayVar(&globFlags, "exclude-glob", nil, "exclude files whose relative path matches this glob (repeatable)")
	flags.IntP("workers", "w", 0, "metric workers (0 = one per CPU)")
	flags.StringP("output", "o", config.DefaultOutput, "output format: plain, pretty, json, yaml, csv, tsv, paths, null, template=<text>")
	flags.BoolP("quiet", "q", false, "suppress output")
	flags.BoolP("verbose", "v", false, "log debug messages to stderr")
	flags.Bool("no-progress", false, "disable the progress display")
	flags.BoolVar(&noHistory, "no-history", false, "do not record this run in the history")
	flags.String("symlinks", config.DefaultSymlinks, "symbolic link policy: error or skip")
	flags.Bool("count-missing", false, "count missing files as invalid when verifying")
	flags.Bool("untracked", false, "report files not in the manifest as invalid when verifying")
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"workers":       "workers",
	"output":        "output",
	"quiet":         "quiet",
	"verbose":       "verbose",
	"no-progress":   "no_progress",
	"symlinks":      "symlinks",
	"count-missing": "verify.count_missing",
	"untracked":     "verify.untracked",
	"debounce":      "watch.debounce",
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	_ = logging.Close()
	return err
}

// setup loads configuration, binds flags, and initializes logging.
func setup(cmd *cobra.Command, _ []string) error {
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	cfg, err = config.Load(v)
	if err != nil {
		return err
	}
	settings = v
	if noHistory {
		cfg.History.Enabled = false
	}

	return initLogging(cfg)
}

// bindFlags binds the flags cmd can see to their config keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// initLogging sends logs to the log file and warnings (or everything with
// --verbose) to stderr. A log file that cannot be opened is not fatal.
func initLogging(c *config.Config) error {
	consoleLevel := "warn"
	switch {
	case c.Quiet:
		consoleLevel = "error"
	case c.Verbose:
		consoleLevel = "debug"
	}

	rotation, err := c.Logging.Rotation()
	if err != nil {
		return err
	}
	lc := logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		Components:   c.Logging.Components,
		ConsoleLevel: consoleLevel,
		Rotation:     rotation,
	}
	if err := logging.Init(lc); err != nil {
		if errors.Is(err, logging.ErrInvalidLevel) {
			return err
		}
		lc.Path = ""
		if retryErr := logging.Init(lc); retryErr != nil {
			return retryErr
		}
		log.Warn("log file disabled", "error", err)
	}
	return nil
}

// resolveRoot returns the absolute root from args or the configured
// default path.
func resolveRoot(args []string) (string, error) {
	root := cfg.DefaultPath
	if len(args) > 0 {
		root = args[0]
	}
	root, err := config.ExpandPath(root)
	if err != nil {
		return "", err
	}
	abs, err := scanner.ValidateRoot(root)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// buildFilter combines configured exclusions with those given on the
// command line.
func buildFilter() (*filter.Filter, error) {
	return filter.New(
		filter.WithRegex(append(append([]string(nil), cfg.Exclude...), excludeFlags...)...),
		filter.WithGlob(append(append([]string(nil), cfg.ExcludeGlob...), globFlags...)...),
	)
}

// symlinkPolicy returns the configured symbolic link policy.
func symlinkPolicy() (scanner.SymlinkPolicy, error) {
	return scanner.ParseSymlinkPolicy(cfg.Symlinks)
}

// tuning sizes the worker pools for this machine, honoring --workers.
func tuning() tuner.OptimalConfig {
	res, err := tuner.Detect()
	if err != nil {
		log.Debug("resource detection failed, using defaults", "error", err)
		res = tuner.Fallback(res.CPUCores)
	}
	t := tuner.CalculateWithOverrides(res, cfg.Workers)
	log.Debug("tuned",
		"cpus", res.CPUCores,
		"workers", t.Workers,
		"walk_workers", t.WalkWorkers,
		"memory_budget", t.MemoryBudget)
	return t
}

// showProgress reports whether the progress display should run.
func showProgress() bool {
	if cfg.Quiet || cfg.NoProgress {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
