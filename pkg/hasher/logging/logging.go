// Package logging provides component loggers for hasher, built on
// charmbracelet/log. Every package asks for its own logger by component name;
// the CLI configures levels and sinks once with Init.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info", ConsoleLevel: "warn"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("scanner")
//	logger.Info("walk started", "root", "/srv/data")
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) toCharmLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default file log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty disables the file sink.
	Path string

	// Components maps component names to their log levels.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level.
	// Empty disables console output.
	ConsoleLevel string

	// Console overrides the console writer. Defaults to os.Stderr.
	Console io.Writer

	// Rotation bounds the size of the log file.
	Rotation Rotation
}

// Logger writes one component's messages to the file and console sinks.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if l.file != nil {
		logTo(l.file, level, msg, args...)
	}
	if l.console != nil {
		logTo(l.console, level, msg, args...)
	}
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a new logger with additional key/value context.
func (l *Logger) With(args ...interface{}) *Logger {
	nl := &Logger{component: l.component}
	if l.file != nil {
		nl.file = l.file.With(args...)
	}
	if l.console != nil {
		nl.console = l.console.With(args...)
	}
	return nl
}

type state struct {
	mu           sync.RWMutex
	initialized  bool
	file         *RotatingFile
	level        Level
	components   map[string]Level
	loggers      map[string]*Logger
	console      io.Writer
	consoleLevel Level
}

var globalState = &state{
	loggers:    make(map[string]*Logger),
	components: make(map[string]Level),
}

// Init configures the logging system. Loggers handed out before Init are
// rebuilt in place, so package-level loggers pick up the configuration.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	var console io.Writer
	var consoleLevel Level
	if cfg.ConsoleLevel != "" {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = cfg.Console
		if console == nil {
			console = os.Stderr
		}
	}

	var file *RotatingFile
	if cfg.Path != "" {
		file, err = OpenRotating(cfg.Path, cfg.Rotation)
		if err != nil {
			return err
		}
	}

	if globalState.file != nil {
		_ = globalState.file.Close()
	}

	globalState.file = file
	globalState.level = level
	globalState.components = components
	globalState.console = console
	globalState.consoleLevel = consoleLevel
	globalState.initialized = true

	for component, logger := range globalState.loggers {
		*logger = *createLogger(component)
	}

	return nil
}

// Get returns the logger for a component, creating it on first use.
// Before Init the logger is silent.
func Get(component string) *Logger {
	globalState.mu.RLock()
	if logger, ok := globalState.loggers[component]; ok {
		globalState.mu.RUnlock()
		return logger
	}
	globalState.mu.RUnlock()

	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}

	logger := createLogger(component)
	globalState.loggers[component] = logger
	return logger
}

// createLogger must be called with globalState.mu held.
func createLogger(component string) *Logger {
	level := globalState.level
	if compLevel, ok := globalState.components[component]; ok {
		level = compLevel
	}

	logger := &Logger{component: component}

	if !globalState.initialized {
		logger.file = log.NewWithOptions(io.Discard, log.Options{Prefix: component})
		return logger
	}

	if globalState.file != nil {
		logger.file = log.NewWithOptions(globalState.file, log.Options{
			Level:           level.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		})
	}

	if globalState.console != nil {
		consoleLevel := globalState.consoleLevel
		if compLevel, ok := globalState.components[component]; ok && compLevel > consoleLevel {
			consoleLevel = compLevel
		}
		logger.console = log.NewWithOptions(globalState.console, log.Options{
			Level:           consoleLevel.toCharmLevel(),
			ReportTimestamp: false,
			Prefix:          component,
		})
	}

	return logger
}

// Close releases the log file and returns all loggers to the silent state.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	var err error
	if globalState.file != nil {
		if cerr := globalState.file.Close(); cerr != nil {
			err = fmt.Errorf("closing log file: %w", cerr)
		}
		globalState.file = nil
	}

	globalState.initialized = false
	globalState.console = nil
	globalState.components = make(map[string]Level)
	for component, logger := range globalState.loggers {
		*logger = *createLogger(component)
	}

	return err
}

// DefaultLogPath returns $XDG_STATE_HOME/hasher/hasher.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "hasher", "hasher.log")
}
