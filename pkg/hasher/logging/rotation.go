package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultMaxSize is the log file size that triggers a rotation when
// Rotation.MaxSize is zero.
const DefaultMaxSize int64 = 10 * 1024 * 1024

// DefaultMaxBackups is the number of rotated files kept when
// Rotation.MaxBackups is zero.
const DefaultMaxBackups = 3

// Rotation configures size-based rotation of the log file. Rotated files
// are named <path>.1 (newest) through <path>.<MaxBackups>.
type Rotation struct {
	MaxSize    int64
	MaxBackups int
}

func (r Rotation) withDefaults() Rotation {
	if r.MaxSize <= 0 {
		r.MaxSize = DefaultMaxSize
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = DefaultMaxBackups
	}
	return r
}

// RotatingFile is an append-only log file that rotates once it would grow
// past MaxSize. It is safe for concurrent use.
type RotatingFile struct {
	path string
	cfg  Rotation

	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenRotating opens path for appending, creating parent directories.
func OpenRotating(path string, cfg Rotation) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	w := &RotatingFile{path: path, cfg: cfg.withDefaults()}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first if p would push the file past MaxSize.
// A single write larger than MaxSize goes to a fresh file.
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.cfg.MaxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file.
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingFile) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// rotate shifts <path>.N-1 to <path>.N, drops the oldest, moves the live
// file to <path>.1, and reopens. Called with mu held.
func (w *RotatingFile) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	w.file = nil

	_ = os.Remove(w.backup(w.cfg.MaxBackups))
	for i := w.cfg.MaxBackups - 1; i >= 1; i-- {
		if err := os.Rename(w.backup(i), w.backup(i+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(w.path, w.backup(1)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return w.open()
}

func (w *RotatingFile) backup(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}
