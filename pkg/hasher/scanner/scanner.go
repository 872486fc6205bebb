package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/jamesainslie/hasher/pkg/hasher/filter"
	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
)

var logger = logging.Get("scanner")

// Result is the outcome of an enumeration.
type Result struct {
	// Root is the resolved absolute root.
	Root string

	// Files holds the absolute paths of every accepted regular file,
	// sorted lexically.
	Files []string

	// DirsScanned is the number of directories visited, root included.
	DirsScanned int64

	// Excluded counts files rejected by the exclusion predicate.
	Excluded int64

	// Skipped counts symbolic links and special files that were ignored.
	Skipped int64

	// Elapsed is the wall time of the walk.
	Elapsed time.Duration
}

// Scanner walks one root.
type Scanner struct {
	opts Options

	dirsScanned atomic.Int64
	excluded    atomic.Int64
	skipped     atomic.Int64

	files   []string
	filesMu sync.Mutex

	root string
}

// New creates a Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Enumerate is a convenience wrapper around New(opts).Scan.
// It returns only the file list.
func Enumerate(ctx context.Context, root string, exclude filter.Predicate) ([]string, error) {
	res, err := New(Options{Root: root, Exclude: exclude}).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

// Scan walks the tree and returns every accepted regular file. Any
// traversal error, or a symbolic link under SymlinksError, aborts the whole
// scan and no file list is returned.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	start := time.Now()

	root, err := ValidateRoot(s.opts.Root)
	if err != nil {
		return nil, err
	}
	s.root = root

	logger.Debug("walk started", "root", root, "symlinks", s.opts.Symlinks)

	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: s.opts.Workers,
	}
	if err := fastwalk.Walk(&conf, root, s.walkCallback(ctx)); err != nil {
		return nil, err
	}

	slices.Sort(s.files)

	res := &Result{
		Root:        root,
		Files:       s.files,
		DirsScanned: s.dirsScanned.Load(),
		Excluded:    s.excluded.Load(),
		Skipped:     s.skipped.Load(),
		Elapsed:     time.Since(start),
	}
	logger.Debug("walk finished",
		"root", root,
		"files", len(res.Files),
		"dirs", res.DirsScanned,
		"excluded", res.Excluded,
		"skipped", res.Skipped,
		"elapsed", res.Elapsed)

	return res, nil
}

// walkCallback returns the fastwalk callback. fastwalk invokes it from
// several goroutines at once.
func (s *Scanner) walkCallback(ctx context.Context) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return &types.FileError{Op: "walk", Path: path, Err: err}
		}

		if d.IsDir() {
			s.dirsScanned.Add(1)
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if s.opts.Symlinks == SymlinksSkip {
				logger.Debug("skipping symlink", "path", path)
				s.skipped.Add(1)
				return nil
			}
			return &types.FileError{Op: "walk", Path: path, Err: types.ErrSymlink}
		}

		if !d.Type().IsRegular() {
			logger.Debug("skipping special file", "path", path, "mode", d.Type())
			s.skipped.Add(1)
			return nil
		}

		if types.IsManifestName(d.Name()) {
			return nil
		}

		if s.opts.Exclude != nil {
			rel, relErr := RelativePath(s.root, path)
			if relErr != nil {
				return relErr
			}
			if s.opts.Exclude(rel) {
				s.excluded.Add(1)
				return nil
			}
		}

		s.filesMu.Lock()
		s.files = append(s.files, path)
		s.filesMu.Unlock()
		return nil
	}
}

// ValidateRoot resolves root to an absolute path and verifies that it is a
// directory.
func ValidateRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("scan root cannot be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root %q: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", abs, types.ErrNotDirectory)
	}

	return abs, nil
}

// RelativePath strips root from path and normalizes separators to '/'.
// It fails when path is not inside root.
func RelativePath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", path, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s is not inside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}
