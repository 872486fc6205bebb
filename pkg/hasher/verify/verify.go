// Package verify compares a tree against manifest records. Every record is
// recomputed and compared exactly; verification never stops at the first
// mismatch.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jamesainslie/hasher/pkg/hasher/filter"
	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/jamesainslie/hasher/pkg/hasher/metric"
	"github.com/jamesainslie/hasher/pkg/hasher/scanner"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
)

var logger = logging.Get("verify")

// ErrUnsafePath is returned when a record path is absolute or leaves the root.
var ErrUnsafePath = errors.New("record path escapes root")

// Status classifies a finding.
type Status string

const (
	// StatusMismatch means the live metric differs from the recorded one.
	StatusMismatch Status = "mismatch"
	// StatusMissing means the recorded file no longer exists.
	StatusMissing Status = "missing"
	// StatusUntracked means the file exists but has no record.
	StatusUntracked Status = "untracked"
)

// Finding is one discrepancy between the manifest and the tree.
type Finding struct {
	Path     string     `json:"path" yaml:"path"`
	Status   Status     `json:"status" yaml:"status"`
	Kind     types.Kind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Expected uint64     `json:"expected,omitempty" yaml:"expected,omitempty"`
	Found    uint64     `json:"found,omitempty" yaml:"found,omitempty"`
}

// Message renders the finding for display.
func (f Finding) Message() string {
	switch f.Status {
	case StatusMismatch:
		return fmt.Sprintf("%s: expected %s, found %s",
			f.Path, types.FormatValue(f.Kind, f.Expected), types.FormatValue(f.Kind, f.Found))
	case StatusMissing:
		return f.Path + ": not found"
	case StatusUntracked:
		return f.Path + ": not in manifest"
	default:
		return f.Path + ": " + string(f.Status)
	}
}

// Options configures a verification.
type Options struct {
	// CountMissing counts missing files as invalid. By default they are
	// reported but not counted.
	CountMissing bool

	// DetectUntracked enumerates the tree and reports files without a
	// record as invalid.
	DetectUntracked bool

	// Exclude configures the enumeration used by DetectUntracked. Use the
	// value the manifest was generated with.
	Exclude filter.Predicate

	// Symlinks applies to records whose path runs through a symbolic link
	// and to the DetectUntracked enumeration. Links are never followed:
	// SymlinksError fails the verification, SymlinksSkip reports the
	// record as missing.
	Symlinks scanner.SymlinkPolicy

	// OnProgress receives throttled progress snapshots.
	OnProgress func(types.Progress)
}

// Report is the outcome of a verification.
type Report struct {
	// Findings lists every discrepancy in record order, untracked files last.
	Findings []Finding `json:"findings" yaml:"findings"`

	// Checked is the number of records compared against a live file.
	Checked int `json:"checked" yaml:"checked"`

	// Invalid is the number of counted failures.
	Invalid int `json:"invalid" yaml:"invalid"`

	// Missing is the number of recorded files that no longer exist.
	Missing int `json:"missing" yaml:"missing"`

	// Untracked is the number of files without a record.
	Untracked int `json:"untracked" yaml:"untracked"`

	// Checksum is the self-checksum of the manifest verified against. The
	// caller sets it.
	Checksum uint64 `json:"checksum" yaml:"checksum"`
}

// Passed reports whether no counted failure was found.
func (r *Report) Passed() bool {
	return r.Invalid == 0
}

// progressInterval is the minimum gap between progress callbacks.
const progressInterval = 50 * time.Millisecond

// Verify recomputes every record under root and compares it with the
// recorded value. Records of a kind that is not a metric fail the whole
// verification before any file is read.
func Verify(ctx context.Context, records []types.Record, root string, opts Options) (*Report, error) {
	for _, rec := range records {
		if !rec.Kind.IsMetric() {
			return nil, fmt.Errorf("%w in manifest: %s", types.ErrUnsupportedKind, rec.Kind)
		}
	}

	root, err := scanner.ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	dirs := make(map[string]bool)
	var lastProgress time.Time
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := checkRecord(report, dirs, rec, root, opts); err != nil {
			return nil, err
		}

		if opts.OnProgress != nil && (time.Since(lastProgress) >= progressInterval || i == len(records)-1) {
			lastProgress = time.Now()
			opts.OnProgress(types.Progress{
				FilesDone:   int64(i + 1),
				FilesTotal:  int64(len(records)),
				CurrentPath: rec.RelativePath,
			})
		}
	}

	if opts.DetectUntracked {
		if err := findUntracked(ctx, report, records, root, opts); err != nil {
			return nil, err
		}
	}

	logger.Debug("verification finished",
		"root", root,
		"checked", report.Checked,
		"invalid", report.Invalid,
		"missing", report.Missing,
		"untracked", report.Untracked)

	return report, nil
}

// entryState is what a record path resolves to in the live tree.
type entryState int

const (
	entryRegular entryState = iota
	entryMissing
	entrySymlink
)

// resolve walks the components of local under root with Lstat and never
// follows a link. A path whose parent is no longer a directory, or whose
// final entry is not a regular file, is missing. dirs caches directories
// already known to be real.
func resolve(dirs map[string]bool, root, local string) (entryState, string, error) {
	parts := strings.Split(local, string(filepath.Separator))
	path := root
	for i, part := range parts {
		path = filepath.Join(path, part)
		last := i == len(parts)-1
		if !last && dirs[path] {
			continue
		}

		info, err := os.Lstat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				return entryMissing, path, nil
			}
			return 0, path, &types.FileError{Op: "stat", Path: path, Err: err}
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return entrySymlink, path, nil
		}
		if !last {
			if !info.IsDir() {
				return entryMissing, path, nil
			}
			dirs[path] = true
			continue
		}
		if !info.Mode().IsRegular() {
			return entryMissing, path, nil
		}
	}
	return entryRegular, path, nil
}

func checkRecord(report *Report, dirs map[string]bool, rec types.Record, root string, opts Options) error {
	local := filepath.FromSlash(rec.RelativePath)
	if !filepath.IsLocal(local) {
		return &types.FileError{Op: "verify", Path: rec.RelativePath, Err: ErrUnsafePath}
	}

	state, at, err := resolve(dirs, root, local)
	if err != nil {
		return err
	}
	if state == entrySymlink {
		if opts.Symlinks != scanner.SymlinksSkip {
			return &types.FileError{Op: "verify", Path: at, Err: types.ErrSymlink}
		}
		logger.Debug("record behind symlink", "path", rec.RelativePath, "link", at)
		state = entryMissing
	}
	if state == entryMissing {
		logger.Info("file not found", "path", rec.RelativePath)
		report.Findings = append(report.Findings, Finding{
			Path:     rec.RelativePath,
			Status:   StatusMissing,
			Kind:     rec.Kind,
			Expected: rec.Value,
		})
		report.Missing++
		if opts.CountMissing {
			report.Checked++
			report.Invalid++
		}
		return nil
	}
	live, err := metric.ComputeOne(rec.Kind, root, at)
	if err != nil {
		return err
	}
	report.Checked++

	if live.Value != rec.Value {
		f := Finding{
			Path:     rec.RelativePath,
			Status:   StatusMismatch,
			Kind:     rec.Kind,
			Expected: rec.Value,
			Found:    live.Value,
		}
		logger.Info(f.Message())
		report.Findings = append(report.Findings, f)
		report.Invalid++
	}
	return nil
}

func findUntracked(ctx context.Context, report *Report, records []types.Record, root string, opts Options) error {
	res, err := scanner.New(scanner.Options{
		Root:     root,
		Exclude:  opts.Exclude,
		Symlinks: opts.Symlinks,
	}).Scan(ctx)
	if err != nil {
		return fmt.Errorf("enumerating for untracked files: %w", err)
	}

	tracked := make(map[string]struct{}, len(records))
	for _, rec := range records {
		tracked[rec.RelativePath] = struct{}{}
	}

	for _, path := range res.Files {
		rel, err := scanner.RelativePath(res.Root, path)
		if err != nil {
			return err
		}
		if _, ok := tracked[rel]; ok {
			continue
		}
		report.Findings = append(report.Findings, Finding{Path: rel, Status: StatusUntracked})
		report.Untracked++
		report.Invalid++
	}
	return nil
}
