// Package metric computes per-file metrics. A strategy table maps each
// metric kind to its computation; Compute fans a batch of files out over a
// bounded worker pool and fails the whole batch on the first I/O error.
package metric

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/jamesainslie/hasher/pkg/hasher/scanner"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var logger = logging.Get("metric")

// ComputeFunc computes one record for the file at path under root and
// returns the number of file bytes it covered.
type ComputeFunc func(root, path string) (types.Record, int64, error)

// table holds one computation per metric kind. Verify is not a metric and
// has no entry.
var table = map[types.Kind]ComputeFunc{
	types.Size:        computeSize,
	types.Fingerprint: computeFingerprint,
}

// progressInterval is the minimum gap between throttled progress callbacks.
const progressInterval = 50 * time.Millisecond

// Options configures a batch computation.
type Options struct {
	// Workers bounds the number of concurrent computations. Zero or less
	// means one per file.
	Workers int

	// MemoryBudget caps the file bytes held in memory by concurrent
	// fingerprint reads. Zero disables the cap. A file larger than the
	// budget is read alone.
	MemoryBudget int64

	// OnProgress receives throttled progress snapshots. It is called from
	// worker goroutines and must be safe for concurrent use.
	OnProgress func(types.Progress)
}

// Lookup returns the computation for kind.
func Lookup(kind types.Kind) (ComputeFunc, error) {
	fn, ok := table[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedKind, kind)
	}
	return fn, nil
}

// ComputeOne computes the record for a single file.
func ComputeOne(kind types.Kind, root, path string) (types.Record, error) {
	fn, err := Lookup(kind)
	if err != nil {
		return types.Record{}, err
	}
	rec, _, err := fn(root, path)
	return rec, err
}

// Compute computes kind for every file (absolute paths under root) and
// returns the records sorted by relative path. It returns either all
// records or the first error; files not yet started when a failure is
// observed are skipped.
func Compute(ctx context.Context, kind types.Kind, root string, files []string, opts Options) ([]types.Record, error) {
	fn, err := Lookup(kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	p := newProgress(int64(len(files)), opts.OnProgress)
	p.force()

	var budget *semaphore.Weighted
	if kind == types.Fingerprint && opts.MemoryBudget > 0 {
		budget = semaphore.NewWeighted(opts.MemoryBudget)
	}

	records := make([]types.Record, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}

	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if budget != nil {
				weight, err := reserve(gctx, budget, path, opts.MemoryBudget)
				if err != nil {
					return err
				}
				defer budget.Release(weight)
			}

			rec, n, err := fn(root, path)
			if err != nil {
				return err
			}
			records[i] = rec
			p.done(rec.RelativePath, n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Debug("batch failed", "kind", kind, "root", root, "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(records, func(a, b types.Record) int {
		return strings.Compare(a.RelativePath, b.RelativePath)
	})

	p.force()
	logger.Debug("batch finished",
		"kind", kind,
		"files", len(records),
		"workers", opts.Workers,
		"elapsed", time.Since(start))

	return records, nil
}

// reserve acquires budget for the file at path, clamped to the whole
// budget so oversized files still make progress.
func reserve(ctx context.Context, budget *semaphore.Weighted, path string, limit int64) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, &types.FileError{Op: "stat", Path: path, Err: err}
	}
	weight := min(max(info.Size(), 1), limit)
	if err := budget.Acquire(ctx, weight); err != nil {
		return 0, err
	}
	return weight, nil
}

// Checksum returns the XXH3-64 digest of data.
func Checksum(data []byte) uint64 {
	return xxh3.Hash(data)
}

func computeSize(root, path string) (types.Record, int64, error) {
	rel, err := scanner.RelativePath(root, path)
	if err != nil {
		return types.Record{}, 0, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return types.Record{}, 0, &types.FileError{Op: "stat", Path: path, Err: err}
	}
	return types.Record{Kind: types.Size, RelativePath: rel, Value: uint64(info.Size())}, info.Size(), nil
}

func computeFingerprint(root, path string) (types.Record, int64, error) {
	rel, err := scanner.RelativePath(root, path)
	if err != nil {
		return types.Record{}, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Record{}, 0, &types.FileError{Op: "read", Path: path, Err: err}
	}
	return types.Record{Kind: types.Fingerprint, RelativePath: rel, Value: xxh3.Hash(data)}, int64(len(data)), nil
}

// progress tracks batch completion for throttled reporting.
type progress struct {
	total    int64
	filesRun atomic.Int64
	bytes    atomic.Int64
	current  atomic.Value
	last     atomic.Int64
	fn       func(types.Progress)
}

func newProgress(total int64, fn func(types.Progress)) *progress {
	return &progress{total: total, fn: fn}
}

// done records a completed file of n bytes and reports if the throttle
// allows.
func (p *progress) done(rel string, n int64) {
	if p.fn == nil {
		return
	}
	p.filesRun.Add(1)
	p.current.Store(rel)
	p.bytes.Add(n)

	now := time.Now().UnixNano()
	last := p.last.Load()
	if now-last < int64(progressInterval) {
		return
	}
	if !p.last.CompareAndSwap(last, now) {
		return
	}
	p.send()
}

// force reports immediately, bypassing the throttle.
func (p *progress) force() {
	if p.fn == nil {
		return
	}
	p.last.Store(time.Now().UnixNano())
	p.send()
}

func (p *progress) send() {
	current, _ := p.current.Load().(string)
	p.fn(types.Progress{
		FilesDone:   p.filesRun.Load(),
		FilesTotal:  p.total,
		BytesDone:   p.bytes.Load(),
		CurrentPath: current,
	})
}
