package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jamesainslie/hasher/cmd/hasher/tui"
	"github.com/jamesainslie/hasher/pkg/hasher/history"
	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/jamesainslie/hasher/pkg/hasher/manifest"
	"github.com/jamesainslie/hasher/pkg/hasher/metric"
	"github.com/jamesainslie/hasher/pkg/hasher/output"
	"github.com/jamesainslie/hasher/pkg/hasher/scanner"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/jamesainslie/hasher/pkg/hasher/verify"
)

var log = logging.Get("cli")

// withProgress runs work behind the progress display when it is enabled.
func withProgress(ctx context.Context, title string, work func(report func(types.Progress)) error) error {
	if !showProgress() {
		return work(nil)
	}
	return tui.Run(ctx, os.Stderr, title, work)
}

// generate enumerates root, computes kind for every file, writes the
// manifest, and records the run.
func generate(ctx context.Context, kind types.Kind, root string, progress bool) (*output.Result, error) {
	start := time.Now()

	f, err := buildFilter()
	if err != nil {
		return nil, err
	}
	policy, err := symlinkPolicy()
	if err != nil {
		return nil, err
	}
	tune := tuning()

	scan, err := scanner.New(scanner.Options{
		Root:     root,
		Exclude:  f.Predicate(),
		Symlinks: policy,
		Workers:  tune.WalkWorkers,
	}).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	log.Info("enumerated", "root", root, "files", len(scan.Files), "excluded", scan.Excluded, "skipped", scan.Skipped)

	var records []types.Record
	compute := func(report func(types.Progress)) error {
		var err error
		records, err = metric.Compute(ctx, kind, root, scan.Files, metric.Options{
			Workers:      tune.Workers,
			MemoryBudget: tune.MemoryBudget,
			OnProgress:   report,
		})
		return err
	}
	if progress {
		err = withProgress(ctx, "Computing "+kind.String(), compute)
	} else {
		err = compute(nil)
	}
	if err != nil {
		return nil, err
	}

	path, sum, err := manifest.Write(root, kind, records)
	if err != nil {
		return nil, err
	}

	result := &output.Result{
		Mode:     output.ModeGenerate,
		Root:     root,
		Kind:     kind,
		Manifest: manifest.FileName(kind),
		Checksum: sum,
		Files:    len(scan.Files),
		Records:  records,
		Duration: time.Since(start),
	}

	run := history.NewRun(history.OpGenerate, root, kind)
	run.Manifest = result.Manifest
	run.Checksum = sum
	run.Files = result.Files
	run.Duration = result.Duration
	recordRun(run)

	log.Info("manifest written", "path", path, "files", result.Files, "checksum", result.ChecksumHex())
	return result, nil
}

// check verifies root against its manifest and records the run. A report
// with invalid files is not an error here.
func check(ctx context.Context, root string, progress bool) (*output.Result, error) {
	start := time.Now()

	m, err := manifest.Open(root)
	if err != nil {
		return nil, err
	}

	f, err := buildFilter()
	if err != nil {
		return nil, err
	}
	policy, err := symlinkPolicy()
	if err != nil {
		return nil, err
	}

	result := &output.Result{
		Mode:     output.ModeVerify,
		Root:     root,
		Kind:     m.Kind,
		Manifest: m.Name(),
		Checksum: m.Checksum,
	}
	for _, w := range m.Warnings {
		result.Warnings = append(result.Warnings, w.String())
	}
	if warning := compareWithHistory(root, m); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	var report *verify.Report
	run := func(reportProgress func(types.Progress)) error {
		var err error
		report, err = verify.Verify(ctx, m.Records, root, verify.Options{
			CountMissing:    cfg.Verify.CountMissing,
			DetectUntracked: cfg.Verify.Untracked,
			Exclude:         f.Predicate(),
			Symlinks:        policy,
			OnProgress:      reportProgress,
		})
		return err
	}
	if progress {
		err = withProgress(ctx, "Verifying "+m.Name(), run)
	} else {
		err = run(nil)
	}
	if err != nil {
		return nil, err
	}
	report.Checksum = m.Checksum

	result.Files = report.Checked
	result.Findings = report.Findings
	result.Invalid = report.Invalid
	result.Missing = report.Missing
	result.Untracked = report.Untracked
	result.Duration = time.Since(start)

	hr := history.NewRun(history.OpVerify, root, m.Kind)
	hr.Manifest = result.Manifest
	hr.Checksum = m.Checksum
	hr.Files = report.Checked
	hr.Invalid = report.Invalid
	hr.Missing = report.Missing
	hr.Untracked = report.Untracked
	hr.Duration = result.Duration
	recordRun(hr)

	return result, nil
}

// openHistory opens the history store, or returns nil when history is
// disabled or unavailable.
func openHistory() *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		log.Warn("history unavailable", "path", cfg.History.Path, "error", err)
		return nil
	}
	return store
}

// recordRun stores run in the history. Failures are logged, never fatal.
func recordRun(run *history.Run) {
	store := openHistory()
	if store == nil {
		return
	}
	defer store.Close()

	if err := store.Record(run); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}

// compareWithHistory returns a warning when the manifest differs from the
// one recorded at its last generation.
func compareWithHistory(root string, m *manifest.Manifest) string {
	store := openHistory()
	if store == nil {
		return ""
	}
	defer store.Close()

	last, err := store.LastGenerate(root, m.Name())
	if errors.Is(err, history.ErrNotFound) {
		return ""
	}
	if err != nil {
		log.Warn("failed to read history", "error", err)
		return ""
	}
	if last.Checksum == m.Checksum {
		return ""
	}
	return fmt.Sprintf("manifest changed since generation on %s (recorded checksum %s)",
		last.Time.Format(time.DateTime), manifest.FormatChecksum(last.Checksum))
}

// printResult writes result with the configured formatter.
func printResult(w io.Writer, result *output.Result) error {
	if cfg.Quiet {
		return nil
	}
	formatter, err := output.Get(cfg.Output)
	if err != nil {
		return fmt.Errorf("%w: available formats are %v", err, output.Available())
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
