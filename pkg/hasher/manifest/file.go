package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
)

var logger = logging.Get("manifest")

// Manifest is a decoded manifest file.
type Manifest struct {
	// Path is the absolute path of the manifest file.
	Path string

	// Kind is the kind named by the file, or of the first record when the
	// file name carries no known kind.
	Kind types.Kind

	// Records are the decoded records in file order.
	Records []types.Record

	// Checksum is the self-checksum of the file bytes.
	Checksum uint64

	// Warnings lists the lines skipped during decoding.
	Warnings []LineWarning
}

// Name returns the manifest file name.
func (m *Manifest) Name() string {
	return filepath.Base(m.Path)
}

// Locate returns the path of the single manifest file directly inside root.
// It fails with ErrManifestNotFound when there is none and with
// ErrAmbiguousManifest when there are several.
func Locate(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", root, err)
	}

	var candidates []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), types.ManifestExt) {
			continue
		}
		candidates = append(candidates, e.Name())
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w in %s", types.ErrManifestNotFound, root)
	case 1:
		return filepath.Join(root, candidates[0]), nil
	default:
		slices.Sort(candidates)
		return "", fmt.Errorf("%w in %s: %s", types.ErrAmbiguousManifest, root, strings.Join(candidates, ", "))
	}
}

// Write encodes records and writes them to root atomically. It returns the
// manifest path and its self-checksum.
func Write(root string, kind types.Kind, records []types.Record) (string, uint64, error) {
	name, data := Encode(kind, records)
	path := filepath.Join(root, name)

	tmp, err := os.CreateTemp(root, "."+name+".*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to set manifest mode: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	sum := Checksum(data)
	logger.Debug("manifest written", "path", path, "records", len(records), "checksum", FormatChecksum(sum))
	return path, sum, nil
}

// Load reads and decodes the manifest at path. Skipped lines are logged
// and returned in Warnings.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	records, warnings, err := Decode(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, w := range warnings {
		logger.Debug("skipping manifest line", "path", path, "line", w.Line, "reason", w.Reason)
	}

	kind, err := KindFromFileName(filepath.Base(path))
	if err != nil && len(records) > 0 {
		kind = records[0].Kind
	}

	return &Manifest{
		Path:     path,
		Kind:     kind,
		Records:  records,
		Checksum: Checksum(data),
		Warnings: warnings,
	}, nil
}

// Open locates and loads the manifest in root.
func Open(root string) (*Manifest, error) {
	path, err := Locate(root)
	if err != nil {
		return nil, err
	}
	return Load(path)
}
