// Package types provides core data types for the hasher manifest tool.
// It includes the metric kinds, the per-file record, progress snapshots,
// the error taxonomy shared by all packages, and size formatting helpers.
package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ManifestExt is the file name suffix shared by every manifest file.
const ManifestExt = ".hasher"

// IsManifestName reports whether a base file name is a manifest or a
// temporary file written while replacing one (".<name>.hasher.*.tmp").
// Such files are never part of a tree's content.
func IsManifestName(name string) bool {
	if strings.HasSuffix(name, ManifestExt) {
		return true
	}
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp") &&
		strings.Contains(name, ManifestExt+".")
}

// Kind identifies a manifest action. Size and Fingerprint are stored metrics;
// Verify only selects the verification mode and never appears in a record
// produced by this tool.
type Kind int

const (
	// Size records the file's byte length.
	Size Kind = iota + 1
	// Fingerprint records the XXH3-64 digest of the file's content.
	Fingerprint
	// Verify selects verification against an existing manifest.
	Verify
)

// Canonical kind names, used for manifest file names and line tags.
const (
	kindSize        = "size"
	kindFingerprint = "xxh3"
	kindVerify      = "check"
)

// String returns the canonical lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Size:
		return kindSize
	case Fingerprint:
		return kindFingerprint
	case Verify:
		return kindVerify
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsMetric reports whether the kind describes a stored, recomputable metric.
func (k Kind) IsMetric() bool {
	return k == Size || k == Fingerprint
}

// ParseKind parses a kind name case-insensitively. "verify" is accepted as
// an alias of "check".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case kindSize:
		return Size, nil
	case kindFingerprint:
		return Fingerprint, nil
	case kindVerify, "verify":
		return Verify, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler. The zero Kind marshals
// to the empty string.
func (k Kind) MarshalText() ([]byte, error) {
	if k == 0 {
		return nil, nil
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = 0
		return nil
	}
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MetricKinds returns the kinds that can be written to a manifest.
func MetricKinds() []Kind {
	return []Kind{Size, Fingerprint}
}

// Record is one file's computed metric.
type Record struct {
	// Kind is the metric that produced Value.
	Kind Kind `json:"kind" yaml:"kind"`

	// RelativePath is the path relative to the scan root, '/'-separated.
	RelativePath string `json:"path" yaml:"path"`

	// Value is the byte length or the fingerprint, depending on Kind.
	Value uint64 `json:"value" yaml:"value"`
}

// FormatValue renders the value the way users expect to read it: a
// human-readable size for Size records, uppercase hex for fingerprints.
func (r Record) FormatValue() string {
	return FormatValue(r.Kind, r.Value)
}

// FormatValue renders a metric value for display.
func FormatValue(kind Kind, value uint64) string {
	if kind == Size {
		return FormatSize(value)
	}
	return fmt.Sprintf("%X", value)
}

// Progress reports metric computation progress.
type Progress struct {
	// FilesDone is the number of files whose metric has been computed.
	FilesDone int64 `json:"files_done"`

	// FilesTotal is the number of files in the batch.
	FilesTotal int64 `json:"files_total"`

	// BytesDone is the total size of the files computed so far.
	BytesDone int64 `json:"bytes_done"`

	// CurrentPath is the relative path most recently completed.
	CurrentPath string `json:"current_path"`
}

// Sentinel errors. Fatal conditions are returned wrapped in these so callers
// can tell them apart with errors.Is.
var (
	// ErrUnknownKind is returned when a kind tag is not a known kind.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrUnsupportedKind is returned when a kind has no metric computation.
	ErrUnsupportedKind = errors.New("unsupported kind")

	// ErrManifestNotFound is returned when a root holds no manifest file.
	ErrManifestNotFound = errors.New("no manifest found")

	// ErrAmbiguousManifest is returned when a root holds several manifest files.
	ErrAmbiguousManifest = errors.New("more than one manifest found")

	// ErrSymlink is returned when enumeration meets a symbolic link and the
	// symlink policy forbids them.
	ErrSymlink = errors.New("symbolic link in tree")

	// ErrNotDirectory is returned when a root is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// FileError records a failed file operation during a scan.
type FileError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units.
//
// Examples:
//   - FormatSize(0) returns "0 B"
//   - FormatSize(1024) returns "1.0 KiB"
func FormatSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}
