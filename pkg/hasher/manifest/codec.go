// Package manifest encodes, decodes, locates, and persists manifest files.
//
// A manifest is a flat text file named "<kind>.hasher" in the scan root.
// Each line holds one record:
//
//	<kind>:<VALUE_HEX>,<relative/path>
//
// Lines are joined with '\n' and there is no trailing newline. Paths are
// written verbatim: a path containing a newline cannot be represented.
package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jamesainslie/hasher/pkg/hasher/metric"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
)

// lineRe matches one manifest line. The path group is greedy so commas
// and colons inside paths are kept.
var lineRe = regexp.MustCompile(`^(\w+):([0-9A-Fa-f]+),(.+)$`)

// LineWarning describes a manifest line that was skipped during decoding.
type LineWarning struct {
	// Line is the 1-based line number.
	Line int `json:"line" yaml:"line"`

	// Text is the offending line.
	Text string `json:"text" yaml:"text"`

	// Reason explains why the line was skipped.
	Reason string `json:"reason" yaml:"reason"`
}

// String implements fmt.Stringer.
func (w LineWarning) String() string {
	return fmt.Sprintf("line %d: %s: %q", w.Line, w.Reason, w.Text)
}

// FileName returns the manifest file name for kind.
func FileName(kind types.Kind) string {
	return kind.String() + types.ManifestExt
}

// KindFromFileName parses the kind encoded in a manifest file name.
func KindFromFileName(name string) (types.Kind, error) {
	base, ok := strings.CutSuffix(name, types.ManifestExt)
	if !ok {
		return 0, fmt.Errorf("%s: not a manifest file name", name)
	}
	return types.ParseKind(base)
}

// Encode serializes records. Each line carries its record's own kind tag;
// kind only selects the file name.
func Encode(kind types.Kind, records []types.Record) (string, []byte) {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s:%X,%s", rec.Kind, rec.Value, rec.RelativePath)
	}
	return FileName(kind), []byte(b.String())
}

// Checksum returns the manifest self-checksum: the XXH3-64 of data.
func Checksum(data []byte) uint64 {
	return metric.Checksum(data)
}

// FormatChecksum renders a checksum the way it is displayed to users.
func FormatChecksum(sum uint64) string {
	return fmt.Sprintf("%X", sum)
}

// Decode parses manifest text. Lines that do not match the record grammar
// and values that overflow 64 bits are returned as warnings and skipped;
// empty lines are skipped silently. An unknown kind tag fails the decode.
func Decode(text string) ([]types.Record, []LineWarning, error) {
	var (
		records  []types.Record
		warnings []LineWarning
	)

	for i, line := range strings.Split(text, "\n") {
		n := i + 1
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			warnings = append(warnings, LineWarning{Line: n, Text: line, Reason: "malformed record"})
			continue
		}

		kind, err := types.ParseKind(m[1])
		if err != nil {
			return nil, warnings, fmt.Errorf("line %d: %w", n, err)
		}

		value, err := strconv.ParseUint(m[2], 16, 64)
		if err != nil {
			reason := "invalid value"
			if errors.Is(err, strconv.ErrRange) {
				reason = "value overflows 64 bits"
			}
			warnings = append(warnings, LineWarning{Line: n, Text: line, Reason: reason})
			continue
		}

		records = append(records, types.Record{Kind: kind, RelativePath: m[3], Value: value})
	}

	return records, warnings, nil
}
