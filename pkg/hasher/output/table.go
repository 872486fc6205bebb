package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/jamesainslie/hasher/pkg/hasher/verify"
)

// rawValue renders a metric value exactly: decimal bytes for sizes,
// uppercase hex for fingerprints.
func rawValue(kind types.Kind, v uint64) string {
	if kind == types.Size {
		return strconv.FormatUint(v, 10)
	}
	return fmt.Sprintf("%X", v)
}

// rows returns the header and data rows shared by the table formatters.
func rows(r *Result) [][]string {
	if r.Mode == ModeVerify {
		out := [][]string{{"PATH", "STATUS", "EXPECTED", "FOUND"}}
		for _, f := range r.Findings {
			var expected, found string
			if f.Status != verify.StatusUntracked {
				expected = rawValue(f.Kind, f.Expected)
			}
			if f.Status == verify.StatusMismatch {
				found = rawValue(f.Kind, f.Found)
			}
			out = append(out, []string{f.Path, string(f.Status), expected, found})
		}
		return out
	}

	out := [][]string{{"KIND", "PATH", "VALUE"}}
	for _, rec := range r.Records {
		out = append(out, []string{rec.Kind.String(), rec.RelativePath, rawValue(rec.Kind, rec.Value)})
	}
	return out
}

// TSVFormatter formats records or findings as tab-separated values with a
// header row.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, row := range rows(r) {
		w.WriteString(strings.Join(row, "\t"))
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("tsv", func() Formatter {
		return &TSVFormatter{}
	})
}

// Ensure TSVFormatter implements Formatter.
var _ Formatter = (*TSVFormatter)(nil)

// CSVFormatter formats records or findings as RFC 4180 comma-separated
// values.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows(r)); err != nil {
		return err
	}
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

// Ensure CSVFormatter implements Formatter.
var _ Formatter = (*CSVFormatter)(nil)
