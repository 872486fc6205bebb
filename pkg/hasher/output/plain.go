package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter writes unstyled text suitable for scripting and piping.
// Size listings are aligned with a tabwriter.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	if r.ListsRecords() {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, rec := range r.Records {
			if _, err := fmt.Fprintf(tw, "%s:\t%s\t- %s\n", rec.Kind, rec.RelativePath, rec.FormatValue()); err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, finding := range r.Findings {
		w.WriteString(finding.Message())
		w.WriteByte('\n')
	}

	for _, warning := range r.Warnings {
		w.WriteString("warning: " + warning + "\n")
	}

	w.WriteString(r.Summary())
	w.WriteByte('\n')
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
