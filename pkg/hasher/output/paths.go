package output

import (
	"bytes"
)

// paths returns the relative paths a path list reports: every record of a
// generation, or every finding of a verification.
func paths(r *Result) []string {
	if r.Mode == ModeVerify {
		out := make([]string, 0, len(r.Findings))
		for _, f := range r.Findings {
			out = append(out, f.Path)
		}
		return out
	}
	out := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		out = append(out, rec.RelativePath)
	}
	return out
}

// PathsFormatter writes one relative path per line and nothing else, for
// piping a verification's findings to other tools.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, p := range paths(r) {
		w.WriteString(p)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
}

// Ensure PathsFormatter implements Formatter.
var _ Formatter = (*PathsFormatter)(nil)

// NullFormatter writes relative paths terminated by NUL bytes, for xargs -0.
type NullFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *NullFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, p := range paths(r) {
		w.WriteString(p)
		w.WriteByte(0)
	}
	return nil
}

func init() {
	Register("null", func() Formatter {
		return &NullFormatter{}
	})
}

// Ensure NullFormatter implements Formatter.
var _ Formatter = (*NullFormatter)(nil)
