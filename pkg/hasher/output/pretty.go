package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/jamesainslie/hasher/pkg/hasher/verify"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if r.ListsRecords() {
		w.WriteString(f.formatRecords(r))
	}
	if len(r.Findings) > 0 {
		w.WriteString(f.formatFindings(r))
	}

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		LabelStyle.Render("Root:") + " " + ValueStyle.Render(r.Root),
		LabelStyle.Render("Manifest:") + " " + ValueStyle.Render(r.Manifest) + "  " +
			LabelStyle.Render("Checksum:") + " " + ValueStyle.Render(r.ChecksumHex()),
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatRecords(r *Result) string {
	var sb strings.Builder

	width := 8
	for _, rec := range r.Records {
		width = max(width, len(rec.FormatValue()))
	}

	header := "SIZE"
	if r.Kind != types.Size {
		header = "VALUE"
	}
	fmt.Fprintf(&sb, "  %s  %s\n", TableHeaderStyle.Render(padLeft(header, width)), TableHeaderStyle.Render("PATH"))
	for _, rec := range r.Records {
		fmt.Fprintf(&sb, "  %s  %s\n",
			SizeStyle.Render(padLeft(rec.FormatValue(), width)),
			PathStyle.Render(rec.RelativePath))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFindings(r *Result) string {
	var sb strings.Builder
	for _, finding := range r.Findings {
		style := ErrorStyle
		if finding.Status == verify.StatusMissing {
			style = WarningStyle
		}
		sb.WriteString("  " + style.Render(string(finding.Status)) + "  " + PathStyle.Render(finding.Message()) + "\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	var parts []string

	if r.Mode == ModeVerify {
		parts = append(parts, LabelStyle.Render("Checked:")+" "+ValueStyle.Render(fmt.Sprint(r.Files)))
		if r.Passed() {
			parts = append(parts, SuccessStyle.Render("OK"))
		} else {
			parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d invalid", r.Invalid)))
		}
		if r.Missing > 0 {
			parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d missing", r.Missing)))
		}
		if r.Untracked > 0 {
			parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d untracked", r.Untracked)))
		}
	} else {
		parts = append(parts, LabelStyle.Render("Files:")+" "+ValueStyle.Render(fmt.Sprint(r.Files)))
		if r.ListsRecords() {
			parts = append(parts, LabelStyle.Render("Total:")+" "+SizeStyle.Render(formatBytes(r.TotalSize())))
		}
	}

	parts = append(parts, MutedStyle.Render("in "+formatDuration(r.Duration)))
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
