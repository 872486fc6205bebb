package output

import (
	"bytes"
	"encoding/json"

	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/jamesainslie/hasher/pkg/hasher/verify"
)

// document is the structure shared by the JSON and YAML formatters.
type document struct {
	Mode     Mode         `json:"mode" yaml:"mode"`
	Root     string       `json:"root" yaml:"root"`
	Kind     string       `json:"kind" yaml:"kind"`
	Manifest string       `json:"manifest" yaml:"manifest"`
	Checksum string       `json:"checksum" yaml:"checksum"`
	Files    int          `json:"files" yaml:"files"`
	Records  []docRecord  `json:"records,omitempty" yaml:"records,omitempty"`
	Findings []docFinding `json:"findings,omitempty" yaml:"findings,omitempty"`
	Summary  *docSummary  `json:"summary,omitempty" yaml:"summary,omitempty"`
	Duration string       `json:"duration,omitempty" yaml:"duration,omitempty"`
	Warnings []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type docRecord struct {
	Path  string `json:"path" yaml:"path"`
	Value string `json:"value" yaml:"value"`
	Raw   uint64 `json:"raw" yaml:"raw"`
}

type docFinding struct {
	Path     string `json:"path" yaml:"path"`
	Status   string `json:"status" yaml:"status"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Found    string `json:"found,omitempty" yaml:"found,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

type docSummary struct {
	Passed    bool `json:"passed" yaml:"passed"`
	Invalid   int  `json:"invalid" yaml:"invalid"`
	Missing   int  `json:"missing" yaml:"missing"`
	Untracked int  `json:"untracked" yaml:"untracked"`
}

// buildDocument converts a Result to the serialized structure. Values are
// rendered as they are displayed; Raw keeps the exact number.
func buildDocument(r *Result) document {
	doc := document{
		Mode:     r.Mode,
		Root:     r.Root,
		Kind:     r.Kind.String(),
		Manifest: r.Manifest,
		Checksum: r.ChecksumHex(),
		Files:    r.Files,
		Duration: formatDurationString(r.Duration),
		Warnings: r.Warnings,
	}

	for _, rec := range r.Records {
		doc.Records = append(doc.Records, docRecord{
			Path:  rec.RelativePath,
			Value: rec.FormatValue(),
			Raw:   rec.Value,
		})
	}

	for _, f := range r.Findings {
		df := docFinding{Path: f.Path, Status: string(f.Status), Message: f.Message()}
		if f.Kind != 0 {
			df.Expected = types.FormatValue(f.Kind, f.Expected)
			if f.Status == verify.StatusMismatch {
				df.Found = types.FormatValue(f.Kind, f.Found)
			}
		}
		doc.Findings = append(doc.Findings, df)
	}

	if r.Mode == ModeVerify {
		doc.Summary = &docSummary{
			Passed:    r.Passed(),
			Invalid:   r.Invalid,
			Missing:   r.Missing,
			Untracked: r.Untracked,
		}
	}
	return doc
}

// JSONFormatter formats output as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
