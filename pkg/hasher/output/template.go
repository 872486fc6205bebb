package output

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/dustin/go-humanize"
)

// templatePrefix selects a TemplateFormatter in Registry.Get.
const templatePrefix = "template="

// TemplateFormatter formats output using a custom Go text/template. The
// template receives the *Result.
//
// Example:
//
//	-o 'template={{range .Records}}{{.RelativePath}} {{bytes .Value}}{{"\n"}}{{end}}'
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// NewTemplateFormatter creates a new template formatter with the given template string.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{
		templateStr: templateStr,
	}
}

// templateFuncs returns the custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// bytes formats a size in bytes as a human-readable string.
		"bytes": func(size uint64) string {
			return humanize.IBytes(size)
		},
		// hex formats a value as uppercase hex.
		"hex": func(v uint64) string {
			return fmt.Sprintf("%X", v)
		},
		"duration": formatDuration,
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return fmt.Errorf("invalid output template: %w", err)
		}
		f.template = tmpl
	}

	return f.template.Execute(w, r)
}

// Ensure TemplateFormatter implements Formatter.
var _ Formatter = (*TemplateFormatter)(nil)
