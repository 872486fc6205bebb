// Package output provides formatters for displaying hasher run results
// in various output formats (pretty, plain, json, yaml, template).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("plain")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/jamesainslie/hasher/pkg/hasher/verify"
)

// Mode identifies the operation that produced a Result.
type Mode string

const (
	// ModeGenerate is a manifest generation.
	ModeGenerate Mode = "generate"
	// ModeVerify is a verification.
	ModeVerify Mode = "verify"
)

// Result contains the complete output data for formatting.
type Result struct {
	// Mode is the operation that ran.
	Mode Mode `json:"mode" yaml:"mode"`

	// Root is the absolute scan root.
	Root string `json:"root" yaml:"root"`

	// Kind is the manifest metric kind.
	Kind types.Kind `json:"kind" yaml:"kind"`

	// Manifest is the manifest file name.
	Manifest string `json:"manifest" yaml:"manifest"`

	// Checksum is the manifest self-checksum.
	Checksum uint64 `json:"checksum" yaml:"checksum"`

	// Files is the number of files processed (generate) or records checked
	// (verify).
	Files int `json:"files" yaml:"files"`

	// Records are the generated records. Text formatters list them only
	// for size manifests.
	Records []types.Record `json:"records,omitempty" yaml:"records,omitempty"`

	// Findings are the verification discrepancies.
	Findings []verify.Finding `json:"findings,omitempty" yaml:"findings,omitempty"`

	// Invalid, Missing, and Untracked are the verification counts.
	Invalid   int `json:"invalid" yaml:"invalid"`
	Missing   int `json:"missing" yaml:"missing"`
	Untracked int `json:"untracked" yaml:"untracked"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Warnings contains messages about recoverable problems.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ChecksumHex returns the checksum as uppercase hex.
func (r *Result) ChecksumHex() string {
	return fmt.Sprintf("%X", r.Checksum)
}

// Passed reports whether a verification found no counted failure.
func (r *Result) Passed() bool {
	return r.Invalid == 0
}

// ListsRecords reports whether text output lists every record.
func (r *Result) ListsRecords() bool {
	return r.Kind == types.Size && len(r.Records) > 0
}

// TotalSize returns the sum of listed Size record values.
func (r *Result) TotalSize() uint64 {
	var total uint64
	for _, rec := range r.Records {
		if rec.Kind == types.Size {
			total += rec.Value
		}
	}
	return total
}

// Summary returns the closing lines every formatter agrees on.
func (r *Result) Summary() string {
	if r.Mode == ModeVerify {
		return fmt.Sprintf("%d invalid files.\n'%s' checksum: %s", r.Invalid, r.Manifest, r.ChecksumHex())
	}
	return fmt.Sprintf("%d files processed.\n'%s' checksum: %s", r.Files, r.Manifest, r.ChecksumHex())
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name. The name "template=<text>"
// builds a TemplateFormatter from text.
func (r *Registry) Get(name string) (Formatter, error) {
	if text, ok := strings.CutPrefix(name, templatePrefix); ok {
		return NewTemplateFormatter(text), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
