// Package history records generation and verification runs in a badger
// store. It keeps the manifest self-checksum of every run so a later
// verification can tell whether the manifest changed since it was
// generated. History never caches metrics: records are always recomputed.
package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
)

// Operation represents the type of run.
type Operation string

const (
	// OpGenerate is a manifest generation.
	OpGenerate Operation = "generate"
	// OpVerify is a verification against an existing manifest.
	OpVerify Operation = "verify"
)

// Run is one recorded invocation.
type Run struct {
	ID        string        `json:"id" yaml:"id"`
	Time      time.Time     `json:"time" yaml:"time"`
	Operation Operation     `json:"operation" yaml:"operation"`
	Root      string        `json:"root" yaml:"root"`
	Kind      types.Kind    `json:"kind" yaml:"kind"`
	Manifest  string        `json:"manifest" yaml:"manifest"`
	Checksum  uint64        `json:"checksum" yaml:"checksum"`
	Files     int           `json:"files" yaml:"files"`
	Invalid   int           `json:"invalid,omitempty" yaml:"invalid,omitempty"`
	Missing   int           `json:"missing,omitempty" yaml:"missing,omitempty"`
	Untracked int           `json:"untracked,omitempty" yaml:"untracked,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// NewRun returns a run with a fresh ID stamped with the current time.
func NewRun(op Operation, root string, kind types.Kind) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Time:      time.Now(),
		Operation: op,
		Root:      root,
		Kind:      kind,
	}
}

// ShortID returns the first eight characters of the ID for display.
func (r *Run) ShortID() string {
	if len(r.ID) < 8 {
		return r.ID
	}
	return r.ID[:8]
}
