// Package scanner enumerates the regular files of a directory tree for
// manifest generation. It walks with fastwalk, never follows symbolic links,
// and treats any traversal error as fatal: a partial listing would produce a
// manifest with gaps nobody could detect later.
package scanner

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/hasher/pkg/hasher/filter"
)

// SymlinkPolicy decides what happens when the walk meets a symbolic link.
type SymlinkPolicy int

const (
	// SymlinksError fails the enumeration on the first symbolic link.
	SymlinksError SymlinkPolicy = iota
	// SymlinksSkip ignores symbolic links.
	SymlinksSkip
)

// String returns the config name of the policy.
func (p SymlinkPolicy) String() string {
	if p == SymlinksSkip {
		return "skip"
	}
	return "error"
}

// ParseSymlinkPolicy parses "error" or "skip" (case-insensitive).
// The empty string selects the default, SymlinksError.
func ParseSymlinkPolicy(s string) (SymlinkPolicy, error) {
	switch strings.ToLower(s) {
	case "", "error":
		return SymlinksError, nil
	case "skip":
		return SymlinksSkip, nil
	default:
		return SymlinksError, fmt.Errorf("invalid symlink policy %q: want error or skip", s)
	}
}

// Options configures the scanner behavior.
type Options struct {
	// Root is the directory to enumerate. It is required.
	Root string

	// Exclude rejects files by '/'-separated path relative to Root.
	// Nil excludes nothing.
	Exclude filter.Predicate

	// Symlinks selects the symbolic link policy.
	Symlinks SymlinkPolicy

	// Workers is the number of fastwalk workers. Zero lets fastwalk decide.
	Workers int
}
