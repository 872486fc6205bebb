// Package filter builds the path-exclusion predicate handed to the scanner.
// Patterns are matched against the '/'-separated path relative to the scan
// root. Regular expressions match anywhere in the path (unanchored); glob
// patterns must match the whole path, with '*' stopping at '/'.
package filter

import (
	"fmt"
	"regexp"

	"github.com/gobwas/glob"
)

// Predicate reports whether a relative path should be excluded.
type Predicate func(relPath string) bool

// Filter holds compiled exclusion patterns.
type Filter struct {
	regexes []*regexp.Regexp
	globs   []glob.Glob

	// patterns keeps the source text for logging and display.
	patterns []string
}

// Option configures a Filter. Options return an error when a pattern fails
// to compile.
type Option func(*Filter) error

// New compiles the given options into a Filter.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WithRegex adds regular-expression exclusions. Empty patterns are ignored.
func WithRegex(patterns ...string) Option {
	return func(f *Filter) error {
		for _, p := range patterns {
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("invalid exclude pattern %q: %w", p, err)
			}
			f.regexes = append(f.regexes, re)
			f.patterns = append(f.patterns, p)
		}
		return nil
	}
}

// WithGlob adds glob exclusions. Empty patterns are ignored.
func WithGlob(patterns ...string) Option {
	return func(f *Filter) error {
		for _, p := range patterns {
			if p == "" {
				continue
			}
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("invalid exclude glob %q: %w", p, err)
			}
			f.globs = append(f.globs, g)
			f.patterns = append(f.patterns, p)
		}
		return nil
	}
}

// Excluded reports whether relPath matches any pattern.
func (f *Filter) Excluded(relPath string) bool {
	for _, re := range f.regexes {
		if re.MatchString(relPath) {
			return true
		}
	}
	for _, g := range f.globs {
		if g.Match(relPath) {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no patterns.
func (f *Filter) Empty() bool {
	return len(f.regexes) == 0 && len(f.globs) == 0
}

// Patterns returns the source patterns in the order they were added.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// Predicate returns the filter as a Predicate. An empty filter yields nil,
// which the scanner treats as "exclude nothing".
func (f *Filter) Predicate() Predicate {
	if f == nil || f.Empty() {
		return nil
	}
	return f.Excluded
}
