package parser

import (
	"fmt"
	"strings"
)

// Directive parses the remainder of a row that starts with its prefix.
type Directive interface {
	// Prefix returns the two-character row prefix, e.g. "P ".
	Prefix() string
	// Parse parses the row content following the prefix.
	Parse(rest string) RowResult
}

// Registry holds the known row directives.
type Registry struct {
	directives []Directive
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry returns a registry with the label and line directives.
func NewRegistry() *Registry {
	return &Registry{
		directives: []Directive{
			labelDirective{},
			lineDirective{},
		},
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds a directive. A directive with the same prefix replaces the existing one.
func (r *Registry) Register(d Directive) {
	for i, existing := range r.directives {
		if existing.Prefix() == d.Prefix() {
			r.directives[i] = d
			return
		}
	}
	r.directives = append(r.directives, d)
}

// Lookup returns the directive registered for a prefix.
func (r *Registry) Lookup(prefix string) (Directive, bool) {
	for _, d := range r.directives {
		if d.Prefix() == prefix {
			return d, true
		}
	}
	return nil, false
}

// Prefixes lists the registered prefixes, trimmed, for diagnostics.
func (r *Registry) Prefixes() []string {
	out := make([]string, 0, len(r.directives))
	for _, d := range r.directives {
		out = append(out, strings.TrimSpace(d.Prefix()))
	}
	return out
}

// ParseRow classifies a row by its first two bytes and parses it.
func (r *Registry) ParseRow(s string) RowResult {
	if len(s) < 2 {
		return skipped(ErrUnrecognized)
	}
	d, ok := r.Lookup(s[:2])
	if !ok {
		return skipped(fmt.Errorf("%w: prefix %q", ErrUnrecognized, s[:2]))
	}
	return d.Parse(s[2:])
}
