// Package capability resolves free-text printer model names to fixed
// printing profiles (paper width, command dialect, port defaults).
package capability

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Dialect is the command vocabulary a printer model understands.
type Dialect string

const (
	DialectEscPos        Dialect = "EscPos"
	DialectEscPosMobile  Dialect = "EscPosMobile"
	DialectStarPRNT      Dialect = "StarPRNT"
	DialectStarPRNTL     Dialect = "StarPRNTL"
	DialectStarLine      Dialect = "StarLine"
	DialectStarGraphic   Dialect = "StarGraphic"
	DialectStarDotImpact Dialect = "StarDotImpact"
)

// ErrNotFound is returned when no profile matches a model string.
var ErrNotFound = errors.New("capability: model not found")

// minReversePrefix is the shortest input accepted when matching a truncated
// variant name.
const minReversePrefix = 3

// Profile is the resolved capability data for one printer model.
type Profile struct {
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	Variants       []string `json:"variants,omitempty"`
	Dialect        Dialect  `json:"dialect"`
	PortSettings   string   `json:"port_settings,omitempty"`
	PaperWidthDots int      `json:"paper_width_dots"`
}

type entry struct {
	profile  Profile
	title    string
	variants []string
}

// Table is an immutable, ordered index of profiles. Lookups walk the
// profiles in declaration order and the first match wins.
type Table struct {
	name           string
	entries        []entry
	matchContained bool
}

// Option configures a Table at construction time.
type Option func(*Table)

// MatchContained adds a last lookup step that accepts any input containing
// a known variant.
func MatchContained() Option {
	return func(t *Table) {
		t.matchContained = true
	}
}

// NewTable builds a table from profiles. The profiles are copied.
func NewTable(name string, profiles []Profile, opts ...Option) *Table {
	t := &Table{
		name:    name,
		entries: make([]entry, 0, len(profiles)),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, p := range profiles {
		p.Variants = slices.Clone(p.Variants)
		e := entry{
			profile:  p,
			title:    strings.ToLower(p.Title),
			variants: make([]string, 0, len(p.Variants)),
		}
		for _, v := range p.Variants {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				e.variants = append(e.variants, v)
			}
		}
		t.entries = append(t.entries, e)
	}

	return t
}

// Name returns the table name, usually the manufacturer.
func (t *Table) Name() string {
	return t.name
}

// Resolve maps modelText to a profile. The steps are tried in order:
// exact variant, input prefixed by a variant, exact title, variant prefixed
// by the input, title containing the input, and (when enabled) input
// containing a variant.
func (t *Table) Resolve(modelText string) (Profile, error) {
	text := strings.ToLower(strings.TrimSpace(modelText))
	if text == "" {
		return Profile{}, fmt.Errorf("%w: empty model name", ErrNotFound)
	}

	steps := []func(e *entry) bool{
		func(e *entry) bool { return slices.Contains(e.variants, text) },
		func(e *entry) bool {
			return slices.ContainsFunc(e.variants, func(v string) bool { return strings.HasPrefix(text, v) })
		},
		func(e *entry) bool { return e.title == text },
		func(e *entry) bool {
			if len(text) < minReversePrefix {
				return false
			}
			return slices.ContainsFunc(e.variants, func(v string) bool { return strings.HasPrefix(v, text) })
		},
		func(e *entry) bool { return strings.Contains(e.title, text) },
	}
	if t.matchContained {
		steps = append(steps, func(e *entry) bool {
			return slices.ContainsFunc(e.variants, func(v string) bool { return strings.Contains(text, v) })
		})
	}

	for _, match := range steps {
		for i := range t.entries {
			if match(&t.entries[i]) {
				return t.entries[i].clone(), nil
			}
		}
	}

	return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, modelText)
}

// Supports reports whether modelText resolves to any profile.
func (t *Table) Supports(modelText string) bool {
	_, err := t.Resolve(modelText)
	return err == nil
}

// Titles returns the profile titles in declaration order.
func (t *Table) Titles() []string {
	titles := make([]string, len(t.entries))
	for i, e := range t.entries {
		titles[i] = e.profile.Title
	}
	return titles
}

// Profiles returns a copy of every profile in declaration order.
func (t *Table) Profiles() []Profile {
	out := make([]Profile, len(t.entries))
	for i := range t.entries {
		out[i] = t.entries[i].clone()
	}
	return out
}

func (e *entry) clone() Profile {
	p := e.profile
	p.Variants = slices.Clone(p.Variants)
	return p
}
