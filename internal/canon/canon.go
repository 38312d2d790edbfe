// Package canon resolves free-text pickup and drop-off locations to canonical
// site names using an alias table.
//
// Canonicalization is pure and idempotent: Canonicalize(Canonicalize(s)) ==
// Canonicalize(s) for every s. Tables are built once and never mutated, so a
// *Table is safe for concurrent use.
package canon

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRetailers are keywords that mark "<noise> at <store>" phrasing,
// where only the text after the last " at " names the site.
var DefaultRetailers = []string{"mariano"}

// DefaultAliases is the built-in table used when no alias file is supplied.
var DefaultAliases = map[string][]string{
	"Aldi Wicker Park":     {"aldi wp", "wicker park aldi", "aldi n milwaukee", "aldi n milwaukee ave", "aldis wp", "aldis wicker park"},
	"Aldi Hodgkins":        {},
	"Aldi Lyons":           {},
	"Aldi Cicero":          {},
	"Aldi Englewood":       {},
	"UC":                   {},
	"Love Fridge":          {"love fridges"},
	"NA4J":                 {},
	"LSRSN":                {"ls rsn"},
	"Mariano's":            {"marianos"},
	"Mariano's South Loop": {"sl mariano's", "marianos sl", "mariano's sl", "marianos south loop", "south loop marianos", "south loop mariano's"},
}

// rule is one ordered lead-in alternative; the first capture group keeps
// the location.
type rule struct {
	name  string
	regex *regexp.Regexp
}

var leadInRules = []rule{
	{name: "picked_up_when_at", regex: regexp.MustCompile(`(?i)^[A-Za-z0-9 /&'’.-]+\s+picked\s+up\s+(?:this\s+morning|earlier\s+today|today)?\s+at\s+(.+)$`)},
	{name: "picked_up_at", regex: regexp.MustCompile(`(?i)^[A-Za-z0-9 /&'’.-]+\s+picked\s+up\s+at\s+(.+)$`)},
	{name: "picked_up_from", regex: regexp.MustCompile(`(?i)^[A-Za-z0-9 /&'’.-]+\s+picked\s+up\s+from\s+(.+)$`)},
	{name: "took_from", regex: regexp.MustCompile(`(?i)^[A-Za-z0-9 /&'’.-]+\s+took\s+(?:directly\s+)?from\s+(.+)$`)},
}

var (
	lastAtRE        = regexp.MustCompile(`(?is)^.* at (.*)$`)
	leadingFromRE   = regexp.MustCompile(`(?i)^\s*from\s+`)
	trailingPunctRE = regexp.MustCompile(`\s*[:;,-]+\s*$`)
	trailingTookRE  = regexp.MustCompile(`(?i)\btook\b\s*$`)
	nonAlnumRE      = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpaceRE    = regexp.MustCompile(`\s+`)
)

// Table maps normalized alias keys to canonical names.
type Table struct {
	aliases   map[string]string
	keys      []string // alias keys, longest first, then lexicographic
	canonical map[string]struct{}
	retailers []string
}

// NewTable builds a table from canonical name → aliases. Each canonical name
// is registered as its own alias and wins over any colliding alias.
func NewTable(entries map[string][]string, retailers ...string) *Table {
	t := &Table{
		aliases:   map[string]string{},
		canonical: map[string]struct{}{},
	}
	if len(retailers) == 0 {
		retailers = DefaultRetailers
	}
	for _, r := range retailers {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			t.retailers = append(t.retailers, r)
		}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		canon := strings.TrimSpace(name)
		for _, alias := range entries[name] {
			if key := NormalizeKey(alias); key != "" {
				t.aliases[key] = canon
			}
		}
	}
	for _, name := range names {
		canon := strings.TrimSpace(name)
		t.canonical[canon] = struct{}{}
		if key := NormalizeKey(canon); key != "" {
			t.aliases[key] = canon
		}
	}

	t.keys = make([]string, 0, len(t.aliases))
	for k := range t.aliases {
		t.keys = append(t.keys, k)
	}
	sort.Slice(t.keys, func(i, j int) bool {
		if len(t.keys[i]) != len(t.keys[j]) {
			return len(t.keys[i]) > len(t.keys[j])
		}
		return t.keys[i] < t.keys[j]
	})
	return t
}

// Default returns a table built from DefaultAliases.
func Default() *Table {
	return NewTable(DefaultAliases)
}

// Load reads an alias file (JSON or YAML: canonical name → list of aliases).
// An empty path or a missing file yields the default table and no error.
// An unreadable or invalid file yields the default table and an error the
// caller should report as a warning.
func Load(path string) (*Table, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("reading alias table %s: %w", path, err)
	}
	var entries map[string][]string
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return Default(), fmt.Errorf("parsing alias table %s: %w", path, err)
	}
	if len(entries) == 0 {
		return Default(), fmt.Errorf("alias table %s is empty", path)
	}
	return NewTable(entries), nil
}

// Len returns the number of alias keys.
func (t *Table) Len() int { return len(t.aliases) }

// Canonicals returns the canonical names in sorted order.
func (t *Table) Canonicals() []string {
	out := make([]string, 0, len(t.canonical))
	for name := range t.canonical {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Canonicalize resolves raw to a canonical site name. When no alias matches
// it returns the cleaned raw text, or "" if cleaning left nothing.
func (t *Table) Canonicalize(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if _, ok := t.canonical[value]; ok {
		return value
	}

	cleaned := t.Clean(value)
	key := NormalizeKey(cleaned)
	if key == "" {
		return cleaned
	}
	if canon, ok := t.aliases[key]; ok {
		return canon
	}
	for _, alias := range t.keys {
		if strings.Contains(key, alias) {
			return t.aliases[alias]
		}
	}
	return cleaned
}

// Clean strips lead-in clauses and trailing noise from a raw location until
// nothing more changes.
func (t *Table) Clean(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		prev := s
		s = t.cleanOnce(s)
		if s == prev {
			return s
		}
	}
}

func (t *Table) cleanOnce(s string) string {
	for _, r := range leadInRules {
		if m := r.regex.FindStringSubmatch(s); m != nil {
			s = strings.Trim(m[1], " :-")
			break
		}
	}

	if t.hasRetailer(s) {
		if m := lastAtRE.FindStringSubmatch(s); m != nil {
			if after := strings.Trim(m[1], " :-"); after != "" {
				s = after
			}
		}
	}

	s = leadingFromRE.ReplaceAllString(s, "")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	s = trailingPunctRE.ReplaceAllString(s, "")
	s = trailingTookRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func (t *Table) hasRetailer(s string) bool {
	lower := strings.ToLower(s)
	if !strings.Contains(lower, " at ") {
		return false
	}
	for _, r := range t.retailers {
		if strings.Contains(lower, r) {
			return true
		}
	}
	return false
}

// NormalizeKey lowercases s, replaces non-alphanumerics with spaces and
// collapses whitespace.
func NormalizeKey(s string) string {
	key := nonAlnumRE.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(multiSpaceRE.ReplaceAllString(key, " "))
}
