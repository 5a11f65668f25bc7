package rules

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MaxFuzzyHits bounds the number of rule matches combined by Expand. Each
// hit doubles the number of alternatives, so matches past the first
// MaxFuzzyHits (in rule order, then position) are not combined.
const MaxFuzzyHits = 10

// Or joins alternatives in a full-text query.
const Or = " OR "

// FuzzyStore persists the toggle state of named fuzzy rules per schema.
type FuzzyStore interface {
	FuzzyState(ctx context.Context, schemaID string) (string, error)
	SaveFuzzyState(ctx context.Context, schemaID, state string) error
}

// FuzzySet is a fuzzy rule list with named on/off toggles. Rules with an
// empty tag are always on; tagged rules start off.
type FuzzySet struct {
	rules List
	names []string

	mu      sync.RWMutex
	enabled map[string]bool
}

// NewFuzzySet collects the distinct tags of rules in declaration order.
func NewFuzzySet(rules List) *FuzzySet {
	f := &FuzzySet{rules: rules, enabled: make(map[string]bool)}
	seen := make(map[string]bool)
	for _, r := range rules {
		if r.Tag != "" && !seen[r.Tag] {
			seen[r.Tag] = true
			f.names = append(f.names, r.Tag)
		}
	}
	return f
}

// Names returns the toggle names in declaration order.
func (f *FuzzySet) Names() []string {
	return append([]string(nil), f.names...)
}

// Enabled reports whether the named toggle is on.
func (f *FuzzySet) Enabled(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled[name]
}

// Set switches a toggle. It reports false for an unknown name.
func (f *FuzzySet) Set(name string, on bool) bool {
	known := false
	for _, n := range f.names {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return false
	}
	f.mu.Lock()
	f.enabled[name] = on
	f.mu.Unlock()
	return true
}

// State encodes the toggles as a string of '0' and '1', one per name.
func (f *FuzzySet) State() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var b strings.Builder
	for _, n := range f.names {
		if f.enabled[n] {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Restore applies a string produced by State. Extra or missing positions
// are ignored.
func (f *FuzzySet) Restore(state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.names {
		f.enabled[n] = i < len(state) && state[i] == '1'
	}
}

type hit struct {
	rule *Rule
	pos  int
}

// Alternatives returns input followed by every distinct spelling produced
// by applying a non-empty subset of the active rule matches. Subsets are
// enumerated in ascending bitmask order, so the result is deterministic.
func (f *FuzzySet) Alternatives(input string) []string {
	out := []string{input}
	if f == nil || len(f.rules) == 0 {
		return out
	}

	f.mu.RLock()
	var hits []hit
	for i := range f.rules {
		r := &f.rules[i]
		if r.re == nil || (r.Tag != "" && !f.enabled[r.Tag]) {
			continue
		}
		for _, loc := range r.re.FindAllStringIndex(input, -1) {
			hits = append(hits, hit{rule: r, pos: loc[0]})
		}
	}
	f.mu.RUnlock()

	if len(hits) > MaxFuzzyHits {
		hits = hits[:MaxFuzzyHits]
	}
	// Hits are applied right to left so a replacement that changes length
	// never moves a position still to be rewritten.
	order := make([]int, len(hits))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool { return hits[order[a]].pos > hits[order[b]].pos })

	seen := map[string]bool{input: true}
	for mask := 1; mask < 1<<len(hits); mask++ {
		p := input
		for _, j := range order {
			if mask&(1<<j) != 0 {
				p = hits[j].rule.replaceFrom(p, hits[j].pos)
			}
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Expand joins Alternatives with Or.
func (f *FuzzySet) Expand(input string) string {
	return strings.Join(f.Alternatives(input), Or)
}
