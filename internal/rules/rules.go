// Package rules parses and applies the text-rewriting rules of an input
// schema: transliteration tables, regular-expression rewrites, fuzzy
// spelling alternatives and syllable segmentation.
//
// A rule is written "kind/pattern/replacement[/tag]". When the rule text
// contains a space, fields are separated by spaces instead and slashes are
// literal. "\/" escapes a slash inside a field.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Kind selects how a rule rewrites its input.
type Kind int

const (
	// Rewrite replaces every match of a regular expression.
	Rewrite Kind = iota
	// Transliterate replaces symbols position by position.
	Transliterate
)

func (k Kind) String() string {
	if k == Transliterate {
		return "xlit"
	}
	return "xform"
}

// ErrMalformed is returned for rule text with too few fields.
var ErrMalformed = errors.New("rules: malformed rule")

// Rule is one parsed rewriting rule.
type Rule struct {
	Kind        Kind
	Op          string
	Pattern     string
	Replacement string
	Tag         string

	re       *regexp.Regexp
	template string
	from, to []string
}

// List is an ordered rule list applied as a left fold.
type List []Rule

// Cache holds compiled regular expressions keyed by their source.
type Cache struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{compiled: make(map[string]*regexp.Regexp)}
}

// Compile returns the compiled form of pattern, compiling it on first use.
func (c *Cache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rules: compile %q: %w", pattern, err)
	}
	c.compiled[pattern] = re
	return re, nil
}

// Len returns the number of cached expressions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.compiled)
}

var patterns = NewCache()

// Compile compiles pattern through the shared cache.
func Compile(pattern string) (*regexp.Regexp, error) {
	return patterns.Compile(pattern)
}

// CompileWhole compiles pattern so that it must match the entire input.
func CompileWhole(pattern string) (*regexp.Regexp, error) {
	return patterns.Compile(`^(?:` + pattern + `)$`)
}

// Split breaks rule text into at most four fields.
func Split(s string) []string {
	if strings.Contains(s, " ") {
		return strings.SplitN(s, " ", 4)
	}
	var fields []string
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		if c == '\\' && i+1 < len(rs) && rs[i+1] == '/' {
			b.WriteRune('/')
			i++
			continue
		}
		if c == '/' && len(fields) < 3 {
			fields = append(fields, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(c)
	}
	return append(fields, b.String())
}

// Parse parses "kind/pattern/replacement[/tag]".
func Parse(s string) (Rule, error) {
	f := Split(s)
	if len(f) < 3 {
		return Rule{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	r := Rule{Op: f[0], Pattern: f[1], Replacement: f[2]}
	if len(f) > 3 {
		r.Tag = f[3]
	}
	if r.Op == "xlit" {
		r.Kind = Transliterate
	}
	if err := r.compile(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// ParseFuzzy parses a fuzzy rule "tag/pattern/replacement". An empty tag
// makes the rule always active.
func ParseFuzzy(s string) (Rule, error) {
	f := Split(s)
	if len(f) < 3 {
		return Rule{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	r := Rule{Kind: Rewrite, Op: "fuzz", Tag: f[0], Pattern: f[1], Replacement: f[2]}
	if err := r.compile(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// ParseList parses every rule of src with parse.
func ParseList(src []string, parse func(string) (Rule, error)) (List, error) {
	if len(src) == 0 {
		return nil, nil
	}
	list := make(List, 0, len(src))
	for _, s := range src {
		r, err := parse(s)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, nil
}

func (r *Rule) compile() error {
	if r.Kind == Transliterate {
		r.from, r.to = tokens(r.Pattern), tokens(r.Replacement)
		return nil
	}
	re, err := Compile(r.Pattern)
	if err != nil {
		return err
	}
	r.re = re
	r.template = goTemplate(r.Replacement)
	return nil
}

func tokens(s string) []string {
	if strings.Contains(s, "|") {
		return strings.Split(s, "|")
	}
	out := make([]string, 0, len(s))
	for _, c := range s {
		out = append(out, string(c))
	}
	return out
}

// goTemplate rewrites "$1" group references to "${1}" so that a letter
// following the reference is not read as part of a group name. "\x" yields
// a literal x.
func goTemplate(repl string) string {
	var b strings.Builder
	rs := []rune(repl)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '\\' && i+1 < len(rs):
			i++
			if rs[i] == '$' {
				b.WriteString("$$")
			} else {
				b.WriteRune(rs[i])
			}
		case c == '$' && i+1 < len(rs) && rs[i+1] >= '0' && rs[i+1] <= '9':
			j := i + 1
			for j < len(rs) && rs[j] >= '0' && rs[j] <= '9' {
				j++
			}
			b.WriteString("${" + string(rs[i+1:j]) + "}")
			i = j - 1
		case c == '$':
			b.WriteString("$$")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Apply rewrites s with the rule.
func (r *Rule) Apply(s string) string {
	if r.Kind == Transliterate {
		if len(r.from) != len(r.to) {
			return s
		}
		for i, from := range r.from {
			if from != "" {
				s = strings.ReplaceAll(s, from, r.to[i])
			}
		}
		return s
	}
	return r.re.ReplaceAllString(s, r.template)
}

// Matches reports whether the rule's pattern matches anywhere in s.
func (r *Rule) Matches(s string) bool {
	if r.Kind == Transliterate {
		for _, from := range r.from {
			if from != "" && strings.Contains(s, from) {
				return true
			}
		}
		return false
	}
	return r.re.MatchString(s)
}

// replaceFrom replaces the first match starting at or after pos.
func (r *Rule) replaceFrom(s string, pos int) string {
	for _, loc := range r.re.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] < pos {
			continue
		}
		dst := r.re.ExpandString(nil, r.template, s, loc)
		return s[:loc[0]] + string(dst) + s[loc[1]:]
	}
	return s
}

// Apply folds every rule of l over s. An empty list is the identity.
func (l List) Apply(s string) string {
	for i := range l {
		s = l[i].Apply(s)
	}
	return s
}
