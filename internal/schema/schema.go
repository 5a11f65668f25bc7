package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tcime/internal/rules"
)

//go:embed default.yaml
var defaultDocument []byte

//go:embed schema.json
var documentSchema []byte

// Engine kinds.
const (
	EngineScript  = "script"
	EngineCangjie = "cangjie"
	EngineZhuyin  = "zhuyin"
)

var (
	// ErrNotFound is returned by a Source that has no document for an id.
	ErrNotFound = errors.New("schema: not found")
	// ErrInvalid wraps document validation failures.
	ErrInvalid = errors.New("schema: invalid document")
)

// Switch names.
const (
	SwitchASCIIMode = "ascii_mode"
	SwitchFullShape = "full_shape"
)

// PatternReverseLookup is the recognizer pattern that routes composing
// text to the reverse lookup dictionary.
const PatternReverseLookup = "reverse_lookup"

// Switch is a named two-state option such as ascii_mode.
type Switch struct {
	Name   string
	States [2]string
	// Reset is the state a schema starts in, or -1 to keep the current one.
	Reset int
}

// Label returns the display name of state on or off.
func (sw Switch) Label(on bool) string {
	if on {
		return sw.States[1]
	}
	return sw.States[0]
}

// Schema is a resolved input schema.
type Schema struct {
	ID          string
	Name        string
	Version     string
	Author      []string
	Description string

	// Engine selects the composing scheme: EngineScript, EngineCangjie or
	// EngineZhuyin. Simplified applies to Cangjie only.
	Engine      string
	Simplified  bool
	WordTable   string
	PhraseTable string

	Alphabet      string
	Initials      string
	Delimiter     string
	MaxCodeLength int

	// Table is the dictionary store table queried by script schemas.
	Table string
	// ReverseTable is the store table searched when the composing text
	// matches the reverse_lookup pattern.
	ReverseTable string

	Preedit rules.List
	Comment rules.List
	Lookup  rules.List
	Speller rules.Speller
	Fuzzy   *rules.FuzzySet

	// AutoSelectSyllable triggers auto-selection when it matches the
	// whole composing text.
	AutoSelectSyllable *regexp.Regexp
	// Patterns are the recognizer patterns, e.g. reverse_lookup.
	Patterns map[string]*regexp.Regexp

	Switches []Switch
}

// Title returns the name and version for display.
func (s *Schema) Title() string {
	return strings.TrimSpace(s.Name + " " + s.Version)
}

// Info returns the non-empty author and description lines.
func (s *Schema) Info() []string {
	var out []string
	for _, a := range s.Author {
		if a != "" {
			out = append(out, a)
		}
	}
	for _, l := range strings.Split(s.Description, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// IsAlphabet reports whether key may be appended to composing text. The
// first key of a composition must also be an initial when the schema lists
// initials.
func (s *Schema) IsAlphabet(composing, key string) bool {
	if key == "" {
		return false
	}
	if composing == "" && s.Initials != "" && len([]rune(key)) == 1 && !strings.Contains(s.Initials, key) {
		return false
	}
	for _, c := range key {
		if !strings.ContainsRune(s.Alphabet, c) {
			return false
		}
	}
	return true
}

// Recognizes reports whether text matches one of the recognizer patterns.
// Recognized text is composed as typed, outside the alphabet.
func (s *Schema) Recognizes(text string) bool {
	for _, re := range s.Patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ReverseLookupCode returns the code to search in ReverseTable when text
// matches the reverse_lookup pattern: text without its leading symbols
// that are not in the alphabet.
func (s *Schema) ReverseLookupCode(text string) (string, bool) {
	re := s.Patterns[PatternReverseLookup]
	if re == nil || s.ReverseTable == "" || !re.MatchString(text) {
		return "", false
	}
	return strings.TrimLeftFunc(text, func(r rune) bool {
		return !strings.ContainsRune(s.Alphabet, r)
	}), true
}

// Switch returns the named switch.
func (s *Schema) Switch(name string) (Switch, bool) {
	for _, sw := range s.Switches {
		if sw.Name == name {
			return sw, true
		}
	}
	return Switch{}, false
}

// IsAutoSelect reports whether text should auto-select its top candidate.
func (s *Schema) IsAutoSelect(text string) bool {
	return s.AutoSelectSyllable != nil && s.AutoSelectSyllable.MatchString(text)
}

var (
	validatorOnce sync.Once
	validator     *jsonschema.Schema
	validatorErr  error
	defaults      *Node
	defaultsErr   error
)

func compiled() (*jsonschema.Schema, *Node, error) {
	validatorOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tcime-schema.json", bytes.NewReader(documentSchema)); err != nil {
			validatorErr = fmt.Errorf("schema: add document schema: %w", err)
			return
		}
		validator, validatorErr = compiler.Compile("tcime-schema.json")
		if validatorErr != nil {
			validatorErr = fmt.Errorf("schema: compile document schema: %w", validatorErr)
			return
		}
		defaults, defaultsErr = Parse(defaultDocument)
	})
	if validatorErr != nil {
		return nil, nil, validatorErr
	}
	return validator, defaults, defaultsErr
}

// Defaults returns the built-in default document.
func Defaults() (*Node, error) {
	_, d, err := compiled()
	return d, err
}

// Validate checks a document against the document schema.
func Validate(n *Node) error {
	v, _, err := compiled()
	if err != nil {
		return err
	}
	if err := v.Validate(n.Plain()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Load parses, merges, validates and resolves a schema document. id names
// the schema when the document has no schema/schema_id.
func Load(id string, data []byte) (*Schema, error) {
	active, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(active); err != nil {
		return nil, err
	}
	d, err := Defaults()
	if err != nil {
		return nil, err
	}
	merged := Merge(active, d)
	if _, ok := active.String("schema/schema_id"); !ok && id != "" {
		merged = Merge(&Node{Kind: MapNode, Keys: []string{"schema"}, Fields: map[string]*Node{
			"schema": {Kind: MapNode, Keys: []string{"schema_id"}, Fields: map[string]*Node{
				"schema_id": {Kind: ScalarNode, Value: id, Tag: "str"},
			}},
		}}, merged)
	}
	return Resolve(merged)
}

// Resolve turns a merged document into a Schema, compiling every rule and
// pattern.
func Resolve(n *Node) (*Schema, error) {
	s := &Schema{
		ID:            n.StringOr("schema/schema_id", "default"),
		Name:          n.StringOr("schema/name", ""),
		Version:       n.StringOr("schema/version", ""),
		Author:        n.Strings("schema/author"),
		Description:   n.StringOr("schema/description", ""),
		Engine:        n.StringOr("engine/kind", EngineScript),
		Simplified:    n.Bool("engine/simplified", false),
		WordTable:     n.StringOr("engine/word_table", ""),
		PhraseTable:   n.StringOr("engine/phrase_table", ""),
		Alphabet:      n.StringOr("speller/alphabet", ""),
		Initials:      n.StringOr("speller/initials", ""),
		Delimiter:     n.StringOr("speller/delimiter", ""),
		MaxCodeLength: n.Int("speller/max_code_length", 0),
		Table:         n.StringOr("translator/dictionary", ""),
		ReverseTable:  n.StringOr("reverse_lookup/dictionary", ""),
		Patterns:      make(map[string]*regexp.Regexp),
	}

	var err error
	if s.Preedit, err = ruleList(n, "translator/preedit_format", rules.Parse); err != nil {
		return nil, err
	}
	if s.Comment, err = ruleList(n, "translator/comment_format", rules.Parse); err != nil {
		return nil, err
	}
	if s.Lookup, err = ruleList(n, "trime/lookup", rules.Parse); err != nil {
		return nil, err
	}
	spell, err := ruleList(n, "trime/spell", rules.Parse)
	if err != nil {
		return nil, err
	}
	fuzzy, err := ruleList(n, "trime/fuzzy", rules.ParseFuzzy)
	if err != nil {
		return nil, err
	}
	s.Fuzzy = rules.NewFuzzySet(fuzzy)

	s.Speller = rules.Speller{Spell: spell, Delimiter: s.Delimiter}
	if p, ok := n.String("trime/syllable"); ok {
		if s.Speller.Syllable, err = rules.CompileWhole(p); err != nil {
			return nil, err
		}
	}
	if p, ok := n.String("trime/auto_select_syllable"); ok {
		if s.AutoSelectSyllable, err = rules.CompileWhole(p); err != nil {
			return nil, err
		}
	}
	if pats := n.Get("recognizer/patterns"); pats != nil && pats.Kind == MapNode {
		for _, k := range pats.Keys {
			p, ok := pats.String(k)
			if !ok {
				continue
			}
			if s.Patterns[k], err = rules.CompileWhole(p); err != nil {
				return nil, err
			}
		}
	}
	if sw := n.Get("switches"); sw != nil && sw.Kind == ListNode {
		for _, it := range sw.Items {
			name, ok := it.String("name")
			if !ok {
				continue
			}
			st := Switch{Name: name, Reset: it.Int("reset", -1)}
			for i, v := range it.Strings("states") {
				if i < 2 {
					st.States[i] = v
				}
			}
			s.Switches = append(s.Switches, st)
		}
	}

	switch s.Engine {
	case EngineScript, EngineCangjie, EngineZhuyin:
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalid, s.Engine)
	}
	if s.Engine == EngineScript && s.Table == "" {
		return nil, fmt.Errorf("%w: translator/dictionary is required", ErrInvalid)
	}
	return s, nil
}

func ruleList(n *Node, path string, parse func(string) (rules.Rule, error)) (rules.List, error) {
	list, err := rules.ParseList(n.Strings(path), parse)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return list, nil
}
