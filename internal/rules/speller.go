package rules

import (
	"regexp"
	"strings"
)

// Speller decides whether composed text splits into valid syllables and
// normalises spelling as keys arrive.
type Speller struct {
	// Spell rewrites the raw key sequence.
	Spell List
	// Syllable must match a whole syllable. Nil accepts anything.
	Syllable *regexp.Regexp
	// Delimiter separates syllables; only its first rune is inserted.
	Delimiter string
}

// Separator returns the delimiter inserted between syllables, or "".
func (s Speller) Separator() string {
	for _, c := range s.Delimiter {
		return string(c)
	}
	return ""
}

// IsDelimiter reports whether key is one of the delimiter runes. A space
// never counts, it is reserved for candidate selection.
func (s Speller) IsDelimiter(key string) bool {
	return key != "" && key[0] != ' ' && s.Delimiter != "" && strings.Contains(s.Delimiter, key)
}

// IsSyllable reports whether every delimiter-separated part of text is a
// syllable.
func (s Speller) IsSyllable(text string) bool {
	if s.Syllable == nil {
		return true
	}
	sep := s.Separator()
	if sep == "" {
		return s.Syllable.MatchString(text)
	}
	parts := strings.Split(text, sep)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for _, p := range parts {
		if !s.Syllable.MatchString(p) {
			return false
		}
	}
	return true
}

// Segment appends text to prefix and rewrites the result with the spell
// rules. If that is not a syllable sequence, it retries with a delimiter
// between prefix and text.
func (s Speller) Segment(prefix, text string) (string, bool) {
	out := s.Spell.Apply(prefix + text)
	if s.IsSyllable(out) {
		return out, true
	}
	if sep := s.Separator(); sep != "" {
		out = s.Spell.Apply(prefix + sep + text)
		if s.IsSyllable(out) {
			return out, true
		}
	}
	return "", false
}
