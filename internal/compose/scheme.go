package compose

import (
	"strings"
	"unicode/utf8"

	"tcime/internal/codetable"
	"tcime/internal/schema"
	"tcime/internal/zhuyin"
)

// Scheme is what a Machine needs from an input scheme.
type Scheme interface {
	// Compose applies key to text. It returns false, and text unchanged,
	// when the key does not belong to the scheme.
	Compose(text string, key rune) (string, bool)
	// Encode turns composing text into a lookup key.
	Encode(text string) string
	// Validate reports whether text is a complete code.
	Validate(text string) bool
	// DeleteLast removes the last logical unit of text.
	DeleteLast(text string) string
	// MaxCodeLength is the buffer limit in runes; zero means none.
	MaxCodeLength() int
	// AutoSelect reports whether text should pick its top candidate
	// without waiting for more keys.
	AutoSelect(text string) bool
	// Preedit formats text for the composing preview.
	Preedit(text string) string
}

func dropLastRune(text string) string {
	_, size := utf8.DecodeLastRuneInString(text)
	return text[:len(text)-size]
}

// Cangjie composes stroke codes. Latin letters a..y stand for the radical
// of the same rank.
type Cangjie struct {
	Encoder    *codetable.Encoder
	Simplified bool
}

// NewCangjie returns a Cangjie scheme over the standard encoder.
func NewCangjie(simplified bool) *Cangjie {
	return &Cangjie{Encoder: codetable.CangjieEncoder, Simplified: simplified}
}

func (c *Cangjie) radical(key rune) (rune, bool) {
	alpha := c.Encoder.Alphabet()
	if alpha.Contains(key) {
		return key, true
	}
	if key >= 'A' && key <= 'Z' {
		key += 'a' - 'A'
	}
	if key >= 'a' && key <= 'z' {
		return alpha.Letter(int(key-'a') + 1)
	}
	return 0, false
}

// Compose implements Scheme. Once the buffer is full further letters are
// consumed without effect.
func (c *Cangjie) Compose(text string, key rune) (string, bool) {
	r, ok := c.radical(key)
	if !ok {
		return text, false
	}
	if utf8.RuneCountInString(text) >= c.MaxCodeLength() {
		return text, true
	}
	return text + string(r), true
}

// Encode implements Scheme.
func (c *Cangjie) Encode(text string) string { return text }

// Validate implements Scheme.
func (c *Cangjie) Validate(text string) bool {
	return utf8.RuneCountInString(text) <= c.MaxCodeLength() && c.Encoder.Valid(text)
}

// DeleteLast implements Scheme.
func (c *Cangjie) DeleteLast(text string) string { return dropLastRune(text) }

// MaxCodeLength implements Scheme.
func (c *Cangjie) MaxCodeLength() int {
	if c.Simplified {
		return codetable.MaxSimplifiedCodeLength
	}
	return c.Encoder.MaxLength()
}

// AutoSelect implements Scheme.
func (c *Cangjie) AutoSelect(string) bool { return false }

// Preedit implements Scheme.
func (c *Cangjie) Preedit(text string) string { return text }

// Zhuyin composes one phonetic syllable by slot.
type Zhuyin struct{}

// Compose implements Scheme.
func (Zhuyin) Compose(text string, key rune) (string, bool) {
	return zhuyin.Compose(text, key)
}

// Encode implements Scheme.
func (Zhuyin) Encode(text string) string { return text }

// Validate implements Scheme.
func (Zhuyin) Validate(text string) bool {
	if !zhuyin.Valid(text) {
		return false
	}
	syllable, _, ok := zhuyin.StripTones(text)
	return ok && zhuyin.SyllableIndex(syllable) >= 0
}

// DeleteLast implements Scheme. A whole slot goes at once.
func (Zhuyin) DeleteLast(text string) string {
	return zhuyin.Decompose(text).DropLast().String()
}

// MaxCodeLength implements Scheme.
func (Zhuyin) MaxCodeLength() int { return 0 }

// AutoSelect implements Scheme.
func (Zhuyin) AutoSelect(string) bool { return false }

// Preedit implements Scheme.
func (Zhuyin) Preedit(text string) string { return text }

// Script composes by the rules of a schema document.
type Script struct {
	Schema *schema.Schema
}

// Compose implements Scheme. A delimiter key is only accepted while
// composing and never doubles a separator. Text a recognizer pattern
// matches, such as a reverse lookup prefix, is appended as typed. Other keys
// outside the alphabet are rejected; keys the spell rules cannot segment are
// appended as typed.
func (s *Script) Compose(text string, key rune) (string, bool) {
	k := string(key)
	sp := s.Schema.Speller
	if text != "" && sp.IsDelimiter(k) {
		sep := sp.Separator()
		if strings.HasSuffix(text, sep) {
			return text, true
		}
		return text + sep, true
	}
	if s.Schema.Recognizes(text + k) {
		return text + k, true
	}
	if !s.Schema.IsAlphabet(text, k) {
		return text, false
	}
	if max := s.MaxCodeLength(); max > 0 && utf8.RuneCountInString(text) >= max {
		return text, true
	}
	if out, ok := sp.Segment(text, k); ok {
		return out, true
	}
	return text + k, true
}

// Encode implements Scheme.
func (s *Script) Encode(text string) string { return text }

// Validate implements Scheme.
func (s *Script) Validate(text string) bool { return s.Schema.Speller.IsSyllable(text) }

// DeleteLast implements Scheme.
func (s *Script) DeleteLast(text string) string { return dropLastRune(text) }

// MaxCodeLength implements Scheme.
func (s *Script) MaxCodeLength() int { return s.Schema.MaxCodeLength }

// AutoSelect implements Scheme.
func (s *Script) AutoSelect(text string) bool { return s.Schema.IsAutoSelect(text) }

// Preedit implements Scheme.
func (s *Script) Preedit(text string) string { return s.Schema.Preedit.Apply(text) }

// ForSchema returns the scheme a schema asks for.
func ForSchema(sc *schema.Schema) Scheme {
	switch sc.Engine {
	case schema.EngineCangjie:
		return NewCangjie(sc.Simplified)
	case schema.EngineZhuyin:
		return Zhuyin{}
	}
	return &Script{Schema: sc}
}
