// Package codetable maps stroke codes (Cangjie) to dense table indices and
// looks words up in the packed code table.
//
// A code is split into two indices. The primary index combines the first and
// last letter and selects a table row. The secondary index encodes the
// interior letters as base-(K+1) digits and orders the words inside the row.
// Letter ranks are 1-based so that 0 can stand for an absent letter.
package codetable

import (
	"fmt"
)

// NoIndex is returned for a code that cannot be encoded.
const NoIndex = -1

const (
	// MaxCodeLength is the longest Cangjie code.
	MaxCodeLength = 5
	// MaxSimplifiedCodeLength is the longest code in simplified mode.
	MaxSimplifiedCodeLength = 2
)

// CangjieLetters are the Cangjie radicals in rank order.
const CangjieLetters = "日月金木水火土竹戈十大中一弓人心手口尸廿山女田難卜"

// Cangjie is the Cangjie radical alphabet.
var Cangjie = MustAlphabet(CangjieLetters)

// Alphabet assigns each symbol a 1-based rank.
type Alphabet struct {
	letters []rune
	ranks   map[rune]int
}

// NewAlphabet builds an alphabet from the runes of letters.
func NewAlphabet(letters string) (*Alphabet, error) {
	a := &Alphabet{ranks: make(map[rune]int)}
	for _, r := range letters {
		if _, dup := a.ranks[r]; dup {
			return nil, fmt.Errorf("codetable: duplicate letter %q", r)
		}
		a.letters = append(a.letters, r)
		a.ranks[r] = len(a.letters)
	}
	if len(a.letters) == 0 {
		return nil, fmt.Errorf("codetable: empty alphabet")
	}
	return a, nil
}

// MustAlphabet is NewAlphabet for package-level values.
func MustAlphabet(letters string) *Alphabet {
	a, err := NewAlphabet(letters)
	if err != nil {
		panic(err)
	}
	return a
}

// Rank returns the 1-based rank of r.
func (a *Alphabet) Rank(r rune) (int, bool) {
	rank, ok := a.ranks[r]
	return rank, ok
}

// Contains reports whether r is a letter of the alphabet.
func (a *Alphabet) Contains(r rune) bool {
	_, ok := a.ranks[r]
	return ok
}

// Size returns the number of letters.
func (a *Alphabet) Size() int { return len(a.letters) }

// Letter returns the letter with the given rank.
func (a *Alphabet) Letter(rank int) (rune, bool) {
	if rank < 1 || rank > len(a.letters) {
		return 0, false
	}
	return a.letters[rank-1], true
}

// Encoder computes primary and secondary indices for codes of at most
// maxLen letters.
type Encoder struct {
	alpha  *Alphabet
	maxLen int
	base   int
}

// NewEncoder returns an encoder over alpha. maxLen must be at least 2.
func NewEncoder(alpha *Alphabet, maxLen int) *Encoder {
	if maxLen < 2 {
		maxLen = 2
	}
	return &Encoder{alpha: alpha, maxLen: maxLen, base: alpha.Size() + 1}
}

// CangjieEncoder is the encoder for five-letter Cangjie codes.
var CangjieEncoder = NewEncoder(Cangjie, MaxCodeLength)

// Alphabet returns the encoder's alphabet.
func (e *Encoder) Alphabet() *Alphabet { return e.alpha }

// MaxLength returns the longest code the encoder accepts.
func (e *Encoder) MaxLength() int { return e.maxLen }

// PrimarySize is the number of table rows: every primary index is below it.
func (e *Encoder) PrimarySize() int {
	return e.alpha.Size() * e.base
}

// PrimaryIndex returns the row index for code, or NoIndex.
func (e *Encoder) PrimaryIndex(code string) int {
	rs := []rune(code)
	n := len(rs)
	if n < 1 || n > e.maxLen {
		return NoIndex
	}
	first, ok := e.alpha.Rank(rs[0])
	if !ok {
		return NoIndex
	}
	index := (first - 1) * e.base
	if n < 2 {
		return index
	}
	last, ok := e.alpha.Rank(rs[n-1])
	if !ok {
		return NoIndex
	}
	return index + last
}

// SecondaryIndex returns the in-row index for code, or NoIndex. Interior
// letters become digits, padded with zeros on the right to maxLen-2 digits.
func (e *Encoder) SecondaryIndex(code string) int {
	rs := []rune(code)
	if len(rs) == 0 || len(rs) > e.maxLen {
		return NoIndex
	}
	last := len(rs) - 1
	index := 0
	for i := 1; i < last; i++ {
		rank, ok := e.alpha.Rank(rs[i])
		if !ok {
			return NoIndex
		}
		index = index*e.base + rank
	}
	for i := last; i < e.maxLen-1; i++ {
		index *= e.base
	}
	return index
}

// Valid reports whether code can be encoded.
func (e *Encoder) Valid(code string) bool {
	return e.PrimaryIndex(code) != NoIndex && e.SecondaryIndex(code) != NoIndex
}
