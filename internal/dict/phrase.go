package dict

import (
	"errors"
	"slices"
	"sort"
)

// ErrBadPhraseTable is returned for phrase data that is not three rows of
// keys, offsets and following words.
var ErrBadPhraseTable = errors.New("dict: malformed phrase table")

// Phrases maps a character to the words that commonly follow it.
type Phrases struct {
	keys      []rune
	offsets   []rune
	following []rune
}

// NewPhrases wraps packed phrase data.
func NewPhrases(d Data) (*Phrases, error) {
	if len(d) != 3 || len(d[0]) != len(d[1]) {
		return nil, ErrBadPhraseTable
	}
	for i, off := range d[1] {
		if off < 0 || int(off) > len(d[2]) || (i > 0 && off < d[1][i-1]) {
			return nil, ErrBadPhraseTable
		}
	}
	return &Phrases{keys: d[0], offsets: d[1], following: d[2]}, nil
}

// Following returns the words following c, best first. The result is a copy.
func (p *Phrases) Following(c rune) []rune {
	i, found := slices.BinarySearch(p.keys, c)
	if !found {
		return nil
	}
	start := int(p.offsets[i])
	end := len(p.following)
	if i+1 < len(p.offsets) {
		end = int(p.offsets[i+1])
	}
	return slices.Clone(p.following[start:end])
}

// BuildPhrases packs a key to following-words map.
func BuildPhrases(m map[rune][]rune) Data {
	keys := make([]rune, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	offsets := make([]rune, 0, len(keys))
	var following []rune
	for _, k := range keys {
		offsets = append(offsets, rune(len(following)))
		following = append(following, m[k]...)
	}
	return Data{keys, offsets, following}
}
