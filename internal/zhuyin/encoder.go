// Package zhuyin encodes Bopomofo syllables into table indices and composes
// syllables key by key.
//
// A syllable is an optional initial (ㄅ..ㄙ), an optional medial (ㄧ ㄨ ㄩ),
// an optional final and an optional tone mark. The syllable index is
// finals*InitialsSize + initials; the tone selects a bucket inside the row.
package zhuyin

// NoIndex is returned for input that is not a valid syllable part.
const NoIndex = -1

const (
	// InitialsSize is the number of initial slots, including "no initial".
	InitialsSize = 22
	// FinalsSize is the number of final slots, including "no final".
	FinalsSize = wuYuEnd + 1
	// ToneCount is the number of tones, including the default tone.
	ToneCount = 5
	// TableSize is the number of rows of a syllable table.
	TableSize = FinalsSize * InitialsSize
)

// DefaultTone marks a syllable typed without an explicit tone.
const DefaultTone = ' '

var tones = [ToneCount]rune{DefaultTone, '˙', 'ˊ', 'ˇ', 'ˋ'}

const (
	firstInitial = 'ㄅ'
	firstFinal   = 'ㄚ'

	yi = 'ㄧ'
	wu = 'ㄨ'
	yu = 'ㄩ'

	yiBase = 14
	wuBase = 25
	yuBase = 34

	wuYuEnd = yuBase + 4
)

var (
	yiEndings = []rune{'ㄚ', 'ㄛ', 'ㄝ', 'ㄞ', 'ㄠ', 'ㄡ', 'ㄢ', 'ㄣ', 'ㄤ', 'ㄥ'}
	wuEndings = []rune{'ㄚ', 'ㄛ', 'ㄞ', 'ㄟ', 'ㄢ', 'ㄣ', 'ㄤ', 'ㄥ'}
	yuEndings = []rune{'ㄝ', 'ㄢ', 'ㄣ', 'ㄥ'}
)

// Tones returns the tone marks in index order; index 0 is DefaultTone.
func Tones() []rune {
	out := tones
	return out[:]
}

// IsTone reports whether c is a tone mark, including DefaultTone.
func IsTone(c rune) bool {
	return ToneIndex(c) >= 0
}

// ToneIndex returns the index of tone c, or NoIndex.
func ToneIndex(c rune) int {
	for i, t := range tones {
		if t == c {
			return i
		}
	}
	return NoIndex
}

// IsMedial reports whether c is one of ㄧ ㄨ ㄩ.
func IsMedial(c rune) bool {
	return c == yi || c == wu || c == yu
}

// Initials returns the initial index of c: 1..21 for an initial, 0 when c
// starts a final-only syllable, NoIndex otherwise.
func Initials(c rune) int {
	index := int(c-firstInitial) + 1
	switch {
	case index < 1:
		return NoIndex
	case index < InitialsSize:
		return index
	case c <= yu:
		return 0
	default:
		return NoIndex
	}
}

// IsInitial reports whether c is an initial consonant.
func IsInitial(c rune) bool {
	return Initials(c) > 0
}

// Finals returns the finals index of s: 0 for an empty string, 1..38 for a
// valid final or medial+final, NoIndex otherwise.
func Finals(s string) int {
	rs := []rune(s)
	if len(rs) == 0 {
		return 0
	}
	if len(rs) > 2 {
		return NoIndex
	}

	index := int(rs[0]-firstFinal) + 1
	if index < 1 {
		return NoIndex
	}
	if index < yiBase {
		if len(rs) > 1 {
			return NoIndex
		}
		return index
	}

	var base int
	var endings []rune
	switch rs[0] {
	case yi:
		base, endings = yiBase, yiEndings
	case wu:
		base, endings = wuBase, wuEndings
	case yu:
		base, endings = yuBase, yuEndings
	default:
		return NoIndex
	}
	if len(rs) == 1 {
		return base
	}
	for i, e := range endings {
		if e == rs[1] {
			return base + i + 1
		}
	}
	return NoIndex
}

// IsFinal reports whether c alone is a valid final or medial.
func IsFinal(c rune) bool {
	return Finals(string(c)) > 0
}

// SyllableIndex returns the table row for a toneless syllable, or NoIndex.
func SyllableIndex(syllable string) int {
	rs := []rune(syllable)
	if len(rs) == 0 {
		return NoIndex
	}
	initials := Initials(rs[0])
	if initials == NoIndex {
		return NoIndex
	}
	if initials > 0 {
		rs = rs[1:]
	}
	finals := Finals(string(rs))
	if finals == NoIndex {
		return NoIndex
	}
	return finals*InitialsSize + initials
}

// StripTones splits input into its syllable and tone. Input without a tone
// mark gets DefaultTone. ok is false for empty input or a bare tone mark.
func StripTones(input string) (syllable string, tone rune, ok bool) {
	rs := []rune(input)
	if len(rs) == 0 {
		return "", 0, false
	}
	last := rs[len(rs)-1]
	if IsTone(last) {
		if len(rs) == 1 {
			return "", 0, false
		}
		return string(rs[:len(rs)-1]), last, true
	}
	return input, DefaultTone, true
}
