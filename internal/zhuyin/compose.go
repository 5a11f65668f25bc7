package zhuyin

import "strings"

// Slot positions inside a composed syllable.
const (
	SlotInitial = iota
	SlotMedial
	SlotFinal
	SlotTone
)

// Slots is a syllable split into initial, medial, final and tone. A zero
// rune marks an empty slot.
type Slots [4]rune

// Decompose sorts the runes of text into slots. Later runes of the same
// kind overwrite earlier ones; unknown runes are dropped.
func Decompose(text string) Slots {
	var s Slots
	for _, c := range text {
		switch {
		case IsInitial(c):
			s[SlotInitial] = c
		case IsMedial(c):
			s[SlotMedial] = c
		case IsFinal(c):
			s[SlotFinal] = c
		case ToneIndex(c) > 0:
			s[SlotTone] = c
		}
	}
	return s
}

// String recomposes the syllable in slot order.
func (s Slots) String() string {
	var b strings.Builder
	for _, c := range s {
		if c != 0 {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Empty reports whether every slot is empty.
func (s Slots) Empty() bool {
	return s == Slots{}
}

// DropLast clears the last filled slot.
func (s Slots) DropLast() Slots {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != 0 {
			s[i] = 0
			break
		}
	}
	return s
}

// Compose applies key c to the syllable text. It reports false when c is
// not a Zhuyin symbol or is a tone typed on an empty syllable.
func Compose(text string, c rune) (string, bool) {
	if IsTone(c) {
		if text == "" {
			return "", false
		}
		s := Decompose(text)
		if c == DefaultTone {
			s[SlotTone] = 0
		} else {
			s[SlotTone] = c
		}
		return s.String(), true
	}

	switch {
	case IsInitial(c):
		s := Decompose(text)
		s[SlotInitial] = c
		return s.String(), true
	case IsFinal(c):
		s := Decompose(text)
		if IsMedial(c) {
			s[SlotMedial] = c
		} else {
			s[SlotFinal] = c
		}
		return s.String(), true
	}
	return text, false
}

// Valid reports whether every rune of text is a Zhuyin symbol.
func Valid(text string) bool {
	for _, c := range text {
		if !IsInitial(c) && !IsFinal(c) && ToneIndex(c) <= 0 {
			return false
		}
	}
	return true
}
