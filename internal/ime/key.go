package ime

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeyCode names the keys the engine routes. Printable keys are KeyChar with
// Char set.
type KeyCode int

const (
	KeyNone KeyCode = iota
	KeyChar
	KeySpace
	KeyEnter
	KeyBackspace
	KeyEscape
	KeyPageUp
	KeyPageDown
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
)

var keyNames = map[string]KeyCode{
	"space": KeySpace,
	"enter": KeyEnter,
	"bs":    KeyBackspace,
	"esc":   KeyEscape,
	"pgup":  KeyPageUp,
	"pgdn":  KeyPageDown,
	"up":    KeyUp,
	"down":  KeyDown,
	"left":  KeyLeft,
	"right": KeyRight,
	"home":  KeyHome,
	"end":   KeyEnd,
}

func (k KeyCode) String() string {
	if k == KeyChar {
		return "char"
	}
	for name, code := range keyNames {
		if code == k {
			return name
		}
	}
	return "none"
}

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta // Command on macOS, Windows key on Windows
)

// Key is one key press.
type Key struct {
	Code      KeyCode
	Char      rune
	Modifiers Modifiers
}

// NewKey returns the key press that produces c. Upper-case letters carry
// ModShift.
func NewKey(c rune) Key {
	switch c {
	case ' ':
		return Key{Code: KeySpace}
	case '\n', '\r':
		return Key{Code: KeyEnter}
	}
	k := Key{Code: KeyChar, Char: c}
	if unicode.IsUpper(c) {
		k.Modifiers |= ModShift
	}
	return k
}

// Shifted reports whether shift is held.
func (k Key) Shifted() bool { return k.Modifiers&ModShift != 0 }

// Chorded reports whether a command modifier is held. Chorded keys belong to
// the host.
func (k Key) Chorded() bool { return k.Modifiers&(ModControl|ModAlt|ModMeta) != 0 }

func (k Key) String() string {
	var b strings.Builder
	if k.Modifiers&ModControl != 0 {
		b.WriteString("C-")
	}
	if k.Modifiers&ModAlt != 0 {
		b.WriteString("M-")
	}
	if k.Code == KeyChar {
		b.WriteRune(k.Char)
	} else {
		b.WriteString("{" + k.Code.String() + "}")
	}
	return b.String()
}

// X11 keysyms and modifier masks as delivered by IBus.
const (
	xkBackSpace = 0xff08
	xkReturn    = 0xff0d
	xkKPEnter   = 0xff8d
	xkEscape    = 0xff1b
	xkHome      = 0xff50
	xkLeft      = 0xff51
	xkUp        = 0xff52
	xkRight     = 0xff53
	xkDown      = 0xff54
	xkPageUp    = 0xff55
	xkPageDown  = 0xff56
	xkEnd       = 0xff57

	maskShift   = 1 << 0
	maskControl = 1 << 2
	maskMod1    = 1 << 3
	maskSuper   = 1 << 26
	maskRelease = 1 << 30
)

var keysyms = map[uint32]KeyCode{
	xkBackSpace: KeyBackspace,
	xkReturn:    KeyEnter,
	xkKPEnter:   KeyEnter,
	xkEscape:    KeyEscape,
	xkHome:      KeyHome,
	xkLeft:      KeyLeft,
	xkUp:        KeyUp,
	xkRight:     KeyRight,
	xkDown:      KeyDown,
	xkPageUp:    KeyPageUp,
	xkPageDown:  KeyPageDown,
	xkEnd:       KeyEnd,
}

// FromKeysym converts an X11 keysym and modifier state into a Key. Key
// releases and keysyms without a character convert to KeyNone.
func FromKeysym(keyval, state uint32) Key {
	if state&maskRelease != 0 {
		return Key{}
	}
	var mods Modifiers
	if state&maskShift != 0 {
		mods |= ModShift
	}
	if state&maskControl != 0 {
		mods |= ModControl
	}
	if state&maskMod1 != 0 {
		mods |= ModAlt
	}
	if state&maskSuper != 0 {
		mods |= ModMeta
	}
	if code, ok := keysyms[keyval]; ok {
		return Key{Code: code, Modifiers: mods}
	}
	c := keyvalToRune(keyval)
	if c == 0 {
		return Key{}
	}
	k := NewKey(c)
	k.Modifiers |= mods
	return k
}

// keyvalToRune converts X11 keysym to Unicode rune.
func keyvalToRune(keyval uint32) rune {
	// Latin-1 maps directly.
	if (keyval >= 0x20 && keyval <= 0x7e) || (keyval >= 0xa0 && keyval <= 0xff) {
		return rune(keyval)
	}
	// Unicode keysyms (0x01000000 + codepoint)
	if keyval >= 0x01000000 && keyval <= 0x0110ffff {
		return rune(keyval - 0x01000000)
	}
	return 0
}

// ParseKeys reads a key sequence: plain characters, or names in braces such
// as {space}, {enter}, {bs}, {esc}, {pgup} and {pgdn}. A "C-" prefix inside
// braces holds control, e.g. {C-a}.
func ParseKeys(s string) ([]Key, error) {
	var keys []Key
	for len(s) > 0 {
		if s[0] == '{' {
			end := strings.IndexByte(s, '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated key name in %q", s)
			}
			name := s[1:end]
			s = s[end+1:]
			var mods Modifiers
			if rest, ok := strings.CutPrefix(name, "C-"); ok {
				mods, name = ModControl, rest
			}
			if code, ok := keyNames[name]; ok {
				keys = append(keys, Key{Code: code, Modifiers: mods})
				continue
			}
			if utf8.RuneCountInString(name) == 1 {
				k := NewKey([]rune(name)[0])
				k.Modifiers |= mods
				keys = append(keys, k)
				continue
			}
			return nil, fmt.Errorf("unknown key %q", name)
		}
		c, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		keys = append(keys, NewKey(c))
	}
	return keys, nil
}
