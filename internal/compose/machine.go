// Package compose holds the composing state machine shared by every input
// scheme.
//
// A Machine owns the composing buffer. Keys are handed to the active Scheme,
// which decides whether a key extends the buffer; the Machine keeps the
// host's composing preview in sync and reports commits to its listeners so
// that candidate state can be dropped.
//
//	Idle --Accept--> Composing --Commit/Escape/CursorMoved--> Idle
package compose

import (
	"log/slog"
	"unicode/utf8"
)

// State is the composing state.
type State int

const (
	// Idle means the buffer is empty.
	Idle State = iota
	// Composing means the buffer holds uncommitted keys.
	Composing
)

func (s State) String() string {
	if s == Composing {
		return "composing"
	}
	return "idle"
}

// InputKind is the kind of field being edited.
type InputKind int

const (
	KindText InputKind = iota
	// KindShortMessage is text where Enter inserts a line break.
	KindShortMessage
	KindNumber
	KindDateTime
	KindPhone
)

// Mode is the keyboard mode reported by the host.
type Mode int

const (
	// ModeScheme sends keys through the input scheme.
	ModeScheme Mode = iota
	// ModeASCII commits keys literally.
	ModeASCII
)

// ModeSignal reports the current keyboard mode.
type ModeSignal interface {
	Mode() Mode
}

// ModeFunc adapts a function to ModeSignal.
type ModeFunc func() Mode

// Mode implements ModeSignal.
func (f ModeFunc) Mode() Mode { return f() }

// TextSink is the host editing surface.
type TextSink interface {
	Commit(text string)
	SetComposingPreview(text string)
	ClearComposingPreview()
}

// EventKind says what changed in the buffer.
type EventKind int

const (
	// Changed means the buffer holds new text.
	Changed EventKind = iota
	// Committed means text went to the sink and the buffer is empty.
	Committed
	// Cleared means the buffer was dropped without committing.
	Cleared
)

// Event is delivered to listeners after every buffer change.
type Event struct {
	Kind EventKind
	// Text is the buffer for Changed and the committed text for Committed.
	Text string
}

// Result reports how Accept handled a key.
type Result struct {
	// Consumed is false when the key was rejected and left no trace; the
	// caller may commit it literally.
	Consumed bool
	// AutoSelect asks the caller to pick the top candidate now.
	AutoSelect bool
}

// Machine is the composing state machine. It is not safe for concurrent
// use; the engine serialises calls.
type Machine struct {
	scheme Scheme
	sink   TextSink
	mode   ModeSignal
	log    *slog.Logger

	text             string
	canCompose       bool
	enterAsLineBreak bool
	listeners        []func(Event)
}

// New returns an idle machine. mode may be nil, meaning keys always go to
// the scheme.
func New(scheme Scheme, sink TextSink, mode ModeSignal, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		scheme:     scheme,
		sink:       sink,
		mode:       mode,
		log:        log,
		canCompose: true,
	}
}

// Subscribe registers fn for buffer events.
func (m *Machine) Subscribe(fn func(Event)) {
	m.listeners = append(m.listeners, fn)
}

func (m *Machine) notify(ev Event) {
	for _, fn := range m.listeners {
		fn(ev)
	}
}

// Start resets the machine for a new field.
func (m *Machine) Start(kind InputKind) {
	m.reset()
	m.canCompose = true
	m.enterAsLineBreak = false
	switch kind {
	case KindNumber, KindDateTime, KindPhone:
		m.canCompose = false
	case KindShortMessage:
		m.enterAsLineBreak = true
	}
	m.log.Debug("composing started", "kind", kind, "can_compose", m.canCompose)
}

// SetScheme switches schemes. Any composing text is dropped.
func (m *Machine) SetScheme(s Scheme) {
	m.reset()
	m.scheme = s
}

// Scheme returns the active scheme.
func (m *Machine) Scheme() Scheme { return m.scheme }

// Text returns the composing buffer.
func (m *Machine) Text() string { return m.text }

// State returns Idle or Composing.
func (m *Machine) State() State {
	if m.text == "" {
		return Idle
	}
	return Composing
}

// CanCompose reports whether the current field accepts composing.
func (m *Machine) CanCompose() bool { return m.canCompose }

// EnterAsLineBreak reports whether Enter should insert a line break.
func (m *Machine) EnterAsLineBreak() bool { return m.enterAsLineBreak }

// Active reports whether keys currently go to the scheme.
func (m *Machine) Active() bool {
	if !m.canCompose || m.scheme == nil {
		return false
	}
	return m.mode == nil || m.mode.Mode() == ModeScheme
}

// Key returns the lookup key for the buffer.
func (m *Machine) Key() string {
	if m.text == "" || m.scheme == nil {
		return ""
	}
	return m.scheme.Encode(m.text)
}

// Valid reports whether the buffer is a complete code for the scheme.
func (m *Machine) Valid() bool {
	return m.text != "" && m.scheme != nil && m.scheme.Validate(m.text)
}

// Accept offers key to the scheme. A rejected key changes nothing.
func (m *Machine) Accept(key rune) Result {
	if !m.Active() {
		return Result{}
	}
	next, ok := m.scheme.Compose(m.text, key)
	if !ok {
		m.log.Debug("key rejected", "key", string(key), "composing", m.text)
		return Result{}
	}
	if next != m.text {
		m.set(next)
	}
	return Result{Consumed: true, AutoSelect: m.AutoCommitCheck()}
}

// DeleteLast removes the last unit of the buffer. It returns false when the
// buffer is empty and the host should delete instead.
func (m *Machine) DeleteLast() bool {
	if m.text == "" {
		return false
	}
	m.set(m.scheme.DeleteLast(m.text))
	return true
}

// Commit sends text to the sink and leaves the machine idle.
func (m *Machine) Commit(text string) {
	if m.text != "" {
		m.text = ""
		m.sink.ClearComposingPreview()
	}
	if text != "" {
		m.sink.Commit(text)
	}
	m.notify(Event{Kind: Committed, Text: text})
}

// AutoCommitCheck reports whether the buffer should auto-select its top
// candidate: the scheme's maximum code length is reached or its auto-select
// pattern matches.
func (m *Machine) AutoCommitCheck() bool {
	if m.text == "" || m.scheme == nil {
		return false
	}
	if max := m.scheme.MaxCodeLength(); max > 0 && utf8.RuneCountInString(m.text) >= max {
		return true
	}
	return m.scheme.AutoSelect(m.text)
}

// Escape drops the buffer without committing. It reports whether there was
// anything to drop.
func (m *Machine) Escape() bool {
	if m.text == "" {
		return false
	}
	m.reset()
	return true
}

// CursorMoved drops the buffer after the host moved the caret.
func (m *Machine) CursorMoved() {
	m.Escape()
}

func (m *Machine) set(text string) {
	if text == "" {
		m.reset()
		return
	}
	m.text = text
	m.sink.SetComposingPreview(m.scheme.Preedit(text))
	m.notify(Event{Kind: Changed, Text: text})
}

func (m *Machine) reset() {
	if m.text == "" {
		return
	}
	m.text = ""
	if m.sink != nil {
		m.sink.ClearComposingPreview()
	}
	m.notify(Event{Kind: Cleared})
}
