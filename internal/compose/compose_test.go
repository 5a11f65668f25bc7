package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcime/internal/schema"
)

type recordingSink struct {
	committed []string
	preview   string
	clears    int
}

func (s *recordingSink) Commit(text string)              { s.committed = append(s.committed, text) }
func (s *recordingSink) SetComposingPreview(text string) { s.preview = text }
func (s *recordingSink) ClearComposingPreview() {
	s.preview = ""
	s.clears++
}

func feed(m *Machine, keys string) Result {
	var r Result
	for _, k := range keys {
		r = m.Accept(k)
	}
	return r
}

func TestCangjieCompose(t *testing.T) {
	sink := &recordingSink{}
	m := New(NewCangjie(false), sink, nil, nil)

	assert.Equal(t, Idle, m.State())
	r := m.Accept('a')
	assert.True(t, r.Consumed)
	assert.False(t, r.AutoSelect)
	assert.Equal(t, "日", m.Text())
	assert.Equal(t, "日", sink.preview)

	r = m.Accept('月')
	assert.True(t, r.Consumed)
	assert.Equal(t, "日月", m.Text())
	assert.Equal(t, Composing, m.State())
	assert.True(t, m.Valid())
}

func TestRejectedKeyLeavesStateUnchanged(t *testing.T) {
	sink := &recordingSink{}
	m := New(NewCangjie(false), sink, nil, nil)
	feed(m, "ab")

	var events []Event
	m.Subscribe(func(ev Event) { events = append(events, ev) })

	for _, k := range []rune{'1', 'z', ' ', '我'} {
		r := m.Accept(k)
		assert.False(t, r.Consumed, "key %q", k)
	}
	assert.Equal(t, "日月", m.Text())
	assert.Equal(t, "日月", sink.preview)
	assert.Empty(t, events)
}

func TestMaxLengthAutoSelects(t *testing.T) {
	m := New(NewCangjie(false), &recordingSink{}, nil, nil)

	r := feed(m, "abcd")
	assert.False(t, r.AutoSelect)
	r = m.Accept('e')
	assert.True(t, r.Consumed)
	assert.True(t, r.AutoSelect)
	assert.Equal(t, 5, len([]rune(m.Text())))

	r = m.Accept('f')
	assert.True(t, r.Consumed, "letters past the limit are swallowed")
	assert.Equal(t, "日月金木水", m.Text())

	simplified := New(NewCangjie(true), &recordingSink{}, nil, nil)
	r = feed(simplified, "ab")
	assert.True(t, r.AutoSelect)
	simplified.Accept('c')
	assert.Equal(t, "日月", simplified.Text())
}

func TestCommitIsIdempotent(t *testing.T) {
	for n := 0; n <= 5; n++ {
		sink := &recordingSink{}
		m := New(NewCangjie(false), sink, nil, nil)
		feed(m, "abcde"[:n])

		m.Commit("字")
		assert.Equal(t, Idle, m.State(), "buffer length %d", n)
		assert.Empty(t, m.Text())
		assert.Equal(t, []string{"字"}, sink.committed)

		m.Commit("")
		assert.Equal(t, Idle, m.State())
		assert.Equal(t, []string{"字"}, sink.committed)
	}
}

func TestCommitNotifiesListeners(t *testing.T) {
	m := New(NewCangjie(false), &recordingSink{}, nil, nil)
	var events []Event
	m.Subscribe(func(ev Event) { events = append(events, ev) })

	m.Accept('a')
	m.Commit("明")

	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: Changed, Text: "日"}, events[0])
	assert.Equal(t, Event{Kind: Committed, Text: "明"}, events[1])
}

func TestStartDisablesComposing(t *testing.T) {
	m := New(NewCangjie(false), &recordingSink{}, nil, nil)

	for _, kind := range []InputKind{KindNumber, KindDateTime, KindPhone} {
		m.Start(kind)
		assert.False(t, m.CanCompose())
		assert.False(t, m.Accept('a').Consumed)
		assert.Equal(t, Idle, m.State())
	}

	m.Start(KindShortMessage)
	assert.True(t, m.CanCompose())
	assert.True(t, m.EnterAsLineBreak())

	m.Start(KindText)
	assert.False(t, m.EnterAsLineBreak())
}

func TestStartClearsBuffer(t *testing.T) {
	sink := &recordingSink{}
	m := New(NewCangjie(false), sink, nil, nil)
	feed(m, "ab")
	m.Start(KindText)
	assert.Equal(t, Idle, m.State())
	assert.Empty(t, sink.preview)
	assert.Empty(t, sink.committed)
}

func TestASCIIModeBypassesScheme(t *testing.T) {
	mode := ModeASCII
	m := New(NewCangjie(false), &recordingSink{}, ModeFunc(func() Mode { return mode }), nil)

	assert.False(t, m.Accept('a').Consumed)
	mode = ModeScheme
	assert.True(t, m.Accept('a').Consumed)
}

func TestEscapeAndCursorMove(t *testing.T) {
	sink := &recordingSink{}
	m := New(NewCangjie(false), sink, nil, nil)
	var events []Event
	m.Subscribe(func(ev Event) { events = append(events, ev) })

	assert.False(t, m.Escape())
	feed(m, "ab")
	assert.True(t, m.Escape())
	assert.Equal(t, Idle, m.State())
	assert.Empty(t, sink.committed)

	feed(m, "a")
	m.CursorMoved()
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, Cleared, events[len(events)-1].Kind)
}

func TestDeleteLast(t *testing.T) {
	sink := &recordingSink{}
	m := New(NewCangjie(false), sink, nil, nil)
	assert.False(t, m.DeleteLast(), "empty buffer delegates to host")

	feed(m, "ab")
	assert.True(t, m.DeleteLast())
	assert.Equal(t, "日", m.Text())
	assert.True(t, m.DeleteLast())
	assert.Equal(t, Idle, m.State())
	assert.Empty(t, sink.preview)
	assert.False(t, m.DeleteLast())
}

func TestZhuyinCompose(t *testing.T) {
	sink := &recordingSink{}
	m := New(Zhuyin{}, sink, nil, nil)

	assert.False(t, m.Accept('ˋ').Consumed, "tone needs a syllable")
	feed(m, "ㄚ")
	feed(m, "ㄅ")
	assert.Equal(t, "ㄅㄚ", m.Text(), "initial goes in front")
	feed(m, "ㄨˋ")
	assert.Equal(t, "ㄅㄨㄚˋ", m.Text())
	feed(m, "ㄆ")
	assert.Equal(t, "ㄆㄨㄚˋ", m.Text(), "a new initial replaces the old one")
	feed(m, "ˊ")
	assert.Equal(t, "ㄆㄨㄚˊ", m.Text())
	feed(m, " ")
	assert.Equal(t, "ㄆㄨㄚ", m.Text(), "default tone removes the mark")
	assert.True(t, m.Valid())
	assert.False(t, m.Accept('a').Consumed)
}

func TestZhuyinDeleteLastDropsSlot(t *testing.T) {
	m := New(Zhuyin{}, &recordingSink{}, nil, nil)
	feed(m, "ㄅㄨㄚˋ")

	want := []string{"ㄅㄨㄚ", "ㄅㄨ", "ㄅ", ""}
	for _, w := range want {
		require.True(t, m.DeleteLast())
		assert.Equal(t, w, m.Text())
	}
	assert.False(t, m.DeleteLast())
}

const scriptDoc = `
schema:
  schema_id: pinyin
speller:
  alphabet: "abcdefghijklmnopqrstuvwxyz'"
  initials: "abcdefghjklmnopqrstwxyz"
  delimiter: "'"
  max_code_length: 6
translator:
  dictionary: pinyin
  preedit_format:
    - "xform/'/-/"
trime:
  syllable: "[bpmfdtnlgkhjqxzcsryw]?h?[aeiouv]*(?:ng|n|r)?"
  auto_select_syllable: "[a-z]+v"
`

func newScript(t *testing.T) *Script {
	t.Helper()
	sc, err := schema.Load("pinyin", []byte(scriptDoc))
	require.NoError(t, err)
	s, ok := ForSchema(sc).(*Script)
	require.True(t, ok)
	return s
}

func TestScriptSegmentsSyllables(t *testing.T) {
	sink := &recordingSink{}
	m := New(newScript(t), sink, nil, nil)

	r := feed(m, "niha")
	assert.False(t, r.AutoSelect)
	assert.Equal(t, "ni'ha", m.Text())
	assert.Equal(t, "ni-ha", sink.preview)

	r = m.Accept('o')
	assert.Equal(t, "ni'hao", m.Text())
	assert.True(t, r.AutoSelect, "six runes reach the maximum code length")

	r = m.Accept('z')
	assert.True(t, r.Consumed)
	assert.Equal(t, "ni'hao", m.Text())
}

func TestScriptDelimiterAndInitials(t *testing.T) {
	m := New(newScript(t), &recordingSink{}, nil, nil)

	assert.False(t, m.Accept('\'').Consumed, "delimiter needs composing text")
	assert.False(t, m.Accept('i').Consumed, "i is not an initial")
	assert.False(t, m.Accept('1').Consumed)

	feed(m, "x")
	feed(m, "''")
	assert.Equal(t, "x'", m.Text())
	feed(m, "i")
	assert.Equal(t, "x'i", m.Text())
	assert.True(t, m.Valid())
}

func TestScriptAutoSelectPattern(t *testing.T) {
	m := New(newScript(t), &recordingSink{}, nil, nil)
	r := feed(m, "lv")
	assert.True(t, r.AutoSelect)
}

func TestScriptAcceptsRecognizedText(t *testing.T) {
	doc := scriptDoc + "recognizer:\n  patterns:\n    reverse_lookup: \"`[a-z]*\"\n"
	sc, err := schema.Load("pinyin", []byte(doc))
	require.NoError(t, err)
	m := New(ForSchema(sc), &recordingSink{}, nil, nil)

	assert.True(t, m.Accept('`').Consumed)
	feed(m, "ix")
	assert.Equal(t, "`ix", m.Text(), "recognized text skips the initials and syllable checks")
	assert.False(t, m.Accept('1').Consumed)

	m.Escape()
	assert.False(t, m.Accept('1').Consumed)
	feed(m, "ni")
	assert.Equal(t, "ni", m.Text())
}

func TestForSchema(t *testing.T) {
	sc, err := schema.Load("cj", []byte("engine:\n  kind: cangjie\n  simplified: true\n"))
	require.NoError(t, err)
	c, ok := ForSchema(sc).(*Cangjie)
	require.True(t, ok)
	assert.Equal(t, 2, c.MaxCodeLength())

	sc, err = schema.Load("zy", []byte("engine:\n  kind: zhuyin\n"))
	require.NoError(t, err)
	assert.IsType(t, Zhuyin{}, ForSchema(sc))
}

func TestSetSchemeClearsBuffer(t *testing.T) {
	m := New(NewCangjie(false), &recordingSink{}, nil, nil)
	feed(m, "ab")
	m.SetScheme(Zhuyin{})
	assert.Equal(t, Idle, m.State())
	assert.True(t, m.Accept('ㄅ').Consumed)
}
