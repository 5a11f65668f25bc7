package ime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcime/internal/candidate"
	"tcime/internal/codetable"
	"tcime/internal/compose"
	"tcime/internal/config"
	"tcime/internal/dict"
	"tcime/internal/logging"
	"tcime/internal/schema"
	"tcime/internal/store"
	"tcime/internal/zhuyin"
)

type hostSink struct {
	committed []string
	preview   string
}

func (s *hostSink) Commit(text string)              { s.committed = append(s.committed, text) }
func (s *hostSink) SetComposingPreview(text string) { s.preview = text }
func (s *hostSink) ClearComposingPreview()          { s.preview = "" }

func typeKeys(t *testing.T, e *Engine, keys string) {
	t.Helper()
	ks, err := ParseKeys(keys)
	require.NoError(t, err)
	for _, k := range ks {
		e.ProcessKey(k)
	}
}

func texts(cs []candidate.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Text
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("TCIME_DATA_DIR", t.TempDir())
	cfg := config.DefaultConfig()
	cfg.Schema.Dir = t.TempDir()
	return cfg
}

func writeSchema(t *testing.T, cfg *config.Config, id, doc string) {
	t.Helper()
	path := filepath.Join(cfg.Schema.Dir, id+schema.FileSuffix)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
}

func staticTables(tables map[string]dict.Data) func(string) dict.Source {
	return func(name string) dict.Source {
		if d, ok := tables[name]; ok {
			return dict.StaticSource(d)
		}
		return func(context.Context) (dict.Data, error) { return nil, os.ErrNotExist }
	}
}

const cangjieDoc = `
schema:
  name: 倉頡
engine:
  kind: cangjie
  phrase_table: phrases.dict
`

func cangjieTables(t *testing.T) map[string]dict.Data {
	t.Helper()
	tbl, err := codetable.BuildTable(codetable.CangjieEncoder, []codetable.Entry{
		{Code: "日", Word: '日'},
		{Code: "日月", Word: '明'},
		{Code: "日月", Word: '朋'},
		{Code: "日金月", Word: '䁂'},
		{Code: "日月金木水", Word: '曌'},
	})
	require.NoError(t, err)
	return map[string]dict.Data{
		"cangjie.dict": tbl.Data(),
		"phrases.dict": dict.BuildPhrases(map[rune][]rune{'明': []rune("天白")}),
	}
}

func newCangjieEngine(t *testing.T, cfg *config.Config) (*Engine, *hostSink) {
	t.Helper()
	writeSchema(t, cfg, "cangjie", cangjieDoc)
	sink := &hostSink{}
	e, err := NewEngine(Options{
		Config: cfg,
		Sink:   sink,
		Tables: staticTables(cangjieTables(t)),
		Log:    logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	ctx := context.Background()
	require.NoError(t, e.SelectSchema(ctx, "cangjie"))
	require.NoError(t, e.WaitReady(ctx))
	return e, sink
}

func TestNewEngineNeedsSink(t *testing.T) {
	_, err := NewEngine(Options{Config: testConfig(t)})
	assert.Error(t, err)
}

func TestCangjiePickAndFollowing(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))

	typeKeys(t, e, "ab")
	st := e.State()
	assert.Equal(t, "cangjie", st.Schema)
	assert.Equal(t, "日月", st.Composing)
	assert.Equal(t, "日月", st.Preedit)
	assert.Equal(t, "日月", sink.preview)
	assert.Equal(t, []string{"明", "朋"}, texts(st.Candidates))

	typeKeys(t, e, "{space}")
	assert.Equal(t, []string{"明"}, sink.committed)
	assert.Empty(t, sink.preview)
	st = e.State()
	assert.True(t, st.Following)
	assert.Equal(t, []string{"天", "白"}, texts(st.Candidates))

	typeKeys(t, e, "2")
	assert.Equal(t, []string{"明", "白"}, sink.committed)
	assert.Empty(t, e.State().Candidates)
}

func TestDigitPicksFromPage(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))
	typeKeys(t, e, "ab2")
	assert.Equal(t, []string{"朋"}, sink.committed)

	typeKeys(t, e, "ab{space}")
	require.True(t, e.State().Following)
	assert.True(t, e.ProcessKey(Key{Code: KeyEscape}))
	assert.Empty(t, e.State().Candidates, "escape drops following words")
	typeKeys(t, e, "9")
	assert.Equal(t, []string{"朋", "明", "9"}, sink.committed, "digit without candidates is literal")
}

func TestDeleteAndEscape(t *testing.T) {
	e, _ := newCangjieEngine(t, testConfig(t))

	typeKeys(t, e, "ab{bs}")
	st := e.State()
	assert.Equal(t, "日", st.Composing)
	assert.Equal(t, []string{"日"}, texts(st.Candidates))

	assert.True(t, e.ProcessKey(Key{Code: KeyEscape}))
	assert.Equal(t, "", e.State().Composing)
	assert.False(t, e.ProcessKey(Key{Code: KeyEscape}), "idle escape belongs to the host")
	assert.False(t, e.ProcessKey(Key{Code: KeyBackspace}), "idle delete belongs to the host")
}

func TestEnter(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))

	typeKeys(t, e, "ab{enter}")
	assert.Equal(t, []string{"日月"}, sink.committed)
	assert.False(t, e.ProcessKey(Key{Code: KeyEnter}))

	e.Start(compose.KindShortMessage)
	assert.True(t, e.ProcessKey(Key{Code: KeyEnter}))
	assert.Equal(t, []string{"日月", "\n"}, sink.committed)
}

func TestLiteralKeys(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))

	typeKeys(t, e, "ab,")
	assert.Equal(t, []string{"明", ","}, sink.committed, "punctuation commits the top candidate first")
	assert.Empty(t, e.State().Candidates)

	typeKeys(t, e, "A")
	assert.Equal(t, "A", sink.committed[2], "shifted letters are literal")

	typeKeys(t, e, "{space}")
	assert.Equal(t, " ", sink.committed[3])
}

func TestFullShape(t *testing.T) {
	cfg := testConfig(t)
	cfg.Preferences.FullShape = true
	e, sink := newCangjieEngine(t, cfg)

	typeKeys(t, e, ",A{space}")
	assert.Equal(t, []string{"，", "Ａ", "　"}, sink.committed)
}

func TestChordedKeysPassThrough(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))
	assert.False(t, e.ProcessKey(Key{Code: KeyChar, Char: 'c', Modifiers: ModControl}))
	assert.False(t, e.ProcessKey(Key{}))
	assert.Empty(t, sink.committed)
}

func TestASCIIMode(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))

	typeKeys(t, e, "ab")
	assert.True(t, e.ToggleASCII())
	assert.Equal(t, []string{"日月"}, sink.committed, "toggling commits composing text")
	assert.False(t, e.ProcessKey(NewKey('a')))
	assert.False(t, e.ProcessKey(Key{Code: KeySpace}))
	assert.True(t, e.State().ASCII)

	assert.False(t, e.ToggleASCII())
	typeKeys(t, e, "a")
	assert.Equal(t, "日", e.State().Composing)
}

func TestHostModeSignal(t *testing.T) {
	cfg := testConfig(t)
	writeSchema(t, cfg, "cangjie", cangjieDoc)
	mode := compose.ModeASCII
	e, err := NewEngine(Options{
		Config: cfg,
		Sink:   &hostSink{},
		Tables: staticTables(cangjieTables(t)),
		Mode:   compose.ModeFunc(func() compose.Mode { return mode }),
		Log:    logging.Discard(),
	})
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.SelectSchema(context.Background(), "cangjie"))

	assert.False(t, e.ProcessKey(NewKey('a')))
	mode = compose.ModeScheme
	assert.True(t, e.ProcessKey(NewKey('a')))
}

func TestPaging(t *testing.T) {
	cfg := testConfig(t)
	cfg.Candidates.PageSize = 1
	e, sink := newCangjieEngine(t, cfg)

	typeKeys(t, e, "ab")
	st := e.State()
	assert.Equal(t, []string{"明"}, texts(st.Candidates))
	assert.True(t, st.FirstPage)
	assert.False(t, st.LastPage)

	typeKeys(t, e, "{pgdn}")
	st = e.State()
	assert.Equal(t, []string{"朋"}, texts(st.Candidates))
	assert.True(t, st.LastPage)

	typeKeys(t, e, "{pgdn}{pgup}")
	assert.Equal(t, []string{"明"}, texts(e.State().Candidates))

	typeKeys(t, e, "{pgdn}{space}")
	assert.Equal(t, []string{"朋"}, sink.committed)
}

func TestHighlight(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))
	typeKeys(t, e, "ab{right}")
	assert.Equal(t, 1, e.State().Highlight)
	typeKeys(t, e, "{right}{home}{end}")
	assert.Equal(t, 1, e.State().Highlight)
	typeKeys(t, e, "{space}")
	assert.Equal(t, []string{"朋"}, sink.committed)
}

func TestMaxLengthAutoSelects(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))
	typeKeys(t, e, "abcde")
	assert.Equal(t, []string{"曌"}, sink.committed)
	assert.Equal(t, "", e.State().Composing)
}

func TestTablesNotReady(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dictionary.LoadTimeoutMs = 20
	writeSchema(t, cfg, "cangjie", "engine:\n  kind: cangjie\n")

	tables := cangjieTables(t)
	release := make(chan struct{})
	e, err := NewEngine(Options{
		Config: cfg,
		Sink:   &hostSink{},
		Log:    logging.Discard(),
		Tables: func(name string) dict.Source {
			return func(ctx context.Context) (dict.Data, error) {
				select {
				case <-release:
					return tables[name], nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		},
	})
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.SelectSchema(ctx, "cangjie"))

	typeKeys(t, e, "a")
	st := e.State()
	assert.True(t, st.NotReady)
	assert.Empty(t, st.Candidates)
	assert.Equal(t, "日", st.Composing, "composing goes on while tables load")

	close(release)
	require.NoError(t, e.WaitReady(ctx))
	typeKeys(t, e, "b")
	st = e.State()
	assert.False(t, st.NotReady)
	assert.Equal(t, []string{"明", "朋"}, texts(st.Candidates))
}

func TestApplyConfig(t *testing.T) {
	cfg := testConfig(t)
	e, _ := newCangjieEngine(t, cfg)

	typeKeys(t, e, "ab")
	require.Len(t, e.State().Candidates, 2)

	next := cfg.Clone()
	next.Candidates.PageSize = 1
	e.ApplyConfig(next)
	st := e.State()
	assert.Equal(t, "日月", st.Composing)
	assert.Equal(t, []string{"明"}, texts(st.Candidates))
}

func TestZhuyinEngine(t *testing.T) {
	cfg := testConfig(t)
	writeSchema(t, cfg, "zhuyin", "engine:\n  kind: zhuyin\n")
	tbl, err := zhuyin.BuildTable([]zhuyin.Entry{
		{Syllable: "ㄇㄚˇ", Word: '馬'},
		{Syllable: "ㄇㄚˇ", Word: '瑪'},
		{Syllable: "ㄇㄚ", Word: '媽'},
	})
	require.NoError(t, err)

	sink := &hostSink{}
	e, err := NewEngine(Options{
		Config: cfg,
		Sink:   sink,
		Tables: staticTables(map[string]dict.Data{"zhuyin.dict": tbl.Data()}),
		Log:    logging.Discard(),
	})
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.SelectSchema(ctx, "zhuyin"))
	require.NoError(t, e.WaitReady(ctx))

	typeKeys(t, e, "ㄇㄚˇ")
	assert.Equal(t, []string{"馬", "瑪"}, texts(e.State().Candidates))
	typeKeys(t, e, "2")
	assert.Equal(t, []string{"瑪"}, sink.committed)

	typeKeys(t, e, "ㄇㄚ{bs}")
	assert.Equal(t, "ㄇ", e.State().Composing)

	_, err = e.ReverseLookup(ctx, "馬")
	assert.ErrorIs(t, err, ErrNoReverseLookup)
}

const pinyinDoc = `
schema:
  schema_id: pinyin
  name: 拼音
speller:
  alphabet: "abcdefghijklmnopqrstuvwxyz'"
  delimiter: "'"
translator:
  dictionary: pinyin
  comment_format:
    - "xlit/14/ˉˋ/"
trime:
  lookup:
    - "xform/v/u/"
  fuzzy:
    - "z_zh/^z([^h]|$)/zh$1/"
`

func openPinyinStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "tcime.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.ImportSchema(ctx, "pinyin", []byte(pinyinDoc)))
	_, err = st.ImportRows(ctx, "pinyin", []store.Row{
		{Text: "你", Code: "ni"},
		{Text: "你好", Code: "ni hao"},
		{Text: "字", Code: "zi"},
		{Text: "知", Code: "zhi"},
		{Text: "知道", Code: "zhi dao"},
		{Text: "們", Code: "men"},
	})
	require.NoError(t, err)
	_, err = st.ImportConversions(ctx, []store.Conversion{{Traditional: "們", Simplified: "们"}})
	require.NoError(t, err)
	return st
}

func newPinyinEngine(t *testing.T, cfg *config.Config, st *store.Store) (*Engine, *hostSink) {
	t.Helper()
	sink := &hostSink{}
	e, err := NewEngine(Options{Config: cfg, Store: st, Sink: sink, Log: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.SelectSchema(context.Background(), "pinyin"))
	return e, sink
}

func TestPinyinEngine(t *testing.T) {
	e, sink := newPinyinEngine(t, testConfig(t), openPinyinStore(t))

	typeKeys(t, e, "ni")
	st := e.State()
	assert.Equal(t, "ni", st.Composing)
	assert.Equal(t, []candidate.Candidate{{Text: "你", Comment: "ni"}}, st.Candidates)

	typeKeys(t, e, "{space}")
	assert.Equal(t, []string{"你"}, sink.committed)
	st = e.State()
	assert.True(t, st.Following)
	assert.Equal(t, []string{"好"}, texts(st.Candidates))

	typeKeys(t, e, "1")
	assert.Equal(t, []string{"你", "好"}, sink.committed)
}

func TestPinyinPhraseAndEnter(t *testing.T) {
	e, sink := newPinyinEngine(t, testConfig(t), openPinyinStore(t))

	typeKeys(t, e, "ni'hao")
	st := e.State()
	assert.Equal(t, "ni'hao", st.Composing)
	assert.Equal(t, []string{"你好"}, texts(st.Candidates))

	typeKeys(t, e, "{enter}")
	assert.Equal(t, []string{"ni hao"}, sink.committed, "enter commits the typed syllables")
}

func TestFuzzyToggleIsSaved(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	st := openPinyinStore(t)
	e, _ := newPinyinEngine(t, cfg, st)

	assert.Equal(t, []FuzzyRule{{Name: "z_zh"}}, e.FuzzyRules())
	typeKeys(t, e, "zi")
	assert.Equal(t, []string{"字"}, texts(e.State().Candidates))

	require.NoError(t, e.SetFuzzy(ctx, "z_zh", true))
	assert.Equal(t, []string{"字", "知"}, texts(e.State().Candidates), "composing text is looked up again")
	assert.ErrorIs(t, e.SetFuzzy(ctx, "c_ch", true), ErrUnknownFuzzy)

	state, err := st.FuzzyState(ctx, "pinyin")
	require.NoError(t, err)
	assert.Equal(t, "1", state)

	again, _ := newPinyinEngine(t, cfg, st)
	assert.Equal(t, []FuzzyRule{{Name: "z_zh", Enabled: true}}, again.FuzzyRules())
}

func TestCommitPreferences(t *testing.T) {
	cfg := testConfig(t)
	e, sink := newPinyinEngine(t, cfg, openPinyinStore(t))

	next := cfg.Clone()
	next.Preferences.Simplified = true
	e.ApplyConfig(next)
	typeKeys(t, e, "men{space}")
	assert.Equal(t, []string{"们"}, sink.committed)

	next = cfg.Clone()
	next.Preferences.CommitComment = true
	next.Preferences.Association = false
	e.ApplyConfig(next)
	typeKeys(t, e, "zi{space}")
	assert.Equal(t, []string{"们", "zi"}, sink.committed)
	assert.Empty(t, e.State().Candidates, "no following words without association")
}

func TestReverseLookup(t *testing.T) {
	e, _ := newPinyinEngine(t, testConfig(t), openPinyinStore(t))
	codes, err := e.ReverseLookup(context.Background(), "知")
	require.NoError(t, err)
	assert.Equal(t, []string{"zhi"}, codes)
}

const strokeDoc = pinyinDoc + `
recognizer:
  patterns:
    reverse_lookup: "` + "`" + `[a-z]*"
reverse_lookup:
  dictionary: stroke
switches:
  - name: ascii_mode
    states: [中文, 西文]
    reset: 0
`

func TestReverseLookupByStroke(t *testing.T) {
	ctx := context.Background()
	st := openPinyinStore(t)
	require.NoError(t, st.ImportSchema(ctx, "pinyin", []byte(strokeDoc)))
	_, err := st.ImportRows(ctx, "stroke", []store.Row{
		{Text: "知", Code: "pshhn"},
		{Text: "字", Code: "nnhs"},
	})
	require.NoError(t, err)
	e, sink := newPinyinEngine(t, testConfig(t), st)

	typeKeys(t, e, "`")
	assert.Equal(t, "`", e.State().Composing)
	assert.Empty(t, e.State().Candidates)

	typeKeys(t, e, "ps")
	state := e.State()
	assert.Equal(t, "`ps", state.Composing)
	require.Len(t, state.Candidates, 1)
	assert.Equal(t, "知", state.Candidates[0].Text)
	assert.Equal(t, "zhi", state.Candidates[0].Comment, "comments show the main dictionary code")

	typeKeys(t, e, "{space}")
	assert.Equal(t, []string{"知"}, sink.committed)

	typeKeys(t, e, "{esc}zi")
	assert.Equal(t, []string{"字"}, texts(e.State().Candidates), "plain codes still use the main dictionary")
}

func TestASCIIModeSwitchReset(t *testing.T) {
	ctx := context.Background()
	st := openPinyinStore(t)
	require.NoError(t, st.ImportSchema(ctx, "pinyin", []byte(strokeDoc)))
	e, _ := newPinyinEngine(t, testConfig(t), st)
	assert.Equal(t, "中文", e.State().Mode)

	assert.True(t, e.ToggleASCII())
	assert.Equal(t, "西文", e.State().Mode)
	require.NoError(t, e.SelectSchema(ctx, "pinyin"))
	assert.False(t, e.State().ASCII, "reset 0 starts in scheme input")

	latin := strings.Replace(strokeDoc, "reset: 0", "reset: 1", 1)
	require.NoError(t, st.ImportSchema(ctx, "pinyin", []byte(latin)))
	require.NoError(t, e.SelectSchema(ctx, "pinyin"))
	assert.True(t, e.State().ASCII)
	assert.False(t, e.ProcessKey(NewKey('a')), "literal input passes keys through")
}

func TestASCIIModeWithoutResetIsKept(t *testing.T) {
	e, _ := newPinyinEngine(t, testConfig(t), openPinyinStore(t))
	assert.True(t, e.ToggleASCII())
	require.NoError(t, e.SelectSchema(context.Background(), "pinyin"))
	assert.True(t, e.State().ASCII)
}

func TestSchemaErrors(t *testing.T) {
	cfg := testConfig(t)
	writeSchema(t, cfg, "pinyin", pinyinDoc)
	e, err := NewEngine(Options{Config: cfg, Sink: &hostSink{}, Log: logging.Discard()})
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	assert.ErrorIs(t, e.WaitReady(ctx), ErrNoSchema)
	assert.ErrorIs(t, e.SetFuzzy(ctx, "z_zh", true), ErrNoSchema)
	assert.Nil(t, e.Schema())
	assert.False(t, e.ProcessKey(NewKey('a')), "keys pass through before a schema is selected")

	assert.ErrorIs(t, e.SelectSchema(ctx, "pinyin"), ErrNoStore)
	assert.ErrorIs(t, e.SelectSchema(ctx, "wubi"), schema.ErrNotFound)
}

func TestSchemasListsStoreAndDirectory(t *testing.T) {
	cfg := testConfig(t)
	writeSchema(t, cfg, "cangjie", cangjieDoc)
	e, _ := newPinyinEngine(t, cfg, openPinyinStore(t))

	list, err := e.Schemas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []schema.Info{{ID: "cangjie", Name: "倉頡"}, {ID: "pinyin", Name: "拼音"}}, list)
}

func TestSessions(t *testing.T) {
	e, _ := newCangjieEngine(t, testConfig(t))

	first := e.Session()
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	typeKeys(t, e, "ab")
	e.Start(compose.KindText)
	assert.NotEqual(t, first, e.Session())
	assert.Equal(t, "", e.State().Composing)

	e.Start(compose.KindNumber)
	assert.False(t, e.ProcessKey(NewKey('a')), "number fields do not compose")
}

func TestCursorMovedDropsComposing(t *testing.T) {
	e, sink := newCangjieEngine(t, testConfig(t))
	typeKeys(t, e, "ab")
	e.CursorMoved()
	st := e.State()
	assert.Equal(t, "", st.Composing)
	assert.Empty(t, st.Candidates)
	assert.Empty(t, sink.committed)
}

func TestWatchSchemasReloadsCurrent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schema.Watch = true
	e, _ := newCangjieEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.WatchSchemas(ctx))

	writeSchema(t, cfg, "cangjie", "schema:\n  name: 速成\nengine:\n  kind: cangjie\n  simplified: true\n")
	assert.Eventually(t, func() bool {
		sc := e.Schema()
		return sc != nil && sc.Name == "速成"
	}, 3*time.Second, 20*time.Millisecond)
}
