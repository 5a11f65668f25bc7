package ime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/width"

	"tcime/internal/candidate"
	"tcime/internal/compose"
	"tcime/internal/config"
	"tcime/internal/dict"
	"tcime/internal/logging"
	"tcime/internal/rules"
	"tcime/internal/schema"
	"tcime/internal/store"
)

// TableSuffix names the default packed table of a table scheme:
// "<engine>" + TableSuffix in the table directory.
const TableSuffix = ".dict"

var (
	// ErrNoStore is returned when a schema needs the dictionary store and
	// the engine has none.
	ErrNoStore = errors.New("ime: schema needs a dictionary store")
	// ErrNoSchema is returned before a schema has been selected.
	ErrNoSchema = errors.New("ime: no schema selected")
	// ErrUnknownFuzzy is returned for a fuzzy toggle the schema does not
	// declare.
	ErrUnknownFuzzy = errors.New("ime: unknown fuzzy rule")
	// ErrNoReverseLookup is returned when the schema cannot list the codes
	// of a text.
	ErrNoReverseLookup = errors.New("ime: reverse lookup not supported")
)

// Options configures an Engine.
type Options struct {
	// Config defaults to config.DefaultConfig().
	Config *config.Config

	// Store holds dictionaries, schema documents and fuzzy toggles. Its
	// schemas win over Schemas.
	Store *store.Store

	// Schemas defaults to the configured schema directory.
	Schemas schema.Source

	// Tables opens packed tables by name. The default reads files from
	// the configured table directory.
	Tables func(name string) dict.Source

	// Sink receives commits and the composing preview. It is called with
	// the engine locked and must not call back into the engine.
	Sink compose.TextSink

	// Mode, when set, reports the host keyboard mode.
	Mode compose.ModeSignal

	Log *slog.Logger
}

// runtime is everything derived from one schema. It is never modified after
// it is stored, except for fuzzy toggles which guard themselves.
type runtime struct {
	schema *schema.Schema
	scheme compose.Scheme
	source candidate.Source
	tables *dict.Set
}

const (
	wordsTable   = "words"
	phrasesTable = "phrases"
)

// Engine routes key presses through the composing machine and the
// candidate resolver of the selected schema. All methods are safe for
// concurrent use; key handling is serialised.
type Engine struct {
	mu      sync.Mutex
	cfg     *config.Config
	prefs   config.Preferences
	store   *store.Store
	fuzzy   rules.FuzzyStore
	schemas schema.Source
	tables  func(string) dict.Source
	mode    compose.ModeSignal
	log     *slog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	session    string
	sessionCtx context.Context

	active   dict.Active[runtime]
	machine  *compose.Machine
	resolver *candidate.Resolver
	ascii    bool
}

// NewEngine returns an engine with no schema selected. Call SelectSchema
// before sending keys.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Sink == nil {
		return nil, errors.New("ime: a text sink is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "engine")

	e := &Engine{
		cfg:     cfg,
		prefs:   cfg.Prefs(),
		store:   opts.Store,
		schemas: opts.Schemas,
		tables:  opts.Tables,
		mode:    opts.Mode,
		log:     log,
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if e.schemas == nil {
		e.schemas = schema.DirSource{Dir: cfg.Schema.Dir}
	}
	if opts.Store != nil {
		e.schemas = schema.Chain{opts.Store, e.schemas}
		e.fuzzy = opts.Store
	}
	if e.tables == nil {
		dir := cfg.Dictionary.TableDir
		e.tables = func(name string) dict.Source {
			if !filepath.IsAbs(name) {
				name = filepath.Join(dir, name)
			}
			return dict.FileSource(name)
		}
	}

	e.machine = compose.New(nil, opts.Sink, compose.ModeFunc(e.currentMode), log)
	e.machine.Subscribe(e.onEvent)
	e.resolver = candidate.NewResolver(nil, resolverConfig(cfg), log)
	e.newSession()
	return e, nil
}

func resolverConfig(cfg *config.Config) candidate.Config {
	return candidate.Config{
		MaxItems:     cfg.Candidates.PageSize,
		MaxWidth:     cfg.Candidates.MaxWidth,
		FollowingTTL: cfg.FollowingTTL(),
	}
}

func (e *Engine) newSession() {
	e.session = uuid.NewString()
	e.sessionCtx = logging.ContextWithSession(e.ctx, e.session)
	logging.ForContext(e.sessionCtx, e.log).Debug("session started")
}

func (e *Engine) currentMode() compose.Mode {
	if e.ascii {
		return compose.ModeASCII
	}
	if e.mode != nil {
		return e.mode.Mode()
	}
	return compose.ModeScheme
}

// lookupCtx bounds how long a lookup waits for tables still loading.
func (e *Engine) lookupCtx() (context.Context, context.CancelFunc) {
	if d := e.cfg.LoadTimeout(); d > 0 {
		return context.WithTimeout(e.sessionCtx, d)
	}
	return context.WithCancel(e.sessionCtx)
}

func (e *Engine) onEvent(ev compose.Event) {
	switch ev.Kind {
	case compose.Changed:
		e.query()
	case compose.Cleared, compose.Committed:
		e.resolver.Clear()
	}
}

func (e *Engine) query() {
	ctx, cancel := e.lookupCtx()
	defer cancel()
	e.resolver.Query(ctx, e.machine.Key())
}

// SelectSchema loads a schema and makes it current. Composing text is
// dropped. An ascii_mode switch with a reset state sets literal input. Table schemes start loading their tables in the background;
// lookups wait for them up to the configured load timeout.
func (e *Engine) SelectSchema(ctx context.Context, id string) error {
	e.mu.Lock()
	prefs := e.prefs
	e.mu.Unlock()

	rt, err := e.build(ctx, id, prefs)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.active.Store(rt)
	e.machine.SetScheme(rt.scheme)
	e.resolver.SetSource(rt.source)
	if sw, ok := rt.schema.Switch(schema.SwitchASCIIMode); ok && sw.Reset >= 0 {
		e.ascii = sw.Reset == 1
	}
	e.log.Info("schema selected", "schema", rt.schema.ID, "engine", rt.schema.Engine, "ascii", e.ascii)
	return nil
}

func (e *Engine) build(ctx context.Context, id string, prefs config.Preferences) (*runtime, error) {
	sc, err := schema.Open(ctx, e.schemas, id)
	if err != nil {
		return nil, fmt.Errorf("open schema %s: %w", id, err)
	}
	rt := &runtime{schema: sc, scheme: compose.ForSchema(sc)}

	switch sc.Engine {
	case schema.EngineCangjie, schema.EngineZhuyin:
		words := sc.WordTable
		if words == "" {
			words = sc.Engine + TableSuffix
		}
		sources := map[string]dict.Source{wordsTable: e.tables(words)}
		if sc.PhraseTable != "" {
			sources[phrasesTable] = e.tables(sc.PhraseTable)
		}
		rt.tables = dict.LoadSet(e.ctx, sources, e.log)
		w, p := rt.tables.Get(wordsTable), rt.tables.Get(phrasesTable)
		if sc.Engine == schema.EngineCangjie {
			rt.source = candidate.NewCangjieSource(w, p, sc.Simplified)
		} else {
			rt.source = candidate.NewZhuyinSource(w, p)
		}
	default:
		if e.store == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoStore, sc.ID)
		}
		if e.fuzzy != nil {
			state, err := e.fuzzy.FuzzyState(ctx, sc.ID)
			if err != nil {
				e.log.Warn("fuzzy state unavailable", "schema", sc.ID, "error", err)
			} else {
				sc.Fuzzy.Restore(state)
			}
		}
		rt.source = e.storeSource(sc, prefs)
	}
	return rt, nil
}

func (e *Engine) storeSource(sc *schema.Schema, prefs config.Preferences) *candidate.StoreSource {
	return &candidate.StoreSource{
		Store:  e.store,
		Schema: sc,
		Options: candidate.Options{
			FullPinyin:  prefs.FullPinyin,
			SingleChar:  prefs.SingleChar,
			ShowComment: prefs.ShowComment,
			Association: prefs.Association,
		},
		Log: e.log,
	}
}

// WaitReady blocks until the tables of the current schema have loaded.
func (e *Engine) WaitReady(ctx context.Context) error {
	rt := e.active.Load()
	if rt == nil {
		return ErrNoSchema
	}
	if rt.tables == nil {
		return nil
	}
	return rt.tables.Wait(ctx)
}

// Schema returns the current schema, or nil.
func (e *Engine) Schema() *schema.Schema {
	if rt := e.active.Load(); rt != nil {
		return rt.schema
	}
	return nil
}

// Schemas lists the schemas that SelectSchema can open.
func (e *Engine) Schemas(ctx context.Context) ([]schema.Info, error) {
	return e.schemas.List(ctx)
}

// WatchSchemas reselects the current schema whenever its file in the
// configured schema directory changes. It does nothing unless schema
// watching is enabled.
func (e *Engine) WatchSchemas(ctx context.Context) error {
	if !e.cfg.Schema.Watch {
		return nil
	}
	dir := schema.DirSource{Dir: e.cfg.Schema.Dir}
	return dir.Watch(ctx, e.log, func(id string) {
		if sc := e.Schema(); sc == nil || sc.ID != id {
			return
		}
		if err := e.SelectSchema(ctx, id); err != nil {
			e.log.Warn("schema reload failed", "schema", id, "error", err)
		}
	})
}

// ApplyConfig switches to a new configuration. Store lookups pick up the
// new preferences at once; composing text is looked up again.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.cfg
	e.cfg = cfg
	e.prefs = cfg.Prefs()
	if old.Candidates != cfg.Candidates {
		e.resolver = candidate.NewResolver(e.resolver.Source(), resolverConfig(cfg), e.log)
	}
	if rt := e.active.Load(); rt != nil {
		if _, ok := rt.source.(*candidate.StoreSource); ok {
			next := *rt
			next.source = e.storeSource(rt.schema, e.prefs)
			e.active.Store(&next)
			e.resolver.SetSource(next.source)
		}
	}
	if e.machine.State() == compose.Composing {
		e.query()
	}
	e.log.Debug("configuration applied")
}

// WatchConfig applies every configuration the loader reloads.
func (e *Engine) WatchConfig(l *config.Loader) {
	l.OnChange(e.ApplyConfig)
}

// Start begins a new session for a field of the given kind.
func (e *Engine) Start(kind compose.InputKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.newSession()
	e.machine.Start(kind)
	e.resolver.Clear()
}

// Session returns the current session id.
func (e *Engine) Session() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// CursorMoved drops composing text after the host moved the caret.
func (e *Engine) CursorMoved() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.machine.CursorMoved()
	e.resolver.Clear()
}

// ToggleASCII switches between scheme and literal input and returns true
// when literal input is now on. Composing text is committed as typed.
func (e *Engine) ToggleASCII() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine.State() == compose.Composing {
		e.commitRaw()
	}
	e.resolver.Clear()
	e.ascii = !e.ascii
	return e.ascii
}

// ProcessKey handles one key press. It returns false when the host should
// handle the key itself.
func (e *Engine) ProcessKey(key Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if key.Code == KeyNone || key.Chorded() {
		return false
	}
	logging.ForContext(e.sessionCtx, e.log).Debug("key", "code", key.String(), "composing", e.machine.Text())

	switch key.Code {
	case KeyChar:
		return e.onChar(key)
	case KeySpace:
		return e.onSpace()
	case KeyEnter:
		return e.onEnter()
	case KeyBackspace:
		if e.machine.DeleteLast() {
			return true
		}
		e.resolver.Clear()
		return false
	case KeyEscape:
		if e.machine.Escape() {
			return true
		}
		if !e.resolver.Empty() {
			e.resolver.Clear()
			return true
		}
		return false
	}
	return e.onNavigate(key.Code)
}

func (e *Engine) onChar(key Key) bool {
	c := key.Char
	if !key.Shifted() && e.machine.Active() {
		if res := e.machine.Accept(c); res.Consumed {
			if res.AutoSelect && !e.resolver.Empty() {
				e.pick(e.resolver.HighlightIndex())
			}
			return true
		}
		if c >= '1' && c <= '9' && e.pick(int(c-'1')) {
			return true
		}
	}
	if !e.machine.Active() && !e.prefs.FullShape {
		return false
	}

	if e.machine.State() == compose.Composing {
		if !e.pick(e.resolver.HighlightIndex()) {
			e.commitRaw()
		}
	}
	if key.Shifted() {
		c = unicode.ToUpper(c)
	}
	e.commitLiteral(string(c))
	return true
}

// onSpace picks the highlighted candidate of a composition. Without
// candidates the scheme may take the space, as Zhuyin does for the first
// tone; otherwise the composing text is dropped. When idle it types a
// space. Following words are not picked by space.
func (e *Engine) onSpace() bool {
	if e.machine.State() == compose.Composing {
		if e.pick(e.resolver.HighlightIndex()) {
			return true
		}
		if !e.machine.Accept(' ').Consumed {
			e.machine.Escape()
		}
		return true
	}
	if !e.machine.Active() && !e.prefs.FullShape {
		e.resolver.Clear()
		return false
	}
	e.commitLiteral(" ")
	return true
}

// onEnter commits composing text as typed, with delimiters turned into
// spaces. When idle it inserts a line break in short-message fields and
// otherwise leaves the key to the host.
func (e *Engine) onEnter() bool {
	if e.machine.State() == compose.Composing {
		e.commitRaw()
		return true
	}
	e.resolver.Clear()
	if e.machine.EnterAsLineBreak() {
		e.machine.Commit("\n")
		return true
	}
	return false
}

func (e *Engine) onNavigate(code KeyCode) bool {
	if e.resolver.Empty() {
		return e.machine.State() == compose.Composing
	}
	switch code {
	case KeyPageUp, KeyUp:
		e.resolver.PrevPage()
	case KeyPageDown, KeyDown:
		e.resolver.NextPage()
	case KeyLeft:
		e.resolver.SetHighlight(e.resolver.HighlightIndex() - 1)
	case KeyRight:
		e.resolver.SetHighlight(e.resolver.HighlightIndex() + 1)
	case KeyHome:
		e.resolver.SetHighlight(0)
	case KeyEnd:
		e.resolver.SetHighlight(len(e.resolver.Page()) - 1)
	}
	return true
}

// Pick commits the i-th candidate of the current page.
func (e *Engine) Pick(i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pick(i)
}

type commitFunc func(string)

func (f commitFunc) Commit(text string) { f(text) }

func (e *Engine) pick(i int) bool {
	page := e.resolver.Page()
	if i < 0 || i >= len(page) {
		return false
	}
	cand := page[i]
	commitComment := e.prefs.CommitComment
	ctx, cancel := e.lookupCtx()
	defer cancel()

	e.resolver.Pick(ctx, i, commitFunc(func(text string) {
		if commitComment && cand.Comment != "" {
			text = cand.Comment
		}
		e.commit(ctx, text)
	}))
	if !e.prefs.Association {
		e.resolver.Clear()
	}
	return true
}

// commit sends a picked word to the sink, converted to simplified
// characters when asked for.
func (e *Engine) commit(ctx context.Context, text string) {
	if e.prefs.Simplified && e.store != nil {
		if s, err := e.store.Convert(ctx, text); err != nil {
			e.log.Warn("simplified conversion failed", "error", err)
		} else {
			text = s
		}
	}
	logging.ForContext(ctx, e.log).Debug("commit", "commit", text)
	e.machine.Commit(text)
}

// commitRaw commits the composing text as typed.
func (e *Engine) commitRaw() {
	text := e.machine.Text()
	if rt := e.active.Load(); rt != nil && rt.schema.Engine == schema.EngineScript {
		sp := rt.schema.Speller
		text = strings.Map(func(r rune) rune {
			if sp.IsDelimiter(string(r)) {
				return ' '
			}
			return r
		}, text)
		text = strings.TrimSpace(text)
	}
	e.machine.Commit(text)
}

func (e *Engine) commitLiteral(text string) {
	if e.prefs.FullShape {
		text = width.Widen.String(text)
	}
	e.machine.Commit(text)
}

// SetFuzzy switches a fuzzy toggle of the current schema, saves the toggle
// state and looks composing text up again.
func (e *Engine) SetFuzzy(ctx context.Context, name string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rt := e.active.Load()
	if rt == nil {
		return ErrNoSchema
	}
	if !rt.schema.Fuzzy.Set(name, on) {
		return fmt.Errorf("%w: %s", ErrUnknownFuzzy, name)
	}
	if e.fuzzy != nil {
		if err := e.fuzzy.SaveFuzzyState(ctx, rt.schema.ID, rt.schema.Fuzzy.State()); err != nil {
			return fmt.Errorf("save fuzzy state: %w", err)
		}
	}
	if e.machine.State() == compose.Composing {
		e.query()
	}
	return nil
}

// FuzzyRule is a fuzzy toggle and its state.
type FuzzyRule struct {
	Name    string
	Enabled bool
}

// FuzzyRules lists the fuzzy toggles of the current schema.
func (e *Engine) FuzzyRules() []FuzzyRule {
	rt := e.active.Load()
	if rt == nil {
		return nil
	}
	var out []FuzzyRule
	for _, n := range rt.schema.Fuzzy.Names() {
		out = append(out, FuzzyRule{Name: n, Enabled: rt.schema.Fuzzy.Enabled(n)})
	}
	return out
}

// ReverseLookup returns the formatted codes of text in the current
// schema's dictionary, such as the pronunciations of a word.
func (e *Engine) ReverseLookup(ctx context.Context, text string) ([]string, error) {
	rt := e.active.Load()
	if rt == nil {
		return nil, ErrNoSchema
	}
	src, ok := rt.source.(*candidate.StoreSource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoReverseLookup, rt.schema.ID)
	}
	return src.Comments(ctx, text)
}

// State is a snapshot of what a host displays.
type State struct {
	Session    string
	Schema     string
	Composing  string
	Preedit    string
	Candidates []candidate.Candidate
	Highlight  int
	FirstPage  bool
	LastPage   bool
	Following  bool
	NotReady   bool
	ASCII      bool
	// Mode is the ascii_mode switch label for the current state, if the
	// schema names one.
	Mode string
}

// State returns the current display state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Session:    e.session,
		Composing:  e.machine.Text(),
		Candidates: e.resolver.Page(),
		Highlight:  e.resolver.HighlightIndex(),
		FirstPage:  e.resolver.IsFirst(),
		LastPage:   e.resolver.IsLast(),
		Following:  e.resolver.IsFollowing(),
		NotReady:   e.resolver.NotReady(),
		ASCII:      e.ascii,
	}
	if rt := e.active.Load(); rt != nil {
		st.Schema = rt.schema.ID
		if sw, ok := rt.schema.Switch(schema.SwitchASCIIMode); ok {
			st.Mode = sw.Label(e.ascii)
		}
		if st.Composing != "" {
			st.Preedit = rt.scheme.Preedit(st.Composing)
		}
	}
	return st
}

// Close stops background table loading and watches started by the engine.
func (e *Engine) Close() error {
	e.cancel()
	return nil
}
