package candidate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/patrickmn/go-cache"
)

// Committer receives the text of a picked candidate. The composing machine
// implements it.
type Committer interface {
	Commit(text string)
}

// Config bounds a page. A zero field is no bound; a page always holds at
// least one candidate.
type Config struct {
	// MaxItems is the most candidates on a page.
	MaxItems int
	// MaxWidth is the most display columns a page may take. Each candidate
	// takes the width of its text and comment plus one separator column.
	MaxWidth int
	// FollowingTTL is how long following words stay cached.
	FollowingTTL time.Duration
}

// DefaultConfig returns the page bounds used by the engine.
func DefaultConfig() Config {
	return Config{MaxItems: 9, MaxWidth: 0, FollowingTTL: 10 * time.Minute}
}

// Resolver holds the candidate list for the current code and pages through
// it. It is not safe for concurrent use.
type Resolver struct {
	src Source
	cfg Config
	log *slog.Logger

	following *cache.Cache

	code      string
	all       []Candidate
	starts    []int
	end       int
	page      []Candidate
	highlight int
	notReady  bool
	isFollow  bool
}

// NewResolver returns a resolver over src.
func NewResolver(src Source, cfg Config, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FollowingTTL <= 0 {
		cfg.FollowingTTL = DefaultConfig().FollowingTTL
	}
	return &Resolver{
		src:       src,
		cfg:       cfg,
		log:       log,
		following: cache.New(cfg.FollowingTTL, 2*cfg.FollowingTTL),
	}
}

// SetSource replaces the source and drops all state, cached following
// words included.
func (r *Resolver) SetSource(src Source) {
	r.src = src
	r.following.Flush()
	r.Clear()
}

// Source returns the current source.
func (r *Resolver) Source() Source { return r.src }

// Query looks code up and shows the first page. A failing source yields an
// empty list and sets NotReady.
func (r *Resolver) Query(ctx context.Context, code string) {
	r.Clear()
	r.code = code
	if code == "" || r.src == nil {
		return
	}
	list, err := r.src.Lookup(ctx, code)
	if err != nil {
		r.notReady = true
		level := slog.LevelWarn
		if errors.Is(err, ErrNotReady) {
			level = slog.LevelDebug
		}
		r.log.Log(ctx, level, "candidate lookup failed", "code", code, "error", err)
		return
	}
	r.show(list)
}

// ShowFollowing looks up the words that follow text and shows them as the
// candidate list. Results are cached per text.
func (r *Resolver) ShowFollowing(ctx context.Context, text string) {
	r.Clear()
	if text == "" || r.src == nil {
		return
	}
	var words []string
	if v, ok := r.following.Get(text); ok {
		words = v.([]string)
	} else {
		var err error
		words, err = r.src.Following(ctx, text)
		if err != nil {
			r.log.Debug("following words unavailable", "text", text, "error", err)
			return
		}
		r.following.SetDefault(text, words)
	}
	list := make([]Candidate, len(words))
	for i, w := range words {
		list[i] = Candidate{Text: w, Offset: i}
	}
	r.isFollow = len(list) > 0
	r.show(list)
}

func (r *Resolver) show(list []Candidate) {
	r.all = list
	r.starts = []int{0}
	r.layout()
}

// layout fills the page that starts at the top of the start stack.
func (r *Resolver) layout() {
	r.highlight = 0
	r.page = r.page[:0]
	start := r.starts[len(r.starts)-1]
	seen := make(map[Candidate]bool)
	width := 0
	i := start
	for ; i < len(r.all); i++ {
		c := r.all[i]
		key := Candidate{Text: c.Text, Comment: c.Comment}
		if seen[key] {
			continue
		}
		if r.cfg.MaxItems > 0 && len(r.page) >= r.cfg.MaxItems {
			break
		}
		w := runewidth.StringWidth(c.Text) + runewidth.StringWidth(c.Comment) + 1
		if r.cfg.MaxWidth > 0 && len(r.page) > 0 && width+w > r.cfg.MaxWidth {
			break
		}
		seen[key] = true
		width += w
		r.page = append(r.page, c)
	}
	r.end = i
}

// Code returns the code of the current list.
func (r *Resolver) Code() string { return r.code }

// Len returns the size of the whole candidate list.
func (r *Resolver) Len() int { return len(r.all) }

// Empty reports whether there is nothing to pick.
func (r *Resolver) Empty() bool { return len(r.page) == 0 }

// NotReady reports whether the last lookup failed.
func (r *Resolver) NotReady() bool { return r.notReady }

// IsFollowing reports whether the list holds following words.
func (r *Resolver) IsFollowing() bool { return r.isFollow }

// Page returns a copy of the current page.
func (r *Resolver) Page() []Candidate {
	out := make([]Candidate, len(r.page))
	copy(out, r.page)
	return out
}

// IsFirst reports whether the current page is the first one.
func (r *Resolver) IsFirst() bool { return len(r.starts) <= 1 }

// IsLast reports whether no candidates follow the current page.
func (r *Resolver) IsLast() bool { return r.end >= len(r.all) }

// NextPage moves forward one page. It returns false on the last page.
func (r *Resolver) NextPage() bool {
	if r.IsLast() {
		return false
	}
	r.starts = append(r.starts, r.end)
	r.layout()
	return true
}

// PrevPage moves back one page. It returns false on the first page.
func (r *Resolver) PrevPage() bool {
	if r.IsFirst() {
		return false
	}
	r.starts = r.starts[:len(r.starts)-1]
	r.layout()
	return true
}

// SetHighlight highlights the i-th candidate of the page.
func (r *Resolver) SetHighlight(i int) bool {
	if i < 0 || i >= len(r.page) {
		return false
	}
	r.highlight = i
	return true
}

// Highlighted returns the highlighted candidate.
func (r *Resolver) Highlighted() (Candidate, bool) {
	if len(r.page) == 0 {
		return Candidate{}, false
	}
	return r.page[r.highlight], true
}

// HighlightIndex returns the page index of the highlighted candidate.
func (r *Resolver) HighlightIndex() int { return r.highlight }

// Pick commits the i-th candidate of the page through c and then shows the
// words that follow it.
func (r *Resolver) Pick(ctx context.Context, i int, c Committer) (Candidate, bool) {
	if i < 0 || i >= len(r.page) {
		return Candidate{}, false
	}
	picked := r.page[i]
	c.Commit(picked.Text)
	r.ShowFollowing(ctx, picked.Text)
	return picked, true
}

// Clear drops the list.
func (r *Resolver) Clear() {
	r.code = ""
	r.all = nil
	r.starts = nil
	r.end = 0
	r.page = r.page[:0]
	r.highlight = 0
	r.notReady = false
	r.isFollow = false
}
