// Package candidate looks up candidate words for a composing code and pages
// through them.
//
// A Source answers lookups: TableSource reads the packed in-memory tables of
// the Cangjie and Zhuyin schemes, StoreSource builds full-text queries for
// schema-driven input. The Resolver keeps the candidate list of the current
// code and exposes it one bounded page at a time.
package candidate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"tcime/internal/codetable"
	"tcime/internal/dict"
	"tcime/internal/zhuyin"
)

// ErrNotReady is returned while the backing tables are still loading or
// could not be loaded.
var ErrNotReady = errors.New("candidate: source not ready")

// Candidate is one entry of a candidate list.
type Candidate struct {
	Text string
	// Comment is optional, e.g. the romanization of Text.
	Comment string
	// Offset is the position in the full candidate list.
	Offset int
}

// Source finds candidates for a code and words that follow a commit.
type Source interface {
	Lookup(ctx context.Context, code string) ([]Candidate, error)
	Following(ctx context.Context, text string) ([]string, error)
}

// WordTable maps a code to its words.
type WordTable interface {
	Words(code string) []rune
}

type cangjieWords struct {
	table      *codetable.Table
	simplified bool
}

func (c cangjieWords) Words(code string) []rune {
	if c.simplified {
		return c.table.SimplifiedWords(code)
	}
	return c.table.Words(code)
}

// TableSource serves candidates from a word table and an optional phrase
// table that are loaded in the background.
type TableSource struct {
	words   *dict.Handle
	phrases *dict.Handle
	build   func(dict.Data) (WordTable, error)

	mu     sync.Mutex
	table  WordTable
	follow *dict.Phrases
	err    error
}

// NewCangjieSource returns a source over a Cangjie code table.
func NewCangjieSource(words, phrases *dict.Handle, simplified bool) *TableSource {
	return &TableSource{
		words:   words,
		phrases: phrases,
		build: func(d dict.Data) (WordTable, error) {
			t, err := codetable.NewTable(codetable.CangjieEncoder, d)
			if err != nil {
				return nil, err
			}
			return cangjieWords{table: t, simplified: simplified}, nil
		},
	}
}

// NewZhuyinSource returns a source over a Zhuyin syllable table.
func NewZhuyinSource(words, phrases *dict.Handle) *TableSource {
	return &TableSource{
		words:   words,
		phrases: phrases,
		build: func(d dict.Data) (WordTable, error) {
			t, err := zhuyin.NewTable(d)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
	}
}

// Ready reports whether every table has finished loading.
func (s *TableSource) Ready() bool {
	return s.words.Ready() && (s.phrases == nil || s.phrases.Ready())
}

// load waits for the tables. A load failure is kept; a cancelled wait is
// not, so a later call may still succeed.
func (s *TableSource) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil || s.err != nil {
		return s.err
	}

	d, err := s.words.Wait(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
	}
	if err != nil {
		s.err = fmt.Errorf("%w: %s: %v", ErrNotReady, s.words.Name(), err)
		return s.err
	}
	table, err := s.build(d)
	if err != nil {
		s.err = fmt.Errorf("%w: %s: %v", ErrNotReady, s.words.Name(), err)
		return s.err
	}

	if s.phrases != nil {
		pd, err := s.phrases.Wait(ctx)
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
		}
		if err == nil {
			// A broken phrase table only disables following words.
			s.follow, _ = dict.NewPhrases(pd)
		}
	}
	s.table = table
	return nil
}

// Lookup implements Source.
func (s *TableSource) Lookup(ctx context.Context, code string) ([]Candidate, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	words := s.table.Words(code)
	out := make([]Candidate, len(words))
	for i, w := range words {
		out[i] = Candidate{Text: string(w), Offset: i}
	}
	return out, nil
}

// Following implements Source. Words follow the last character of text.
func (s *TableSource) Following(ctx context.Context, text string) ([]string, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	if s.follow == nil || text == "" {
		return nil, nil
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	words := s.follow.Following(last)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = string(w)
	}
	return out, nil
}
