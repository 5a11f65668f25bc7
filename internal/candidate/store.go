package candidate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tcime/internal/rules"
	"tcime/internal/schema"
	"tcime/internal/store"
)

// QueryLimit caps prefix, phrase and association queries.
const QueryLimit = 100

// Store is the dictionary store queried by StoreSource.
type Store interface {
	MatchCode(ctx context.Context, table, query string, opts store.MatchOptions) ([]store.Row, error)
	Following(ctx context.Context, table, prefix string, limit int) ([]string, error)
	Codes(ctx context.Context, table, text string) ([]string, error)
}

// Options are the user preferences that shape store queries.
type Options struct {
	// FullPinyin stops short keys from falling back to prefix matches.
	FullPinyin bool
	// SingleChar keeps only one-character words.
	SingleChar bool
	// ShowComment fills Candidate.Comment from the row code.
	ShowComment bool
	// Association enables following-word queries.
	Association bool
}

// StoreSource builds full-text queries from a schema's rules.
type StoreSource struct {
	Store   Store
	Schema  *schema.Schema
	Options Options
	Log     *slog.Logger
}

func (s *StoreSource) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Query returns the match expression for code and whether it is a phrase
// key. Lookup rules run first. A key containing the syllable separator is
// a phrase; its separators become "'" before fuzzy expansion so that the
// " OR " joins stay distinct from syllable breaks.
func (s *StoreSource) Query(code string) (query string, phrase bool) {
	code = s.Schema.Lookup.Apply(code)
	if sep := s.Schema.Speller.Separator(); sep != "" && strings.Contains(code, sep) {
		phrase = true
		code = strings.ReplaceAll(code, sep, "'")
	}
	return s.Schema.Fuzzy.Expand(code), phrase
}

// Lookup implements Source. Single syllables try an exact match first and
// fall back to a prefix match, except for short keys in full-pinyin mode.
func (s *StoreSource) Lookup(ctx context.Context, code string) ([]Candidate, error) {
	if code == "" {
		return nil, nil
	}
	if rc, ok := s.Schema.ReverseLookupCode(code); ok {
		return s.reverse(ctx, rc)
	}
	q, phrase := s.Query(code)
	var (
		rows []store.Row
		err  error
	)
	if phrase {
		rows, err = s.phrase(ctx, q)
	} else {
		rows, err = s.word(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", code, err)
	}
	return s.candidates(rows), nil
}

func (s *StoreSource) word(ctx context.Context, q string) ([]store.Row, error) {
	opts := store.MatchOptions{SingleSyllable: true, SingleChar: s.Options.SingleChar}
	rows, err := s.Store.MatchCode(ctx, s.Schema.Table, q, opts)
	if err != nil || len(rows) > 0 {
		return rows, err
	}
	if s.Options.FullPinyin && len(q) < 3 {
		return nil, nil
	}
	opts.Limit = QueryLimit
	prefix := strings.ReplaceAll(q, " OR", "* OR") + "*"
	s.logger().Debug("prefix query", "query", prefix)
	return s.Store.MatchCode(ctx, s.Schema.Table, prefix, opts)
}

// phrase tries anchored phrase queries from strict to loose: the exact
// syllables, then a prefix on the last syllable, then a prefix on every
// syllable.
func (s *StoreSource) phrase(ctx context.Context, q string) ([]store.Row, error) {
	opts := store.MatchOptions{Limit: QueryLimit}
	stop := s.Options.FullPinyin && len(q) < 6

	forms := []struct{ or, sep, tail string }{
		{`" OR "^`, " ", `"`},
		{`*" OR "^`, " ", `*"`},
		{`*" OR "^`, "* ", `*"`},
	}
	for i, f := range forms {
		expr := `"^` + strings.ReplaceAll(strings.ReplaceAll(q, rules.Or, f.or), "'", f.sep) + f.tail
		rows, err := s.Store.MatchCode(ctx, s.Schema.Table, expr, opts)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 || (i == 0 && stop) {
			return rows, nil
		}
	}
	return nil, nil
}

// reverse searches the reverse lookup dictionary by code prefix and
// comments each word with its codes in the schema's own dictionary.
func (s *StoreSource) reverse(ctx context.Context, code string) ([]Candidate, error) {
	if code == "" {
		return nil, nil
	}
	opts := store.MatchOptions{Limit: QueryLimit, SingleChar: s.Options.SingleChar}
	rows, err := s.Store.MatchCode(ctx, s.Schema.ReverseTable, code+"*", opts)
	if err != nil {
		return nil, fmt.Errorf("reverse lookup %q: %w", code, err)
	}
	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Candidate{Text: r.Text, Offset: i}
		codes, err := s.Comments(ctx, r.Text)
		if err != nil {
			s.logger().Warn("reverse lookup comment", "error", err)
			continue
		}
		out[i].Comment = strings.Join(codes, " ")
	}
	return out, nil
}

func (s *StoreSource) candidates(rows []store.Row) []Candidate {
	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Candidate{Text: r.Text, Offset: i}
		if s.Options.ShowComment {
			out[i].Comment = s.Schema.Comment.Apply(r.Code)
		}
	}
	return out
}

// Following implements Source. It returns nothing unless association is
// enabled.
func (s *StoreSource) Following(ctx context.Context, text string) ([]string, error) {
	if !s.Options.Association || text == "" {
		return nil, nil
	}
	return s.Store.Following(ctx, s.Schema.Table, text, QueryLimit)
}

// Comments returns the formatted codes of text, e.g. its pronunciations.
func (s *StoreSource) Comments(ctx context.Context, text string) ([]string, error) {
	codes, err := s.Store.Codes(ctx, s.Schema.Table, text)
	if err != nil {
		return nil, err
	}
	for i, c := range codes {
		codes[i] = s.Schema.Comment.Apply(c)
	}
	return codes, nil
}
