package codetable

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tcime/internal/dict"
)

// ErrTableSize is returned when packed data does not match the encoder.
var ErrTableSize = errors.New("codetable: table does not match encoder")

// Table is an immutable code table. Row i holds the secondary indices of
// the words under primary index i in its first half and the words, in the
// same order, in its second half.
type Table struct {
	enc  *Encoder
	rows dict.Data

	mu       sync.Mutex
	collator *collate.Collator
}

// NewTable wraps packed rows. The rows are not copied.
func NewTable(enc *Encoder, rows dict.Data) (*Table, error) {
	if len(rows) != enc.PrimarySize() {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrTableSize, len(rows), enc.PrimarySize())
	}
	for i, row := range rows {
		if len(row)%2 != 0 {
			return nil, fmt.Errorf("%w: row %d has odd length", ErrTableSize, i)
		}
	}
	return &Table{
		enc:      enc,
		rows:     rows,
		collator: collate.New(language.TraditionalChinese),
	}, nil
}

// Encoder returns the table's encoder.
func (t *Table) Encoder() *Encoder { return t.enc }

// Data returns the packed rows.
func (t *Table) Data() dict.Data { return t.rows }

// Words returns the words whose code is exactly code.
func (t *Table) Words(code string) []rune {
	primary := t.enc.PrimaryIndex(code)
	if primary == NoIndex {
		return nil
	}
	secondary := t.enc.SecondaryIndex(code)
	if secondary == NoIndex {
		return nil
	}
	row := t.rows[primary]
	half := len(row) / 2
	keys, words := row[:half], row[half:]

	key := rune(secondary)
	start := sort.Search(half, func(i int) bool { return keys[i] >= key })
	if start == half || keys[start] != key {
		return nil
	}
	end := start + 1
	for end < half && keys[end] == key {
		end++
	}
	return slices.Clone(words[start:end])
}

// SimplifiedWords returns every word under the primary index of code,
// ordered by Traditional Chinese collation. The interior letters are ignored.
func (t *Table) SimplifiedWords(code string) []rune {
	primary := t.enc.PrimaryIndex(code)
	if primary == NoIndex {
		return nil
	}
	row := t.rows[primary]
	words := row[len(row)/2:]
	if len(words) == 0 {
		return nil
	}

	keys := make([]string, len(words))
	for i, w := range words {
		keys[i] = string(w)
	}
	t.mu.Lock()
	t.collator.SortStrings(keys)
	t.mu.Unlock()

	out := make([]rune, len(keys))
	for i, k := range keys {
		out[i] = []rune(k)[0]
	}
	return out
}

// Entry is one (code, word) pair for BuildTable.
type Entry struct {
	Code string
	Word rune
}

// BuildTable packs entries into a table. Words sharing a code keep their
// input order.
func BuildTable(enc *Encoder, entries []Entry) (*Table, error) {
	type slot struct {
		secondary int
		word      rune
	}
	buckets := make([][]slot, enc.PrimarySize())
	for _, e := range entries {
		primary := enc.PrimaryIndex(e.Code)
		secondary := enc.SecondaryIndex(e.Code)
		if primary == NoIndex || secondary == NoIndex {
			return nil, fmt.Errorf("codetable: invalid code %q for %q", e.Code, e.Word)
		}
		buckets[primary] = append(buckets[primary], slot{secondary, e.Word})
	}

	rows := make(dict.Data, len(buckets))
	for i, b := range buckets {
		if len(b) == 0 {
			continue
		}
		sort.SliceStable(b, func(x, y int) bool { return b[x].secondary < b[y].secondary })
		row := make([]rune, 2*len(b))
		for j, s := range b {
			row[j] = rune(s.secondary)
			row[len(b)+j] = s.word
		}
		rows[i] = row
	}
	return NewTable(enc, rows)
}
