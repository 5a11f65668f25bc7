package zhuyin

import (
	"errors"
	"fmt"
	"slices"

	"tcime/internal/dict"
)

// ErrTableShape is returned for packed data that is not a syllable table.
var ErrTableShape = errors.New("zhuyin: malformed syllable table")

// Table is an immutable syllable table. A non-empty row starts with one
// word count per tone, followed by the words grouped by tone.
type Table struct {
	rows dict.Data
}

// NewTable wraps packed rows after checking their shape.
func NewTable(rows dict.Data) (*Table, error) {
	if len(rows) != TableSize {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrTableShape, len(rows), TableSize)
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if len(row) < ToneCount {
			return nil, fmt.Errorf("%w: row %d too short", ErrTableShape, i)
		}
		total := 0
		for _, n := range row[:ToneCount] {
			total += int(n)
		}
		if total != len(row)-ToneCount {
			return nil, fmt.Errorf("%w: row %d counts %d words, has %d", ErrTableShape, i, total, len(row)-ToneCount)
		}
	}
	return &Table{rows: rows}, nil
}

// Data returns the packed rows.
func (t *Table) Data() dict.Data { return t.rows }

// Words returns the words for a syllable with an optional trailing tone.
func (t *Table) Words(input string) []rune {
	syllable, tone, ok := StripTones(input)
	if !ok {
		return nil
	}
	index := SyllableIndex(syllable)
	if index == NoIndex {
		return nil
	}
	row := t.rows[index]
	if len(row) == 0 {
		return nil
	}
	ti := ToneIndex(tone)
	count := int(row[ti])
	if count == 0 {
		return nil
	}
	start := ToneCount
	for _, n := range row[:ti] {
		start += int(n)
	}
	return slices.Clone(row[start : start+count])
}

// Entry is one (syllable, word) pair for BuildTable. Syllable may carry a
// trailing tone mark.
type Entry struct {
	Syllable string
	Word     rune
}

// BuildTable packs entries into a syllable table. Words of the same
// syllable and tone keep their input order.
func BuildTable(entries []Entry) (*Table, error) {
	var buckets [TableSize][ToneCount][]rune
	for _, e := range entries {
		syllable, tone, ok := StripTones(e.Syllable)
		index := SyllableIndex(syllable)
		if !ok || index == NoIndex {
			return nil, fmt.Errorf("zhuyin: invalid syllable %q for %q", e.Syllable, e.Word)
		}
		ti := ToneIndex(tone)
		buckets[index][ti] = append(buckets[index][ti], e.Word)
	}

	rows := make(dict.Data, TableSize)
	for i := range buckets {
		var words []rune
		counts := make([]rune, ToneCount)
		for ti, b := range buckets[i] {
			counts[ti] = rune(len(b))
			words = append(words, b...)
		}
		if len(words) > 0 {
			rows[i] = append(counts, words...)
		}
	}
	return NewTable(rows)
}
