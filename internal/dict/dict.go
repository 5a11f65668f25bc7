// Package dict holds the packed in-memory tables used by the stroke-code and
// phonetic schemes, and the machinery that loads them in the background.
//
// A table is a Data value: one rune row per encoded index. The layout of a
// row belongs to the package that interprets it (codetable, zhuyin, or the
// phrase table in this package). Loaded tables are never mutated; a schema
// switch loads new tables and swaps them in with Active.
package dict

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Data is a packed table, one row per encoded index.
type Data [][]rune

// ErrEmpty is returned when a table file holds no rows.
var ErrEmpty = errors.New("dict: empty table")

// Encode writes d to w.
func Encode(w io.Writer, d Data) error {
	if err := gob.NewEncoder(w).Encode(d); err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	return nil
}

// Decode reads a table written by Encode.
func Decode(r io.Reader) (Data, error) {
	var d Data
	if err := gob.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if len(d) == 0 {
		return nil, ErrEmpty
	}
	return d, nil
}

// ReadFile loads a table from path.
func ReadFile(path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}

// WriteFile stores d at path, creating the parent directory.
func WriteFile(path string, d Data) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create table directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, d); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush table: %w", err)
	}
	return f.Close()
}

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for i, row := range d {
		if row != nil {
			out[i] = append([]rune(nil), row...)
		}
	}
	return out
}
