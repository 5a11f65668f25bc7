package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"tcime/internal/codetable"
	"tcime/internal/compose"
	"tcime/internal/dict"
	"tcime/internal/store"
	"tcime/internal/zhuyin"
)

// scanFields calls fn with the tab-separated fields of every line of r.
// Blank lines and lines starting with # are skipped.
func scanFields(r io.Reader, fn func(line int, fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(n, strings.Split(line, "\t")); err != nil {
			return err
		}
	}
	return sc.Err()
}

// readRows reads "text<TAB>code" lines.
func readRows(r io.Reader) ([]store.Row, error) {
	var rows []store.Row
	err := scanFields(r, func(n int, f []string) error {
		if len(f) < 2 || f[0] == "" || f[1] == "" {
			return fmt.Errorf("line %d: want text<TAB>code", n)
		}
		rows = append(rows, store.Row{Text: f[0], Code: f[1]})
		return nil
	})
	return rows, err
}

// readConversions reads OpenCC style "traditional<TAB>simplified [...]"
// lines. Only the first simplified form is kept.
func readConversions(r io.Reader) ([]store.Conversion, error) {
	var convs []store.Conversion
	err := scanFields(r, func(n int, f []string) error {
		if len(f) < 2 {
			return fmt.Errorf("line %d: want traditional<TAB>simplified", n)
		}
		alts := strings.Fields(f[1])
		if f[0] == "" || len(alts) == 0 {
			return fmt.Errorf("line %d: empty conversion", n)
		}
		convs = append(convs, store.Conversion{Traditional: f[0], Simplified: alts[0]})
		return nil
	})
	return convs, err
}

func singleRune(s string) (rune, bool) {
	c, size := utf8.DecodeRuneInString(s)
	return c, size > 0 && size == len(s) && c != utf8.RuneError
}

// cangjieCode accepts a code in radicals or in the latin letters a..y.
func cangjieCode(code string) (string, error) {
	scheme := compose.NewCangjie(false)
	text := ""
	for _, c := range code {
		next, ok := scheme.Compose(text, c)
		if !ok || next == text {
			return "", fmt.Errorf("invalid cangjie code %q", code)
		}
		text = next
	}
	return text, nil
}

func readCangjie(r io.Reader) (dict.Data, error) {
	var entries []codetable.Entry
	err := scanFields(r, func(n int, f []string) error {
		if len(f) < 2 {
			return fmt.Errorf("line %d: want code<TAB>word", n)
		}
		code, err := cangjieCode(f[0])
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		word, ok := singleRune(f[1])
		if !ok {
			return fmt.Errorf("line %d: word %q is not one character", n, f[1])
		}
		entries = append(entries, codetable.Entry{Code: code, Word: word})
		return nil
	})
	if err != nil {
		return nil, err
	}
	tbl, err := codetable.BuildTable(codetable.CangjieEncoder, entries)
	if err != nil {
		return nil, err
	}
	return tbl.Data(), nil
}

func readZhuyin(r io.Reader) (dict.Data, error) {
	var entries []zhuyin.Entry
	err := scanFields(r, func(n int, f []string) error {
		if len(f) < 2 {
			return fmt.Errorf("line %d: want syllable<TAB>word", n)
		}
		word, ok := singleRune(f[1])
		if !ok {
			return fmt.Errorf("line %d: word %q is not one character", n, f[1])
		}
		entries = append(entries, zhuyin.Entry{Syllable: f[0], Word: word})
		return nil
	})
	if err != nil {
		return nil, err
	}
	tbl, err := zhuyin.BuildTable(entries)
	if err != nil {
		return nil, err
	}
	return tbl.Data(), nil
}

// readPhrases reads "word<TAB>following" lines. Repeated words append.
func readPhrases(r io.Reader) (dict.Data, error) {
	m := make(map[rune][]rune)
	err := scanFields(r, func(n int, f []string) error {
		if len(f) < 2 || f[1] == "" {
			return fmt.Errorf("line %d: want word<TAB>following", n)
		}
		key, ok := singleRune(f[0])
		if !ok {
			return fmt.Errorf("line %d: word %q is not one character", n, f[0])
		}
		m[key] = append(m[key], []rune(f[1])...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d := dict.BuildPhrases(m)
	if _, err := dict.NewPhrases(d); err != nil {
		return nil, err
	}
	return d, nil
}

// buildTable packs the table of the given kind from r and writes it to out.
// It returns the number of rows with content.
func buildTable(kind string, r io.Reader, out string) (int, error) {
	var (
		d   dict.Data
		err error
	)
	switch kind {
	case "cangjie":
		d, err = readCangjie(r)
	case "zhuyin":
		d, err = readZhuyin(r)
	case "phrases":
		d, err = readPhrases(r)
	default:
		return 0, fmt.Errorf("unknown table kind %q", kind)
	}
	if err != nil {
		return 0, err
	}
	if err := dict.WriteFile(out, d); err != nil {
		return 0, err
	}
	n := 0
	for _, row := range d {
		if len(row) > 0 {
			n++
		}
	}
	if kind == "phrases" {
		n = len(d[0])
	}
	return n, nil
}
