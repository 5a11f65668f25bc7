package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadTable, name)
	}
	return nil
}

// CreateDictionary creates the full-text table for a dictionary if it does
// not exist yet. Rows are (hz, py): the word and its syllable code.
func (s *Store) CreateDictionary(ctx context.Context, name string) error {
	if err := checkTable(name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts4(hz, py)", name)); err != nil {
		return fmt.Errorf("create dictionary %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO dictionaries (name, created_at) VALUES (?, ?)",
		name, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("register dictionary %s: %w", name, err)
	}
	return tx.Commit()
}

// Dictionaries lists the registered dictionary names.
func (s *Store) Dictionaries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM dictionaries ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list dictionaries: %w", err)
	}
	return scanStrings(rows)
}

func (s *Store) hasDictionary(ctx context.Context, name string) error {
	if err := checkTable(name); err != nil {
		return err
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dictionaries WHERE name = ?", name).Scan(&n)
	if err != nil {
		return fmt.Errorf("check dictionary %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoDictionary, name)
	}
	return nil
}

// ImportRows appends rows to a dictionary, creating it when needed. It
// returns the number of rows written.
func (s *Store) ImportRows(ctx context.Context, name string, rows []Row) (int, error) {
	if err := s.CreateDictionary(ctx, name); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (hz, py) VALUES (?, ?)", name))
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, r := range rows {
		if r.Text == "" || r.Code == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.Text, r.Code); err != nil {
			return 0, fmt.Errorf("insert row %q: %w", r.Text, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return n, nil
}

// MatchCode runs a full-text query against the code column. query uses
// FTS4 syntax: "*" prefixes, "OR" and "^" anchors. Rows come back in
// insertion order.
func (s *Store) MatchCode(ctx context.Context, name, query string, opts MatchOptions) ([]Row, error) {
	if err := s.hasDictionary(ctx, name); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT hz, py FROM %s WHERE py MATCH ?", name)
	if opts.SingleSyllable {
		b.WriteString(" AND NOT glob('* *', py)")
	}
	if opts.SingleChar {
		b.WriteString(" AND length(hz) == 1")
	}
	b.WriteString(" ORDER BY rowid")
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), query)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Text, &r.Code); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Codes returns the codes of every row whose text is exactly text.
func (s *Store) Codes(ctx context.Context, name, text string) ([]string, error) {
	if err := s.hasDictionary(ctx, name); err != nil {
		return nil, err
	}
	if text == "" || strings.Contains(text, `"`) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT py FROM %s WHERE hz MATCH ? AND hz = ? ORDER BY rowid", name),
		quote(text), text,
	)
	if err != nil {
		return nil, fmt.Errorf("codes of %q: %w", text, err)
	}
	return scanStrings(rows)
}

// Following returns the distinct continuations of words that start with
// prefix and are longer than it.
func (s *Store) Following(ctx context.Context, name, prefix string, limit int) ([]string, error) {
	if err := s.hasDictionary(ctx, name); err != nil {
		return nil, err
	}
	if prefix == "" || strings.ContainsAny(prefix, `"*`) {
		return nil, nil
	}
	n := len([]rune(prefix))
	q := fmt.Sprintf(
		"SELECT DISTINCT substr(hz, %d) FROM %s WHERE hz MATCH ? AND length(hz) > %d",
		n+1, name, n,
	)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, "^"+prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("following %q: %w", prefix, err)
	}
	return scanStrings(rows)
}

// quote wraps text in an FTS phrase so that syntax characters are literal.
// text must not contain a double quote.
func quote(text string) string {
	return `"` + text + `"`
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
