package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tcime/internal/schema"
)

// ImportSchema validates a schema document and stores it under its
// schema_id, or id when the document has none. An earlier version is
// replaced.
func (s *Store) ImportSchema(ctx context.Context, id string, doc []byte) error {
	sc, err := schema.Load(id, doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schemas (schema_id, name, full, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(schema_id) DO UPDATE SET name = excluded.name, full = excluded.full, updated_at = excluded.updated_at`,
		sc.ID, sc.Name, string(doc), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store schema %s: %w", sc.ID, err)
	}
	return nil
}

// GetSchema returns a stored schema record.
func (s *Store) GetSchema(ctx context.Context, id string) (*SchemaRecord, error) {
	var r SchemaRecord
	var full string
	err := s.db.QueryRowContext(ctx,
		"SELECT schema_id, name, full, updated_at FROM schemas WHERE schema_id = ?", id,
	).Scan(&r.ID, &r.Name, &full, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", schema.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", id, err)
	}
	r.Document = []byte(full)
	return &r, nil
}

// DeleteSchema removes a schema and its preferences.
func (s *Store) DeleteSchema(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM preferences WHERE schema_id = ?", id); err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schemas WHERE schema_id = ?", id); err != nil {
		return fmt.Errorf("delete schema: %w", err)
	}
	return tx.Commit()
}

// Document implements schema.Source.
func (s *Store) Document(ctx context.Context, id string) ([]byte, error) {
	r, err := s.GetSchema(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Document, nil
}

// List implements schema.Source.
func (s *Store) List(ctx context.Context) ([]schema.Info, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT schema_id, name FROM schemas ORDER BY schema_id")
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var out []schema.Info
	for rows.Next() {
		var info schema.Info
		if err := rows.Scan(&info.ID, &info.Name); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

const fuzzyKey = "fuzzy"

// FuzzyState implements rules.FuzzyStore. It returns "" when nothing is
// saved for the schema.
func (s *Store) FuzzyState(ctx context.Context, schemaID string) (string, error) {
	return s.Preference(ctx, schemaID, fuzzyKey)
}

// SaveFuzzyState implements rules.FuzzyStore.
func (s *Store) SaveFuzzyState(ctx context.Context, schemaID, state string) error {
	return s.SetPreference(ctx, schemaID, fuzzyKey, state)
}

// Preference returns a stored per-schema value, or "" when unset.
func (s *Store) Preference(ctx context.Context, schemaID, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE schema_id = ? AND key = ?", schemaID, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s/%s: %w", schemaID, key, err)
	}
	return v, nil
}

// SetPreference stores a per-schema value.
func (s *Store) SetPreference(ctx context.Context, schemaID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (schema_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(schema_id, key) DO UPDATE SET value = excluded.value`,
		schemaID, key, value,
	)
	if err != nil {
		return fmt.Errorf("set preference %s/%s: %w", schemaID, key, err)
	}
	return nil
}

// ImportConversions adds traditional to simplified mappings.
func (s *Store) ImportConversions(ctx context.Context, convs []Conversion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO opencc (t, s) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, c := range convs {
		if c.Traditional == "" || c.Simplified == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, c.Traditional, c.Simplified); err != nil {
			return 0, fmt.Errorf("insert conversion %q: %w", c.Traditional, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return n, nil
}

// Convert maps traditional text to simplified. The whole text is looked up
// first; failing that, each character is converted on its own and
// characters without a mapping are kept.
func (s *Store) Convert(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	v, ok, err := s.convertOne(ctx, text)
	if err != nil {
		return text, err
	}
	if ok {
		return v, nil
	}
	var b strings.Builder
	for _, c := range text {
		v, ok, err := s.convertOne(ctx, string(c))
		if err != nil {
			return text, err
		}
		if ok {
			b.WriteString(v)
		} else {
			b.WriteRune(c)
		}
	}
	return b.String(), nil
}

func (s *Store) convertOne(ctx context.Context, text string) (string, bool, error) {
	if strings.ContainsAny(text, `" `) {
		return "", false, nil
	}
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT s FROM opencc WHERE t MATCH ? AND t = ? LIMIT 1", quote(text), text,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("convert %q: %w", text, err)
	}
	if i := strings.IndexByte(v, ' '); i >= 0 {
		v = v[:i]
	}
	return v, true, nil
}
