package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"tcime/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var pinyinRows = []Row{
	{Text: "你", Code: "ni"},
	{Text: "尼", Code: "ni"},
	{Text: "好", Code: "hao"},
	{Text: "你好", Code: "ni hao"},
	{Text: "中", Code: "zhong"},
	{Text: "中国", Code: "zhong guo"},
	{Text: "中文", Code: "zhong wen"},
	{Text: "字", Code: "zi"},
	{Text: "知", Code: "zhi"},
}

func seedPinyin(t *testing.T, s *Store) {
	t.Helper()
	n, err := s.ImportRows(context.Background(), "pinyin", pinyinRows)
	if err != nil {
		t.Fatalf("ImportRows failed: %v", err)
	}
	if n != len(pinyinRows) {
		t.Fatalf("imported %d rows, want %d", n, len(pinyinRows))
	}
}

func texts(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Text
	}
	return out
}

func TestOpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	seedPinyin(t, s)
	s.Close()

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	names, err := s.Dictionaries(context.Background())
	if err != nil {
		t.Fatalf("Dictionaries failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"pinyin"}) {
		t.Errorf("Dictionaries = %v", names)
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestBadDictionaryName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "1abc", "a b", "x;drop table schemas"} {
		if err := s.CreateDictionary(ctx, name); !errors.Is(err, ErrBadTable) {
			t.Errorf("CreateDictionary(%q) = %v, want ErrBadTable", name, err)
		}
	}
	if _, err := s.MatchCode(ctx, "missing", "ni", MatchOptions{}); !errors.Is(err, ErrNoDictionary) {
		t.Errorf("MatchCode on missing dictionary = %v", err)
	}
}

func TestMatchCode(t *testing.T) {
	s := openTestStore(t)
	seedPinyin(t, s)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		opts  MatchOptions
		want  []string
	}{
		{"exact syllable", "ni", MatchOptions{SingleSyllable: true}, []string{"你", "尼"}},
		{"any row with syllable", "ni", MatchOptions{}, []string{"你", "尼", "你好"}},
		{"prefix", "zh*", MatchOptions{SingleSyllable: true}, []string{"中", "知"}},
		{"alternatives", "zi OR zhi", MatchOptions{SingleSyllable: true}, []string{"字", "知"}},
		{"anchored phrase", `"^zhong guo"`, MatchOptions{}, []string{"中国"}},
		{"anchored prefix phrase", `"^zhong g*"`, MatchOptions{}, []string{"中国"}},
		{"limit", "zhong", MatchOptions{Limit: 2}, []string{"中", "中国"}},
		{"single char", "zhong", MatchOptions{SingleChar: true}, []string{"中"}},
		{"no match", "xyz", MatchOptions{}, nil},
		{"empty query", "", MatchOptions{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.MatchCode(ctx, "pinyin", tt.query, tt.opts)
			if err != nil {
				t.Fatalf("MatchCode failed: %v", err)
			}
			got := texts(rows)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MatchCode(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestCodes(t *testing.T) {
	s := openTestStore(t)
	seedPinyin(t, s)
	ctx := context.Background()

	codes, err := s.Codes(ctx, "pinyin", "你好")
	if err != nil {
		t.Fatalf("Codes failed: %v", err)
	}
	if !reflect.DeepEqual(codes, []string{"ni hao"}) {
		t.Errorf("Codes = %v", codes)
	}

	codes, err = s.Codes(ctx, "pinyin", `"`)
	if err != nil || codes != nil {
		t.Errorf("Codes with quote = %v, %v", codes, err)
	}
}

func TestFollowing(t *testing.T) {
	s := openTestStore(t)
	seedPinyin(t, s)
	ctx := context.Background()

	got, err := s.Following(ctx, "pinyin", "中", 100)
	if err != nil {
		t.Fatalf("Following failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Following = %v, want two continuations", got)
	}
	seen := map[string]bool{}
	for _, g := range got {
		seen[g] = true
	}
	if !seen["国"] || !seen["文"] {
		t.Errorf("Following = %v", got)
	}

	got, err = s.Following(ctx, "pinyin", "好", 100)
	if err != nil {
		t.Fatalf("Following failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Following(好) = %v, want none", got)
	}
}

func TestSchemaRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := []byte("schema:\n  schema_id: pinyin\n  name: 拼音\ntranslator:\n  dictionary: pinyin\n")
	if err := s.ImportSchema(ctx, "ignored", doc); err != nil {
		t.Fatalf("ImportSchema failed: %v", err)
	}
	if err := s.ImportSchema(ctx, "cangjie", []byte("engine:\n  kind: cangjie\n")); err != nil {
		t.Fatalf("ImportSchema failed: %v", err)
	}
	if err := s.ImportSchema(ctx, "bad", []byte("engine:\n  kind: nope\n")); !errors.Is(err, schema.ErrInvalid) {
		t.Errorf("ImportSchema(bad) = %v, want ErrInvalid", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []schema.Info{{ID: "cangjie", Name: ""}, {ID: "pinyin", Name: "拼音"}}
	if !reflect.DeepEqual(list, want) {
		t.Errorf("List = %v, want %v", list, want)
	}

	sc, err := schema.Open(ctx, s, "pinyin")
	if err != nil {
		t.Fatalf("schema.Open failed: %v", err)
	}
	if sc.Name != "拼音" {
		t.Errorf("Name = %q", sc.Name)
	}

	if _, err := s.Document(ctx, "missing"); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Document(missing) = %v, want ErrNotFound", err)
	}

	if err := s.SaveFuzzyState(ctx, "pinyin", "10"); err != nil {
		t.Fatalf("SaveFuzzyState failed: %v", err)
	}
	if err := s.DeleteSchema(ctx, "pinyin"); err != nil {
		t.Fatalf("DeleteSchema failed: %v", err)
	}
	if state, _ := s.FuzzyState(ctx, "pinyin"); state != "" {
		t.Errorf("fuzzy state survived schema deletion: %q", state)
	}
}

func TestPreferences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state, err := s.FuzzyState(ctx, "pinyin")
	if err != nil {
		t.Fatalf("FuzzyState failed: %v", err)
	}
	if state != "" {
		t.Errorf("unset state = %q", state)
	}

	for _, v := range []string{"0101", "1111"} {
		if err := s.SaveFuzzyState(ctx, "pinyin", v); err != nil {
			t.Fatalf("SaveFuzzyState failed: %v", err)
		}
		state, err = s.FuzzyState(ctx, "pinyin")
		if err != nil {
			t.Fatalf("FuzzyState failed: %v", err)
		}
		if state != v {
			t.Errorf("FuzzyState = %q, want %q", state, v)
		}
	}

	if other, _ := s.FuzzyState(ctx, "jyutping"); other != "" {
		t.Errorf("state leaked to another schema: %q", other)
	}
}

func TestConvert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ImportConversions(ctx, []Conversion{
		{Traditional: "國", Simplified: "国"},
		{Traditional: "後", Simplified: "后 後"},
		{Traditional: "頭髮", Simplified: "头发"},
	})
	if err != nil {
		t.Fatalf("ImportConversions failed: %v", err)
	}

	tests := []struct {
		in, want string
	}{
		{"國", "国"},
		{"後", "后"},
		{"頭髮", "头发"},
		{"國後", "国后"},
		{"中國人", "中国人"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := s.Convert(ctx, tt.in)
		if err != nil {
			t.Fatalf("Convert(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Convert(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMigrations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	status, err := s.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != LatestVersion || len(status.Pending) != 0 || len(status.Applied) != LatestVersion {
		t.Errorf("status = %+v", status)
	}
	if problems, err := s.Check(ctx); err != nil || len(problems) != 0 {
		t.Errorf("Check = %v, %v; want no problems", problems, err)
	}

	if err := s.Migrate(ctx, 1); err != nil {
		t.Fatalf("Migrate(1) failed: %v", err)
	}
	status, err = s.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != 1 || len(status.Pending) != LatestVersion-1 {
		t.Errorf("after rollback status = %+v", status)
	}
	problems, err := s.Check(ctx)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(problems) != 2 || problems[0].Table != "opencc" || problems[1].Table != "dictionaries" {
		t.Errorf("Check after rollback = %v", problems)
	}

	if err := s.Migrate(ctx, LatestVersion); err != nil {
		t.Fatalf("Migrate(latest) failed: %v", err)
	}
	if problems, err := s.Check(ctx); err != nil || len(problems) != 0 {
		t.Errorf("Check after migrate = %v, %v", problems, err)
	}

	if err := s.Migrate(ctx, LatestVersion+1); !errors.Is(err, ErrBadVersion) {
		t.Errorf("Migrate past latest = %v, want ErrBadVersion", err)
	}
	if err := s.Migrate(ctx, -1); !errors.Is(err, ErrBadVersion) {
		t.Errorf("Migrate(-1) = %v, want ErrBadVersion", err)
	}
}

func TestOpenUnmigratedKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Migrate(ctx, 2); err != nil {
		t.Fatalf("Migrate(2) failed: %v", err)
	}
	s.Close()

	s, err = OpenUnmigrated(path)
	if err != nil {
		t.Fatalf("OpenUnmigrated failed: %v", err)
	}
	status, err := s.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != 2 {
		t.Errorf("version = %d, want 2", status.CurrentVersion)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	status, err = s.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != LatestVersion {
		t.Errorf("version after Open = %d, want %d", status.CurrentVersion, LatestVersion)
	}
}

func TestCheckFindsOrphanedDictionary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedPinyin(t, s)

	if _, err := s.db.ExecContext(ctx, "DROP TABLE pinyin"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	problems, err := s.Check(ctx)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(problems) != 1 || problems[0].Table != "pinyin" {
		t.Fatalf("Check = %v, want the pinyin table reported", problems)
	}
	if got := problems[0].String(); got != "pinyin: registered dictionary has no table" {
		t.Errorf("String() = %q", got)
	}
}
