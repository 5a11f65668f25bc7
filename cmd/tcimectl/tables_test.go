package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcime/internal/codetable"
	"tcime/internal/dict"
	"tcime/internal/store"
	"tcime/internal/zhuyin"
)

func TestReadRows(t *testing.T) {
	rows, err := readRows(strings.NewReader("# comment\n你\tni\r\n\n你好\tni hao\n"))
	require.NoError(t, err)
	assert.Equal(t, []store.Row{{Text: "你", Code: "ni"}, {Text: "你好", Code: "ni hao"}}, rows)

	_, err = readRows(strings.NewReader("你\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestReadConversions(t *testing.T) {
	convs, err := readConversions(strings.NewReader("們\t们\n乾\t干 乾\n"))
	require.NoError(t, err)
	assert.Equal(t, []store.Conversion{
		{Traditional: "們", Simplified: "们"},
		{Traditional: "乾", Simplified: "干"},
	}, convs)

	_, err = readConversions(strings.NewReader("們\t\n"))
	assert.Error(t, err)
}

func TestCangjieCode(t *testing.T) {
	code, err := cangjieCode("ab")
	require.NoError(t, err)
	assert.Equal(t, "日月", code)

	code, err = cangjieCode("日B")
	require.NoError(t, err)
	assert.Equal(t, "日月", code)

	_, err = cangjieCode("a1")
	assert.Error(t, err)
	_, err = cangjieCode("abcdef")
	assert.Error(t, err, "longer than a code")
}

func TestBuildCangjieTable(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cangjie.dict")
	n, err := buildTable("cangjie", strings.NewReader("ab\t明\n日月\t朋\na\t日\n"), out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, err := dict.ReadFile(out)
	require.NoError(t, err)
	tbl, err := codetable.NewTable(codetable.CangjieEncoder, d)
	require.NoError(t, err)
	assert.Equal(t, []rune("明朋"), tbl.Words("日月"))
	assert.Equal(t, []rune("日"), tbl.Words("日"))
}

func TestBuildZhuyinTable(t *testing.T) {
	out := filepath.Join(t.TempDir(), "zhuyin.dict")
	_, err := buildTable("zhuyin", strings.NewReader("ㄅㄚ\t八\nㄅㄚˇ\t把\n"), out)
	require.NoError(t, err)

	d, err := dict.ReadFile(out)
	require.NoError(t, err)
	tbl, err := zhuyin.NewTable(d)
	require.NoError(t, err)
	assert.Equal(t, []rune("把"), tbl.Words("ㄅㄚˇ"))
}

func TestBuildPhraseTable(t *testing.T) {
	out := filepath.Join(t.TempDir(), "phrases.dict")
	n, err := buildTable("phrases", strings.NewReader("明\t天\n明\t白\n日\t本\n"), out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, err := dict.ReadFile(out)
	require.NoError(t, err)
	p, err := dict.NewPhrases(d)
	require.NoError(t, err)
	assert.Equal(t, []rune("天白"), p.Following('明'))
}

func TestBuildTableErrors(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.dict")
	_, err := buildTable("wubi", strings.NewReader(""), out)
	assert.ErrorContains(t, err, "unknown table kind")

	_, err = buildTable("cangjie", strings.NewReader("ab\t明朋\n"), out)
	assert.ErrorContains(t, err, "not one character")

	_, err = buildTable("zhuyin", strings.NewReader("xyz\t八\n"), out)
	assert.Error(t, err)
}
