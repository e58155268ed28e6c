package util

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1 KB"},
		{1536, "2 KB"},
		{1024 * 1024, "1 MB"},
		{3*1024*1024 + 512*1024, "4 MB"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatSize(c.bytes))
	}
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", SafeFilename("/tmp/evil/../report.pdf"))
	assert.Equal(t, "report.pdf", SafeFilename("report.pdf"))
	assert.Equal(t, "attachment", SafeFilename(""))
	assert.Equal(t, "attachment", SafeFilename("/"))
}

func TestPreviewText(t *testing.T) {
	text, ok := PreviewText([]byte("line one\nline two\n"))
	require.True(t, ok)
	assert.Equal(t, "line one\nline two\n", text)

	_, ok = PreviewText([]byte("bad\x00byte"))
	assert.False(t, ok)

	many := make([]byte, 0)
	for i := 0; i < PreviewTextMaxLines+10; i++ {
		many = append(many, []byte("x\n")...)
	}
	truncated, ok := PreviewText(many)
	require.True(t, ok)
	assert.Contains(t, truncated, "(truncated)")
}

func TestPackDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "attachments")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.txt"), []byte("world"), 0644))

	data, err := PackDirectory(dir)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["attachments/"])
	assert.True(t, names["attachments/nested/"])
	assert.True(t, names["attachments/a.txt"])
	assert.True(t, names["attachments/nested/b.txt"])

	for _, f := range zr.File {
		if f.Name == "attachments/a.txt" {
			rc, err := f.Open()
			require.NoError(t, err)
			content, _ := io.ReadAll(rc)
			rc.Close()
			assert.Equal(t, "hello", string(content))
		}
	}
}
