package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPagesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"page_number": 1, "text": "first page"},
		{"page_number": 2, "text": "second page"}
	]`), 0644))

	pages, err := LoadPages(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "second page", pages[1].Text)
}

func TestLoadPagesPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two"), 0644))

	pages, err := LoadPages(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "line one\nline two", pages[0].Text)
}

func TestLoadPagesErrors(t *testing.T) {
	_, err := LoadPages(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0644))
	_, err = LoadPages(bad)
	require.Error(t, err)
}
