package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestZipDirUnzipRoundtrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"manifest.json":       `{"id":"b1"}`,
		"db/application.json": `{"table":"application","rows":[]}`,
		"files/var/app.bin":   "binary-data",
	})

	zipPath := filepath.Join(t.TempDir(), "artifact.zip")
	require.NoError(t, ZipDir(src, zipPath))

	dest := t.TempDir()
	require.NoError(t, Unzip(zipPath, dest))

	for name, want := range map[string]string{
		"manifest.json":       `{"id":"b1"}`,
		"db/application.json": `{"table":"application","rows":[]}`,
		"files/var/app.bin":   "binary-data",
	} {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestListReturnsEntryNames(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":     "a",
		"sub/b.txt": "b",
	})

	zipPath := filepath.Join(t.TempDir(), "artifact.zip")
	require.NoError(t, ZipDir(src, zipPath))

	names, err := List(zipPath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, names)
}

func TestUnzipRejectsPathEscape(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	dest := t.TempDir()
	err = Unzip(zipPath, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal archive path")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestZipDirMissingSource(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "artifact.zip")
	assert.Error(t, ZipDir(filepath.Join(t.TempDir(), "nope"), zipPath))
}
