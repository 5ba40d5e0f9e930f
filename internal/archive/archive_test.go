package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestPackAndUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "dist/out.txt", "hello")
	writeFile(t, src, "dist/nested/data.bin", "world")

	cacheDir := t.TempDir()
	archivePath := filepath.Join(cacheDir, "deadbeef.tar.gz")

	err := Pack(archivePath, []Entry{
		{Root: src, RelPath: "dist"},
	}, hclog.NewNullLogger())
	require.NoError(t, err)

	dest := t.TempDir()
	restored, err := Unpack(archivePath, dest)
	require.NoError(t, err)
	assert.NotEmpty(t, restored)

	data, err := os.ReadFile(filepath.Join(dest, "dist", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data2, err := os.ReadFile(filepath.Join(dest, "dist", "nested", "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(data2))
}

func TestPackSkipsMissingOutputs(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "dist/out.txt", "hello")

	cacheDir := t.TempDir()
	archivePath := filepath.Join(cacheDir, "h.tar.gz")

	err := Pack(archivePath, []Entry{
		{Root: src, RelPath: "dist/out.txt"},
		{Root: src, RelPath: "dist/missing.txt"},
	}, hclog.NewNullLogger())
	require.NoError(t, err)

	dest := t.TempDir()
	restored, err := Unpack(archivePath, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/out.txt"}, restored)
}

func TestPackIsDeterministicAcrossRuns(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "b.txt", "b")
	writeFile(t, src, "a.txt", "a")

	cacheDir := t.TempDir()
	archiveA := filepath.Join(cacheDir, "a.tar.gz")
	archiveB := filepath.Join(cacheDir, "b.tar.gz")

	entries := []Entry{{Root: src, RelPath: "a.txt"}, {Root: src, RelPath: "b.txt"}}
	require.NoError(t, Pack(archiveA, entries, hclog.NewNullLogger()))
	require.NoError(t, Pack(archiveB, entries, hclog.NewNullLogger()))

	dataA, err := os.ReadFile(archiveA)
	require.NoError(t, err)
	dataB, err := os.ReadFile(archiveB)
	require.NoError(t, err)
	assert.Equal(t, dataA, dataB)
}

func TestUnpackRejectsPathTraversal(t *testing.T) {
	_, err := safeJoin("/anchor", "../../etc/passwd")
	assert.Error(t, err)

	_, err = safeJoin("/anchor", "/etc/passwd")
	assert.Error(t, err)

	p, err := safeJoin("/anchor", "dist/out.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/anchor", "dist", "out.txt"), p)
}
