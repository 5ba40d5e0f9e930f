package vcs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualHashFilesMatchesGitBlobFormat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))

	a := New(dir)
	hashes, err := a.manualHashFiles([]string{"a.txt"})
	require.NoError(t, err)

	// "git hash-object" on a file containing "hello\n" is a well-known
	// fixed value: ce013625030ba8dba906f756967f9e9ca394464a.
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", hashes["a.txt"])
}

func TestLoadIgnoreFileMissingIsEmptyMatcher(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)

	m, err := a.LoadIgnoreFile(".gitignore")
	require.NoError(t, err)
	assert.False(t, m.IsIgnored("anything"))
}

func TestLoadIgnoreFileMatchesPatterns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("node_modules/\n*.log\n"), 0o644))

	a := New(dir)
	m, err := a.LoadIgnoreFile(".gitignore")
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("node_modules/foo.js"))
	assert.True(t, m.IsIgnored("debug.log"))
	assert.False(t, m.IsIgnored("src/index.ts"))
}
