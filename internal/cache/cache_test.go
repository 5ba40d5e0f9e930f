package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesLayoutAndTag(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, ModeReadWrite)
	require.NoError(t, err)

	for _, sub := range []string{"outputs", "hashes", "states"} {
		info, err := os.Stat(filepath.Join(e.Root, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	_, err = os.Stat(filepath.Join(e.Root, "CACHEDIR.TAG"))
	require.NoError(t, err)
}

func TestNewOffModeSkipsLayout(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, ModeOff)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(e.Root, "outputs"))
	assert.True(t, os.IsNotExist(err))
}

func TestModeGating(t *testing.T) {
	assert.True(t, ModeReadWrite.CanRead())
	assert.True(t, ModeReadWrite.CanWrite())
	assert.True(t, ModeRead.CanRead())
	assert.False(t, ModeRead.CanWrite())
	assert.False(t, ModeWrite.CanRead())
	assert.True(t, ModeWrite.CanWrite())
	assert.False(t, ModeOff.CanRead())
	assert.False(t, ModeOff.CanWrite())
}

func TestParseModeDefaultsToReadWrite(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeReadWrite, m)
}

func TestParseModeRejectsUnknown(t *testing.T) {
	_, err := ParseMode("bogus")
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	e := &Engine{Root: "/ws/.moon/cache"}
	assert.Equal(t, filepath.Join("/ws/.moon/cache", "outputs", "deadbeef.tar.gz"), e.ResolvePath(KindOutput, "deadbeef"))
	assert.Equal(t, filepath.Join("/ws/.moon/cache", "hashes", "deadbeef.json"), e.ResolvePath(KindHash, "deadbeef"))
}

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, ModeReadWrite)
	require.NoError(t, err)

	want := LastRun{Hash: "abc123", ExitCode: 0, LastRunTimeMs: 1234}
	require.NoError(t, SaveState(e, "states/app/build/lastRun.json", want))

	var got LastRun
	ok, err := LoadState(e, "states/app/build/lastRun.json", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLoadStateMissingFileIsNotAnError(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, ModeReadWrite)
	require.NoError(t, err)

	var got LastRun
	ok, err := LoadState(e, "states/app/build/lastRun.json", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasOutput(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, ModeReadWrite)
	require.NoError(t, err)

	assert.False(t, e.HasOutput("deadbeef"))
	require.NoError(t, os.WriteFile(e.ResolvePath(KindOutput, "deadbeef"), []byte("x"), 0o644))
	assert.True(t, e.HasOutput("deadbeef"))
}

func TestParseLifetimeStdlibForm(t *testing.T) {
	d, err := ParseLifetime("12h30m")
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour+30*time.Minute, d)
}

func TestParseLifetimeHumanForm(t *testing.T) {
	d, err := ParseLifetime("7 days")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseLifetime("30 minutes")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)
}

func TestParseLifetimeRejectsGarbage(t *testing.T) {
	_, err := ParseLifetime("banana")
	assert.Error(t, err)

	_, err = ParseLifetime("")
	assert.Error(t, err)
}

func TestCleanStaleRemovesOldFilesOnly(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, ModeReadWrite)
	require.NoError(t, err)

	oldPath := e.ResolvePath(KindOutput, "old")
	newPath := e.ResolvePath(KindOutput, "new")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("y"), 0o644))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, old, old))

	removed, err := e.CleanStale(24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestCreateLockCoalescesAndReleases(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, ModeReadWrite)
	require.NoError(t, err)

	l, err := e.CreateLock("go-toolchain", time.Second)
	require.NoError(t, err)

	_, err = e.CreateLock("go-toolchain", 50*time.Millisecond)
	assert.Error(t, err)

	require.NoError(t, l.Release())

	l2, err := e.CreateLock("go-toolchain", time.Second)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
