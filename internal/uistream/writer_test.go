package uistream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterHoldsPartialLineUntilNewline(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "app: ", nil)

	n, err := w.Write([]byte("buildi"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Empty(t, buf.String())

	_, err = w.Write([]byte("ng\n"))
	assert.NoError(t, err)
	assert.Equal(t, "app: building\n", buf.String())
}

func TestWriterFlushesPendingPartialLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "app: ", nil)

	_, _ = w.Write([]byte("no newline yet"))
	assert.Empty(t, buf.String())

	assert.NoError(t, w.Flush())
	assert.Equal(t, "app: no newline yet\n", buf.String())
}

func TestWriterHandlesMultipleLinesInOneWrite(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "lib: ", nil)

	_, _ = w.Write([]byte("one\ntwo\nthree"))
	assert.Equal(t, "lib: one\nlib: two\n", buf.String())

	assert.NoError(t, w.Flush())
	assert.Equal(t, "lib: one\nlib: two\nlib: three\n", buf.String())
}

func TestPadPrefixTruncatesAndPads(t *testing.T) {
	assert.Equal(t, "app  ", PadPrefix("app", 4))
	assert.Equal(t, "app ", PadPrefix("app", 3))
	assert.Equal(t, "ap ", PadPrefix("app", 2))
}

func TestRegistrySerializesDistinctTargets(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(&buf, []string{"app:build", "lib:build"})

	appW := reg.For("app:build")
	libW := reg.For("lib:build")

	_, _ = appW.Write([]byte("a-line\n"))
	_, _ = libW.Write([]byte("l-line\n"))

	out := buf.String()
	assert.Contains(t, out, "a-line")
	assert.Contains(t, out, "l-line")
}
