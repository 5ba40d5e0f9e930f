package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherIsDeterministic(t *testing.T) {
	build := func() (string, Manifest) {
		h := New()
		h.Append("task.command", "command", "go build")
		h.AppendSorted("task.env", map[string]string{"B": "2", "A": "1"})
		h.AppendList("task.args", []string{"--verbose"})
		return h.Finalize()
	}

	digestA, manifestA := build()
	digestB, manifestB := build()

	assert.Equal(t, digestA, digestB)
	assert.Equal(t, manifestA, manifestB)
	assert.Len(t, digestA, 64) // hex-encoded SHA-256
}

func TestHasherSortedEnvIsOrderIndependent(t *testing.T) {
	h1 := New()
	h1.AppendSorted("task.env", map[string]string{"A": "1", "B": "2"})
	d1, _ := h1.Finalize()

	h2 := New()
	h2.AppendSorted("task.env", map[string]string{"B": "2", "A": "1"})
	d2, _ := h2.Finalize()

	assert.Equal(t, d1, d2)
}

func TestHasherDifferentContentDiffers(t *testing.T) {
	h1 := New()
	h1.Append("task.command", "command", "go build")
	d1, _ := h1.Finalize()

	h2 := New()
	h2.Append("task.command", "command", "go test")
	d2, _ := h2.Finalize()

	assert.NotEqual(t, d1, d2)
}

func TestManifestPreservesAppendOrder(t *testing.T) {
	h := New()
	h.Append("a", "k1", "v1")
	h.Append("b", "k2", "v2")
	_, manifest := h.Finalize()

	require.Len(t, manifest, 2)
	assert.Equal(t, "a", manifest[0].Kind)
	assert.Equal(t, "b", manifest[1].Kind)
}

func TestMarshalManifest(t *testing.T) {
	h := New()
	h.Append("task.command", "command", "go build")
	_, manifest := h.Finalize()

	data, err := MarshalManifest(manifest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind": "task.command"`)
}

func TestComputeTaskHashMissingDepHashBecomesPassthrough(t *testing.T) {
	digest, manifest := ComputeTaskHash(TaskHashInputs{
		Command: "go build",
		Deps: []DepHash{
			{Target: "lib:build", Hash: ""},
		},
		Version: "1",
	})

	require.NotEmpty(t, digest)
	found := false
	for _, r := range manifest {
		if r.Kind == "task.deps" && r.Key == "lib:build" {
			assert.Equal(t, "passthrough", r.Value)
			found = true
		}
	}
	assert.True(t, found)
}

func TestComputeTaskHashIsStableUnderInputReordering(t *testing.T) {
	a := TaskHashInputs{
		Command: "go test",
		InputFiles: []FileHash{
			{Path: "b.go", Hash: "h2"},
			{Path: "a.go", Hash: "h1"},
		},
		Version: "1",
	}
	b := TaskHashInputs{
		Command: "go test",
		InputFiles: []FileHash{
			{Path: "a.go", Hash: "h1"},
			{Path: "b.go", Hash: "h2"},
		},
		Version: "1",
	}

	digestA, _ := ComputeTaskHash(a)
	digestB, _ := ComputeTaskHash(b)
	assert.Equal(t, digestA, digestB)
}

func TestComputeTaskHashVersionBumpInvalidatesCache(t *testing.T) {
	base := TaskHashInputs{Command: "go build", Version: "1"}
	bumped := TaskHashInputs{Command: "go build", Version: "2"}

	digestA, _ := ComputeTaskHash(base)
	digestB, _ := ComputeTaskHash(bumped)
	assert.NotEqual(t, digestA, digestB)
}
