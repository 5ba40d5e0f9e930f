package actionexec

import (
	"context"
	"testing"

	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/cache"
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/toolchain"
	"github.com/moonrepo/moon-core/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *workspace.Catalog {
	t.Helper()
	p := &workspace.Project{
		ID:         id.MustNew("app"),
		Toolchains: []id.Id{id.MustNew("system")},
		Tasks:      map[id.Id]*workspace.Task{},
	}
	c, err := workspace.Build([]*workspace.Project{p})
	require.NoError(t, err)
	return c
}

func TestSetupToolchainCallsSetupOnce(t *testing.T) {
	root := t.TempDir()
	eng, err := cache.New(root, cache.ModeReadWrite)
	require.NoError(t, err)

	calls := 0
	reg := toolchain.NewRegistry(&toolchain.Toolchain{
		ID: id.MustNew("system"),
		Setup: func(versionReq string) (string, error) {
			calls++
			return "1.0.0", nil
		},
	})

	ex := New(Options{WorkspaceRoot: root, Cache: eng, Toolchains: reg, Catalog: newTestCatalog(t)})
	node := action.Node{Kind: action.NodeSetupToolchain, ToolchainID: id.MustNew("system"), VersionReq: ""}

	a := ex.SetupToolchain(context.Background(), action.NewContext(), node)
	assert.Equal(t, action.StatePassed, a.State)
	assert.Equal(t, 1, calls)

	// Second run reuses the persisted setup state instead of calling Setup again.
	a2 := ex.SetupToolchain(context.Background(), action.NewContext(), node)
	assert.Equal(t, action.StatePassed, a2.State)
	assert.Equal(t, 1, calls)
}

func TestSyncWorkspaceRunsEveryUsedToolchain(t *testing.T) {
	root := t.TempDir()
	eng, err := cache.New(root, cache.ModeReadWrite)
	require.NoError(t, err)

	var synced string
	reg := toolchain.NewRegistry(&toolchain.Toolchain{
		ID: id.MustNew("system"),
		SyncWorkspace: func(workspaceRoot string) error {
			synced = workspaceRoot
			return nil
		},
	})

	ex := New(Options{WorkspaceRoot: root, Cache: eng, Toolchains: reg, Catalog: newTestCatalog(t)})
	a := ex.SyncWorkspace(context.Background(), action.NewContext(), action.Node{Kind: action.NodeSyncWorkspace})
	assert.Equal(t, action.StatePassed, a.State)
	assert.Equal(t, root, synced)
}

func TestSetupProtoIsANoOp(t *testing.T) {
	ex := New(Options{})
	a := ex.SetupProto(context.Background(), action.NewContext(), action.Node{Kind: action.NodeSetupProto})
	assert.Equal(t, action.StatePassed, a.State)
	require.Len(t, a.Operations, 1)
	assert.Equal(t, action.OperationNoOperation, a.Operations[0].Kind)
}

func TestHandlersCoversEveryNonRunTaskKind(t *testing.T) {
	ex := New(Options{})
	h := ex.Handlers()
	for _, kind := range []action.NodeKind{
		action.NodeSyncWorkspace,
		action.NodeSetupProto,
		action.NodeSetupToolchain,
		action.NodeInstallWorkspaceDeps,
		action.NodeInstallProjectDeps,
		action.NodeSyncProject,
	} {
		assert.NotNil(t, h[kind], "missing handler for %s", kind)
	}
}
