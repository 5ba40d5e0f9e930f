package graph

import (
	"testing"

	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/moonrepo/moon-core/internal/toolchain"
	"github.com/moonrepo/moon-core/internal/workspace"
	"github.com/moonrepo/moon-core/internal/wspath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFixture(t *testing.T) (*workspace.Catalog, *toolchain.Registry) {
	t.Helper()

	libSource, err := wspath.New("packages/lib")
	require.NoError(t, err)
	appSource, err := wspath.New("apps/app")
	require.NoError(t, err)

	lib := &workspace.Project{
		ID:         id.MustNew("lib"),
		Source:     libSource,
		Toolchains: []id.Id{id.MustNew("node")},
		Tasks: map[id.Id]*workspace.Task{
			id.MustNew("build"): {
				ID:         id.MustNew("build"),
				Target:     target.Qualified(id.MustNew("lib"), id.MustNew("build")),
				Command:    "echo",
				Toolchains: []id.Id{id.MustNew("node")},
				Options:    workspace.DefaultTaskOptions(),
			},
		},
	}
	app := &workspace.Project{
		ID:         id.MustNew("app"),
		Source:     appSource,
		Toolchains: []id.Id{id.MustNew("node")},
		Dependencies: []workspace.ProjectDependency{
			{ID: id.MustNew("lib"), Scope: workspace.DependencyProd},
		},
		Tasks: map[id.Id]*workspace.Task{
			id.MustNew("build"): {
				ID:      id.MustNew("build"),
				Target:  target.Qualified(id.MustNew("app"), id.MustNew("build")),
				Command: "echo",
				Deps: []workspace.TaskDependency{
					{Target: target.Qualified(id.MustNew("lib"), id.MustNew("build"))},
				},
				Toolchains: []id.Id{id.MustNew("node")},
				Options:    workspace.DefaultTaskOptions(),
			},
		},
	}

	cat, err := workspace.Build([]*workspace.Project{lib, app})
	require.NoError(t, err)

	registry := toolchain.NewRegistry(&toolchain.Toolchain{ID: id.MustNew("node")})
	return cat, registry
}

func mustLocator(t *testing.T, raw string) target.Locator {
	t.Helper()
	loc, err := target.ParseLocator(raw)
	require.NoError(t, err)
	return loc
}

func TestBuildProducesDependencyEdge(t *testing.T) {
	cat, registry := testFixture(t)

	result, err := Build(cat, registry, Request{
		Targets: []target.Locator{mustLocator(t, "app:build")},
		Options: Options{SyncWorkspace: true},
	})
	require.NoError(t, err)
	require.NoError(t, result.Graph.Validate())

	require.Len(t, result.PrimaryTargets, 1)
	assert.Equal(t, "app:build", result.PrimaryTargets[0].String())

	appIdx, libIdx := -1, -1
	for i := 0; i < result.Graph.NodeCount(); i++ {
		n := result.Graph.Node(i)
		if n.Kind != action.NodeRunTask {
			continue
		}
		switch n.Target.String() {
		case "app:build":
			appIdx = i
		case "lib:build":
			libIdx = i
		}
	}
	require.NotEqual(t, -1, appIdx)
	require.NotEqual(t, -1, libIdx)

	deps := result.Graph.DependsOn(appIdx)
	assert.Contains(t, deps, libIdx)
}

func TestBuildIsIdempotentAcrossRepeatedTargets(t *testing.T) {
	cat, registry := testFixture(t)

	result, err := Build(cat, registry, Request{
		Targets: []target.Locator{
			mustLocator(t, "app:build"),
			mustLocator(t, "app:build"),
		},
	})
	require.NoError(t, err)
	require.Len(t, result.PrimaryTargets, 1)
}

func TestBuildErrorsOnUnknownProject(t *testing.T) {
	cat, registry := testFixture(t)

	_, err := Build(cat, registry, Request{
		Targets: []target.Locator{mustLocator(t, "ghost:build")},
	})
	assert.Error(t, err)
}

func TestBuildRejectsDependencyOnPersistentTask(t *testing.T) {
	devSource, err := wspath.New("apps/dev")
	require.NoError(t, err)
	watcherSource, err := wspath.New("apps/watcher")
	require.NoError(t, err)

	persistentOpts := workspace.DefaultTaskOptions()
	persistentOpts.Persistent = true

	watcher := &workspace.Project{
		ID:         id.MustNew("watcher"),
		Source:     watcherSource,
		Toolchains: []id.Id{id.MustNew("node")},
		Tasks: map[id.Id]*workspace.Task{
			id.MustNew("serve"): {
				ID:         id.MustNew("serve"),
				Target:     target.Qualified(id.MustNew("watcher"), id.MustNew("serve")),
				Command:    "echo",
				Toolchains: []id.Id{id.MustNew("node")},
				Options:    persistentOpts,
			},
		},
	}
	dev := &workspace.Project{
		ID:         id.MustNew("dev"),
		Source:     devSource,
		Toolchains: []id.Id{id.MustNew("node")},
		Dependencies: []workspace.ProjectDependency{
			{ID: id.MustNew("watcher"), Scope: workspace.DependencyProd},
		},
		Tasks: map[id.Id]*workspace.Task{
			id.MustNew("build"): {
				ID:      id.MustNew("build"),
				Target:  target.Qualified(id.MustNew("dev"), id.MustNew("build")),
				Command: "echo",
				Deps: []workspace.TaskDependency{
					{Target: target.Qualified(id.MustNew("watcher"), id.MustNew("serve"))},
				},
				Toolchains: []id.Id{id.MustNew("node")},
				Options:    workspace.DefaultTaskOptions(),
			},
		},
	}

	cat, err := workspace.Build([]*workspace.Project{watcher, dev})
	require.NoError(t, err)
	registry := toolchain.NewRegistry(&toolchain.Toolchain{ID: id.MustNew("node")})

	_, err = Build(cat, registry, Request{
		Targets: []target.Locator{mustLocator(t, "dev:build")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent task")
}

func TestBuildExpandsAllProjectsScope(t *testing.T) {
	cat, registry := testFixture(t)

	result, err := Build(cat, registry, Request{
		Targets: []target.Locator{mustLocator(t, ":build")},
	})
	require.NoError(t, err)
	assert.Len(t, result.PrimaryTargets, 2)
}
