package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/graph"
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/moonrepo/moon-core/internal/toolchain"
	"github.com/moonrepo/moon-core/internal/workspace"
	"github.com/moonrepo/moon-core/internal/wspath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestGraph(t *testing.T) *graph.Graph {
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

	loc, err := target.ParseLocator("app:build")
	require.NoError(t, err)

	result, err := graph.Build(cat, registry, graph.Request{
		Targets: []target.Locator{loc},
		Options: graph.Options{SyncWorkspace: true},
	})
	require.NoError(t, err)
	return result.Graph
}

// recordingHandlers returns Handlers that mark every node Passed after
// recording the order it ran in, guarded by a mutex since workers race.
func recordingHandlers(order *[]string, mu *sync.Mutex) Handlers {
	record := func(label string) Executor {
		return func(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
			mu.Lock()
			*order = append(*order, label)
			mu.Unlock()
			return &action.Action{Node: node, State: action.StatePassed}
		}
	}
	return Handlers{
		action.NodeSyncWorkspace:       record("SyncWorkspace"),
		action.NodeSetupProto:          record("SetupProto"),
		action.NodeSetupToolchain:      record("SetupToolchain"),
		action.NodeInstallWorkspaceDeps: record("InstallWorkspaceDeps"),
		action.NodeInstallProjectDeps:  record("InstallProjectDeps"),
		action.NodeSyncProject:         record("SyncProject"),
		action.NodeRunTask: func(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
			mu.Lock()
			*order = append(*order, node.Target.String())
			mu.Unlock()
			return &action.Action{Node: node, State: action.StatePassed}
		},
	}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestDispatcherRunsEveryNodeInDependencyOrder(t *testing.T) {
	g := buildTestGraph(t)

	var order []string
	var mu sync.Mutex
	d := New(g, recordingHandlers(&order, &mu), Options{Concurrency: 4})

	report, err := d.Run(context.Background(), action.NewContext())
	require.NoError(t, err)
	assert.False(t, report.Failed)
	assert.Len(t, report.Actions, g.NodeCount())

	for _, a := range report.Actions {
		require.NotNil(t, a)
		assert.Equal(t, action.StatePassed, a.State)
	}

	libPos := indexOf(order, "lib:build")
	appPos := indexOf(order, "app:build")
	require.GreaterOrEqual(t, libPos, 0)
	require.GreaterOrEqual(t, appPos, 0)
	assert.Less(t, libPos, appPos)
}

func TestDispatcherBailFiresAbortAndMarksRemainingAborted(t *testing.T) {
	g := buildTestGraph(t)

	handlers := Handlers{
		action.NodeSyncWorkspace:       func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeSetupProto:          func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeSetupToolchain:      func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeInstallWorkspaceDeps: func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeInstallProjectDeps:  func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeSyncProject:         func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeRunTask: func(ctx context.Context, actx *action.Context, n action.Node) *action.Action {
			if n.Target.String() == "lib:build" {
				return &action.Action{Node: n, State: action.StateFailed}
			}
			// app:build depends on lib:build so it should never actually run,
			// but give it a moment in case the dispatcher dispatches too eagerly.
			time.Sleep(10 * time.Millisecond)
			return &action.Action{Node: n, State: action.StatePassed}
		},
	}

	d := New(g, handlers, Options{Concurrency: 4, Bail: true})
	report, err := d.Run(context.Background(), action.NewContext())
	require.NoError(t, err)
	assert.True(t, report.Failed)

	var sawFailed bool
	for _, a := range report.Actions {
		require.NotNil(t, a)
		if a.Node.Kind == action.NodeRunTask && a.Node.Target.String() == "lib:build" {
			assert.Equal(t, action.StateFailed, a.State)
			sawFailed = true
		}
	}
	assert.True(t, sawFailed)
}

func TestDispatcherCancelAbortsPendingWork(t *testing.T) {
	g := buildTestGraph(t)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)

	handlers := Handlers{
		action.NodeSyncWorkspace:       func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeSetupProto:          func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeSetupToolchain:      func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeInstallWorkspaceDeps: func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeInstallProjectDeps:  func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeSyncProject:         func(ctx context.Context, actx *action.Context, n action.Node) *action.Action { return &action.Action{Node: n, State: action.StatePassed} },
		action.NodeRunTask: func(ctx context.Context, actx *action.Context, n action.Node) *action.Action {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return &action.Action{Node: n, State: action.StatePassed}
		},
	}

	d := New(g, handlers, Options{Concurrency: 4})

	done := make(chan *Report, 1)
	go func() {
		report, err := d.Run(ctx, action.NewContext())
		require.NoError(t, err)
		done <- report
	}()

	<-started
	cancel()

	select {
	case report := <-done:
		assert.True(t, d.Cancel.IsFired())
		for _, a := range report.Actions {
			require.NotNil(t, a)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not return after cancel")
	}
}
