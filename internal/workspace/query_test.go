package workspace

import (
	"testing"

	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/moonrepo/moon-core/internal/wspath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()

	webSource, err := wspath.New("apps/web")
	require.NoError(t, err)
	apiSource, err := wspath.New("apps/api")
	require.NoError(t, err)

	web := &Project{
		ID:       id.MustNew("web"),
		Source:   webSource,
		Language: "typescript",
		Stack:    "frontend",
		Layer:    "application",
		Tags:     []id.Id{id.MustNew("frontend")},
		Tasks: map[id.Id]*Task{
			id.MustNew("build"): {
				ID:     id.MustNew("build"),
				Target: target.Qualified(id.MustNew("web"), id.MustNew("build")),
				Type:   TaskBuild,
			},
			id.MustNew("lint"): {
				ID:     id.MustNew("lint"),
				Target: target.Qualified(id.MustNew("web"), id.MustNew("lint")),
				Type:   TaskTest,
			},
		},
	}
	api := &Project{
		ID:       id.MustNew("api"),
		Source:   apiSource,
		Language: "go",
		Stack:    "backend",
		Layer:    "application",
		Tags:     []id.Id{id.MustNew("backend")},
		Tasks: map[id.Id]*Task{
			id.MustNew("build"): {
				ID:     id.MustNew("build"),
				Target: target.Qualified(id.MustNew("api"), id.MustNew("build")),
				Type:   TaskBuild,
			},
		},
	}

	cat, err := Build([]*Project{web, api})
	require.NoError(t, err)
	return cat
}

func TestQueryProjectsByLanguage(t *testing.T) {
	cat := testCatalog(t)

	ids, err := cat.QueryProjects("language=go")
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, ids)
}

func TestQueryProjectsByTagOr(t *testing.T) {
	cat := testCatalog(t)

	ids, err := cat.QueryProjects("tag=frontend || tag=backend")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "web"}, ids)
}

func TestQueryProjectsGlob(t *testing.T) {
	cat := testCatalog(t)

	ids, err := cat.QueryProjects("project~w*")
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, ids)
}

func TestQueryProjectsListValue(t *testing.T) {
	cat := testCatalog(t)

	ids, err := cat.QueryProjects("language=[go,typescript]")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "web"}, ids)
}

func TestQueryTasksByTypeAndProject(t *testing.T) {
	cat := testCatalog(t)

	tasks, err := cat.QueryTasks("taskType=build && language=go")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "api:build", tasks[0].String())
}

func TestQueryInvalidClauseErrors(t *testing.T) {
	cat := testCatalog(t)

	_, err := cat.QueryProjects("nonsense-without-operator")
	assert.Error(t, err)
}

func TestQueryIsCachedByCriteriaString(t *testing.T) {
	cat := testCatalog(t)

	_, err := cat.QueryProjects("language=go")
	require.NoError(t, err)

	cat.queryMu.RLock()
	_, ok := cat.queryCache["language=go"]
	cat.queryMu.RUnlock()
	assert.True(t, ok)
}
