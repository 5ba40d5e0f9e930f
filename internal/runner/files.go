package runner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"github.com/moonrepo/moon-core/internal/workspace"
	"github.com/moonrepo/moon-core/internal/wspath"
)

// resolveFileRefs expands a task's Inputs/Outputs file references into
// concrete, deduplicated, sorted workspace-relative paths. Glob refs are
// expanded with io/fs.WalkDir + gobwas/glob. RefEnvVar entries are skipped; the caller folds those into
// the hash as ordinary env records instead of file records.
func resolveFileRefs(refs []workspace.FileRef, workspaceRoot, projectRoot wspath.AbsolutePath) ([]wspath.WorkspacePath, error) {
	seen := make(map[wspath.WorkspacePath]bool)
	var out []wspath.WorkspacePath

	add := func(p wspath.WorkspacePath) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, ref := range refs {
		switch ref.Kind {
		case workspace.RefEnvVar:
			continue
		case workspace.RefProjectFile:
			wp, err := workspaceRoot.Anchor(projectRoot.Join(ref.Pattern))
			if err != nil {
				return nil, err
			}
			add(wp)
		case workspace.RefWorkspaceFile:
			wp, err := wspath.New(ref.Pattern)
			if err != nil {
				return nil, err
			}
			add(wp)
		case workspace.RefProjectGlob:
			matches, err := expandGlob(workspaceRoot, projectRoot, ref.Pattern)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				add(m)
			}
		case workspace.RefWorkspaceGlob:
			matches, err := expandGlob(workspaceRoot, workspaceRoot, ref.Pattern)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				add(m)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// expandGlob walks root for files matching a forward-slash glob pattern,
// returning matches anchored to workspaceRoot. A missing root walks to
// nothing rather than erroring, since a freshly-scaffolded project may not
// yet have the directory a glob targets.
func expandGlob(workspaceRoot, root wspath.AbsolutePath, pattern string) ([]wspath.WorkspacePath, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}

	var out []wspath.WorkspacePath
	walkErr := filepath.WalkDir(root.String(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root.String(), path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !g.Match(rel) {
			return nil
		}
		abs, err := wspath.NewAbsolutePath(path)
		if err != nil {
			return err
		}
		wp, err := workspaceRoot.Anchor(abs)
		if err != nil {
			return err
		}
		out = append(out, wp)
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return nil, walkErr
	}
	return out, nil
}
