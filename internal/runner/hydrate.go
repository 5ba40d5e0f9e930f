package runner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/moonrepo/moon-core/internal/archive"
	"github.com/moonrepo/moon-core/internal/cache"
	"github.com/moonrepo/moon-core/internal/workspace"
)

// hydrateSource is the decision spec.md §4.7 step 4 makes for one task run.
type hydrateSource int

const (
	hydrateNone hydrateSource = iota
	hydratePreviousOutput
	hydrateLocalCache
	hydrateRemoteCache
)

func lastRunRelPath(project, task string) string {
	return filepath.Join("states", project, task, "lastRun.json")
}

// decideHydrateSource implements spec.md §4.7 step 4's ordered check:
// previous output still on disk, then local archive, then remote.
func (r *Runner) decideHydrateSource(ctx context.Context, effectiveCache bool, task *workspace.Task, project *workspace.Project, hashDigest string) hydrateSource {
	if !effectiveCache || !r.opts.Cache.Mode.CanRead() {
		return hydrateNone
	}

	var last LastRun
	if ok, _ := cache.LoadState(r.opts.Cache, lastRunRelPath(project.ID.String(), task.ID.String()), &last); ok {
		if last.Hash == hashDigest && r.outputsPresent(task, project) {
			return hydratePreviousOutput
		}
	}

	if r.opts.Cache.HasOutput(hashDigest) {
		return hydrateLocalCache
	}

	if r.opts.Remote != nil {
		if has, err := r.opts.Remote.HasBlob(ctx, hashDigest); err == nil && has {
			return hydrateRemoteCache
		}
	}

	return hydrateNone
}

// outputsPresent reports whether every literal (non-glob) output path the
// task declares already exists on disk. A task with no declared outputs
// trivially satisfies this — there's nothing to verify.
func (r *Runner) outputsPresent(task *workspace.Task, project *workspace.Project) bool {
	if len(task.Outputs) == 0 {
		return true
	}
	for _, ref := range task.Outputs {
		if ref.Kind == workspace.RefProjectGlob || ref.Kind == workspace.RefWorkspaceGlob || ref.Kind == workspace.RefEnvVar {
			continue
		}
		paths, err := resolveFileRefs([]workspace.FileRef{ref}, r.opts.WorkspaceRoot, project.Root)
		if err != nil || len(paths) == 0 {
			return false
		}
		abs := r.opts.WorkspaceRoot.Restore(paths[0])
		if _, err := os.Stat(abs.String()); err != nil {
			return false
		}
	}
	return true
}

// hydrateFromLocal unpacks the local archive for hashDigest into the
// workspace root.
func (r *Runner) hydrateFromLocal(hashDigest string) error {
	_, err := archive.Unpack(r.opts.Cache.ResolvePath(cache.KindOutput, hashDigest), r.opts.WorkspaceRoot.String())
	return err
}

// hydrateFromRemote downloads hashDigest's blob into the local cache, then
// unpacks it exactly like a local hit. Remote failures never fail the
// build (spec.md §4.6 "Failure policy"); the caller falls back to
// executing the task when this returns an error.
func (r *Runner) hydrateFromRemote(ctx context.Context, hashDigest string) error {
	destPath := r.opts.Cache.ResolvePath(cache.KindOutput, hashDigest)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o775); err != nil {
		return err
	}
	if err := r.opts.Remote.Download(ctx, hashDigest, destPath); err != nil {
		return err
	}
	return r.hydrateFromLocal(hashDigest)
}

// archiveOutputs packs a task's declared outputs plus its captured
// stdout/stderr logs into <cache>/outputs/<hash>.tar.gz, per spec.md §4.7
// step 7 / §6 "Archive format".
func (r *Runner) archiveOutputs(task *workspace.Task, project *workspace.Project, hashDigest, stateDir string) error {
	outputPaths, err := resolveFileRefs(task.Outputs, r.opts.WorkspaceRoot, project.Root)
	if err != nil {
		return err
	}

	entries := make([]archive.Entry, 0, len(outputPaths)+2)
	for _, p := range outputPaths {
		entries = append(entries, archive.Entry{Root: r.opts.WorkspaceRoot.String(), RelPath: p.String()})
	}
	entries = append(entries,
		archive.Entry{Root: stateDir, RelPath: "stdout.log"},
		archive.Entry{Root: stateDir, RelPath: "stderr.log"},
	)

	return archive.Pack(r.opts.Cache.ResolvePath(cache.KindOutput, hashDigest), entries, r.opts.Logger)
}

// persistRunState writes stdout.log/stderr.log and lastRun.json under a
// task's state directory, per spec.md §4.7 step 8 / §6 "Persisted state
// layout". Returns the state directory so the caller can archive from it.
func (r *Runner) persistRunState(project, task string, hashDigest string, exitCode int, stdout, stderr string) (string, error) {
	stateDir := filepath.Join(r.opts.Cache.Root, "states", project, task)
	if err := os.MkdirAll(stateDir, 0o775); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(stateDir, "stdout.log"), []byte(stdout), 0o644); err != nil {
		return stateDir, err
	}
	if err := os.WriteFile(filepath.Join(stateDir, "stderr.log"), []byte(stderr), 0o644); err != nil {
		return stateDir, err
	}
	last := LastRun{Hash: hashDigest, ExitCode: exitCode, LastRunTimeMs: nowMs()}
	if err := cache.SaveState(r.opts.Cache, lastRunRelPath(project, task), last); err != nil {
		return stateDir, err
	}
	return stateDir, nil
}
