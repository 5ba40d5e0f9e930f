package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/process"
	"github.com/moonrepo/moon-core/internal/workspace"
)

// buildCommand assembles a process.Spec template for task, to be
// materialized fresh per retry attempt (each attempt needs its own stdio
// buffers). Grounded on spec.md §4.7 step 6.
func (r *Runner) buildCommand(task *workspace.Task, project *workspace.Project, actx *action.Context, node action.Node) process.Spec {
	args := append(append([]string{}, task.Args...), node.NodeArgs...)
	if actx.IsPrimary(node.Target.String()) {
		args = append(args, actx.PassthroughArgs...)
	}

	env := os.Environ()
	for k, v := range task.Env {
		env = append(env, k+"="+v)
	}

	if task.Options.InjectAffectedFiles && len(actx.AffectedFiles) > 0 {
		if task.Options.AffectedFilesAsArgs {
			for _, f := range actx.AffectedFiles {
				args = append(args, relativeToCwd(project, task, f))
			}
		} else {
			env = append(env, "MOON_AFFECTED_FILES="+strings.Join(actx.AffectedFiles, ","))
		}
	}

	cwd := project.Root.String()
	if task.CwdMode == workspace.CwdWorkspace {
		cwd = r.opts.WorkspaceRoot.String()
	}

	var killGrace time.Duration = 5 * time.Second

	return process.Spec{
		Label:     node.Target.String(),
		Program:   task.Command,
		Args:      args,
		Env:       env,
		Dir:       cwd,
		KillGrace: killGrace,
		Logger:    r.opts.Logger,
	}
}

// relativeToCwd renders an affected-file path relative to a task's working
// directory, per spec.md §4.7 step 6b.
func relativeToCwd(project *workspace.Project, task *workspace.Task, workspaceRelPath string) string {
	if task.CwdMode == workspace.CwdWorkspace {
		return workspaceRelPath
	}
	rel := strings.TrimPrefix(workspaceRelPath, project.Source.String()+"/")
	return rel
}

// outputWriters returns the stdout/stderr destinations for one attempt,
// per task.Options.OutputStyle. "stream" writes straight through to the
// runner's console writers (future internal/ui hookup point); the
// buffering styles capture to memory so the runner can decide after the
// fact whether to surface them.
func (r *Runner) outputWriters(style workspace.OutputStyle) (stdout, stderr io.Writer, capturedOut, capturedErr *bytes.Buffer) {
	switch style {
	case workspace.OutputStream:
		out := r.opts.ConsoleStdout
		errw := r.opts.ConsoleStderr
		capturedOut, capturedErr = &bytes.Buffer{}, &bytes.Buffer{}
		return io.MultiWriter(out, capturedOut), io.MultiWriter(errw, capturedErr), capturedOut, capturedErr
	case workspace.OutputNone:
		return io.Discard, io.Discard, &bytes.Buffer{}, &bytes.Buffer{}
	default: // buffer, buffer-only-failure, hash
		capturedOut, capturedErr = &bytes.Buffer{}, &bytes.Buffer{}
		return capturedOut, capturedErr, capturedOut, capturedErr
	}
}

// runAttempts executes spec via process.RunWithRetry, applying a per-task
// timeout (spec.md §4.7 step 6d) via process.Spec.Timeout — the select
// race against a sleep that step asks for lives inside process.Run itself
// — and records one TaskExecution operation per attempt.
func (r *Runner) runAttempts(ctx context.Context, task *workspace.Task, specTemplate process.Spec) ([]process.Attempt, []action.Operation) {
	if task.Options.Timeout > 0 {
		specTemplate.Timeout = time.Duration(task.Options.Timeout) * time.Second
	}

	maxAttempts := task.Options.RetryCount + 1
	var ops []action.Operation
	var capturedOuts, capturedErrs []*bytes.Buffer

	attempts := process.RunWithRetry(ctx, maxAttempts, func(n int) process.Spec {
		spec := specTemplate
		stdout, stderr, out, errBuf := r.outputWriters(task.Options.OutputStyle)
		spec.Stdout, spec.Stderr = stdout, stderr
		capturedOuts = append(capturedOuts, out)
		capturedErrs = append(capturedErrs, errBuf)
		spec.Label = fmt.Sprintf("%s#%d", specTemplate.Label, n+1)
		return spec
	})

	started := time.Now()
	for i, att := range attempts {
		op := action.Operation{
			Kind:     action.OperationTaskExecution,
			Started:  started,
			Duration: 0,
			ExitCode: att.Result.ExitCode,
			Err:      att.Result.Err,
		}
		if i < len(capturedOuts) {
			op.Stdout = capturedOuts[i].String()
		}
		if i < len(capturedErrs) {
			op.Stderr = capturedErrs[i].String()
		}
		ops = append(ops, op)
		started = time.Now()
	}

	return attempts, ops
}
