// Package main wires together the action graph builder, pipeline
// dispatcher, task runner, and non-task action executors into a runnable
// `run`/`check`/`ci` CLI surface. The CLI itself is an external
// collaborator per spec.md §1 — this is the thin, cobra-based entry point
// the rest of the module needs to be a buildable, invokable program,
// grounded on turbo's cmd/turbo/main.go + internal/cmd root-command split.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/actionexec"
	"github.com/moonrepo/moon-core/internal/cache"
	"github.com/moonrepo/moon-core/internal/graph"
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/pipeline"
	"github.com/moonrepo/moon-core/internal/remote"
	"github.com/moonrepo/moon-core/internal/runner"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/moonrepo/moon-core/internal/vcs"
	"github.com/moonrepo/moon-core/internal/wspath"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Exit codes per spec.md §6: "0 success, 1 any action failed, 2 invalid
// input/cycle, 130 interrupted."
var (
	errInvalidInput = errors.New("moon: invalid input")
	errActionFailed = errors.New("moon: an action failed")
	errInterrupted  = errors.New("moon: interrupted")
)

// targetCmdOpts collects the flags spec.md §6 marks universal across
// run/check/ci ("--concurrency N, --updateCache, --affected, --upstream
// {none,direct,deep}, --downstream {…}, -- <passthrough>"), plus the
// "ci" flag that switches on always-summarize + ciReport.json.
type targetCmdOpts struct {
	concurrency int
	updateCache bool
	affected    bool
	upstream    string
	downstream  string
	cwd         string
	remoteAddr  string
	bail        bool
	ci          bool
}

func (o *targetCmdOpts) addFlags(flags *pflag.FlagSet) {
	flags.IntVar(&o.concurrency, "concurrency", 0, "cap on in-flight actions; <= 0 defaults to logical CPU count")
	flags.BoolVar(&o.updateCache, "updateCache", false, "force archive rewrites even if an existing output is reusable")
	flags.BoolVar(&o.affected, "affected", false, "restrict scope to projects touched since the VCS base ref")
	flags.StringVar(&o.upstream, "upstream", "none", "how far to expand the affected set upstream: none|direct|deep")
	flags.StringVar(&o.downstream, "downstream", "none", "how far to expand the affected set downstream: none|direct|deep")
	flags.StringVar(&o.cwd, "cwd", ".", "workspace root directory")
	flags.StringVar(&o.remoteAddr, "remote", "", "remote cache gRPC address; empty disables the remote client")
	flags.BoolVar(&o.bail, "bail", false, "abort the run as soon as any action fails")
}

// Execute runs moon with the given arguments (excluding the binary name)
// and returns the process exit code.
func Execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		return 130
	case errors.Is(err, errActionFailed):
		return 1
	case errors.Is(err, errInvalidInput):
		return 2
	default:
		return 2
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "moon",
		Short:         "A monorepo task orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newRunLikeCmd("run", "Run one or more targets", false),
		newRunLikeCmd("check", "Run a project's build/test/lint tasks", false),
		newRunLikeCmd("ci", "Run targets with CI defaults and a machine-readable report", true),
	)
	return cmd
}

func newRunLikeCmd(use, short string, ci bool) *cobra.Command {
	opts := &targetCmdOpts{ci: ci}
	cmd := &cobra.Command{
		Use:   use + " [targets...] [-- passthrough args]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, passthrough := splitPassthrough(cmd, args)
			return runPipeline(cmd.Context(), targets, passthrough, opts)
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

// splitPassthrough separates target locators from the "-- <passthrough>"
// tail; cobra's ArgsLenAtDash reports where the "--" fell, or -1 if absent.
func splitPassthrough(cmd *cobra.Command, args []string) ([]string, []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

func runPipeline(ctx context.Context, rawTargets, passthrough []string, opts *targetCmdOpts) error {
	logger := hclog.New(&hclog.LoggerOptions{Name: "moon", Level: hclog.Info})

	absCwd, err := filepath.Abs(opts.cwd)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	root, err := wspath.NewAbsolutePath(absCwd)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}

	manifest, err := loadManifest(root.String())
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	catalog, err := buildCatalog(root, manifest)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	toolchains := buildToolchains(manifest)

	cacheMode := cache.ModeReadWrite
	if m := os.Getenv("MOON_CACHE"); m != "" {
		parsed, err := cache.ParseMode(m)
		if err != nil {
			return fmt.Errorf("%w: %v", errInvalidInput, err)
		}
		cacheMode = parsed
	}
	cacheEngine, err := cache.New(root.String(), cacheMode)
	if err != nil {
		return err
	}

	vcsAdapter := vcs.New(root.String())

	locators := make([]target.Locator, 0, len(rawTargets))
	for _, raw := range rawTargets {
		loc, err := target.ParseLocator(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", errInvalidInput, err)
		}
		locators = append(locators, loc)
	}

	var affected map[id.Id]bool
	var touchedFiles []string
	if opts.affected {
		affected, touchedFiles, err = resolveAffected(vcsAdapter, catalog, opts.upstream, opts.downstream)
		if err != nil {
			return fmt.Errorf("%w: %v", errInvalidInput, err)
		}
	}

	req := graph.Request{
		Targets:         locators,
		Affected:        affected,
		PassthroughArgs: passthrough,
		Options: graph.Options{
			InstallDeps:     true,
			SetupToolchains: true,
			SyncProjects:    true,
			SyncWorkspace:   true,
			SyncProjectDeps: true,
		},
	}

	result, err := graph.Build(catalog, toolchains, req)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	if err := result.Graph.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}

	var remoteClient *remote.Client
	if opts.remoteAddr != "" {
		remoteClient, err = remote.Connect(ctx, remote.Options{Address: opts.remoteAddr})
		if err != nil {
			logger.Warn("remote cache unavailable, continuing with local cache only", "error", err)
			remoteClient = nil
		} else {
			defer remoteClient.Close()
		}
	}

	run := runner.New(runner.Options{
		WorkspaceRoot: root,
		Cache:         cacheEngine,
		VCS:           vcsAdapter,
		Toolchains:    toolchains,
		Catalog:       catalog,
		Remote:        remoteRunnerClient(remoteClient),
		Logger:        logger.Named("runner"),
	})
	exec := actionexec.New(actionexec.Options{
		WorkspaceRoot: root.String(),
		Cache:         cacheEngine,
		VCS:           vcsAdapter,
		Toolchains:    toolchains,
		Catalog:       catalog,
		Logger:        logger.Named("actionexec"),
	})

	handlers := exec.Handlers()
	handlers[action.NodeRunTask] = run.Run

	dispatcher := pipeline.New(result.Graph, handlers, pipeline.Options{
		Concurrency: opts.concurrency,
		Bail:        opts.bail,
		Logger:      logger.Named("pipeline"),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			dispatcher.Cancel.Fire()
			cancel()
		case <-runCtx.Done():
		}
	}()
	defer signal.Stop(sigCh)

	actx := action.NewContext()
	actx.UpdateCache = opts.updateCache
	actx.TouchedFiles = touchedFiles
	actx.AffectedFiles = touchedFiles
	actx.PassthroughArgs = passthrough
	for _, t := range result.PrimaryTargets {
		actx.PrimaryTargets[t.String()] = true
	}

	report, err := dispatcher.Run(runCtx, actx)
	if dispatcher.Cancel.IsFired() {
		return errInterrupted
	}
	if err != nil {
		return err
	}

	renderReport(report)
	if opts.ci {
		if err := writeCIReport(root.String(), report); err != nil {
			logger.Warn("failed writing ciReport.json", "error", err)
		}
	}
	if report.Failed {
		return errActionFailed
	}
	return nil
}

// remoteRunnerClient adapts a possibly-nil *remote.Client to
// runner.RemoteClient: a nil *remote.Client must become a nil interface
// value, not a non-nil interface wrapping a nil pointer.
func remoteRunnerClient(c *remote.Client) runner.RemoteClient {
	if c == nil {
		return nil
	}
	return c
}
