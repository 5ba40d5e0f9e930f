// Package vcs implements the version-control adapter: content hashes for a
// set of workspace-relative paths, the set of touched files relative to a
// base ref, the current local branch, and ignore-file matching. It shells
// out to `git` when available and falls back to manual SHA-1 blob hashing
// plus `.gitignore` matching when it is not.
package vcs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Adapter resolves file hashes and touched-file sets against a working
// copy rooted at Root.
type Adapter struct {
	Root string
}

// New returns an Adapter rooted at root (an absolute, native path).
func New(root string) *Adapter {
	return &Adapter{Root: root}
}

// GetFileHashes returns a map from workspace-relative path (forward-slash)
// to content hash for every path in paths. It tries `git hash-object`
// first and falls back to manual hashing (git's blob format, without
// requiring git) when git is unavailable or the paths aren't tracked.
func (a *Adapter) GetFileHashes(paths []string) (map[string]string, error) {
	hashes, err := a.gitHashObject(paths)
	if err == nil {
		return hashes, nil
	}
	return a.manualHashFiles(paths)
}

// gitHashObject shells out to `git hash-object --stdin-paths`, writing
// every path (repo-root-relative, Unix-separated) on stdin and reading one
// 40-character SHA per line back on stdout, in input order.
func (a *Adapter) gitHashObject(paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return map[string]string{}, nil
	}

	cmd := exec.Command("git", "hash-object", "--stdin-paths")
	cmd.Dir = a.Root

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "vcs: opening stdin to git hash-object")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "vcs: opening stdout from git hash-object")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "vcs: starting git hash-object")
	}

	go func() {
		defer stdin.Close()
		for _, p := range paths {
			escaped := strings.ReplaceAll(filepath.ToSlash(p), "\n", "\\n")
			io.WriteString(stdin, escaped+"\n")
		}
	}()

	hashes := make([]string, 0, len(paths))
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		hashes = append(hashes, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "vcs: reading git hash-object output")
	}
	if err := cmd.Wait(); err != nil {
		return nil, errors.Wrap(err, "vcs: git hash-object exited with error")
	}
	if len(hashes) != len(paths) {
		return nil, fmt.Errorf("vcs: git hash-object returned %d hashes for %d paths", len(hashes), len(paths))
	}

	out := make(map[string]string, len(paths))
	for i, p := range paths {
		out[filepath.ToSlash(p)] = hashes[i]
	}
	return out, nil
}

// manualHashFiles hashes each path using git's own blob format (without
// invoking git), so the result is identical to gitHashObject's when git is
// unavailable.
func (a *Adapter) manualHashFiles(paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		abs := filepath.Join(a.Root, filepath.FromSlash(p))
		hash, err := gitLikeHashFile(abs)
		if err != nil {
			return nil, fmt.Errorf("vcs: hashing %q: %w", p, err)
		}
		out[filepath.ToSlash(p)] = hash
	}
	return out, nil
}

// GetTouchedFiles returns the workspace-relative paths that differ between
// baseRef and the working tree (`git diff --name-only <baseRef>`).
func (a *Adapter) GetTouchedFiles(baseRef string) ([]string, error) {
	cmd := exec.Command("git", "diff", "--name-only", baseRef)
	cmd.Dir = a.Root
	output, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "vcs: git diff against %q", baseRef)
	}
	var out []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, filepath.ToSlash(line))
		}
	}
	return out, nil
}

// GetLocalBranch returns the current branch name (`git rev-parse
// --abbrev-ref HEAD`).
func (a *Adapter) GetLocalBranch() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = a.Root
	output, err := cmd.Output()
	if err != nil {
		return "", errors.Wrap(err, "vcs: git rev-parse --abbrev-ref HEAD")
	}
	return strings.TrimSpace(string(output)), nil
}

// IgnoreMatcher compiles workspace-relative .gitignore-style patterns.
type IgnoreMatcher struct {
	ignore *gitignore.GitIgnore
}

// LoadIgnoreFile compiles the ignore file at path, relative to a's root.
// A missing file compiles to an empty (never-matches) matcher rather than
// an error, mirroring how a repo without a .gitignore behaves.
func (a *Adapter) LoadIgnoreFile(relPath string) (*IgnoreMatcher, error) {
	full := filepath.Join(a.Root, filepath.FromSlash(relPath))
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return &IgnoreMatcher{ignore: gitignore.CompileIgnoreLines()}, nil
		}
		return nil, fmt.Errorf("vcs: stat %q: %w", full, err)
	}
	compiled, err := gitignore.CompileIgnoreFile(full)
	if err != nil {
		return nil, fmt.Errorf("vcs: compiling ignore file %q: %w", full, err)
	}
	return &IgnoreMatcher{ignore: compiled}, nil
}

// IsIgnored reports whether the workspace-relative path matches the
// compiled ignore rules.
func (m *IgnoreMatcher) IsIgnored(path string) bool {
	return m.ignore.MatchesPath(filepath.ToSlash(path))
}
