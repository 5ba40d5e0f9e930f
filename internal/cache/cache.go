// Package cache owns <workspace>/.moon/cache/, the local content-addressed
// store for task output archives and hash manifests. Adapted from turbo's
// internal/cache/cache_fs.go layout (a directory under the workspace root,
// temp-file-then-rename writes keyed by hash) generalized with an explicit
// cache-mode gate, since this cache is consulted by every task run rather
// than only an opt-in remote-cache path.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Mode gates which primitives are permitted against the cache.
type Mode string

const (
	ModeReadWrite       Mode = "read-write"
	ModeRead            Mode = "read"
	ModeWrite           Mode = "write"
	ModeReadWriteCreate Mode = "read-write-create"
	ModeOff             Mode = "off"
)

// ParseMode reads a cache mode from an environment-style string (as
// consumed from MOON_CACHE), defaulting to ModeReadWrite when empty.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeReadWrite, nil
	}
	m := Mode(s)
	switch m {
	case ModeReadWrite, ModeRead, ModeWrite, ModeReadWriteCreate, ModeOff:
		return m, nil
	default:
		return "", errors.Errorf("cache: unknown cache mode %q", s)
	}
}

// CanRead reports whether this mode permits fetching from the cache.
func (m Mode) CanRead() bool {
	return m == ModeReadWrite || m == ModeRead || m == ModeReadWriteCreate
}

// CanWrite reports whether this mode permits storing into the cache.
func (m Mode) CanWrite() bool {
	return m == ModeReadWrite || m == ModeWrite || m == ModeReadWriteCreate
}

// Kind names the two path families a hash resolves to under the cache root.
type Kind string

const (
	KindOutput Kind = "outputs"
	KindHash   Kind = "hashes"
)

const cacheDirTagContents = "Signature: 8a477f597d28d172789f06886806bc55\n" +
	"# This file is a cache directory tag created by moon.\n" +
	"# For information about cache directory tags see https://bford.info/cachedir/\n"

// Engine is the cache root: <workspace>/.moon/cache. It is safe for
// concurrent use; content-addressed paths make concurrent writers to
// distinct hashes independent, and same-hash writes go through
// temp-file-then-rename so a concurrent reader never observes a partial
// file.
type Engine struct {
	Root string
	Mode Mode
}

// New creates an Engine rooted at <workspaceRoot>/.moon/cache, ensuring the
// outputs/hashes/states subdirectories and the CACHEDIR.TAG marker exist.
func New(workspaceRoot string, mode Mode) (*Engine, error) {
	root := filepath.Join(workspaceRoot, ".moon", "cache")
	e := &Engine{Root: root, Mode: mode}
	if mode == ModeOff {
		return e, nil
	}
	for _, sub := range []string{string(KindOutput), string(KindHash), "states"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o775); err != nil {
			return nil, errors.Wrapf(err, "cache: creating %s directory", sub)
		}
	}
	if err := writeCacheDirTag(root); err != nil {
		return nil, err
	}
	return e, nil
}

// writeCacheDirTag writes CACHEDIR.TAG if it does not already exist; it is
// never rewritten once present so an external diff of the cache root is
// stable across runs.
func writeCacheDirTag(root string) error {
	path := filepath.Join(root, "CACHEDIR.TAG")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "cache: stat CACHEDIR.TAG")
	}
	if err := os.WriteFile(path, []byte(cacheDirTagContents), 0o644); err != nil {
		return errors.Wrap(err, "cache: writing CACHEDIR.TAG")
	}
	return nil
}

// ResolvePath returns the canonical path for a hash of the given kind:
// outputs/<hash>.tar.gz or hashes/<hash>.json.
func (e *Engine) ResolvePath(kind Kind, hash string) string {
	switch kind {
	case KindOutput:
		return filepath.Join(e.Root, string(KindOutput), hash+".tar.gz")
	case KindHash:
		return filepath.Join(e.Root, string(KindHash), hash+".json")
	default:
		return filepath.Join(e.Root, string(kind), hash)
	}
}

// StatePath returns the path to a task's state directory:
// states/<project>/<task>.
func (e *Engine) StatePath(project, task string) string {
	return filepath.Join(e.Root, "states", project, task)
}

// SnapshotPath returns the path to a project's workspace-graph snapshot.
func (e *Engine) SnapshotPath(project string) string {
	return filepath.Join(e.Root, "states", project, "snapshot.json")
}

// ToolchainSetupStatePath returns the path recording that a toolchain's
// Setup has already run, so repeat invocations can skip it.
func (e *Engine) ToolchainSetupStatePath(toolchainID string) string {
	return filepath.Join(e.Root, "states", "setupToolchain-"+toolchainID+".json")
}

// HasOutput reports whether an output archive exists locally for hash.
func (e *Engine) HasOutput(hash string) bool {
	_, err := os.Stat(e.ResolvePath(KindOutput, hash))
	return err == nil
}

// LoadState reads and unmarshals the JSON state file at relPath (relative
// to the cache root) into v. A missing file is not an error; v is left
// untouched and ok is false.
func LoadState[T any](e *Engine, relPath string, v *T) (ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(e.Root, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "cache: reading state %q", relPath)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "cache: unmarshaling state %q", relPath)
	}
	return true, nil
}

// SaveState marshals v as JSON and writes it to relPath (relative to the
// cache root) via a temp-file-then-rename so a concurrent reader never
// observes a half-written state file.
func SaveState[T any](e *Engine, relPath string, v T) error {
	full := filepath.Join(e.Root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o775); err != nil {
		return errors.Wrapf(err, "cache: creating state directory for %q", relPath)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "cache: marshaling state %q", relPath)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-state-*")
	if err != nil {
		return errors.Wrapf(err, "cache: creating temp state file for %q", relPath)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "cache: writing state %q", relPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "cache: closing state %q", relPath)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "cache: renaming state into place %q", relPath)
	}
	return nil
}
