// Package wspath implements the workspace-relative / absolute path model.
//
// A WorkspacePath is always forward-slash separated and rooted at the
// workspace: it is never absolute, never starts with "..", and never
// escapes the workspace. Conversion to/from an AbsolutePath is explicit
// and requires knowing the workspace root, mirroring turbopath's
// anchor/restore split (AnchoredUnixPath / AbsoluteSystemPath).
package wspath

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// WorkspacePath is a forward-slash path rooted at the workspace.
type WorkspacePath string

// New validates and constructs a WorkspacePath from a slash-separated string.
func New(p string) (WorkspacePath, error) {
	clean := path.Clean(filepath.ToSlash(p))
	if clean == "." {
		clean = ""
	}
	if path.IsAbs(clean) {
		return "", fmt.Errorf("wspath: %q is absolute, expected workspace-relative", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("wspath: %q escapes the workspace root", p)
	}
	return WorkspacePath(clean), nil
}

// String returns the underlying slash-separated path.
func (p WorkspacePath) String() string {
	return string(p)
}

// Join appends slash-separated segments and re-cleans the result.
func (p WorkspacePath) Join(segments ...string) WorkspacePath {
	all := append([]string{string(p)}, segments...)
	joined, err := New(path.Join(all...))
	if err != nil {
		// Join of an already-valid path with relative segments cannot
		// escape the workspace unless the caller passed "../" directly;
		// treat that as a programmer error rather than swallowing it.
		panic(err)
	}
	return joined
}

// Dir returns the workspace-relative parent directory.
func (p WorkspacePath) Dir() WorkspacePath {
	d, err := New(path.Dir(string(p)))
	if err != nil {
		return ""
	}
	return d
}

// AbsolutePath is a native, absolute filesystem path.
type AbsolutePath string

// NewAbsolutePath validates that p is an absolute filesystem path.
func NewAbsolutePath(p string) (AbsolutePath, error) {
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("wspath: %q is not absolute", p)
	}
	return AbsolutePath(filepath.Clean(p)), nil
}

// String returns the underlying native path.
func (p AbsolutePath) String() string {
	return string(p)
}

// Join appends native path segments.
func (p AbsolutePath) Join(segments ...string) AbsolutePath {
	all := append([]string{string(p)}, segments...)
	return AbsolutePath(filepath.Join(all...))
}

// Restore resolves a WorkspacePath to an AbsolutePath under this root.
// This is the only sanctioned conversion from workspace-relative to
// absolute: it always goes through an explicit root.
func (root AbsolutePath) Restore(p WorkspacePath) AbsolutePath {
	return AbsolutePath(filepath.Join(string(root), filepath.FromSlash(string(p))))
}

// Anchor converts an AbsolutePath back to a WorkspacePath, rooted at root.
// Returns an error if abs is not inside root.
func (root AbsolutePath) Anchor(abs AbsolutePath) (WorkspacePath, error) {
	rel, err := filepath.Rel(string(root), string(abs))
	if err != nil {
		return "", fmt.Errorf("wspath: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("wspath: %q escapes workspace root %q", abs, root)
	}
	return New(filepath.ToSlash(rel))
}
