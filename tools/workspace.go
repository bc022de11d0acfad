// Package tools implements the built-in tool set: workspace-confined
// file reads, searches, writes and edits, and shell command execution.
// Read-only tools are parallel-safe; mutating tools require confirmation
// and run exclusively.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace confines every tool's filesystem access to one root
// directory. Relative paths resolve against the root; any path escaping
// it is rejected before touching the filesystem.
type Workspace struct {
	root string
}

// NewWorkspace resolves root to an absolute path.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve turns a tool-supplied path into an absolute path inside the
// workspace, or fails when it escapes.
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" || path == "." {
		return w.root, nil
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(w.root, abs)
	}
	abs = filepath.Clean(abs)
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace: %s", path)
	}
	return abs, nil
}

// Rel renders an absolute path relative to the root for display.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return rel
}

// skipDir reports directories never worth descending into.
func skipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "__pycache__", ".venv", "venv", "target", "dist", ".idea":
		return true
	}
	return false
}

// isProbablyBinary sniffs the first bytes for NULs.
func isProbablyBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}

// readTextFile reads a file, rejecting binaries and huge files.
func (w *Workspace) readTextFile(path string, maxBytes int64) (string, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", fmt.Errorf("%s is too large (%d bytes)", path, info.Size())
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	if isProbablyBinary(data) {
		return "", fmt.Errorf("%s looks binary", path)
	}
	return string(data), nil
}
