package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

const commandTimeout = 60 * time.Second

// WriteFile creates or overwrites a file, creating parent directories.
func (w *Workspace) WriteFile(path, content string) (string, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), w.Rel(abs)), nil
}

// EditFile replaces an exact text fragment in a file. The fragment must
// appear exactly once so the edit is unambiguous.
func (w *Workspace) EditFile(path, oldText, newText string) (string, error) {
	content, err := w.readTextFile(path, maxReadBytes)
	if err != nil {
		return "", err
	}
	switch count := strings.Count(content, oldText); {
	case oldText == "":
		return "", fmt.Errorf("old_text must not be empty")
	case count == 0:
		return "", fmt.Errorf("old_text not found in %s", path)
	case count > 1:
		return "", fmt.Errorf("old_text appears %d times in %s; provide more context", count, path)
	}
	updated := strings.Replace(content, oldText, newText, 1)

	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Edited %s", w.Rel(abs)), nil
}

// WritePreview renders a unified diff between the file's current content
// (empty for a new file) and the proposed content, for the confirmation
// prompt.
func (w *Workspace) WritePreview(path, content string) string {
	current, _ := w.readTextFile(path, maxReadBytes)
	return unifiedDiff(path, current, content)
}

// EditPreview renders a unified diff for a proposed exact-match edit.
// Returns "" when the edit would not apply; the executor reports the
// real error.
func (w *Workspace) EditPreview(path, oldText, newText string) string {
	content, err := w.readTextFile(path, maxReadBytes)
	if err != nil || oldText == "" || strings.Count(content, oldText) != 1 {
		return ""
	}
	updated := strings.Replace(content, oldText, newText, 1)
	return unifiedDiff(path, content, updated)
}

func unifiedDiff(path, before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

// RunCommand executes a shell command in the workspace root with a
// timeout, returning combined output and the exit status.
func (w *Workspace) RunCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = w.root
	// Run the shell in its own process group so a timeout kills the
	// whole tree, not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	output, err := cmd.CombinedOutput()

	result := strings.TrimRight(string(output), "\n")
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s:\n%s", commandTimeout, result)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Sprintf("%s\n[exit status %d]", result, exitErr.ExitCode()), nil
		}
		return "", err
	}
	if result == "" {
		return "(no output)", nil
	}
	return result, nil
}
