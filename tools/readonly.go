package tools

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	maxReadBytes    = 2 << 20 // 2 MiB per read_file call
	maxSearchHits   = 200
	maxGrepHits     = 200
	maxGrepFileSize = 2 << 20
)

// ReadFile returns a file's content with line numbers. A positive offset
// starts at that 1-based line; a positive limit caps the line count.
func (w *Workspace) ReadFile(path string, offset, limit int) (string, error) {
	content, err := w.readTextFile(path, maxReadBytes)
	if err != nil {
		return "", err
	}
	if offset < 1 {
		offset = 1
	}
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	written := 0
	for scanner.Scan() {
		line++
		if line < offset {
			continue
		}
		if limit > 0 && written >= limit {
			fmt.Fprintf(&b, "... [stopped at line %d]\n", line-1)
			break
		}
		fmt.Fprintf(&b, "%6d\t%s\n", line, scanner.Text())
		written++
	}
	if written == 0 {
		return fmt.Sprintf("(no lines at offset %d)", offset), nil
	}
	return b.String(), nil
}

// ListDirectory lists one directory's entries, directories first.
func (w *Workspace) ListDirectory(path string) (string, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})
	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&b, "%s\n", entry.Name())
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", entry.Name(), info.Size())
	}
	if b.Len() == 0 {
		return "(empty directory)", nil
	}
	return b.String(), nil
}

// SearchFiles finds files whose name matches a glob pattern (or, when
// the pattern has no glob metacharacters, contains it as a substring).
func (w *Workspace) SearchFiles(pattern, dir string) (string, error) {
	root, err := w.Resolve(dir)
	if err != nil {
		return "", err
	}
	hasGlob := strings.ContainsAny(pattern, "*?[")
	var hits []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (skipDir(d.Name()) || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		matched := false
		if hasGlob {
			matched, _ = filepath.Match(pattern, name)
		} else {
			matched = strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
		}
		if matched {
			hits = append(hits, w.Rel(path))
		}
		if len(hits) >= maxSearchHits {
			return filepath.SkipAll
		}
		return nil
	})
	if len(hits) == 0 {
		return fmt.Sprintf("No files matching %q", pattern), nil
	}
	sort.Strings(hits)
	out := strings.Join(hits, "\n")
	if len(hits) >= maxSearchHits {
		out += fmt.Sprintf("\n[stopped after %d matches]", maxSearchHits)
	}
	return out, nil
}

// Grep searches file contents for a regular expression.
func (w *Workspace) Grep(pattern, dir string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}
	root, err := w.Resolve(dir)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	hits := 0
	filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (skipDir(d.Name()) || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxGrepFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || isProbablyBinary(data) {
			return nil
		}
		rel := w.Rel(path)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d: %s\n", rel, i+1, strings.TrimSpace(line))
				hits++
				if hits >= maxGrepHits {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if hits == 0 {
		return fmt.Sprintf("No matches for %q", pattern), nil
	}
	if hits >= maxGrepHits {
		fmt.Fprintf(&b, "[stopped after %d matches]", maxGrepHits)
	}
	return b.String(), nil
}

// FileInfo reports metadata for one path.
func (w *Workspace) FileInfo(path string) (string, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("path: %s\ntype: %s\nsize: %d bytes\nmode: %s\nmodified: %s",
		w.Rel(abs), kind, info.Size(), info.Mode(), info.ModTime().Format("2006-01-02 15:04:05")), nil
}
