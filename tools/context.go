package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	contextMaxReadme = 4000
	contextMaxFiles  = 50
)

// CollectProjectContext builds a short orientation blurb for the system
// prompt: the top of the README (if any) plus a shallow file listing.
// Returns "" when the workspace has nothing useful.
func CollectProjectContext(root string) string {
	var b strings.Builder

	for _, name := range []string{"README.md", "README.rst", "README.txt", "README"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		text := string(data)
		if len(text) > contextMaxReadme {
			text = text[:contextMaxReadme] + "\n[README truncated]"
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", name, strings.TrimSpace(text))
		break
	}

	var files []string
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
		if len(files) >= contextMaxFiles {
			return filepath.SkipAll
		}
		rel, err := filepath.Rel(root, path)
		if err == nil {
			files = append(files, rel)
		}
		return nil
	})
	if len(files) > 0 {
		sort.Strings(files)
		b.WriteString("Project files:\n")
		for _, f := range files {
			b.WriteString("  " + f + "\n")
		}
		if len(files) >= contextMaxFiles {
			b.WriteString("  [listing truncated]\n")
		}
	}

	return strings.TrimSpace(b.String())
}
