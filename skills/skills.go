// Package skills discovers and manages skill definitions: directories
// containing a SKILL.md file with YAML frontmatter (name, description)
// followed by markdown instructions. Skills can be toggled at runtime;
// the disabled set persists across restarts.
package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Skill is one discovered skill. Capability flags report which optional
// subdirectories (scripts/, references/, assets/) the skill ships.
type Skill struct {
	Name          string
	Description   string
	Instructions  string
	Dir           string
	Enabled       bool
	HasScripts    bool
	HasReferences bool
	HasAssets     bool
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Registry scans a directory tree for skills and tracks the disabled
// set. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	dir       string
	statePath string
	skills    map[string]*Skill
	disabled  map[string]bool
	logger    *zap.Logger
}

// NewRegistry creates a registry rooted at dir. The disabled set is
// persisted to statePath; pass "" to keep toggles in memory only.
func NewRegistry(dir, statePath string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dir:       dir,
		statePath: statePath,
		skills:    make(map[string]*Skill),
		disabled:  make(map[string]bool),
		logger:    logger,
	}
}

// Load rescans the skill directory, replacing the known set. Toggles for
// skills that still exist are preserved. A missing directory yields an
// empty registry without error.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.disabled) == 0 {
		r.loadDisabledLocked()
	}

	r.skills = make(map[string]*Skill)
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan skills dir %s: %w", r.dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillDir := filepath.Join(r.dir, entry.Name())
		sk, err := parseSkill(skillDir)
		if err != nil {
			r.logger.Warn("skipping malformed skill", zap.String("dir", skillDir), zap.Error(err))
			continue
		}
		sk.Enabled = !r.disabled[sk.Name]
		r.skills[sk.Name] = sk
	}
	r.logger.Info("loaded skills", zap.Int("count", len(r.skills)))
	return nil
}

// parseSkill reads dir/SKILL.md and the capability subdirectories.
func parseSkill(dir string) (*Skill, error) {
	data, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
	if err != nil {
		return nil, err
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(fm.Name)
	if name == "" {
		name = filepath.Base(dir)
	}
	return &Skill{
		Name:          name,
		Description:   strings.TrimSpace(fm.Description),
		Instructions:  strings.TrimSpace(body),
		Dir:           dir,
		HasScripts:    dirExists(filepath.Join(dir, "scripts")),
		HasReferences: dirExists(filepath.Join(dir, "references")),
		HasAssets:     dirExists(filepath.Join(dir, "assets")),
	}, nil
}

// splitFrontmatter separates the leading --- delimited YAML block from
// the markdown body. A file without frontmatter is all body.
func splitFrontmatter(content string) (frontmatter, string, error) {
	var fm frontmatter
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return fm, content, nil
	}
	rest := content[strings.Index(content, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, content, nil
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	} else {
		body = ""
	}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return fm, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, body, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// List returns every known skill sorted by name.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, 0, len(r.skills))
	for _, sk := range r.skills {
		out = append(out, *sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled returns only the enabled skills, sorted by name.
func (r *Registry) Enabled() []Skill {
	all := r.List()
	out := all[:0]
	for _, sk := range all {
		if sk.Enabled {
			out = append(out, sk)
		}
	}
	return out
}

// Get looks up one skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sk, ok := r.skills[name]
	if !ok {
		return Skill{}, false
	}
	return *sk, true
}

// Toggle enables or disables a skill and persists the disabled set.
func (r *Registry) Toggle(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sk, ok := r.skills[name]
	if !ok {
		return fmt.Errorf("unknown skill: %s", name)
	}
	sk.Enabled = enabled
	if enabled {
		delete(r.disabled, name)
	} else {
		r.disabled[name] = true
	}
	return r.saveDisabledLocked()
}

// Dir returns the registry's root directory.
func (r *Registry) Dir() string {
	return r.dir
}

func (r *Registry) loadDisabledLocked() {
	if r.statePath == "" {
		return
	}
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		return
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		r.logger.Warn("unreadable disabled-skills state", zap.Error(err))
		return
	}
	for _, name := range names {
		r.disabled[name] = true
	}
}

func (r *Registry) saveDisabledLocked() error {
	if r.statePath == "" {
		return nil
	}
	names := make([]string, 0, len(r.disabled))
	for name := range r.disabled {
		names = append(names, name)
	}
	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.statePath, data, 0o644); err != nil {
		return fmt.Errorf("persist disabled skills: %w", err)
	}
	return nil
}
