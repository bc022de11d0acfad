package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/martinemde/deskagent/llm"
)

// ToolExecutor runs one tool call and returns its textual output.
type ToolExecutor func(ctx context.Context, args json.RawMessage) (string, error)

// PreviewFunc renders a human-readable preview of what a mutating call
// would do, shown alongside the confirmation request.
type PreviewFunc func(args json.RawMessage) string

// ToolSpec describes one registered tool: its model-facing definition,
// its executor, and its safety classification. RequiresConfirmation and
// ParallelSafe are declared here once; callers never decide per call.
type ToolSpec struct {
	Definition           llm.ToolDefinition
	Execute              ToolExecutor
	Preview              PreviewFunc
	RequiresConfirmation bool
	ParallelSafe         bool
}

// Registry is the closed set of tools available to the model. Tools are
// registered at startup; lookups during a turn are read-only.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolSpec)}
}

// Register adds a tool. Re-registering a name is a programming error.
func (r *Registry) Register(spec ToolSpec) error {
	name := spec.Definition.Name
	if name == "" {
		return fmt.Errorf("tool spec missing name")
	}
	if spec.Execute == nil {
		return fmt.Errorf("tool %s missing executor", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = spec
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.tools[name]
	return spec, ok
}

// Definitions returns the model-facing tool definitions, sorted by name
// so the request payload is stable across turns.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, spec := range r.tools {
		defs = append(defs, spec.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
