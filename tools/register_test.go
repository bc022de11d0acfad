package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/deskagent/agent"
)

func TestRegisterAllClassification(t *testing.T) {
	ws := newTestWorkspace(t)
	reg := agent.NewRegistry()
	require.NoError(t, RegisterAll(reg, ws, nil))

	parallelSafe := []string{"read_file", "list_directory", "search_files", "grep", "get_file_info"}
	for _, name := range parallelSafe {
		spec, ok := reg.Get(name)
		require.True(t, ok, name)
		assert.True(t, spec.ParallelSafe, "%s must be parallel-safe", name)
		assert.False(t, spec.RequiresConfirmation, "%s must not need confirmation", name)
	}

	mutating := []string{"write_file", "edit_file", "run_command"}
	for _, name := range mutating {
		spec, ok := reg.Get(name)
		require.True(t, ok, name)
		assert.False(t, spec.ParallelSafe, "%s must be exclusive", name)
		assert.True(t, spec.RequiresConfirmation, "%s must need confirmation", name)
		assert.NotNil(t, spec.Preview, "%s should offer a confirmation preview", name)
	}
}

func TestRegisteredToolEndToEnd(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, "hello.txt", "hi there\n")

	reg := agent.NewRegistry()
	require.NoError(t, RegisterAll(reg, ws, nil))

	spec, ok := reg.Get("read_file")
	require.True(t, ok)
	out, err := spec.Execute(context.Background(), json.RawMessage(`{"path":"hello.txt"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "hi there")

	spec, ok = reg.Get("write_file")
	require.True(t, ok)
	preview := spec.Preview(json.RawMessage(`{"path":"new.txt","content":"fresh\n"}`))
	assert.Contains(t, preview, "+fresh")
}

func TestRegisterAllBadArguments(t *testing.T) {
	ws := newTestWorkspace(t)
	reg := agent.NewRegistry()
	require.NoError(t, RegisterAll(reg, ws, nil))

	spec, _ := reg.Get("grep")
	_, err := spec.Execute(context.Background(), json.RawMessage(`{"pattern":`))
	assert.Error(t, err)
}

func TestCollectProjectContext(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, "README.md", "# My Project\nIt parses things.")
	writeTestFile(t, ws, "main.go", "package main")

	ctx := CollectProjectContext(ws.Root())
	assert.Contains(t, ctx, "My Project")
	assert.Contains(t, ctx, "main.go")

	assert.Empty(t, CollectProjectContext(t.TempDir()))
}
