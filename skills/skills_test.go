package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeSkill(t *testing.T, root, dir, body string) string {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "SKILL.md"), []byte(body), 0o644))
	return path
}

const reviewSkill = `---
name: code-review
description: Review a change for correctness and style
---
Read the diff, then comment on correctness first and style second.
`

func TestLoadParsesFrontmatter(t *testing.T) {
	root := t.TempDir()
	dir := writeSkill(t, root, "review", reviewSkill)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o755))

	reg := NewRegistry(root, "", nil)
	require.NoError(t, reg.Load())

	sk, ok := reg.Get("code-review")
	require.True(t, ok)
	assert.Equal(t, "Review a change for correctness and style", sk.Description)
	assert.Contains(t, sk.Instructions, "correctness first")
	assert.True(t, sk.Enabled)
	assert.True(t, sk.HasScripts)
	assert.False(t, sk.HasReferences)
}

func TestLoadNameFallsBackToDirName(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "formatter", "Just format the code.\n")

	reg := NewRegistry(root, "", nil)
	require.NoError(t, reg.Load())

	sk, ok := reg.Get("formatter")
	require.True(t, ok)
	assert.Contains(t, sk.Instructions, "format the code")
}

func TestLoadSkipsDirsWithoutSkillFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-skill"), 0o755))
	writeSkill(t, root, "real", reviewSkill)

	reg := NewRegistry(root, "", nil)
	require.NoError(t, reg.Load())
	assert.Len(t, reg.List(), 1)
}

func TestLoadMissingDirIsEmpty(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "absent"), "", nil)
	require.NoError(t, reg.Load())
	assert.Empty(t, reg.List())
}

func TestToggleAndEnabled(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "review", reviewSkill)

	reg := NewRegistry(root, "", nil)
	require.NoError(t, reg.Load())

	require.NoError(t, reg.Toggle("code-review", false))
	sk, _ := reg.Get("code-review")
	assert.False(t, sk.Enabled)
	assert.Empty(t, reg.Enabled(), "disabled skills never reach the model")

	require.NoError(t, reg.Toggle("code-review", true))
	assert.Len(t, reg.Enabled(), 1)

	assert.Error(t, reg.Toggle("ghost", true))
}

func TestDisabledSetSurvivesReload(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "disabled.json")
	writeSkill(t, root, "review", reviewSkill)

	reg := NewRegistry(root, statePath, nil)
	require.NoError(t, reg.Load())
	require.NoError(t, reg.Toggle("code-review", false))

	// Fresh registry, same state file: the toggle persists.
	reg2 := NewRegistry(root, statePath, nil)
	require.NoError(t, reg2.Load())
	sk, ok := reg2.Get("code-review")
	require.True(t, ok)
	assert.False(t, sk.Enabled)
}
