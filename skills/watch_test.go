package skills

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnNewSkill(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "first", reviewSkill)

	reg := NewRegistry(root, "", nil)
	require.NoError(t, reg.Load())
	require.Len(t, reg.List(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.Watch(ctx, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to arm before mutating the directory.
	time.Sleep(100 * time.Millisecond)
	writeSkill(t, root, "second", "Another skill body.\n")

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload after a new skill appeared")
	}
	assert.Len(t, reg.List(), 2)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}
