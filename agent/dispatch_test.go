package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/deskagent/llm"
)

func registerStub(t *testing.T, reg *Registry, name string, parallelSafe, confirm bool, fn ToolExecutor) {
	t.Helper()
	require.NoError(t, reg.Register(ToolSpec{
		Definition:           llm.ToolDefinition{Name: name, Description: name},
		Execute:              fn,
		ParallelSafe:         parallelSafe,
		RequiresConfirmation: confirm,
	}))
}

func TestDispatchResultsInCallOrder(t *testing.T) {
	reg := NewRegistry()
	// slow finishes last but was dispatched first.
	registerStub(t, reg, "slow", true, false, func(ctx context.Context, _ json.RawMessage) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "slow output", nil
	})
	registerStub(t, reg, "fast", true, false, func(ctx context.Context, _ json.RawMessage) (string, error) {
		return "fast output", nil
	})

	gate := NewConfirmationGate(NewEmitter(16), nil)
	d := NewDispatcher(reg, gate, 4, nil)

	results := d.DispatchBatch(context.Background(), []llm.ToolCall{
		testCall("c1", "slow", `{}`),
		testCall("c2", "fast", `{}`),
	})

	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "slow output", results[0].Output)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, ToolOK, results[0].Status)
	assert.Equal(t, ToolOK, results[1].Status)
}

func TestDispatchUnknownTool(t *testing.T) {
	gate := NewConfirmationGate(NewEmitter(16), nil)
	d := NewDispatcher(NewRegistry(), gate, 4, nil)

	results := d.DispatchBatch(context.Background(), []llm.ToolCall{testCall("c1", "nope", `{}`)})
	require.Len(t, results, 1)
	assert.Equal(t, ToolError, results[0].Status)
	assert.Contains(t, results[0].Output, "nope")
}

func TestDispatchRejectedConfirmationNeverExecutes(t *testing.T) {
	var callCount int32
	reg := NewRegistry()
	registerStub(t, reg, "write_file", false, true, func(ctx context.Context, _ json.RawMessage) (string, error) {
		atomic.AddInt32(&callCount, 1)
		return "wrote", nil
	})

	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)
	d := NewDispatcher(reg, gate, 4, nil)

	go func() {
		ev := <-emitter.Events()
		gate.Resolve(ev.Fields["id"].(string), false)
	}()

	results := d.DispatchBatch(context.Background(), []llm.ToolCall{testCall("c1", "write_file", `{}`)})
	require.Len(t, results, 1)
	assert.Equal(t, ToolCancelled, results[0].Status)
	assert.Zero(t, atomic.LoadInt32(&callCount), "rejected call must not execute")
}

func TestDispatchApprovedConfirmationExecutesOnce(t *testing.T) {
	var callCount int32
	reg := NewRegistry()
	registerStub(t, reg, "write_file", false, true, func(ctx context.Context, _ json.RawMessage) (string, error) {
		atomic.AddInt32(&callCount, 1)
		return "wrote", nil
	})

	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)
	d := NewDispatcher(reg, gate, 4, nil)

	go func() {
		ev := <-emitter.Events()
		gate.Resolve(ev.Fields["id"].(string), true)
	}()

	results := d.DispatchBatch(context.Background(), []llm.ToolCall{testCall("c1", "write_file", `{}`)})
	require.Len(t, results, 1)
	assert.Equal(t, ToolOK, results[0].Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&callCount))
}

func TestDispatchSameToolTwiceCorrelatesByID(t *testing.T) {
	reg := NewRegistry()
	registerStub(t, reg, "grep", true, false, func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args struct {
			Pattern string `json:"pattern"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", err
		}
		return "hits for " + args.Pattern, nil
	})

	gate := NewConfirmationGate(NewEmitter(16), nil)
	d := NewDispatcher(reg, gate, 4, nil)

	results := d.DispatchBatch(context.Background(), []llm.ToolCall{
		testCall("c1", "grep", `{"pattern":"alpha"}`),
		testCall("c2", "grep", `{"pattern":"beta"}`),
	})

	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "hits for alpha", results[0].Output)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, "hits for beta", results[1].Output)
}

func TestDispatchExecutorErrorIsLocal(t *testing.T) {
	reg := NewRegistry()
	registerStub(t, reg, "read_file", true, false, func(ctx context.Context, _ json.RawMessage) (string, error) {
		return "", fmt.Errorf("no such file")
	})
	registerStub(t, reg, "list_directory", true, false, func(ctx context.Context, _ json.RawMessage) (string, error) {
		return "a b c", nil
	})

	gate := NewConfirmationGate(NewEmitter(16), nil)
	d := NewDispatcher(reg, gate, 4, nil)

	results := d.DispatchBatch(context.Background(), []llm.ToolCall{
		testCall("c1", "read_file", `{}`),
		testCall("c2", "list_directory", `{}`),
	})
	assert.Equal(t, ToolError, results[0].Status)
	assert.Contains(t, results[0].Output, "no such file")
	assert.Equal(t, ToolOK, results[1].Status)
}

func TestDispatchTruncatesLongOutput(t *testing.T) {
	reg := NewRegistry()
	registerStub(t, reg, "read_file", true, false, func(ctx context.Context, _ json.RawMessage) (string, error) {
		return strings.Repeat("x", maxToolOutputChars+5000), nil
	})

	gate := NewConfirmationGate(NewEmitter(16), nil)
	d := NewDispatcher(reg, gate, 4, nil)

	results := d.DispatchBatch(context.Background(), []llm.ToolCall{testCall("c1", "read_file", `{}`)})
	assert.Less(t, len(results[0].Output), maxToolOutputChars+200)
	assert.Contains(t, results[0].Output, "characters truncated")
}
