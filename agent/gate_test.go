package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/deskagent/llm"
)

func testCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestGateApprove(t *testing.T) {
	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)

	done := make(chan bool, 1)
	go func() {
		approved, err := gate.Request(context.Background(), testCall("c1", "write_file", `{"path":"x"}`), "diff")
		assert.NoError(t, err)
		done <- approved
	}()

	ev := <-emitter.Events()
	require.Equal(t, EventConfirmRequest, ev.Type)
	assert.Equal(t, "c1", ev.Fields["id"])
	assert.Equal(t, "write_file", ev.Fields["tool"])
	assert.Equal(t, "diff", ev.Fields["preview"])

	require.True(t, gate.Resolve("c1", true))
	assert.True(t, <-done)
	assert.Zero(t, gate.PendingCount())
}

func TestGateReject(t *testing.T) {
	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)

	done := make(chan bool, 1)
	go func() {
		approved, _ := gate.Request(context.Background(), testCall("c1", "run_command", `{}`), "")
		done <- approved
	}()
	<-emitter.Events()

	require.True(t, gate.Resolve("c1", false))
	assert.False(t, <-done)
}

func TestGateDoubleResolveIsIdempotent(t *testing.T) {
	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)

	done := make(chan bool, 1)
	go func() {
		approved, _ := gate.Request(context.Background(), testCall("c1", "write_file", `{}`), "")
		done <- approved
	}()
	<-emitter.Events()

	assert.True(t, gate.Resolve("c1", true))
	assert.True(t, <-done)
	// Second resolution for the same id has no effect.
	assert.False(t, gate.Resolve("c1", false))
}

func TestGateResolveUnknownID(t *testing.T) {
	gate := NewConfirmationGate(NewEmitter(16), nil)
	assert.False(t, gate.Resolve("nope", true))
}

func TestGateAbortAllUnblocksAsRejected(t *testing.T) {
	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)

	done := make(chan bool, 1)
	go func() {
		approved, err := gate.Request(context.Background(), testCall("c1", "write_file", `{}`), "")
		assert.NoError(t, err)
		done <- approved
	}()
	<-emitter.Events()

	gate.AbortAll()
	select {
	case approved := <-done:
		assert.False(t, approved)
	case <-time.After(time.Second):
		t.Fatal("Request did not unblock after AbortAll")
	}
	assert.Zero(t, gate.PendingCount())
}

func TestGateAutoConfirm(t *testing.T) {
	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)
	gate.SetAutoConfirm(true)

	approved, err := gate.Request(context.Background(), testCall("c1", "write_file", `{}`), "")
	require.NoError(t, err)
	assert.True(t, approved)

	// The observability event is still emitted.
	ev := <-emitter.Events()
	assert.Equal(t, EventConfirmRequest, ev.Type)
	assert.Equal(t, true, ev.Fields["auto_approved"])
	assert.Zero(t, gate.PendingCount())
}

func TestGateContextCancellation(t *testing.T) {
	emitter := NewEmitter(16)
	gate := NewConfirmationGate(emitter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := gate.Request(ctx, testCall("c1", "write_file", `{}`), "")
		errc <- err
	}()
	<-emitter.Events()

	cancel()
	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Request did not unblock on context cancellation")
	}
	assert.Zero(t, gate.PendingCount())
}
