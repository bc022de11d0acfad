package agent

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/martinemde/deskagent/llm"
)

// ConfirmationGate suspends mutating tool calls until the UI approves or
// rejects them. Each pending request is keyed by the tool-call id; the
// first resolution wins and later resolutions for the same id are logged
// and ignored.
type ConfirmationGate struct {
	mu          sync.Mutex
	pending     map[string]chan bool
	autoConfirm bool
	emitter     *Emitter
	logger      *zap.Logger
}

// NewConfirmationGate creates a gate emitting confirm_request events on
// the given emitter.
func NewConfirmationGate(emitter *Emitter, logger *zap.Logger) *ConfirmationGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationGate{
		pending: make(map[string]chan bool),
		emitter: emitter,
		logger:  logger,
	}
}

// SetAutoConfirm toggles session-wide auto-approval.
func (g *ConfirmationGate) SetAutoConfirm(enabled bool) {
	g.mu.Lock()
	g.autoConfirm = enabled
	g.mu.Unlock()
}

// AutoConfirm reports whether auto-approval is active.
func (g *ConfirmationGate) AutoConfirm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.autoConfirm
}

// Request emits a confirm_request event and blocks until the UI resolves
// it, the context is cancelled, or the gate is aborted. With auto-confirm
// active the request is approved immediately but still emitted so the UI
// can render what happened.
func (g *ConfirmationGate) Request(ctx context.Context, call llm.ToolCall, preview string) (bool, error) {
	fields := map[string]interface{}{
		"id":   call.ID,
		"tool": call.Name,
		"args": decodeArgs(call.Arguments),
	}
	if preview != "" {
		fields["preview"] = preview
	}

	g.mu.Lock()
	if g.autoConfirm {
		g.mu.Unlock()
		fields["auto_approved"] = true
		g.emitter.Emit(EventConfirmRequest, fields)
		return true, nil
	}
	ch := make(chan bool, 1)
	g.pending[call.ID] = ch
	g.mu.Unlock()

	g.emitter.Emit(EventConfirmRequest, fields)
	g.logger.Info("awaiting confirmation", zap.String("tool", call.Name), zap.String("call_id", call.ID))

	select {
	case approved := <-ch:
		// A closed channel (AbortAll) reads as false, which callers
		// report as a cancelled call.
		return approved, nil
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, call.ID)
		g.mu.Unlock()
		return false, ctx.Err()
	}
}

// Resolve delivers the UI's decision for a pending request. It reports
// whether a request with that id was actually waiting; a second
// resolution for the same id is a protocol anomaly, not an error.
func (g *ConfirmationGate) Resolve(id string, approved bool) bool {
	g.mu.Lock()
	ch, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if !ok {
		g.logger.Warn("confirmation for unknown or already-resolved id", zap.String("call_id", id))
		return false
	}
	ch <- approved
	return true
}

// AbortAll rejects every pending request, used on shutdown and turn
// abort so no goroutine stays parked on the gate.
func (g *ConfirmationGate) AbortAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, ch := range g.pending {
		close(ch)
		delete(g.pending, id)
	}
}

// PendingCount reports how many requests are waiting.
func (g *ConfirmationGate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// decodeArgs renders raw tool arguments as a map for event payloads,
// falling back to the raw string when the arguments are not valid JSON.
func decodeArgs(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	return m
}
