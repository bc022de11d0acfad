package agent

import (
	"context"
	"sync"
	"time"

	"github.com/martinemde/deskagent/llm"
)

// fakeStep scripts one model response: streamed text, then tool calls.
type fakeStep struct {
	text  string
	calls []llm.ToolCall
}

// fakeClient plays back scripted steps, one per Stream call. When block
// is set, each Stream waits for a release before producing its events.
type fakeClient struct {
	mu      sync.Mutex
	steps   []fakeStep
	idx     int
	summary string
	release chan struct{}

	streamErr error
}

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: f.summary, FinishReason: "stop"}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	f.mu.Lock()
	var step fakeStep
	if f.idx < len(f.steps) {
		step = f.steps[f.idx]
		f.idx++
	} else {
		step = fakeStep{text: "done"}
	}
	release := f.release
	f.mu.Unlock()

	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		if release != nil {
			select {
			case <-release:
			case <-ctx.Done():
				ch <- llm.StreamEvent{Type: llm.StreamError, Err: ctx.Err()}
				return
			}
		}
		for _, r := range step.text {
			ch <- llm.StreamEvent{Type: llm.StreamTextDelta, Delta: string(r)}
		}
		for i, call := range step.calls {
			ch <- llm.StreamEvent{Type: llm.StreamToolCallDelta, Index: i, CallID: call.ID, NameDelta: call.Name, ArgsDelta: string(call.Arguments)}
		}
		finish := "stop"
		if len(step.calls) > 0 {
			finish = "tool_calls"
		}
		ch <- llm.StreamEvent{Type: llm.StreamFinish, FinishReason: finish}
	}()
	return ch, nil
}

// drainEvents collects events until one of the given type arrives or the
// timeout elapses. Returns everything collected including the match.
func drainEvents(emitter *Emitter, until string, timeout time.Duration) []Event {
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-emitter.Events():
			events = append(events, ev)
			if ev.Type == until {
				return events
			}
		case <-deadline:
			return events
		}
	}
}

func eventsOfType(events []Event, eventType string) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
