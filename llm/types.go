package llm

import (
	"context"
	"encoding/json"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-proposed invocation of a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is the fundamental unit of conversation sent to the model.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message, optionally carrying tool calls.
func AssistantMessage(text string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: toolCalls}
}

// ToolResultMessage creates a tool-role Message correlated by call id.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolDefinition describes a tool for the model (JSON-schema parameters).
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is the input for both Complete and Stream.
type Request struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"` // "auto", "none", "required"
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// Usage tracks token consumption reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the output of Complete.
type Response struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        Usage      `json:"usage"`
}

// StreamEventType identifies the kind of stream event.
type StreamEventType string

const (
	StreamTextDelta     StreamEventType = "text_delta"
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	StreamFinish        StreamEventType = "finish"
	StreamError         StreamEventType = "error"
)

// StreamEvent is a single event from a streaming response.
//
// Tool-call deltas arrive fragmented: the provider keys each fragment by
// Index, the first fragment carries the call id and (possibly partial)
// name, and ArgsDelta accumulates into the JSON argument string. The
// consumer assembles fragments with ToolCallAccumulator.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Delta        string          `json:"delta,omitempty"`
	Index        int             `json:"index,omitempty"`
	CallID       string          `json:"call_id,omitempty"`
	NameDelta    string          `json:"name_delta,omitempty"`
	ArgsDelta    string          `json:"args_delta,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
	Err          error           `json:"-"`
}

// Client is the streaming-completion collaborator contract.
type Client interface {
	// Complete performs a blocking completion.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream performs a streaming completion. The returned channel is
	// closed after the finish or error event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// ToolCallAccumulator assembles fragmented tool-call deltas into complete
// ToolCalls, preserving the provider's index order.
type ToolCallAccumulator struct {
	order   []int
	partial map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args []byte
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{partial: make(map[int]*partialCall)}
}

// Add feeds one tool_call_delta event into the accumulator.
func (a *ToolCallAccumulator) Add(ev StreamEvent) {
	pc, ok := a.partial[ev.Index]
	if !ok {
		pc = &partialCall{}
		a.partial[ev.Index] = pc
		a.order = append(a.order, ev.Index)
	}
	if ev.CallID != "" {
		pc.id = ev.CallID
	}
	pc.name += ev.NameDelta
	pc.args = append(pc.args, ev.ArgsDelta...)
}

// Calls returns the assembled tool calls in index order. Calls with empty
// argument bodies get an empty JSON object so downstream unmarshalling
// never sees invalid JSON.
func (a *ToolCallAccumulator) Calls() []ToolCall {
	calls := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		pc := a.partial[idx]
		args := pc.args
		if len(args) == 0 {
			args = []byte("{}")
		}
		calls = append(calls, ToolCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: json.RawMessage(args),
		})
	}
	return calls
}

// Len returns the number of distinct tool calls seen so far.
func (a *ToolCallAccumulator) Len() int {
	return len(a.order)
}
