package agent

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/deskagent/llm"
)

// Message is one entry in a conversation's history. It mirrors the wire
// shape the model consumes: user and assistant text, assistant tool-call
// proposals, and tool results correlated by call id.
type Message struct {
	Role       llm.Role       `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Conversation is one independent message history with identity and
// display metadata. The Manager owns every live Conversation; a turn in
// progress holds exclusive ownership of Messages until it finishes.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	Snapshot     string    `json:"snapshot,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	// Busy is true while a turn holds this conversation. Not persisted.
	Busy bool `json:"-"`
}

// NewConversation creates an empty conversation with a fresh id.
func NewConversation(title string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           uuid.New().String(),
		Title:        title,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Append adds a message and bumps the activity timestamp.
func (c *Conversation) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.Messages = append(c.Messages, msg)
	c.LastActivity = time.Now()
}

// AutoTitle derives a title from the first user message when the
// conversation still carries the default one.
func (c *Conversation) AutoTitle() {
	if c.Title != "" && c.Title != "New conversation" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == llm.RoleUser {
			title := strings.TrimSpace(msg.Content)
			title = strings.ReplaceAll(title, "\n", " ")
			if len(title) > 48 {
				title = title[:48] + "…"
			}
			if title != "" {
				c.Title = title
			}
			return
		}
	}
}

// ModelMessages converts the history to the request shape, prefixing the
// system prompt.
func (c *Conversation) ModelMessages(systemPrompt string) []llm.Message {
	out := make([]llm.Message, 0, len(c.Messages)+1)
	if systemPrompt != "" {
		out = append(out, llm.SystemMessage(systemPrompt))
	}
	for _, msg := range c.Messages {
		out = append(out, llm.Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}
	return out
}

// UserMsg builds a user message.
func UserMsg(content string) Message {
	return Message{Role: llm.RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantMsg builds an assistant message, optionally carrying tool calls.
func AssistantMsg(content string, calls []llm.ToolCall) Message {
	return Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls, Timestamp: time.Now()}
}

// ToolMsg builds a tool-result message correlated to a call id.
func ToolMsg(callID, content string) Message {
	return Message{Role: llm.RoleTool, Content: content, ToolCallID: callID, Timestamp: time.Now()}
}

// SystemMsg builds a system message injected into history (compaction
// notices, loop steering, round-limit notices).
func SystemMsg(content string) Message {
	return Message{Role: llm.RoleSystem, Content: content, Timestamp: time.Now()}
}
