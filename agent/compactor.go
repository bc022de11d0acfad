package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/martinemde/deskagent/llm"
)

// Compactor keeps a conversation inside the model's context window. It
// estimates token usage before each turn and, past the configured ratio
// of the limit, replaces older history with a model-written summary while
// keeping the most recent messages verbatim.
type Compactor struct {
	client     llm.Client
	model      string
	limit      int
	ratio      float64
	keepRecent int
	logger     *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewCompactor builds a compactor for the given model and limits.
func NewCompactor(client llm.Client, cfg Config, logger *zap.Logger) *Compactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		client:     client,
		model:      cfg.Model,
		limit:      cfg.ContextLimit,
		ratio:      cfg.AutoCompactRatio,
		keepRecent: cfg.CompactKeepRecent,
		logger:     logger,
	}
}

func (c *Compactor) encoding() *tiktoken.Tiktoken {
	c.encOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			c.enc = enc
		} else {
			c.logger.Warn("token encoding unavailable, falling back to character estimate", zap.Error(err))
		}
	})
	return c.enc
}

// countTokens estimates tokens for one text, falling back to len/4 when
// no encoding is available.
func (c *Compactor) countTokens(text string) int {
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// EstimateTokens estimates the total prompt size of a history, including
// the system prompt and a small per-message framing overhead.
func (c *Compactor) EstimateTokens(systemPrompt string, messages []Message) int {
	total := c.countTokens(systemPrompt)
	for _, msg := range messages {
		total += c.countTokens(msg.Content) + 4
		for _, call := range msg.ToolCalls {
			total += c.countTokens(call.Name) + c.countTokens(string(call.Arguments))
		}
	}
	return total
}

// ShouldCompact reports whether the history has reached the compaction
// threshold: estimated tokens at or above ratio * limit.
func (c *Compactor) ShouldCompact(systemPrompt string, messages []Message) bool {
	if len(messages) <= c.keepRecent {
		return false
	}
	est := c.EstimateTokens(systemPrompt, messages)
	return float64(est) >= float64(c.limit)*c.ratio
}

const summaryPrompt = "Summarize this coding-assistant conversation concisely. Preserve: " +
	"what the user is working on, key decisions made, files created or modified, " +
	"important code or command outcomes, and any unresolved tasks. Write it as notes " +
	"the assistant can rely on to continue the work."

// Compact replaces everything but the most recent messages with a
// model-written summary. On any model failure the original history is
// returned unchanged along with the error; the turn proceeds with full
// history.
func (c *Compactor) Compact(ctx context.Context, systemPrompt string, messages []Message) ([]Message, int, int, error) {
	before := c.EstimateTokens(systemPrompt, messages)
	if len(messages) <= c.keepRecent {
		return messages, before, before, nil
	}

	split := len(messages) - c.keepRecent
	// Never split between an assistant tool-call message and its
	// results; move the boundary back to a clean user/assistant edge.
	for split > 0 && messages[split].Role == llm.RoleTool {
		split--
	}
	if split == 0 {
		return messages, before, before, nil
	}
	older, recent := messages[:split], messages[split:]

	var b strings.Builder
	for _, msg := range older {
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" && len(msg.ToolCalls) > 0 {
			names := make([]string, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				names = append(names, call.Name)
			}
			content = "[called tools: " + strings.Join(names, ", ") + "]"
		}
		if content == "" {
			continue
		}
		if len(content) > 300 {
			content = content[:300] + "…"
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, content)
	}

	resp, err := c.client.Complete(ctx, llm.Request{
		Model: c.model,
		Messages: []llm.Message{
			llm.SystemMessage(summaryPrompt),
			llm.UserMessage(b.String()),
		},
	})
	if err != nil {
		return messages, before, before, fmt.Errorf("compaction summary: %w", err)
	}

	compacted := make([]Message, 0, len(recent)+2)
	compacted = append(compacted,
		UserMsg("[Summary of earlier conversation]\n"+resp.Content),
		AssistantMsg("Understood. Continuing from that summary.", nil),
	)
	compacted = append(compacted, recent...)

	after := c.EstimateTokens(systemPrompt, compacted)
	c.logger.Info("compacted history",
		zap.Int("messages_before", len(messages)),
		zap.Int("messages_after", len(compacted)),
		zap.Int("tokens_before", before),
		zap.Int("tokens_after", after))
	return compacted, before, after, nil
}

// AutoTrim drops the oldest messages when the history exceeds max,
// keeping tool results attached to their assistant message.
func AutoTrim(messages []Message, max int) []Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	start := len(messages) - max
	for start < len(messages) && messages[start].Role == llm.RoleTool {
		start++
	}
	return messages[start:]
}
