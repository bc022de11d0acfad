package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/deskagent/llm"
)

// Engine drives one turn of a conversation: stream assistant output,
// collect tool-call proposals, dispatch them, feed results back, repeat
// until the model answers without tool calls or a guard fires.
//
// A turn moves through streaming -> executing-tools -> (awaiting
// confirmation inside the dispatcher) -> streaming again, and every turn
// terminates in exactly one of: a final assistant message, a forced stop
// at the round limit, or an error.
type Engine struct {
	client     llm.Client
	registry   *Registry
	dispatcher *Dispatcher
	emitter    *Emitter
	config     Config
	logger     *zap.Logger

	// systemPrompt is rebuilt per turn so skill toggles and project
	// context changes take effect without restart.
	systemPrompt func() string
}

// NewEngine assembles a turn engine.
func NewEngine(client llm.Client, registry *Registry, dispatcher *Dispatcher, emitter *Emitter, cfg Config, systemPrompt func() string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if systemPrompt == nil {
		systemPrompt = func() string { return "" }
	}
	return &Engine{
		client:       client,
		registry:     registry,
		dispatcher:   dispatcher,
		emitter:      emitter,
		config:       cfg,
		logger:       logger,
		systemPrompt: systemPrompt,
	}
}

// RunTurn appends the user message and runs the loop to completion. On
// error the just-appended user message is rolled back so a retry does not
// duplicate it.
func (e *Engine) RunTurn(ctx context.Context, conv *Conversation, userText string) error {
	conv.Append(UserMsg(userText))
	conv.AutoTitle()

	if err := e.run(ctx, conv); err != nil {
		e.rollbackTrailingUser(conv)
		return err
	}
	return nil
}

func (e *Engine) run(ctx context.Context, conv *Conversation) error {
	prompt := e.systemPrompt()
	rounds := 0

	for {
		if err := ctx.Err(); err != nil {
			return &llm.AbortError{ClientError: llm.ClientError{Message: "turn aborted", Cause: err}}
		}
		if rounds >= e.config.MaxToolRounds {
			conv.Append(SystemMsg(fmt.Sprintf(
				"Tool-call round limit (%d) reached. The turn was stopped; summarize progress for the user.",
				e.config.MaxToolRounds)))
			e.emitter.StatusEvent(fmt.Sprintf("Stopped after %d tool rounds", e.config.MaxToolRounds), false)
			e.emitter.Emit(EventAssistantDone, map[string]interface{}{
				"content": fmt.Sprintf("(stopped after %d tool rounds)", e.config.MaxToolRounds),
			})
			return nil
		}

		content, calls, err := e.streamStep(ctx, prompt, conv)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			conv.Append(AssistantMsg(content, nil))
			e.emitter.Emit(EventAssistantDone, map[string]interface{}{"content": content})
			return nil
		}

		conv.Append(AssistantMsg(content, calls))
		rounds++

		for _, call := range calls {
			e.emitter.Emit(EventToolCall, map[string]interface{}{
				"id":   call.ID,
				"name": call.Name,
				"args": decodeArgs(call.Arguments),
			})
		}

		results := e.dispatcher.DispatchBatch(ctx, calls)
		for _, res := range results {
			conv.Append(ToolMsg(res.CallID, res.Output))
			e.emitter.Emit(EventToolResult, map[string]interface{}{
				"id":     res.CallID,
				"name":   res.Name,
				"status": string(res.Status),
				"result": previewString(res.Output, uiResultPreviewChars),
			})
		}

		if DetectToolLoop(conv.Messages, e.config.LoopDetectionWindow) {
			e.logger.Warn("repeated tool rounds detected", zap.String("conversation", conv.ID))
			conv.Append(SystemMsg(loopSteeringNotice))
			e.emitter.StatusEvent("Repeated tool calls detected, steering the model", true)
		}
	}
}

// streamStep performs one model request, emitting token events as text
// arrives and assembling any tool-call proposals.
func (e *Engine) streamStep(ctx context.Context, prompt string, conv *Conversation) (string, []llm.ToolCall, error) {
	req := llm.Request{
		Model:    e.config.Model,
		Messages: conv.ModelMessages(prompt),
	}
	if e.registry.Len() > 0 {
		req.Tools = e.registry.Definitions()
		req.ToolChoice = "auto"
	}

	stream, err := e.client.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	acc := llm.NewToolCallAccumulator()
	var streamErr error

	for ev := range stream {
		switch ev.Type {
		case llm.StreamTextDelta:
			text.WriteString(ev.Delta)
			e.emitter.Emit(EventToken, map[string]interface{}{"content": ev.Delta})
		case llm.StreamToolCallDelta:
			acc.Add(ev)
		case llm.StreamError:
			streamErr = ev.Err
		case llm.StreamFinish:
			// finish_reason and usage are informational here.
		}
	}
	if streamErr != nil {
		return "", nil, streamErr
	}

	calls := acc.Calls()
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.New().String()
		}
	}
	return text.String(), calls, nil
}

// rollbackTrailingUser pops the turn's user message when the failure hit
// before any assistant output, so a retry does not duplicate it. Once
// tool rounds have run their results stay: side effects already happened
// and the history must keep calls paired with results.
func (e *Engine) rollbackTrailingUser(conv *Conversation) {
	n := len(conv.Messages)
	if n > 0 && conv.Messages[n-1].Role == llm.RoleUser {
		conv.Messages = conv.Messages[:n-1]
	}
}
