package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

const (
	streamScanBufferInitial = 256 * 1024
	streamScanBufferMax     = 4 * 1024 * 1024
)

// OpenAIClient implements Client against an OpenAI-compatible endpoint.
//
// Blocking completions go through the official SDK. Streaming speaks the
// chat-completions SSE wire format directly so tool-call argument fragments
// can be surfaced as they arrive.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	sdk        openai.Client
	retry      RetryPolicy
}

// NewOpenAIClient constructs a client for the given API key and base URL.
// An empty baseURL falls back to OPENAI_BASE_URL, then the public endpoint.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &ConfigurationError{ClientError: ClientError{Message: "openai client requires an API key"}}
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != openAIDefaultBaseURL {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		sdk:        openai.NewClient(opts...),
		retry:      DefaultRetryPolicy(),
	}, nil
}

// NewOpenAIClientFromEnv constructs a client from OPENAI_API_KEY and
// OPENAI_BASE_URL.
func NewOpenAIClientFromEnv() (*OpenAIClient, error) {
	return NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), "")
}

// Complete performs a blocking completion through the SDK.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: convertMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := Retry(ctx, c.retry, func(ctx context.Context) (*openai.ChatCompletion, error) {
		r, err := c.sdk.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, &NetworkError{ClientError: ClientError{Message: "openai completion failed", Cause: err}}
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	out := &Response{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		FinishReason: "stop",
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Content = choice.Message.Content
		if choice.FinishReason != "" {
			out.FinishReason = choice.FinishReason
		}
		for _, tc := range choice.Message.ToolCalls {
			args := strings.TrimSpace(tc.Function.Arguments)
			if args == "" || !json.Valid([]byte(args)) {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(args),
			})
		}
	}
	return out, nil
}

// Stream performs a streaming completion over the SSE wire format. The
// initial connection is retried per the retry policy; a stream that dies
// mid-flight yields a single error event and closes the channel.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, err := c.httpResponse(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 64)
	go c.consumeStream(body, events)
	return events, nil
}

// httpResponse opens the SSE stream, retrying connection-level failures.
func (c *OpenAIClient) httpResponse(ctx context.Context, req Request) (io.ReadCloser, error) {
	payload, err := json.Marshal(buildWireRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai failed to encode payload: %w", err)
	}

	return Retry(ctx, c.retry, func(ctx context.Context) (io.ReadCloser, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, &ConfigurationError{ClientError: ClientError{Message: "openai failed to create request", Cause: err}}
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, &NetworkError{ClientError: ClientError{Message: "openai stream failed", Cause: err}}
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, ErrorFromStatusCode(resp.StatusCode, strings.TrimSpace(string(msg)), "openai")
		}
		return resp.Body, nil
	})
}

// consumeStream parses SSE lines into StreamEvents and closes the channel
// after finish or error.
func (c *OpenAIClient) consumeStream(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, streamScanBufferInitial), streamScanBufferMax)

	finishReason := ""
	var usage *Usage

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk wireStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			events <- StreamEvent{Type: StreamError, Err: &StreamFailedError{ClientError: ClientError{Message: "openai stream failed to decode chunk", Cause: err}}}
			return
		}

		if chunk.Usage != nil {
			usage = &Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}

		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			if choice.Delta == nil {
				continue
			}
			if choice.Delta.Content != "" {
				events <- StreamEvent{Type: StreamTextDelta, Delta: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				ev := StreamEvent{Type: StreamToolCallDelta, Index: tc.Index, CallID: tc.ID}
				if tc.Function != nil {
					ev.NameDelta = tc.Function.Name
					ev.ArgsDelta = tc.Function.Arguments
				}
				events <- ev
			}
		}
	}

	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Type: StreamError, Err: &StreamFailedError{ClientError: ClientError{Message: "openai stream failed", Cause: err}}}
		return
	}

	if finishReason == "" {
		finishReason = "stop"
	}
	events <- StreamEvent{Type: StreamFinish, FinishReason: finishReason, Usage: usage}
}

// convertMessages maps llm messages onto the SDK's union params.
func convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args := string(tc.Arguments)
				if args == "" || !json.Valid([]byte(args)) {
					args = "{}"
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ToolMessage(content, msg.ToolCallID))
		}
	}
	return out
}

// convertTools maps tool definitions onto the SDK's function params.
func convertTools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		fn := shared.FunctionDefinitionParam{Name: def.Name}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		if len(def.Parameters) > 0 {
			fn.Parameters = shared.FunctionParameters(def.Parameters)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

// Wire types for the hand-rolled streaming path.

type wireRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []wireTool       `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	StreamOpts  *wireStreamOpts  `json:"stream_options,omitempty"`
}

type wireStreamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string      `json:"type"`
	Function wireToolDef `json:"function"`
}

type wireToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type wireStreamChunk struct {
	ID      string             `json:"id"`
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage,omitempty"`
}

type wireStreamChoice struct {
	Index        int        `json:"index"`
	FinishReason string     `json:"finish_reason"`
	Delta        *wireDelta `json:"delta"`
}

type wireDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []wireCallDelta `json:"tool_calls,omitempty"`
}

type wireCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Function *wireFunction `json:"function,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func buildWireRequest(req Request, stream bool) wireRequest {
	wr := wireRequest{
		Model:       req.Model,
		Messages:    make([]wireMessage, 0, len(req.Messages)),
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if stream {
		wr.StreamOpts = &wireStreamOpts{IncludeUsage: true}
	}
	for _, msg := range req.Messages {
		wm := wireMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		wr.Messages = append(wr.Messages, wm)
	}
	for _, def := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{
			Type: "function",
			Function: wireToolDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return wr
}
