// Package llm provides the streaming-completion client contract used by the
// agent core, plus an OpenAI-compatible adapter.
//
// The core only depends on the Client interface: a blocking Complete for
// auxiliary calls (history summarization, titles) and a Stream that yields
// token deltas and incremental tool-call proposals. Provider errors carry a
// typed taxonomy so callers can distinguish retryable transport failures
// from permanent ones, and Retry implements exponential backoff with jitter
// for the retryable class.
//
// The OpenAI adapter speaks the chat-completions SSE wire protocol directly
// for streaming (tool-call argument fragments arrive keyed by index and are
// accumulated by the consumer) and uses the official SDK for blocking
// completions. Any endpoint implementing the same wire format works via
// OPENAI_BASE_URL.
package llm
