// Package agent implements the orchestration core of the coding assistant.
//
// It turns one user message into a sequence of streamed model output, tool
// dispatch, and result feedback, across many conversations observed and
// driven by a UI through a typed event protocol.
//
// The package is organized around these core concepts:
//
//   - Manager: owns the live conversations, the backend-active id, queued
//     switch requests, and the single in-flight turn.
//   - Engine: drives one turn: stream tokens, collect tool-call proposals,
//     dispatch them, append results, loop until a final answer.
//   - Registry / Dispatcher: closed set of tools registered at startup with
//     explicit confirmation and parallel-safety classes; parallel-safe
//     calls run concurrently under a bounded worker pool, mutating calls
//     run one at a time behind the confirmation gate.
//   - ConfirmationGate: suspends a mutating tool call until exactly one
//     approval or rejection arrives from the UI.
//   - Compactor: summarizes older history between turns when token usage
//     crosses the configured ratio of the context limit.
//   - Emitter: typed event stream consumed by the IPC layer.
//
// A conversation's message sequence is exclusively owned by whichever turn
// has it checked out; the Manager refuses switch and delete while a turn
// holds it and applies the most recent queued switch the moment the turn
// finishes.
package agent
