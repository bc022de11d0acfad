package agent

import (
	"encoding/json"
	"sync"
)

// Outbound event types. The vocabulary is identical over every transport.
const (
	EventSystemInfo          = "system_info"
	EventToken               = "token"
	EventToolCall            = "tool_call"
	EventToolResult          = "tool_result"
	EventConfirmRequest      = "confirm_request"
	EventAssistantDone       = "assistant_done"
	EventChatFinished        = "chat_finished"
	EventSkillsList          = "skills_list"
	EventSkillToggled        = "skill_toggled"
	EventCompacting          = "compacting"
	EventCompactDone         = "compact_done"
	EventConversationNew     = "conversation_new"
	EventConversationSwitch  = "conversation_switched"
	EventConversationDeleted = "conversation_deleted"
	EventConversationRenamed = "conversation_renamed"
	EventConversationsList   = "conversations_list"
	EventStatus              = "status"
	EventError               = "error"
)

// Event is one outbound protocol message: a type tag plus a flat set of
// fields, serialized as a single JSON object.
type Event struct {
	Type   string
	Fields map[string]interface{}
}

// MarshalJSON flattens the fields next to the type tag.
func (e Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]interface{}, len(e.Fields)+1)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["type"] = e.Type
	return json.Marshal(obj)
}

// Emitter delivers events to the IPC layer via a buffered channel.
type Emitter struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEmitter creates an Emitter with a buffered channel.
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event. If the emitter is closed the event is silently
// dropped; if the buffer is full the send blocks, so the consumer must
// keep draining (the hub decouples slow clients). The mutex is held
// across the send so a concurrent Close cannot close the channel out
// from under it; the consumer drains without taking the mutex.
func (e *Emitter) Emit(eventType string, fields map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.ch <- Event{Type: eventType, Fields: fields}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// ErrorEvent emits a generic error event.
func (e *Emitter) ErrorEvent(message string) {
	e.Emit(EventError, map[string]interface{}{"message": message})
}

// StatusEvent emits a generic status event.
func (e *Emitter) StatusEvent(message string, ephemeral bool) {
	fields := map[string]interface{}{"message": message}
	if ephemeral {
		fields["ephemeral"] = true
	}
	e.Emit(EventStatus, fields)
}
