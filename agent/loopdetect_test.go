package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/martinemde/deskagent/llm"
)

func assistantRound(calls ...llm.ToolCall) []Message {
	msgs := []Message{AssistantMsg("", calls)}
	for _, call := range calls {
		msgs = append(msgs, ToolMsg(call.ID, "output"))
	}
	return msgs
}

func TestDetectToolLoopThreeIdenticalRounds(t *testing.T) {
	var history []Message
	history = append(history, UserMsg("go"))
	for i := 0; i < 3; i++ {
		history = append(history, assistantRound(testCall("", "grep", `{"pattern":"x"}`))...)
	}
	assert.True(t, DetectToolLoop(history, 6))
}

func TestDetectToolLoopTwoRoundsIsFine(t *testing.T) {
	var history []Message
	for i := 0; i < 2; i++ {
		history = append(history, assistantRound(testCall("", "grep", `{"pattern":"x"}`))...)
	}
	assert.False(t, DetectToolLoop(history, 6))
}

func TestDetectToolLoopDifferentArgsIsFine(t *testing.T) {
	var history []Message
	for _, pattern := range []string{"a", "b", "c"} {
		history = append(history, assistantRound(testCall("", "grep", `{"pattern":"`+pattern+`"}`))...)
	}
	assert.False(t, DetectToolLoop(history, 6))
}

func TestDetectToolLoopMultiCallRounds(t *testing.T) {
	var history []Message
	for i := 0; i < 3; i++ {
		history = append(history, assistantRound(
			testCall("", "read_file", `{"path":"a"}`),
			testCall("", "grep", `{"pattern":"x"}`),
		)...)
	}
	assert.True(t, DetectToolLoop(history, 6))
}

func TestDetectToolLoopIgnoresPlainAssistantMessages(t *testing.T) {
	history := []Message{
		AssistantMsg("thinking", nil),
		AssistantMsg("still thinking", nil),
		AssistantMsg("more thinking", nil),
	}
	assert.False(t, DetectToolLoop(history, 6))
}
