package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/martinemde/deskagent/llm"
)

// callSignature fingerprints one tool call by name and arguments.
func callSignature(call llm.ToolCall) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", call.Name, call.Arguments)))
	return hex.EncodeToString(h[:16])
}

// roundSignature fingerprints one assistant round's full set of calls.
func roundSignature(calls []llm.ToolCall) string {
	h := sha256.New()
	for _, call := range calls {
		h.Write([]byte(callSignature(call)))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// DetectToolLoop reports whether the most recent assistant tool rounds
// repeat the same set of calls. It scans the last `window` assistant
// messages carrying tool calls; three identical consecutive rounds count
// as a loop.
func DetectToolLoop(messages []Message, window int) bool {
	if window <= 0 {
		window = 6
	}
	var sigs []string
	for i := len(messages) - 1; i >= 0 && len(sigs) < window; i-- {
		msg := messages[i]
		if msg.Role != llm.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		sigs = append(sigs, roundSignature(msg.ToolCalls))
	}
	if len(sigs) < 3 {
		return false
	}
	// sigs[0] is the newest round.
	return sigs[0] == sigs[1] && sigs[1] == sigs[2]
}

// loopSteeringNotice is injected as a system message when a loop is
// detected, nudging the model off the repeated calls.
const loopSteeringNotice = "You appear to be repeating the same tool calls with the same arguments. " +
	"Do not repeat them again. Either use a different approach or answer the user with what you have."
