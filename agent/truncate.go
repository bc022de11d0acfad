package agent

import "fmt"

// Per-tool-output cap fed back to the model. UI events carry a shorter
// preview; the full output never enters the context window uncapped.
const maxToolOutputChars = 30000

// uiResultPreviewChars caps the result text carried in tool_result
// events so a huge file read does not flood the UI stream.
const uiResultPreviewChars = 500

// TruncateToolOutput caps a tool's output, keeping the head and tail and
// marking the elision so the model knows content was dropped.
func TruncateToolOutput(output string) string {
	if len(output) <= maxToolOutputChars {
		return output
	}
	head := maxToolOutputChars * 2 / 3
	tail := maxToolOutputChars / 3
	omitted := len(output) - head - tail
	return output[:head] +
		fmt.Sprintf("\n... [%d characters truncated] ...\n", omitted) +
		output[len(output)-tail:]
}

// previewString caps a string for UI event payloads.
func previewString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
