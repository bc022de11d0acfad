package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/deskagent/llm"
)

func TestExportHTML(t *testing.T) {
	conv := NewConversation("build a parser")
	conv.Append(UserMsg("write <main>"))
	conv.Append(AssistantMsg("", []llm.ToolCall{testCall("c1", "write_file", `{"path":"main.go"}`)}))
	conv.Append(ToolMsg("c1", "Wrote 120 bytes to main.go"))
	conv.Append(AssistantMsg("done", nil))

	var b strings.Builder
	require.NoError(t, ExportHTML(conv, &b))
	out := b.String()

	assert.Contains(t, out, "build a parser")
	assert.Contains(t, out, "&lt;main&gt;", "user content is escaped")
	assert.Contains(t, out, "write_file")
	assert.Contains(t, out, "done")
}
