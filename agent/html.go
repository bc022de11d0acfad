package agent

import (
	"html/template"
	"io"

	"github.com/martinemde/deskagent/llm"
)

// transcriptTemplate renders a conversation as a standalone HTML page.
var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { font-size: 1.3rem; border-bottom: 1px solid #ddd; padding-bottom: .5rem; }
.msg { margin: 1rem 0; padding: .75rem 1rem; border-radius: 8px; }
.user { background: #eef4ff; }
.assistant { background: #f6f6f6; }
.tool { background: #fcf8e8; font-family: ui-monospace, monospace; font-size: .85rem; }
.role { font-weight: 600; font-size: .8rem; text-transform: uppercase; color: #666; margin-bottom: .25rem; }
pre { white-space: pre-wrap; word-break: break-word; margin: 0; font: inherit; }
.meta { color: #999; font-size: .75rem; margin-top: 2rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Entries}}<div class="msg {{.Class}}">
<div class="role">{{.Role}}</div>
<pre>{{.Content}}</pre>
</div>
{{end}}<div class="meta">Exported {{.Exported}} · {{len .Entries}} messages</div>
</body>
</html>
`))

type transcriptEntry struct {
	Role    string
	Class   string
	Content string
}

// ExportHTML writes the conversation as an HTML transcript. Tool results
// and synthetic system messages are included in a monospace style; empty
// messages are skipped.
func ExportHTML(conv *Conversation, w io.Writer) error {
	var entries []transcriptEntry
	for _, msg := range conv.Messages {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			for _, call := range msg.ToolCalls {
				content += call.Name + "(" + string(call.Arguments) + ")\n"
			}
		}
		if content == "" {
			continue
		}
		class := "assistant"
		switch msg.Role {
		case llm.RoleUser:
			class = "user"
		case llm.RoleTool, llm.RoleSystem:
			class = "tool"
		}
		entries = append(entries, transcriptEntry{
			Role:    string(msg.Role),
			Class:   class,
			Content: content,
		})
	}
	data := struct {
		Title    string
		Entries  []transcriptEntry
		Exported string
	}{
		Title:    conv.Title,
		Entries:  entries,
		Exported: conv.LastActivity.Format("2006-01-02 15:04"),
	}
	return transcriptTemplate.Execute(w, data)
}
