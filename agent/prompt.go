package agent

import (
	"fmt"
	"strings"

	"github.com/martinemde/deskagent/skills"
)

// BuildSystemPrompt assembles the per-turn system prompt: identity,
// working directory, tool-use guidance, the enabled skills, and any
// collected project context. Rebuilt every turn so skill toggles take
// effect immediately.
func BuildSystemPrompt(workingDir, projectContext string, enabled []skills.Skill) string {
	var b strings.Builder

	b.WriteString("You are a capable coding assistant working in a local project.\n")
	fmt.Fprintf(&b, "Working directory: %s\n\n", workingDir)

	b.WriteString("Guidelines:\n")
	b.WriteString("- Use the available tools to read, search, and modify files and to run commands.\n")
	b.WriteString("- Read a file before editing it. Prefer targeted edits over whole-file rewrites.\n")
	b.WriteString("- When a command or edit needs user approval, explain briefly what it will do.\n")
	b.WriteString("- Keep answers concise; show code and paths rather than describing them abstractly.\n")

	if len(enabled) > 0 {
		b.WriteString("\nAvailable skills (invoke with the run_skill tool):\n")
		for _, sk := range enabled {
			fmt.Fprintf(&b, "- %s: %s\n", sk.Name, sk.Description)
		}
	}

	if projectContext != "" {
		b.WriteString("\nProject context:\n")
		b.WriteString(projectContext)
		b.WriteString("\n")
	}

	return b.String()
}
