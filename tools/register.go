package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/martinemde/deskagent/agent"
	"github.com/martinemde/deskagent/llm"
	"github.com/martinemde/deskagent/skills"
)

// schema builds an object schema from property name -> description,
// all string-typed, with the given required list.
func schema(props map[string]string, required ...string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for name, desc := range props {
		properties[name] = map[string]interface{}{"type": "string", "description": desc}
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decode(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// RegisterAll registers the built-in tool set. Read-only tools are
// parallel-safe; write_file, edit_file and run_command mutate state and
// require confirmation. run_skill is read-only: it injects the skill's
// instructions into the model's context.
func RegisterAll(reg *agent.Registry, ws *Workspace, skillReg *skills.Registry) error {
	type pathArgs struct {
		Path string `json:"path"`
	}
	type readArgs struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	type searchArgs struct {
		Pattern string `json:"pattern"`
		Dir     string `json:"dir"`
	}
	type writeArgs struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	type editArgs struct {
		Path    string `json:"path"`
		OldText string `json:"old_text"`
		NewText string `json:"new_text"`
	}
	type commandArgs struct {
		Command string `json:"command"`
	}
	type skillArgs struct {
		Name string `json:"name"`
	}

	specs := []agent.ToolSpec{
		{
			Definition: llm.ToolDefinition{
				Name:        "read_file",
				Description: "Read a text file from the workspace. Output includes line numbers.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"path":   map[string]interface{}{"type": "string", "description": "File path, relative to the workspace root"},
						"offset": map[string]interface{}{"type": "integer", "description": "1-based line to start from (optional)"},
						"limit":  map[string]interface{}{"type": "integer", "description": "Maximum number of lines to return (optional)"},
					},
					"required": []string{"path"},
				},
			},
			ParallelSafe: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args readArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				return ws.ReadFile(args.Path, args.Offset, args.Limit)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "list_directory",
				Description: "List the entries of a directory in the workspace.",
				Parameters:  schema(map[string]string{"path": "Directory path; omit for the workspace root"}),
			},
			ParallelSafe: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args pathArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				return ws.ListDirectory(args.Path)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "search_files",
				Description: "Find files by name: glob pattern or case-insensitive substring.",
				Parameters: schema(map[string]string{
					"pattern": "Glob pattern (e.g. *.go) or substring of the file name",
					"dir":     "Directory to search under; omit for the workspace root",
				}, "pattern"),
			},
			ParallelSafe: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args searchArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				return ws.SearchFiles(args.Pattern, args.Dir)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "grep",
				Description: "Search file contents with a regular expression, reporting file:line matches.",
				Parameters: schema(map[string]string{
					"pattern": "Regular expression to search for",
					"dir":     "Directory to search under; omit for the workspace root",
				}, "pattern"),
			},
			ParallelSafe: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args searchArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				return ws.Grep(args.Pattern, args.Dir)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_file_info",
				Description: "Report size, type, permissions, and modification time for a path.",
				Parameters:  schema(map[string]string{"path": "File or directory path"}, "path"),
			},
			ParallelSafe: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args pathArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				return ws.FileInfo(args.Path)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "write_file",
				Description: "Create or overwrite a file with the given content.",
				Parameters: schema(map[string]string{
					"path":    "File path to write",
					"content": "Full content of the file",
				}, "path", "content"),
			},
			RequiresConfirmation: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args writeArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				return ws.WriteFile(args.Path, args.Content)
			},
			Preview: func(raw json.RawMessage) string {
				var args writeArgs
				if decode(raw, &args) != nil {
					return ""
				}
				return ws.WritePreview(args.Path, args.Content)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "edit_file",
				Description: "Replace an exact text fragment in a file. The fragment must occur exactly once.",
				Parameters: schema(map[string]string{
					"path":     "File path to edit",
					"old_text": "Exact text to replace; must appear exactly once",
					"new_text": "Replacement text",
				}, "path", "old_text", "new_text"),
			},
			RequiresConfirmation: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args editArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				return ws.EditFile(args.Path, args.OldText, args.NewText)
			},
			Preview: func(raw json.RawMessage) string {
				var args editArgs
				if decode(raw, &args) != nil {
					return ""
				}
				return ws.EditPreview(args.Path, args.OldText, args.NewText)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "run_command",
				Description: "Run a shell command in the workspace root. Output is combined stdout and stderr.",
				Parameters:  schema(map[string]string{"command": "Shell command to execute"}, "command"),
			},
			RequiresConfirmation: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args commandArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				if args.Command == "" {
					return "", fmt.Errorf("command must not be empty")
				}
				return ws.RunCommand(ctx, args.Command)
			},
			Preview: func(raw json.RawMessage) string {
				var args commandArgs
				if decode(raw, &args) != nil {
					return ""
				}
				return "$ " + args.Command
			},
		},
	}

	if skillReg != nil {
		specs = append(specs, agent.ToolSpec{
			Definition: llm.ToolDefinition{
				Name:        "run_skill",
				Description: "Load a named skill's instructions into the conversation.",
				Parameters:  schema(map[string]string{"name": "Name of the skill to load"}, "name"),
			},
			ParallelSafe: true,
			Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args skillArgs
				if err := decode(raw, &args); err != nil {
					return "", err
				}
				sk, ok := skillReg.Get(args.Name)
				if !ok {
					return "", fmt.Errorf("unknown skill: %s", args.Name)
				}
				if !sk.Enabled {
					return "", fmt.Errorf("skill is disabled: %s", args.Name)
				}
				return sk.Instructions, nil
			},
		})
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
