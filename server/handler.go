package server

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/martinemde/deskagent/agent"
)

// inbound is the envelope for every UI-to-core message.
type inbound struct {
	Type string `json:"type"`

	// user_message
	Content    string   `json:"content,omitempty"`
	RagFolders []string `json:"rag_folders,omitempty"`

	// confirm_response
	ID       string `json:"id,omitempty"`
	Approved bool   `json:"approved,omitempty"`

	// command
	Name string          `json:"name,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`
}

type commandArgs struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Snapshot       string `json:"snapshot"`
	Path           string `json:"path"`
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	Extra          string `json:"extra"`
}

// Handler routes inbound protocol lines to the Manager. It is shared by
// every transport so the vocabulary stays identical across them.
type Handler struct {
	manager *agent.Manager
	emitter *agent.Emitter
	logger  *zap.Logger
}

// NewHandler builds a handler around the manager.
func NewHandler(manager *agent.Manager, emitter *agent.Emitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, emitter: emitter, logger: logger}
}

// HandleLine parses and dispatches one inbound JSON line. Malformed
// input yields an error event, never a crash.
func (h *Handler) HandleLine(line []byte) {
	var msg inbound
	if err := json.Unmarshal(line, &msg); err != nil {
		h.logger.Warn("malformed inbound message", zap.Error(err))
		h.emitter.ErrorEvent("Malformed message: " + err.Error())
		return
	}

	switch msg.Type {
	case "user_message":
		h.manager.HandleUserMessage(msg.Content, msg.RagFolders)
	case "confirm_response":
		h.manager.ResolveConfirmation(msg.ID, msg.Approved)
	case "command":
		h.handleCommand(msg.Name, msg.Args)
	default:
		h.emitter.ErrorEvent(fmt.Sprintf("Unknown message type: %q", msg.Type))
	}
}

func (h *Handler) handleCommand(name string, raw json.RawMessage) {
	var args commandArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			h.emitter.ErrorEvent("Malformed command args: " + err.Error())
			return
		}
	}

	switch name {
	case "new_conversation":
		h.manager.Create()
	case "switch_conversation":
		h.manager.Switch(args.ConversationID, args.Snapshot)
	case "rename_conversation":
		h.manager.Rename(args.ConversationID, args.Title)
	case "delete_conversation":
		h.manager.Delete(args.ConversationID)
	case "list_conversations":
		h.manager.EmitConversationsList()
	case "save_conversation_html":
		h.manager.SaveHTML(args.Path)
	case "toggle_skill":
		h.manager.ToggleSkill(args.Name, args.Enabled)
	case "skills_reload":
		h.manager.ReloadSkills()
	case "run_skill":
		h.manager.RunSkill(args.Name, args.Extra)
	case "autoconfirm":
		h.manager.SetAutoConfirm(args.Enabled)
	default:
		h.emitter.ErrorEvent(fmt.Sprintf("Unknown command: %q", name))
	}
}
