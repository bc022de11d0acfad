package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/martinemde/deskagent/llm"
	"github.com/martinemde/deskagent/skills"
)

// Manager owns every live conversation, the backend-active id, and the
// single in-flight turn. It is the only mutator of the active id and the
// conversation map; the inbound event handler calls into it, and it runs
// turns on its own goroutine.
type Manager struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	activeID      string
	busyID        string
	pendingSwitch string
	cancelTurn    context.CancelFunc

	engine    *Engine
	compactor *Compactor
	gate      *ConfirmationGate
	emitter   *Emitter
	store     Store
	skills    *skills.Registry
	config    Config

	workingDir     string
	projectContext string
	logger         *zap.Logger
	wg             sync.WaitGroup
}

// ManagerOptions carries the collaborators a Manager is wired with.
type ManagerOptions struct {
	Client         llm.Client
	Registry       *Registry
	Gate           *ConfirmationGate
	Emitter        *Emitter
	Store          Store
	Skills         *skills.Registry
	Config         Config
	WorkingDir     string
	ProjectContext string
	Logger         *zap.Logger
}

// NewManager wires the dispatcher, compactor, and engine around the
// given collaborators.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		conversations:  make(map[string]*Conversation),
		gate:           opts.Gate,
		emitter:        opts.Emitter,
		store:          opts.Store,
		skills:         opts.Skills,
		config:         opts.Config,
		workingDir:     opts.WorkingDir,
		projectContext: opts.ProjectContext,
		logger:         logger,
	}
	m.gate.SetAutoConfirm(opts.Config.AutoConfirm)
	dispatcher := NewDispatcher(opts.Registry, opts.Gate, opts.Config.ParallelWorkers, logger)
	m.compactor = NewCompactor(opts.Client, opts.Config, logger)
	m.engine = NewEngine(opts.Client, opts.Registry, dispatcher, opts.Emitter, opts.Config, m.systemPrompt, logger)
	return m
}

func (m *Manager) systemPrompt() string {
	var enabled []skills.Skill
	if m.skills != nil {
		enabled = m.skills.Enabled()
	}
	return BuildSystemPrompt(m.workingDir, m.projectContext, enabled)
}

// Bootstrap loads persisted conversations and establishes the active id,
// creating a fresh conversation when the store is empty.
func (m *Manager) Bootstrap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.List()
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	for _, conv := range stored {
		m.conversations[conv.ID] = conv
	}
	if len(m.conversations) == 0 {
		conv := NewConversation("New conversation")
		m.conversations[conv.ID] = conv
		m.activeID = conv.ID
		return nil
	}
	var latest *Conversation
	for _, conv := range m.conversations {
		if latest == nil || conv.LastActivity.After(latest.LastActivity) {
			latest = conv
		}
	}
	m.activeID = latest.ID
	return nil
}

// SystemInfo builds the bootstrap payload a freshly connected UI needs.
func (m *Manager) SystemInfo() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skillInfos []map[string]interface{}
	var disabled []string
	if m.skills != nil {
		for _, sk := range m.skills.List() {
			skillInfos = append(skillInfos, skillFields(sk))
			if !sk.Enabled {
				disabled = append(disabled, sk.Name)
			}
		}
	}
	return map[string]interface{}{
		"model":           m.config.Model,
		"cwd":             m.workingDir,
		"conversation_id": m.activeID,
		"conversations":   m.summariesLocked(),
		"skills":          skillInfos,
		"disabled_skills": disabled,
		"has_context":     m.projectContext != "",
	}
}

// HandleUserMessage starts a turn on the active conversation. A second
// message while a turn is in flight is refused with an error event.
func (m *Manager) HandleUserMessage(content string, ragFolders []string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if len(ragFolders) > 0 {
		content += "\n\n[Also search these folders: " + strings.Join(ragFolders, ", ") + "]"
	}

	m.mu.Lock()
	if m.busyID != "" {
		m.mu.Unlock()
		m.emitter.ErrorEvent("A turn is already in progress; wait for it to finish")
		return
	}
	conv := m.conversations[m.activeID]
	if conv == nil {
		m.mu.Unlock()
		m.emitter.ErrorEvent("No active conversation")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTurn = cancel
	m.busyID = conv.ID
	conv.Busy = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runTurn(ctx, cancel, conv, content)
}

func (m *Manager) runTurn(ctx context.Context, cancel context.CancelFunc, conv *Conversation, content string) {
	defer m.wg.Done()
	defer cancel()

	m.prepareHistory(ctx, conv)

	if err := m.engine.RunTurn(ctx, conv, content); err != nil {
		m.logger.Error("turn failed", zap.String("conversation", conv.ID), zap.Error(err))
		m.emitter.ErrorEvent("Chat failed: " + err.Error())
	}
	if err := m.store.Save(conv); err != nil {
		m.logger.Warn("persist conversation", zap.String("conversation", conv.ID), zap.Error(err))
	}

	// The busy flag clears, chat_finished goes out, and any queued
	// switch applies in one critical section; only the most recent
	// queued target survives, and no switch arriving concurrently can
	// slip in between and be overridden by the stale queued one.
	m.mu.Lock()
	conv.Busy = false
	m.busyID = ""
	m.cancelTurn = nil
	m.emitter.Emit(EventChatFinished, map[string]interface{}{})
	if target := m.pendingSwitch; target != "" {
		m.pendingSwitch = ""
		m.applySwitchLocked(target)
	}
	m.mu.Unlock()
}

// prepareHistory trims and, when over the threshold, compacts the
// history. Runs strictly before the turn starts, never mid-turn.
func (m *Manager) prepareHistory(ctx context.Context, conv *Conversation) {
	conv.Messages = AutoTrim(conv.Messages, m.config.MaxContextMessages)

	prompt := m.systemPrompt()
	if !m.compactor.ShouldCompact(prompt, conv.Messages) {
		return
	}
	m.emitter.Emit(EventCompacting, map[string]interface{}{})
	compacted, before, after, err := m.compactor.Compact(ctx, prompt, conv.Messages)
	if err != nil {
		m.logger.Warn("compaction failed", zap.Error(err))
		m.emitter.StatusEvent("Compaction failed; continuing with full history", false)
		return
	}
	conv.Messages = compacted
	m.emitter.Emit(EventCompactDone, map[string]interface{}{
		"message": fmt.Sprintf("Compacted history: %d -> %d tokens", before, after),
	})
}

// ResolveConfirmation forwards the UI's decision to the gate. An unknown
// or already-resolved id is reported, never silently dropped.
func (m *Manager) ResolveConfirmation(id string, approved bool) {
	if !m.gate.Resolve(id, approved) {
		m.emitter.ErrorEvent("No pending confirmation with id " + id)
	}
}

// Create makes a new conversation and switches to it (queued if busy).
func (m *Manager) Create() {
	m.mu.Lock()
	conv := NewConversation("New conversation")
	m.conversations[conv.ID] = conv
	m.mu.Unlock()

	if err := m.store.Save(conv); err != nil {
		m.logger.Warn("persist conversation", zap.Error(err))
	}
	m.emitter.Emit(EventConversationNew, map[string]interface{}{
		"conversation_id": conv.ID,
		"title":           conv.Title,
	})
	m.Switch(conv.ID, "")
}

// Switch changes the backend-active conversation. The snapshot, when
// non-empty, is saved onto the conversation being switched away from.
// While a turn is in flight the switch is queued; a newer request
// replaces an older queued one.
func (m *Manager) Switch(id, snapshot string) {
	m.mu.Lock()
	if cur := m.conversations[m.activeID]; cur != nil && snapshot != "" {
		cur.Snapshot = snapshot
	}
	if _, ok := m.conversations[id]; !ok {
		m.mu.Unlock()
		m.emitter.ErrorEvent("Unknown conversation: " + id)
		return
	}
	if m.busyID != "" {
		m.pendingSwitch = id
		m.mu.Unlock()
		m.emitter.StatusEvent("Switch queued until the current turn finishes", true)
		return
	}
	m.applySwitchLocked(id)
	m.mu.Unlock()
}

// applySwitchLocked persists the outgoing conversation and activates the
// target. Caller holds m.mu.
func (m *Manager) applySwitchLocked(id string) {
	conv, ok := m.conversations[id]
	if !ok {
		m.emitter.ErrorEvent("Unknown conversation: " + id)
		return
	}
	if cur := m.conversations[m.activeID]; cur != nil && cur.ID != id {
		if err := m.store.Save(cur); err != nil {
			m.logger.Warn("persist conversation", zap.Error(err))
		}
	}
	m.activeID = id
	m.emitter.Emit(EventConversationSwitch, map[string]interface{}{
		"conversation_id": conv.ID,
		"title":           conv.Title,
		"snapshot":        conv.Snapshot,
		"message_count":   len(conv.Messages),
	})
}

// Rename sets a conversation's title.
func (m *Manager) Rename(id, title string) {
	title = strings.TrimSpace(title)
	m.mu.Lock()
	conv, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		m.emitter.ErrorEvent("Unknown conversation: " + id)
		return
	}
	conv.Title = title
	m.mu.Unlock()

	if err := m.store.Save(conv); err != nil {
		m.logger.Warn("persist conversation", zap.Error(err))
	}
	m.emitter.Emit(EventConversationRenamed, map[string]interface{}{
		"conversation_id": id,
		"title":           title,
	})
}

// Delete removes a conversation. Deleting the one currently processing a
// turn is refused.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	if id == m.busyID {
		m.mu.Unlock()
		m.emitter.ErrorEvent("Conversation is busy and cannot be deleted")
		return
	}
	if _, ok := m.conversations[id]; !ok {
		m.mu.Unlock()
		m.emitter.ErrorEvent("Unknown conversation: " + id)
		return
	}
	delete(m.conversations, id)
	if m.pendingSwitch == id {
		m.pendingSwitch = ""
	}
	wasActive := m.activeID == id
	var next *Conversation
	if wasActive {
		for _, conv := range m.conversations {
			if next == nil || conv.LastActivity.After(next.LastActivity) {
				next = conv
			}
		}
		if next == nil {
			next = NewConversation("New conversation")
			m.conversations[next.ID] = next
		}
	}
	m.mu.Unlock()

	if err := m.store.Delete(id); err != nil {
		m.logger.Warn("delete conversation", zap.Error(err))
	}
	m.emitter.Emit(EventConversationDeleted, map[string]interface{}{"conversation_id": id})

	if wasActive {
		m.mu.Lock()
		m.applySwitchLocked(next.ID)
		m.mu.Unlock()
	}
}

// EmitConversationsList emits the current conversation summaries.
func (m *Manager) EmitConversationsList() {
	m.mu.Lock()
	summaries := m.summariesLocked()
	m.mu.Unlock()
	m.emitter.Emit(EventConversationsList, map[string]interface{}{"conversations": summaries})
}

func (m *Manager) summariesLocked() []map[string]interface{} {
	convs := make([]*Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		convs = append(convs, conv)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastActivity.After(convs[j].LastActivity)
	})
	summaries := make([]map[string]interface{}, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, map[string]interface{}{
			"conversation_id": conv.ID,
			"title":           conv.Title,
			"message_count":   len(conv.Messages),
			"last_activity":   conv.LastActivity,
			"busy":            conv.Busy,
		})
	}
	return summaries
}

// SaveHTML exports the active conversation as a standalone HTML page.
func (m *Manager) SaveHTML(path string) {
	m.mu.Lock()
	conv := m.conversations[m.activeID]
	m.mu.Unlock()
	if conv == nil {
		m.emitter.ErrorEvent("No active conversation")
		return
	}
	if path == "" {
		short := conv.ID
		if len(short) > 8 {
			short = short[:8]
		}
		path = filepath.Join(m.workingDir, "conversation-"+short+".html")
	}
	f, err := os.Create(path)
	if err != nil {
		m.emitter.ErrorEvent("Export failed: " + err.Error())
		return
	}
	defer f.Close()
	if err := ExportHTML(conv, f); err != nil {
		m.emitter.ErrorEvent("Export failed: " + err.Error())
		return
	}
	m.emitter.StatusEvent("Saved transcript to "+path, false)
}

// EmitSkillsList emits the current skill descriptors.
func (m *Manager) EmitSkillsList() {
	var infos []map[string]interface{}
	if m.skills != nil {
		for _, sk := range m.skills.List() {
			infos = append(infos, skillFields(sk))
		}
	}
	m.emitter.Emit(EventSkillsList, map[string]interface{}{"skills": infos})
}

// ToggleSkill enables or disables a skill by name.
func (m *Manager) ToggleSkill(name string, enabled bool) {
	if m.skills == nil {
		m.emitter.ErrorEvent("Skills are not configured")
		return
	}
	if err := m.skills.Toggle(name, enabled); err != nil {
		m.emitter.ErrorEvent(err.Error())
		return
	}
	m.emitter.Emit(EventSkillToggled, map[string]interface{}{
		"name":    name,
		"enabled": enabled,
	})
}

// ReloadSkills rescans the skill directory and re-announces the list.
func (m *Manager) ReloadSkills() {
	if m.skills == nil {
		m.emitter.ErrorEvent("Skills are not configured")
		return
	}
	if err := m.skills.Load(); err != nil {
		m.emitter.ErrorEvent("Skill reload failed: " + err.Error())
		return
	}
	m.EmitSkillsList()
}

// RunSkill starts a turn whose user message is the named skill's
// instructions. Disabled skills reject direct invocation.
func (m *Manager) RunSkill(name, extra string) {
	if m.skills == nil {
		m.emitter.ErrorEvent("Skills are not configured")
		return
	}
	sk, ok := m.skills.Get(name)
	if !ok {
		m.emitter.ErrorEvent("Unknown skill: " + name)
		return
	}
	if !sk.Enabled {
		m.emitter.ErrorEvent("Skill is disabled: " + name)
		return
	}
	content := fmt.Sprintf("Run the %q skill now.\n\n%s", sk.Name, sk.Instructions)
	if extra = strings.TrimSpace(extra); extra != "" {
		content += "\n\nAdditional instructions: " + extra
	}
	m.HandleUserMessage(content, nil)
}

// SetAutoConfirm toggles auto-approval of mutating tool calls.
func (m *Manager) SetAutoConfirm(enabled bool) {
	m.gate.SetAutoConfirm(enabled)
	if enabled {
		m.emitter.StatusEvent("Auto-confirm enabled: mutating tools run without asking", false)
	} else {
		m.emitter.StatusEvent("Auto-confirm disabled", false)
	}
}

// ActiveID returns the backend-active conversation id.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Shutdown aborts any in-flight turn, releases confirmation waiters,
// waits for the turn goroutine, and persists every conversation.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancelTurn
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.gate.AbortAll()
	m.wg.Wait()

	m.mu.Lock()
	convs := make([]*Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		convs = append(convs, conv)
	}
	m.mu.Unlock()
	for _, conv := range convs {
		if err := m.store.Save(conv); err != nil {
			m.logger.Warn("persist conversation", zap.String("conversation", conv.ID), zap.Error(err))
		}
	}
}

func skillFields(sk skills.Skill) map[string]interface{} {
	return map[string]interface{}{
		"name":           sk.Name,
		"description":    sk.Description,
		"enabled":        sk.Enabled,
		"has_scripts":    sk.HasScripts,
		"has_references": sk.HasReferences,
		"has_assets":     sk.HasAssets,
	}
}
