package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/deskagent/llm"
)

func newTestManager(t *testing.T, client llm.Client) (*Manager, *Emitter) {
	t.Helper()
	emitter := NewEmitter(256)
	gate := NewConfirmationGate(emitter, nil)
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	m := NewManager(ManagerOptions{
		Client:     client,
		Registry:   NewRegistry(),
		Gate:       gate,
		Emitter:    emitter,
		Store:      store,
		Config:     DefaultConfig(),
		WorkingDir: t.TempDir(),
	})
	require.NoError(t, m.Bootstrap())
	return m, emitter
}

// drainNow empties the emitter buffer without waiting.
func drainNow(emitter *Emitter) {
	for {
		select {
		case <-emitter.Events():
		default:
			return
		}
	}
}

func TestManagerTurnLifecycle(t *testing.T) {
	client := &fakeClient{steps: []fakeStep{{text: "hello there"}}}
	m, emitter := newTestManager(t, client)

	m.HandleUserMessage("hi", nil)
	events := drainEvents(emitter, EventChatFinished, 2*time.Second)

	require.NotEmpty(t, eventsOfType(events, EventAssistantDone))
	require.NotEmpty(t, eventsOfType(events, EventChatFinished))
	m.Shutdown()
}

func TestManagerRefusesMessageWhileBusy(t *testing.T) {
	client := &fakeClient{steps: []fakeStep{{text: "slow answer"}}, release: make(chan struct{})}
	m, emitter := newTestManager(t, client)

	m.HandleUserMessage("first", nil)
	m.HandleUserMessage("second", nil)

	errs := eventsOfType(drainEvents(emitter, EventError, time.Second), EventError)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Fields["message"], "already in progress")

	close(client.release)
	drainEvents(emitter, EventChatFinished, 2*time.Second)
	m.Shutdown()
}

func TestManagerQueuedSwitchAppliesAfterTurn(t *testing.T) {
	client := &fakeClient{steps: []fakeStep{{text: "ok"}}, release: make(chan struct{})}
	m, emitter := newTestManager(t, client)

	aID := m.ActiveID()
	m.Create()
	bID := m.ActiveID()
	require.NotEqual(t, aID, bID)
	m.Switch(aID, "")
	require.Equal(t, aID, m.ActiveID())
	drainNow(emitter)

	m.HandleUserMessage("work", nil)
	m.Switch(bID, "")
	assert.Equal(t, aID, m.ActiveID(), "switch must not apply while busy")

	close(client.release)
	events := drainEvents(emitter, EventConversationSwitch, 2*time.Second)

	switched := eventsOfType(events, EventConversationSwitch)
	require.Len(t, switched, 1, "queued switch applies exactly once")
	assert.Equal(t, bID, switched[0].Fields["conversation_id"])
	assert.Equal(t, bID, m.ActiveID())

	// chat_finished precedes the applied switch.
	finishedIdx, switchIdx := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case EventChatFinished:
			finishedIdx = i
		case EventConversationSwitch:
			switchIdx = i
		}
	}
	assert.Less(t, finishedIdx, switchIdx)
	m.Shutdown()
}

func TestManagerNewerQueuedSwitchReplacesOlder(t *testing.T) {
	client := &fakeClient{steps: []fakeStep{{text: "ok"}}, release: make(chan struct{})}
	m, emitter := newTestManager(t, client)

	aID := m.ActiveID()
	m.Create()
	bID := m.ActiveID()
	m.Create()
	cID := m.ActiveID()
	m.Switch(aID, "")
	drainNow(emitter)

	m.HandleUserMessage("work", nil)
	m.Switch(bID, "")
	m.Switch(cID, "")

	close(client.release)
	events := drainEvents(emitter, EventConversationSwitch, 2*time.Second)

	switched := eventsOfType(events, EventConversationSwitch)
	require.Len(t, switched, 1)
	assert.Equal(t, cID, switched[0].Fields["conversation_id"], "only the most recent queued target applies")
	m.Shutdown()
}

func TestManagerSwitchAfterFinishIsNotOverridden(t *testing.T) {
	client := &fakeClient{steps: []fakeStep{{text: "ok"}}, release: make(chan struct{})}
	m, emitter := newTestManager(t, client)

	aID := m.ActiveID()
	m.Create()
	bID := m.ActiveID()
	m.Create()
	cID := m.ActiveID()
	m.Switch(aID, "")
	drainNow(emitter)

	m.HandleUserMessage("work", nil)
	m.Switch(bID, "")

	close(client.release)
	drainEvents(emitter, EventChatFinished, 2*time.Second)

	// The queued switch applies atomically with the busy-flag clear, so
	// once chat_finished is observable it has already landed.
	assert.Equal(t, bID, m.ActiveID())
	m.Switch(cID, "")
	assert.Equal(t, cID, m.ActiveID(), "a fresh switch after the turn must not be overridden by a stale queued target")
	m.Shutdown()
}

func TestManagerDeleteBusyRefused(t *testing.T) {
	client := &fakeClient{steps: []fakeStep{{text: "ok"}}, release: make(chan struct{})}
	m, emitter := newTestManager(t, client)

	aID := m.ActiveID()
	drainNow(emitter)
	m.HandleUserMessage("work", nil)

	m.Delete(aID)
	errs := eventsOfType(drainEvents(emitter, EventError, time.Second), EventError)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Fields["message"], "busy")
	assert.Equal(t, aID, m.ActiveID(), "busy conversation must not be removed")

	close(client.release)
	drainEvents(emitter, EventChatFinished, 2*time.Second)
	m.Shutdown()
}

func TestManagerDeleteActiveSwitchesToNext(t *testing.T) {
	client := &fakeClient{}
	m, emitter := newTestManager(t, client)

	aID := m.ActiveID()
	m.Create()
	bID := m.ActiveID()
	drainNow(emitter)

	m.Delete(bID)
	events := drainEvents(emitter, EventConversationSwitch, time.Second)
	require.NotEmpty(t, eventsOfType(events, EventConversationDeleted))
	assert.Equal(t, aID, m.ActiveID())
	m.Shutdown()
}

func TestManagerDeleteUnknown(t *testing.T) {
	m, emitter := newTestManager(t, &fakeClient{})
	drainNow(emitter)
	m.Delete("no-such-id")
	errs := eventsOfType(drainEvents(emitter, EventError, time.Second), EventError)
	require.NotEmpty(t, errs)
	m.Shutdown()
}

func TestManagerUnknownConfirmationID(t *testing.T) {
	m, emitter := newTestManager(t, &fakeClient{})
	drainNow(emitter)
	m.ResolveConfirmation("ghost", true)
	errs := eventsOfType(drainEvents(emitter, EventError, time.Second), EventError)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Fields["message"], "ghost")
	m.Shutdown()
}

func TestManagerRename(t *testing.T) {
	m, emitter := newTestManager(t, &fakeClient{})
	aID := m.ActiveID()
	drainNow(emitter)

	m.Rename(aID, "refactor session")
	events := eventsOfType(drainEvents(emitter, EventConversationRenamed, time.Second), EventConversationRenamed)
	require.Len(t, events, 1)
	assert.Equal(t, "refactor session", events[0].Fields["title"])
	m.Shutdown()
}

func TestManagerPersistsAfterTurn(t *testing.T) {
	client := &fakeClient{steps: []fakeStep{{text: "saved"}}}
	emitter := NewEmitter(256)
	gate := NewConfirmationGate(emitter, nil)
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(ManagerOptions{
		Client: client, Registry: NewRegistry(), Gate: gate, Emitter: emitter,
		Store: store, Config: DefaultConfig(), WorkingDir: t.TempDir(),
	})
	require.NoError(t, m.Bootstrap())

	m.HandleUserMessage("remember this", nil)
	drainEvents(emitter, EventChatFinished, 2*time.Second)
	m.Shutdown()

	loaded, err := store.Load(m.ActiveID())
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "remember this", loaded.Messages[0].Content)
	assert.Equal(t, "saved", loaded.Messages[1].Content)
}

func TestManagerSystemInfo(t *testing.T) {
	m, _ := newTestManager(t, &fakeClient{})
	info := m.SystemInfo()
	assert.Equal(t, DefaultConfig().Model, info["model"])
	assert.Equal(t, m.ActiveID(), info["conversation_id"])
	assert.NotNil(t, info["conversations"])
	m.Shutdown()
}
