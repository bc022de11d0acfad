package agent

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarshalFlattens(t *testing.T) {
	ev := Event{Type: EventToken, Fields: map[string]interface{}{"content": "hi"}}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "token", obj["type"])
	assert.Equal(t, "hi", obj["content"])
	assert.Len(t, obj, 2, "fields sit flat next to the type tag")
}

func TestEventMarshalNoFields(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventChatFinished})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat_finished"}`, string(data))
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	e := NewEmitter(4)
	e.Close()
	e.Close()
	// Emitting after close is a silent no-op, not a panic.
	e.Emit(EventToken, nil)

	_, ok := <-e.Events()
	assert.False(t, ok)
}

func TestEmitterConcurrentEmitAndClose(t *testing.T) {
	// Closing while other goroutines emit must never panic on a closed
	// channel; late emits are dropped.
	for i := 0; i < 50; i++ {
		e := NewEmitter(1)
		done := make(chan struct{})
		go func() {
			for range e.Events() {
			}
			close(done)
		}()

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 20; k++ {
					e.Emit(EventToken, map[string]interface{}{"content": "x"})
				}
			}()
		}
		e.Close()
		wg.Wait()
		<-done
	}
}

func TestEmitterDelivery(t *testing.T) {
	e := NewEmitter(4)
	e.StatusEvent("working", true)

	ev := <-e.Events()
	assert.Equal(t, EventStatus, ev.Type)
	assert.Equal(t, "working", ev.Fields["message"])
	assert.Equal(t, true, ev.Fields["ephemeral"])
}
