package hooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/backend/internal/bridge"
)

func TestRegistryDefaults(t *testing.T) {
	r := Defaults()
	for _, group := range []string{"A", "B", "C"} {
		assert.NotNil(t, r.PreSend(group), "group %s pre-send", group)
		assert.NotNil(t, r.PostReceive(group), "group %s post-receive", group)
	}
	assert.Nil(t, r.PreSend("Z"))
	assert.Nil(t, r.PostReceive("Z"))
}

func TestRegistryRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	var called bool
	r.Register("A", GroupHooks{PreSend: func(*bridge.Message) { called = true }})
	r.PreSend("A")(&bridge.Message{})
	assert.True(t, called)
}

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(2)
	defer p.Shutdown()

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}

func TestPoolDefaultsToTwoWorkers(t *testing.T) {
	p := NewPool(0)
	defer p.Shutdown()
	assert.Equal(t, 2, p.Workers())
}

func TestDispatcherRunsPostReceiveHook(t *testing.T) {
	received := make(chan bridge.Message, 1)
	registry := NewRegistry()
	registry.Register("B", GroupHooks{
		PostReceive: func(m *bridge.Message) { received <- *m },
	})

	pool := NewPool(2)
	defer pool.Shutdown()
	d := NewDispatcher(registry, pool, 8)

	output := make(chan bridge.Message, 4)
	require.NoError(t, d.Submit(context.Background(), Task{Output: output}))

	output <- bridge.Message{FromName: "A1", ToName: "B1", ToGroup: "B", Payload: "hello"}

	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg.Payload)
		assert.Equal(t, "A1", msg.FromName)
	case <-time.After(2 * time.Second):
		t.Fatal("post-receive hook never ran")
	}
}

func TestDispatcherSkipsUnknownGroup(t *testing.T) {
	registry := NewRegistry()
	pool := NewPool(1)
	defer pool.Shutdown()
	d := NewDispatcher(registry, pool, 8)

	output := make(chan bridge.Message, 4)
	require.NoError(t, d.Submit(context.Background(), Task{Output: output}))

	// No hook for group Z; the message must be consumed without blocking.
	output <- bridge.Message{ToName: "Z1", ToGroup: "Z", Payload: "ignored"}
	output <- bridge.Message{ToName: "Z1", ToGroup: "Z", Payload: "ignored too"}

	assert.Eventually(t, func() bool { return len(output) == 0 }, 2*time.Second, 10*time.Millisecond)
}
