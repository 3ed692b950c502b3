package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHub_PublishAndRunDeliversToClients(t *testing.T) {
	h := New(zap.NewNop())
	c := &client{send: make(chan []byte, clientSendBuf)}
	h.clients[c] = true

	done := make(chan struct{})
	go h.Run(done)
	defer close(done)

	h.Publish([]byte(`{"kind":"incident"}`))

	select {
	case msg := <-c.send:
		assert.Equal(t, `{"kind":"incident"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
	}
}

func TestHub_PublishDropsOnFullBroadcastBuffer(t *testing.T) {
	h := New(zap.NewNop())
	// Fill the broadcast buffer without a Run loop draining it.
	for i := 0; i < cap(h.broadcast); i++ {
		h.Publish([]byte("x"))
	}
	require.Len(t, h.broadcast, cap(h.broadcast))

	// One more Publish must not block or panic; it is silently dropped.
	h.Publish([]byte("overflow"))
	assert.Len(t, h.broadcast, cap(h.broadcast))
}

func TestHub_DeliverDisconnectsClientsWithFullSendBuffer(t *testing.T) {
	h := New(zap.NewNop())
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = true
	c.send <- []byte("already queued")

	h.deliver([]byte("second message"))

	h.mu.RLock()
	_, stillConnected := h.clients[c]
	h.mu.RUnlock()
	assert.False(t, stillConnected, "a client whose send buffer is full must be disconnected, not blocked on")
}

func TestHub_RemoveLockedClosesSendChannel(t *testing.T) {
	h := New(zap.NewNop())
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = true

	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()

	_, ok := <-c.send
	assert.False(t, ok, "send channel must be closed once removed")
}
