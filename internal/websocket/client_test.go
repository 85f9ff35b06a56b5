package websocket

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Client{
		id:     "test-client",
		hub:    NewHub(logger),
		send:   make(chan []byte, 4),
		logger: logger,
	}
}

func TestHandleMessageReplies(t *testing.T) {
	c := newTestClient(t)

	reply := c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe})
	require.NotNil(t, reply)
	assert.Equal(t, MessageTypeError, reply.Type, "subscribe without a wallet is an error")

	reply = c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, WalletAddress: "0xABC"})
	require.NotNil(t, reply)
	assert.Equal(t, MessageTypeSubscribed, reply.Type)
	assert.Equal(t, "0xabc", reply.WalletAddress, "acks echo the wallet lowercased")

	reply = c.handleMessage(&ClientMessage{Type: MessageTypeUnsubscribe, WalletAddress: "0xABC"})
	require.NotNil(t, reply)
	assert.Equal(t, MessageTypeUnsubscribed, reply.Type)

	reply = c.handleMessage(&ClientMessage{Type: MessageTypePing})
	require.NotNil(t, reply)
	assert.Equal(t, MessageTypePong, reply.Type)

	assert.Nil(t, c.handleMessage(&ClientMessage{Type: MessageTypeUnsubscribe}))
	assert.Nil(t, c.handleMessage(&ClientMessage{Type: "bogus"}))
}

func TestEnqueueNeverBlocks(t *testing.T) {
	c := newTestClient(t)
	c.send = make(chan []byte, 1)

	c.enqueue(errorMessage("first"))
	c.enqueue(errorMessage("second"))

	assert.Len(t, c.send, 1, "replies beyond the buffer are dropped, not blocking")
}
