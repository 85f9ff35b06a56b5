package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The game is served from a separate web origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected game client. Outbound messages queue on send
// and are flushed by writePump; the hub closes send to disconnect.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is the inbound control frame: subscribe, unsubscribe,
// or ping, carrying the wallet the client wants updates for.
type ClientMessage struct {
	Type          string `json:"type"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: logger,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "client_id", c.id, "error", err)
			}
			return
		}

		var frame ClientMessage
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warn("dropping malformed frame", "client_id", c.id, "error", err)
			c.enqueue(errorMessage("malformed message"))
			continue
		}

		if reply := c.handleMessage(&frame); reply != nil {
			c.enqueue(reply)
		}
	}
}

// handleMessage applies one control frame and returns the reply to
// queue, or nil for frames that get no reply.
func (c *Client) handleMessage(msg *ClientMessage) *Message {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.WalletAddress == "" {
			return errorMessage("wallet_address is required to subscribe")
		}
		c.hub.Subscribe(c, msg.WalletAddress)
		return ackMessage(MessageTypeSubscribed, msg.WalletAddress)

	case MessageTypeUnsubscribe:
		if msg.WalletAddress == "" {
			return nil
		}
		c.hub.Unsubscribe(c, msg.WalletAddress)
		return ackMessage(MessageTypeUnsubscribed, msg.WalletAddress)

	case MessageTypePing:
		return &Message{Type: MessageTypePong, Timestamp: time.Now()}

	default:
		c.logger.Debug("unknown message type", "client_id", c.id, "type", msg.Type)
		return nil
	}
}

// enqueue queues a reply without blocking. A client that cannot keep
// up loses replies rather than stalling the read pump.
func (c *Client) enqueue(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func ackMessage(msgType, walletAddress string) *Message {
	return &Message{
		Type:          msgType,
		WalletAddress: strings.ToLower(walletAddress),
		Timestamp:     time.Now(),
	}
}

func errorMessage(reason string) *Message {
	return &Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": reason},
		Timestamp: time.Now(),
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush anything else already queued as part of the same
			// websocket frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an HTTP request and registers the client with the
// hub.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)

	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id)
}
