// Package websocket pushes live leaderboard and per-player updates to
// connected game clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/snakebase/snakebase/internal/domain"
)

// Message types
const (
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypePlayerUpdate      = "player_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeSubscribed        = "subscribed"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypeUnsubscribed      = "unsubscribed"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type          string      `json:"type"`
	WalletAddress string      `json:"wallet_address,omitempty"`
	Data          interface{} `json:"data,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// PlayerUpdate contains a player's refreshed stats for broadcast
type PlayerUpdate struct {
	WalletAddress string             `json:"wallet_address"`
	Stats         domain.PlayerStats `json:"stats"`
}

// Hub maintains the set of active clients and broadcasts messages.
// Leaderboard updates go to every client; player updates go only to
// clients subscribed to that wallet.
type Hub struct {
	// Clients subscribed to per-wallet updates, keyed by lowercase
	// wallet address
	walletClients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages from clients
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	wallet string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		walletClients: make(map[string]map[*Client]bool),
		allClients:    make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *Message, 256),
		subscribe:     make(chan *subscriptionRequest, 64),
		unsubscribe:   make(chan *subscriptionRequest, 64),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all wallet subscriptions
				for wallet, clients := range h.walletClients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.walletClients, wallet)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.walletClients[req.wallet]; !ok {
				h.walletClients[req.wallet] = make(map[*Client]bool)
			}
			h.walletClients[req.wallet][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "wallet", req.wallet)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.walletClients[req.wallet]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.walletClients, req.wallet)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "wallet", req.wallet)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to its audience: wallet-scoped
// messages to that wallet's subscribers, everything else to all
// clients.
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	if message.WalletAddress != "" {
		if clients, ok := h.walletClients[message.WalletAddress]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastLeaderboard sends the refreshed top entries to every
// connected client.
func (h *Hub) BroadcastLeaderboard(entries []domain.LeaderboardEntry) {
	message := &Message{
		Type:      MessageTypeLeaderboardUpdate,
		Data:      entries,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastPlayer sends refreshed stats to clients subscribed to the
// wallet.
func (h *Hub) BroadcastPlayer(walletAddress string, stats domain.PlayerStats) {
	wallet := strings.ToLower(walletAddress)
	message := &Message{
		Type:          MessageTypePlayerUpdate,
		WalletAddress: wallet,
		Data: PlayerUpdate{
			WalletAddress: wallet,
			Stats:         stats,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a wallet's update stream
func (h *Hub) Subscribe(client *Client, walletAddress string) {
	h.subscribe <- &subscriptionRequest{
		client: client,
		wallet: strings.ToLower(walletAddress),
	}
}

// Unsubscribe removes a client from a wallet's update stream
func (h *Hub) Unsubscribe(client *Client, walletAddress string) {
	h.unsubscribe <- &subscriptionRequest{
		client: client,
		wallet: strings.ToLower(walletAddress),
	}
}

// GetSubscriberCount returns the number of subscribers for a wallet
func (h *Hub) GetSubscriberCount(walletAddress string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.walletClients[strings.ToLower(walletAddress)]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
