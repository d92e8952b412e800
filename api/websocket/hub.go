package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openalpha/lrt-vault/metrics"
)

// Channels served by the hub. An event type may be appended to EventsChannel
// to receive only that type, e.g. "events:restaking_withdraw".
const (
	EventsChannel = "events"
	HeightChannel = "height"
)

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	clients  map[*Client]bool
	channels map[string]map[*Client]bool // channel -> clients

	register   chan *Client
	unregister chan *Client

	subscribe   chan *SubscriptionRequest
	unsubscribe chan *SubscriptionRequest

	done chan struct{}
	once sync.Once

	mu sync.RWMutex

	config  *HubConfig
	metrics *metrics.Collector
}

// HubConfig contains hub configuration
type HubConfig struct {
	MaxSubscriptions int
	MessageRateLimit int // Messages per second per client
}

// DefaultHubConfig returns default hub configuration
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		MaxSubscriptions: 50,
		MessageRateLimit: 100,
	}
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Client  *Client
	Channel string
}

// NewHub creates a new Hub. A nil collector disables metrics.
func NewHub(config *HubConfig, collector *metrics.Collector) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}

	return &Hub{
		clients:     make(map[*Client]bool),
		channels:    make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *SubscriptionRequest, 256),
		unsubscribe: make(chan *SubscriptionRequest, 256),
		done:        make(chan struct{}),
		config:      config,
		metrics:     collector,
	}
}

// Run starts the hub's main loop and returns after Stop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.subscribe:
			h.handleSubscription(req)

		case req := <-h.unsubscribe:
			h.handleUnsubscription(req)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop terminates Run and disconnects every client
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.metrics != nil {
		h.metrics.RecordWSConnection(1)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		h.removeLocked(client)
	}
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client)
	for channel, clients := range h.channels {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
	client.close()
	if h.metrics != nil {
		h.metrics.RecordWSConnection(-1)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) handleSubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[req.Client]; !ok {
		return
	}
	if _, ok := h.channels[req.Channel]; !ok {
		h.channels[req.Channel] = make(map[*Client]bool)
	}
	h.channels[req.Channel][req.Client] = true

	req.Client.Send(encode(&WSMessage{Type: "subscribed", Channel: req.Channel}))
}

func (h *Hub) handleUnsubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[req.Client]; !ok {
		return
	}
	if clients, ok := h.channels[req.Channel]; ok {
		delete(clients, req.Client)
		if len(clients) == 0 {
			delete(h.channels, req.Channel)
		}
	}

	req.Client.Send(encode(&WSMessage{Type: "unsubscribed", Channel: req.Channel}))
}

// BroadcastToChannel sends a message to all clients subscribed to a channel
func (h *Hub) BroadcastToChannel(channel string, message interface{}) {
	h.mu.RLock()
	clients, ok := h.channels[channel]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy so the lock is not held during send
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	for _, client := range clientList {
		client.Send(data)
		if h.metrics != nil {
			h.metrics.RecordWSMessage(channel)
		}
	}
}

// ============ Vault broadcasts ============

// EventMessage is one committed ledger event
type EventMessage struct {
	Seq        uint64            `json:"seq"`
	Height     int64             `json:"height"`
	Time       int64             `json:"time"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// HeightMessage announces a new committed version
type HeightMessage struct {
	Height int64 `json:"height"`
	Events int   `json:"events"`
}

// BroadcastEvent sends e to the events channel and to its typed channel
func (h *Hub) BroadcastEvent(e *EventMessage) {
	for _, channel := range []string{EventsChannel, EventsChannel + ":" + e.Type} {
		h.BroadcastToChannel(channel, &WSMessage{Type: "event", Channel: channel, Data: e})
	}
}

// BroadcastHeight announces a commit
func (h *Hub) BroadcastHeight(msg *HeightMessage) {
	h.BroadcastToChannel(HeightChannel, &WSMessage{Type: "height", Channel: HeightChannel, Data: msg})
}

// ============ Message Types ============

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func encode(msg *WSMessage) []byte {
	data, _ := json.Marshal(msg)
	return data
}

func validChannel(channel string) bool {
	return channel == EventsChannel ||
		channel == HeightChannel ||
		(strings.HasPrefix(channel, EventsChannel+":") && len(channel) > len(EventsChannel)+1)
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelClientCount returns the number of clients in a channel
func (h *Hub) GetChannelClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.channels[channel]; ok {
		return len(clients)
	}
	return 0
}

// ServeWS handles WebSocket upgrade requests
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := NewClient(h, conn, clientID)

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
