package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/internal/metrics"
)

const (
	// DefaultMaxClients is the maximum number of concurrent WebSocket clients
	DefaultMaxClients = 10000
)

// Hub tracks connected clients and routes session events to them
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	unregister chan *Client
	broadcast  chan *Event

	done     chan struct{}
	stopOnce sync.Once

	maxClients int
	logger     *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
		done:       make(chan struct{}),
		maxClients: DefaultMaxClients,
		logger:     logger,
	}
}

// Run runs the hub event loop until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// add registers client. It fails once the hub is stopped or full.
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return false
	default:
	}
	if len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		h.logger.Warn("max clients reached, rejecting connection",
			zap.Int("max_clients", h.maxClients))
		return false
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	h.logger.Debug("client registered",
		zap.String("session", client.session),
		zap.Int("total_clients", count))
	return true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(count))
}

// deliver sends event to the subscribed clients of its session. Clients
// whose buffers are full are dropped.
func (h *Hub) deliver(event *Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	messageBytes, err := json.Marshal(Message{Type: "event", Payload: eventData})
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.clients {
		if client.session != event.Session || !client.IsSubscribed(event.Type) {
			continue
		}
		select {
		case client.send <- messageBytes:
			sent++
		default:
			h.logger.Warn("client buffer full, closing connection",
				zap.String("session", client.session))
			close(client.send)
			delete(h.clients, client)
		}
	}

	h.logger.Debug("event delivered",
		zap.String("type", string(event.Type)),
		zap.String("session", event.Session),
		zap.Int("recipients", sent))
}

// Publish queues an event for the clients of session. It never blocks; a
// full queue drops the event.
func (h *Hub) Publish(session string, eventType SubscriptionType, data interface{}) {
	event := &Event{Type: eventType, Session: session, Data: data}

	select {
	case <-h.done:
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			zap.String("type", string(eventType)))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionClientCount returns the number of clients attached to session
func (h *Hub) SessionClientCount(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.session == session {
			n++
		}
	}
	return n
}

// Stop ends Run and closes every client connection
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
		metrics.WebSocketClients.Set(0)

		h.logger.Info("hub stopped")
	})
}
