package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// Client is one websocket connection bound to an explorer session
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session string

	subscriptions map[SubscriptionType]bool
	mu            sync.RWMutex

	logger *zap.Logger
}

// NewClient creates a client for session
func NewClient(hub *Hub, conn *websocket.Conn, session string, logger *zap.Logger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		session:       session,
		subscriptions: make(map[SubscriptionType]bool),
		logger:        logger,
	}
}

// IsSubscribed checks if the client is subscribed to an event type
func (c *Client) IsSubscribed(eventType SubscriptionType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[eventType]
}

// Subscribe subscribes the client to an event type
func (c *Client) Subscribe(eventType SubscriptionType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[eventType] = true
}

// Unsubscribe unsubscribes the client from an event type
func (c *Client) Unsubscribe(eventType SubscriptionType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, eventType)
}

// ReadPump reads client messages until the connection fails
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		c.handleMessage(message)
	}
}

// WritePump writes queued messages, one frame each, and keeps the
// connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe", "unsubscribe":
		var req SubscribeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || !req.Type.valid() {
			c.sendError("invalid subscription type")
			return
		}
		if msg.Type == "subscribe" {
			c.Subscribe(req.Type)
			c.sendSuccess("subscribed to " + string(req.Type))
		} else {
			c.Unsubscribe(req.Type)
			c.sendSuccess("unsubscribed from " + string(req.Type))
		}
	case "ping":
		c.sendMessage(Message{Type: "pong"})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// sendMessage queues msg without blocking. It runs on the read goroutine,
// so it holds the hub lock to avoid racing a close of c.send.
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message")
	}
}

func (c *Client) sendError(errMsg string) {
	payload, _ := json.Marshal(ErrorMessage{Error: errMsg})
	c.sendMessage(Message{Type: "error", Payload: payload})
}

func (c *Client) sendSuccess(message string) {
	payload, _ := json.Marshal(SuccessMessage{Message: message})
	c.sendMessage(Message{Type: "success", Payload: payload})
}
