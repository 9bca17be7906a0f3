package websocket

import "encoding/json"

// SubscriptionType names a feed a client can subscribe to
type SubscriptionType string

const (
	// SubscribeView delivers every view change of the client's session
	SubscribeView SubscriptionType = "view"

	// SubscribeAlert delivers the session's user-visible alerts
	SubscribeAlert SubscriptionType = "alert"
)

func (t SubscriptionType) valid() bool {
	return t == SubscribeView || t == SubscribeAlert
}

// Message is the envelope of every frame in both directions
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest is the payload of subscribe and unsubscribe messages
type SubscribeRequest struct {
	Type SubscriptionType `json:"type"`
}

// Event is published to the clients of one session
type Event struct {
	Type    SubscriptionType `json:"type"`
	Session string           `json:"-"`
	Data    interface{}      `json:"data"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Error string `json:"error"`
}

// SuccessMessage represents a success message
type SuccessMessage struct {
	Message string `json:"message"`
}
