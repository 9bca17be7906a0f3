package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNilDescriptor is returned when Do is called without a request
	ErrNilDescriptor = errors.New("nil request descriptor")

	// ErrResponseTooLarge is returned when a body exceeds the configured limit
	ErrResponseTooLarge = errors.New("response body too large")
)

// TransportError is a non-2xx response or a network failure talking to a
// query node. ServerMessage holds the Error field of a structured body.
type TransportError struct {
	QueryNode     string
	StatusCode    int
	ServerMessage string
	Body          []byte
	Err           error
}

func (e *TransportError) Error() string {
	switch {
	case e.ServerMessage != "":
		return fmt.Sprintf("query node %s: status %d: %s", e.QueryNode, e.StatusCode, e.ServerMessage)
	case e.StatusCode != 0:
		return fmt.Sprintf("query node %s: status %d", e.QueryNode, e.StatusCode)
	default:
		return fmt.Sprintf("query node %s: %v", e.QueryNode, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user for this failure
func (e *TransportError) Message() string {
	if e.ServerMessage != "" {
		return e.ServerMessage
	}
	return "Error connecting to query node: " + e.QueryNode
}

// IsTransportError reports whether err wraps a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
