package search

import (
	"encoding/json"
	"errors"

	"github.com/0xmhha/explorer-go/pkg/alert"
	"github.com/0xmhha/explorer-go/pkg/client"
	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/result"
)

var (
	// ErrInvalidInput is returned for empty or unrecognized queries
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPage is returned when paging back past the first page
	ErrInvalidPage = errors.New("invalid page")

	// ErrStaleResponse is returned when a newer cycle superseded the request
	ErrStaleResponse = errors.New("stale response discarded")

	// ErrBusy is returned by page navigation while a fetch is loading
	ErrBusy = errors.New("fetch in progress")
)

const unknownErrorPrefix = "Unknown error occurred: "

// UserMessage maps err onto the text shown on the alert channel
func UserMessage(err error, queryNode string) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrInvalidInput) || errors.Is(err, query.ErrInvalidQuery) {
		return alert.InvalidInputMessage
	}
	if errors.Is(err, ErrInvalidPage) {
		return alert.InvalidPageMessage
	}

	var te *client.TransportError
	if errors.As(err, &te) {
		if te.ServerMessage != "" {
			return te.ServerMessage
		}
		node := te.QueryNode
		if node == "" {
			node = queryNode
		}
		return "Error connecting to query node: " + node
	}

	var pe *result.PayloadError
	if errors.As(err, &pe) {
		return unknownErrorPrefix + string(pe.Payload)
	}

	dump, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return unknownErrorPrefix + err.Error()
	}
	return unknownErrorPrefix + string(dump)
}

// errorClass labels err for metrics
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, query.ErrInvalidQuery):
		return "invalid_input"
	case errors.Is(err, ErrInvalidPage):
		return "invalid_page"
	case client.IsTransportError(err):
		return "transport"
	case errors.Is(err, result.ErrUnexpectedPayloadShape):
		return "unexpected_payload"
	default:
		return "unknown"
	}
}
