package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/0xmhha/explorer-go/pkg/request"
)

// ErrNoResponse is returned when a FakeTransport runs out of scripted responses
var ErrNoResponse = errors.New("testutil: no scripted response")

// Response is one scripted transport outcome
type Response struct {
	Body json.RawMessage
	Err  error

	// Started is closed when the request reaches the transport
	Started chan struct{}

	// Gate, when set, holds the response until it is closed or the
	// request context ends.
	Gate chan struct{}
}

// FakeTransport replays scripted responses in order and records requests
type FakeTransport struct {
	mu        sync.Mutex
	responses []Response
	fallback  *Response
	requests  []*request.Descriptor
}

// NewFakeTransport creates a transport with the given scripted responses
func NewFakeTransport(responses ...Response) *FakeTransport {
	return &FakeTransport{responses: responses}
}

// Push appends scripted responses
func (f *FakeTransport) Push(responses ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

// Always answers every request without a scripted response with r
func (f *FakeTransport) Always(r Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = &r
}

// Do implements the controller transport
func (f *FakeTransport) Do(ctx context.Context, desc *request.Descriptor) (json.RawMessage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, desc)
	var resp Response
	switch {
	case len(f.responses) > 0:
		resp = f.responses[0]
		f.responses = f.responses[1:]
	case f.fallback != nil:
		resp = *f.fallback
	default:
		f.mu.Unlock()
		return nil, ErrNoResponse
	}
	f.mu.Unlock()

	if resp.Started != nil {
		close(resp.Started)
	}
	if resp.Gate != nil {
		select {
		case <-resp.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp.Body, resp.Err
}

// Calls returns the number of requests received
func (f *FakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns the received requests in order
func (f *FakeTransport) Requests() []*request.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*request.Descriptor, len(f.requests))
	copy(out, f.requests)
	return out
}

// Last returns the most recent request, or nil
func (f *FakeTransport) Last() *request.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}
