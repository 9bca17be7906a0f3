// Package alert is the single user-visible message channel of the explorer.
package alert

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	// InvalidInputMessage re-prompts the user after an unrecognized query
	InvalidInputMessage = `Please enter a valid DeSo public key, transaction ID, block hash, or block height. Public keys start with "BC", transaction IDs start with "3J", and block hashes usually start with zeros.`

	// InvalidPageMessage is shown when paging back past the first page
	InvalidPageMessage = "You are already on the first page."
)

// Alerter delivers one human-readable message to the user
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// Func adapts a function to Alerter
type Func func(ctx context.Context, message string)

// Alert calls f
func (f Func) Alert(ctx context.Context, message string) {
	f(ctx, message)
}

// LogAlerter writes alerts to a zap logger
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates an alerter writing at warn level
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger}
}

// Alert logs message
func (a *LogAlerter) Alert(_ context.Context, message string) {
	a.logger.Warn("alert", zap.String("message", message))
}

// Recorder keeps every alert in order
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Alert records message
func (r *Recorder) Alert(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the recorded alerts
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent alert, or ""
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

// Reset forgets recorded alerts
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

// Multi fans one alert out to several alerters
type Multi []Alerter

// Alert delivers message to every non-nil alerter
func (m Multi) Alert(ctx context.Context, message string) {
	for _, a := range m {
		if a != nil {
			a.Alert(ctx, message)
		}
	}
}
