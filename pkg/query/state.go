package query

import "errors"

// NoPublicKeyIndex is the cursor sentinel for "no public key index yet"
const NoPublicKeyIndex int64 = -1

// ErrInvalidQuery is returned when a state cannot be routed to a request
var ErrInvalidQuery = errors.New("invalid query")

// Cursor is the forward-pagination cursor returned by the transaction-info
// endpoint. The zero value is not the sentinel; use NewCursor.
type Cursor struct {
	LastTransactionID  string `json:"lastTransactionId"`
	LastPublicKeyIndex int64  `json:"lastPublicKeyIndex"`
}

// NewCursor returns the "no cursor yet" sentinel used for the first page
func NewCursor() Cursor {
	return Cursor{LastPublicKeyIndex: NoPublicKeyIndex}
}

// IsStart reports whether the cursor is the first-page sentinel
func (c Cursor) IsStart() bool {
	return c.LastTransactionID == "" && c.LastPublicKeyIndex == NoPublicKeyIndex
}

// State describes what is currently being asked of the query node.
// A State is replaced as a whole on every transition, never patched in place
// by collaborators.
type State struct {
	QueryNode string `json:"queryNode"`
	RawQuery  string `json:"rawQuery"`
	Kind      Kind   `json:"kind"`
	Page      int    `json:"page"`
	Cursor    Cursor `json:"cursor"`
}

// NewState builds a first-page state for free-text input, classifying raw.
func NewState(queryNode, raw string) State {
	return State{
		QueryNode: queryNode,
		RawQuery:  raw,
		Kind:      Classify(raw),
		Page:      1,
		Cursor:    NewCursor(),
	}
}

// TipState builds the state asking queryNode for the current chain head.
// "tip" is not free text, so Classify never yields it.
func TipState(queryNode string) State {
	return State{
		QueryNode: queryNode,
		RawQuery:  TipQuery,
		Kind:      KindTip,
		Page:      1,
		Cursor:    NewCursor(),
	}
}

// Logical identifies the logical query. Pagination caches are valid only
// while the logical query is unchanged.
type Logical struct {
	QueryNode string
	Kind      Kind
	RawQuery  string
}

// Logical returns the logical query key of the state
func (s State) Logical() Logical {
	return Logical{QueryNode: s.QueryNode, Kind: s.Kind, RawQuery: s.RawQuery}
}

// WithPage returns a copy of the state on another page
func (s State) WithPage(page int) State {
	s.Page = page
	return s
}

// WithCursor returns a copy of the state carrying cursor. Cursors only
// apply to paginated kinds; other kinds always keep the sentinel.
func (s State) WithCursor(c Cursor) State {
	if !s.Kind.Paginated() {
		s.Cursor = NewCursor()
		return s
	}
	s.Cursor = c
	return s
}

// Normalize enforces the state invariants: page >= 1 and a reset cursor for
// kinds that are not cursor-paginated.
func (s State) Normalize() State {
	if s.Page < 1 {
		s.Page = 1
	}
	if !s.Kind.Paginated() {
		s.Cursor = NewCursor()
	}
	return s
}
