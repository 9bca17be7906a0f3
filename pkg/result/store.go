package result

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/pkg/pagination"
	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/types"
)

// Store owns the latest result and writes fetched pages into the
// pagination cache.
type Store struct {
	mu     sync.RWMutex
	cache  *pagination.Cache
	latest *types.ResultPage
	logger *zap.Logger
}

// NewStore creates a store writing into cache
func NewStore(cache *pagination.Cache, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cache: cache, logger: logger}
}

// Apply normalizes raw and returns the page together with state advanced to
// the page's forward cursor. Transaction pages are cached under state.Page
// along with the cursor that fetched them; blocks are always fetched fresh.
func (s *Store) Apply(state query.State, raw json.RawMessage) (*types.ResultPage, query.State, error) {
	page, err := Decode(raw)
	if err != nil {
		return nil, state, err
	}

	if page.IsTransactions() {
		s.cache.Put(state.Page, page)
		if state.Kind.Paginated() {
			s.cache.SetCursor(state.Page, state.Cursor)
		}
	}
	next := s.advance(state, page)

	s.mu.Lock()
	s.latest = page
	s.mu.Unlock()

	s.logger.Debug("result stored",
		zap.Int("page", state.Page),
		zap.Bool("block", page.IsBlock()),
		zap.Int("transactions", page.Transactions.Len()),
	)
	return page, next, nil
}

// Restore serves a cached page as the latest result and returns state
// advanced to that page's own forward cursor.
func (s *Store) Restore(state query.State, page *types.ResultPage) query.State {
	next := s.advance(state, page)

	s.mu.Lock()
	s.latest = page
	s.mu.Unlock()
	return next
}

// Clear drops the latest result. Cached pages are untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = nil
}

// Latest returns the latest result, or nil
func (s *Store) Latest() *types.ResultPage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Store) advance(state query.State, page *types.ResultPage) query.State {
	if !page.IsTransactions() || !state.Kind.Paginated() {
		return state
	}
	cursor := page.NextCursor()
	s.cache.SetCursor(state.Page+1, cursor)
	return state.WithCursor(cursor)
}
