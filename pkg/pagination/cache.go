// Package pagination holds the per-session page cache and the cursors that
// fetch each page.
package pagination

import (
	"sync"

	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/types"
)

// Cache maps page numbers to previously fetched result pages for one
// logical query. It is owned by a single controller; the mutex only guards
// against that controller being driven from several goroutines.
type Cache struct {
	mu      sync.RWMutex
	pages   map[int]*types.ResultPage
	cursors map[int]query.Cursor
	logical query.Logical
	hits    int64
	misses  int64
	resets  int64
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		pages:   make(map[int]*types.ResultPage),
		cursors: make(map[int]query.Cursor),
	}
}

// Get returns the cached result for page
func (c *Cache) Get(page int) (*types.ResultPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, ok := c.pages[page]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return result, true
}

// Put stores the result for page, replacing any previous entry
func (c *Cache) Put(page int, result *types.ResultPage) {
	if result == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[page] = result
}

// Reset clears every page and every recorded cursor
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Cache) reset() {
	c.pages = make(map[int]*types.ResultPage)
	c.cursors = make(map[int]query.Cursor)
	c.resets++
}

// Bind ties the cache to a logical query. If the logical query differs
// from the one the entries were written for, the cache is reset first.
// It reports whether a reset happened.
func (c *Cache) Bind(logical query.Logical) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logical == logical {
		return false
	}
	c.reset()
	c.logical = logical
	return true
}

// Logical returns the logical query the entries belong to
func (c *Cache) Logical() query.Logical {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logical
}

// Cursor returns the cursor that fetches page. Page 1 always starts from
// the sentinel; later pages are known only once the page before them was
// fetched or the cursor was recorded with SetCursor.
func (c *Cache) Cursor(page int) (query.Cursor, bool) {
	if page <= 1 {
		return query.NewCursor(), true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	cursor, ok := c.cursors[page]
	return cursor, ok
}

// SetCursor records the cursor that fetches page. Page 1 is fixed to the
// sentinel and cannot be overridden.
func (c *Cache) SetCursor(page int, cursor query.Cursor) {
	if page <= 1 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[page] = cursor
}

// Len returns the number of cached pages
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

// Stats returns cache statistics
func (c *Cache) Stats() (hits, misses, resets int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, c.resets, len(c.pages)
}
