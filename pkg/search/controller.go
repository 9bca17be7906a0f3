// Package search orchestrates decoding, caching, fetching and storing of
// explorer queries for one session.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/internal/constants"
	"github.com/0xmhha/explorer-go/internal/metrics"
	"github.com/0xmhha/explorer-go/pkg/alert"
	"github.com/0xmhha/explorer-go/pkg/pagination"
	"github.com/0xmhha/explorer-go/pkg/params"
	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/request"
	"github.com/0xmhha/explorer-go/pkg/result"
	"github.com/0xmhha/explorer-go/pkg/router"
	"github.com/0xmhha/explorer-go/pkg/types"
)

// Transport sends one request to a query node and returns the raw body
type Transport interface {
	Do(ctx context.Context, desc *request.Descriptor) (json.RawMessage, error)
}

// Config holds controller configuration
type Config struct {
	// QueryNode is used for user searches before any parameters named one
	QueryNode string

	// ExternalExplorer is the base URL explorer links are joined onto
	ExternalExplorer string

	PageSize int
}

// Controller drives one explorer session. Every search and page change goes
// through the router; the controller reacts to the resulting parameters.
type Controller struct {
	mu         sync.Mutex
	cfg        Config
	transport  Transport
	router     *router.Router
	alerter    alert.Alerter
	builder    *request.Builder
	cache      *pagination.Cache
	store      *result.Store
	logger     *zap.Logger
	id         string
	generation uint64
	view       View

	listenersMu sync.RWMutex
	listeners   map[int]func(View)
	nextID      int

	unsubscribe func()
}

// New creates a controller and subscribes it to rt
func New(cfg Config, transport Transport, rt *router.Router, alerter alert.Alerter, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerter == nil {
		alerter = alert.NewLogAlerter(logger)
	}
	if rt == nil {
		rt = router.New(nil)
	}
	if cfg.QueryNode == "" {
		cfg.QueryNode = constants.DefaultQueryNode
	}

	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))
	builder := request.NewBuilder(cfg.PageSize)
	cfg.PageSize = builder.PageSize()

	cache := pagination.NewCache()
	c := &Controller{
		cfg:       cfg,
		transport: transport,
		router:    rt,
		alerter:   alerter,
		builder:   builder,
		cache:     cache,
		store:     result.NewStore(cache, logger),
		logger:    logger,
		id:        id,
		listeners: make(map[int]func(View)),
	}
	c.view = View{Status: StatusIdle, State: query.NewState(cfg.QueryNode, "")}

	c.unsubscribe = rt.Subscribe(func(ctx context.Context, p params.Params) error {
		_, err := c.HandleParams(ctx, p)
		return err
	})
	return c
}

// ID returns the session id
func (c *Controller) ID() string {
	return c.id
}

// Router returns the router the controller listens to
func (c *Controller) Router() *router.Router {
	return c.router
}

// Cache returns the session pagination cache
func (c *Controller) Cache() *pagination.Cache {
	return c.cache
}

// Close detaches the controller from its router
func (c *Controller) Close() {
	c.unsubscribe()
}

// View returns the current snapshot
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Subscribe registers fn for every view change and returns a function
// removing it. fn runs on the goroutine that changed the view.
func (c *Controller) Subscribe(fn func(View)) (unsubscribe func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// HandleParams runs the decode path for an external parameter change. It
// serves cached pages synchronously and otherwise fetches from the query
// node. A response superseded by a newer cycle yields ErrStaleResponse and
// leaves cache and view untouched.
func (c *Controller) HandleParams(ctx context.Context, p params.Params) (View, error) {
	state := params.Decode(p)

	c.mu.Lock()
	c.generation++
	gen := c.generation

	previous := c.cache.Logical()
	if c.cache.Bind(state.Logical()) {
		metrics.CacheResetsTotal.Inc()
		c.logger.Debug("pagination cache reset",
			zap.Stringer("previous_kind", previous.Kind),
			zap.Stringer("kind", state.Kind),
			zap.String("query", state.RawQuery))
	}

	desc, err := c.builder.Build(state)
	if err != nil {
		return c.failLocked(ctx, gen, state, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	if page, ok := c.cache.Get(state.Page); ok {
		metrics.CacheLookupsTotal.WithLabelValues(state.Kind.String(), "hit").Inc()
		hits, _, _, size := c.cache.Stats()
		c.logger.Debug("serving cached page",
			zap.Int("page", state.Page),
			zap.Int64("hits", hits),
			zap.Int("cached", size))
		next := c.store.Restore(state, page)
		return c.settleLocked(gen, next, page), nil
	}
	metrics.CacheLookupsTotal.WithLabelValues(state.Kind.String(), "miss").Inc()

	c.store.Clear()
	c.view = c.buildView(View{
		Status:     StatusLoading,
		State:      state,
		Loading:    true,
		HasQuery:   c.view.HasQuery || state.Kind != query.KindTip,
		Generation: gen,
	})
	loading := c.view
	c.mu.Unlock()
	c.notify(loading)

	c.logger.Info("requesting query node",
		zap.Stringer("kind", state.Kind),
		zap.String("path", desc.Path),
		zap.Int("page", state.Page),
		zap.Uint64("generation", gen))

	body, err := c.transport.Do(ctx, desc)

	c.mu.Lock()
	if gen != c.generation {
		current := c.view
		c.mu.Unlock()
		metrics.StaleResponsesTotal.Inc()
		c.logger.Warn("discarding stale response",
			zap.Uint64("generation", gen),
			zap.Uint64("current", current.Generation))
		return current, ErrStaleResponse
	}

	if err != nil {
		return c.failLocked(ctx, gen, state, err)
	}

	page, next, err := c.store.Apply(state, body)
	if err != nil {
		return c.failLocked(ctx, gen, state, err)
	}
	return c.settleLocked(gen, next, page), nil
}

// Search starts a user-initiated search for raw. The pagination cache is
// reset, any in-flight cycle is superseded and the new parameters are
// written to the router, which re-enters HandleParams.
func (c *Controller) Search(ctx context.Context, raw string) (View, error) {
	q := strings.TrimSpace(raw)

	c.mu.Lock()
	node := c.view.State.QueryNode
	if node == "" {
		node = c.cfg.QueryNode
	}
	c.mu.Unlock()

	var state query.State
	if q == query.TipQuery {
		state = query.TipState(node)
	} else {
		state = query.NewState(node, q)
	}

	p, err := params.Encode(state)
	if err != nil || q == "" {
		return c.reject(ctx, ErrInvalidInput)
	}

	c.mu.Lock()
	dropped := c.cache.Len()
	c.generation++
	c.cache.Reset()
	c.mu.Unlock()

	c.logger.Debug("search",
		zap.Stringer("kind", state.Kind),
		zap.String("query", q),
		zap.Int("dropped_pages", dropped))
	return c.navigate(ctx, p)
}

// NextPage moves to the following page of a cursor-paginated query
func (c *Controller) NextPage(ctx context.Context) (View, error) {
	return c.step(ctx, 1)
}

// PrevPage moves to the previous page. Paging back from page 1 is rejected
// with ErrInvalidPage and changes nothing.
func (c *Controller) PrevPage(ctx context.Context) (View, error) {
	return c.step(ctx, -1)
}

func (c *Controller) step(ctx context.Context, delta int) (View, error) {
	c.mu.Lock()
	current := c.view
	c.mu.Unlock()

	if current.Loading {
		return current, ErrBusy
	}
	if !current.State.Kind.Paginated() {
		return current, nil
	}

	page := current.State.Page + delta
	if page < 1 {
		return c.reject(ctx, ErrInvalidPage)
	}

	target := current.State.WithPage(page)
	if delta < 0 {
		target = c.backTarget(target)
	}

	p, err := params.Encode(target)
	if err != nil {
		return c.reject(ctx, ErrInvalidInput)
	}
	return c.navigate(ctx, p)
}

// backTarget swaps the forward cursor carried by the current state for the
// cursor that fetches target.Page. A page whose cursor was never seen, as
// after a deep link, cannot be reached backwards, so paging restarts at 1.
func (c *Controller) backTarget(target query.State) query.State {
	if cursor, ok := c.cache.Cursor(target.Page); ok {
		return target.WithCursor(cursor)
	}

	c.logger.Debug("unknown cursor for previous page, restarting",
		zap.Int("page", target.Page))
	return target.WithPage(1).WithCursor(query.NewCursor())
}

func (c *Controller) navigate(ctx context.Context, p params.Params) (View, error) {
	err := c.router.Navigate(ctx, p)
	return c.View(), err
}

// reject alerts a locally recovered error without touching the view
func (c *Controller) reject(ctx context.Context, err error) (View, error) {
	c.mu.Lock()
	node := c.view.State.QueryNode
	current := c.view
	c.mu.Unlock()

	metrics.AlertsTotal.WithLabelValues(errorClass(err)).Inc()
	c.alerter.Alert(ctx, UserMessage(err, node))
	return current, err
}

// settleLocked must be called with c.mu held; it releases it.
func (c *Controller) settleLocked(gen uint64, state query.State, page *types.ResultPage) View {
	c.view = c.buildView(View{
		Status:     StatusSettled,
		State:      state,
		Result:     page,
		HasQuery:   c.view.HasQuery || state.Kind != query.KindTip,
		Generation: gen,
	})
	settled := c.view
	c.mu.Unlock()

	metrics.SearchCyclesTotal.WithLabelValues(state.Kind.String(), settled.Status.String()).Inc()
	c.notify(settled)
	return settled
}

// failLocked must be called with c.mu held; it releases it.
func (c *Controller) failLocked(ctx context.Context, gen uint64, state query.State, err error) (View, error) {
	message := UserMessage(err, state.QueryNode)
	c.store.Clear()
	c.view = c.buildView(View{
		Status:     StatusFailed,
		State:      state,
		Error:      message,
		HasQuery:   c.view.HasQuery || state.Kind != query.KindTip,
		Generation: gen,
	})
	failed := c.view
	c.mu.Unlock()

	class := errorClass(err)
	metrics.SearchCyclesTotal.WithLabelValues(state.Kind.String(), failed.Status.String()).Inc()
	metrics.AlertsTotal.WithLabelValues(class).Inc()

	if errors.Is(err, ErrInvalidInput) {
		c.logger.Debug("rejected query", zap.String("query", state.RawQuery), zap.Error(err))
	} else {
		c.logger.Warn("query failed",
			zap.Stringer("kind", state.Kind),
			zap.String("class", class),
			zap.Error(err))
	}

	c.alerter.Alert(ctx, message)
	c.notify(failed)
	return failed, err
}

func (c *Controller) buildView(v View) View {
	v.ShowNextPage = showNextPage(v, c.cfg.PageSize)
	v.ExplorerPath = params.ExplorerPath(v.State)
	v.ExternalLink = params.ExternalLink(c.cfg.ExternalExplorer, v.ExplorerPath)
	if p, err := params.Encode(v.State); err == nil {
		v.Params = p
	}
	return v
}

func (c *Controller) notify(v View) {
	c.listenersMu.RLock()
	fns := make([]func(View), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}
