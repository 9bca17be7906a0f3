// Package router holds the external parameter set of one explorer session
// and notifies listeners when it changes.
package router

import (
	"context"
	"errors"
	"sync"

	"github.com/0xmhha/explorer-go/pkg/params"
)

// Listener reacts to a navigation. Errors are joined and returned from Navigate.
type Listener func(ctx context.Context, p params.Params) error

// Router is an in-memory stand-in for URL synchronization
type Router struct {
	mu        sync.RWMutex
	current   params.Params
	listeners map[int]Listener
	order     []int
	nextID    int
}

// New creates a router holding initial
func New(initial params.Params) *Router {
	if initial == nil {
		initial = params.Params{}
	}
	return &Router{
		current:   initial.Clone(),
		listeners: make(map[int]Listener),
	}
}

// Current returns a copy of the current parameter set
func (r *Router) Current() params.Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Clone()
}

// Navigate replaces the whole parameter set and invokes every listener in
// subscription order before returning.
func (r *Router) Navigate(ctx context.Context, p params.Params) error {
	if p == nil {
		p = params.Params{}
	}

	r.mu.Lock()
	r.current = p.Clone()
	listeners := make([]Listener, 0, len(r.order))
	for _, id := range r.order {
		listeners = append(listeners, r.listeners[id])
	}
	r.mu.Unlock()

	var errs []error
	for _, l := range listeners {
		if err := l(ctx, p.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers l and returns a function removing it
func (r *Router) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.order = append(r.order, id)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.listeners[id]; !ok {
			return
		}
		delete(r.listeners, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}
