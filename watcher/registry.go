package watcher

import (
	"slices"
	"sync"
)

// Registry holds the watchers waiting on one machine.
type Registry[S comparable] struct {
	mutex    sync.Mutex
	watchers []*Watcher[S]
}

// NewRegistry returns an empty registry.
func NewRegistry[S comparable]() *Registry[S] {
	return &Registry[S]{}
}

// Register adds w. If current already matches, w resolves immediately and is
// not retained. Otherwise its timeout, if any, starts now.
func (r *Registry[S]) Register(w *Watcher[S], current S) {
	if w.Resolved() || w.arrive(current) {
		return
	}

	w.armTimeout()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.watchers = append(r.watchers, w)
}

// Notify resolves every watcher that watches state, then prunes resolved
// watchers. It returns how many were resolved by this arrival.
func (r *Registry[S]) Notify(state S) int {
	r.mutex.Lock()
	watchers := slices.Clone(r.watchers)
	r.mutex.Unlock()

	resolved := 0

	for _, w := range watchers {
		if !w.Resolved() && w.arrive(state) {
			resolved++
		}
	}

	r.prune()

	return resolved
}

// CompleteAll force-completes every pending watcher with err and empties the registry.
func (r *Registry[S]) CompleteAll(err error) {
	r.mutex.Lock()
	watchers := r.watchers
	r.watchers = nil
	r.mutex.Unlock()

	for _, w := range watchers {
		w.CompleteWithErrorIfPending(err)
	}
}

// Len returns the number of watchers still pending.
func (r *Registry[S]) Len() int {
	r.prune()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.watchers)
}

func (r *Registry[S]) prune() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.watchers = slices.DeleteFunc(r.watchers, func(w *Watcher[S]) bool {
		return w.Resolved()
	})
}
