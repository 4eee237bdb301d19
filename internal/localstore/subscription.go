package localstore

import (
	"sync"

	"github.com/taskwell/tasksync/internal/task"
)

// Subscription is a live query over the store. Listeners fire once
// immediately when added (with the current result set) and again after every
// committed write transaction. Results delivered to listeners are fresh
// copies; mutating them does not affect store state.
//
// Every Subscription must be torn down with Close (or at least
// RemoveAllListeners) when its owner goes away. Dangling listeners observe
// stale state and leak.
type Subscription struct {
	store *Store
	query Query

	mu        sync.Mutex
	listeners []func([]*task.Task)
	closed    bool
}

// Subscribe registers a live query. The returned Subscription emits to its
// listeners after every committed write transaction, whether or not the
// transaction touched matching records; listeners receive the full current
// result set each time.
func (s *Store) Subscribe(q Query) *Subscription {
	sub := &Subscription{store: s, query: q}
	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()
	return sub
}

// notifySubscribers re-runs every registered live query and delivers the
// results. Called after each committed write transaction, so listeners see
// a burst of changes atomically, never a half-applied transaction.
func (s *Store) notifySubscribers() {
	s.subsMu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()

	for _, sub := range subs {
		results, err := s.List(sub.query)
		if err != nil {
			s.logger.Printf("live query failed: %v", err)
			continue
		}
		sub.emit(results)
	}
}

// Current returns the query's result set as of now.
func (sub *Subscription) Current() ([]*task.Task, error) {
	return sub.store.List(sub.query)
}

// AddListener registers fn and fires it once immediately with the current
// result set, so late subscribers do not wait for the next change.
func (sub *Subscription) AddListener(fn func([]*task.Task)) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.listeners = append(sub.listeners, fn)
	sub.mu.Unlock()

	results, err := sub.store.List(sub.query)
	if err != nil {
		sub.store.logger.Printf("live query failed on listener attach: %v", err)
		return
	}
	fn(results)
}

// RemoveAllListeners detaches every listener. The subscription stays
// registered and can accept new listeners.
func (sub *Subscription) RemoveAllListeners() {
	sub.mu.Lock()
	sub.listeners = nil
	sub.mu.Unlock()
}

// Close detaches all listeners and unregisters the subscription from the
// store. A closed subscription never fires again.
func (sub *Subscription) Close() {
	sub.mu.Lock()
	sub.closed = true
	sub.listeners = nil
	sub.mu.Unlock()

	sub.store.subsMu.Lock()
	delete(sub.store.subs, sub)
	sub.store.subsMu.Unlock()
}

func (sub *Subscription) emit(results []*task.Task) {
	sub.mu.Lock()
	listeners := make([]func([]*task.Task), len(sub.listeners))
	copy(listeners, sub.listeners)
	sub.mu.Unlock()

	for _, fn := range listeners {
		fn(results)
	}
}
