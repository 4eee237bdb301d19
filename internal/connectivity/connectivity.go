// Package connectivity reports whether the device can reach the remote
// store. "Online" is the conjunction of two independent signals: a network
// link is present AND the public internet is actually reachable through it.
// Neither alone is sufficient; a connected-but-captive network reports
// offline.
//
// Subscribers are notified on every transition. A late subscriber gets its
// initial value from FetchOnce rather than waiting for the next transition.
package connectivity

import (
	"context"
	"sync"
)

// State carries the two raw platform signals.
type State struct {
	Connected         bool
	InternetReachable bool
}

// Online reports the combined signal.
func (s State) Online() bool {
	return s.Connected && s.InternetReachable
}

// Monitor is the connectivity contract the sync engine consumes.
type Monitor interface {
	// Subscribe registers fn, called with the new value on every
	// online/offline transition. The returned function unsubscribes;
	// it must be called on teardown and is idempotent.
	Subscribe(fn func(online bool)) (unsubscribe func())

	// FetchOnce performs an on-demand one-shot check and returns the
	// current combined signal.
	FetchOnce(ctx context.Context) bool
}

// subscribers is the shared listener bookkeeping for Monitor
// implementations.
type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]func(online bool)
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]func(bool))}
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) emit(online bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a Monitor driven entirely by SetOnline calls. Tests and the CLI
// one-shot path use it; it also serves environments where probing is
// undesirable and connectivity is declared externally.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   *subscribers
}

// NewManual creates a Manual monitor with the given initial value.
func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: newSubscribers()}
}

// SetOnline updates the value, notifying subscribers only on a transition.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.subs.emit(online)
	}
}

// Subscribe implements Monitor.
func (m *Manual) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}

// FetchOnce implements Monitor.
func (m *Manual) FetchOnce(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}
