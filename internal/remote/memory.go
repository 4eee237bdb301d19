package remote

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Store. It backs the hub server and stands in for
// the cloud store in tests and single-process setups.
//
// The zero value is not usable; construct with NewMemory.
type Memory struct {
	mu        sync.Mutex
	users     map[string]map[string]Doc
	listeners map[string]map[*memListener]struct{}
	clock     func() time.Time
	lastMs    int64

	failWrites error // when set, BatchWrite fails with this error (tests)
}

type memListener struct {
	ch   chan []Change
	done chan struct{}
	once sync.Once
}

// NewMemory creates an empty in-memory store using the wall clock for
// server-assigned timestamps.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]map[string]Doc),
		listeners: make(map[string]map[*memListener]struct{}),
		clock:     time.Now,
	}
}

// SetClock replaces the server clock. Tests use this to pin timestamps.
func (m *Memory) SetClock(clock func() time.Time) {
	m.mu.Lock()
	m.clock = clock
	m.mu.Unlock()
}

// FailWrites makes every subsequent BatchWrite fail with err until called
// again with nil. Tests use this to simulate a network drop mid-flush.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.failWrites = err
	m.mu.Unlock()
}

// serverNow returns a strictly increasing millisecond timestamp, so two
// writes in the same millisecond still get a total order.
func (m *Memory) serverNow() time.Time {
	now := m.clock()
	ms := now.UnixMilli()
	if ms <= m.lastMs {
		ms = m.lastMs + 1
		now = time.UnixMilli(ms)
	}
	m.lastMs = ms
	return now
}

// BatchWrite implements Store. All ops commit under one lock acquisition and
// are delivered to listeners as a single change batch.
func (m *Memory) BatchWrite(ctx context.Context, userID string, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.failWrites != nil {
		err := m.failWrites
		m.mu.Unlock()
		return err
	}

	docs := m.users[userID]
	if docs == nil {
		docs = make(map[string]Doc)
		m.users[userID] = docs
	}

	changes := make([]Change, 0, len(ops))
	for _, op := range ops {
		switch op.Type {
		case OpSet:
			now := m.serverNow()
			doc := op.Doc
			doc.UpdatedAt = now
			doc.UpdatedAtMillis = now.UnixMilli()
			kind := ChangeAdded
			if _, exists := docs[op.ID]; exists {
				kind = ChangeModified
			}
			docs[op.ID] = doc
			changes = append(changes, Change{Kind: kind, ID: op.ID, Doc: doc})
		case OpDelete:
			if _, exists := docs[op.ID]; exists {
				delete(docs, op.ID)
				changes = append(changes, Change{Kind: ChangeRemoved, ID: op.ID})
			}
			// Deleting an absent document is a successful no-op.
		}
	}

	var targets []*memListener
	for l := range m.listeners[userID] {
		targets = append(targets, l)
	}
	m.mu.Unlock()

	if len(changes) == 0 {
		return nil
	}
	for _, l := range targets {
		l.send(changes)
	}
	return nil
}

// Listen implements Store. The initial snapshot (all current documents as
// added changes) is queued before any later batch.
func (m *Memory) Listen(ctx context.Context, userID string, fn func([]Change)) (func(), error) {
	l := &memListener{
		ch:   make(chan []Change, 64),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	set := m.listeners[userID]
	if set == nil {
		set = make(map[*memListener]struct{})
		m.listeners[userID] = set
	}
	set[l] = struct{}{}

	snapshot := make([]Change, 0, len(m.users[userID]))
	for id, doc := range m.users[userID] {
		snapshot = append(snapshot, Change{Kind: ChangeAdded, ID: id, Doc: doc})
	}
	m.mu.Unlock()

	if len(snapshot) > 0 {
		l.send(snapshot)
	}

	go func() {
		for {
			select {
			case <-l.done:
				return
			case <-ctx.Done():
				return
			case changes := <-l.ch:
				fn(changes)
			}
		}
	}()

	cancel := func() {
		l.once.Do(func() { close(l.done) })
		m.mu.Lock()
		delete(m.listeners[userID], l)
		m.mu.Unlock()
	}
	return cancel, nil
}

func (l *memListener) send(changes []Change) {
	select {
	case l.ch <- changes:
	case <-l.done:
	}
}

// Get returns a document and whether it exists. Test helper.
func (m *Memory) Get(userID, id string) (Doc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.users[userID][id]
	return doc, ok
}

// Count returns the number of documents for a user. Test helper.
func (m *Memory) Count(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users[userID])
}
