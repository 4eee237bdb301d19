// Package status projects sync state for display: whether the device is
// online, and how many local changes are still waiting to reach the remote
// store.
//
// The online flag mirrors the connectivity monitor and is user-independent:
// it keeps tracking across sign-out. The pending count is scoped to the
// bound user and comes from a live query over dirty records (tombstones
// included), so it updates within one notification tick of any local write,
// flush confirmation, or remote merge. Neither value is polled.
package status

import (
	"context"
	"sync"

	"github.com/taskwell/tasksync/internal/connectivity"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/task"
)

// Snapshot is one consistent view of the projection.
type Snapshot struct {
	Online       bool
	PendingCount int
}

// Projection tracks sync status. Create with New, bind a user with Bind,
// release the user with Reset, and tear the whole projection down with
// Close.
type Projection struct {
	store   *localstore.Store
	monitor connectivity.Monitor

	unsubscribe func()

	mu        sync.Mutex
	bound     bool
	online    bool
	pending   int
	sub       *localstore.Subscription
	listeners map[int]func(Snapshot)
	next      int
}

// New creates a projection. Connectivity tracking begins immediately;
// the pending count stays zero until Bind.
func New(store *localstore.Store, monitor connectivity.Monitor) *Projection {
	p := &Projection{
		store:     store,
		monitor:   monitor,
		listeners: make(map[int]func(Snapshot)),
	}
	p.unsubscribe = monitor.Subscribe(p.setOnline)
	return p
}

// Bind starts counting userID's pending changes and refreshes the online
// value. Rebinding replaces the previous user's tracking.
func (p *Projection) Bind(ctx context.Context, userID string) {
	p.Reset()

	sub := p.store.Subscribe(localstore.Query{
		OwnerID:        userID,
		DirtyOnly:      true,
		IncludeDeleted: true,
	})

	p.mu.Lock()
	p.bound = true
	p.sub = sub
	p.mu.Unlock()

	sub.AddListener(func(tasks []*task.Task) {
		p.setPending(len(tasks))
	})
	p.setOnline(p.monitor.FetchOnce(ctx))
}

// Reset unbinds the user: the pending count drops to zero and stops
// tracking. The online value is untouched; connectivity is not a property
// of the signed-in user. Change listeners stay registered and observe the
// reset. Idempotent.
func (p *Projection) Reset() {
	p.mu.Lock()
	if !p.bound {
		p.mu.Unlock()
		return
	}
	p.bound = false
	sub := p.sub
	p.sub = nil
	changed := p.pending != 0
	p.pending = 0
	p.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if changed {
		p.notify()
	}
}

// Close unbinds and stops connectivity tracking. The projection is done
// after Close.
func (p *Projection) Close() {
	p.Reset()
	p.unsubscribe()
}

// Online reports the current connectivity value.
func (p *Projection) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// PendingCount reports the number of records with unflushed local changes,
// tombstones included.
func (p *Projection) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Current returns both values as one consistent snapshot.
func (p *Projection) Current() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{Online: p.online, PendingCount: p.pending}
}

// OnChange registers fn, called with a fresh snapshot whenever either value
// changes. It fires once immediately with the current snapshot. The
// returned function unregisters; it is idempotent.
func (p *Projection) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	current := Snapshot{Online: p.online, PendingCount: p.pending}
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Projection) setOnline(online bool) {
	p.mu.Lock()
	if p.online == online {
		p.mu.Unlock()
		return
	}
	p.online = online
	p.mu.Unlock()
	p.notify()
}

func (p *Projection) setPending(n int) {
	p.mu.Lock()
	if !p.bound || p.pending == n {
		p.mu.Unlock()
		return
	}
	p.pending = n
	p.mu.Unlock()
	p.notify()
}

func (p *Projection) notify() {
	p.mu.Lock()
	current := Snapshot{Online: p.online, PendingCount: p.pending}
	fns := make([]func(Snapshot), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(current)
	}
}
