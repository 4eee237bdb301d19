// Package identity binds authentication state to the sync machinery.
//
// A sign-in starts the engine for that user and points the status
// projection at their records; a sign-out stops the engine and resets the
// projection to defaults. Transitions are serialized, so a rapid sign-out /
// sign-in sequence can never leave a listener from the old session attached
// to the new one.
package identity

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/taskwell/tasksync/internal/engine"
	"github.com/taskwell/tasksync/internal/status"
)

// Source delivers auth state changes from an external provider. The
// callback receives the signed-in user id, or "" on sign-out. The returned
// function unsubscribes.
type Source interface {
	OnAuthStateChanged(fn func(userID string)) (unsubscribe func())
}

// Binder owns the signed-in session. Create with New; drive it either
// directly with SignIn/SignOut or from a provider with Watch.
type Binder struct {
	engine     *engine.Engine
	projection *status.Projection
	logger     *log.Logger

	mu        sync.Mutex
	userID    string
	gen       uint64
	listeners map[int]func(gen uint64, userID string)
	next      int
}

// New creates a Binder over the engine and projection.
func New(eng *engine.Engine, projection *status.Projection, logger *log.Logger) *Binder {
	if logger == nil {
		logger = log.New(os.Stderr, "[identity] ", log.LstdFlags)
	}
	return &Binder{
		engine:     eng,
		projection: projection,
		logger:     logger,
		listeners:  make(map[int]func(uint64, string)),
	}
}

// SignIn starts a session for userID. Signing in the already-active user is
// a no-op; signing in over a different user tears the old session down
// first. On engine failure no session is active afterwards.
func (b *Binder) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}

	b.mu.Lock()
	if b.userID == userID {
		b.mu.Unlock()
		return nil
	}
	if b.userID != "" {
		b.teardownLocked()
	}

	b.gen++
	if err := b.engine.Start(userID); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to start session for %s: %w", userID, err)
	}
	b.projection.Bind(ctx, userID)
	b.userID = userID
	b.logger.Printf("Signed in %s (session %d)", userID, b.gen)
	notify := b.snapshotListenersLocked()
	b.mu.Unlock()

	notify()
	return nil
}

// SignOut ends the current session. Idempotent; local data stays on disk
// for the next sign-in.
func (b *Binder) SignOut() {
	b.mu.Lock()
	if b.userID == "" {
		b.mu.Unlock()
		return
	}
	userID := b.userID
	b.gen++
	b.teardownLocked()
	b.logger.Printf("Signed out %s (session %d)", userID, b.gen)
	notify := b.snapshotListenersLocked()
	b.mu.Unlock()

	notify()
}

func (b *Binder) teardownLocked() {
	b.engine.Stop()
	b.projection.Reset()
	b.userID = ""
}

// CurrentUser returns the signed-in user id, or "" when signed out.
func (b *Binder) CurrentUser() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userID
}

// Generation returns the session counter. It increments on every
// transition, so work keyed to a session can detect it has been superseded.
func (b *Binder) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// OnSession registers fn, called after every completed transition with the
// new generation and user id ("" for signed out). Observers doing async
// work compare generations and discard results from superseded sessions.
// The returned function unregisters; it is idempotent.
func (b *Binder) OnSession(fn func(gen uint64, userID string)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// snapshotListenersLocked captures the notification to deliver once the
// lock is released, so listeners may call back into the binder.
func (b *Binder) snapshotListenersLocked() func() {
	gen, userID := b.gen, b.userID
	fns := make([]func(uint64, string), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(gen, userID)
		}
	}
}

// Watch drives the binder from an auth provider until the returned stop
// function is called. Provider callbacks funnel through SignIn/SignOut, so
// out-of-order bursts still resolve to the last delivered state.
func (b *Binder) Watch(ctx context.Context, source Source) (stop func()) {
	return source.OnAuthStateChanged(func(userID string) {
		if userID == "" {
			b.SignOut()
			return
		}
		if err := b.SignIn(ctx, userID); err != nil {
			b.logger.Printf("Warning: %v", err)
		}
	})
}
