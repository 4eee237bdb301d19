// Package engine drives bidirectional synchronization between the local
// store and the remote document store for one signed-in user.
//
// The engine owns the sync lifecycle: it watches connectivity, and on every
// transition to online it first flushes pending local changes (dirty
// records and tombstones) to the remote store, then attaches a change
// listener for the user's collection. Remote change batches are applied to
// the local store in a single transaction each, with conflicts settled by
// the resolver. Going offline detaches the listener; local writes keep
// accumulating as dirty records until the next flush.
//
// Local records are the UI's only read path. Remote data reaches the UI
// exclusively by being merged into the local store first.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/taskwell/tasksync/internal/connectivity"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/remote"
	"github.com/taskwell/tasksync/internal/resolver"
	"github.com/taskwell/tasksync/internal/task"
)

// ErrNotRunning is returned by operations that need a started engine.
var ErrNotRunning = errors.New("sync engine not running")

// Config holds the engine's collaborators. Store, Remote, and Monitor are
// required.
type Config struct {
	Store   *localstore.Store
	Remote  remote.Store
	Monitor connectivity.Monitor

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger
}

// Engine synchronizes one user's tasks. Create with New, bind a user with
// Start, release with Stop. A stopped engine can be started again, for the
// same user or a different one.
type Engine struct {
	store   *localstore.Store
	remote  remote.Store
	monitor connectivity.Monitor
	logger  *log.Logger

	// flushMu serializes flushes so an online transition and a manual
	// FlushPendingToRemote cannot interleave their snapshot/confirm phases.
	flushMu sync.Mutex

	mu           sync.Mutex
	running      bool
	online       bool
	userID       string
	ctx          context.Context
	cancel       context.CancelFunc
	unsubscribe  func()
	cancelListen func()
}

// New creates an Engine from config.
func New(config *Config) (*Engine, error) {
	if config == nil || config.Store == nil || config.Remote == nil || config.Monitor == nil {
		return nil, fmt.Errorf("engine config requires store, remote, and monitor")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:   config.Store,
		remote:  config.Remote,
		monitor: config.Monitor,
		logger:  logger,
	}, nil
}

// Start binds the engine to userID and begins syncing. It opens the local
// store, reads the current connectivity value, and if online performs the
// initial flush-then-attach. Starting an engine that is already running for
// the same user is a no-op; for a different user it is an error (Stop
// first).
func (e *Engine) Start(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}

	e.mu.Lock()
	if e.running {
		current := e.userID
		e.mu.Unlock()
		if current == userID {
			return nil
		}
		return fmt.Errorf("engine already running for user %s", current)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.online = false
	e.userID = userID
	e.ctx = ctx
	e.cancel = cancel
	e.mu.Unlock()

	if err := e.store.Open(); err != nil {
		e.mu.Lock()
		e.running = false
		e.userID = ""
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("cannot start sync: %w", err)
	}

	// Subscribe before the initial fetch so a transition in the gap is not
	// lost; handleConnectivity ignores non-transitions.
	e.mu.Lock()
	e.unsubscribe = e.monitor.Subscribe(e.handleConnectivity)
	e.mu.Unlock()

	e.logger.Printf("Starting sync for user %s", userID)
	e.handleConnectivity(e.monitor.FetchOnce(ctx))
	return nil
}

// Stop detaches the remote listener, unsubscribes from connectivity, and
// unbinds the user. Idempotent. Local data is left in place.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	userID := e.userID
	unsubscribe := e.unsubscribe
	cancelListen := e.cancelListen
	cancel := e.cancel
	e.running = false
	e.online = false
	e.userID = ""
	e.unsubscribe = nil
	e.cancelListen = nil
	e.ctx = nil
	e.cancel = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancelListen != nil {
		cancelListen()
	}
	if cancel != nil {
		cancel()
	}
	e.logger.Printf("Stopped sync for user %s", userID)
}

// Running reports whether a user is bound.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// UserID returns the bound user id, or "" when stopped.
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// handleConnectivity reacts to online/offline transitions. It runs on the
// monitor's notification path and on Start's initial fetch.
func (e *Engine) handleConnectivity(online bool) {
	e.mu.Lock()
	if !e.running || e.online == online {
		e.mu.Unlock()
		return
	}
	e.online = online
	ctx := e.ctx
	userID := e.userID
	cancelListen := e.cancelListen
	e.cancelListen = nil
	e.mu.Unlock()

	// Any transition invalidates the current listener: offline because the
	// feed is dead, online because flush-then-attach restarts it cleanly.
	if cancelListen != nil {
		cancelListen()
	}

	if !online {
		e.logger.Printf("Offline; queueing local changes for user %s", userID)
		return
	}

	e.logger.Printf("Online; flushing pending changes for user %s", userID)
	if err := e.flush(ctx, userID); err != nil {
		// Affected records stay dirty and retry on the next transition or
		// manual flush. The listener still attaches so remote edits land.
		e.logger.Printf("Warning: flush failed: %v", err)
	}
	e.attach(ctx, userID)
}

// attach subscribes to the user's remote change feed, replacing any
// previous listener.
func (e *Engine) attach(ctx context.Context, userID string) {
	cancel, err := e.remote.Listen(ctx, userID, func(changes []remote.Change) {
		if err := e.applyChanges(userID, changes); err != nil {
			e.logger.Printf("Warning: failed to apply %d remote changes: %v", len(changes), err)
		}
	})
	if err != nil {
		e.logger.Printf("Warning: %v: %v", remote.ErrListener, err)
		return
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		cancel()
		return
	}
	if prev := e.cancelListen; prev != nil {
		defer prev()
	}
	e.cancelListen = cancel
	e.mu.Unlock()
}

// FlushPendingToRemote pushes every dirty record and tombstone of the bound
// user to the remote store, then confirms: dirty bits are cleared and
// confirmed tombstones physically removed. The operation is all-or-nothing
// on the remote side; on failure every record keeps its dirty bit.
func (e *Engine) FlushPendingToRemote(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	userID := e.userID
	e.mu.Unlock()
	return e.flush(ctx, userID)
}

func (e *Engine) flush(ctx context.Context, userID string) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	pending, err := e.store.List(localstore.Query{
		OwnerID:        userID,
		DirtyOnly:      true,
		IncludeDeleted: true,
	})
	if err != nil {
		return fmt.Errorf("failed to read pending changes: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	// Snapshot each record's version before the network round trip. Only
	// records still at their snapshotted version are confirmed afterwards;
	// anything edited mid-flight keeps its dirty bit for the next flush.
	ops := make([]remote.Op, 0, len(pending))
	snapshot := make(map[string]int64, len(pending))
	for _, tk := range pending {
		snapshot[tk.ID] = tk.UpdatedAtMillis
		if tk.Deleted {
			ops = append(ops, remote.Op{Type: remote.OpDelete, ID: tk.ID})
		} else {
			ops = append(ops, remote.Op{Type: remote.OpSet, ID: tk.ID, Doc: docFromTask(tk)})
		}
	}

	if err := e.remote.BatchWrite(ctx, userID, ops); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrWriteFailed, err)
	}
	e.logger.Printf("Flushed %d pending changes for user %s", len(ops), userID)

	return e.store.Update(func(tx *localstore.Tx) error {
		for id, millis := range snapshot {
			current, err := tx.Get(id)
			if errors.Is(err, localstore.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if current.UpdatedAtMillis != millis {
				continue
			}
			if current.Deleted {
				// Deletion confirmed remotely; the tombstone has served its
				// purpose.
				if err := tx.Delete(id); err != nil {
					return err
				}
				continue
			}
			current.Dirty = false
			if err := tx.Put(current); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyChanges merges one remote change batch into the local store in a
// single transaction.
func (e *Engine) applyChanges(userID string, changes []remote.Change) error {
	if len(changes) == 0 {
		return nil
	}
	return e.store.Update(func(tx *localstore.Tx) error {
		for _, ch := range changes {
			local, err := tx.Get(ch.ID)
			if errors.Is(err, localstore.ErrNotFound) {
				local = nil
			} else if err != nil {
				return err
			}

			d := resolver.Resolve(local, userID, ch)
			switch d.Action {
			case resolver.ActionNone:
			case resolver.ActionCreate, resolver.ActionOverwrite, resolver.ActionTombstone:
				if err := tx.Put(d.Task); err != nil {
					return err
				}
			case resolver.ActionDelete:
				if err := tx.Delete(ch.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// docFromTask builds the remote representation of a local record. Local
// bookkeeping fields never leave the device.
func docFromTask(tk *task.Task) remote.Doc {
	doc := remote.Doc{
		Title:           tk.Title,
		Completed:       tk.Completed,
		CreatedAt:       tk.CreatedAt,
		Priority:        string(tk.Priority),
		UpdatedAt:       tk.UpdatedAt,
		UpdatedAtMillis: tk.UpdatedAtMillis,
	}
	if tk.DueAt != nil {
		due := *tk.DueAt
		doc.DueAt = &due
	}
	return doc
}
