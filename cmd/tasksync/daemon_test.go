package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskwell/tasksync/internal/connectivity"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/remote"
	"github.com/taskwell/tasksync/internal/task"
)

func quietLoggers(string) *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newSessionStore(t *testing.T) *localstore.Store {
	t.Helper()
	store := localstore.New(filepath.Join(t.TempDir(), "tasks.db"), quietLoggers(""))
	if err := store.Open(); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func waitForCond(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionRunsBinderAndProjection(t *testing.T) {
	store := newSessionStore(t)
	mem := remote.NewMemory()
	monitor := connectivity.NewManual(true)

	sess, err := startSession(context.Background(), store, mem, monitor, "user-1", quietLoggers)
	if err != nil {
		t.Fatalf("startSession: %v", err)
	}

	if got := sess.binder.CurrentUser(); got != "user-1" {
		t.Fatalf("CurrentUser = %q, want user-1", got)
	}
	if !sess.projection.Online() {
		t.Error("projection should reflect the online monitor")
	}

	// A local write is visible through the projection without polling.
	tk := task.New("user-1", "daemon work", time.Now().UTC())
	if err := store.Update(func(tx *localstore.Tx) error { return tx.Put(tk) }); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := sess.projection.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1", got)
	}

	sess.stop()
	if got := sess.binder.CurrentUser(); got != "" {
		t.Errorf("CurrentUser after stop = %q, want signed out", got)
	}
	if got := sess.projection.PendingCount(); got != 0 {
		t.Errorf("PendingCount after stop = %d, want 0", got)
	}
}

func TestSessionFlushesOnReconnect(t *testing.T) {
	store := newSessionStore(t)
	mem := remote.NewMemory()
	monitor := connectivity.NewManual(false)

	sess, err := startSession(context.Background(), store, mem, monitor, "user-1", quietLoggers)
	if err != nil {
		t.Fatalf("startSession: %v", err)
	}
	defer sess.stop()

	tk := task.New("user-1", "offline work", time.Now().UTC())
	if err := store.Update(func(tx *localstore.Tx) error { return tx.Put(tk) }); err != nil {
		t.Fatalf("put: %v", err)
	}
	if mem.Count("user-1") != 0 {
		t.Fatal("nothing should reach the hub while offline")
	}

	monitor.SetOnline(true)
	waitForCond(t, func() bool { return mem.Count("user-1") == 1 },
		"reconnect never flushed the pending change")
	waitForCond(t, func() bool { return sess.projection.PendingCount() == 0 },
		"projection never observed the flush confirmation")
}
