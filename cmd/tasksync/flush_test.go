package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/task"
)

func TestMergeQuietWaitsOutTrailingWrites(t *testing.T) {
	store := newSessionStore(t)

	// A slow stream of merges: each write lands well inside the quiet
	// window, so the wait must keep extending until the stream ends.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			time.Sleep(50 * time.Millisecond)
			tk := task.New("user-1", fmt.Sprintf("merge %d", i), time.Now().UTC())
			if err := store.Update(func(tx *localstore.Tx) error { return tx.Put(tk) }); err != nil {
				t.Errorf("put: %v", err)
				return
			}
		}
	}()

	waitForMergeQuiet(context.Background(), store, "user-1", 150*time.Millisecond)

	select {
	case <-done:
	default:
		t.Error("quiet wait finished while merges were still landing")
	}
}

func TestMergeQuietHonorsContextDeadline(t *testing.T) {
	store := newSessionStore(t)

	// A stream that never goes quiet cannot hold the flush open forever.
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(30 * time.Millisecond):
				tk := task.New("user-1", "never quiet", time.Now().UTC())
				_ = store.Update(func(tx *localstore.Tx) error { return tx.Put(tk) })
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	start := time.Now()
	waitForMergeQuiet(ctx, store, "user-1", 100*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("quiet wait outlived its deadline by far: %v", elapsed)
	}
}
