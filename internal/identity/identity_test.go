package identity

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskwell/tasksync/internal/connectivity"
	"github.com/taskwell/tasksync/internal/engine"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/remote"
	"github.com/taskwell/tasksync/internal/status"
	"github.com/taskwell/tasksync/internal/task"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func setup(t *testing.T) (*Binder, *localstore.Store, *status.Projection) {
	t.Helper()
	store := localstore.New(filepath.Join(t.TempDir(), "tasks.db"), quietLogger())
	monitor := connectivity.NewManual(true)
	eng, err := engine.New(&engine.Config{
		Store:   store,
		Remote:  remote.NewMemory(),
		Monitor: monitor,
		Logger:  quietLogger(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	projection := status.New(store, monitor)
	b := New(eng, projection, quietLogger())
	t.Cleanup(func() {
		b.SignOut()
		_ = store.Close()
	})
	return b, store, projection
}

func TestSignInStartsSession(t *testing.T) {
	b, store, projection := setup(t)

	if err := b.SignIn(context.Background(), "alice"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if got := b.CurrentUser(); got != "alice" {
		t.Fatalf("CurrentUser = %q, want alice", got)
	}
	if !projection.Online() {
		t.Error("projection should mirror the monitor once bound")
	}

	// The projection is live for the signed-in user: a local write counts
	// as pending immediately.
	tk := task.New("alice", "first task", time.Now().UTC())
	if err := store.Update(func(tx *localstore.Tx) error { return tx.Put(tk) }); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := projection.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1", got)
	}
}

func TestSignInSameUserIsNoop(t *testing.T) {
	b, _, _ := setup(t)
	if err := b.SignIn(context.Background(), "alice"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	gen := b.Generation()
	if err := b.SignIn(context.Background(), "alice"); err != nil {
		t.Fatalf("repeat SignIn: %v", err)
	}
	if b.Generation() != gen {
		t.Error("repeat sign-in of the active user must not start a new session")
	}
}

func TestSignInOverDifferentUserSwitchesSessions(t *testing.T) {
	b, _, _ := setup(t)
	if err := b.SignIn(context.Background(), "alice"); err != nil {
		t.Fatalf("SignIn alice: %v", err)
	}
	if err := b.SignIn(context.Background(), "bob"); err != nil {
		t.Fatalf("SignIn bob: %v", err)
	}
	if got := b.CurrentUser(); got != "bob" {
		t.Fatalf("CurrentUser = %q, want bob", got)
	}
}

func TestSignOutIsIdempotent(t *testing.T) {
	b, _, _ := setup(t)
	if err := b.SignIn(context.Background(), "alice"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	b.SignOut()
	gen := b.Generation()
	b.SignOut()
	if b.Generation() != gen {
		t.Error("redundant SignOut bumped the session generation")
	}
	if b.CurrentUser() != "" {
		t.Error("CurrentUser should be empty after SignOut")
	}
}

func TestRapidTransitionsProduceMonotonicGenerations(t *testing.T) {
	b, _, _ := setup(t)

	var gens []uint64
	unsubscribe := b.OnSession(func(gen uint64, _ string) { gens = append(gens, gen) })
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		user := fmt.Sprintf("user-%d", i)
		if err := b.SignIn(context.Background(), user); err != nil {
			t.Fatalf("SignIn %s: %v", user, err)
		}
		b.SignOut()
	}

	if len(gens) != 10 {
		t.Fatalf("got %d session notifications, want 10", len(gens))
	}
	for i := 1; i < len(gens); i++ {
		if gens[i] <= gens[i-1] {
			t.Fatalf("generations not strictly increasing: %v", gens)
		}
	}
	if b.CurrentUser() != "" {
		t.Error("should end signed out")
	}
}

type fakeSource struct {
	fn func(string)
}

func (s *fakeSource) OnAuthStateChanged(fn func(string)) func() {
	s.fn = fn
	return func() { s.fn = nil }
}

func (s *fakeSource) emit(userID string) {
	if s.fn != nil {
		s.fn(userID)
	}
}

func TestWatchFollowsProviderState(t *testing.T) {
	b, _, _ := setup(t)
	src := &fakeSource{}
	stop := b.Watch(context.Background(), src)
	defer stop()

	src.emit("alice")
	if b.CurrentUser() != "alice" {
		t.Fatalf("CurrentUser = %q, want alice", b.CurrentUser())
	}
	src.emit("")
	if b.CurrentUser() != "" {
		t.Fatal("provider sign-out not applied")
	}

	stop()
	src.emit("bob")
	if b.CurrentUser() != "" {
		t.Error("stopped watch still applied provider state")
	}
}
