package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
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

// changeCollector accumulates change batches delivered to a listener.
type changeCollector struct {
	mu      sync.Mutex
	batches [][]Change
}

func (c *changeCollector) collect(changes []Change) {
	c.mu.Lock()
	c.batches = append(c.batches, changes)
	c.mu.Unlock()
}

func (c *changeCollector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func (c *changeCollector) last() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil
	}
	return c.batches[len(c.batches)-1]
}

func setDoc(title string) Doc {
	return Doc{Title: title, CreatedAt: time.Now().UTC()}
}

func TestServerTimestampsAreStrictlyIncreasing(t *testing.T) {
	m := NewMemory()
	// Freeze the clock: ordering must come from the monotonic bump, not
	// from wall time advancing between writes.
	frozen := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return frozen })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := m.BatchWrite(ctx, "u", []Op{{Type: OpSet, ID: "t", Doc: setDoc("v")}}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	doc, ok := m.Get("u", "t")
	if !ok {
		t.Fatal("document missing")
	}
	if doc.UpdatedAtMillis <= frozen.UnixMilli() {
		t.Errorf("timestamp %d did not advance past the frozen clock", doc.UpdatedAtMillis)
	}
}

func TestBatchWritePreservesSubmittedCreatedAt(t *testing.T) {
	m := NewMemory()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := Doc{Title: "t", CreatedAt: created}

	if err := m.BatchWrite(context.Background(), "u", []Op{{Type: OpSet, ID: "a", Doc: doc}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, _ := m.Get("u", "a")
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want the submitted %v", got.CreatedAt, created)
	}
	if got.UpdatedAt.Equal(created) {
		t.Error("UpdatedAt should be server-assigned, not the submitted value")
	}
}

func TestEmptyBatchIsNoop(t *testing.T) {
	m := NewMemory()
	if err := m.BatchWrite(context.Background(), "u", nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if m.Count("u") != 0 {
		t.Error("empty batch created documents")
	}
}

func TestDeleteAbsentSucceedsWithoutEvent(t *testing.T) {
	m := NewMemory()
	col := &changeCollector{}
	cancel, err := m.Listen(context.Background(), "u", col.collect)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	if err := m.BatchWrite(context.Background(), "u", []Op{{Type: OpDelete, ID: "ghost"}}); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if col.total() != 0 {
		t.Errorf("deleting an absent document emitted %d changes", col.total())
	}
}

func TestListenDeliversSnapshotThenLiveChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.BatchWrite(ctx, "u", []Op{
		{Type: OpSet, ID: "a", Doc: setDoc("first")},
		{Type: OpSet, ID: "b", Doc: setDoc("second")},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	col := &changeCollector{}
	cancel, err := m.Listen(ctx, "u", col.collect)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	waitFor(t, func() bool { return col.total() == 2 }, "snapshot never delivered")
	for _, ch := range col.last() {
		if ch.Kind != ChangeAdded {
			t.Errorf("snapshot change kind = %q, want added", ch.Kind)
		}
	}

	if err := m.BatchWrite(ctx, "u", []Op{{Type: OpSet, ID: "a", Doc: setDoc("updated")}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	waitFor(t, func() bool { return col.total() == 3 }, "live change never delivered")
	if last := col.last(); len(last) != 1 || last[0].Kind != ChangeModified {
		t.Errorf("live change = %+v, want one modified", last)
	}
}

func TestChangeKindsTrackDocumentLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	col := &changeCollector{}
	cancel, err := m.Listen(ctx, "u", col.collect)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	steps := []struct {
		op   Op
		want ChangeKind
	}{
		{Op{Type: OpSet, ID: "x", Doc: setDoc("v1")}, ChangeAdded},
		{Op{Type: OpSet, ID: "x", Doc: setDoc("v2")}, ChangeModified},
		{Op{Type: OpDelete, ID: "x"}, ChangeRemoved},
	}
	for i, step := range steps {
		if err := m.BatchWrite(ctx, "u", []Op{step.op}); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		want := i + 1
		waitFor(t, func() bool { return col.total() == want }, "change not delivered")
		if got := col.last()[0].Kind; got != step.want {
			t.Errorf("step %d kind = %q, want %q", i, got, step.want)
		}
	}
}

func TestListenersAreScopedToUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	col := &changeCollector{}
	cancel, err := m.Listen(ctx, "alice", col.collect)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	if err := m.BatchWrite(ctx, "bob", []Op{{Type: OpSet, ID: "b1", Doc: setDoc("bob's")}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if col.total() != 0 {
		t.Error("alice's listener saw bob's change")
	}
}

func TestCancelIsIdempotentAndStopsDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	col := &changeCollector{}
	cancel, err := m.Listen(ctx, "u", col.collect)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cancel()
	cancel() // second cancel must be harmless

	if err := m.BatchWrite(ctx, "u", []Op{{Type: OpSet, ID: "a", Doc: setDoc("v")}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if col.total() != 0 {
		t.Error("cancelled listener still received changes")
	}
}

func TestFailWritesSimulatesOutage(t *testing.T) {
	m := NewMemory()
	outage := errors.New("simulated outage")
	m.FailWrites(outage)

	err := m.BatchWrite(context.Background(), "u", []Op{{Type: OpSet, ID: "a", Doc: setDoc("v")}})
	if !errors.Is(err, outage) {
		t.Fatalf("err = %v, want the injected outage", err)
	}
	if m.Count("u") != 0 {
		t.Error("failed write committed documents")
	}

	m.FailWrites(nil)
	if err := m.BatchWrite(context.Background(), "u", []Op{{Type: OpSet, ID: "a", Doc: setDoc("v")}}); err != nil {
		t.Fatalf("write after recovery: %v", err)
	}
}
