package remote

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

func startHub(t *testing.T, store *Memory) *Hub {
	t.Helper()
	hub := NewHub(store, &HubConfig{
		Port:   0, // random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := hub.Start(); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() {
		if err := hub.Stop(); err != nil {
			t.Errorf("Failed to stop hub: %v", err)
		}
	})
	time.Sleep(50 * time.Millisecond)
	return hub
}

func newTestClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	c := NewClient(hub.URL(), log.New(io.Discard, "", 0))
	t.Cleanup(c.Close)
	return c
}

func TestHubStartStop(t *testing.T) {
	hub := startHub(t, nil)
	if hub.Addr() == "" {
		t.Fatal("hub address is empty")
	}
}

func TestClientBatchWriteRoundTrip(t *testing.T) {
	store := NewMemory()
	hub := startHub(t, store)
	client := newTestClient(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.BatchWrite(ctx, "alice", []Op{
		{Type: OpSet, ID: "t1", Doc: setDoc("over the wire")},
	})
	if err != nil {
		t.Fatalf("BatchWrite: %v", err)
	}

	doc, ok := store.Get("alice", "t1")
	if !ok || doc.Title != "over the wire" {
		t.Fatalf("hub store doc = %+v, ok=%v", doc, ok)
	}
	if doc.UpdatedAtMillis == 0 {
		t.Error("hub did not assign a server timestamp")
	}
}

func TestClientListenReceivesSnapshotAndLiveChanges(t *testing.T) {
	store := NewMemory()
	hub := startHub(t, store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Seed before attaching, so the snapshot path is exercised.
	if err := store.BatchWrite(ctx, "alice", []Op{
		{Type: OpSet, ID: "pre", Doc: setDoc("existing")},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	client := newTestClient(t, hub)
	col := &changeCollector{}
	detach, err := client.Listen(ctx, "alice", col.collect)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer detach()

	waitFor(t, func() bool { return col.total() == 1 }, "snapshot never arrived over the wire")

	// A write from a second device shows up on the feed.
	other := newTestClient(t, hub)
	if err := other.BatchWrite(ctx, "alice", []Op{
		{Type: OpSet, ID: "live", Doc: setDoc("from elsewhere")},
	}); err != nil {
		t.Fatalf("other BatchWrite: %v", err)
	}
	waitFor(t, func() bool { return col.total() == 2 }, "live change never arrived over the wire")

	last := col.last()
	if len(last) != 1 || last[0].ID != "live" || last[0].Kind != ChangeAdded {
		t.Errorf("live change = %+v", last)
	}
}

func TestClientDetachStopsFeed(t *testing.T) {
	store := NewMemory()
	hub := startHub(t, store)
	client := newTestClient(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	col := &changeCollector{}
	detach, err := client.Listen(ctx, "alice", col.collect)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	detach()
	detach() // idempotent
	time.Sleep(50 * time.Millisecond)

	if err := store.BatchWrite(ctx, "alice", []Op{
		{Type: OpSet, ID: "x", Doc: setDoc("after detach")},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if col.total() != 0 {
		t.Errorf("detached client received %d changes", col.total())
	}
}

func TestClientSurfacesHubWriteFailure(t *testing.T) {
	store := NewMemory()
	hub := startHub(t, store)
	client := newTestClient(t, hub)

	store.FailWrites(errors.New("backing store down"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.BatchWrite(ctx, "alice", []Op{{Type: OpSet, ID: "a", Doc: setDoc("v")}})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
}

func TestClientDialFailureWrapsWriteError(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/sync", log.New(io.Discard, "", 0))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.BatchWrite(ctx, "alice", []Op{{Type: OpSet, ID: "a", Doc: setDoc("v")}})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
}
