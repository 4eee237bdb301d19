// Package remote defines the remote document store contract the sync engine
// pushes to and listens on, plus three implementations: an in-memory store
// for tests, a WebSocket hub server, and a WebSocket client.
//
// The remote store holds a per-user collection of task documents keyed by
// the same id as the local store. It supports batched writes (set-with-merge
// and delete) and snapshot listening with per-document change events. On
// every set the server assigns the document's updated_at timestamp from its
// own clock, so conflict ordering across devices never depends on client
// clocks.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrWriteFailed wraps any failure to commit a batch to the remote store.
// The engine reacts by leaving the affected records dirty for the next flush.
var ErrWriteFailed = errors.New("remote write failed")

// ErrListener wraps change-subscription failures. The engine recovers by
// re-attaching on the next online transition.
var ErrListener = errors.New("remote listener error")

// Doc is the remote representation of a task. It carries only the mutable
// user-visible fields plus created_at; local bookkeeping (dirty, deleted,
// owner scoping) never leaves the device.
type Doc struct {
	Title           string     `json:"title"`
	Completed       bool       `json:"completed"`
	CreatedAt       time.Time  `json:"created_at"`
	Priority        string     `json:"priority,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	UpdatedAtMillis int64      `json:"updated_at_millis"`
}

// OpType discriminates batch operations.
type OpType string

const (
	// OpSet upserts a document with merge semantics. The submitted
	// created_at is preserved; updated_at is replaced by the server's clock.
	OpSet OpType = "set"
	// OpDelete removes a document. Deleting an absent document succeeds.
	OpDelete OpType = "delete"
)

// Op is one entry of a batched write.
type Op struct {
	Type OpType `json:"op"`
	ID   string `json:"id"`
	Doc  Doc    `json:"doc,omitempty"`
}

// ChangeKind tags a change-feed event.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is one document event from the change feed. Removed changes carry
// a zero Doc.
type Change struct {
	Kind ChangeKind `json:"kind"`
	ID   string     `json:"id"`
	Doc  Doc        `json:"doc,omitempty"`
}

// Store is the remote document store as the sync engine sees it.
//
// Implementations must deliver an initial snapshot (every existing document
// as an added change) to a freshly attached listener, then deliver
// subsequent changes in commit order. Change batches arrive on a dedicated
// goroutine per listener; a slow handler delays only its own feed.
type Store interface {
	// BatchWrite commits ops atomically for the given user.
	// An empty batch is a no-op.
	BatchWrite(ctx context.Context, userID string, ops []Op) error

	// Listen attaches a change listener for the user's collection. The
	// returned cancel function detaches it; cancel is idempotent.
	Listen(ctx context.Context, userID string, fn func([]Change)) (cancel func(), err error)
}
