// Package task defines the task record, the unit of synchronization.
//
// The record is deliberately flat with last-write-wins semantics: every
// mutation bumps UpdatedAt/UpdatedAtMillis, and the conflict resolver orders
// concurrent versions by the millisecond timestamp alone. UpdatedAtMillis is
// kept as a redundant integer projection of UpdatedAt so store predicates and
// the resolver can compare versions without parsing dates.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority classifies a task for display ordering. The zero value on disk
// is "none".
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow, PriorityNone:
		return true
	}
	return false
}

// ParsePriority converts a user-supplied string to a Priority.
// An empty string maps to PriorityNone.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNone, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q (want high, medium, low, or none)", s)
	}
	return p, nil
}

// Task is a single task record as stored locally.
//
// ID is generated at creation time and is the join key with the remote
// store (remote document id == local ID). CreatedAt is immutable after
// creation; edits must never overwrite it.
//
// Dirty marks local changes not yet confirmed accepted by the remote store.
// Deleted is a soft-delete tombstone: the record stays in local storage so a
// dirty deletion can still be flushed, and is physically removed only once
// the deletion is confirmed synced.
type Task struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	Completed       bool       `json:"completed"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	UpdatedAtMillis int64      `json:"updated_at_millis"`
	Dirty           bool       `json:"dirty"`
	Deleted         bool       `json:"deleted"`
	Priority        Priority   `json:"priority"`
	DueAt           *time.Time `json:"due_at,omitempty"`
}

// New creates a task owned by ownerID with a freshly generated id.
// The task starts dirty: it exists locally and has never been flushed.
func New(ownerID, title string, now time.Time) *Task {
	t := &Task{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		Priority:  PriorityNone,
	}
	t.Touch(now)
	return t
}

// Touch records a local mutation at the given instant: it refreshes both
// timestamp forms and marks the record dirty. Remote-merge writes must NOT
// call Touch; they carry the remote timestamp and clear Dirty instead.
func (t *Task) Touch(now time.Time) {
	t.UpdatedAt = now
	t.UpdatedAtMillis = now.UnixMilli()
	t.Dirty = true
}

// Validate checks structural invariants of the record.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if t.UpdatedAtMillis != t.UpdatedAt.UnixMilli() {
		return fmt.Errorf("updated_at_millis %d does not match updated_at (%d)",
			t.UpdatedAtMillis, t.UpdatedAt.UnixMilli())
	}
	return nil
}

// SetDefaults applies default values for optional fields. This keeps records
// loaded from older schema versions consistent with new ones.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityNone
	}
}

// Clone returns a deep copy. Listener callbacks receive clones so observers
// can never mutate store state behind a transaction's back.
func (t *Task) Clone() *Task {
	c := *t
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	return &c
}
