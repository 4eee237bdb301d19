// Package resolver decides, for a (local, remote) pair of the same task id,
// which version wins and what the merged record looks like.
//
// The order is last-writer-wins on UpdatedAtMillis with one deliberate
// asymmetry: the remote version wins only on a strictly greater timestamp.
// Equal timestamps leave the local record authoritative, so a pending local
// edit is never clobbered by a stale remote snapshot of itself. Two clients
// can legitimately race to the same millisecond; this tie-break is part of
// the protocol and must not change silently.
//
// Resolve is deterministic and never consults the wall clock. A document
// missing its timestamp is ordered as millisecond 0 (oldest possible),
// never treated as an error.
package resolver

import (
	"time"

	"github.com/taskwell/tasksync/internal/remote"
	"github.com/taskwell/tasksync/internal/task"
)

// Action is what the caller should do with the local record.
type Action int

const (
	// ActionNone leaves the local record untouched (local wins, or the
	// change is irrelevant).
	ActionNone Action = iota
	// ActionCreate writes a new local record built from the remote document.
	ActionCreate
	// ActionOverwrite replaces the local record's mutable fields with the
	// remote document's and clears dirty.
	ActionOverwrite
	// ActionDelete physically removes the local record (remote deletion of
	// a clean local copy).
	ActionDelete
	// ActionTombstone marks the dirty local record as deleted so the
	// deletion intent is flushed instead of silently resurrecting.
	ActionTombstone
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreate:
		return "create"
	case ActionOverwrite:
		return "overwrite"
	case ActionDelete:
		return "delete"
	case ActionTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// Decision is the resolver's verdict. Task is populated for ActionCreate,
// ActionOverwrite, and ActionTombstone; it is the exact record to write.
type Decision struct {
	Action Action
	Task   *task.Task
}

// Resolve applies the conflict rules to a remote change and the local copy
// of the same id (nil if no local copy exists). ownerID scopes a created
// record to the bound user.
func Resolve(local *task.Task, ownerID string, ch remote.Change) Decision {
	if ch.Kind == remote.ChangeRemoved {
		return resolveRemoved(local)
	}

	if local == nil {
		return Decision{Action: ActionCreate, Task: fromDoc(ch.ID, ownerID, ch.Doc)}
	}

	// Strict comparison: on a tie the local record is authoritative and the
	// pending local write flushes later.
	if ch.Doc.UpdatedAtMillis > local.UpdatedAtMillis {
		return Decision{Action: ActionOverwrite, Task: overwrite(local, ch.Doc)}
	}
	return Decision{Action: ActionNone}
}

func resolveRemoved(local *task.Task) Decision {
	if local == nil {
		return Decision{Action: ActionNone}
	}
	if !local.Dirty {
		return Decision{Action: ActionDelete}
	}
	// The local copy holds unflushed intent. Keep it as a tombstone so the
	// next flush issues the delete; deleting an already-absent remote
	// document is a no-op success.
	t := local.Clone()
	t.Deleted = true
	return Decision{Action: ActionTombstone, Task: t}
}

// fromDoc builds a local record from a remote document. The record is born
// clean: it mirrors confirmed remote state.
func fromDoc(id, ownerID string, doc remote.Doc) *task.Task {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = doc.UpdatedAt
	}
	priority, err := task.ParsePriority(doc.Priority)
	if err != nil {
		priority = task.PriorityNone
	}
	return &task.Task{
		ID:              id,
		OwnerID:         ownerID,
		Title:           doc.Title,
		Completed:       doc.Completed,
		CreatedAt:       createdAt,
		UpdatedAt:       doc.UpdatedAt,
		UpdatedAtMillis: doc.UpdatedAtMillis,
		Dirty:           false,
		Deleted:         false,
		Priority:        priority,
		DueAt:           cloneTime(doc.DueAt),
	}
}

// overwrite applies the winning remote document over the local record.
// CreatedAt is local and immutable; everything mutable comes from remote,
// and both dirty and deleted are cleared.
func overwrite(local *task.Task, doc remote.Doc) *task.Task {
	t := local.Clone()
	t.Title = doc.Title
	t.Completed = doc.Completed
	t.UpdatedAt = doc.UpdatedAt
	t.UpdatedAtMillis = doc.UpdatedAtMillis
	t.Dirty = false
	t.Deleted = false
	if priority, err := task.ParsePriority(doc.Priority); err == nil {
		t.Priority = priority
	}
	t.DueAt = cloneTime(doc.DueAt)
	return t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
