package resolver

import (
	"testing"
	"time"

	"github.com/taskwell/tasksync/internal/remote"
	"github.com/taskwell/tasksync/internal/task"
)

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func localTask(millis int64, dirty bool) *task.Task {
	at := time.UnixMilli(millis).UTC()
	return &task.Task{
		ID:              "t-1",
		OwnerID:         "user-1",
		Title:           "local title",
		Completed:       false,
		CreatedAt:       base,
		UpdatedAt:       at,
		UpdatedAtMillis: millis,
		Dirty:           dirty,
		Priority:        task.PriorityNone,
	}
}

func remoteChange(kind remote.ChangeKind, millis int64) remote.Change {
	at := time.UnixMilli(millis).UTC()
	return remote.Change{
		Kind: kind,
		ID:   "t-1",
		Doc: remote.Doc{
			Title:           "remote title",
			Completed:       true,
			CreatedAt:       base,
			UpdatedAt:       at,
			UpdatedAtMillis: millis,
		},
	}
}

func TestLocalWinsOnNewerOrEqualTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		local  int64
		remote int64
	}{
		{"local newer", 200, 100},
		{"exact tie", 200, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := localTask(tt.local, true)
			d := Resolve(local, "user-1", remoteChange(remote.ChangeModified, tt.remote))
			if d.Action != ActionNone {
				t.Errorf("action = %v, want none (local authoritative)", d.Action)
			}
		})
	}
}

func TestRemoteWinsOnStrictlyNewerTimestamp(t *testing.T) {
	local := localTask(100, true)
	local.Deleted = true // even a tombstone is revived by a newer remote edit

	d := Resolve(local, "user-1", remoteChange(remote.ChangeModified, 200))
	if d.Action != ActionOverwrite {
		t.Fatalf("action = %v, want overwrite", d.Action)
	}
	got := d.Task
	if got.Title != "remote title" || !got.Completed {
		t.Errorf("mutable fields not taken from remote: %+v", got)
	}
	if got.Dirty {
		t.Error("remote win must clear dirty")
	}
	if got.Deleted {
		t.Error("remote win must clear deleted")
	}
	if got.UpdatedAtMillis != 200 {
		t.Errorf("UpdatedAtMillis = %d, want 200", got.UpdatedAtMillis)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt changed: got %v, want %v", got.CreatedAt, base)
	}
}

func TestOverwriteLeavesInputUntouched(t *testing.T) {
	local := localTask(100, true)
	_ = Resolve(local, "user-1", remoteChange(remote.ChangeModified, 200))

	if local.Title != "local title" || !local.Dirty {
		t.Error("Resolve mutated its input record")
	}
}

func TestMissingLocalCreatesCleanRecord(t *testing.T) {
	d := Resolve(nil, "user-1", remoteChange(remote.ChangeAdded, 300))
	if d.Action != ActionCreate {
		t.Fatalf("action = %v, want create", d.Action)
	}
	got := d.Task
	if got.ID != "t-1" || got.OwnerID != "user-1" {
		t.Errorf("created record misidentified: %+v", got)
	}
	if got.Dirty || got.Deleted {
		t.Error("created record must be clean and live")
	}
	if got.Priority != task.PriorityNone {
		t.Errorf("created record priority = %q, want none", got.Priority)
	}
}

func TestRemovedWithCleanLocalDeletes(t *testing.T) {
	local := localTask(100, false)
	d := Resolve(local, "user-1", remote.Change{Kind: remote.ChangeRemoved, ID: "t-1"})
	if d.Action != ActionDelete {
		t.Errorf("action = %v, want delete", d.Action)
	}
}

func TestRemovedWithDirtyLocalKeepsTombstone(t *testing.T) {
	local := localTask(100, true)
	d := Resolve(local, "user-1", remote.Change{Kind: remote.ChangeRemoved, ID: "t-1"})
	if d.Action != ActionTombstone {
		t.Fatalf("action = %v, want tombstone", d.Action)
	}
	if !d.Task.Deleted {
		t.Error("tombstone record must be marked deleted")
	}
	if !d.Task.Dirty {
		t.Error("tombstone must stay dirty so the delete intent is flushed")
	}
	if d.Task.UpdatedAtMillis != 100 {
		t.Error("tombstoning must not rewrite timestamps")
	}
}

func TestRemovedWithNoLocalIsNoop(t *testing.T) {
	d := Resolve(nil, "user-1", remote.Change{Kind: remote.ChangeRemoved, ID: "t-1"})
	if d.Action != ActionNone {
		t.Errorf("action = %v, want none", d.Action)
	}
}

func TestMissingRemoteTimestampOrdersAsOldest(t *testing.T) {
	local := localTask(1, true) // any real local edit outranks millis 0

	ch := remoteChange(remote.ChangeModified, 0)
	ch.Doc.UpdatedAt = time.Time{}

	d := Resolve(local, "user-1", ch)
	if d.Action != ActionNone {
		t.Errorf("timestampless remote beat a local edit: action = %v", d.Action)
	}
}

func TestCreateFromDocWithoutCreatedAtFallsBackToUpdatedAt(t *testing.T) {
	ch := remoteChange(remote.ChangeAdded, 500)
	ch.Doc.CreatedAt = time.Time{}

	d := Resolve(nil, "user-1", ch)
	if d.Action != ActionCreate {
		t.Fatalf("action = %v, want create", d.Action)
	}
	if !d.Task.CreatedAt.Equal(ch.Doc.UpdatedAt) {
		t.Errorf("CreatedAt = %v, want fallback to %v", d.Task.CreatedAt, ch.Doc.UpdatedAt)
	}
}
