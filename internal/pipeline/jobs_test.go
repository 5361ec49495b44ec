package pipeline

import (
	"testing"
	"time"

	"github.com/palikit/canonpress/internal/matter"
)

func TestNewJob_Defaults(t *testing.T) {
	job := NewJob("ed-pli-en-test")
	if job.ID == "" {
		t.Error("expected a generated job ID")
	}
	if job.EditionID != "ed-pli-en-test" {
		t.Errorf("expected edition ID %q, got %q", "ed-pli-en-test", job.EditionID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
}

func TestNewJobID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewJobID()
		if len(id) != 26 {
			t.Fatalf("expected 26-char ULID, got %d chars: %q", len(id), id)
		}
		if seen[id] {
			t.Fatalf("duplicate job ID %q", id)
		}
		seen[id] = true
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("ed-1")

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusFetching, "fetching"},
		{StatusAssembling, "assembling"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := NewJob("ed-1")
	job.AddError("volume 1: unknown node an1.1")
	job.AddError("volume 3: upstream timeout")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "volume 1: unknown node an1.1" {
		t.Errorf("unexpected first error %q", snap.Progress.Errors[0])
	}
}

func TestJob_VolumeCounters(t *testing.T) {
	job := NewJob("ed-1")
	job.SetTotalVolumes(3)
	job.AddVolume(&matter.Volume{Number: 1})
	job.AddVolume(&matter.Volume{Number: 3})
	job.MarkVolumeFailed()

	snap := job.Snapshot()
	if snap.Progress.TotalVolumes != 3 {
		t.Errorf("expected 3 total volumes, got %d", snap.Progress.TotalVolumes)
	}
	if snap.Progress.VolumesAssembled != 2 {
		t.Errorf("expected 2 assembled, got %d", snap.Progress.VolumesAssembled)
	}
	if snap.Progress.VolumesFailed != 1 {
		t.Errorf("expected 1 failed, got %d", snap.Progress.VolumesFailed)
	}
}

func TestJob_VolumeLookup(t *testing.T) {
	job := NewJob("ed-1")
	job.AddVolume(&matter.Volume{Number: 1, Title: "Book of the Ones"})
	job.AddVolume(&matter.Volume{Number: 2, Title: "Book of the Twos"})

	v := job.Volume(2)
	if v == nil {
		t.Fatal("expected volume 2")
	}
	if v.Title != "Book of the Twos" {
		t.Errorf("expected volume 2 title, got %q", v.Title)
	}
	if job.Volume(9) != nil {
		t.Error("expected nil for missing volume")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := NewJob("ed-1")
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
