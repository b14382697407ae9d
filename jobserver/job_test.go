package jobserver

import (
	"testing"
	"time"
)

func TestStoreEnqueueDequeue(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	j := &Job{ID: "a1", Process: "noop", Submitted: time.Now()}
	if err := store.Enqueue(j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Dequeue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "a1" || got.Status != StatusAccepted {
		t.Errorf("want accepted job a1, got %+v", got)
	}

	if _, err := store.Dequeue(); err != ErrQueueEmpty {
		t.Errorf("want ErrQueueEmpty on second dequeue, got %v", err)
	}
}

func TestStoreMoveToDoneAndGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	j := &Job{ID: "b2", Process: "noop", Submitted: time.Now()}
	store.Enqueue(j)
	got, _ := store.Dequeue()
	got.Status = StatusSuccessful
	got.Result = map[string]interface{}{"ok": true}
	if err := store.MoveToDone(got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, ok, err := store.Get("b2")
	if err != nil || !ok {
		t.Fatalf("want job found, got ok=%v err=%v", ok, err)
	}
	if found.Status != StatusSuccessful {
		t.Errorf("want successful, got %s", found.Status)
	}
}

func TestStoreRemoveQueued(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	j := &Job{ID: "c3", Process: "noop", Submitted: time.Now()}
	store.Enqueue(j)

	removed, err := store.RemoveQueued("c3")
	if err != nil || !removed {
		t.Fatalf("want removed=true, got %v err=%v", removed, err)
	}
	if _, err := store.Dequeue(); err != ErrQueueEmpty {
		t.Errorf("want empty queue after removal, got %v", err)
	}
}

func TestStoreListOrdersBySubmission(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	now := time.Now()
	store.Enqueue(&Job{ID: "later", Submitted: now.Add(time.Minute)})
	store.Enqueue(&Job{ID: "earlier", Submitted: now})

	jobs, err := store.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "earlier" {
		t.Errorf("want earlier job first, got %+v", jobs)
	}
}
