package tunnel

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkQueueRunsTasksInOrder(t *testing.T) {
	q := newWorkQueue(8)
	defer q.close()

	results := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		if !q.submit(func() { results <- i }, nil) {
			t.Fatalf("submit %d failed", i)
		}
	}
	for want := 1; want <= 3; want++ {
		select {
		case got := <-results:
			if got != want {
				t.Fatalf("task %d ran before task %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("task %d never ran", want)
		}
	}
}

func TestWorkQueueSubmitAfterClose(t *testing.T) {
	q := newWorkQueue(4)
	q.close()

	if q.submit(func() {}, nil) {
		t.Error("submit after close must fail")
	}
	if q.trySubmit(func() {}) {
		t.Error("trySubmit after close must fail")
	}
}

func TestWorkQueueAbortsPendingTaskOnClose(t *testing.T) {
	q := newWorkQueue(4)

	started := make(chan struct{})
	release := make(chan struct{})
	if !q.submit(func() { close(started); <-release }, nil) {
		t.Fatal("submit failed")
	}
	<-started

	// Enqueued behind the blocked task; the close must land before the
	// worker reaches it.
	aborted := make(chan struct{})
	var ran atomic.Bool
	if !q.submit(func() { ran.Store(true) }, func() { close(aborted) }) {
		t.Fatal("submit failed")
	}

	closed := make(chan struct{})
	go func() {
		q.close()
		close(closed)
	}()
	waitUntil(t, q.isClosed, "queue never marked closed")
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close never returned")
	}
	select {
	case <-aborted:
	default:
		t.Error("pending task was discarded without its abort running")
	}
	if ran.Load() {
		t.Error("pending task ran after close")
	}
}
