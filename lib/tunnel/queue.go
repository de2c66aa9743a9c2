package tunnel

import "sync"

// workQueue runs submitted tasks one at a time on a single goroutine.
// All state mutation in the coordinator happens on this goroutine, so
// operations and path reactions never interleave.
type workQueue struct {
	mu        sync.Mutex
	closed    bool
	tasks     chan queueTask
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// queueTask pairs a task with its cancellation path. Exactly one of the
// two funcs runs: abort, when the queue closes before the task is
// dispatched, so no submitter is left waiting on a discarded task.
type queueTask struct {
	run   func()
	abort func()
}

func newWorkQueue(depth int) *workQueue {
	if depth < 1 {
		depth = 16
	}
	q := &workQueue{
		tasks: make(chan queueTask, depth),
		done:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *workQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			q.drain()
			return
		case task := <-q.tasks:
			q.dispatch(task)
		}
	}
}

// dispatch runs the task, or aborts it when the close landed after the
// task was enqueued.
func (q *workQueue) dispatch(task queueTask) {
	if q.isClosed() {
		if task.abort != nil {
			task.abort()
		}
		return
	}
	task.run()
}

// drain aborts every task still buffered at close time. Tasks can only be
// enqueued before the closed flag is set, so nothing races the drain.
func (q *workQueue) drain() {
	for {
		select {
		case task := <-q.tasks:
			if task.abort != nil {
				task.abort()
			}
		default:
			return
		}
	}
}

// submit enqueues a task, blocking while the queue is full. Returns false
// if the queue has been closed; abort may be nil when the submitter does
// not wait on the task.
func (q *workQueue) submit(run, abort func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	// The worker cannot exit while the closed flag is unset, so this send
	// always finds a consumer.
	q.tasks <- queueTask{run: run, abort: abort}
	return true
}

// trySubmit enqueues a task without blocking. Returns false if the queue is
// full or closed. Used by event sources that must never stall, like the
// path monitor's delivery goroutine.
func (q *workQueue) trySubmit(run func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.tasks <- queueTask{run: run}:
		return true
	default:
		return false
	}
}

func (q *workQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// close stops the worker. Tasks that have not started are aborted, never
// silently dropped.
func (q *workQueue) close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
	q.wg.Wait()
}
