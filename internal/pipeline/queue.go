package pipeline

import (
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("thumbnail queue is full")
	// ErrQueueClosed is returned when enqueueing after Close
	ErrQueueClosed = errors.New("thumbnail queue is closed")
)

// Job asks for a thumbnail of a book's stored cover
type Job struct {
	BookID    string
	CoverType string // MIME type of the stored cover
}

// JobQueue is a bounded FIFO of thumbnail jobs. A book that already has a
// pending job is not queued twice; the newer cover type replaces the older.
type JobQueue struct {
	pending  []Job
	queued   map[string]int // book ID -> index in pending
	capacity int
	closed   bool
	notify   chan struct{}
	mu       sync.Mutex
}

// NewJobQueue creates a queue holding at most capacity pending jobs
func NewJobQueue(capacity int) *JobQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &JobQueue{
		pending:  make([]Job, 0, capacity),
		queued:   make(map[string]int),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue adds a job, coalescing it with a pending job for the same book
func (q *JobQueue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if i, ok := q.queued[job.BookID]; ok {
		q.pending[i] = job
		return nil
	}
	if len(q.pending) >= q.capacity {
		return ErrQueueFull
	}

	q.queued[job.BookID] = len(q.pending)
	q.pending = append(q.pending, job)
	q.signal()
	return nil
}

// DequeueNext returns the oldest pending job, or false if none is available
func (q *JobQueue) DequeueNext() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Job{}, false
	}

	job := q.pending[0]
	q.pending = q.pending[1:]
	delete(q.queued, job.BookID)
	for id, i := range q.queued {
		q.queued[id] = i - 1
	}

	// wake another worker while work remains
	if len(q.pending) > 0 && !q.closed {
		q.signal()
	}
	return job, true
}

// Len returns the number of pending jobs
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Ready is signalled when jobs are enqueued and closed by Close
func (q *JobQueue) Ready() <-chan struct{} {
	return q.notify
}

// Close signals that no more jobs will be added. Pending jobs stay dequeueable.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// signal must be called with mu held
func (q *JobQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
