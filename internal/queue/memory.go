package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue used in tests and when running
// without Redis. Dequeue does not block; an empty queue is (nil, nil).
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []Job
	inflight map[string]Job
}

// NewMemoryQueue returns an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{inflight: make(map[string]Job)}
}

// Enqueue appends a job to the pending list.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job)
	return nil
}

// Dequeue pops the oldest pending job and marks it in flight.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	q.inflight[job.ID] = job
	return &job, nil
}

// Ack drops a finished job.
func (q *MemoryQueue) Ack(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, job.ID)
	return nil
}

// Requeue puts a job back on the pending list with its attempt count bumped.
func (q *MemoryQueue) Requeue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, job.ID)
	job.Attempts++
	q.pending = append(q.pending, job)
	return nil
}

// Len reports how many jobs are waiting.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight reports how many jobs are held by consumers.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}
