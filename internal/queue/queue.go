// Package queue implements the bounded in-process FIFO that decouples
// the Listener (producer) from the Worker Pool (consumers). Durability is
// not this package's job: it comes from the pre-download dedup check and
// the upstream platform's own redelivery of unacknowledged events.
package queue

import (
	"context"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/externalref"
)

// Job is a descriptor handed from the Listener to a Worker: the artifact's
// identity plus the channel metadata needed to persist a ProcessedFile
// row without a second round-trip to the platform.
type Job struct {
	Ref          externalref.Ref
	ChannelTitle string
	Filename     string
}

// Queue is a bounded FIFO of capacity Q. Enqueue applies backpressure by
// blocking when full; Dequeue blocks when empty. Both respect context
// cancellation so the Supervisor can unblock a stuck producer/consumer
// during shutdown.
type Queue struct {
	ch chan Job
}

// New creates a Queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan Job, capacity)}
}

// Enqueue blocks until there is room in the queue, the context is
// cancelled, or the queue has been closed. It never drops an event: the
// Listener must not silently lose a job to backpressure.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job is available, the context is cancelled, or
// the queue is closed and drained (ok is false in that case).
func (q *Queue) Dequeue(ctx context.Context) (Job, bool) {
	select {
	case job, ok := <-q.ch:
		return job, ok
	case <-ctx.Done():
		return Job{}, false
	}
}

// Close signals that no further jobs will be enqueued. Workers still
// drain whatever is already buffered before their Dequeue loops exit.
func (q *Queue) Close() {
	close(q.ch)
}

// Len reports the number of jobs currently buffered, for shutdown-drain
// progress logging.
func (q *Queue) Len() int {
	return len(q.ch)
}
