package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// ErrQueueClosed is returned by Enqueue after Close, and by Dequeue once the
// closed queue has been drained.
var ErrQueueClosed = errors.New("job queue is closed")

// Queue is a bounded FIFO of request ids. Enqueue never blocks; Dequeue
// blocks until an id is available.
type Queue struct {
	mu       sync.Mutex
	items    []uuid.UUID
	capacity int
	// avail holds one token per queued id.
	avail  chan struct{}
	done   chan struct{}
	closed bool
	logger *slog.Logger
}

// NewQueue creates a queue holding at most capacity ids.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		logger.Warn("invalid queue capacity specified, using default",
			"specified_capacity", capacity,
			"default_capacity", 1)
		capacity = 1
	}
	return &Queue{
		items:    make([]uuid.UUID, 0, capacity),
		capacity: capacity,
		avail:    make(chan struct{}, capacity),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Enqueue appends id at the tail.
// Returns domain.ErrQueueFull at capacity and ErrQueueClosed after Close.
func (q *Queue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		return fmt.Errorf("%w: queue capacity %d reached", domain.ErrQueueFull, q.capacity)
	}

	q.items = append(q.items, id)
	q.avail <- struct{}{}

	q.logger.Debug("request enqueued",
		"request_id", id,
		"queue_len", len(q.items),
		"queue_cap", q.capacity)
	return nil
}

// Dequeue removes and returns the head of the queue, waiting until an id is
// available, ctx ends, or the queue is closed and empty. Once ctx has ended
// no id is taken, so queued ids stay queued.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	select {
	case <-q.avail:
		return q.pop(), nil
	default:
	}

	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case <-q.avail:
		if err := ctx.Err(); err != nil {
			// Both were ready; hand the token back.
			q.avail <- struct{}{}
			return uuid.Nil, err
		}
		return q.pop(), nil
	case <-q.done:
		select {
		case <-q.avail:
			return q.pop(), nil
		default:
			return uuid.Nil, ErrQueueClosed
		}
	}
}

// pop is called only after taking a token, so items is never empty here.
func (q *Queue) pop() uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.items[0]
	q.items[0] = uuid.Nil
	q.items = q.items[1:]
	return id
}

// Position returns the 1-based place of id in the queue.
func (q *Queue) Position(id uuid.UUID) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, queued := range q.items {
		if queued == id {
			return i + 1, true
		}
	}
	return 0, false
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Close stops accepting ids. Already queued ids can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
		q.logger.Info("job queue closed", "remaining", len(q.items))
	}
}
