package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue(t *testing.T) {
	logger := setupTestLogger()

	queue := NewQueue(10, logger)
	assert.Equal(t, 10, queue.Cap())
	assert.Equal(t, 0, queue.Len())

	// Invalid capacity falls back to 1
	queue = NewQueue(0, logger)
	assert.Equal(t, 1, queue.Cap())
}

func TestQueueFIFO(t *testing.T) {
	queue := NewQueue(5, setupTestLogger())
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, queue.Enqueue(id))
	}

	ctx := context.Background()
	for _, want := range ids {
		got, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, queue.Len())
}

func TestEnqueueFull(t *testing.T) {
	queue := NewQueue(2, setupTestLogger())
	require.NoError(t, queue.Enqueue(uuid.New()))
	require.NoError(t, queue.Enqueue(uuid.New()))

	err := queue.Enqueue(uuid.New())
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Equal(t, 2, queue.Len())
}

func TestClose(t *testing.T) {
	queue := NewQueue(3, setupTestLogger())
	first := uuid.New()
	require.NoError(t, queue.Enqueue(first))

	queue.Close()
	// Closing twice must not panic
	queue.Close()

	assert.ErrorIs(t, queue.Enqueue(uuid.New()), ErrQueueClosed)

	// Remaining ids drain before the closed error
	got, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = queue.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDequeueBlocksUntilAvailable(t *testing.T) {
	queue := NewQueue(1, setupTestLogger())
	id := uuid.New()

	result := make(chan uuid.UUID, 1)
	go func() {
		got, err := queue.Dequeue(context.Background())
		if err == nil {
			result <- got
		}
	}()

	select {
	case <-result:
		t.Fatal("Dequeue returned before anything was enqueued")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, queue.Enqueue(id))

	select {
	case got := <-result:
		assert.Equal(t, id, got)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for Dequeue")
	}
}

func TestDequeueContextCancellation(t *testing.T) {
	queue := NewQueue(1, setupTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := queue.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDequeueCanceledContextLeavesItemsQueued(t *testing.T) {
	queue := NewQueue(3, setupTestLogger())
	first, second := uuid.New(), uuid.New()
	require.NoError(t, queue.Enqueue(first))
	require.NoError(t, queue.Enqueue(second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := queue.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, queue.Len())

	got, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, got, "a refused dequeue must not disturb FIFO order")
}

func TestQueuePosition(t *testing.T) {
	queue := NewQueue(5, setupTestLogger())
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b, c} {
		require.NoError(t, queue.Enqueue(id))
	}

	pos, ok := queue.Position(c)
	assert.True(t, ok)
	assert.Equal(t, 3, pos)

	_, err := queue.Dequeue(context.Background())
	require.NoError(t, err)

	pos, ok = queue.Position(c)
	assert.True(t, ok)
	assert.Equal(t, 2, pos)

	_, ok = queue.Position(a)
	assert.False(t, ok, "dequeued ids have no position")
}

func TestConcurrentEnqueue(t *testing.T) {
	queue := NewQueue(10, setupTestLogger())

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := queue.Enqueue(uuid.New())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 10, queue.Len())
}

func TestConcurrentDequeueDeliversOnce(t *testing.T) {
	queue := NewQueue(50, setupTestLogger())
	for i := 0; i < 50; i++ {
		require.NoError(t, queue.Enqueue(uuid.New()))
	}
	queue.Close()

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)
	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, err := queue.Dequeue(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s delivered more than once", id)
	}
}
