package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
	"github.com/phrazzld/flashcards-ai-queue/internal/registry"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedCompleter returns the scripted outcomes in order, repeating the
// last one. fn, when set, takes precedence.
type scriptedCompleter struct {
	mu       sync.Mutex
	outcomes []generation.Outcome
	fn       func(ctx context.Context, req generation.Request) generation.Outcome
	calls    atomic.Int32
	requests []generation.Request
}

func (c *scriptedCompleter) Complete(ctx context.Context, req generation.Request) generation.Outcome {
	n := int(c.calls.Add(1))
	c.mu.Lock()
	c.requests = append(c.requests, req)
	fn := c.fn
	var out generation.Outcome
	if len(c.outcomes) > 0 {
		idx := n - 1
		if idx >= len(c.outcomes) {
			idx = len(c.outcomes) - 1
		}
		out = c.outcomes[idx]
	}
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return out
}

func (c *scriptedCompleter) Name() string { return "scripted" }

func (c *scriptedCompleter) Ready() bool { return true }

func (c *scriptedCompleter) lastRequest() generation.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func success(text string) generation.Outcome {
	return generation.Success(text, "test-model", domain.TokenUsage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5})
}

type poolFixture struct {
	store     *Store
	queue     *Queue
	pool      *WorkerPool
	completer *scriptedCompleter
}

func newPoolFixture(t *testing.T, completer *scriptedCompleter, config WorkerPoolConfig) *poolFixture {
	t.Helper()
	logger := setupTestLogger()
	store := NewStore(logger)
	queue := NewQueue(10, logger)
	pool := NewWorkerPool(store, queue, registry.Default(), completer, config, logger)
	t.Cleanup(pool.Stop)
	return &poolFixture{store: store, queue: queue, pool: pool, completer: completer}
}

func (f *poolFixture) submit(t *testing.T, appCode, requestType, payload string) uuid.UUID {
	t.Helper()
	job, err := f.store.Create(context.Background(), appCode, requestType, payload)
	require.NoError(t, err)
	require.NoError(t, f.queue.Enqueue(job.ID))
	return job.ID
}

func waitForTerminal(t *testing.T, store *Store, id uuid.UUID) domain.Job {
	t.Helper()
	var job domain.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = store.Get(id)
		return err == nil && job.Status.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached a terminal status", id)
	return job
}

func fastRetry(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}
