package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
)

// AppLookup resolves the generation parameters of an app.
type AppLookup interface {
	Lookup(code string) (domain.AppProfile, error)
}

// CallObserver is told about every provider call.
type CallObserver interface {
	ObserveProviderCall(provider string, outcome generation.OutcomeKind, elapsed time.Duration)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// RequestTimeout bounds a single provider call
	RequestTimeout time.Duration

	// Retry controls retries of transient failures
	Retry RetryPolicy
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:    3,
		RequestTimeout: 5 * time.Minute,
		Retry:          DefaultRetryPolicy(),
	}
}

// WorkerPool manages a pool of worker goroutines that take request ids from
// the queue and drive each job through the completion provider.
type WorkerPool struct {
	store     *Store
	queue     *Queue
	apps      AppLookup
	completer generation.Completer
	config    WorkerPoolConfig

	// wg tracks worker goroutines, retries tracks pending backoff timers
	wg      sync.WaitGroup
	retries sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx    context.Context
	cancel context.CancelFunc

	active   atomic.Int32
	busy     atomic.Int32
	started  atomic.Bool
	observer CallObserver
	logger   *slog.Logger
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	store *Store,
	queue *Queue,
	apps AppLookup,
	completer generation.Completer,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	// Apply defaults for invalid config values
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultWorkerPoolConfig().RequestTimeout
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = 1
	}

	// Create a cancelable context for shutdown coordination
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		store:     store,
		queue:     queue,
		apps:      apps,
		completer: completer,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("component", "worker_pool"),
	}
}

// SetCallObserver registers an observer for provider calls. Call before Start.
func (p *WorkerPool) SetCallObserver(observer CallObserver) {
	p.observer = observer
}

// Start launches the worker goroutines. Calling Start twice has no effect.
func (p *WorkerPool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.logger.Info("starting worker pool",
		"worker_count", p.config.WorkerCount,
		"provider", p.completer.Name())

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight provider calls and pending retries, then waits for
// every worker to exit.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.retries.Wait()
	p.logger.Info("worker pool stopped")
}

// Run starts the pool and blocks until ctx ends, then stops it.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.Start()
	select {
	case <-ctx.Done():
	case <-p.ctx.Done():
	}
	p.Stop()
	return nil
}

// ActiveWorkers returns the number of running worker goroutines.
func (p *WorkerPool) ActiveWorkers() int {
	return int(p.active.Load())
}

// Busy returns the number of workers currently handling a job.
func (p *WorkerPool) Busy() int {
	return int(p.busy.Load())
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	p.active.Add(1)
	defer p.active.Add(-1)

	p.logger.Debug("starting worker", "worker_id", id)

	for p.ctx.Err() == nil {
		requestID, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			p.logger.Debug("stopping worker", "worker_id", id, "reason", err)
			return
		}
		p.process(requestID, id)
	}
	p.logger.Debug("stopping worker", "worker_id", id, "reason", p.ctx.Err())
}

// process handles one dequeued request id.
func (p *WorkerPool) process(requestID uuid.UUID, workerID int) {
	logger := p.logger.With("request_id", requestID, "worker_id", workerID)

	job, err := p.store.Transition(p.ctx, requestID, domain.StatusQueued, domain.StatusProcessing, nil)
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) || errors.Is(err, domain.ErrJobNotFound) {
			logger.Debug("skipping request no longer queued", "error", err)
			return
		}
		logger.Error("failed to start processing", "error", err)
		return
	}

	p.busy.Add(1)
	defer p.busy.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing request", "panic", r)
			p.fail(requestID, domain.ErrorKindSystem, fmt.Sprintf("internal error: %v", r), false, logger)
		}
	}()

	logger.Info("processing request", "attempt", job.Attempts, "request_type", job.RequestType)

	profile, err := p.apps.Lookup(job.AppCode)
	if err != nil {
		logger.Error("app profile unavailable", "app_code", job.AppCode, "error", err)
		p.fail(requestID, domain.ErrorKindSystem, "app configuration unavailable", false, logger)
		return
	}

	req := generation.Request{
		Prompt:      generation.BuildPrompt(job.RequestType, job.Payload),
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
	}

	callCtx, cancel := context.WithTimeout(p.ctx, p.config.RequestTimeout)
	start := time.Now()
	outcome := p.completer.Complete(callCtx, req)
	elapsed := time.Since(start)
	timedOut := outcome.Kind != generation.OutcomeSuccess &&
		errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()

	if p.observer != nil {
		p.observer.ObserveProviderCall(p.completer.Name(), outcome.Kind, elapsed)
	}

	if p.ctx.Err() != nil && outcome.Kind != generation.OutcomeSuccess {
		p.fail(requestID, domain.ErrorKindSystem, "service shutting down", true, logger)
		return
	}

	d := decide(outcome, timedOut, job.Attempts, p.config.Retry)
	switch d.action {
	case actionComplete:
		p.complete(requestID, outcome, logger)
	case actionRetry:
		p.retry(requestID, d, logger)
	case actionFail:
		logger.Warn("request failed",
			"error_kind", d.kind,
			"attempts", job.Attempts,
			"reason", d.message)
		p.fail(requestID, d.kind, d.message, d.retryable, logger)
	}
}

func (p *WorkerPool) complete(requestID uuid.UUID, outcome generation.Outcome, logger *slog.Logger) {
	now := time.Now()
	_, err := p.store.Transition(context.Background(), requestID,
		domain.StatusProcessing, domain.StatusCompleted,
		func(j *domain.Job) { j.Complete(outcome.Result(), now) })
	if err != nil {
		// The sweeper may have expired the job while the call was in flight
		logger.Warn("discarding result", "error", err)
		return
	}
	logger.Info("request completed",
		"model", outcome.Model,
		"total_tokens", outcome.Usage.TotalTokens)
}

func (p *WorkerPool) fail(requestID uuid.UUID, kind domain.ErrorKind, message string, retryable bool, logger *slog.Logger) {
	now := time.Now()
	_, err := p.store.Transition(context.Background(), requestID,
		domain.StatusProcessing, domain.StatusError,
		func(j *domain.Job) { j.Fail(kind, message, retryable, now) })
	if err != nil {
		logger.Warn("failed to record request error", "error_kind", kind, "error", err)
	}
}

// retry returns the job to Queued and re-enqueues it after the backoff delay.
// The wait runs on its own goroutine so the worker can take the next id.
func (p *WorkerPool) retry(requestID uuid.UUID, d decision, logger *slog.Logger) {
	_, err := p.store.Transition(context.Background(), requestID,
		domain.StatusProcessing, domain.StatusQueued, nil)
	if err != nil {
		logger.Warn("failed to requeue request", "error", err)
		return
	}

	logger.Info("retrying request",
		"error_kind", d.kind,
		"reason", d.message,
		"backoff", d.delay)

	p.retries.Add(1)
	go func() {
		defer p.retries.Done()

		timer := time.NewTimer(d.delay)
		defer timer.Stop()

		select {
		case <-p.ctx.Done():
			p.abandonQueued(requestID, domain.ErrorKindSystem, "service shutting down", logger)
			return
		case <-timer.C:
		}

		if err := p.queue.Enqueue(requestID); err != nil {
			kind := domain.ErrorKindSystem
			if errors.Is(err, domain.ErrQueueFull) {
				kind = domain.ErrorKindQueueFull
			}
			logger.Warn("failed to re-enqueue request", "error", err)
			p.abandonQueued(requestID, kind, "could not re-enqueue request for retry", logger)
		}
	}()
}

func (p *WorkerPool) abandonQueued(requestID uuid.UUID, kind domain.ErrorKind, message string, logger *slog.Logger) {
	now := time.Now()
	_, err := p.store.Transition(context.Background(), requestID,
		domain.StatusQueued, domain.StatusError,
		func(j *domain.Job) { j.Fail(kind, message, true, now) })
	if err != nil {
		logger.Warn("failed to record abandoned retry", "error", err)
	}
}
