package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/platform/logger"
	"github.com/phrazzld/flashcards-ai-queue/internal/ratelimit"
	"github.com/phrazzld/flashcards-ai-queue/internal/task"
)

// Submission outcomes reported to the SubmissionObserver.
const (
	OutcomeAccepted        = "accepted"
	OutcomeUnknownApp      = "unknown_app"
	OutcomeUnsupportedType = "unsupported_type"
	OutcomeInvalid         = "invalid"
	OutcomeRateLimited     = "rate_limited"
	OutcomeQueueFull       = "queue_full"
	OutcomeError           = "error"
)

// unknownAppLabel replaces unregistered app codes in observations so callers
// cannot grow label sets without bound.
const unknownAppLabel = "unknown"

// AppDirectory resolves and lists registered apps.
type AppDirectory interface {
	Lookup(code string) (domain.AppProfile, error)
	List() []domain.AppProfile
}

// Archive looks up jobs that have been purged from memory.
type Archive interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Job, error)
}

// Workers reports worker pool activity.
type Workers interface {
	ActiveWorkers() int
	Busy() int
}

// Provider reports which completion provider is configured.
type Provider interface {
	Name() string
	Ready() bool
}

// SubmissionObserver is told the outcome of every Submit call.
type SubmissionObserver interface {
	ObserveSubmission(appCode, outcome string)
}

// GatewayConfig holds the admission and polling settings.
type GatewayConfig struct {
	// MaxPayloadChars is the longest accepted payload, in characters
	MaxPayloadChars int

	// EstimatedSecondsPerJob multiplies the queue position into a wait estimate
	EstimatedSecondsPerJob int
}

// DefaultGatewayConfig returns a GatewayConfig with reasonable defaults
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxPayloadChars:        20000,
		EstimatedSecondsPerJob: 30,
	}
}

// Snapshot is a point-in-time view of a job for pollers.
type Snapshot struct {
	Job domain.Job

	// Position is the 1-based place in the queue; zero unless the job is queued
	Position int

	// EstimatedWait is Position times the per-job estimate
	EstimatedWait time.Duration

	// Archived is true when the job came from the archive
	Archived bool
}

// Stats summarizes the service for health checks.
type Stats struct {
	QueueSize     int
	QueueCapacity int
	Counts        map[domain.Status]int
	TotalJobs     int
	ActiveWorkers int
	BusyWorkers   int
	Uptime        time.Duration
	Provider      string
	ProviderReady bool
}

// GatewayOption configures optional collaborators of a RequestGateway.
type GatewayOption func(*RequestGateway)

// WithArchive makes Poll fall back to archive for ids no longer in memory.
func WithArchive(archive Archive) GatewayOption {
	return func(g *RequestGateway) { g.archive = archive }
}

// WithWorkers reports pool activity in Stats.
func WithWorkers(workers Workers) GatewayOption {
	return func(g *RequestGateway) { g.workers = workers }
}

// WithProvider reports the completion provider in Stats.
func WithProvider(provider Provider) GatewayOption {
	return func(g *RequestGateway) { g.provider = provider }
}

// WithSubmissionObserver reports every Submit outcome to observer.
func WithSubmissionObserver(observer SubmissionObserver) GatewayOption {
	return func(g *RequestGateway) { g.observer = observer }
}

// WithGatewayClock overrides the clock used for uptime.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *RequestGateway) { g.now = now }
}

// RequestGateway admits requests into the queue and answers polls.
type RequestGateway struct {
	apps     AppDirectory
	limiter  ratelimit.Limiter
	store    *task.Store
	queue    *task.Queue
	archive  Archive
	workers  Workers
	provider Provider
	observer SubmissionObserver
	config   GatewayConfig
	now      func() time.Time
	started  time.Time
	logger   *slog.Logger
}

// NewRequestGateway creates a RequestGateway.
func NewRequestGateway(
	apps AppDirectory,
	limiter ratelimit.Limiter,
	store *task.Store,
	queue *task.Queue,
	config GatewayConfig,
	logger *slog.Logger,
	opts ...GatewayOption,
) *RequestGateway {
	defaults := DefaultGatewayConfig()
	if config.MaxPayloadChars <= 0 {
		config.MaxPayloadChars = defaults.MaxPayloadChars
	}
	if config.EstimatedSecondsPerJob < 0 {
		config.EstimatedSecondsPerJob = defaults.EstimatedSecondsPerJob
	}

	g := &RequestGateway{
		apps:    apps,
		limiter: limiter,
		store:   store,
		queue:   queue,
		config:  config,
		now:     time.Now,
		logger:  logger.With("component", "request_gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.started = g.now()
	return g
}

// Submit validates and admits one request, returning its id.
//
// Checks run in order: app code, request type, payload, rate limit, queue
// slot. A request rejected before the rate limit check consumes no quota.
// When no queue slot is available the created job is moved to Error with
// kind queue_full and domain.ErrQueueFull is returned.
func (g *RequestGateway) Submit(ctx context.Context, appCode, requestType, payload string) (uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, g.logger).With("app_code", appCode, "request_type", requestType)

	profile, err := g.apps.Lookup(appCode)
	if err != nil {
		g.observe(unknownAppLabel, OutcomeUnknownApp)
		log.Warn("rejected request from unknown app")
		return uuid.Nil, err
	}

	if !profile.Allows(requestType) {
		g.observe(appCode, OutcomeUnsupportedType)
		return uuid.Nil, fmt.Errorf("%w: %q is not available to %s",
			domain.ErrUnsupportedRequestType, requestType, profile.Name)
	}

	if err := g.validatePayload(payload); err != nil {
		g.observe(appCode, OutcomeInvalid)
		return uuid.Nil, err
	}

	decision, err := g.limiter.Admit(ctx, profile)
	if err != nil {
		g.observe(appCode, OutcomeError)
		log.Error("rate limiter unavailable", "error", err)
		return uuid.Nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !decision.Allowed {
		g.observe(appCode, OutcomeRateLimited)
		log.Info("request rate limited", "retry_after", decision.RetryAfter)
		return uuid.Nil, &RateLimitError{AppCode: appCode, RetryAfter: decision.RetryAfter}
	}

	job, err := g.store.Create(ctx, appCode, requestType, payload)
	if err != nil {
		g.observe(appCode, OutcomeError)
		log.Error("failed to create job", "error", err)
		return uuid.Nil, fmt.Errorf("failed to create job: %w", err)
	}
	log = log.With("request_id", job.ID)

	if err := g.queue.Enqueue(job.ID); err != nil {
		kind, outcome := domain.ErrorKindSystem, OutcomeError
		if errors.Is(err, domain.ErrQueueFull) {
			kind, outcome = domain.ErrorKindQueueFull, OutcomeQueueFull
		}
		g.rollback(ctx, job.ID, kind, err, log)
		g.observe(appCode, outcome)
		if kind == domain.ErrorKindQueueFull {
			log.Warn("queue full, request rejected", "capacity", g.queue.Cap())
			return uuid.Nil, err
		}
		log.Error("failed to enqueue job", "error", err)
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	g.observe(appCode, OutcomeAccepted)
	log.Info("request queued")
	return job.ID, nil
}

func (g *RequestGateway) validatePayload(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest,
			domain.NewValidationError("request", "cannot be empty", domain.ErrValidation))
	}
	if n := utf8.RuneCountInString(payload); n > g.config.MaxPayloadChars {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest,
			domain.NewValidationError("request",
				fmt.Sprintf("is %d characters, limit is %d", n, g.config.MaxPayloadChars),
				domain.ErrValidation))
	}
	return nil
}

// rollback ends a job that never got a queue slot.
func (g *RequestGateway) rollback(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, cause error, log *slog.Logger) {
	_, err := g.store.Transition(ctx, id, domain.StatusQueued, domain.StatusError, func(j *domain.Job) {
		j.Error = &domain.JobError{
			Kind:      kind,
			Message:   cause.Error(),
			Retryable: true,
		}
	})
	if err != nil {
		log.Error("failed to roll back unqueued job", "error", err)
	}
}

func (g *RequestGateway) observe(appCode, outcome string) {
	if g.observer != nil {
		g.observer.ObserveSubmission(appCode, outcome)
	}
}

// Poll returns the current state of a request. It never changes job state.
func (g *RequestGateway) Poll(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	job, err := g.store.Get(id)
	if errors.Is(err, domain.ErrJobNotFound) && g.archive != nil {
		return g.pollArchive(ctx, id)
	}
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Job: job}
	if job.Status == domain.StatusQueued {
		pos, ok := g.queue.Position(id)
		if !ok {
			// waiting out a retry backoff; it will rejoin at the tail
			pos = g.queue.Len() + 1
		}
		snap.Position = pos
		snap.EstimatedWait = time.Duration(pos*g.config.EstimatedSecondsPerJob) * time.Second
	}
	return snap, nil
}

func (g *RequestGateway) pollArchive(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	job, err := g.archive.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrJobNotFound) {
			logger.FromContextOrDefault(ctx, g.logger).Error("archive lookup failed",
				"error", err,
				"request_id", id)
		}
		return Snapshot{}, domain.ErrJobNotFound
	}
	return Snapshot{Job: job, Archived: true}, nil
}

// Apps lists the registered apps sorted by code.
func (g *RequestGateway) Apps() []domain.AppProfile {
	return g.apps.List()
}

// Stats returns a summary of queue, job and worker state.
func (g *RequestGateway) Stats() Stats {
	counts := g.store.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}

	s := Stats{
		QueueSize:     g.queue.Len(),
		QueueCapacity: g.queue.Cap(),
		Counts:        counts,
		TotalJobs:     total,
		Uptime:        g.now().Sub(g.started),
	}
	if g.workers != nil {
		s.ActiveWorkers = g.workers.ActiveWorkers()
		s.BusyWorkers = g.workers.Busy()
	}
	if g.provider != nil {
		s.Provider = g.provider.Name()
		s.ProviderReady = g.provider.Ready()
	}
	return s
}
