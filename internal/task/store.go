package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/events"
)

// maxIDAttempts bounds how many fresh ids Create tries before giving up.
const maxIDAttempts = 5

// Store is the authoritative in-memory record of every job. All reads return
// copies, and every status change goes through Transition.
type Store struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*domain.Job
	emitter events.EventEmitter
	now     func() time.Time
	newID   func() uuid.UUID
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEmitter publishes a JobEvent for every committed change.
func WithEmitter(emitter events.EventEmitter) StoreOption {
	return func(s *Store) { s.emitter = emitter }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(newID func() uuid.UUID) StoreOption {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates an empty job store.
func NewStore(logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		jobs:   make(map[uuid.UUID]*domain.Job),
		now:    time.Now,
		newID:  uuid.New,
		logger: logger.With("component", "job_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a new queued job under a fresh id.
func (s *Store) Create(ctx context.Context, appCode, requestType, payload string) (domain.Job, error) {
	now := s.now()

	s.mu.Lock()
	var job domain.Job
	created := false
	for i := 0; i < maxIDAttempts; i++ {
		id := s.newID()
		if _, exists := s.jobs[id]; exists || id == uuid.Nil {
			continue
		}
		job = domain.NewJob(id, appCode, requestType, payload, now)
		stored := job.Clone()
		s.jobs[id] = &stored
		created = true
		break
	}
	s.mu.Unlock()

	if !created {
		return domain.Job{}, domain.ErrIDCollision
	}

	s.emit(ctx, "", job, now)
	return job, nil
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id uuid.UUID) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Transition moves a job from one status to another if, and only if, its
// current status is from. mutate, when non-nil, runs on a copy of the job
// while the store is locked and must not block; its changes to Status are
// ignored.
//
// Entering Processing stamps StartedAt and counts an attempt. Entering a
// terminal status stamps CompletedAt with the store's clock.
func (s *Store) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.Status,
	mutate func(*domain.Job),
) (domain.Job, error) {
	if !domain.CanTransition(from, to) {
		return domain.Job{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	now := s.now()

	s.mu.Lock()
	current, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return domain.Job{}, domain.ErrJobNotFound
	}
	if current.Status != from {
		status := current.Status
		s.mu.Unlock()
		return domain.Job{}, fmt.Errorf("%w: job is %s, expected %s", domain.ErrStaleTransition, status, from)
	}

	next := current.Clone()
	if mutate != nil {
		mutate(&next)
	}
	next.Status = to
	applyStatusInvariants(&next, now)

	*current = next
	out := next.Clone()
	s.mu.Unlock()

	s.emit(ctx, from, out, now)
	return out, nil
}

func applyStatusInvariants(job *domain.Job, now time.Time) {
	switch job.Status {
	case domain.StatusProcessing:
		t := now.UTC()
		job.StartedAt = &t
		job.Attempts++
		job.Result = nil
		job.Error = nil
	case domain.StatusQueued:
		job.Result = nil
		job.Error = nil
		job.CompletedAt = nil
	case domain.StatusCompleted:
		job.Error = nil
	case domain.StatusError, domain.StatusExpired:
		job.Result = nil
	}
	if job.Status.IsTerminal() {
		t := now.UTC()
		job.CompletedAt = &t
	}
}

// Sweep removes terminal jobs that completed more than retention ago and
// returns how many were removed.
func (s *Store) Sweep(retention time.Duration) int {
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// StuckProcessing returns the ids of jobs that entered Processing more than
// olderThan ago.
func (s *Store) StuckProcessing(olderThan time.Duration) []uuid.UUID {
	cutoff := s.now().Add(-olderThan)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id, job := range s.jobs {
		if job.Status == domain.StatusProcessing && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Counts returns the number of jobs in each status.
func (s *Store) Counts() map[domain.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[domain.Status]int{
		domain.StatusQueued:     0,
		domain.StatusProcessing: 0,
		domain.StatusCompleted:  0,
		domain.StatusError:      0,
		domain.StatusExpired:    0,
	}
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// Len returns the number of jobs held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// emit runs outside the store lock so handlers may read the store.
func (s *Store) emit(ctx context.Context, from domain.Status, job domain.Job, at time.Time) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitEvent(ctx, events.NewJobEvent(from, job.Clone(), at)); err != nil {
		s.logger.Debug("job event handler failed",
			"request_id", job.ID,
			"status", job.Status,
			"error", err)
	}
}
