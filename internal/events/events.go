package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// JobEvent records one lifecycle change of a job. From is empty when the
// job was just created.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// From is the status the job left
	From domain.Status `json:"from,omitempty"`

	// Job is a snapshot of the job after the change
	Job domain.Job `json:"job"`

	// OccurredAt is when the change was committed
	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent creates a JobEvent for a committed change.
func NewJobEvent(from domain.Status, job domain.Job, at time.Time) *JobEvent {
	return &JobEvent{
		ID:         uuid.New(),
		From:       from,
		Job:        job,
		OccurredAt: at.UTC(),
	}
}

// To returns the status the job entered.
func (e *JobEvent) To() domain.Status {
	return e.Job.Status
}

// IsTerminal reports whether the job entered a terminal status.
func (e *JobEvent) IsTerminal() bool {
	return e.Job.Status.IsTerminal()
}

// EventHandler defines an interface for components that react to job events.
// Handlers run on the goroutine that committed the change and must not block.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// HandlerFunc adapts an ordinary function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the job store to publish changes without knowing who listens.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
