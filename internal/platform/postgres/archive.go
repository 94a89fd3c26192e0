package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/events"
	"github.com/phrazzld/flashcards-ai-queue/internal/platform/logger"
)

// DefaultBacklog is the number of finished jobs buffered before new ones are
// dropped from the archive.
const DefaultBacklog = 256

// saveTimeout bounds a single archive write.
const saveTimeout = 5 * time.Second

// JobArchive stores finished jobs in the job_history table.
//
// HandleEvent never touches the database: it only buffers terminal jobs.
// Run drains the buffer and must be running for anything to be written.
type JobArchive struct {
	db      DBTX
	pending chan domain.Job
	logger  *slog.Logger
}

// NewJobArchive creates a JobArchive on db with the given buffer size.
func NewJobArchive(db DBTX, backlog int, logger *slog.Logger) *JobArchive {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &JobArchive{
		db:      db,
		pending: make(chan domain.Job, backlog),
		logger:  logger.With("component", "job_archive"),
	}
}

// Save upserts a finished job.
func (a *JobArchive) Save(ctx context.Context, job domain.Job) error {
	log := logger.FromContextOrDefault(ctx, a.logger)

	if !job.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot archive job in status %q", domain.ErrValidation, job.Status)
	}

	resultJSON, err := marshalNullable(job.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	errorJSON, err := marshalNullable(job.Error)
	if err != nil {
		return fmt.Errorf("failed to encode error: %w", err)
	}

	query := `
		INSERT INTO job_history (
			id, app_code, request_type, payload, status, attempts,
			result, error, created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			archived_at = NOW()
	`

	_, err = a.db.ExecContext(ctx, query,
		job.ID,
		job.AppCode,
		job.RequestType,
		job.Payload,
		string(job.Status),
		job.Attempts,
		resultJSON,
		errorJSON,
		job.CreatedAt,
		job.StartedAt,
		completedAtOrNow(job),
	)
	if err != nil {
		log.Error("failed to archive job",
			"error", err,
			"request_id", job.ID,
			"status", job.Status)
		return MapError(err)
	}

	log.Debug("job archived", "request_id", job.ID, "status", job.Status)
	return nil
}

// Get loads an archived job. It returns domain.ErrJobNotFound when the id was
// never archived.
func (a *JobArchive) Get(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	query := `
		SELECT id, app_code, request_type, payload, status, attempts,
			result, error, created_at, started_at, completed_at
		FROM job_history
		WHERE id = $1
	`

	var (
		job         domain.Job
		status      string
		resultJSON  []byte
		errorJSON   []byte
		startedAt   sql.NullTime
		completedAt time.Time
	)
	err := a.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.AppCode,
		&job.RequestType,
		&job.Payload,
		&status,
		&job.Attempts,
		&resultJSON,
		&errorJSON,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return domain.Job{}, MapError(err)
	}

	job.Status, err = parseStatus(status)
	if err != nil {
		return domain.Job{}, err
	}
	job.CreatedAt = job.CreatedAt.UTC()
	completedAt = completedAt.UTC()
	job.CompletedAt = &completedAt
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if len(resultJSON) > 0 {
		job.Result = &domain.Result{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return domain.Job{}, fmt.Errorf("failed to decode archived result: %w", err)
		}
	}
	if len(errorJSON) > 0 {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal(errorJSON, job.Error); err != nil {
			return domain.Job{}, fmt.Errorf("failed to decode archived error: %w", err)
		}
	}
	return job, nil
}

// parseStatus accepts only the terminal statuses the archive stores.
func parseStatus(s string) (domain.Status, error) {
	status := domain.Status(s)
	if !status.IsValid() || !status.IsTerminal() {
		return "", fmt.Errorf("%w: unexpected archived status %q", ErrArchive, s)
	}
	return status, nil
}

// HandleEvent buffers terminal jobs for Run. When the buffer is full the job
// is dropped with a warning.
func (a *JobArchive) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	if !event.IsTerminal() {
		return nil
	}
	select {
	case a.pending <- event.Job:
	default:
		logger.FromContextOrDefault(ctx, a.logger).Warn("archive backlog full, dropping job",
			"request_id", event.Job.ID,
			"status", event.Job.Status,
			"backlog", cap(a.pending))
	}
	return nil
}

// Run writes buffered jobs until ctx is cancelled, then flushes what is
// already buffered.
func (a *JobArchive) Run(ctx context.Context) error {
	a.logger.Info("job archive started")
	for {
		select {
		case job := <-a.pending:
			a.saveWithTimeout(context.Background(), job)
		case <-ctx.Done():
			a.flush()
			a.logger.Info("job archive stopped")
			return nil
		}
	}
}

func (a *JobArchive) flush() {
	for {
		select {
		case job := <-a.pending:
			a.saveWithTimeout(context.Background(), job)
		default:
			return
		}
	}
}

func (a *JobArchive) saveWithTimeout(parent context.Context, job domain.Job) {
	ctx, cancel := context.WithTimeout(parent, saveTimeout)
	defer cancel()
	// errors are already logged by Save
	_ = a.Save(ctx, job)
}

// marshalNullable encodes v as JSON text, or returns nil so the column is NULL.
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case *domain.Result:
		if t == nil {
			return nil, nil
		}
	case *domain.JobError:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func completedAtOrNow(job domain.Job) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return time.Now().UTC()
}
