package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a job
type Status string

// Possible job status values
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusExpired    Status = "expired"
)

// IsTerminal reports whether no further transitions can leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusExpired
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusError, StatusExpired:
		return true
	}
	return false
}

// transitions lists every edge of the job state machine.
// Queued -> Error exists only for admission rollback when a queue slot
// cannot be obtained.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusError},
	StatusProcessing: {StatusCompleted, StatusError, StatusQueued, StatusExpired},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorKind classifies why a job ended without a result
type ErrorKind string

// Possible error kinds
const (
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindQueueFull ErrorKind = "queue_full"
	ErrorKindExpired   ErrorKind = "expired"
	ErrorKindSystem    ErrorKind = "system"
)

// TokenUsage holds provider token counters for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the output of a successful job.
type Result struct {
	Text  string     `json:"text"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}

// JobError describes why a job reached the Error or Expired status.
type JobError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// Job is one admitted generation request and its lifecycle record.
//
// Result is set only while Status is StatusCompleted and Error only while
// Status is StatusError or StatusExpired. Attempts is at least 1 once the job
// has reached StatusProcessing.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	AppCode     string     `json:"app_code"`
	RequestType string     `json:"request_type"`
	Payload     string     `json:"payload"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
}

// NewJob creates a queued job with the given identifier.
func NewJob(id uuid.UUID, appCode, requestType, payload string, now time.Time) Job {
	return Job{
		ID:          id,
		AppCode:     appCode,
		RequestType: requestType,
		Payload:     payload,
		Status:      StatusQueued,
		CreatedAt:   now.UTC(),
	}
}

// Clone returns a deep copy so callers never share pointers with the store.
func (j Job) Clone() Job {
	out := j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}

// Complete records a successful result. Intended for use inside a store mutator.
func (j *Job) Complete(result Result, now time.Time) {
	t := now.UTC()
	j.Result = &result
	j.Error = nil
	j.CompletedAt = &t
}

// Fail records a terminal error. Intended for use inside a store mutator.
func (j *Job) Fail(kind ErrorKind, message string, retryable bool, now time.Time) {
	t := now.UTC()
	j.Result = nil
	j.Error = &JobError{Kind: kind, Message: message, Retryable: retryable}
	j.CompletedAt = &t
}
