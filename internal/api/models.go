package api

import (
	"fmt"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/redact"
	"github.com/phrazzld/flashcards-ai-queue/internal/service"
)

// Status values used in response bodies.
const (
	statusSuccess = "success"
	statusHealthy = "healthy"
)

// AIRequest defines the payload for POST /ai_request.
type AIRequest struct {
	AppCode     string `json:"app_code"     validate:"required"`
	RequestType string `json:"request_type" validate:"required"`
	Request     string `json:"request"      validate:"required"`
}

// SubmitResponse is returned when a request is queued.
type SubmitResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// TokenUsage mirrors domain.TokenUsage on the wire.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse carries the result of a completed request.
type CompletionResponse struct {
	AIResponse     string     `json:"ai_response"`
	ModelUsed      string     `json:"model_used"`
	CompletionTime string     `json:"completion_time"`
	TokenUsage     TokenUsage `json:"token_usage"`
}

// PollResponse is the body of GET /get_request/{request_id} and of every
// websocket status message. Which fields are set depends on Status.
type PollResponse struct {
	RequestID         string              `json:"request_id"`
	Status            string              `json:"status"`
	Attempts          int                 `json:"attempts,omitempty"`
	Position          int                 `json:"position,omitempty"`
	EstimatedWaitTime string              `json:"estimated_wait_time,omitempty"`
	Message           string              `json:"message,omitempty"`
	Response          *CompletionResponse `json:"response,omitempty"`
	ErrorCode         string              `json:"error_code,omitempty"`
	RetryPossible     *bool               `json:"retry_possible,omitempty"`
}

// snapshotToResponse converts a gateway snapshot to its wire form.
func snapshotToResponse(snap service.Snapshot) PollResponse {
	job := snap.Job
	resp := PollResponse{
		RequestID: job.ID.String(),
		Status:    string(job.Status),
		Attempts:  job.Attempts,
	}

	switch job.Status {
	case domain.StatusQueued:
		resp.Position = snap.Position
		resp.EstimatedWaitTime = fmt.Sprintf("%d seconds", int(snap.EstimatedWait/time.Second))
		resp.Message = "Request is in queue"

	case domain.StatusProcessing:
		resp.Message = "Request is currently being processed"

	case domain.StatusCompleted:
		if job.Result != nil {
			resp.Response = &CompletionResponse{
				AIResponse:     job.Result.Text,
				ModelUsed:      job.Result.Model,
				CompletionTime: formatTime(job.CompletedAt),
				TokenUsage: TokenUsage{
					PromptTokens:     job.Result.Usage.PromptTokens,
					CompletionTokens: job.Result.Usage.CompletionTokens,
					TotalTokens:      job.Result.Usage.TotalTokens,
				},
			}
		}

	case domain.StatusError, domain.StatusExpired:
		// both surface as "error"; the code tells them apart
		resp.Status = string(domain.StatusError)
		retry := false
		resp.ErrorCode = CodeSystemError
		resp.Message = "Request failed"
		if job.Error != nil {
			resp.ErrorCode = jobErrorCode(job.Error.Kind)
			resp.Message = redact.String(job.Error.Message)
			retry = job.Error.Retryable
		}
		resp.RetryPossible = &retry
	}
	return resp
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string        `json:"status"`
	QueueSize        int           `json:"queue_size"`
	ActiveWorkers    int           `json:"active_workers"`
	Uptime           string        `json:"uptime"`
	Provider         string        `json:"provider"`
	TogetherAIStatus string        `json:"together_ai_status"`
	Stats            StatsResponse `json:"stats"`
}

// StatsResponse summarizes job counts.
type StatsResponse struct {
	QueueSize     int `json:"queue_size"`
	QueueCapacity int `json:"queue_capacity"`
	Queued        int `json:"queued"`
	Processing    int `json:"processing"`
	TotalJobs     int `json:"total_jobs"`
	Completed     int `json:"completed"`
	Errors        int `json:"errors"`
	ActiveWorkers int `json:"active_workers"`
	BusyWorkers   int `json:"busy_workers"`
}

func statsToResponse(s service.Stats) StatsResponse {
	return StatsResponse{
		QueueSize:     s.QueueSize,
		QueueCapacity: s.QueueCapacity,
		Queued:        s.Counts[domain.StatusQueued],
		Processing:    s.Counts[domain.StatusProcessing],
		TotalJobs:     s.TotalJobs,
		Completed:     s.Counts[domain.StatusCompleted],
		Errors:        s.Counts[domain.StatusError] + s.Counts[domain.StatusExpired],
		ActiveWorkers: s.ActiveWorkers,
		BusyWorkers:   s.BusyWorkers,
	}
}

// IndexResponse is the body of GET /.
type IndexResponse struct {
	Message   string        `json:"message"`
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Endpoints []string      `json:"endpoints"`
	Stats     StatsResponse `json:"stats"`
}

// AppConfigResponse lists an app's generation defaults.
type AppConfigResponse struct {
	RateLimit   string  `json:"rate_limit"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// AppResponse describes one registered app.
type AppResponse struct {
	Name                string            `json:"name"`
	AllowedRequestTypes []string          `json:"allowed_request_types"`
	Config              AppConfigResponse `json:"config"`
}

// AppsResponse is the body of GET /apps.
type AppsResponse struct {
	Status    string                 `json:"status"`
	Apps      map[string]AppResponse `json:"apps"`
	TotalApps int                    `json:"total_apps"`
}

func appsToResponse(profiles []domain.AppProfile) AppsResponse {
	apps := make(map[string]AppResponse, len(profiles))
	for _, p := range profiles {
		apps[p.Code] = AppResponse{
			Name:                p.Name,
			AllowedRequestTypes: p.RequestTypes(),
			Config: AppConfigResponse{
				RateLimit:   p.RateLimit.String(),
				MaxTokens:   p.MaxTokens,
				Temperature: p.Temperature,
			},
		}
	}
	return AppsResponse{Status: statusSuccess, Apps: apps, TotalApps: len(apps)}
}
