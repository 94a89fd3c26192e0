package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/api/shared"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRequest(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.submit(t, flashcardsApp, flashcardType, "photosynthesis")

	require.Equal(t, http.StatusOK, w.Code)
	var resp SubmitResponse
	decode(t, w, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Request queued successfully", resp.Message)
	_, err := uuid.Parse(resp.RequestID)
	assert.NoError(t, err)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestSubmitRequestErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed JSON",
			body:       `{"app_code": "flashcards_app_001",`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "missing fields",
			body:       map[string]string{"app_code": flashcardsApp},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "unknown app",
			body:       AIRequest{AppCode: "not_an_app", RequestType: flashcardType, Request: "x"},
			wantStatus: http.StatusForbidden,
			wantCode:   CodeUnknownApp,
		},
		{
			name:       "unsupported request type",
			body:       AIRequest{AppCode: flashcardsApp, RequestType: "bogus_type", Request: "x"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeUnsupportedRequestType,
		},
		{
			name:       "payload too long",
			body:       AIRequest{AppCode: flashcardsApp, RequestType: flashcardType, Request: strings.Repeat("a", 20001)},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, serverOptions{})

			w := s.do(t, http.MethodPost, "/ai_request", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp shared.ErrorResponse
			decode(t, w, &resp)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.wantCode, resp.ErrorCode)
			assert.NotEmpty(t, resp.Message)
			assert.Zero(t, s.store.Len())
		})
	}
}

func TestSubmitRequestRateLimited(t *testing.T) {
	s := newTestServer(t, serverOptions{apps: limitedApps(t, 1)})

	first := s.submit(t, "limited_app", "prompt", "hello")
	require.Equal(t, http.StatusOK, first.Code)

	w := s.submit(t, "limited_app", "prompt", "hello")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var resp shared.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, CodeRateLimited, resp.ErrorCode)
	assert.Positive(t, resp.RetryAfter)
}

func TestSubmitRequestQueueFull(t *testing.T) {
	s := newTestServer(t, serverOptions{queueCap: 1})
	s.submitOK(t)

	w := s.submit(t, flashcardsApp, flashcardType, "second")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	var resp shared.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, CodeQueueFull, resp.ErrorCode)
}

func TestGetRequestQueued(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.submitOK(t)
	id := s.submitOK(t)

	w := s.do(t, http.MethodGet, "/get_request/"+id.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PollResponse
	decode(t, w, &resp)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 2, resp.Position)
	assert.Equal(t, "60 seconds", resp.EstimatedWaitTime)
	assert.Equal(t, "Request is in queue", resp.Message)
	assert.Equal(t, id.String(), resp.RequestID)
}

func TestGetRequestProcessing(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.submitOK(t)
	s.startProcessing(t, id)

	w := s.do(t, http.MethodGet, "/get_request/"+id.String(), nil)

	var resp PollResponse
	decode(t, w, &resp)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 1, resp.Attempts)
	assert.Zero(t, resp.Position)
	assert.Nil(t, resp.Response)
}

func TestGetRequestCompleted(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.submitOK(t)
	s.startProcessing(t, id)
	s.finish(t, id, domain.StatusCompleted, func(j *domain.Job) {
		j.Result = &domain.Result{
			Text:  "Q: What do plants make? A: Glucose",
			Model: "test-model",
			Usage: domain.TokenUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		}
	})

	w := s.do(t, http.MethodGet, "/get_request/"+id.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PollResponse
	decode(t, w, &resp)
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Response)
	assert.Equal(t, "Q: What do plants make? A: Glucose", resp.Response.AIResponse)
	assert.Equal(t, "test-model", resp.Response.ModelUsed)
	assert.NotEmpty(t, resp.Response.CompletionTime)
	assert.Equal(t, 18, resp.Response.TokenUsage.TotalTokens)
	assert.Nil(t, resp.RetryPossible)
}

func TestGetRequestFailed(t *testing.T) {
	tests := []struct {
		name      string
		to        domain.Status
		jobErr    domain.JobError
		wantCode  string
		wantRetry bool
	}{
		{
			name:      "transient failure after retries",
			to:        domain.StatusError,
			jobErr:    domain.JobError{Kind: domain.ErrorKindTransient, Message: "provider returned 503", Retryable: true},
			wantCode:  CodeAIServiceError,
			wantRetry: true,
		},
		{
			name:      "permanent failure",
			to:        domain.StatusError,
			jobErr:    domain.JobError{Kind: domain.ErrorKindPermanent, Message: "content blocked", Retryable: false},
			wantCode:  CodeAIServiceError,
			wantRetry: false,
		},
		{
			name:      "timeout",
			to:        domain.StatusError,
			jobErr:    domain.JobError{Kind: domain.ErrorKindTimeout, Message: "deadline exceeded", Retryable: true},
			wantCode:  CodeTimeout,
			wantRetry: true,
		},
		{
			name:      "expired",
			to:        domain.StatusExpired,
			jobErr:    domain.JobError{Kind: domain.ErrorKindExpired, Message: "processing deadline passed"},
			wantCode:  CodeExpired,
			wantRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, serverOptions{})
			id := s.submitOK(t)
			s.startProcessing(t, id)
			jobErr := tt.jobErr
			s.finish(t, id, tt.to, func(j *domain.Job) { j.Error = &jobErr })

			w := s.do(t, http.MethodGet, "/get_request/"+id.String(), nil)

			require.Equal(t, http.StatusOK, w.Code)
			var resp PollResponse
			decode(t, w, &resp)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.wantCode, resp.ErrorCode)
			assert.Equal(t, tt.jobErr.Message, resp.Message)
			require.NotNil(t, resp.RetryPossible)
			assert.Equal(t, tt.wantRetry, *resp.RetryPossible)
		})
	}
}

func TestGetRequestRedactsProviderMessages(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.submitOK(t)
	s.startProcessing(t, id)
	s.finish(t, id, domain.StatusError, func(j *domain.Job) {
		j.Error = &domain.JobError{Kind: domain.ErrorKindPermanent, Message: "401: invalid api_key=sk-abcdef123456"}
	})

	w := s.do(t, http.MethodGet, "/get_request/"+id.String(), nil)

	assert.NotContains(t, w.Body.String(), "sk-abcdef123456")
}

func TestGetRequestNotFound(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	for _, path := range []string{"/get_request/" + uuid.NewString(), "/get_request/not-a-uuid"} {
		w := s.do(t, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusNotFound, w.Code, path)
		var resp shared.ErrorResponse
		decode(t, w, &resp)
		assert.Equal(t, CodeRequestNotFound, resp.ErrorCode)
	}
}

func TestGetRequestIsIdempotent(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.submitOK(t)

	first := s.do(t, http.MethodGet, "/get_request/"+id.String(), nil)
	second := s.do(t, http.MethodGet, "/get_request/"+id.String(), nil)

	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, s.queue.Len())
}
