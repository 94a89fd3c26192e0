package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/flashcards-ai-queue/internal/api/shared"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/service"
)

// Error codes returned in the error_code field.
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeUnknownApp             = "UNKNOWN_APP"
	CodeUnsupportedRequestType = "UNSUPPORTED_REQUEST_TYPE"
	CodeRateLimited            = "RATE_LIMITED"
	CodeQueueFull              = "QUEUE_FULL"
	CodeRequestNotFound        = "REQUEST_NOT_FOUND"
	CodeEndpointNotFound       = "ENDPOINT_NOT_FOUND"
	CodeMethodNotAllowed       = "METHOD_NOT_ALLOWED"
	CodeSystemError            = "SYSTEM_ERROR"

	// job failure codes reported by polls
	CodeAIServiceError = "AI_SERVICE_ERROR"
	CodeTimeout        = "TIMEOUT"
	CodeExpired        = "EXPIRED"
)

// queueFullRetryAfter is the Retry-After hint, in seconds, for a full queue.
const queueFullRetryAfter = 30

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownApp):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrUnsupportedRequestType),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrQueueFull):
		return http.StatusTooManyRequests

	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the error_code value for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownApp):
		return CodeUnknownApp
	case errors.Is(err, domain.ErrUnsupportedRequestType):
		return CodeUnsupportedRequestType
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrValidation):
		return CodeInvalidRequest
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, domain.ErrQueueFull):
		return CodeQueueFull
	case errors.Is(err, domain.ErrJobNotFound):
		return CodeRequestNotFound
	default:
		return CodeSystemError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrUnknownApp):
		return "Invalid application code"
	case errors.Is(err, domain.ErrUnsupportedRequestType):
		return "Unsupported request type for this application"
	case errors.As(err, &validationErr):
		return "Invalid " + validationErr.Field + ": " + validationErr.Message
	case errors.Is(err, domain.ErrInvalidRequest):
		return "Invalid request"
	case errors.Is(err, domain.ErrRateLimited):
		return "Rate limit exceeded for this application, please try again later"
	case errors.Is(err, domain.ErrQueueFull):
		return "Server queue is full, please try again later"
	case errors.Is(err, domain.ErrJobNotFound):
		return "Request ID not found"
	default:
		return "Internal server error"
	}
}

// HandleAPIError writes the error response for err, including a Retry-After
// header for rate limits and a full queue.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)

	var opts []shared.ResponseOption
	var rateErr *service.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		opts = append(opts, shared.WithRetryAfter(rateErr.RetryAfterSeconds()))
	case errors.Is(err, domain.ErrQueueFull):
		opts = append(opts, shared.WithRetryAfter(queueFullRetryAfter))
	case errors.Is(err, domain.ErrUnknownApp):
		opts = append(opts, shared.WithElevatedLogLevel())
	}

	shared.RespondWithErrorAndLog(w, r, status, ErrorCode(err), GetSafeErrorMessage(err), err, opts...)
}

// jobErrorCode maps a job's failure kind to the code reported by polls.
func jobErrorCode(kind domain.ErrorKind) string {
	switch kind {
	case domain.ErrorKindTransient, domain.ErrorKindPermanent:
		return CodeAIServiceError
	case domain.ErrorKindTimeout:
		return CodeTimeout
	case domain.ErrorKindQueueFull:
		return CodeQueueFull
	case domain.ErrorKindExpired:
		return CodeExpired
	default:
		return CodeSystemError
	}
}
