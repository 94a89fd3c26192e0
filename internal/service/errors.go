package service

import (
	"fmt"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// RateLimitError is returned by Submit when the app has no quota left in the
// current window. It matches domain.ErrRateLimited with errors.Is.
type RateLimitError struct {
	AppCode    string
	RetryAfter time.Duration
}

// Error implements the error interface for RateLimitError.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: app %q may retry in %s", domain.ErrRateLimited, e.AppCode, e.RetryAfter)
}

// Unwrap returns domain.ErrRateLimited to support errors.Is.
func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
