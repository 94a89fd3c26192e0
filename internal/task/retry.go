package task

import (
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
)

// RetryPolicy bounds how often a transiently failing job is retried.
type RetryPolicy struct {
	// MaxAttempts counts every provider call, including the first.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryPolicy returns three attempts with 1s, 2s backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
	}
}

// Backoff returns the wait before retrying after the given attempt:
// BackoffBase * 2^(attempt-1), capped at BackoffMax.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.BackoffMax > 0 && delay >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		return p.BackoffMax
	}
	return delay
}

type action int

const (
	actionComplete action = iota
	actionRetry
	actionFail
)

// decision is what the worker does with a finished provider call.
type decision struct {
	action    action
	kind      domain.ErrorKind
	message   string
	retryable bool
	delay     time.Duration
}

// decide maps an outcome to the next step. timedOut is true when the local
// request deadline fired; such calls count against the retry budget like
// transient failures but are reported as timeouts once it is spent.
func decide(outcome generation.Outcome, timedOut bool, attempts int, policy RetryPolicy) decision {
	if outcome.Kind == generation.OutcomeSuccess {
		return decision{action: actionComplete}
	}

	if outcome.Kind == generation.OutcomePermanent && !timedOut {
		return decision{
			action:    actionFail,
			kind:      domain.ErrorKindPermanent,
			message:   outcome.Reason,
			retryable: false,
		}
	}

	kind := domain.ErrorKindTransient
	message := outcome.Reason
	if timedOut {
		kind = domain.ErrorKindTimeout
		message = "request timed out"
	}

	if attempts < policy.MaxAttempts {
		return decision{
			action:  actionRetry,
			kind:    kind,
			message: message,
			delay:   policy.Backoff(attempts),
		}
	}

	return decision{
		action:    actionFail,
		kind:      kind,
		message:   message,
		retryable: true,
	}
}
