package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// Request is one completion call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

// Outcome kinds
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransient
	OutcomePermanent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the result of a Complete call. Text, Model and Usage are set for
// OutcomeSuccess; Reason is set for the failure kinds.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Model  string
	Usage  domain.TokenUsage
	Reason string
}

// Success builds a successful outcome.
func Success(text, model string, usage domain.TokenUsage) Outcome {
	return Outcome{Kind: OutcomeSuccess, Text: text, Model: model, Usage: usage}
}

// Transient builds a retryable failure.
func Transient(reason string) Outcome {
	return Outcome{Kind: OutcomeTransient, Reason: reason}
}

// Permanent builds a non-retryable failure.
func Permanent(reason string) Outcome {
	return Outcome{Kind: OutcomePermanent, Reason: reason}
}

// FromError classifies err using the sentinel errors of this package.
// Deadline and cancellation errors are transient.
func FromError(err error) Outcome {
	switch {
	case err == nil:
		return Permanent(ErrInvalidResponse.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Transient(err.Error())
	case errors.Is(err, ErrTransientFailure):
		return Transient(err.Error())
	}
	return Permanent(err.Error())
}

// Result converts a successful outcome to the job result.
func (o Outcome) Result() domain.Result {
	return domain.Result{Text: o.Text, Model: o.Model, Usage: o.Usage}
}

// Completer defines the interface for calling an external completion provider.
// This interface serves as a boundary between the application core and
// external AI/LLM services.
type Completer interface {
	// Complete sends one prompt and classifies the response. Implementations
	// must honor ctx cancellation and never panic on provider errors.
	Complete(ctx context.Context, req Request) Outcome

	// Name identifies the provider, e.g. "together" or "gemini".
	Name() string

	// Ready reports whether the provider client is configured.
	Ready() bool
}
