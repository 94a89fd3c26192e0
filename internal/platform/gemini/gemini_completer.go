package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/flashcards-ai-queue/internal/config"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// contentGenerator is the subset of the genai client used here.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Completer implements generation.Completer using the Gemini API.
type Completer struct {
	// logger is used for structured logging
	logger *slog.Logger

	// models performs the GenerateContent calls
	models contentGenerator

	// model is the name of the Gemini model to use
	model string
}

var _ generation.Completer = (*Completer)(nil)

// NewCompleter creates a Gemini completer from the LLM configuration.
func NewCompleter(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Completer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newCompleter(logger, client.Models, cfg.Model), nil
}

func newCompleter(logger *slog.Logger, models contentGenerator, model string) *Completer {
	if model == "" {
		model = DefaultModel
	}
	return &Completer{
		logger: logger.With("component", "gemini_completer"),
		models: models,
		model:  model,
	}
}

// Name implements generation.Completer.
func (c *Completer) Name() string {
	return "gemini"
}

// Ready implements generation.Completer.
func (c *Completer) Ready() bool {
	return c != nil && c.models != nil
}

// Complete implements generation.Completer.
func (c *Completer) Complete(ctx context.Context, req generation.Request) generation.Outcome {
	temperature := float32(req.Temperature)
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		outcome := generation.FromError(classifyError(ctx, err))
		c.logger.WarnContext(ctx, "Gemini API call failed",
			"error", err,
			"outcome", outcome.Kind.String())
		return outcome
	}

	text, err := extractText(resp)
	if err != nil {
		c.logger.WarnContext(ctx, "Gemini API returned no usable content", "error", err)
		return generation.FromError(err)
	}

	var usage domain.TokenUsage
	if resp.UsageMetadata != nil {
		usage = domain.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	c.logger.DebugContext(ctx, "Gemini API call successful",
		"model", c.model,
		"total_tokens", usage.TotalTokens)
	return generation.Success(text, c.model, usage)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
	}
	return b.String(), nil
}

// classifyError marks API errors with status 408, 429 or 5xx, and transport
// errors, as generation.ErrTransientFailure. Other API errors stay permanent.
func classifyError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isTransientStatus(apiErr.Code) {
			return fmt.Errorf("%w: gemini API error %d: %s", generation.ErrTransientFailure, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("gemini API error %d: %s", apiErr.Code, apiErr.Message)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Transport failures carry no status code
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
