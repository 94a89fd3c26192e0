package together

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/flashcards-ai-queue/internal/config"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
)

// Defaults used when the configuration leaves them empty.
const (
	DefaultBaseURL = "https://api.together.xyz/v1"
	DefaultModel   = "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free"
)

// maxErrorBody caps how much of an error response is kept for the reason.
const maxErrorBody = 512

// Completer implements generation.Completer using the Together AI API.
type Completer struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
}

var _ generation.Completer = (*Completer)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewCompleter creates a Together AI completer. The HTTP client carries no
// timeout of its own; callers bound each call through the context.
func NewCompleter(logger *slog.Logger, cfg config.LLMConfig, client *http.Client) (*Completer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: together API key cannot be empty", generation.ErrInvalidConfig)
	}
	if client == nil {
		client = &http.Client{}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Completer{
		client:  client,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		logger:  logger.With("component", "together_completer"),
	}, nil
}

// Name implements generation.Completer.
func (c *Completer) Name() string {
	return "together"
}

// Ready implements generation.Completer.
func (c *Completer) Ready() bool {
	return c != nil && c.apiKey != ""
}

// Complete implements generation.Completer.
func (c *Completer) Complete(ctx context.Context, req generation.Request) generation.Outcome {
	result, err := c.call(ctx, req)
	if err != nil {
		outcome := generation.FromError(err)
		c.logger.WarnContext(ctx, "Together API call failed",
			"error", err,
			"outcome", outcome.Kind.String())
		return outcome
	}

	model := result.Model
	if model == "" {
		model = c.model
	}
	return generation.Success(result.Choices[0].Message.Content, model, domain.TokenUsage{
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
	})
}

// call performs one chat-completions request. Retryable failures wrap
// generation.ErrTransientFailure.
func (c *Completer) call(ctx context.Context, req generation.Request) (chatResponse, error) {
	var result chatResponse

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return result, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("%w: failed to call API: %v", generation.ErrTransientFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		reason := fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if isTransientStatus(resp.StatusCode) {
			return result, fmt.Errorf("%w: %s", generation.ErrTransientFailure, reason)
		}
		return result, errors.New(reason)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("%w: failed to decode response: %v", generation.ErrInvalidResponse, err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return result, fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}
	return result, nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
