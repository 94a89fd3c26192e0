package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/flashcards-ai-queue/internal/config"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// mockModels implements contentGenerator for testing
type mockModels struct {
	resp *genai.GenerateContentResponse
	err  error

	gotModel  string
	gotConfig *genai.GenerateContentConfig
	gotText   string
}

func (m *mockModels) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	m.gotModel = model
	m.gotConfig = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		m.gotText = contents[0].Parts[0].Text
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return m.resp, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     4,
			CandidatesTokenCount: 6,
			TotalTokenCount:      10,
		},
	}
}

func TestNewCompleterValidation(t *testing.T) {
	_, err := NewCompleter(context.Background(), nil, config.LLMConfig{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewCompleter(context.Background(), testLogger(), config.LLMConfig{})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestCompleteSuccess(t *testing.T) {
	models := &mockModels{resp: textResponse("Hello, ", "world")}
	c := newCompleter(testLogger(), models, "")

	outcome := c.Complete(context.Background(), generation.Request{
		Prompt:      "say hello",
		MaxTokens:   256,
		Temperature: 0.5,
	})

	require.Equal(t, generation.OutcomeSuccess, outcome.Kind, outcome.Reason)
	assert.Equal(t, "Hello, world", outcome.Text)
	assert.Equal(t, DefaultModel, outcome.Model)
	assert.Equal(t, 10, outcome.Usage.TotalTokens)
	assert.Equal(t, 4, outcome.Usage.PromptTokens)
	assert.Equal(t, 6, outcome.Usage.CompletionTokens)

	assert.Equal(t, DefaultModel, models.gotModel)
	assert.Equal(t, "say hello", models.gotText)
	require.NotNil(t, models.gotConfig)
	assert.Equal(t, int32(256), models.gotConfig.MaxOutputTokens)
	require.NotNil(t, models.gotConfig.Temperature)
	assert.InDelta(t, 0.5, *models.gotConfig.Temperature, 1e-6)
}

func TestCompleteClassification(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
		want generation.OutcomeKind
	}{
		{name: "rate limited", err: genai.APIError{Code: 429, Message: "quota"}, want: generation.OutcomeTransient},
		{name: "server error", err: genai.APIError{Code: 503, Message: "unavailable"}, want: generation.OutcomeTransient},
		{name: "request timeout", err: genai.APIError{Code: 408, Message: "timeout"}, want: generation.OutcomeTransient},
		{name: "bad request", err: genai.APIError{Code: 400, Message: "invalid"}, want: generation.OutcomePermanent},
		{name: "forbidden", err: genai.APIError{Code: 403, Message: "key"}, want: generation.OutcomePermanent},
		{name: "network error", err: errors.New("connection reset"), want: generation.OutcomeTransient},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: generation.OutcomePermanent},
		{name: "nil response", want: generation.OutcomePermanent},
		{
			name: "safety block",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			want: generation.OutcomePermanent,
		},
		{name: "empty text", resp: textResponse(""), want: generation.OutcomePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompleter(testLogger(), &mockModels{resp: tt.resp, err: tt.err}, "gemini-test")
			outcome := c.Complete(context.Background(), generation.Request{Prompt: "p", MaxTokens: 10})
			assert.Equal(t, tt.want, outcome.Kind)
			assert.NotEmpty(t, outcome.Reason)
		})
	}
}

func TestCompleteCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newCompleter(testLogger(), &mockModels{resp: textResponse("x")}, "")
	outcome := c.Complete(ctx, generation.Request{Prompt: "p"})
	assert.Equal(t, generation.OutcomeTransient, outcome.Kind)
}

func TestNameAndReady(t *testing.T) {
	c := newCompleter(testLogger(), &mockModels{}, "m")
	assert.Equal(t, "gemini", c.Name())
	assert.True(t, c.Ready())
}

func TestClassifyErrorMarksRetryableFailures(t *testing.T) {
	ctx := context.Background()

	assert.ErrorIs(t, classifyError(ctx, genai.APIError{Code: 500, Message: "boom"}), generation.ErrTransientFailure)
	assert.ErrorIs(t, classifyError(ctx, errors.New("connection reset")), generation.ErrTransientFailure)
	assert.NotErrorIs(t, classifyError(ctx, genai.APIError{Code: 400, Message: "invalid"}), generation.ErrTransientFailure)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, classifyError(canceled, errors.New("request aborted")), context.Canceled)
}
