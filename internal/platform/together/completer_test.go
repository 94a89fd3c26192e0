package together

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/config"
	"github.com/phrazzld/flashcards-ai-queue/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCompleter(t *testing.T, handler http.HandlerFunc) *Completer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewCompleter(testLogger(), config.LLMConfig{APIKey: "secret", BaseURL: srv.URL + "/"}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestNewCompleterDefaults(t *testing.T) {
	c, err := NewCompleter(testLogger(), config.LLMConfig{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultModel, c.model)
	assert.Equal(t, "together", c.Name())
	assert.True(t, c.Ready())

	_, err = NewCompleter(testLogger(), config.LLMConfig{}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestCompleteSuccess(t *testing.T) {
	c := newTestCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		assert.Equal(t, 300, body.MaxTokens)
		assert.InDelta(t, 0.7, body.Temperature, 1e-9)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "explain goroutines", body.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"model": "served-model",
			"choices": [{"message": {"role": "assistant", "content": "Goroutines are..."}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
		}`)
	})

	outcome := c.Complete(context.Background(), generation.Request{
		Prompt:      "explain goroutines",
		MaxTokens:   300,
		Temperature: 0.7,
	})

	require.Equal(t, generation.OutcomeSuccess, outcome.Kind, outcome.Reason)
	assert.Equal(t, "Goroutines are...", outcome.Text)
	assert.Equal(t, "served-model", outcome.Model)
	assert.Equal(t, 12, outcome.Usage.TotalTokens)
}

func TestCompleteStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   generation.OutcomeKind
	}{
		{status: http.StatusTooManyRequests, want: generation.OutcomeTransient},
		{status: http.StatusInternalServerError, want: generation.OutcomeTransient},
		{status: http.StatusBadGateway, want: generation.OutcomeTransient},
		{status: http.StatusRequestTimeout, want: generation.OutcomeTransient},
		{status: http.StatusBadRequest, want: generation.OutcomePermanent},
		{status: http.StatusUnauthorized, want: generation.OutcomePermanent},
		{status: http.StatusNotFound, want: generation.OutcomePermanent},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestCompleter(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			})
			outcome := c.Complete(context.Background(), generation.Request{Prompt: "p"})
			assert.Equal(t, tt.want, outcome.Kind)
			assert.Contains(t, outcome.Reason, "nope")
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	c := newTestCompleter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices": []}`)
	})
	outcome := c.Complete(context.Background(), generation.Request{Prompt: "p"})
	assert.Equal(t, generation.OutcomePermanent, outcome.Kind)
}

func TestCompleteMalformedBody(t *testing.T) {
	c := newTestCompleter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})
	outcome := c.Complete(context.Background(), generation.Request{Prompt: "p"})
	assert.Equal(t, generation.OutcomePermanent, outcome.Kind)
}

func TestCompleteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewCompleter(testLogger(), config.LLMConfig{APIKey: "k", BaseURL: url}, nil)
	require.NoError(t, err)

	outcome := c.Complete(context.Background(), generation.Request{Prompt: "p"})
	assert.Equal(t, generation.OutcomeTransient, outcome.Kind)
}

func TestCompleteDeadline(t *testing.T) {
	release := make(chan struct{})
	c := newTestCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	outcome := c.Complete(ctx, generation.Request{Prompt: "p"})
	assert.Equal(t, generation.OutcomeTransient, outcome.Kind)
}

func TestCompleteTransientReasonIsMarked(t *testing.T) {
	c := newTestCompleter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	outcome := c.Complete(context.Background(), generation.Request{Prompt: "p"})

	assert.Equal(t, generation.OutcomeTransient, outcome.Kind)
	assert.Contains(t, outcome.Reason, generation.ErrTransientFailure.Error())
	assert.Contains(t, outcome.Reason, "overloaded")
}

func TestCompleteCanceledContextIsTransient(t *testing.T) {
	c := newTestCompleter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"late"}}]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := c.Complete(ctx, generation.Request{Prompt: "p"})

	assert.Equal(t, generation.OutcomeTransient, outcome.Kind)
	assert.Contains(t, outcome.Reason, context.Canceled.Error())
}
