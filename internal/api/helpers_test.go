package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/events"
	"github.com/phrazzld/flashcards-ai-queue/internal/metrics"
	"github.com/phrazzld/flashcards-ai-queue/internal/ratelimit"
	"github.com/phrazzld/flashcards-ai-queue/internal/registry"
	"github.com/phrazzld/flashcards-ai-queue/internal/service"
	"github.com/phrazzld/flashcards-ai-queue/internal/task"
	"github.com/stretchr/testify/require"
)

const (
	flashcardsApp = registry.FlashcardsAppCode
	flashcardType = "generate_flashcard"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	router  http.Handler
	store   *task.Store
	queue   *task.Queue
	hub     *StatusHub
	metrics *metrics.Prom
}

type serverOptions struct {
	apps     *registry.Registry
	queueCap int
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	if opts.apps == nil {
		opts.apps = registry.Default()
	}
	if opts.queueCap == 0 {
		opts.queueCap = 10
	}

	logger := setupTestLogger()
	hub := NewStatusHub(logger)
	prom := metrics.NewProm()
	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(hub)
	emitter.RegisterHandler(prom)

	store := task.NewStore(logger, task.WithEmitter(emitter))
	queue := task.NewQueue(opts.queueCap, logger)
	gateway := service.NewRequestGateway(opts.apps, ratelimit.NewFixedWindow(), store, queue,
		service.DefaultGatewayConfig(), logger, service.WithSubmissionObserver(prom))

	router := NewRouter(RouterConfig{
		Gateway:     gateway,
		Hub:         hub,
		Logger:      logger,
		Version:     "test",
		CORSOrigins: []string{"*"},
		Metrics:     prom,
	})
	return &testServer{router: router, store: store, queue: queue, hub: hub, metrics: prom}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) submit(t *testing.T, appCode, requestType, payload string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/ai_request", AIRequest{
		AppCode:     appCode,
		RequestType: requestType,
		Request:     payload,
	})
}

func (s *testServer) submitOK(t *testing.T) uuid.UUID {
	t.Helper()
	w := s.submit(t, flashcardsApp, flashcardType, "photosynthesis")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SubmitResponse
	decode(t, w, &resp)
	id, err := uuid.Parse(resp.RequestID)
	require.NoError(t, err)
	return id
}

// startProcessing moves a job the way a worker would.
func (s *testServer) startProcessing(t *testing.T, id uuid.UUID) {
	t.Helper()
	claimed, err := s.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, claimed)
	_, err = s.store.Transition(context.Background(), id, domain.StatusQueued, domain.StatusProcessing, nil)
	require.NoError(t, err)
}

func (s *testServer) finish(t *testing.T, id uuid.UUID, to domain.Status, mutate func(*domain.Job)) {
	t.Helper()
	_, err := s.store.Transition(context.Background(), id, domain.StatusProcessing, to, mutate)
	require.NoError(t, err)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func limitedApps(t *testing.T, count int) *registry.Registry {
	t.Helper()
	profile, err := domain.NewAppProfile("limited_app", "Limited", []string{"prompt"},
		domain.RateLimit{Count: count, Window: time.Hour}, 100, 0.5)
	require.NoError(t, err)
	reg, err := registry.New(profile)
	require.NoError(t, err)
	return reg
}
