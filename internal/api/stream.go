package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/events"
	"github.com/phrazzld/flashcards-ai-queue/internal/platform/logger"
	"github.com/phrazzld/flashcards-ai-queue/internal/service"
)

const (
	// subscriberBuffer is how many transitions a slow client may fall behind
	subscriberBuffer = 8

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

// Subscription receives the transitions of one job.
type Subscription struct {
	jobs chan domain.Job
}

// Updates returns the channel of job snapshots. It is closed if the
// subscriber falls too far behind.
func (s *Subscription) Updates() <-chan domain.Job {
	return s.jobs
}

// StatusHub fans job transitions out to websocket subscribers.
// It is registered as an events.EventHandler and never blocks the emitter:
// a subscriber whose buffer is full is dropped and its channel closed.
type StatusHub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	logger *slog.Logger
}

// NewStatusHub creates an empty StatusHub.
func NewStatusHub(logger *slog.Logger) *StatusHub {
	return &StatusHub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		logger: logger.With("component", "status_hub"),
	}
}

// Subscribe registers interest in transitions of job id.
func (h *StatusHub) Subscribe(id uuid.UUID) *Subscription {
	sub := &Subscription{jobs: make(chan domain.Job, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[*Subscription]struct{})
	}
	h.subs[id][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub. It is safe to call after the hub dropped sub.
func (h *StatusHub) Unsubscribe(id uuid.UUID, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(id, sub)
}

func (h *StatusHub) remove(id uuid.UUID, sub *Subscription) {
	subs := h.subs[id]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, id)
	}
}

// Subscribers returns the number of open subscriptions.
func (h *StatusHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// HandleEvent implements events.EventHandler.
func (h *StatusHub) HandleEvent(_ context.Context, event *events.JobEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[event.Job.ID] {
		select {
		case sub.jobs <- event.Job:
		default:
			h.logger.Warn("dropping slow status subscriber", "request_id", event.Job.ID)
			h.remove(event.Job.ID, sub)
			close(sub.jobs)
		}
	}
	return nil
}

// StreamHandler upgrades GET /ws/requests/{request_id} to a websocket and
// pushes a PollResponse on connect and after every transition of the job,
// closing once the job is terminal.
type StreamHandler struct {
	gateway  Gateway
	hub      *StatusHub
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a StreamHandler accepting the given origins.
// An origin of "*" accepts all.
func NewStreamHandler(gateway Gateway, hub *StatusHub, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		gateway: gateway,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Stream handles GET /ws/requests/{request_id} requests
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRequestID(w, r)
	if !ok {
		return
	}
	log := logger.FromContext(r.Context()).With("request_id", id)

	// subscribe before the first poll so no transition falls in between
	sub := h.hub.Subscribe(id)
	defer h.hub.Unsubscribe(id, sub)

	snap, err := h.gateway.Poll(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, cancel)

	if err := writeSnapshot(conn, snap); err != nil {
		log.Debug("failed to write status", "error", err)
		return
	}
	if snap.Job.Status.IsTerminal() {
		closeNormally(conn, "request finished")
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case job, ok := <-sub.Updates():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client too slow"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeSnapshot(conn, h.snapshotFor(ctx, job)); err != nil {
				log.Debug("failed to write status", "error", err)
				return
			}
			if job.Status.IsTerminal() {
				closeNormally(conn, "request finished")
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// snapshotFor builds a snapshot from a transition. Queued jobs are polled so
// the message carries a queue position.
func (h *StreamHandler) snapshotFor(ctx context.Context, job domain.Job) service.Snapshot {
	if job.Status == domain.StatusQueued {
		if snap, err := h.gateway.Poll(ctx, job.ID); err == nil && snap.Job.Status == domain.StatusQueued {
			return snap
		}
	}
	return service.Snapshot{Job: job}
}

func writeSnapshot(conn *websocket.Conn, snap service.Snapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(snapshotToResponse(snap))
}

func closeNormally(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
}

// readPump discards client messages and cancels when the connection drops.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
