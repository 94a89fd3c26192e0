package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the current window closes. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether an app may submit another request.
type Limiter interface {
	Admit(ctx context.Context, profile domain.AppProfile) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// FixedWindow is an in-process Limiter guarded by a single mutex.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewFixedWindow creates an in-memory limiter.
func NewFixedWindow() *FixedWindow {
	return NewFixedWindowWithClock(time.Now)
}

// NewFixedWindowWithClock creates an in-memory limiter reading time from now.
func NewFixedWindowWithClock(now func() time.Time) *FixedWindow {
	return &FixedWindow{
		windows: make(map[string]*window),
		now:     now,
	}
}

// Admit implements Limiter.
func (l *FixedWindow) Admit(_ context.Context, profile domain.AppProfile) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[profile.Code]
	if !ok || !now.Before(w.start.Add(profile.RateLimit.Window)) {
		w = &window{start: now}
		l.windows[profile.Code] = w
	}

	if w.count >= profile.RateLimit.Count {
		return Decision{
			Allowed:    false,
			RetryAfter: w.start.Add(profile.RateLimit.Window).Sub(now),
		}, nil
	}

	w.count++
	return Decision{Allowed: true}, nil
}
