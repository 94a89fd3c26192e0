package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "aiq:ratelimit:"

// admitScript increments the app's counter only while it is below the limit.
// The first increment in a window sets the expiry; a denial returns the
// remaining lifetime of the window in milliseconds.
const admitScript = `
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if current >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {0, ttl}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
return {1, 0}
`

// Redis is a Limiter whose counters live in Redis so several gateway
// processes share one quota per app.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the Redis server at url.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Close shuts down the Redis client.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Admit implements Limiter.
func (r *Redis) Admit(ctx context.Context, profile domain.AppProfile) (Decision, error) {
	res, err := r.client.Eval(ctx, admitScript, []string{keyPrefix + profile.Code},
		profile.RateLimit.Count,
		profile.RateLimit.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check for %q: %w", profile.Code, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit check for %q: unexpected reply %v", profile.Code, res)
	}
	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}
