package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter/internal/domain"
)

// Fixed one-second window shared by every process using the same Redis.
const windowLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local newVal = redis.call("INCRBY", key, 1)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`

// RateLimitedTransport caps the number of messages handed to the wrapped
// Sender per second across all workers.
type RateLimitedTransport struct {
	next   Sender
	redis  *redis.Client
	script *redis.Script
	limit  int
	prefix string
	now    func() time.Time
}

// NewRateLimitedTransport wraps next with a Redis-backed limit of
// perSecond sends. A non-positive limit disables throttling.
func NewRateLimitedTransport(next Sender, client *redis.Client, perSecond int) *RateLimitedTransport {
	return &RateLimitedTransport{
		next:   next,
		redis:  client,
		script: redis.NewScript(windowLuaScript),
		limit:  perSecond,
		prefix: "newsletter:ratelimit:send",
		now:    time.Now,
	}
}

// Send waits for a slot in the current window and forwards msg.
func (t *RateLimitedTransport) Send(ctx context.Context, msg *domain.EmailMessage) (string, error) {
	if t.limit > 0 {
		if err := t.wait(ctx); err != nil {
			return "", err
		}
	}
	return t.next.Send(ctx, msg)
}

func (t *RateLimitedTransport) wait(ctx context.Context) error {
	for {
		ok, err := t.acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		now := t.now()
		next := now.Truncate(time.Second).Add(time.Second)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *RateLimitedTransport) acquire(ctx context.Context) (bool, error) {
	key := fmt.Sprintf("%s:%d", t.prefix, t.now().Unix())
	res, err := t.script.Run(ctx, t.redis, []string{key}, t.limit, 2).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}

// NewRedisClient connects to redisURL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}
