package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"

	"github.com/and161185/leadgate/internal/metrics"
)

// KeyPrefix namespaces limiter keys in Redis.
const KeyPrefix = "ratelimit:"

// slidingWindow prunes, counts and records in one step so concurrent
// instances never admit more than max requests per window.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis is a sliding-window limiter shared by every instance using the same server.
type Redis struct {
	client redis.Scripter
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(client redis.Scripter, max int, window time.Duration) *Redis {
	if max < 1 {
		max = 1
	}
	if window < time.Millisecond {
		window = time.Second
	}
	return &Redis{client: client, max: max, window: window, now: time.Now}
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	member, err := uuid.NewV4()
	if err != nil {
		return false, fmt.Errorf("limiter member id: %w", err)
	}
	res, err := slidingWindow.Run(ctx, r.client, []string{KeyPrefix + key},
		r.now().UnixMilli(), r.window.Milliseconds(), r.max, member.String(),
	).Int()
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues("redis", metrics.DecisionError).Inc()
		return false, fmt.Errorf("limiter script: %w", err)
	}
	allowed := res == 1
	metrics.RateLimitDecisions.WithLabelValues("redis", metrics.Decision(allowed)).Inc()
	return allowed, nil
}
