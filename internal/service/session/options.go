package session

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Option configures a store created by NewStore.
type Option func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets the idle lifetime of a session. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithMaxSessions caps the number of sessions held by the memory driver.
// The least recently used session is evicted first. Zero disables the cap.
func WithMaxSessions(n int) Option {
	return func(c *storeConfig) {
		c.maxSessions = n
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		c.now = now
	}
}
