package session

import "time"

const defaultRedisTTL = 24 * time.Hour

// NewStore creates a Store for the given driver type.
// The redis driver requires WithRedisClient.
func NewStore(storeType StoreType, opts ...Option) (Store, error) {
	cfg := &storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	switch storeType {
	case StoreTypeMemory, "":
		return newMemoryStore(cfg), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := cfg.ttl
		if ttl <= 0 {
			ttl = defaultRedisTTL
		}
		return &RedisStore{client: cfg.redisClient, ttl: ttl, now: cfg.now}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}
