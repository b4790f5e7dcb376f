package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/config"
	"github.com/zhouzirui/atlas-chat/backend/internal/events"
	"github.com/zhouzirui/atlas-chat/backend/internal/logging"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/ai"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

// app holds the services shared by serve and ask.
type app struct {
	cfg       *config.Config
	countries *country.MemoryStore
	sessions  session.Store
	chat      *chat.Service
	bus       *events.Bus
	redis     *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, withEvents bool) (*app, error) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create chat model")
	}

	a := &app{cfg: cfg, countries: country.NewMemoryStore(country.Seed())}

	if err := a.openSessions(ctx); err != nil {
		return nil, err
	}

	driver, err := ai.NewService(ctx, chatModel, a.sessions, ai.OptionsFromConfig(cfg.AI))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var publisher events.Publisher
	if withEvents {
		a.bus, err = events.NewBus(logging.Component("watermill"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.bus.Handle("log-conversation-events", events.LogHandler(logging.Component("events")))
		publisher = a.bus
	}

	a.chat = chat.NewService(driver, a.sessions, a.countries, publisher)
	return a, nil
}

func (a *app) openSessions(ctx context.Context) error {
	opts := []session.Option{
		session.WithTTL(a.cfg.Session.TTL),
		session.WithMaxSessions(a.cfg.Session.MaxSessions),
	}

	if a.cfg.Session.Driver == config.DriverRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			_ = a.redis.Close()
			return errors.Wrapf(err, "connect to redis at %s", a.cfg.Redis.Addr)
		}
		opts = append(opts, session.WithRedisClient(a.redis))
	}

	store, err := session.NewStore(session.StoreType(a.cfg.Session.Driver), opts...)
	if err != nil {
		return errors.Wrap(err, "create session store")
	}
	a.sessions = store

	log.Info().
		Str("driver", a.cfg.Session.Driver).
		Dur("ttl", a.cfg.Session.TTL).
		Int("max_sessions", a.cfg.Session.MaxSessions).
		Msg("session store ready")
	return nil
}

// sweeper returns the memory store when periodic eviction applies.
func (a *app) sweeper() (*session.MemoryStore, bool) {
	mem, ok := a.sessions.(*session.MemoryStore)
	return mem, ok
}

func (a *app) Close() error {
	var firstErr error
	if a.bus != nil {
		if err := a.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// The redis driver owns its client.
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	} else if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
