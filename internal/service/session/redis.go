package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
)

const (
	sessionKeyPrefix  = "session:"
	maxCreateAttempts = 3
	maxAppendAttempts = 5
)

// RedisStore persists sessions as JSON documents. The TTL is refreshed on
// every read and write, so it acts as an idle timeout.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// GetOrCreate implements Store. Creation uses SETNX so two concurrent
// first-time requests can never share an identifier.
func (s *RedisStore) GetOrCreate(ctx context.Context, id string, seed []chat.Turn) (*chat.Session, bool, error) {
	if err := ValidateID(id); err != nil {
		return nil, false, err
	}

	if id != "" {
		sess, err := s.Get(ctx, id)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		sess := chat.NewSession(newID(), seed, s.now().UTC())
		payload, err := json.Marshal(sess)
		if err != nil {
			return nil, false, errors.Wrap(err, "encode session")
		}

		ok, err := s.client.SetNX(ctx, s.key(sess.ID), payload, s.ttl).Result()
		if err != nil {
			return nil, false, errors.Wrap(err, "create session")
		}
		if ok {
			return sess, true, nil
		}
	}
	return nil, false, errors.Wrap(ErrInvalidSession, "could not allocate a unique session id")
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}

	key := s.key(id)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}

	sess, err := decodeSession(id, raw)
	if err != nil {
		return nil, err
	}

	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("component", "session").Str("session_id", id).Msg("failed to refresh session ttl")
	}
	return sess, nil
}

// Append implements Store using WATCH/MULTI/EXEC, retrying when another
// writer touched the key in between.
func (s *RedisStore) Append(ctx context.Context, id string, turn chat.Turn) (*chat.Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}

	key := s.key(id)
	var updated *chat.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		sess, err := decodeSession(id, raw)
		if err != nil {
			return err
		}

		sess.Transcript.Append(turn)
		sess.Version++
		sess.UpdatedAt = s.now().UTC()

		payload, err := json.Marshal(sess)
		if err != nil {
			return errors.Wrap(err, "encode session")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err == nil {
			updated = sess
		}
		return err
	}

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidSession) {
			return nil, err
		}
		return nil, errors.Wrap(err, "append turn")
	}
	return nil, ErrVersionConflict
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return sessionKeyPrefix + id
}

func decodeSession(id string, raw []byte) (*chat.Session, error) {
	var sess chat.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errors.Wrapf(ErrInvalidSession, "decode session %s: %v", id, err)
	}
	if sess.ID != id {
		return nil, errors.Wrapf(ErrInvalidSession, "record %s holds session %q", id, sess.ID)
	}
	if sess.Transcript == nil {
		sess.Transcript = chat.NewTranscript()
	}
	return &sess, nil
}
