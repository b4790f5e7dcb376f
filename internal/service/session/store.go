package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
)

// Store maps session identifiers to their transcripts.
type Store interface {
	// GetOrCreate resolves id to its session. When id is empty or unknown a
	// fresh identifier is generated and its transcript seeded with a copy of
	// seed; created reports which case occurred. The check-and-insert is atomic.
	GetOrCreate(ctx context.Context, id string, seed []chat.Turn) (sess *chat.Session, created bool, err error)

	// Get returns ErrNotFound when the session does not exist.
	Get(ctx context.Context, id string) (*chat.Session, error)

	// Append adds turn to the end of the session transcript.
	Append(ctx context.Context, id string, turn chat.Turn) (*chat.Session, error)

	Close() error
}

// StoreType selects a driver in NewStore.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// ValidateID rejects identifiers that could never have been issued by a store.
func ValidateID(id string) error {
	if id == "" {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.Wrapf(ErrInvalidSession, "malformed session id %q", id)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
