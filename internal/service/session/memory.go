package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
)

// MemoryStore keeps sessions in process memory. Sessions idle for longer than
// the TTL are dropped, and the least recently used session is evicted once the
// cap is reached.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*memoryEntry
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
	closed      bool
}

type memoryEntry struct {
	session    *chat.Session
	lastAccess time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := &storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	return newMemoryStore(cfg)
}

func newMemoryStore(cfg *storeConfig) *MemoryStore {
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions:    make(map[string]*memoryEntry),
		ttl:         cfg.ttl,
		maxSessions: cfg.maxSessions,
		now:         now,
	}
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(_ context.Context, id string, seed []chat.Turn) (*chat.Session, bool, error) {
	if err := ValidateID(id); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	now := s.now()
	if id != "" {
		if entry, ok := s.lookupLocked(id, now); ok {
			entry.lastAccess = now
			return snapshot(entry.session), false, nil
		}
	}

	sessionID := newID()
	for _, exists := s.sessions[sessionID]; exists; _, exists = s.sessions[sessionID] {
		sessionID = newID()
	}

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}

	sess := chat.NewSession(sessionID, seed, now.UTC())
	s.sessions[sessionID] = &memoryEntry{session: sess, lastAccess: now}
	return snapshot(sess), true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*chat.Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.lookupLocked(id, now)
	if !ok {
		return nil, ErrNotFound
	}
	entry.lastAccess = now
	return snapshot(entry.session), nil
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, id string, turn chat.Turn) (*chat.Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.lookupLocked(id, now)
	if !ok {
		return nil, ErrNotFound
	}

	entry.session.Transcript.Append(turn)
	entry.session.UpdatedAt = now.UTC()
	entry.session.Version++
	entry.lastAccess = now
	return snapshot(entry.session), nil
}

// Sweep removes expired sessions and reports how many were dropped.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.sessions {
		if s.expired(entry, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || s.ttl <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Debug().Str("component", "session").Int("removed", n).Msg("swept expired sessions")
			}
		}
	}
}

// Len reports the number of sessions currently held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.sessions = make(map[string]*memoryEntry)
	return nil
}

func (s *MemoryStore) lookupLocked(id string, now time.Time) (*memoryEntry, bool) {
	entry, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(entry, now) {
		delete(s.sessions, id)
		return nil, false
	}
	return entry, true
}

func (s *MemoryStore) expired(entry *memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(entry.lastAccess) > s.ttl
}

func (s *MemoryStore) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, entry := range s.sessions {
		if oldestID == "" || entry.lastAccess.Before(oldest) {
			oldestID = id
			oldest = entry.lastAccess
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
		log.Debug().Str("component", "session").Str("session_id", oldestID).Msg("evicted least recently used session")
	}
}

// snapshot copies the record header; the transcript pointer is shared so
// every resolve of an id yields the same transcript.
func snapshot(sess *chat.Session) *chat.Session {
	cp := *sess
	return &cp
}
