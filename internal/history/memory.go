package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore keeps every session's log in process memory. A limit of 0 keeps
// all entries; a positive limit drops the oldest entries on append.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	limit    int
	now      func() time.Time
}

type sessionLog struct {
	entries  []Entry
	lastSeen time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*sessionLog),
		limit:    limit,
		now:      time.Now,
	}
}

// lookup refreshes and returns the session's log without creating one, so
// read-only visits leave no state behind.
func (s *MemoryStore) lookup(sessionID string) []Entry {
	log, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	log.lastSeen = s.now()
	return log.entries
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.sessions[sessionID]
	if !ok {
		log = &sessionLog{}
		s.sessions[sessionID] = log
	}
	log.lastSeen = s.now()
	log.entries = append(log.entries, entry)
	if s.limit > 0 && len(log.entries) > s.limit {
		trimmed := make([]Entry, s.limit)
		copy(trimmed, log.entries[len(log.entries)-s.limit:])
		log.entries = trimmed
	}
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, sessionID string, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recentOf(s.lookup(sessionID), n), nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID, entryID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findEntry(s.lookup(sessionID), entryID)
}

func (s *MemoryStore) All(ctx context.Context, sessionID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.lookup(sessionID)
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// EvictIdle drops sessions not touched within idle and returns how many were
// removed.
func (s *MemoryStore) EvictIdle(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	evicted := 0
	for id, log := range s.sessions {
		if log.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Sessions reports how many sessions currently hold state.
func (s *MemoryStore) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval, idle time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(idle); n > 0 {
				logger.Info("evicted idle sessions", zap.Int("count", n), zap.Int("remaining", s.Sessions()))
			}
		}
	}
}
