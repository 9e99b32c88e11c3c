package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ListClient is the subset of go-redis used by RedisStore; *redis.Client
// satisfies it.
type ListClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps each session's log in a Redis list that expires together
// with the session.
type RedisStore struct {
	client ListClient
	ttl    time.Duration
	limit  int
}

// NewRedisStore constructs a Redis-backed history store.
func NewRedisStore(client ListClient, ttl time.Duration, limit int) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, limit: limit}
}

func redisKey(sessionID string) string {
	return fmt.Sprintf("history:%s", sessionID)
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	key := redisKey(sessionID)
	if err := s.client.RPush(ctx, key, payload).Err(); err != nil {
		return err
	}
	if s.limit > 0 {
		if err := s.client.LTrim(ctx, key, int64(-s.limit), -1).Err(); err != nil {
			return err
		}
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

func (s *RedisStore) load(ctx context.Context, sessionID string, start, stop int64) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, redisKey(sessionID), start, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	entries, err := s.load(ctx, sessionID, int64(-n), -1)
	if err != nil {
		return nil, err
	}
	return recentOf(entries, n), nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID, entryID string) (Entry, error) {
	entries, err := s.load(ctx, sessionID, 0, -1)
	if err != nil {
		return Entry{}, err
	}
	return findEntry(entries, entryID)
}

func (s *RedisStore) All(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.load(ctx, sessionID, 0, -1)
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, redisKey(sessionID)).Err()
}
