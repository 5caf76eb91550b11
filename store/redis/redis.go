// Package redis stores conversation history in Redis lists.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/pdfqa/store"
)

// RedisHistoryStore implements store.HistoryStore using one Redis list per session
type RedisHistoryStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "pdfqa:"
	TTL      time.Duration // Expiration of idle sessions, default 0 (no expiration)
}

// NewRedisHistoryStore creates a new Redis history store
func NewRedisHistoryStore(opts RedisOptions) *RedisHistoryStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "pdfqa:"
	}

	return &RedisHistoryStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (s *RedisHistoryStore) sessionKey(id string) string {
	return fmt.Sprintf("%shistory:%s", s.prefix, id)
}

func (s *RedisHistoryStore) sessionsKey() string {
	return s.prefix + "sessions"
}

// Append pushes messages to the tail of the session list
func (s *RedisHistoryStore) Append(ctx context.Context, sessionID string, messages ...*store.Message) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	values := make([]any, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}
	if len(values) == 0 {
		return nil
	}

	key := s.sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.SAdd(ctx, s.sessionsKey(), sessionID)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history to redis: %w", err)
	}
	return nil
}

// Load reads the whole session list
func (s *RedisHistoryStore) Load(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := store.ValidateSession(sessionID); err != nil {
		return nil, err
	}

	items, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history from redis: %w", err)
	}
	if len(items) == 0 {
		return nil, store.NotFound(sessionID)
	}

	msgs := make([]*store.Message, 0, len(items))
	for _, item := range items {
		var m store.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// Sessions lists sessions whose history has not expired
func (s *RedisHistoryStore) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.sessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	live := ids[:0]
	var stale []any
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check session %s: %w", id, err)
		}
		if n == 0 {
			stale = append(stale, id)
			continue
		}
		live = append(live, id)
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, s.sessionsKey(), stale...)
	}

	sort.Strings(live)
	return live, nil
}

// Clear deletes the session list
func (s *RedisHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.sessionsKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}
