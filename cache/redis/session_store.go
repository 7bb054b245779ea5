package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mchub-dev/mchub/cache"
)

// SessionStore implements cache.SessionStore backed by Redis. Sessions are
// written by the platform's auth service; this service mostly reads them.
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore creates a new Redis-backed session store. The prefix
// namespaces keys when the Redis instance is shared.
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (r *SessionStore) redisKey(credentialHash string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, credentialHash)
}

func (r *SessionStore) Get(ctx context.Context, credentialHash string) (*cache.SessionEntry, error) {
	var entry cache.SessionEntry
	err := r.client.HGetAll(ctx, r.redisKey(credentialHash)).Scan(&entry)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	// HGetAll returns an empty map for a missing key instead of redis.Nil.
	if entry.AccountID == "" {
		return nil, cache.ErrSessionNotFound
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		return nil, cache.ErrSessionNotFound
	}
	return &entry, nil
}

func (r *SessionStore) Set(ctx context.Context, credentialHash string, entry *cache.SessionEntry) error {
	key := r.redisKey(credentialHash)
	if err := r.client.HSet(ctx, key, entry).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	if ttl := time.Until(entry.ExpiresAt); ttl > 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("failed to set session expiry in Redis: %w", err)
		}
	}
	return nil
}

func (r *SessionStore) Delete(ctx context.Context, credentialHash string) error {
	if err := r.client.Del(ctx, r.redisKey(credentialHash)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

var _ cache.SessionStore = (*SessionStore)(nil)
