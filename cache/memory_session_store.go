package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemorySessionStore implements SessionStore using ttlcache. It serves as a
// read-through front for a remote store and as the store itself in tests.
type MemorySessionStore struct {
	cache *ttlcache.Cache[string, *SessionEntry]
}

// NewMemorySessionStore creates an in-memory session store with automatic
// cleanup of expired entries.
func NewMemorySessionStore(cleanupInterval time.Duration) *MemorySessionStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *SessionEntry](cleanupInterval),
		ttlcache.WithDisableTouchOnHit[string, *SessionEntry](),
	)
	go cache.Start()

	return &MemorySessionStore{cache: cache}
}

func (s *MemorySessionStore) Get(_ context.Context, credentialHash string) (*SessionEntry, error) {
	item := s.cache.Get(credentialHash)
	if item == nil {
		return nil, ErrSessionNotFound
	}
	entry := item.Value()
	if time.Now().After(entry.ExpiresAt) {
		s.cache.Delete(credentialHash)
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func (s *MemorySessionStore) Set(_ context.Context, credentialHash string, entry *SessionEntry) error {
	s.cache.Set(credentialHash, entry, time.Until(entry.ExpiresAt))
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, credentialHash string) error {
	s.cache.Delete(credentialHash)
	return nil
}

// Stop shuts down the cache's cleanup goroutine.
func (s *MemorySessionStore) Stop() {
	s.cache.Stop()
}

var _ SessionStore = (*MemorySessionStore)(nil)
