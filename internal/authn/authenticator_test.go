package authn_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchub-dev/mchub/cache"
	"github.com/mchub-dev/mchub/internal/authn"
	"github.com/mchub-dev/mchub/internal/linking"
)

// countingStore wraps an in-memory session map and counts lookups.
type countingStore struct {
	sessions map[string]*cache.SessionEntry
	gets     int
}

func newCountingStore() *countingStore {
	return &countingStore{sessions: make(map[string]*cache.SessionEntry)}
}

func (s *countingStore) Get(_ context.Context, credentialHash string) (*cache.SessionEntry, error) {
	s.gets++
	entry, ok := s.sessions[credentialHash]
	if !ok {
		return nil, cache.ErrSessionNotFound
	}
	return entry, nil
}

func (s *countingStore) Set(_ context.Context, credentialHash string, entry *cache.SessionEntry) error {
	s.sessions[credentialHash] = entry
	return nil
}

func (s *countingStore) Delete(_ context.Context, credentialHash string) error {
	delete(s.sessions, credentialHash)
	return nil
}

func TestAuthenticate_ValidSession(t *testing.T) {
	store := newCountingStore()
	store.sessions[cache.HashCredential("session-token")] = &cache.SessionEntry{
		AccountID: "acc-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	auth := authn.NewAuthenticator(store)

	accountID, err := auth.Authenticate(context.Background(), "session-token")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", accountID)
}

func TestAuthenticate_EmptyCredential(t *testing.T) {
	store := newCountingStore()
	auth := authn.NewAuthenticator(store)

	for _, credential := range []string{"", "   ", "\t"} {
		_, err := auth.Authenticate(context.Background(), credential)
		require.Error(t, err)

		le, ok := linking.AsError(err)
		require.True(t, ok)
		assert.Equal(t, linking.KindUnauthenticated, le.Kind)
	}
	assert.Zero(t, store.gets, "no store lookup for an empty credential")
}

func TestAuthenticate_UnknownSession(t *testing.T) {
	auth := authn.NewAuthenticator(newCountingStore())

	_, err := auth.Authenticate(context.Background(), "never-issued")
	require.Error(t, err)

	le, ok := linking.AsError(err)
	require.True(t, ok)
	assert.Equal(t, linking.KindUnauthenticated, le.Kind)
}

func TestAuthenticate_FrontCacheSkipsStore(t *testing.T) {
	store := newCountingStore()
	store.sessions[cache.HashCredential("session-token")] = &cache.SessionEntry{
		AccountID: "acc-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	auth := authn.NewAuthenticator(store)

	for i := 0; i < 3; i++ {
		accountID, err := auth.Authenticate(context.Background(), "session-token")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", accountID)
	}
	assert.Equal(t, 1, store.gets, "repeated lookups served from the front cache")
}
