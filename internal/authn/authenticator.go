// Package authn validates caller session credentials against the
// platform's session store.
package authn

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mchub-dev/mchub/cache"
	"github.com/mchub-dev/mchub/internal/linking"
)

const defaultCacheTTL = time.Minute

// Authenticator resolves a bearer session credential to a local account id.
// A small in-process read-through cache sits in front of the remote store
// so repeated calls within a request burst skip the round trip.
type Authenticator struct {
	store    cache.SessionStore
	front    *cache.MemorySessionStore
	cacheTTL time.Duration
}

// NewAuthenticator creates an Authenticator over the given session store.
func NewAuthenticator(store cache.SessionStore) *Authenticator {
	return &Authenticator{
		store:    store,
		front:    cache.NewMemorySessionStore(defaultCacheTTL),
		cacheTTL: defaultCacheTTL,
	}
}

// Authenticate implements linking.SessionAuthenticator. An empty or
// malformed credential fails before any store call.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", linking.ErrUnauthenticated("missing session credential")
	}

	hash := cache.HashCredential(credential)

	if entry, err := a.front.Get(ctx, hash); err == nil {
		return entry.AccountID, nil
	}

	entry, err := a.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			return "", linking.ErrUnauthenticated("invalid or expired session")
		}
		return "", linking.ErrInternal(err)
	}

	cached := *entry
	if ttl := time.Until(entry.ExpiresAt); ttl > a.cacheTTL || entry.ExpiresAt.IsZero() {
		cached.ExpiresAt = time.Now().Add(a.cacheTTL)
	}
	_ = a.front.Set(ctx, hash, &cached)

	return entry.AccountID, nil
}

var _ linking.SessionAuthenticator = (*Authenticator)(nil)
